package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// DaySheet describes a provider's printable schedule for a single day.
type DaySheet struct {
	ProviderID string
	Date       string
	Timezone   string
	Entries    []DaySheetEntry
}

// DaySheetEntry is one appointment line on a day sheet.
type DaySheetEntry struct {
	Start     string
	End       string
	PatientID string
	Status    string
	Urgent    bool
	Notes     string
}

// PDFExporter renders provider day sheets as PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderDaySheet creates a one-page-per-day PDF listing the provider's appointments
// in chronological order.
func (e *PDFExporter) RenderDaySheet(sheet DaySheet) ([]byte, error) {
	if sheet.ProviderID == "" || sheet.Date == "" {
		return nil, fmt.Errorf("day sheet requires provider and date")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("DAY SHEET - %s", sheet.Date), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Provider %s (%s)", sheet.ProviderID, sheet.Timezone), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Start", "End", "Patient", "Status", "Notes"}
	widths := []float64{25, 25, 55, 35, 50}

	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	if len(sheet.Entries) == 0 {
		pdf.CellFormat(190, 7, "No appointments scheduled", "1", 1, "C", false, 0, "")
	}
	for _, entry := range sheet.Entries {
		notes := entry.Notes
		if entry.Urgent {
			notes = "URGENT " + notes
		}
		cells := []string{entry.Start, entry.End, entry.PatientID, entry.Status, notes}
		for i, value := range cells {
			pdf.CellFormat(widths[i], 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render day sheet pdf: %w", err)
	}
	return buf.Bytes(), nil
}
