package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinicore/scheduling-api/internal/dto"
	"github.com/clinicore/scheduling-api/internal/service"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
	"github.com/clinicore/scheduling-api/pkg/export"
	"github.com/clinicore/scheduling-api/pkg/response"
)

// SlotHandler exposes provider availability and slot endpoints.
type SlotHandler struct {
	slots           *service.SlotService
	pdf             *export.PDFExporter
	defaultDuration int
}

// NewSlotHandler constructs SlotHandler.
func NewSlotHandler(slots *service.SlotService, defaultDuration int) *SlotHandler {
	if defaultDuration <= 0 {
		defaultDuration = 30
	}
	return &SlotHandler{slots: slots, pdf: export.NewPDFExporter(), defaultDuration: defaultDuration}
}

// Slots godoc
// @Summary List open slots for a provider on a date
// @Tags Providers
// @Produce json
// @Param id path string true "Provider ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int false "Slot duration in minutes"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/slots [get]
func (h *SlotHandler) Slots(c *gin.Context) {
	providerID := c.Param("id")
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	duration := h.defaultDuration
	if raw := c.Query("duration"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be an integer"))
			return
		}
		duration = parsed
	}

	slots, err := h.slots.GenerateSlots(c.Request.Context(), providerID, date, duration)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := dto.SlotListResponse{
		ProviderID:      providerID,
		Date:            date,
		DurationMinutes: duration,
		Slots:           make([]dto.SlotItem, 0, len(slots)),
	}
	for _, slot := range slots {
		payload.Slots = append(payload.Slots, dto.SlotItem{Start: slot.Start, End: slot.End})
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Availability godoc
// @Summary List a provider's weekly availability windows
// @Tags Providers
// @Produce json
// @Param id path string true "Provider ID"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/availability [get]
func (h *SlotHandler) Availability(c *gin.Context) {
	windows, err := h.slots.ListWindows(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// DaySheet godoc
// @Summary Download a provider's day sheet as PDF
// @Tags Providers
// @Produce application/pdf
// @Param id path string true "Provider ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {string} string "PDF content"
// @Router /providers/{id}/day-sheet [get]
func (h *SlotHandler) DaySheet(c *gin.Context) {
	providerID := c.Param("id")
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	sheet, err := h.slots.DaySheet(c.Request.Context(), providerID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.pdf.RenderDaySheet(*sheet)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render day sheet"))
		return
	}
	filename := fmt.Sprintf("day-sheet-%s-%s.pdf", providerID, date)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
