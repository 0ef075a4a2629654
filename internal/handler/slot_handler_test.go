package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
	"github.com/clinicore/scheduling-api/internal/service"
)

type fakeWindowReader struct {
	windows []models.AvailabilityWindow
}

func (f *fakeWindowReader) ListByProvider(ctx context.Context, providerID string) ([]models.AvailabilityWindow, error) {
	return f.windows, nil
}

func (f *fakeWindowReader) WindowsFor(ctx context.Context, providerID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	return f.windows, nil
}

type fakeBookedReader struct {
	booked []models.Appointment
}

func (f *fakeBookedReader) ListActiveInRange(ctx context.Context, providerID string, from, to time.Time) ([]models.Appointment, error) {
	return f.booked, nil
}

func newTestSlotHandler(windows []models.AvailabilityWindow, booked []models.Appointment) *SlotHandler {
	svc := service.NewSlotService(
		&fakeWindowReader{windows: windows},
		&fakeBookedReader{booked: booked},
		service.NewCacheService(nil, nil, 0, nil, false),
		time.UTC,
		time.Minute,
		nil,
	)
	return NewSlotHandler(svc, 30)
}

func TestSlotHandlerRequiresDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSlotHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/providers/prov-1/slots", nil)
	c.Params = gin.Params{{Key: "id", Value: "prov-1"}}
	handler.Slots(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotHandlerListsSlots(t *testing.T) {
	gin.SetMode(gin.TestMode)
	date := time.Now().AddDate(0, 0, 7)
	windows := []models.AvailabilityWindow{{
		ProviderID: "prov-1",
		DayOfWeek:  int(date.Weekday()),
		StartTime:  "09:00",
		EndTime:    "10:00",
	}}
	handler := newTestSlotHandler(windows, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/providers/prov-1/slots?date="+date.Format("2006-01-02"), nil)
	c.Params = gin.Params{{Key: "id", Value: "prov-1"}}
	handler.Slots(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data struct {
			ProviderID string `json:"providerId"`
			Slots      []struct {
				Start time.Time `json:"start"`
			} `json:"slots"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "prov-1", envelope.Data.ProviderID)
	assert.Len(t, envelope.Data.Slots, 2)
}

func TestSlotHandlerInvalidDuration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSlotHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/providers/prov-1/slots?date=2026-03-10&duration=abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "prov-1"}}
	handler.Slots(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotHandlerDaySheet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	booked := []models.Appointment{{
		ID:              "appt-1",
		PatientID:       "pat-1",
		ProviderID:      "prov-1",
		ScheduledAt:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          models.StatusConfirmed,
	}}
	handler := newTestSlotHandler(nil, booked)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/providers/prov-1/day-sheet?date=2026-03-10", nil)
	c.Params = gin.Params{{Key: "id", Value: "prov-1"}}
	handler.DaySheet(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}
