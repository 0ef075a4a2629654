package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinicore/scheduling-api/internal/dto"
	"github.com/clinicore/scheduling-api/internal/models"
	"github.com/clinicore/scheduling-api/internal/service"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
	"github.com/clinicore/scheduling-api/pkg/export"
	"github.com/clinicore/scheduling-api/pkg/response"
)

// AppointmentHandler exposes appointment booking endpoints.
type AppointmentHandler struct {
	appointments *service.AppointmentService
	reminders    *service.ReminderService
	csv          *export.CSVExporter
}

// NewAppointmentHandler constructs AppointmentHandler.
func NewAppointmentHandler(appointments *service.AppointmentService, reminders *service.ReminderService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments, reminders: reminders, csv: export.NewCSVExporter()}
}

// respondError surfaces the colliding interval on refused bookings.
func respondError(c *gin.Context, err error) {
	var conflictErr *models.AppointmentConflictError
	if errors.As(err, &conflictErr) {
		response.ErrorWithMeta(c, err, map[string]interface{}{"conflict": conflictErr.Conflict})
		return
	}
	response.Error(c, err)
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param providerId query string false "Filter by provider"
// @Param patientId query string false "Filter by patient"
// @Param status query string false "Filter by status"
// @Param from query string false "Start of range (RFC3339)"
// @Param to query string false "End of range (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	filter := parseAppointmentFilter(c)
	// Patients only ever see their own bookings.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RolePatient {
		filter.PatientID = claims.UserID
	}
	appointments, pagination, err := h.appointments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, pagination)
}

// Create godoc
// @Summary Book a new appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, err := h.appointments.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, appt)
}

// Get godoc
// @Summary Get one appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appt, err := h.appointments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Update godoc
// @Summary Reschedule or patch an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.UpdateAppointmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [patch]
func (h *AppointmentHandler) Update(c *gin.Context) {
	var req dto.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, err := h.appointments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CancelAppointmentRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	var req dto.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appt, err := h.appointments.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Confirm godoc
// @Summary Confirm an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/confirm [post]
func (h *AppointmentHandler) Confirm(c *gin.Context) {
	h.transition(c, h.appointments.Confirm)
}

// CheckIn godoc
// @Summary Check a patient in
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/check-in [post]
func (h *AppointmentHandler) CheckIn(c *gin.Context) {
	h.transition(c, h.appointments.CheckIn)
}

// Start godoc
// @Summary Start the consultation
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/start [post]
func (h *AppointmentHandler) Start(c *gin.Context) {
	h.transition(c, h.appointments.Start)
}

// Complete godoc
// @Summary Complete an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/complete [post]
func (h *AppointmentHandler) Complete(c *gin.Context) {
	h.transition(c, h.appointments.Complete)
}

// NoShow godoc
// @Summary Mark a patient as a no-show
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/no-show [post]
func (h *AppointmentHandler) NoShow(c *gin.Context) {
	h.transition(c, h.appointments.MarkNoShow)
}

// Reminders godoc
// @Summary List reminder jobs for an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/reminders [get]
func (h *AppointmentHandler) Reminders(c *gin.Context) {
	jobs, err := h.reminders.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Export godoc
// @Summary Export a filtered appointment listing as CSV
// @Tags Appointments
// @Produce text/csv
// @Param providerId query string false "Filter by provider"
// @Param patientId query string false "Filter by patient"
// @Param status query string false "Filter by status"
// @Success 200 {string} string "CSV content"
// @Router /appointments/export [get]
func (h *AppointmentHandler) Export(c *gin.Context) {
	filter := parseAppointmentFilter(c)
	dataset, err := h.appointments.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.csv.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv"))
		return
	}
	filename := fmt.Sprintf("appointments-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

func (h *AppointmentHandler) transition(c *gin.Context, op func(ctx context.Context, id string) (*models.Appointment, error)) {
	appt, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

func parseAppointmentFilter(c *gin.Context) models.AppointmentFilter {
	var filter models.AppointmentFilter
	filter.ProviderID = c.Query("providerId")
	filter.PatientID = c.Query("patientId")
	filter.Status = strings.ToUpper(c.Query("status"))
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
