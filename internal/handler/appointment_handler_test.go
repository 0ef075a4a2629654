package handler

import (
	"bytes"
	"context"
	"database/sql"
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

type fakeApptStore struct {
	byID     map[string]*models.Appointment
	conflict []models.Appointment
}

func (f *fakeApptStore) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	appt, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *appt
	return &copied, nil
}

func (f *fakeApptStore) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	return nil, 0, nil
}

func (f *fakeApptStore) FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Appointment, error) {
	return nil, nil
}

func (f *fakeApptStore) InsertIfAvailable(ctx context.Context, appt *models.Appointment) ([]models.Appointment, error) {
	if len(f.conflict) > 0 {
		return f.conflict, nil
	}
	appt.ID = "appt-new"
	return nil, nil
}

func (f *fakeApptStore) RescheduleIfAvailable(ctx context.Context, id string, scheduledAt time.Time, durationMinutes int) ([]models.Appointment, error) {
	return f.conflict, nil
}

func (f *fakeApptStore) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus, stamp models.StatusStamp) error {
	if _, ok := f.byID[id]; !ok {
		return sql.ErrNoRows
	}
	f.byID[id].Status = status
	return nil
}

func (f *fakeApptStore) UpdateDetails(ctx context.Context, id string, isUrgent *bool, reminderChannel *string) error {
	return nil
}

type fakeAvailability struct{}

func (fakeAvailability) ListByProvider(ctx context.Context, providerID string) ([]models.AvailabilityWindow, error) {
	return nil, nil
}

func (fakeAvailability) WindowsFor(ctx context.Context, providerID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	return []models.AvailabilityWindow{{ProviderID: providerID, DayOfWeek: dayOfWeek, StartTime: "00:00", EndTime: "23:59"}}, nil
}

type fakePlanner struct{}

func (fakePlanner) Schedule(ctx context.Context, appt *models.Appointment) error   { return nil }
func (fakePlanner) Reschedule(ctx context.Context, appt *models.Appointment) error { return nil }
func (fakePlanner) Cancel(ctx context.Context, appointmentID string) error         { return nil }

type fakePublisher struct{}

func (fakePublisher) Publish(event models.AppointmentEvent) {}

type fakeDir struct{}

func (fakeDir) Exists(ctx context.Context, id string) (bool, error) { return true, nil }

func (fakeDir) HasAccess(ctx context.Context, id, actorID string) error { return nil }

func newTestHandler(store *fakeApptStore) *AppointmentHandler {
	svc := service.NewAppointmentService(
		store,
		fakeAvailability{},
		nil,
		fakePlanner{},
		fakePublisher{},
		fakeDir{},
		fakeDir{},
		service.NewCacheService(nil, nil, 0, nil, false),
		nil,
		nil,
		time.UTC,
		nil,
	)
	return NewAppointmentHandler(svc, nil)
}

type testEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func postJSON(t *testing.T, payload interface{}, params gin.Params) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	return rec, c
}

func TestAppointmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(&fakeApptStore{byID: map[string]*models.Appointment{}})

	rec, c := postJSON(t, gin.H{
		"patientId":       "pat-1",
		"providerId":      "prov-1",
		"scheduledAt":     time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"durationMinutes": 30,
	}, nil)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "appt-new", envelope.Data["id"])
}

func TestAppointmentHandlerCreateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	handler := newTestHandler(&fakeApptStore{
		byID: map[string]*models.Appointment{},
		conflict: []models.Appointment{{
			ID:              "appt-existing",
			ProviderID:      "prov-1",
			ScheduledAt:     start,
			DurationMinutes: 30,
			Status:          models.StatusScheduled,
		}},
	})

	rec, c := postJSON(t, gin.H{
		"patientId":       "pat-1",
		"providerId":      "prov-1",
		"scheduledAt":     start.Format(time.RFC3339),
		"durationMinutes": 30,
	}, nil)
	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "CONFLICT", envelope.Error["code"])
	conflict, ok := envelope.Meta["conflict"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "appt-existing", conflict["appointment_id"])
}

func TestAppointmentHandlerCreateBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(&fakeApptStore{byID: map[string]*models.Appointment{}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader([]byte("not json")))
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppointmentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(&fakeApptStore{byID: map[string]*models.Appointment{}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/appointments/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppointmentHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeApptStore{byID: map[string]*models.Appointment{
		"appt-1": {
			ID:              "appt-1",
			ProviderID:      "prov-1",
			ScheduledAt:     time.Now().Add(24 * time.Hour),
			DurationMinutes: 30,
			Status:          models.StatusScheduled,
		},
	}}
	handler := newTestHandler(store)

	rec, c := postJSON(t, gin.H{"reason": "patient request"}, gin.Params{{Key: "id", Value: "appt-1"}})
	handler.Cancel(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "CANCELLED", envelope.Data["status"])
}
