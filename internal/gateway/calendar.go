package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// CalendarEvent mirrors an appointment into the external calendar provider.
type CalendarEvent struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
}

// CalendarClient synchronises appointments with the calendar provider. Sync is
// best-effort; failures are logged by callers and never affect bookings.
type CalendarClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *zap.Logger
}

// NewCalendarClient builds a calendar gateway client. An empty URL yields a
// no-op client.
func NewCalendarClient(rawURL string, timeout time.Duration, logger *zap.Logger) (*CalendarClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rawURL == "" {
		return &CalendarClient{logger: logger}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse calendar url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CalendarClient{
		baseURL: parsed,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// CreateEvent registers a new appointment with the calendar provider.
func (c *CalendarClient) CreateEvent(ctx context.Context, event CalendarEvent) error {
	return c.send(ctx, http.MethodPost, "/events", &event)
}

// UpdateEvent pushes a changed appointment to the calendar provider.
func (c *CalendarClient) UpdateEvent(ctx context.Context, event CalendarEvent) error {
	return c.send(ctx, http.MethodPut, "/events/"+url.PathEscape(event.AppointmentID), &event)
}

// DeleteEvent removes the calendar entry for a dead appointment.
func (c *CalendarClient) DeleteEvent(ctx context.Context, appointmentID string) error {
	return c.send(ctx, http.MethodDelete, "/events/"+url.PathEscape(appointmentID), nil)
}

func (c *CalendarClient) send(ctx context.Context, method, path string, event *CalendarEvent) error {
	if c.baseURL == nil {
		return nil
	}

	var body *bytes.Reader
	if event != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal calendar event: %w", err)
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	endpoint := *c.baseURL
	endpoint.Path = singleJoin(endpoint.Path, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build calendar request: %w", err)
	}
	if event != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		// Deleting an event the provider never saw is fine.
		if method == http.MethodDelete {
			return nil
		}
		return fmt.Errorf("calendar event not found")
	default:
		return fmt.Errorf("calendar gateway returned %d", resp.StatusCode)
	}
}
