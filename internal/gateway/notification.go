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

// ReminderDelivery describes one scheduled, idempotent notification handoff.
// The idempotency key is the reminder job id, so re-dispatching the same job
// never produces a duplicate delivery.
type ReminderDelivery struct {
	IdempotencyKey string    `json:"idempotency_key"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	ProviderID     string    `json:"provider_id"`
	Channel        string    `json:"channel"`
	Template       string    `json:"template"`
	FireAt         time.Time `json:"fire_at"`
	ScheduledAt    time.Time `json:"scheduled_at"`
}

// NotificationClient talks to the external notification service. Transport,
// templating and retries past handoff belong to that service.
type NotificationClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *zap.Logger
}

// NewNotificationClient builds a notification gateway client. An empty URL
// yields a no-op client that logs instead of delivering.
func NewNotificationClient(rawURL string, timeout time.Duration, logger *zap.Logger) (*NotificationClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rawURL == "" {
		return &NotificationClient{logger: logger}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse notification url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationClient{
		baseURL: parsed,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ScheduleSend hands a delivery to the notification service and returns the
// gateway's job id for later retraction.
func (c *NotificationClient) ScheduleSend(ctx context.Context, delivery ReminderDelivery) (string, error) {
	if c.baseURL == nil {
		c.logger.Info("notification gateway disabled, dropping delivery",
			zap.String("appointment_id", delivery.AppointmentID),
			zap.String("channel", delivery.Channel))
		return delivery.IdempotencyKey, nil
	}

	body, err := json.Marshal(delivery)
	if err != nil {
		return "", fmt.Errorf("marshal delivery: %w", err)
	}

	endpoint := *c.baseURL
	endpoint.Path = singleJoin(endpoint.Path, "/deliveries")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", delivery.IdempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}

	var result struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.JobID == "" {
		// Gateways that do not echo a job id still honor the idempotency key.
		return delivery.IdempotencyKey, nil
	}
	return result.JobID, nil
}

// Retract cancels a previously scheduled delivery. Unknown ids are treated as
// already retracted.
func (c *NotificationClient) Retract(ctx context.Context, gatewayJobID string) error {
	if c.baseURL == nil || gatewayJobID == "" {
		return nil
	}

	endpoint := *c.baseURL
	endpoint.Path = singleJoin(endpoint.Path, "/deliveries/"+url.PathEscape(gatewayJobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build retract request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("retract notification: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("notification retract returned %d", resp.StatusCode)
	}
}
