package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/gateway"
	"github.com/clinicore/scheduling-api/internal/models"
)

type reminderClaimStore interface {
	ClaimDue(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]models.DueReminder, error)
	MarkDispatched(ctx context.Context, id, gatewayJobID string) (bool, error)
	MarkFailed(ctx context.Context, id string, attempts, maxAttempts int, backoff time.Duration, lastError string) error
}

// DispatcherConfig tunes the reminder polling worker. StaleClaim bounds how
// long a crashed dispatcher can leave a job in the dispatching state before
// another instance reclaims it.
type DispatcherConfig struct {
	PollInterval time.Duration
	Lookahead    time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	StaleClaim   time.Duration
}

// ReminderDispatcher polls for due reminder jobs and hands them to the
// notification collaborator. A batch is claimed in one short statement,
// gateway calls run with no row lock held, and each outcome is written back
// on its own. Concurrent instances split the work via SKIP LOCKED claiming.
type ReminderDispatcher struct {
	store    reminderClaimStore
	notifier notificationGateway
	metrics  *MetricsService
	cfg      DispatcherConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewReminderDispatcher constructs the polling worker.
func NewReminderDispatcher(store reminderClaimStore, notifier notificationGateway, metrics *MetricsService, cfg DispatcherConfig, logger *zap.Logger) *ReminderDispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.StaleClaim <= 0 {
		cfg.StaleClaim = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderDispatcher{store: store, notifier: notifier, metrics: metrics, cfg: cfg, logger: logger, now: time.Now}
}

// Run polls until the context is cancelled. Call in its own goroutine.
func (d *ReminderDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	d.logger.Info("reminder dispatcher started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Duration("lookahead", d.cfg.Lookahead))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder dispatcher stopped")
			return
		case <-ticker.C:
			if n, err := d.DispatchDue(ctx); err != nil {
				d.logger.Error("reminder batch failed", zap.Error(err))
			} else if n > 0 {
				d.logger.Info("reminder batch dispatched", zap.Int("count", n))
			}
		}
	}
}

// DispatchDue claims one batch of due jobs, then hands each to the
// notification gateway with no database lock held. It returns the number of
// jobs successfully dispatched.
func (d *ReminderDispatcher) DispatchDue(ctx context.Context) (int, error) {
	now := d.now().UTC()
	due, err := d.store.ClaimDue(ctx, now.Add(d.cfg.Lookahead), now.Add(-d.cfg.StaleClaim), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range due {
		job := &due[i]
		gatewayID, err := d.notifier.ScheduleSend(ctx, d.buildDelivery(job))
		if err != nil {
			d.metrics.RecordReminder("failed")
			d.logger.Warn("reminder handoff failed",
				zap.String("reminder_id", job.ID),
				zap.String("appointment_id", job.AppointmentID),
				zap.Error(err))
			if err := d.store.MarkFailed(ctx, job.ID, job.Attempts+1, d.cfg.MaxAttempts, d.cfg.RetryBackoff, err.Error()); err != nil {
				return dispatched, err
			}
			continue
		}
		stillClaimed, err := d.store.MarkDispatched(ctx, job.ID, gatewayID)
		if err != nil {
			return dispatched, err
		}
		if !stillClaimed {
			// The appointment was cancelled between the claim and the
			// handoff; pull the delivery back out of the gateway.
			if err := d.notifier.Retract(ctx, gatewayID); err != nil {
				d.logger.Warn("failed to retract reminder for cancelled appointment",
					zap.String("reminder_id", job.ID),
					zap.String("gateway_job_id", gatewayID),
					zap.Error(err))
			}
			continue
		}
		d.metrics.RecordReminder("dispatched")
		dispatched++
	}
	return dispatched, nil
}

func (d *ReminderDispatcher) buildDelivery(job *models.DueReminder) gateway.ReminderDelivery {
	return gateway.ReminderDelivery{
		IdempotencyKey: job.ID,
		AppointmentID:  job.AppointmentID,
		PatientID:      job.PatientID,
		ProviderID:     job.ProviderID,
		Channel:        job.Channel,
		Template:       "appointment_reminder_" + job.OffsetLabel,
		FireAt:         job.FireAt,
		ScheduledAt:    job.ScheduledAt,
	}
}
