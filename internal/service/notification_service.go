package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/jobs"
	"github.com/noah-isme/flightwx-scheduler/pkg/logger"
)

// NotificationJobType tags queued notification deliveries.
const NotificationJobType = "notification"

// Notifier delivers a single notification.
type Notifier interface {
	Send(ctx context.Context, notification models.Notification) (models.NotificationResult, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService dispatches notifications without blocking callers.
// Failures are logged and counted, never returned.
type NotificationService struct {
	notifier Notifier
	queue    jobEnqueuer
	timeout  time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the service. Until a queue is attached
// deliveries run inline.
func NewNotificationService(notifier Notifier, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifier: notifier, timeout: timeout, metrics: metrics, logger: logger}
}

// AttachQueue routes deliveries through q. The queue's handler must be Handle.
func (s *NotificationService) AttachQueue(q jobEnqueuer) {
	s.queue = q
}

// Notify dispatches n.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if s == nil || s.notifier == nil {
		return
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: NotificationJobType, Payload: n})
		if err == nil {
			return
		}
		logger.FromContext(ctx, s.logger).Warn("notification enqueue failed, delivering inline",
			zap.String("kind", string(n.Kind)), zap.Error(err))
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	_ = s.deliver(callCtx, n)
}

// Handle is the queue handler for notification jobs.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.deliver(ctx, n)
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) error {
	result, err := s.notifier.Send(ctx, n)
	success := err == nil && result.Success
	s.metrics.RecordNotification(n.Kind, success)
	log := logger.FromContext(ctx, s.logger).With(
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.Recipient),
	)
	if err != nil {
		log.Warn("notification delivery failed", zap.Error(err))
		return err
	}
	if !result.Success {
		log.Warn("notification rejected by notifier")
		return fmt.Errorf("notifier rejected %s notification", n.Kind)
	}
	log.Debug("notification delivered", zap.String("id", result.ID))
	return nil
}
