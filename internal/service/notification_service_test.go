package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/jobs"
)

type notifierStub struct {
	mu      sync.Mutex
	sent    []models.Notification
	err     error
	reject  bool
	release chan struct{}
}

func (n *notifierStub) Send(ctx context.Context, notification models.Notification) (models.NotificationResult, error) {
	if n.release != nil {
		select {
		case <-n.release:
		case <-ctx.Done():
			return models.NotificationResult{}, ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	if n.err != nil {
		return models.NotificationResult{}, n.err
	}
	return models.NotificationResult{Success: !n.reject, ID: "msg-1"}, nil
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func conflictNotice(recipient string) models.Notification {
	return models.Notification{
		Kind:      models.NotificationWeatherConflict,
		Recipient: recipient,
		Payload:   map[string]interface{}{"bookingId": "b1"},
	}
}

func TestNotificationServiceInlineDelivery(t *testing.T) {
	notifier := &notifierStub{}
	metrics := NewMetricsService()
	svc := NewNotificationService(notifier, time.Second, metrics, nil)

	svc.Notify(context.Background(), conflictNotice("student-1"))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "student-1", notifier.sent[0].Recipient)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notifications.WithLabelValues(string(models.NotificationWeatherConflict), "success")))
}

func TestNotificationServiceFailuresAreSwallowed(t *testing.T) {
	metrics := NewMetricsService()
	failing := NewNotificationService(&notifierStub{err: errors.New("smtp down")}, time.Second, metrics, nil)
	rejecting := NewNotificationService(&notifierStub{reject: true}, time.Second, metrics, nil)

	assert.NotPanics(t, func() {
		failing.Notify(context.Background(), conflictNotice("student-1"))
		rejecting.Notify(context.Background(), conflictNotice("student-1"))
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.notifications.WithLabelValues(string(models.NotificationWeatherConflict), "failure")))
}

func TestNotificationServiceInlineSurvivesCancelledCaller(t *testing.T) {
	notifier := &notifierStub{}
	svc := NewNotificationService(notifier, time.Second, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Notify(ctx, conflictNotice("student-1"))
	assert.Equal(t, 1, notifier.count())
}

func TestNotificationServiceQueuedDeliveryDoesNotBlock(t *testing.T) {
	notifier := &notifierStub{release: make(chan struct{})}
	svc := NewNotificationService(notifier, time.Second, nil, nil)
	q := jobs.NewQueue("notifications", svc.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: -1, Timeout: time.Second})
	q.Start(context.Background())
	defer q.Stop()
	svc.AttachQueue(q)

	done := make(chan struct{})
	go func() {
		svc.Notify(context.Background(), conflictNotice("student-1"))
		svc.Notify(context.Background(), conflictNotice("instructor-1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow notifier")
	}
	assert.Equal(t, 0, notifier.count())

	close(notifier.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, 2, notifier.count())
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(jobs.Job) error { return errors.New("queue stopped") }

func TestNotificationServiceFallsBackWhenEnqueueFails(t *testing.T) {
	notifier := &notifierStub{}
	svc := NewNotificationService(notifier, time.Second, nil, nil)
	svc.AttachQueue(brokenQueue{})

	svc.Notify(context.Background(), conflictNotice("student-1"))
	assert.Equal(t, 1, notifier.count())
}

func TestNotificationServiceHandleRejectsUnknownPayload(t *testing.T) {
	svc := NewNotificationService(&notifierStub{}, time.Second, nil, nil)
	err := svc.Handle(context.Background(), jobs.Job{Type: NotificationJobType, Payload: "oops"})
	assert.Error(t, err)
}
