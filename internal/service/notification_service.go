package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/pkg/events"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService queues timetable events and delivers them to the broker.
type NotificationService struct {
	publisher eventPublisher
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service. The queue is attached later
// because the queue itself is built around Handle.
func NewNotificationService(publisher eventPublisher, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{publisher: publisher, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue used by NotifyGenerated.
func (s *NotificationService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// NotifyGenerated enqueues a timetable.generated event. Without a queue the
// event is published inline.
func (s *NotificationService) NotifyGenerated(ctx context.Context, evt events.TimetableGenerated) error {
	payload := map[string]interface{}{}
	if err := mapstructure.Decode(evt, &payload); err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	job := jobs.Job{ID: uuid.NewString(), Type: events.TypeTimetableGenerated, Payload: payload}
	if s.queue == nil {
		return s.Handle(ctx, job)
	}
	if err := s.queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Handle is the queue handler: it decodes the job payload and publishes it.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case events.TypeTimetableGenerated:
		var evt events.TimetableGenerated
		if err := mapstructure.Decode(job.Payload, &evt); err != nil {
			s.logger.Error("discarding malformed notification", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		if s.publisher == nil {
			s.logger.Info("notification publisher disabled", zap.String("run_id", evt.RunID))
			return nil
		}
		if err := s.publisher.Publish(ctx, job.Type, evt); err != nil {
			s.metrics.RecordNotification(false)
			return err
		}
		s.metrics.RecordNotification(true)
		s.logger.Info("timetable notification delivered", zap.String("run_id", evt.RunID), zap.String("period", evt.Period))
		return nil
	default:
		s.logger.Warn("unknown notification type", zap.String("type", job.Type), zap.String("job_id", job.ID))
		return nil
	}
}
