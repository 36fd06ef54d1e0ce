package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/models"
	"github.com/parsepoint/parsepoint-api/pkg/jobs"
)

// Sink records product events. Emission is fire-and-forget: a broken sink is
// logged and never surfaces to the request or the processor.
type Sink interface {
	Emit(name, userID string, payload models.EventPayload)
}

// eventWriter is the persistence half of the sink.
type eventWriter interface {
	Create(ctx context.Context, event *models.Event) error
}

// QueueSink pushes events through the in-memory job queue onto the events
// table.
type QueueSink struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewQueueSink builds the sink and its backing queue. Call Start/Stop on the
// returned sink around the server lifecycle.
func NewQueueSink(writer eventWriter, workers int, logger *zap.Logger) *QueueSink {
	s := &QueueSink{logger: logger}
	s.queue = jobs.NewQueue("analytics", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(*models.Event)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return writer.Create(ctx, event)
	}, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers.
func (s *QueueSink) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *QueueSink) Stop() {
	s.queue.Stop()
}

// Emit enqueues one event.
func (s *QueueSink) Emit(name, userID string, payload models.EventPayload) {
	event := &models.Event{
		ID:      uuid.NewString(),
		Name:    name,
		UserID:  userID,
		Payload: payload,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: name, Payload: event}); err != nil {
		s.logger.Warn("analytics event dropped", zap.String("event", name), zap.Error(err))
	}
}

// NopSink discards every event. Used when analytics is disabled.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(string, string, models.EventPayload) {}
