package worker

import (
	"context"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"tubewatch/backend/features/deadletter"
	"tubewatch/backend/internal/events"
	"tubewatch/backend/internal/middleware"
)

// DeadLetterConsumer persists resolve-error emissions so they can be retried.
type DeadLetterConsumer struct {
	repo FailedJobSaver
}

func NewDeadLetterConsumer(repo FailedJobSaver) *DeadLetterConsumer {
	return &DeadLetterConsumer{repo: repo}
}

func (h *DeadLetterConsumer) HandleMessage(m *nsq.Message) error {
	ev, err := events.Decode[events.ResolveErrorEvent](m.Body)

	ctx := context.Background()
	if ev.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, ev.CorrelationID)
	}

	if err != nil {
		slog.ErrorContext(ctx, "invalid resolve-error event, dropping", "error", err)
		return nil
	}

	fj := &deadletter.FailedJob{
		JobID:   ev.JobID,
		Email:   ev.Email,
		Error:   ev.Error,
		Attempt: ev.Attempt,
		Payload: append([]byte(nil), m.Body...),
	}
	if err := h.repo.Save(ctx, fj); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "job_id", ev.JobID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "failed job recorded", "job_id", ev.JobID, "failed_job_id", fj.ID)
	return nil
}
