package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/config"
	"tubewatch/backend/internal/events"
	"tubewatch/backend/internal/middleware"
)

const (
	publishTimeout = 5 * time.Second
	enqueueFailure = "failed to enqueue channel resolution"
)

// errAlreadyPickedUp stops the enqueue-failure write once the resolver owns the attempt.
var errAlreadyPickedUp = errors.New("job attempt already picked up")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type JobUpdater interface {
	Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error)
}

type Service struct {
	repo   Repository
	jobs   JobUpdater
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, jobs JobUpdater, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, jobs: jobs, pub: pub, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]FailedJob, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry records a new attempt on the job and hands it back to the resolver.
func (s *Service) Retry(ctx context.Context, id string) error {
	fj, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	rec, err := s.jobs.Update(ctx, fj.JobID, func(j *job.Job) error {
		return j.Requeue()
	})
	if err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", ErrNotRetryable, err)
		}
		return err
	}

	body, err := json.Marshal(events.SubmitEvent{
		JobID:         rec.ID,
		Channel:       rec.Channel,
		Email:         rec.Email,
		Attempt:       rec.Attempt,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal submit event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicSubmit, body)
	}()

	var pubErr error
	select {
	case err := <-done:
		if err != nil {
			pubErr = fmt.Errorf("publish submit: %w", err)
		}
	case <-pubCtx.Done():
		pubErr = pubCtx.Err()
	}
	if pubErr != nil {
		s.restoreFailure(ctx, rec)
		return pubErr
	}

	s.logger.InfoContext(ctx, "job requeued", "job_id", rec.ID, "attempt", rec.Attempt)
	return s.repo.Delete(ctx, id)
}

// restoreFailure puts a requeued record whose submit event never left back into
// error, so it stays retryable.
func (s *Service) restoreFailure(ctx context.Context, rec *job.Job) {
	s.logger.ErrorContext(ctx, "failed to publish submit event", "job_id", rec.ID, "attempt", rec.Attempt)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	_, err := s.jobs.Update(writeCtx, rec.ID, func(j *job.Job) error {
		if j.Attempt != rec.Attempt || j.Status != job.StatusQueued {
			return errAlreadyPickedUp
		}
		return j.Fail(enqueueFailure)
	})
	if err != nil && !errors.Is(err, errAlreadyPickedUp) {
		s.logger.ErrorContext(ctx, "failed to record enqueue failure", "job_id", rec.ID, "error", err)
	}
}
