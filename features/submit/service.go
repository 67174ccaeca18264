package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/config"
	"tubewatch/backend/internal/events"
	"tubewatch/backend/internal/middleware"
)

const (
	MsgRequired     = "Channel and email are required."
	MsgInvalidEmail = "Invalid email format."
	MsgQueued       = "Your Request has been queued for processing.You will receive an email with improved suggestions once done."

	enqueueFailure = "failed to enqueue channel resolution"
)

var (
	ErrEnqueue = errors.New("failed to enqueue job")

	mailboxPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidationError carries the client-facing reason a submission was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Request struct {
	Channel string `json:"channel" validate:"required"`
	Email   string `json:"email" validate:"required,mailbox"`
}

type JobStore interface {
	Create(ctx context.Context, j *job.Job) error
	Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	store    JobStore
	pub      EventPublisher
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

func NewService(store JobStore, pub EventPublisher) *Service {
	v := validator.New()
	if err := v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register mailbox validation: %v", err))
	}
	return &Service{
		store:    store,
		pub:      pub,
		validate: v,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *Service) Validate(req *Request) error {
	req.Channel = strings.TrimSpace(req.Channel)
	req.Email = strings.TrimSpace(req.Email)

	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &ValidationError{Message: MsgRequired}
		}
	}
	return &ValidationError{Message: MsgInvalidEmail}
}

// Submit creates the job record and hands it to the channel resolver.
func (s *Service) Submit(ctx context.Context, req Request) (*job.Job, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	j := job.New(s.newID(), req.Channel, req.Email, s.now())
	if err := s.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	body, err := json.Marshal(events.SubmitEvent{
		JobID:         j.ID,
		Channel:       j.Channel,
		Email:         j.Email,
		Attempt:       j.Attempt,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submit event: %w", err)
	}

	if err := s.pub.Publish(config.TopicSubmit, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish submit event", "job_id", j.ID, "error", err)
		if _, uerr := s.store.Update(ctx, j.ID, func(rec *job.Job) error {
			return rec.Fail(enqueueFailure)
		}); uerr != nil {
			slog.ErrorContext(ctx, "failed to record enqueue failure", "job_id", j.ID, "error", uerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	slog.InfoContext(ctx, "job queued", "job_id", j.ID, "channel", j.Channel)
	return j, nil
}
