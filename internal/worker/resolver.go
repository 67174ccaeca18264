package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/adapter/youtube"
	"tubewatch/backend/internal/config"
	"tubewatch/backend/internal/events"
	"tubewatch/backend/internal/middleware"
)

var ErrChannelNotFound = errors.New("channel not found")

// errSuperseded aborts a write when another attempt owns the record.
var errSuperseded = errors.New("job attempt superseded")

const defaultResolveTimeout = 30 * time.Second

type ResolverConsumer struct {
	store    JobStore
	searcher ChannelSearcher
	pub      TaskPublisher
	timeout  time.Duration
}

func NewResolverConsumer(store JobStore, searcher ChannelSearcher, pub TaskPublisher, timeout time.Duration) *ResolverConsumer {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &ResolverConsumer{
		store:    store,
		searcher: searcher,
		pub:      pub,
		timeout:  timeout,
	}
}

// HandleMessage resolves the channel reference of one submitted job. Returning an
// error makes NSQ redeliver the message.
func (h *ResolverConsumer) HandleMessage(m *nsq.Message) error {
	ev, err := events.Decode[events.SubmitEvent](m.Body)

	correlationID := ev.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		// Poison pill, redelivery cannot fix it
		slog.ErrorContext(ctx, "invalid submit event, dropping", "error", err)
		return nil
	}

	return h.Resolve(ctx, ev)
}

func (h *ResolverConsumer) Resolve(ctx context.Context, ev events.SubmitEvent) error {
	attempt := ev.EffectiveAttempt()
	logger := slog.With("job_id", ev.JobID, "attempt", attempt)

	rec, err := h.store.Get(ctx, ev.JobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			logger.WarnContext(ctx, "job record not found")
			return nil
		}
		return fmt.Errorf("get job: %w", err)
	}

	// Older attempts are redeliveries; newer ones name an attempt the record never entered.
	if attempt != rec.Attempt {
		logger.InfoContext(ctx, "stale submit event, dropping", "record_attempt", rec.Attempt)
		return nil
	}

	if rec.IsTerminal() {
		logger.InfoContext(ctx, "job already settled, replaying outcome", "status", rec.Status)
		return h.emitOutcome(ctx, rec)
	}

	if _, err := h.store.Update(ctx, rec.ID, func(j *job.Job) error {
		if j.Attempt != attempt {
			return errSuperseded
		}
		return j.StartResolving()
	}); err != nil {
		return h.writeFailed(ctx, logger, err)
	}

	ch, lookupErr := h.lookup(ctx, rec.Channel)
	var mutate func(*job.Job) error
	if lookupErr != nil {
		logger.WarnContext(ctx, "channel resolution failed", "channel", rec.Channel, "error", lookupErr)
		mutate = func(j *job.Job) error {
			if j.Attempt != attempt {
				return errSuperseded
			}
			return j.Fail(lookupErr.Error())
		}
	} else {
		mutate = func(j *job.Job) error {
			if j.Attempt != attempt {
				return errSuperseded
			}
			return j.Resolve(ch.ID, ch.Title)
		}
	}

	final, err := h.store.Update(ctx, rec.ID, mutate)
	if err != nil {
		return h.writeFailed(ctx, logger, err)
	}

	logger.InfoContext(ctx, "channel resolution finished", "status", final.Status, "channel_id", final.ChannelID)
	return h.emitOutcome(ctx, final)
}

// writeFailed acks writes that lost to a concurrent delivery and requeues the rest.
func (h *ResolverConsumer) writeFailed(ctx context.Context, logger *slog.Logger, err error) error {
	if errors.Is(err, errSuperseded) || errors.Is(err, job.ErrInvalidTransition) || errors.Is(err, job.ErrNotFound) {
		logger.InfoContext(ctx, "job changed under this delivery, dropping", "reason", err)
		return nil
	}
	logger.ErrorContext(ctx, "failed to write job record", "error", err)
	return fmt.Errorf("update job: %w", err)
}

func (h *ResolverConsumer) lookup(ctx context.Context, ref string) (youtube.Channel, error) {
	ref = strings.TrimSpace(ref)

	var query, notFound string
	if handle, ok := strings.CutPrefix(ref, "@"); ok {
		query = handle
		notFound = "for handle @" + handle
	} else {
		query = ref
		notFound = fmt.Sprintf("for name or id %q", ref)
	}

	if query == "" {
		return youtube.Channel{}, fmt.Errorf("%w %s", ErrChannelNotFound, notFound)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	channels, err := h.searcher.SearchChannels(lookupCtx, query)
	if err != nil {
		return youtube.Channel{}, err
	}
	if len(channels) == 0 || channels[0].ID == "" {
		return youtube.Channel{}, fmt.Errorf("%w %s", ErrChannelNotFound, notFound)
	}
	return channels[0], nil
}

func (h *ResolverConsumer) emitOutcome(ctx context.Context, rec *job.Job) error {
	correlationID := middleware.GetCorrelationID(ctx)

	var topic string
	var payload interface{}
	switch rec.Status {
	case job.StatusResolved:
		topic = config.TopicResolved
		payload = events.ResolvedEvent{
			JobID:         rec.ID,
			Email:         rec.Email,
			ChannelID:     rec.ChannelID,
			ChannelName:   rec.ChannelName,
			Attempt:       rec.Attempt,
			CorrelationID: correlationID,
		}
	case job.StatusError:
		topic = config.TopicResolveError
		payload = events.ResolveErrorEvent{
			JobID:         rec.ID,
			Email:         rec.Email,
			Error:         rec.Error,
			Attempt:       rec.Attempt,
			CorrelationID: correlationID,
		}
	default:
		return fmt.Errorf("%w: no outcome for status %s", job.ErrInvalidTransition, rec.Status)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	if err := h.pub.Publish(topic, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish outcome", "topic", topic, "job_id", rec.ID, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
