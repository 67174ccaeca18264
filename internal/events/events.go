// Package events defines the wire contract for every topic exchanged between stages.
// Producers marshal these structs; consumers decode them with Decode, which rejects
// payloads that do not satisfy the topic's schema.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidPayload = errors.New("invalid event payload")

var validate = validator.New()

// SubmitEvent is published on config.TopicSubmit. Channel is informational; the
// resolver looks up the channel stored on the job record.
type SubmitEvent struct {
	JobID         string `json:"jobId" validate:"required"`
	Channel       string `json:"channel"`
	Email         string `json:"email" validate:"required"`
	Attempt       int    `json:"attempt,omitempty" validate:"gte=0"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ResolvedEvent is published on config.TopicResolved.
type ResolvedEvent struct {
	JobID         string `json:"jobId" validate:"required"`
	Email         string `json:"email" validate:"required"`
	ChannelID     string `json:"channelId" validate:"required"`
	ChannelName   string `json:"channelName"`
	Attempt       int    `json:"attempt,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ResolveErrorEvent is published on config.TopicResolveError.
type ResolveErrorEvent struct {
	JobID         string `json:"jobId" validate:"required"`
	Email         string `json:"email" validate:"required"`
	Error         string `json:"error" validate:"required"`
	Attempt       int    `json:"attempt,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Payload is implemented by every topic schema.
type Payload interface {
	SubmitEvent | ResolvedEvent | ResolveErrorEvent
}

// Decode unmarshals body into T and validates it.
func Decode[T Payload](body []byte) (T, error) {
	var v T
	if len(body) == 0 {
		return v, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}

// EffectiveAttempt treats a missing attempt as the first one.
func (e SubmitEvent) EffectiveAttempt() int {
	if e.Attempt < 1 {
		return 1
	}
	return e.Attempt
}
