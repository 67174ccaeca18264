package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued           Status = "queued"
	StatusResolvingChannel Status = "resolving_channel"
	StatusResolved         Status = "resolved"
	StatusError            Status = "error"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrImmutableField    = errors.New("attempt to modify immutable job field")
)

// KeyPrefix namespaces job records in the key-value store.
const KeyPrefix = "job:"

func Key(id string) string { return KeyPrefix + id }

// Job is the durable record shared by every stage of the pipeline. Stages mutate it
// through Store.Update so fields written by stages they do not know about survive.
type Job struct {
	ID          string    `json:"jobId"`
	Channel     string    `json:"channel"`
	Email       string    `json:"email"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Error       string    `json:"error,omitempty"`
	ChannelID   string    `json:"channelId,omitempty"`
	ChannelName string    `json:"channelName,omitempty"`
	Attempt     int       `json:"attempt"`
	Version     int64     `json:"version"`

	// fields owned by later stages, carried through untouched
	extra map[string]json.RawMessage
}

var knownFields = []string{
	"jobId", "channel", "email", "status", "createdAt", "updatedAt",
	"error", "channelId", "channelName", "attempt", "version",
}

func New(id, channel, email string, now time.Time) *Job {
	return &Job{
		ID:        id,
		Channel:   channel,
		Email:     email,
		Status:    StatusQueued,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Attempt:   1,
	}
}

var transitions = map[Status][]Status{
	StatusQueued:           {StatusResolvingChannel, StatusError},
	StatusResolvingChannel: {StatusResolvingChannel, StatusResolved, StatusError},
	StatusResolved:         {},
	StatusError:            {},
}

// CanTransition reports whether a stage may move a job from one status to another.
// Leaving StatusError is only possible through Requeue.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (j *Job) moveTo(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	if to != StatusError {
		j.Error = ""
	}
	return nil
}

func (j *Job) StartResolving() error {
	return j.moveTo(StatusResolvingChannel)
}

func (j *Job) Resolve(channelID, channelName string) error {
	if err := j.moveTo(StatusResolved); err != nil {
		return err
	}
	j.ChannelID = channelID
	j.ChannelName = channelName
	return nil
}

func (j *Job) Fail(reason string) error {
	if err := j.moveTo(StatusError); err != nil {
		return err
	}
	if reason == "" {
		reason = "Unknown error"
	}
	j.Error = reason
	return nil
}

// Requeue records a new attempt on a failed job.
func (j *Job) Requeue() error {
	if j.Status != StatusError {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusQueued)
	}
	j.Status = StatusQueued
	j.Error = ""
	j.ChannelID = ""
	j.ChannelName = ""
	j.Attempt++
	return nil
}

func (j *Job) IsTerminal() bool {
	return j.Status == StatusResolved || j.Status == StatusError
}

type immutableFields struct {
	id, channel, email string
	createdAt          time.Time
}

func (j *Job) identity() immutableFields {
	return immutableFields{j.ID, j.Channel, j.Email, j.CreatedAt}
}

func (j *Job) UnmarshalJSON(b []byte) error {
	type alias Job
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	*j = Job(a)
	if len(raw) > 0 {
		j.extra = raw
	}
	return nil
}

func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	b, err := json.Marshal(alias(j))
	if err != nil || len(j.extra) == 0 {
		return b, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range j.extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}
