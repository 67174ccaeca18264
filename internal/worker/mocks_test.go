package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"tubewatch/backend/features/deadletter"
	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/adapter/youtube"
)

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) SearchChannels(ctx context.Context, query string) ([]youtube.Channel, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]youtube.Channel), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockFailedJobRepo struct{ mock.Mock }

func (m *MockFailedJobRepo) Save(ctx context.Context, fj *deadletter.FailedJob) error {
	args := m.Called(ctx, fj)
	return args.Error(0)
}

// memStore is an in-memory job store with the same merge-write contract as RedisStore.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]job.Job
	getErr  error
	failOn  func(j *job.Job) error
	updates int
}

func newMemStore(jobs ...*job.Job) *memStore {
	s := &memStore{jobs: map[string]job.Job{}}
	for _, j := range jobs {
		s.jobs[j.ID] = *j
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return &j, nil
}

func (s *memStore) Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	if err := mutate(&j); err != nil {
		return nil, err
	}
	if s.failOn != nil {
		if err := s.failOn(&j); err != nil {
			return nil, err
		}
	}
	j.Version++
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
	s.updates++
	return &j, nil
}

func (s *memStore) job(id string) job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}
