package deadletter_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tubewatch/backend/features/deadletter"
	"tubewatch/backend/features/job"
)

// MockRepo implements deadletter.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, fj *deadletter.FailedJob) error {
	args := m.Called(ctx, fj)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context) ([]deadletter.FailedJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deadletter.FailedJob), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*deadletter.FailedJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deadletter.FailedJob), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

// fakeJobs applies mutations to an in-memory record.
type fakeJobs struct {
	rec *job.Job
	err error
}

func (f *fakeJobs) Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rec == nil || f.rec.ID != id {
		return nil, job.ErrNotFound
	}
	cp := *f.rec
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	cp.Version++
	f.rec = &cp
	return &cp, nil
}
