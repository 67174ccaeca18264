package worker

import (
	"context"

	"tubewatch/backend/features/deadletter"
	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/adapter/youtube"
)

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type JobStore interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error)
}

type ChannelSearcher interface {
	SearchChannels(ctx context.Context, query string) ([]youtube.Channel, error)
}

type FailedJobSaver interface {
	Save(ctx context.Context, fj *deadletter.FailedJob) error
}
