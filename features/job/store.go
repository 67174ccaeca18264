package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrJobExists = errors.New("job already exists")
	ErrConflict  = errors.New("job was modified concurrently")
)

const maxUpdateRetries = 5

type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Update performs a merge-write: it loads the record, applies mutate and writes it
	// back only if nobody else wrote it in between.
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)
}

type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	if j.ID == "" {
		return errors.New("job id cannot be empty")
	}
	j.Version = 1
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	status, err := s.client.SetArgs(ctx, Key(j.ID), data, redis.SetArgs{Mode: "NX"}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrJobExists
		}
		return fmt.Errorf("redis SET NX: %w", err)
	}
	if status != "OK" {
		return ErrJobExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	key := Key(id)

	var updated *Job
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		before := j.identity()
		if err := mutate(&j); err != nil {
			return err
		}
		if j.identity() != before {
			return ErrImmutableField
		}
		j.Version++
		j.UpdatedAt = s.now().UTC()

		out, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &j
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrConflict, id)
}

// Count returns the number of job records. It walks the keyspace with SCAN.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}

// Health checks the connection to the store.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
