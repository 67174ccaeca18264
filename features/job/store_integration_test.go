package job_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubewatch/backend/features/job"
	"tubewatch/backend/internal/testutils"
)

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client, container, _ := testutils.StartRedis(t)
	defer container.Terminate(context.Background())
	defer client.Close()

	store := job.NewRedisStore(client)
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		j := job.New("j-create", "@show", "a@b.co", time.Now())
		require.NoError(t, store.Create(ctx, j))

		got, err := store.Get(ctx, "j-create")
		require.NoError(t, err)
		assert.Equal(t, job.StatusQueued, got.Status)
		assert.Equal(t, int64(1), got.Version)

		raw, err := client.Get(ctx, "job:j-create").Bytes()
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, "queued", m["status"])
	})

	t.Run("Create Twice", func(t *testing.T) {
		j := job.New("j-dup", "@show", "a@b.co", time.Now())
		require.NoError(t, store.Create(ctx, j))
		assert.ErrorIs(t, store.Create(ctx, job.New("j-dup", "other", "x@y.co", time.Now())), job.ErrJobExists)

		got, err := store.Get(ctx, "j-dup")
		require.NoError(t, err)
		assert.Equal(t, "@show", got.Channel)
	})

	t.Run("Get Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, job.ErrNotFound)
	})

	t.Run("Update Merges Foreign Fields", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, job.New("j-merge", "@show", "a@b.co", time.Now())))

		// A later stage adds a field this code does not model.
		raw, err := client.Get(ctx, "job:j-merge").Bytes()
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		m["digestSentAt"] = "2024-01-01T00:00:00Z"
		patched, _ := json.Marshal(m)
		require.NoError(t, client.Set(ctx, "job:j-merge", patched, 0).Err())

		updated, err := store.Update(ctx, "j-merge", func(j *job.Job) error { return j.StartResolving() })
		require.NoError(t, err)
		assert.Equal(t, job.StatusResolvingChannel, updated.Status)
		assert.Equal(t, int64(2), updated.Version)

		raw, err = client.Get(ctx, "job:j-merge").Bytes()
		require.NoError(t, err)
		assert.Contains(t, string(raw), "digestSentAt")
	})

	t.Run("Update Rejects Immutable Change", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, job.New("j-imm", "@show", "a@b.co", time.Now())))

		_, err := store.Update(ctx, "j-imm", func(j *job.Job) error {
			j.Email = "evil@b.co"
			return nil
		})
		assert.ErrorIs(t, err, job.ErrImmutableField)

		got, err := store.Get(ctx, "j-imm")
		require.NoError(t, err)
		assert.Equal(t, "a@b.co", got.Email)
	})

	t.Run("Update Missing", func(t *testing.T) {
		_, err := store.Update(ctx, "ghost", func(j *job.Job) error { return nil })
		assert.ErrorIs(t, err, job.ErrNotFound)
	})

	t.Run("Concurrent Updates Do Not Lose Writes", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, job.New("j-race", "@show", "a@b.co", time.Now())))

		var wg sync.WaitGroup
		const writers = 4
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := store.Update(ctx, "j-race", func(j *job.Job) error { return nil })
					if err == nil {
						return
					}
					if !assert.ErrorIs(t, err, job.ErrConflict) {
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, "j-race")
		require.NoError(t, err)
		assert.Equal(t, int64(1+writers), got.Version)
	})

	t.Run("Count", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "unrelated:key", "x", 0).Err())

		n, err := store.Count(ctx)
		require.NoError(t, err)
		// j-create, j-dup, j-merge, j-imm, j-race
		assert.Equal(t, 5, n)
	})
}
