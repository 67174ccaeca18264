package youtube_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"tubewatch/backend/internal/adapter/youtube"
	"tubewatch/backend/internal/settings"
)

func searchServer(t *testing.T, hits *int32, items []map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/youtube/v3/search", r.URL.Path)
		assert.Equal(t, "channel", r.URL.Query().Get("type"))
		assert.Equal(t, "snippet", r.URL.Query().Get("part"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"kind":  "youtube#searchListResponse",
			"items": items,
		})
	}))
}

func TestClient_SearchChannels(t *testing.T) {
	var hits int32
	var gotQuery, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"snippet": map[string]interface{}{"channelId": "UC123", "channelTitle": "Some Show"}},
			},
		})
	}))
	defer ts.Close()

	client, err := youtube.NewClient(context.Background(), "k1", "", option.WithEndpoint(ts.URL+"/"))
	require.NoError(t, err)

	channels, err := client.SearchChannels(context.Background(), "somehandle")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, youtube.Channel{ID: "UC123", Title: "Some Show"}, channels[0])
	assert.Equal(t, "somehandle", gotQuery)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, int32(1), hits)
}

func TestClient_SearchChannels_Empty(t *testing.T) {
	var hits int32
	ts := searchServer(t, &hits, []map[string]interface{}{})
	defer ts.Close()

	client, err := youtube.NewClient(context.Background(), "k1", "", option.WithEndpoint(ts.URL+"/"))
	require.NoError(t, err)

	channels, err := client.SearchChannels(context.Background(), "RandomName")
	require.NoError(t, err)
	assert.Empty(t, channels)
}

func TestClient_SearchChannels_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	}))
	defer ts.Close()

	client, err := youtube.NewClient(context.Background(), "k1", "", option.WithEndpoint(ts.URL+"/"))
	require.NoError(t, err)

	_, err = client.SearchChannels(context.Background(), "x")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "youtube search failed")
}

func TestClient_SearchChannels_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": "nope"`))
	}))
	defer ts.Close()

	client, err := youtube.NewClient(context.Background(), "k1", "", option.WithEndpoint(ts.URL+"/"))
	require.NoError(t, err)

	_, err = client.SearchChannels(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := youtube.NewClient(context.Background(), "", "")
	assert.True(t, errors.Is(err, youtube.ErrMissingCredential))
}

type MockSettings struct {
	mock.Mock
}

func (m *MockSettings) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func TestDynamicSearcher_SearchChannels(t *testing.T) {
	var hits int32
	ts := searchServer(t, &hits, []map[string]interface{}{
		{"snippet": map[string]interface{}{"channelId": "UC9", "channelTitle": "Nine"}},
	})
	defer ts.Close()

	ctx := context.Background()
	svc := new(MockSettings)
	client := youtube.NewDynamicSearcher(svc, option.WithEndpoint(ts.URL+"/"))

	t.Run("Success", func(t *testing.T) {
		svc.On("Get", ctx).Return(&settings.Settings{YouTubeAPIKey: "k"}, nil).Once()

		channels, err := client.SearchChannels(ctx, "nine")
		require.NoError(t, err)
		require.Len(t, channels, 1)
		assert.Equal(t, "UC9", channels[0].ID)
	})

	t.Run("Missing API Key Makes No Call", func(t *testing.T) {
		before := atomic.LoadInt32(&hits)
		svc.On("Get", ctx).Return(&settings.Settings{YouTubeAPIKey: ""}, nil).Once()

		_, err := client.SearchChannels(ctx, "nine")
		assert.ErrorIs(t, err, youtube.ErrMissingCredential)
		assert.Equal(t, before, atomic.LoadInt32(&hits))
	})

	t.Run("Settings Error", func(t *testing.T) {
		svc.On("Get", ctx).Return(nil, errors.New("db down")).Once()

		_, err := client.SearchChannels(ctx, "nine")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get settings")
	})

	svc.AssertExpectations(t)
}
