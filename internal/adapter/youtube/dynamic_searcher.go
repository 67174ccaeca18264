package youtube

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"

	"tubewatch/backend/internal/settings"
)

type SettingsGetter interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicSearcher resolves the API key from settings on every search so a corrected
// credential takes effect without a restart.
type DynamicSearcher struct {
	settingsSvc SettingsGetter
	clientOpts  []option.ClientOption

	mu         sync.RWMutex
	client     *Client
	currentKey string
	region     string
}

func NewDynamicSearcher(svc SettingsGetter, opts ...option.ClientOption) *DynamicSearcher {
	return &DynamicSearcher{
		settingsSvc: svc,
		clientOpts:  opts,
	}
}

func (d *DynamicSearcher) SearchChannels(ctx context.Context, query string) ([]Channel, error) {
	s, err := d.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.YouTubeAPIKey == "" {
		return nil, ErrMissingCredential
	}

	client, err := d.getClient(ctx, s.YouTubeAPIKey, s.SearchRegionCode)
	if err != nil {
		return nil, err
	}
	return client.SearchChannels(ctx, query)
}

func (d *DynamicSearcher) getClient(ctx context.Context, key, region string) (*Client, error) {
	d.mu.RLock()
	if d.client != nil && d.currentKey == key && d.region == region {
		defer d.mu.RUnlock()
		return d.client, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double check
	if d.client != nil && d.currentKey == key && d.region == region {
		return d.client, nil
	}

	client, err := NewClient(ctx, key, region, d.clientOpts...)
	if err != nil {
		return nil, err
	}

	d.client = client
	d.currentKey = key
	d.region = region
	return client, nil
}
