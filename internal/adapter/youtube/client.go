package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

var ErrMissingCredential = errors.New("youtube api key is not configured")

// Channel is a single search hit from the directory.
type Channel struct {
	ID    string
	Title string
}

type Client struct {
	svc        *ytapi.Service
	regionCode string
}

func NewClient(ctx context.Context, apiKey, regionCode string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	opts = append(append([]option.ClientOption{}, opts...), option.WithAPIKey(apiKey))
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &Client{svc: svc, regionCode: regionCode}, nil
}

// SearchChannels runs a channel-typed search. Only the first result is returned.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]Channel, error) {
	call := c.svc.Search.List([]string{"snippet"}).
		Type("channel").
		Q(query).
		MaxResults(1)
	if c.regionCode != "" {
		call = call.RegionCode(c.regionCode)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	channels := make([]Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil {
			slog.WarnContext(ctx, "search result without snippet", "query", query)
			continue
		}
		id := item.Snippet.ChannelId
		if id == "" && item.Id != nil {
			id = item.Id.ChannelId
		}
		if id == "" {
			continue
		}
		channels = append(channels, Channel{ID: id, Title: item.Snippet.ChannelTitle})
	}
	return channels, nil
}
