package settings

import (
	"context"
	"log/slog"
)

type Settings struct {
	ID               int    `json:"-"`
	YouTubeAPIKey    string `json:"youtube_api_key"`
	SearchRegionCode string `json:"search_region_code"`
}

// Masked returns a copy safe to return over the API.
func (s Settings) Masked() Settings {
	if len(s.YouTubeAPIKey) > 4 {
		s.YouTubeAPIKey = "****" + s.YouTubeAPIKey[len(s.YouTubeAPIKey)-4:]
	} else if s.YouTubeAPIKey != "" {
		s.YouTubeAPIKey = "****"
	}
	return s
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	return s.repo.Update(ctx, set)
}

// SeedAPIKey stores key when no API key has been configured yet.
func (s *Service) SeedAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	set, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	if set.YouTubeAPIKey != "" {
		return nil
	}
	set.YouTubeAPIKey = key
	if err := s.repo.Update(ctx, set); err != nil {
		return err
	}
	slog.InfoContext(ctx, "seeded youtube api key from environment")
	return nil
}
