// Package catalog serves the live-mode stream listing.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"

	"liveflow/backend/internal/models"
)

// TagAll disables tag filtering.
const TagAll = "all"

// Store is the storage the catalog reads from.
type Store interface {
	ListStreams(ctx context.Context, tag string) ([]models.StreamInfo, error)
	CountStreams(ctx context.Context) (int64, error)
	SaveStream(ctx context.Context, stream *models.StreamInfo) error
}

// DefaultStreams seed an empty catalog.
var DefaultStreams = []models.StreamInfo{
	{ID: "1", Title: "Late night guitar 🎸", ViewerCount: 124, ThumbnailURL: "https://picsum.photos/seed/music/400/225", StreamerName: "Anonymous 422", Tag: models.Man},
	{ID: "2", Title: "Small talk & relax 🍷", ViewerCount: 89, ThumbnailURL: "https://picsum.photos/seed/relax/400/225", StreamerName: "Anonymous 109", Tag: models.Woman},
	{ID: "3", Title: "Trans & Proud: open conversation", ViewerCount: 45, ThumbnailURL: "https://picsum.photos/seed/trans/400/225", StreamerName: "Anonymous 877", Tag: models.TransWoman},
	{ID: "4", Title: "Gaming & Chill 🎮", ViewerCount: 231, ThumbnailURL: "https://picsum.photos/seed/gaming/400/225", StreamerName: "Anonymous 332", Tag: models.Man},
}

type Service struct {
	Store Store
}

func NewService(s Store) *Service {
	return &Service{Store: s}
}

// List returns streams ordered by viewer count. tag may be empty, "all" or
// any identity tag spelling ParseIdentityTag accepts.
func (s *Service) List(ctx context.Context, tag string) ([]models.StreamInfo, error) {
	filter := ""
	if t := strings.TrimSpace(tag); t != "" && !strings.EqualFold(t, TagAll) {
		parsed, err := models.ParseIdentityTag(t)
		if err != nil {
			return nil, err
		}
		filter = string(parsed)
	}
	streams, err := s.Store.ListStreams(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	if streams == nil {
		streams = []models.StreamInfo{}
	}
	return streams, nil
}

// Add validates and stores one entry.
func (s *Service) Add(ctx context.Context, stream models.StreamInfo) error {
	if stream.ID == "" || stream.Title == "" {
		return fmt.Errorf("stream id and title are required")
	}
	if !stream.Tag.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownIdentity, stream.Tag)
	}
	if stream.ViewerCount < 0 {
		stream.ViewerCount = 0
	}
	return s.Store.SaveStream(ctx, &stream)
}

// SeedDefaults fills an empty catalog with DefaultStreams. It reports how
// many entries were written.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	n, err := s.Store.CountStreams(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for _, st := range DefaultStreams {
		if err := s.Add(ctx, st); err != nil {
			return 0, err
		}
	}
	log.Printf("INFO: seeded catalog with %d streams", len(DefaultStreams))
	return len(DefaultStreams), nil
}
