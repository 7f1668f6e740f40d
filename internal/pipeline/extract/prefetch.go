package extract

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"

	"github.com/albadl/albadl/internal/files"
)

// Metadata is the display information fetched for a video ahead of the
// extraction tool producing any output of its own.
type Metadata struct {
	Title      string
	Author     string
	Thumbnails []Thumbnail
}

// Thumbnail is one available preview image.
type Thumbnail struct {
	URL   string
	Width int
}

// BestThumbnail picks the widest available image, or empty when none exist.
func (m *Metadata) BestThumbnail() string {
	best := ""
	width := -1
	for _, t := range m.Thumbnails {
		if t.Width > width {
			best = t.URL
			width = t.Width
		}
	}
	return best
}

// MetadataFetcher resolves display metadata for a video URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Metadata, error)
}

type youtubeFetcher struct {
	client youtube.Client
}

// NewMetadataFetcher returns the YouTube-backed fetcher.
func NewMetadataFetcher() MetadataFetcher {
	return &youtubeFetcher{}
}

func (f *youtubeFetcher) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	video, err := f.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video metadata: %w", err)
	}
	md := &Metadata{Title: video.Title, Author: video.Author}
	for _, t := range video.Thumbnails {
		md.Thumbnails = append(md.Thumbnails, Thumbnail{URL: t.URL, Width: int(t.Width)})
	}
	return md, nil
}

// FallbackStem names the output when no title is known yet. The video id keeps
// parallel untitled downloads distinguishable.
func FallbackStem(link string) string {
	id, err := youtube.ExtractVideoID(link)
	if err != nil || id == "" {
		return files.DefaultStem
	}
	return files.SanitizeStem(id, files.DefaultStem)
}
