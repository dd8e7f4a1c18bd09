// Package youtube resolves YouTube links and searches YouTube for tracks.
package youtube

import (
	"context"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/sources"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

// metadataClient is the part of the kkdai client the source needs.
type metadataClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
}

type Source struct {
	client  metadataClient
	limiter *retrylimit.Limiter
	policy  retrylimit.Policy
}

func New(client *youtube.Client) *Source {
	return newSource(client)
}

func newSource(client metadataClient) *Source {
	return &Source{
		client:  client,
		limiter: retrylimit.NewLimiter(retrylimit.LimiterConfig{Initial: 5, Min: 1, Max: 10}),
		policy:  retrylimit.DefaultPolicy(),
	}
}

func (s *Source) Name() string { return sources.SourceYouTube }

func (s *Source) Classify(rawURL string) sources.Kind { return classify(rawURL) }

func (s *Source) Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	rawURL = strings.TrimSpace(rawURL)
	switch classify(rawURL) {
	case sources.KindTrack:
		return s.resolveVideo(ctx, rawURL)
	case sources.KindCollection:
		return s.resolvePlaylist(ctx, rawURL)
	default:
		return nil, music.ErrInvalidURL
	}
}

func (s *Source) resolveVideo(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	id := VideoID(rawURL)
	var video *youtube.Video
	err := retrylimit.Do(ctx, s.limiter, s.policy, func(ctx context.Context) error {
		var err error
		video, err = s.client.GetVideoContext(ctx, id)
		return err
	})
	if err != nil {
		return nil, music.Provider(sources.SourceYouTube, "get video", err)
	}

	return []queue.Entry{queue.NewEntry(WatchURL(id), video.Title, queue.SourcePrimary)}, nil
}

func (s *Source) resolvePlaylist(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	var playlist *youtube.Playlist
	err := retrylimit.Do(ctx, s.limiter, s.policy, func(ctx context.Context) error {
		var err error
		playlist, err = s.client.GetPlaylistContext(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, music.Provider(sources.SourceYouTube, "get playlist", err)
	}

	entries := make([]queue.Entry, 0, len(playlist.Videos))
	now := time.Now()
	for _, v := range playlist.Videos {
		if v == nil || v.Title == "" || v.ID == "" {
			continue
		}
		e := queue.NewEntry(WatchURL(v.ID), v.Title, queue.SourcePrimary)
		e.EnqueuedAt = now
		entries = append(entries, e)
	}
	return entries, nil
}
