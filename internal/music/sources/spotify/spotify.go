// Package spotify resolves Spotify links into metadata-only queue entries.
// Spotify audio is never streamed; each entry is looked up on YouTube when it
// reaches the head of the queue.
package spotify

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/sources"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

// maxCollectionTracks caps how many members of one album or playlist are queued.
const maxCollectionTracks = 500

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

type linkType string

const (
	linkTrack    linkType = "track"
	linkAlbum    linkType = "album"
	linkPlaylist linkType = "playlist"
)

// track is the metadata kept from any Spotify track object.
type track struct {
	ID      spotify.ID
	Name    string
	Artists []string
}

// link is the open.spotify.com page of the track, or "" when the id is unknown.
func (t track) link() string {
	if t.ID == "" {
		return ""
	}
	return "https://open.spotify.com/track/" + string(t.ID)
}

// catalog is the slice of the Web API the source reads from.
type catalog interface {
	Track(ctx context.Context, id spotify.ID) (track, error)
	AlbumTracks(ctx context.Context, id spotify.ID) ([]track, error)
	PlaylistTracks(ctx context.Context, id spotify.ID) ([]track, error)
}

type Source struct {
	catalog catalog
}

// New authenticates with the client-credentials flow and returns a source
// backed by the Spotify Web API.
func New(ctx context.Context, clientID, clientSecret, market string) *Source {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Source{catalog: &apiCatalog{
		client:  spotify.New(cfg.Client(ctx)),
		market:  market,
		limiter: retrylimit.NewLimiter(retrylimit.LimiterConfig{Initial: 5, Min: 1, Max: 20}),
	}}
}

func (s *Source) Name() string { return sources.SourceSpotify }

func (s *Source) Classify(rawURL string) sources.Kind {
	typ, _, ok := parseLink(rawURL)
	switch {
	case !ok:
		return sources.KindInvalid
	case typ == linkTrack:
		return sources.KindTrack
	default:
		return sources.KindCollection
	}
}

func (s *Source) Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	typ, id, ok := parseLink(rawURL)
	if !ok {
		return nil, music.ErrInvalidURL
	}

	var (
		tracks []track
		err    error
	)
	switch typ {
	case linkTrack:
		var t track
		t, err = s.catalog.Track(ctx, id)
		if t.ID == "" {
			t.ID = id
		}
		tracks = []track{t}
	case linkAlbum:
		tracks, err = s.catalog.AlbumTracks(ctx, id)
	case linkPlaylist:
		tracks, err = s.catalog.PlaylistTracks(ctx, id)
	}
	if err != nil {
		return nil, music.Provider(sources.SourceSpotify, "get "+string(typ), err)
	}

	now := time.Now()
	entries := make([]queue.Entry, 0, len(tracks))
	for _, t := range tracks {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		e := queue.NewEntry(t.link(), t.Name, queue.SourceAggregator)
		e.Artists = t.Artists
		e.EnqueuedAt = now
		entries = append(entries, e)
	}
	return entries, nil
}

// parseLink understands open.spotify.com links (with or without an intl
// path prefix) and spotify: URIs.
func parseLink(raw string) (linkType, spotify.ID, bool) {
	raw = strings.TrimSpace(raw)

	var parts []string
	if rest, ok := strings.CutPrefix(raw, "spotify:"); ok {
		parts = strings.Split(rest, ":")
	} else {
		u, err := url.Parse(raw)
		if err != nil || !sources.IsURL(raw) || !strings.EqualFold(u.Hostname(), "open.spotify.com") {
			return "", "", false
		}
		parts = strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
	}
	if len(parts) != 2 || !idPattern.MatchString(parts[1]) {
		return "", "", false
	}

	switch typ := linkType(parts[0]); typ {
	case linkTrack, linkAlbum, linkPlaylist:
		return typ, spotify.ID(parts[1]), true
	}
	return "", "", false
}

type apiCatalog struct {
	client  *spotify.Client
	market  string
	limiter *retrylimit.Limiter
}

func (c *apiCatalog) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return retrylimit.Do(ctx, c.limiter, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
		return withStatus(fn(ctx))
	})
}

func (c *apiCatalog) opts() []spotify.RequestOption {
	if c.market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(c.market)}
}

func (c *apiCatalog) Track(ctx context.Context, id spotify.ID) (track, error) {
	var full *spotify.FullTrack
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		full, err = c.client.GetTrack(ctx, id, c.opts()...)
		return err
	})
	if err != nil {
		return track{}, err
	}
	return fromSimple(full.SimpleTrack), nil
}

func (c *apiCatalog) AlbumTracks(ctx context.Context, id spotify.ID) ([]track, error) {
	var page *spotify.SimpleTrackPage
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		page, err = c.client.GetAlbumTracks(ctx, id, append(c.opts(), spotify.Limit(50))...)
		return err
	})
	if err != nil {
		return nil, err
	}

	var out []track
	for {
		for _, t := range page.Tracks {
			out = append(out, fromSimple(t))
		}
		if len(out) >= maxCollectionTracks {
			return out[:maxCollectionTracks], nil
		}
		err := c.call(ctx, func(ctx context.Context) error { return c.client.NextPage(ctx, page) })
		if errors.Is(err, spotify.ErrNoMorePages) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *apiCatalog) PlaylistTracks(ctx context.Context, id spotify.ID) ([]track, error) {
	var page *spotify.PlaylistItemPage
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		page, err = c.client.GetPlaylistItems(ctx, id, append(c.opts(), spotify.Limit(100))...)
		return err
	})
	if err != nil {
		return nil, err
	}

	var out []track
	for {
		for _, item := range page.Items {
			// episodes and removed tracks have no track object
			if item.Track.Track == nil {
				continue
			}
			out = append(out, fromSimple(item.Track.Track.SimpleTrack))
		}
		if len(out) >= maxCollectionTracks {
			return out[:maxCollectionTracks], nil
		}
		err := c.call(ctx, func(ctx context.Context) error { return c.client.NextPage(ctx, page) })
		if errors.Is(err, spotify.ErrNoMorePages) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func fromSimple(t spotify.SimpleTrack) track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}
	return track{ID: t.ID, Name: t.Name, Artists: artists}
}

// withStatus exposes the Web API status code to the retry policy.
func withStatus(err error) error {
	if err == nil || errors.Is(err, spotify.ErrNoMorePages) {
		return err
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return retrylimit.WithStatus(apiErr.Status, err)
	}
	return err
}
