// Package sources defines the media platforms a link can be resolved against.
package sources

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keshon/jukebox/internal/music/queue"
)

const (
	SourceYouTube = "youtube"
	SourceSpotify = "spotify"
)

// Kind classifies a link.
type Kind int

const (
	KindInvalid Kind = iota
	KindTrack
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindCollection:
		return "collection"
	default:
		return "invalid"
	}
}

var ErrNoSearchResults = errors.New("no search results")

// Source resolves links of one platform into queue entries.
type Source interface {
	Name() string
	// Classify inspects the link shape only; it never touches the network.
	Classify(rawURL string) Kind
	// Resolve returns one entry for a track and one per titled member for a
	// collection, in source order.
	Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error)
}

// SearchResult is one hit from a primary-platform search.
type SearchResult struct {
	URL      string
	Title    string
	Channel  string
	Duration time.Duration
}

// Searcher looks tracks up on the primary platform by free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// IsURL reports whether s looks like an http(s) link.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
