package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceKind tells where an entry came from.
type SourceKind int

const (
	// SourcePrimary entries point at a directly streamable platform (YouTube).
	SourcePrimary SourceKind = iota
	// SourceAggregator entries only carry metadata (Spotify) and are looked up
	// on the primary platform when they reach the head.
	SourceAggregator
)

func (k SourceKind) String() string {
	switch k {
	case SourcePrimary:
		return "youtube"
	case SourceAggregator:
		return "spotify"
	default:
		return "unknown"
	}
}

// Entry is a queued playable item.
type Entry struct {
	ID          string
	URL         string
	Title       string
	Artists     []string
	Kind        SourceKind
	Resolved    bool
	RequestedBy string
	EnqueuedAt  time.Time
}

// NewEntry builds an entry with a fresh ID.
func NewEntry(url, title string, kind SourceKind) Entry {
	return Entry{
		ID:         uuid.NewString(),
		URL:        url,
		Title:      title,
		Kind:       kind,
		EnqueuedAt: time.Now(),
	}
}

// DisplayTitle is what users see in listings.
func (e Entry) DisplayTitle() string {
	if len(e.Artists) > 0 && e.Title != "" {
		return strings.Join(e.Artists, ", ") + " - " + e.Title
	}
	if e.Title != "" {
		return e.Title
	}
	return e.URL
}

// SearchQuery is the text used to find an aggregator entry on the primary platform.
func (e Entry) SearchQuery() string {
	if len(e.Artists) == 0 {
		return e.Title + " lyrics"
	}
	return strings.Join(e.Artists, ", ") + " | " + e.Title + " lyrics"
}

// NeedsLookup reports whether the entry still has to be searched before playback.
func (e Entry) NeedsLookup() bool {
	return e.Kind == SourceAggregator && !e.Resolved
}
