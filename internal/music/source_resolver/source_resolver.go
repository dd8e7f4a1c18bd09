// Package source_resolver turns user links into queue entries and, at play
// time, turns aggregator entries into playable primary-platform links.
package source_resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/sources"
)

type SourceResolver struct {
	sources  []sources.Source
	searcher sources.Searcher
	log      zerolog.Logger
}

// New builds a resolver. Sources are tried in order; searcher serves the
// play-time lookup of aggregator entries.
func New(searcher sources.Searcher, log zerolog.Logger, srcs ...sources.Source) *SourceResolver {
	return &SourceResolver{
		sources:  srcs,
		searcher: searcher,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

// Classify returns the first source that recognises rawURL.
func (r *SourceResolver) Classify(rawURL string) (sources.Source, sources.Kind) {
	for _, s := range r.sources {
		if k := s.Classify(rawURL); k != sources.KindInvalid {
			return s, k
		}
	}
	return nil, sources.KindInvalid
}

// Resolve turns a link into entries ready to be appended.
func (r *SourceResolver) Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	rawURL = strings.TrimSpace(rawURL)
	src, kind := r.Classify(rawURL)
	if src == nil {
		return nil, fmt.Errorf("%w: %q", music.ErrInvalidURL, rawURL)
	}

	entries, err := src.Resolve(ctx, rawURL)
	if err != nil {
		r.log.Warn().Err(err).Str("source", src.Name()).Str("url", rawURL).Msg("lookup failed")
		if err := music.Timeout(ctx, err); errors.Is(err, music.ErrResolutionTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", music.ErrInvalidURL, music.Provider(src.Name(), "resolve", err))
	}
	if kind == sources.KindTrack && len(entries) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d entries for a single track", music.ErrInvalidURL, src.Name(), len(entries))
	}

	r.log.Debug().Str("source", src.Name()).Str("kind", kind.String()).Int("entries", len(entries)).Msg("resolved")
	return entries, nil
}

// ResolvePlayable returns e with a streamable URL. Primary entries come back
// unchanged; aggregator entries take the top search hit.
func (r *SourceResolver) ResolvePlayable(ctx context.Context, e queue.Entry) (queue.Entry, error) {
	if !e.NeedsLookup() {
		return e, nil
	}
	if r.searcher == nil {
		return e, music.Provider("search", "lookup", sources.ErrNoSearchResults)
	}

	query := e.SearchQuery()
	results, err := r.searcher.Search(ctx, query, 1)
	if err != nil {
		return e, music.Timeout(ctx, music.Provider("search", "lookup", err))
	}
	if len(results) == 0 {
		return e, music.Provider("search", "lookup", fmt.Errorf("%w for %q", sources.ErrNoSearchResults, query))
	}

	r.log.Debug().Str("query", query).Str("match", results[0].URL).Msg("aggregator entry matched")
	e.URL = results[0].URL
	e.Resolved = true
	return e, nil
}
