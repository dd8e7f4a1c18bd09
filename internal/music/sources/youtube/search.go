package youtube

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/sources"
)

// FallbackSearcher asks each backend in turn and returns the first non-empty answer.
type FallbackSearcher struct {
	Backends []sources.Searcher
	Log      zerolog.Logger
}

func (f *FallbackSearcher) Search(ctx context.Context, query string, limit int) ([]sources.SearchResult, error) {
	var errs []error
	for i, b := range f.Backends {
		results, err := b.Search(ctx, query, limit)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err == nil {
			err = sources.ErrNoSearchResults
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		f.Log.Debug().Err(err).Int("backend", i).Str("query", query).Msg("search backend failed, trying next")
	}
	if len(errs) == 0 {
		return nil, sources.ErrNoSearchResults
	}
	return nil, errors.Join(errs...)
}
