// Package backend assembles the link resolver and the stream openers from
// configuration. Both front ends share it.
package backend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/music/source_resolver"
	"github.com/keshon/jukebox/internal/music/sources"
	"github.com/keshon/jukebox/internal/music/sources/spotify"
	"github.com/keshon/jukebox/internal/music/sources/youtube"
	"github.com/keshon/jukebox/internal/music/stream"
)

type Backend struct {
	Resolver *source_resolver.SourceResolver
	Opener   *stream.Chain
}

// New wires YouTube (always) and Spotify (when credentials are set). The
// configured search backend is asked first and the other one is the fallback.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) *Backend {
	httpClient := youtube.NewHTTPClient(cfg.YouTubeProxy, log)
	ytClient := youtube.NewClient(httpClient)

	ytdlpSearch := &youtube.YTDLPSearcher{Proxy: cfg.YouTubeProxy}
	scrapeSearch := youtube.NewScrapeSearcher(httpClient)
	searchers := []sources.Searcher{ytdlpSearch, scrapeSearch}
	if cfg.SearchBackend == config.SearchScrape {
		searchers = []sources.Searcher{scrapeSearch, ytdlpSearch}
	}
	searcher := &youtube.FallbackSearcher{Backends: searchers, Log: log}

	srcs := []sources.Source{youtube.New(ytClient)}
	if cfg.SpotifyEnabled() {
		srcs = append(srcs, spotify.New(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyMarket))
	} else {
		log.Info().Msg("spotify credentials not set, spotify links are disabled")
	}

	return &Backend{
		Resolver: source_resolver.New(searcher, log, srcs...),
		Opener: &stream.Chain{
			Openers: []stream.Opener{
				&stream.KKDAIOpener{Client: ytClient},
				&stream.YTDLPOpener{Proxy: cfg.YouTubeProxy},
			},
			Log: log.With().Str("component", "stream").Logger(),
		},
	}
}
