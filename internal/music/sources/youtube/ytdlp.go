package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/keshon/jukebox/internal/music/sources"
)

// YTDLPSearcher searches through the yt-dlp "ytsearch" extractor.
type YTDLPSearcher struct {
	Proxy string
}

func (s *YTDLPSearcher) Search(ctx context.Context, query string, limit int) ([]sources.SearchResult, error) {
	if limit <= 0 {
		limit = 1
	}
	cmd := ytdlp.New().
		FlatPlaylist().
		Print("%(id)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig()
	if s.Proxy != "" {
		cmd.Proxy(s.Proxy)
	}

	res, err := cmd.Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			return nil, fmt.Errorf("yt-dlp search: %w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	if res == nil {
		return nil, errors.New("yt-dlp search: empty result")
	}
	return parseSearchLines(res.Stdout), nil
}

// parseSearchLines reads "id\ttitle\tuploader\tduration" lines.
func parseSearchLines(out string) []sources.SearchResult {
	var results []sources.SearchResult
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 4 || !videoIDPattern.MatchString(parts[0]) {
			continue
		}
		d, _ := time.ParseDuration(parts[3] + "s")
		results = append(results, sources.SearchResult{
			URL:      WatchURL(parts[0]),
			Title:    parts[1],
			Channel:  parts[2],
			Duration: d,
		})
	}
	return results
}
