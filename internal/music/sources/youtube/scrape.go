package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/keshon/jukebox/internal/music/sources"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

var (
	resultPattern = regexp.MustCompile(`"videoRenderer":\{"videoId":"([a-zA-Z0-9_-]{11})"`)
	titlePattern  = regexp.MustCompile(`"title":\{"runs":\[\{"text":"((?:[^"\\]|\\.)*)"`)
)

// ScrapeSearcher searches by reading the public results page. It needs no
// external tools and serves as the fallback backend.
type ScrapeSearcher struct {
	BaseURL string
	Client  *http.Client
	limiter *retrylimit.Limiter
}

func NewScrapeSearcher(client *http.Client) *ScrapeSearcher {
	return &ScrapeSearcher{
		BaseURL: "https://www.youtube.com",
		Client:  client,
		limiter: retrylimit.NewLimiter(retrylimit.LimiterConfig{Initial: 2, Min: 1, Max: 5}),
	}
}

func (r *ScrapeSearcher) Search(ctx context.Context, query string, limit int) ([]sources.SearchResult, error) {
	if limit <= 0 {
		limit = 1
	}
	searchURL := fmt.Sprintf("%s/results?search_query=%s", r.BaseURL, url.QueryEscape(query))

	var body []byte
	err := retrylimit.Do(ctx, r.limiter, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return retrylimit.Permanent(err)
		}
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := r.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return retrylimit.WithStatus(resp.StatusCode, fmt.Errorf("search returned %s", resp.Status))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	return parseResults(string(body), limit), nil
}

// parseResults pulls video ids and titles out of a results page, in page order.
func parseResults(page string, limit int) []sources.SearchResult {
	seen := make(map[string]struct{})
	var out []sources.SearchResult
	for _, loc := range resultPattern.FindAllStringSubmatchIndex(page, -1) {
		id := page[loc[2]:loc[3]]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		res := sources.SearchResult{URL: WatchURL(id)}
		if m := titlePattern.FindStringSubmatch(page[loc[1]:]); m != nil {
			res.Title = m[1]
		}
		out = append(out, res)
		if len(out) == limit {
			break
		}
	}
	return out
}
