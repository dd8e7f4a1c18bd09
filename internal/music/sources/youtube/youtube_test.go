package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	youtube "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/sources"
)

type fakeClient struct {
	video    *youtube.Video
	playlist *youtube.Playlist
	err      error
	gotURL   string
}

func (f *fakeClient) GetVideoContext(_ context.Context, url string) (*youtube.Video, error) {
	f.gotURL = url
	return f.video, f.err
}

func (f *fakeClient) GetPlaylistContext(_ context.Context, url string) (*youtube.Playlist, error) {
	f.gotURL = url
	return f.playlist, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want sources.Kind
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", sources.KindTrack},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123", sources.KindTrack},
		{"https://youtu.be/dQw4w9WgXcQ?t=10", sources.KindTrack},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", sources.KindTrack},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", sources.KindTrack},
		{"https://www.youtube.com/playlist?list=PLabc", sources.KindCollection},
		{"https://www.youtube.com/playlist", sources.KindInvalid},
		{"https://www.youtube.com/watch?v=short", sources.KindInvalid},
		{"https://example.com/watch?v=dQw4w9WgXcQ", sources.KindInvalid},
		{"never gonna give you up", sources.KindInvalid},
	}
	for _, tt := range tests {
		if got := classify(tt.url); got != tt.want {
			t.Errorf("classify(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestCleanVideoURL(t *testing.T) {
	got := CleanVideoURL("https://youtu.be/dQw4w9WgXcQ?si=abc")
	if got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("CleanVideoURL = %q", got)
	}
}

func TestResolveVideo(t *testing.T) {
	fc := &fakeClient{video: &youtube.Video{ID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up"}}
	src := newSource(fc)

	entries, err := src.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "Never Gonna Give You Up" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" || entries[0].ID == "" {
		t.Errorf("entry = %+v", entries[0])
	}
	if fc.gotURL != "dQw4w9WgXcQ" {
		t.Errorf("client asked for %q", fc.gotURL)
	}
}

func TestResolvePlaylistSkipsUntitled(t *testing.T) {
	fc := &fakeClient{playlist: &youtube.Playlist{Videos: []*youtube.PlaylistEntry{
		{ID: "aaaaaaaaaaa", Title: "One"},
		{ID: "bbbbbbbbbbb", Title: ""},
		{ID: "ccccccccccc", Title: "Three"},
		nil,
		{ID: "ddddddddddd", Title: "Four"},
	}}}
	src := newSource(fc)

	entries, err := src.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Title)
	}
	if len(got) != 3 || got[0] != "One" || got[1] != "Three" || got[2] != "Four" {
		t.Errorf("titles = %v", got)
	}
}

func TestResolveProviderError(t *testing.T) {
	src := newSource(&fakeClient{err: errors.New("video unavailable")})
	_, err := src.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	var pe *music.ExternalProviderError
	if !errors.As(err, &pe) || pe.Provider != sources.SourceYouTube {
		t.Fatalf("err = %v, want youtube provider error", err)
	}
}

func TestParseSearchLines(t *testing.T) {
	out := "dQw4w9WgXcQ\tNever Gonna Give You Up\tRick Astley\t213.0\nbroken line\nNA\tx\ty\tNA\n"
	results := parseSearchLines(out)
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].URL != WatchURL("dQw4w9WgXcQ") || results[0].Channel != "Rick Astley" || results[0].Duration.Seconds() != 213 {
		t.Errorf("result = %+v", results[0])
	}
}

func TestScrapeSearcher(t *testing.T) {
	page := `..."videoRenderer":{"videoId":"aaaaaaaaaaa","thumbnail":{},"title":{"runs":[{"text":"First hit"}]}...` +
		`"videoRenderer":{"videoId":"aaaaaaaaaaa"...` +
		`"videoRenderer":{"videoId":"bbbbbbbbbbb","title":{"runs":[{"text":"Second"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results" || r.URL.Query().Get("search_query") != "artist | song lyrics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	s := NewScrapeSearcher(srv.Client())
	s.BaseURL = srv.URL

	results, err := s.Search(context.Background(), "artist | song lyrics", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Title != "First hit" || results[1].URL != WatchURL("bbbbbbbbbbb") {
		t.Errorf("results = %+v", results)
	}
}

type stubSearcher struct {
	results []sources.SearchResult
	err     error
	calls   int
}

func (s *stubSearcher) Search(context.Context, string, int) ([]sources.SearchResult, error) {
	s.calls++
	return s.results, s.err
}

func TestFallbackSearcher(t *testing.T) {
	first := &stubSearcher{err: errors.New("yt-dlp missing")}
	second := &stubSearcher{results: []sources.SearchResult{{URL: "u"}}}
	f := &FallbackSearcher{Backends: []sources.Searcher{first, second}, Log: zerolog.Nop()}

	results, err := f.Search(context.Background(), "q", 1)
	if err != nil || len(results) != 1 {
		t.Fatalf("Search = %v, %v", results, err)
	}

	empty := &FallbackSearcher{Backends: []sources.Searcher{&stubSearcher{}}, Log: zerolog.Nop()}
	if _, err := empty.Search(context.Background(), "q", 1); !errors.Is(err, sources.ErrNoSearchResults) {
		t.Errorf("err = %v, want ErrNoSearchResults", err)
	}
}
