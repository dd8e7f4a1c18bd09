package dispatcher

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/stream"
)

const (
	guildID = "200000000000000001"
	userID  = "300000000000000001"
)

type voiceMap struct {
	channels map[string]string
	joinable bool
	err      error
}

func (v *voiceMap) UserVoiceChannel(_, userID string) (string, error) {
	return v.channels[userID], v.err
}

func (v *voiceMap) CanJoin(string, string) (bool, error) { return v.joinable, nil }

// linkResolver knows a fixed set of links.
type linkResolver struct {
	links map[string][]queue.Entry
	err   error
}

func (r *linkResolver) Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	entries, ok := r.links[rawURL]
	if !ok {
		return nil, music.ErrInvalidURL
	}
	out := make([]queue.Entry, len(entries))
	for i, e := range entries {
		out[i] = queue.NewEntry(e.URL, e.Title, e.Kind)
	}
	return out, nil
}

type conn struct {
	events chan session.ConnEvent
	once   sync.Once
}

func (c *conn) Send(ctx context.Context, _ []byte) error { return ctx.Err() }
func (c *conn) Speaking(bool) error                      { return nil }
func (c *conn) ChannelID() string                        { return "voice" }
func (c *conn) Events() <-chan session.ConnEvent         { return c.events }
func (c *conn) Destroy() error {
	c.once.Do(func() { close(c.events) })
	return nil
}

type transport struct{}

func (transport) Join(context.Context, string, string) (session.Connection, error) {
	return &conn{events: make(chan session.ConnEvent, 1)}, nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
	token  uint64
}

func (p *recordingPlayer) Subscribe(player.Sink) {}
func (p *recordingPlayer) Stop()                 {}

func (p *recordingPlayer) Play(src io.ReadCloser) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token++
	p.played = append(p.played, src.(*stream.Stream).Opener)
	return p.token
}

func (p *recordingPlayer) plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type passthrough struct{}

func (passthrough) ResolvePlayable(_ context.Context, e queue.Entry) (queue.Entry, error) {
	return e, nil
}

type opener struct{ fail bool }

func (o opener) Open(_ context.Context, url string) (*stream.Stream, error) {
	if o.fail {
		return nil, errors.New("403 forbidden")
	}
	return &stream.Stream{ReadCloser: io.NopCloser(strings.NewReader("")), Opener: url}, nil
}

type fixture struct {
	d      *Dispatcher
	reg    *session.Registry
	voice  *voiceMap
	links  *linkResolver
	player *recordingPlayer
}

func newFixture(t *testing.T, open opener) *fixture {
	t.Helper()
	f := &fixture{
		voice:  &voiceMap{channels: map[string]string{userID: "voice"}, joinable: true},
		player: &recordingPlayer{},
		links: &linkResolver{links: map[string][]queue.Entry{
			"https://video/abc": {{URL: "https://video/abc", Title: "Song A"}},
			"https://video/playlist": {
				{URL: "https://video/p1", Title: "Playlist 1"},
				{URL: "https://video/p2", Title: "Playlist 2"},
				{URL: "https://video/p3", Title: "Playlist 3"},
			},
		}},
	}
	cfg := session.DefaultConfig()
	cfg.PlayRetries = 0
	f.reg = session.NewRegistry(cfg, session.Deps{
		Transport: transport{},
		NewPlayer: func(func(player.EndEvent)) session.AudioPlayer { return f.player },
		Resolver:  passthrough{},
		Opener:    open,
		Log:       zerolog.Nop(),
	})
	t.Cleanup(f.reg.Shutdown)
	f.d = New(f.reg, f.links, f.voice, Config{EnqueueTimeout: time.Second, StartWait: time.Second}, zerolog.Nop())
	return f
}

func (f *fixture) run(name string, req Request) Reply {
	req.GuildID = guildID
	req.ChannelID = "text"
	if req.UserID == "" {
		req.UserID = userID
	}
	return f.d.Dispatch(context.Background(), name, req)
}

func TestScenario(t *testing.T) {
	f := newFixture(t, opener{})

	if r := f.run(CmdPlay, Request{URL: "https://video/abc"}); r.Err != nil || r.Content != "Added Song A to the queue!" {
		t.Fatalf("play = %+v", r)
	}
	if r := f.run(CmdCurrent, Request{}); r.Content != "Song A" {
		t.Fatalf("current = %+v", r)
	}

	if r := f.run(CmdPlay, Request{URL: "https://video/playlist"}); r.Content != "Added 3 song(s) to the queue!" {
		t.Fatalf("play playlist = %+v", r)
	}
	want := "1. Song A\n2. Playlist 1\n3. Playlist 2\n4. Playlist 3"
	if r := f.run(CmdList, Request{Page: 1}); r.Content != want {
		t.Fatalf("list = %q, want %q", r.Content, want)
	}

	if r := f.run(CmdSkip, Request{}); r.Content != "Skipped Song A" {
		t.Fatalf("skip = %+v", r)
	}
	if r := f.run(CmdCurrent, Request{}); r.Content != "Playlist 1" {
		t.Fatalf("current after skip = %+v", r)
	}
	if got := f.player.plays(); len(got) != 2 || got[1] != "https://video/p1" {
		t.Fatalf("plays = %v", got)
	}

	if r := f.run(CmdStop, Request{}); r.Content != "Stopped the music!" {
		t.Fatalf("stop = %+v", r)
	}
	r := f.run(CmdCurrent, Request{})
	if !errors.Is(r.Err, music.ErrEmptyQueue) || !r.Ephemeral {
		t.Fatalf("current after stop = %+v", r)
	}
	if r.Content != "There are no songs in the queue!" {
		t.Errorf("content = %q", r.Content)
	}
}

func TestSkipToPosition(t *testing.T) {
	f := newFixture(t, opener{})
	f.run(CmdPlay, Request{URL: "https://video/playlist"})

	if r := f.run(CmdSkip, Request{Number: 7}); !errors.Is(r.Err, music.ErrOutOfRange) {
		t.Fatalf("skip 7 = %+v", r)
	}
	if r := f.run(CmdSkip, Request{Number: 3}); r.Content != "Skipped Playlist 1" {
		t.Fatalf("skip 3 = %+v", r)
	}
	if r := f.run(CmdList, Request{}); r.Content != "1. Playlist 3" {
		t.Fatalf("list = %q", r.Content)
	}
}

func TestSkipOneDropsHead(t *testing.T) {
	f := newFixture(t, opener{})
	f.run(CmdPlay, Request{URL: "https://video/playlist"})

	if r := f.run(CmdSkip, Request{Number: 1}); r.Err != nil || r.Content != "Skipped Playlist 1" {
		t.Fatalf("skip 1 = %+v", r)
	}
	if r := f.run(CmdList, Request{}); r.Content != "1. Playlist 2\n2. Playlist 3" {
		t.Fatalf("list = %q", r.Content)
	}
	if got := f.player.plays(); len(got) != 2 || got[1] != "https://video/p2" {
		t.Fatalf("plays = %v", got)
	}
}

func TestShuffleKeepsHead(t *testing.T) {
	f := newFixture(t, opener{})
	f.run(CmdPlay, Request{URL: "https://video/abc"})
	f.run(CmdPlay, Request{URL: "https://video/playlist"})

	if r := f.run(CmdShuffle, Request{}); r.Content != "Shuffled the queue!" {
		t.Fatalf("shuffle = %+v", r)
	}
	r := f.run(CmdList, Request{})
	if !strings.HasPrefix(r.Content, "1. Song A\n") || strings.Count(r.Content, "\n") != 3 {
		t.Errorf("list after shuffle = %q", r.Content)
	}
}

func TestErrors(t *testing.T) {
	f := newFixture(t, opener{})

	tests := []struct {
		name    string
		command string
		req     Request
		setup   func()
		want    error
	}{
		{name: "not in voice", command: CmdPlay, req: Request{UserID: "1", URL: "https://video/abc"}, want: music.ErrNotInVoiceChannel},
		{name: "list needs voice", command: CmdList, req: Request{UserID: "1"}, want: music.ErrNotInVoiceChannel},
		{name: "not joinable", command: CmdPlay, req: Request{URL: "https://video/abc"}, setup: func() { f.voice.joinable = false }, want: music.ErrNotJoinable},
		{name: "invalid url", command: CmdPlay, req: Request{URL: "https://example.com/x"}, want: music.ErrInvalidURL},
		{name: "empty url", command: CmdPlay, req: Request{}, want: music.ErrInvalidURL},
		{name: "skip empty", command: CmdSkip, want: music.ErrEmptyQueue},
		{name: "stop empty", command: CmdStop, want: music.ErrEmptyQueue},
		{name: "list empty", command: CmdList, want: music.ErrEmptyQueue},
		{name: "shuffle empty", command: CmdShuffle, want: music.ErrEmptyQueue},
		{name: "current empty", command: CmdCurrent, want: music.ErrEmptyQueue},
		{name: "unknown", command: "loop", want: ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.voice.joinable = true
			if tt.setup != nil {
				tt.setup()
			}
			r := f.run(tt.command, tt.req)
			if !errors.Is(r.Err, tt.want) {
				t.Fatalf("err = %v, want %v", r.Err, tt.want)
			}
			if !r.Ephemeral || r.Content == "" {
				t.Errorf("reply = %+v, want ephemeral diagnostic", r)
			}
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	f := newFixture(t, opener{})
	f.links.err = context.DeadlineExceeded

	r := f.run(CmdPlay, Request{URL: "https://video/abc"})
	if !errors.Is(r.Err, music.ErrResolutionTimeout) {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestPlayReportsFailedStart(t *testing.T) {
	f := newFixture(t, opener{fail: true})

	r := f.run(CmdPlay, Request{URL: "https://video/abc"})
	if r.Err != nil || r.Ephemeral {
		t.Fatalf("play = %+v, entries were queued so the reply is not an error", r)
	}
	if !strings.HasPrefix(r.Content, "Added Song A to the queue!\nstream failed") {
		t.Errorf("content = %q", r.Content)
	}
}

func TestRepliesAreTruncated(t *testing.T) {
	f := newFixture(t, opener{})
	long := strings.Repeat("x", 3000)
	f.links.links["https://video/long"] = []queue.Entry{{URL: "https://video/long", Title: long}}

	r := f.run(CmdPlay, Request{URL: "https://video/long"})
	if n := len([]rune(r.Content)); n != music.MaxMessageLength {
		t.Errorf("reply length = %d", n)
	}
}
