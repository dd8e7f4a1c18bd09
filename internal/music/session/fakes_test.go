package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/stream"
)

type fakeConn struct {
	channelID string
	events    chan ConnEvent

	mu        sync.Mutex
	destroyed bool
}

func newFakeConn(channelID string) *fakeConn {
	return &fakeConn{channelID: channelID, events: make(chan ConnEvent, 4)}
}

func (c *fakeConn) Send(ctx context.Context, frame []byte) error { return ctx.Err() }
func (c *fakeConn) Speaking(bool) error                          { return nil }
func (c *fakeConn) ChannelID() string                            { return c.channelID }
func (c *fakeConn) Events() <-chan ConnEvent                     { return c.events }

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.destroyed {
		c.destroyed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// emit simulates the transport reporting an event.
func (c *fakeConn) emit(ev ConnEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.destroyed {
		c.events <- ev
	}
}

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (t *fakeTransport) Join(_ context.Context, _, channelID string) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	c := newFakeConn(channelID)
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) joins() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakePlayer struct {
	mu     sync.Mutex
	onEnd  func(player.EndEvent)
	token  uint64
	played []string
	stops  int
}

func (p *fakePlayer) Subscribe(player.Sink) {}

func (p *fakePlayer) Play(src io.ReadCloser) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token++
	p.played = append(p.played, src.(*stream.Stream).Opener)
	return p.token
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *fakePlayer) current() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// finish reports that the latest playback ran out.
func (p *fakePlayer) finish() {
	p.onEnd(player.EndEvent{Token: p.current()})
}

func (p *fakePlayer) finishToken(token uint64) {
	p.onEnd(player.EndEvent{Token: token})
}

// fakeResolver blocks on titles prefixed with "slow" until the context ends.
type fakeResolver struct{}

func (fakeResolver) ResolvePlayable(ctx context.Context, e queue.Entry) (queue.Entry, error) {
	if strings.HasPrefix(e.Title, "slow") {
		<-ctx.Done()
		return e, ctx.Err()
	}
	if e.NeedsLookup() {
		e.URL = "https://youtu.be/" + e.Title
		e.Resolved = true
	}
	return e, nil
}

// fakeOpener fails a URL as many times as failures[url] says. The stream's
// Opener field carries the URL so the player fake can record it.
type fakeOpener struct {
	mu       sync.Mutex
	failures map[string]int
	opened   []string
}

func (o *fakeOpener) Open(_ context.Context, url string) (*stream.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures[url] > 0 {
		o.failures[url]--
		return nil, errors.New("http 403")
	}
	o.opened = append(o.opened, url)
	return &stream.Stream{ReadCloser: io.NopCloser(strings.NewReader("")), Opener: url}, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

type event struct {
	kind  string
	title string
	err   error
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) NowPlaying(_, _ string, e queue.Entry) {
	n.add(event{kind: "playing", title: e.Title})
}

func (n *recordingNotifier) PlaybackFailed(_, _ string, e queue.Entry, err error) {
	n.add(event{kind: "failed", title: e.Title, err: err})
}

func (n *recordingNotifier) Closed(_, reason string) {
	n.add(event{kind: "closed", title: reason})
}

func (n *recordingNotifier) add(ev event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) find(kind string) []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []event
	for _, ev := range n.events {
		if ev.kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	reg       *Registry
	transport *fakeTransport
	player    *fakePlayer
	opener    *fakeOpener
	notifier  *recordingNotifier
}

func newHarness(cfg Config) *harness {
	h := &harness{
		transport: &fakeTransport{},
		player:    &fakePlayer{},
		opener:    &fakeOpener{failures: map[string]int{}},
		notifier:  &recordingNotifier{},
	}
	h.reg = NewRegistry(cfg, Deps{
		Transport: h.transport,
		NewPlayer: func(onEnd func(player.EndEvent)) AudioPlayer {
			h.player.onEnd = onEnd
			return h.player
		},
		Resolver: fakeResolver{},
		Opener:   h.opener,
		Notifier: h.notifier,
		Log:      zerolog.Nop(),
	})
	return h
}

func entry(title string) queue.Entry {
	return queue.NewEntry("https://youtu.be/"+title, title, queue.SourcePrimary)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func recv(t *testing.T, ch <-chan error) error {
	t.Helper()
	if ch == nil {
		t.Fatal("no start channel")
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("start outcome not delivered")
		return nil
	}
}
