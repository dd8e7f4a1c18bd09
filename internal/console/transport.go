package console

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/jukebox/internal/music/session"
)

// frameInterval is the duration of one Opus frame.
const frameInterval = 20 * time.Millisecond

var errConnClosed = errors.New("console connection closed")

// Transport is a voice transport without a speaker: it paces frames in real
// time and throws them away.
type Transport struct {
	interval time.Duration

	mu    sync.Mutex
	conns map[string]*conn
}

func NewTransport() *Transport {
	return &Transport{interval: frameInterval, conns: make(map[string]*conn)}
}

func (t *Transport) Join(_ context.Context, guildID, channelID string) (session.Connection, error) {
	c := &conn{
		transport: t,
		guildID:   guildID,
		channelID: channelID,
		ticker:    time.NewTicker(t.interval),
		events:    make(chan session.ConnEvent, 1),
		closed:    make(chan struct{}),
	}
	t.mu.Lock()
	prev := t.conns[guildID]
	t.conns[guildID] = c
	t.mu.Unlock()
	if prev != nil {
		prev.emit(session.ConnDestroyed)
	}
	return c, nil
}

// Kick simulates the bot being thrown out of voice.
func (t *Transport) Kick(guildID string) bool {
	t.mu.Lock()
	c := t.conns[guildID]
	t.mu.Unlock()
	if c == nil {
		return false
	}
	c.emit(session.ConnDisconnected)
	return true
}

// Frames returns how many frames the guild's connection has taken so far.
func (t *Transport) Frames(guildID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c := t.conns[guildID]; c != nil {
		return c.frames.Load()
	}
	return 0
}

func (t *Transport) forget(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.guildID] == c {
		delete(t.conns, c.guildID)
	}
}

type conn struct {
	transport *Transport
	guildID   string
	channelID string
	ticker    *time.Ticker
	events    chan session.ConnEvent
	closed    chan struct{}
	frames    atomic.Int64

	mu        sync.Mutex
	destroyed bool
}

func (c *conn) Send(ctx context.Context, _ []byte) error {
	select {
	case <-c.ticker.C:
		c.frames.Add(1)
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Speaking(bool) error              { return nil }
func (c *conn) ChannelID() string                { return c.channelID }
func (c *conn) Events() <-chan session.ConnEvent { return c.events }

func (c *conn) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.ticker.Stop()
	close(c.closed)
	close(c.events)
	c.mu.Unlock()

	c.transport.forget(c)
	return nil
}

func (c *conn) emit(ev session.ConnEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
