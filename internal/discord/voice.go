package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/stream"
)

var errConnClosed = errors.New("voice connection closed")

// voiceTransport joins voice channels through the gateway session and routes
// the bot's own voice state updates to the matching connection.
type voiceTransport struct {
	dg  *discordgo.Session
	log zerolog.Logger

	mu    sync.Mutex
	conns map[string]*voiceConn // by guild
}

func newVoiceTransport(dg *discordgo.Session, log zerolog.Logger) *voiceTransport {
	return &voiceTransport{
		dg:    dg,
		log:   log.With().Str("component", "voice").Logger(),
		conns: make(map[string]*voiceConn),
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

func (t *voiceTransport) Join(ctx context.Context, guildID, channelID string) (session.Connection, error) {
	// ChannelVoiceJoin has its own handshake timeout but takes no context.
	done := make(chan joinResult, 1)
	go func() {
		vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- joinResult{vc, err}
	}()

	var res joinResult
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.vc != nil {
				_ = late.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		if res.vc != nil {
			_ = res.vc.Disconnect()
		}
		return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, res.err)
	}

	c := &voiceConn{
		transport: t,
		vc:        res.vc,
		guildID:   guildID,
		channelID: channelID,
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

// onVoiceStateUpdate watches the bot being disconnected or moved.
func (t *voiceTransport) onVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vsu.UserID != s.State.User.ID {
		return
	}
	t.mu.Lock()
	c := t.conns[vsu.GuildID]
	t.mu.Unlock()
	if c == nil {
		return
	}

	if vsu.ChannelID == "" {
		t.log.Info().Str("guild", vsu.GuildID).Msg("bot was disconnected from voice")
		c.emit(session.ConnDisconnected)
		return
	}
	c.setChannel(vsu.ChannelID)
}

func (t *voiceTransport) forget(c *voiceConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.guildID] == c {
		delete(t.conns, c.guildID)
	}
}

type voiceConn struct {
	transport *voiceTransport
	vc        *discordgo.VoiceConnection
	guildID   string
	events    chan session.ConnEvent
	closed    chan struct{}

	mu        sync.Mutex
	channelID string
	destroyed bool
}

func (c *voiceConn) Send(ctx context.Context, frame []byte) error {
	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *voiceConn) Speaking(on bool) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	return c.vc.Speaking(on)
}

func (c *voiceConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *voiceConn) Events() <-chan session.ConnEvent { return c.events }

func (c *voiceConn) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	close(c.closed)
	close(c.events)
	c.mu.Unlock()

	c.transport.forget(c)
	return c.vc.Disconnect()
}

// emit never blocks; one pending event is enough to tear the session down.
func (c *voiceConn) emit(ev session.ConnEvent) {
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

func (c *voiceConn) setChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = channelID
}

// newOpusEncoder encodes 20ms stereo frames for the voice gateway.
func newOpusEncoder() (player.Encoder, error) {
	enc, err := opus.NewEncoder(stream.SampleRate, stream.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(128000); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
	}
	return enc, nil
}
