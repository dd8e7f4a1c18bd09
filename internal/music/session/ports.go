package session

import (
	"context"
	"io"

	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/stream"
)

// ConnEvent is a lifecycle change reported by a voice connection.
type ConnEvent int

const (
	// ConnDisconnected means the bot was kicked or moved out of the channel.
	ConnDisconnected ConnEvent = iota + 1
	// ConnDestroyed means the connection is gone for good.
	ConnDestroyed
)

func (e ConnEvent) String() string {
	switch e {
	case ConnDisconnected:
		return "disconnected"
	case ConnDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Connection is a joined voice channel.
type Connection interface {
	player.Sink
	ChannelID() string
	// Events is closed once the connection is destroyed. Sends on it must
	// not block the transport.
	Events() <-chan ConnEvent
	// Destroy leaves the channel. It is idempotent and does not emit events.
	Destroy() error
}

// Transport joins voice channels.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// AudioPlayer is satisfied by *player.Player.
type AudioPlayer interface {
	Subscribe(sink player.Sink)
	Play(src io.ReadCloser) uint64
	Stop()
}

// PlayerFactory creates the audio player of one session.
type PlayerFactory func(onEnd func(player.EndEvent)) AudioPlayer

// Resolver finishes the play-time lookup of an entry.
type Resolver interface {
	ResolvePlayable(ctx context.Context, e queue.Entry) (queue.Entry, error)
}

// StreamOpener produces the audio of a playable link.
type StreamOpener interface {
	Open(ctx context.Context, url string) (*stream.Stream, error)
}

// Notifier hears about playback progress. Calls are made outside the
// session lock.
type Notifier interface {
	NowPlaying(guildID, textChannelID string, e queue.Entry)
	PlaybackFailed(guildID, textChannelID string, e queue.Entry, err error)
	Closed(guildID, reason string)
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(string, string, queue.Entry)            {}
func (nopNotifier) PlaybackFailed(string, string, queue.Entry, error) {}
func (nopNotifier) Closed(string, string)                             {}
