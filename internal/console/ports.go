package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/queue"
)

const (
	GuildID      = "100000000000000001"
	UserID       = "100000000000000002"
	VoiceChannel = "console"
)

// opusSilence is a single 20ms Opus silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type silentEncoder struct{}

func (silentEncoder) Encode(_ []int16, data []byte) (int, error) {
	return copy(data, opusSilence), nil
}

func NewEncoder() (player.Encoder, error) { return silentEncoder{}, nil }

// Locator puts the console user in the console voice channel.
type Locator struct{}

func (Locator) UserVoiceChannel(_, userID string) (string, error) {
	if userID != UserID {
		return "", nil
	}
	return VoiceChannel, nil
}

func (Locator) CanJoin(string, string) (bool, error) { return true, nil }

// Notifier prints playback progress.
type Notifier struct {
	mu  sync.Mutex
	Out io.Writer
}

func (n *Notifier) NowPlaying(_, _ string, e queue.Entry) {
	n.printf("🎶 Now playing: %s\n", e.DisplayTitle())
}

func (n *Notifier) PlaybackFailed(_, _ string, e queue.Entry, err error) {
	n.printf("⚠️ Skipped %s: %s\n", e.DisplayTitle(), music.UserMessage(err))
}

func (n *Notifier) Closed(_, reason string) {
	n.printf("left voice (%s)\n", reason)
}

func (n *Notifier) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.Out, format, args...)
}
