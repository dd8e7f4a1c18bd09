// Package player pumps PCM audio through an Opus encoder into a voice sink.
//
// A Player plays one source at a time. When a source runs out by itself the
// player reports an EndEvent; sources replaced by Play or cut by Stop end
// silently.
package player

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/stream"
)

const (
	frameBytes   = stream.FrameSize * stream.Channels * 2
	maxOpusFrame = 4000
)

var ErrNoSink = errors.New("player has no voice sink")

// Sink receives encoded Opus frames. Send blocks at the sink's pace.
type Sink interface {
	Send(ctx context.Context, frame []byte) error
	Speaking(on bool) error
}

// Encoder turns one interleaved PCM frame into Opus.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

type EncoderFactory func() (Encoder, error)

// EndEvent tells that playback with Token stopped on its own. Err is nil
// when the source was fully played.
type EndEvent struct {
	Token uint64
	Err   error
}

type Player struct {
	mu         sync.Mutex
	sink       Sink
	newEncoder EncoderFactory
	onEnd      func(EndEvent)
	log        zerolog.Logger

	token  uint64
	cancel context.CancelFunc
	src    io.Closer
	done   chan struct{}
}

// New creates an idle player. onEnd runs on its own goroutine.
func New(newEncoder EncoderFactory, onEnd func(EndEvent), log zerolog.Logger) *Player {
	return &Player{
		newEncoder: newEncoder,
		onEnd:      onEnd,
		log:        log.With().Str("component", "player").Logger(),
	}
}

// Subscribe attaches the player to a sink. It takes effect on the next Play.
func (p *Player) Subscribe(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// Play stops whatever is playing and starts src. The returned token
// identifies this playback in EndEvents.
func (p *Player) Play(src io.ReadCloser) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.token++
	token := p.token
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.src, p.done = cancel, src, done

	go p.run(ctx, token, src, p.sink, done)
	return token
}

// Stop cuts the current playback without an EndEvent and waits for it to wind down.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Playing reports whether a source is being played.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Player) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	// closing the source unblocks a pending read
	_ = p.src.Close()
	<-p.done
	p.cancel, p.src, p.done = nil, nil, nil
}

func (p *Player) run(ctx context.Context, token uint64, src io.ReadCloser, sink Sink, done chan struct{}) {
	defer close(done)
	defer src.Close()

	err := p.pump(ctx, src, sink)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Uint64("token", token).Msg("playback ended with error")
	} else {
		p.log.Debug().Uint64("token", token).Msg("playback finished")
	}
	if p.onEnd != nil {
		go p.onEnd(EndEvent{Token: token, Err: err})
	}
}

func (p *Player) pump(ctx context.Context, src io.Reader, sink Sink) error {
	if sink == nil {
		return ErrNoSink
	}
	enc, err := p.newEncoder()
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	if err := sink.Speaking(true); err != nil {
		p.log.Debug().Err(err).Msg("speaking on")
	}
	defer func() {
		if err := sink.Speaking(false); err != nil {
			p.log.Debug().Err(err).Msg("speaking off")
		}
	}()

	pcm := make([]byte, frameBytes)
	samples := make([]int16, stream.FrameSize*stream.Channels)
	out := make([]byte, maxOpusFrame)

	for {
		n, err := io.ReadFull(src, pcm)
		last := false
		switch {
		case err == io.EOF:
			return nil
		case err == io.ErrUnexpectedEOF:
			clear(pcm[n:])
			last = true
		case err != nil:
			return fmt.Errorf("read pcm: %w", err)
		}

		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		}
		size, err := enc.Encode(samples, out)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}

		// the sink may hold on to the frame, so each one gets its own buffer
		frame := make([]byte, size)
		copy(frame, out[:size])
		if err := sink.Send(ctx, frame); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if last {
			return nil
		}
	}
}
