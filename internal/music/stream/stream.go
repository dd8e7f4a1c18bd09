// Package stream opens playable audio for a link: raw PCM s16le, 48 kHz,
// stereo, decoded by ffmpeg.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

const (
	Channels   = 2
	SampleRate = 48000
	FrameSize  = 960 // 20ms at 48kHz
)

// Stream is an open PCM handle plus what it was decoded from.
type Stream struct {
	io.ReadCloser
	// Container is the media type of the upstream source, e.g. "audio/webm; codecs=opus".
	Container string
	// Opener names the backend that produced the stream.
	Opener string
}

// Opener turns a link into a Stream.
type Opener interface {
	Name() string
	Open(ctx context.Context, url string) (*Stream, error)
}

// Chain tries each opener in order until one succeeds.
type Chain struct {
	Openers []Opener
	Log     zerolog.Logger
}

func (c *Chain) Open(ctx context.Context, url string) (*Stream, error) {
	if len(c.Openers) == 0 {
		return nil, errors.New("no stream openers configured")
	}

	var errs []error
	for _, o := range c.Openers {
		s, err := o.Open(ctx, url)
		if err == nil {
			c.Log.Debug().Str("opener", o.Name()).Str("container", s.Container).Str("url", url).Msg("stream opened")
			return s, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.Log.Warn().Err(err).Str("opener", o.Name()).Str("url", url).Msg("opener failed, trying next")
	}
	return nil, errors.Join(errs...)
}
