package stream

import (
	"context"
	"errors"
	"fmt"

	youtube "github.com/kkdai/youtube/v2"

	yt "github.com/keshon/jukebox/internal/music/sources/youtube"
)

// KKDAIOpener reads the stream URL out of the YouTube player response.
type KKDAIOpener struct {
	Client *youtube.Client
}

func (o *KKDAIOpener) Name() string { return "kkdai" }

func (o *KKDAIOpener) Open(ctx context.Context, url string) (*Stream, error) {
	id := yt.VideoID(url)
	if id == "" {
		return nil, fmt.Errorf("not a YouTube video link: %q", url)
	}

	video, err := o.Client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}

	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return nil, errors.New("no audio formats found for video")
	}
	format := formats[0]

	link, err := o.Client.GetStreamURLContext(ctx, video, &format)
	if err != nil {
		return nil, fmt.Errorf("get stream url: %w", err)
	}

	pcm, err := decode(link)
	if err != nil {
		return nil, err
	}
	return &Stream{ReadCloser: pcm, Container: format.MimeType, Opener: o.Name()}, nil
}
