package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLPOpener asks yt-dlp for the best audio-only format URL.
type YTDLPOpener struct {
	Proxy string
}

func (o *YTDLPOpener) Name() string { return "ytdlp" }

func (o *YTDLPOpener) Open(ctx context.Context, url string) (*Stream, error) {
	cmd := ytdlp.New().
		Format("bestaudio/best").
		Print("%(url)s\t%(ext)s\t%(acodec)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig()
	if o.Proxy != "" {
		cmd.Proxy(o.Proxy)
	}

	res, err := cmd.Run(ctx, "--skip-download", url)
	if err != nil {
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			return nil, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	if res == nil {
		return nil, errors.New("yt-dlp: empty result")
	}

	link, container, err := parseFormatLine(res.Stdout)
	if err != nil {
		return nil, err
	}

	pcm, err := decode(link)
	if err != nil {
		return nil, err
	}
	return &Stream{ReadCloser: pcm, Container: container, Opener: o.Name()}, nil
}

// parseFormatLine reads "url\text\tacodec" and returns the link and a
// container description such as "audio/webm; codecs=opus".
func parseFormatLine(out string) (string, string, error) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) == 0 || !strings.HasPrefix(parts[0], "http") {
			continue
		}
		container := ""
		if len(parts) >= 2 && parts[1] != "NA" {
			container = "audio/" + parts[1]
			if len(parts) >= 3 && parts[2] != "NA" && parts[2] != "none" {
				container += "; codecs=" + parts[2]
			}
		}
		return parts[0], container, nil
	}
	return "", "", errors.New("yt-dlp returned no stream url")
}
