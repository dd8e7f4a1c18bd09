package stream

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpegPath is the binary used to decode links.
var FFmpegPath = "ffmpeg"

func ffmpegArgs(link string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", link,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	}
}

// decode starts ffmpeg on link. The process lives until the returned reader
// is closed; it is not bound to the lookup context.
func decode(link string) (io.ReadCloser, error) {
	cmd := exec.Command(FFmpegPath, ffmpegArgs(link)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	return &process{ReadCloser: out, cmd: cmd}, nil
}

type process struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *process) Close() error {
	p.once.Do(func() {
		_ = p.cmd.Process.Kill()
		_ = p.ReadCloser.Close()
		_ = p.cmd.Wait()
	})
	return nil
}
