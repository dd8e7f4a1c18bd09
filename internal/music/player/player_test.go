package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu       sync.Mutex
	frames   [][]byte
	speaking []bool
}

func (s *recordingSink) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return ctx.Err()
}

func (s *recordingSink) Speaking(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = append(s.speaking, on)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// copyEncoder writes the first sample's low byte so frames stay recognisable.
type copyEncoder struct{}

func (copyEncoder) Encode(pcm []int16, data []byte) (int, error) {
	data[0] = byte(pcm[0])
	return 1, nil
}

func newTestPlayer(events chan EndEvent) *Player {
	return New(func() (Encoder, error) { return copyEncoder{}, nil }, func(ev EndEvent) { events <- ev }, zerolog.Nop())
}

func frames(n int, partial int) []byte {
	buf := make([]byte, n*frameBytes+partial)
	for i := range n {
		buf[i*frameBytes] = byte(i + 1)
	}
	return buf
}

func waitEvent(t *testing.T, events chan EndEvent) EndEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no end event")
		return EndEvent{}
	}
}

func TestPlayToEnd(t *testing.T) {
	events := make(chan EndEvent, 1)
	p := newTestPlayer(events)
	sink := &recordingSink{}
	p.Subscribe(sink)

	token := p.Play(io.NopCloser(bytes.NewReader(frames(3, 100))))
	ev := waitEvent(t, events)

	if ev.Token != token || ev.Err != nil {
		t.Fatalf("event = %+v, token %d", ev, token)
	}
	// three full frames plus a padded partial one
	if sink.count() != 4 {
		t.Errorf("frames = %d, want 4", sink.count())
	}
	if sink.frames[0][0] != 1 || sink.frames[2][0] != 3 {
		t.Errorf("frames out of order: %v", sink.frames)
	}
	if len(sink.speaking) != 2 || !sink.speaking[0] || sink.speaking[1] {
		t.Errorf("speaking = %v", sink.speaking)
	}
	if p.Playing() {
		t.Error("player still playing after end")
	}
}

func TestStopIsSilent(t *testing.T) {
	events := make(chan EndEvent, 1)
	p := newTestPlayer(events)
	p.Subscribe(&recordingSink{})

	r, w := io.Pipe()
	p.Play(r)
	go func() { _, _ = w.Write(frames(1, 0)) }()

	deadline := time.Now().Add(time.Second)
	for !p.Playing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after Stop: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if p.Playing() {
		t.Error("Playing after Stop")
	}
}

func TestPlayReplacesSilently(t *testing.T) {
	events := make(chan EndEvent, 2)
	p := newTestPlayer(events)
	p.Subscribe(&recordingSink{})

	r, _ := io.Pipe()
	first := p.Play(r)
	second := p.Play(io.NopCloser(bytes.NewReader(frames(1, 0))))
	if second == first {
		t.Fatal("tokens must differ")
	}

	ev := waitEvent(t, events)
	if ev.Token != second {
		t.Errorf("event token = %d, want %d", ev.Token, second)
	}
}

func TestErrorsReported(t *testing.T) {
	events := make(chan EndEvent, 1)
	p := newTestPlayer(events)
	p.Play(io.NopCloser(bytes.NewReader(frames(1, 0))))
	if ev := waitEvent(t, events); !errors.Is(ev.Err, ErrNoSink) {
		t.Errorf("err = %v, want ErrNoSink", ev.Err)
	}

	broken := New(func() (Encoder, error) { return nil, errors.New("no libopus") }, func(ev EndEvent) { events <- ev }, zerolog.Nop())
	broken.Subscribe(&recordingSink{})
	broken.Play(io.NopCloser(bytes.NewReader(frames(1, 0))))
	if ev := waitEvent(t, events); ev.Err == nil {
		t.Error("encoder failure not reported")
	}
}
