// Package session owns the per-guild playback state: the queue, the voice
// connection and the audio player.
//
// Every command and every asynchronous player or connection event goes
// through the session mutex. Slow work (search, stream opening) runs in a
// named job outside the lock and is applied only if nothing changed in the
// meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/stream"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

// ErrClosed is returned by a session that has been torn down.
var ErrClosed = errors.New("session closed")

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

type Config struct {
	// ResolveTimeout bounds one attempt at looking up and opening the head.
	ResolveTimeout time.Duration
	// AutoAdvance plays the next entry when one finishes.
	AutoAdvance bool
	// LeaveOnEmpty disconnects once the queue runs dry.
	LeaveOnEmpty bool
	// PlayRetries is how many more times a failing entry is tried before it is skipped.
	PlayRetries int
	PageSize    int
}

func DefaultConfig() Config {
	return Config{
		ResolveTimeout: 20 * time.Second,
		AutoAdvance:    true,
		LeaveOnEmpty:   true,
		PlayRetries:    1,
		PageSize:       queue.DefaultPageSize,
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Transport Transport
	NewPlayer PlayerFactory
	Resolver  Resolver
	Opener    StreamOpener
	Notifier  Notifier
	Jobs      *jobmgr.Manager
	Log       zerolog.Logger
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	GuildID   string
	State     State
	ChannelID string
	Entries   []queue.Entry
}

type Session struct {
	mu      sync.Mutex
	guildID string
	cfg     Config
	deps    Deps
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queue         *queue.Queue
	state         State
	conn          Connection
	player        AudioPlayer
	textChannelID string

	// gen changes whenever the head is (re)started or playback is cut, so
	// late results of an older attempt can be told apart.
	gen       uint64
	playToken uint64
	resolving bool
	retired   bool
	onRetire  func(*Session)
}

func newSession(guildID string, cfg Config, deps Deps, onRetire func(*Session)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID:  guildID,
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log.With().Str("component", "session").Str("guild", guildID).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		queue:    queue.New(),
		onRetire: onRetire,
	}
}

func (s *Session) GuildID() string { return s.guildID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enqueue joins voiceChannelID if needed, appends entries and starts the
// head when nothing is playing. started, when not nil, receives the outcome
// of that first start.
func (s *Session) Enqueue(ctx context.Context, textChannelID, voiceChannelID string, entries []queue.Entry) (added int, started <-chan error, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return 0, nil, ErrClosed
	}
	if err := s.ensureConnectionLocked(ctx, voiceChannelID); err != nil {
		return 0, nil, err
	}

	s.queue.Append(entries...)
	if textChannelID != "" {
		s.textChannelID = textChannelID
	}
	s.log.Info().Int("added", len(entries)).Int("queue", s.queue.Len()).Msg("entries queued")

	if s.state == StatePlaying || s.resolving {
		return len(entries), nil, nil
	}
	return len(entries), s.playHeadLocked(), nil
}

// Skip drops the head (n <= 1) or jumps to 1-based position n, then plays
// the new head. The former head is returned.
func (s *Session) Skip(n int) (queue.Entry, <-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return queue.Entry{}, nil, ErrClosed
	}

	var (
		skipped queue.Entry
		err     error
	)
	if n <= 1 {
		skipped, err = s.queue.PopFront()
	} else {
		skipped, err = s.queue.SkipTo(n)
	}
	if err != nil {
		return queue.Entry{}, nil, err
	}
	s.log.Info().Str("skipped", skipped.DisplayTitle()).Int("queue", s.queue.Len()).Msg("skip")

	if s.queue.Len() == 0 {
		s.stopPlaybackLocked()
		s.idleLocked("skipped the last entry")
		return skipped, nil, nil
	}
	if s.conn == nil {
		return skipped, nil, nil
	}
	return skipped, s.playHeadLocked(), nil
}

// Stop clears the queue and leaves the voice channel. A session that stays
// connected with an empty queue can still be stopped.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired {
		return ErrClosed
	}
	if s.queue.Len() == 0 && s.conn == nil {
		return music.ErrEmptyQueue
	}
	s.teardownLocked("stopped")
	return nil
}

// Shutdown tears the session down regardless of its state.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.retired {
		s.teardownLocked("shutdown")
	}
}

// Current returns the head entry.
func (s *Session) Current() (queue.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	head, ok := s.queue.Head()
	if !ok {
		return queue.Entry{}, music.ErrEmptyQueue
	}
	return head, nil
}

// List renders one page of the queue.
func (s *Session) List(page int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.List(page, s.cfg.PageSize)
}

// Shuffle reorders everything but the head.
func (s *Session) Shuffle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return music.ErrEmptyQueue
	}
	s.queue.Shuffle()
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{GuildID: s.guildID, State: s.state, Entries: s.queue.Entries()}
	if s.conn != nil {
		snap.ChannelID = s.conn.ChannelID()
	}
	return snap
}

func (s *Session) ensureConnectionLocked(ctx context.Context, channelID string) error {
	if s.conn != nil {
		if s.conn.ChannelID() == channelID || s.state == StatePlaying || s.resolving {
			return nil
		}
		s.log.Info().Str("from", s.conn.ChannelID()).Str("to", channelID).Msg("switching voice channel")
		_ = s.conn.Destroy()
		s.conn = nil
	}

	s.state = StateConnecting
	conn, err := s.deps.Transport.Join(ctx, s.guildID, channelID)
	if err != nil {
		s.state = StateIdle
		return music.Provider("voice", "join", err)
	}
	s.conn = conn
	if s.player == nil {
		s.player = s.deps.NewPlayer(s.onPlayerEnd)
	}
	s.player.Subscribe(conn)
	s.state = StateConnected
	s.log.Info().Str("channel", channelID).Msg("voice connected")

	go s.watch(conn)
	return nil
}

func (s *Session) watch(conn Connection) {
	for ev := range conn.Events() {
		s.onConnEvent(conn, ev)
	}
}

func (s *Session) onConnEvent(conn Connection, ev ConnEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired || s.conn != conn {
		return
	}
	s.log.Info().Stringer("event", ev).Msg("voice connection lost")
	s.teardownLocked("voice connection " + ev.String())
}

func (s *Session) onPlayerEnd(ev player.EndEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired || ev.Token == 0 || ev.Token != s.playToken {
		return
	}
	s.playToken = 0
	s.state = StateConnected

	finished, _ := s.queue.PopFront()
	if ev.Err != nil {
		s.log.Warn().Err(ev.Err).Str("entry", finished.DisplayTitle()).Msg("playback cut short")
	}

	switch {
	case s.queue.Len() == 0:
		s.idleLocked("queue finished")
	case s.cfg.AutoAdvance:
		s.playHeadLocked()
	}
}

// playHeadLocked cancels whatever is playing or resolving and starts the
// head in the background.
func (s *Session) playHeadLocked() <-chan error {
	head, ok := s.queue.Head()
	if !ok {
		return nil
	}

	s.stopPlaybackLocked()
	gen := s.gen
	s.resolving = true
	started := make(chan error, 1)

	s.deps.Jobs.Start(s.ctx, s.jobName(), func(ctx context.Context) error {
		return s.start(ctx, gen, head, started)
	})
	return started
}

func (s *Session) start(ctx context.Context, gen uint64, head queue.Entry, started chan<- error) error {
	attempts := 1 + max(0, s.cfg.PlayRetries)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var (
			playable queue.Entry
			st       *stream.Stream
		)
		playable, st, err = s.open(ctx, head)
		if err == nil {
			text, ok := s.commit(gen, playable, st)
			if !ok {
				_ = st.Close()
				started <- context.Canceled
				return context.Canceled
			}
			started <- nil
			s.deps.Notifier.NowPlaying(s.guildID, text, playable)
			return nil
		}
		if ctx.Err() != nil {
			started <- ctx.Err()
			return ctx.Err()
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Str("entry", head.DisplayTitle()).Msg("could not start entry")
	}

	started <- err
	s.fail(gen, head, err)
	return err
}

// open runs one bounded attempt at turning the entry into audio.
func (s *Session) open(ctx context.Context, head queue.Entry) (queue.Entry, *stream.Stream, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	playable, err := s.deps.Resolver.ResolvePlayable(actx, head)
	if err != nil {
		return head, nil, music.Timeout(actx, err)
	}
	st, err := s.deps.Opener.Open(actx, playable.URL)
	if err != nil {
		return playable, nil, music.Timeout(actx, music.Provider("stream", "open", err))
	}
	return playable, st, nil
}

// commit hands an opened stream to the player if the attempt is still current.
func (s *Session) commit(gen uint64, playable queue.Entry, st *stream.Stream) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retired || gen != s.gen || s.conn == nil {
		return "", false
	}
	head, ok := s.queue.Head()
	if !ok || head.ID != playable.ID {
		return "", false
	}
	if playable.Resolved {
		s.queue.ResolveHead(playable.ID, playable.URL)
	}

	s.playToken = s.player.Play(st)
	s.state = StatePlaying
	s.resolving = false
	s.log.Info().Str("entry", playable.DisplayTitle()).Str("opener", st.Opener).Str("container", st.Container).Msg("now playing")
	return s.textChannelID, true
}

// fail skips an entry that could not be started.
func (s *Session) fail(gen uint64, head queue.Entry, err error) {
	s.mu.Lock()
	if s.retired || gen != s.gen {
		s.mu.Unlock()
		return
	}
	text := s.textChannelID
	s.resolving = false
	if h, ok := s.queue.Head(); ok && h.ID == head.ID {
		_, _ = s.queue.PopFront()
	}
	s.mu.Unlock()

	s.deps.Notifier.PlaybackFailed(s.guildID, text, head, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired || gen != s.gen || s.resolving || s.state == StatePlaying {
		return
	}
	if s.queue.Len() == 0 {
		s.idleLocked("nothing left to play")
		return
	}
	s.playHeadLocked()
}

// stopPlaybackLocked cancels resolution and silences the player.
func (s *Session) stopPlaybackLocked() {
	s.gen++
	s.resolving = false
	s.deps.Jobs.Stop(s.jobName())
	if s.player != nil {
		s.player.Stop()
	}
	s.playToken = 0
	if s.conn != nil {
		s.state = StateConnected
	}
}

// idleLocked handles an exhausted queue.
func (s *Session) idleLocked(reason string) {
	if s.cfg.LeaveOnEmpty {
		s.teardownLocked(reason)
		return
	}
	s.log.Info().Str("reason", reason).Msg("queue empty, staying connected")
}

func (s *Session) teardownLocked(reason string) {
	s.stopPlaybackLocked()
	s.queue.Clear()
	if s.conn != nil {
		if err := s.conn.Destroy(); err != nil {
			s.log.Warn().Err(err).Msg("voice disconnect")
		}
		s.conn = nil
	}
	s.state = StateIdle
	s.retired = true
	s.cancel()
	s.log.Info().Str("reason", reason).Msg("session closed")

	if s.onRetire != nil {
		s.onRetire(s)
	}
	go s.deps.Notifier.Closed(s.guildID, reason)
}

func (s *Session) jobName() string {
	return fmt.Sprintf("play:%s", s.guildID)
}
