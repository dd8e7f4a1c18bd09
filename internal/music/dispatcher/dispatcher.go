// Package dispatcher maps chat commands onto the guild sessions and renders
// the replies.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music"
	"github.com/keshon/jukebox/internal/music/queue"
	"github.com/keshon/jukebox/internal/music/session"
)

const (
	CmdPlay    = "play"
	CmdSkip    = "skip"
	CmdStop    = "stop"
	CmdList    = "list"
	CmdCurrent = "current"
	CmdShuffle = "shuffle"
)

// Commands lists every command name in the order they are documented.
var Commands = []string{CmdPlay, CmdSkip, CmdStop, CmdList, CmdCurrent, CmdShuffle}

var ErrUnknownCommand = errors.New("unknown command")

// VoiceLocator answers questions about voice channels on the chat platform.
type VoiceLocator interface {
	// UserVoiceChannel returns the channel the user sits in, or "" if none.
	UserVoiceChannel(guildID, userID string) (string, error)
	// CanJoin reports whether the bot may connect and speak in the channel.
	CanJoin(guildID, channelID string) (bool, error)
}

// TrackResolver turns a link into queue entries.
type TrackResolver interface {
	Resolve(ctx context.Context, rawURL string) ([]queue.Entry, error)
}

// Request carries the typed arguments of one invocation.
type Request struct {
	GuildID   string
	ChannelID string // text channel the command came from
	UserID    string
	URL       string
	Number    int // skip target, 0 or 1 = next
	Page      int // list page, 0 = first
}

// Reply is the single response of an invocation. Err keeps the cause for
// callers that log or count failures; it is never shown to users.
type Reply struct {
	Content   string
	Ephemeral bool
	Err       error
}

type Config struct {
	// EnqueueTimeout bounds the enqueue-time lookup of a link.
	EnqueueTimeout time.Duration
	// StartWait is how long play and skip wait to report whether the new
	// head started. Zero replies without waiting.
	StartWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnqueueTimeout: 30 * time.Second,
		StartWait:      10 * time.Second,
	}
}

type Dispatcher struct {
	sessions *session.Registry
	resolver TrackResolver
	voice    VoiceLocator
	cfg      Config
	log      zerolog.Logger
}

func New(sessions *session.Registry, resolver TrackResolver, voice VoiceLocator, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultConfig().EnqueueTimeout
	}
	return &Dispatcher{
		sessions: sessions,
		resolver: resolver,
		voice:    voice,
		cfg:      cfg,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs one command and always produces a reply. Failures become an
// ephemeral diagnostic.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, req Request) Reply {
	content, err := d.run(ctx, name, req)
	if err != nil {
		ev := d.log.Warn()
		if isUserError(err) {
			ev = d.log.Debug()
		}
		ev.Err(err).Str("command", name).Str("guild", req.GuildID).Str("user", req.UserID).Msg("command failed")
		return Reply{Content: music.Truncate(music.UserMessage(err), music.MaxMessageLength), Ephemeral: true, Err: err}
	}
	return Reply{Content: music.Truncate(content, music.MaxMessageLength)}
}

func (d *Dispatcher) run(ctx context.Context, name string, req Request) (string, error) {
	switch name {
	case CmdPlay:
		return d.play(ctx, req)
	case CmdSkip:
		return d.skip(ctx, req)
	case CmdStop:
		return d.stop(req)
	case CmdList:
		return d.list(req)
	case CmdCurrent:
		return d.current(req)
	case CmdShuffle:
		return d.shuffle(req)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

func (d *Dispatcher) play(ctx context.Context, req Request) (string, error) {
	voiceChannel, err := d.requireVoice(req)
	if err != nil {
		return "", err
	}
	ok, err := d.voice.CanJoin(req.GuildID, voiceChannel)
	if err != nil {
		return "", music.Provider("voice", "permissions", err)
	}
	if !ok {
		return "", music.ErrNotJoinable
	}
	if req.URL == "" {
		return "", music.ErrInvalidURL
	}

	rctx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
	entries, err := d.resolver.Resolve(rctx, req.URL)
	err = music.Timeout(rctx, err)
	cancel()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no playable entries", music.ErrInvalidURL)
	}
	now := time.Now()
	for i := range entries {
		entries[i].RequestedBy = req.UserID
		entries[i].EnqueuedAt = now
	}

	var (
		added   int
		started <-chan error
	)
	err = d.withSession(req.GuildID, func(s *session.Session) error {
		var err error
		added, started, err = s.Enqueue(ctx, req.ChannelID, voiceChannel, entries)
		return err
	})
	if err != nil {
		return "", err
	}

	reply := fmt.Sprintf("Added %d song(s) to the queue!", added)
	if added == 1 {
		reply = fmt.Sprintf("Added %s to the queue!", entries[0].DisplayTitle())
	}
	if err := d.awaitStart(ctx, started); err != nil {
		reply += "\n" + music.UserMessage(err)
	}
	return reply, nil
}

func (d *Dispatcher) skip(ctx context.Context, req Request) (string, error) {
	if _, err := d.requireVoice(req); err != nil {
		return "", err
	}
	if req.Number < 0 {
		return "", music.ErrOutOfRange
	}
	s, err := d.existing(req.GuildID)
	if err != nil {
		return "", err
	}
	skipped, started, err := s.Skip(req.Number)
	if err != nil {
		return "", closedAsEmpty(err)
	}

	reply := "Skipped " + skipped.DisplayTitle()
	if err := d.awaitStart(ctx, started); err != nil {
		reply += "\n" + music.UserMessage(err)
	}
	return reply, nil
}

func (d *Dispatcher) stop(req Request) (string, error) {
	if _, err := d.requireVoice(req); err != nil {
		return "", err
	}
	s, err := d.existing(req.GuildID)
	if err != nil {
		return "", err
	}
	if err := s.Stop(); err != nil {
		return "", closedAsEmpty(err)
	}
	return "Stopped the music!", nil
}

func (d *Dispatcher) list(req Request) (string, error) {
	if _, err := d.requireVoice(req); err != nil {
		return "", err
	}
	s, err := d.existing(req.GuildID)
	if err != nil {
		return "", err
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return s.List(page)
}

func (d *Dispatcher) current(req Request) (string, error) {
	if _, err := d.requireVoice(req); err != nil {
		return "", err
	}
	s, err := d.existing(req.GuildID)
	if err != nil {
		return "", err
	}
	head, err := s.Current()
	if err != nil {
		return "", err
	}
	return head.DisplayTitle(), nil
}

func (d *Dispatcher) shuffle(req Request) (string, error) {
	if _, err := d.requireVoice(req); err != nil {
		return "", err
	}
	s, err := d.existing(req.GuildID)
	if err != nil {
		return "", err
	}
	if err := s.Shuffle(); err != nil {
		return "", err
	}
	return "Shuffled the queue!", nil
}

func (d *Dispatcher) requireVoice(req Request) (string, error) {
	channel, err := d.voice.UserVoiceChannel(req.GuildID, req.UserID)
	if err != nil {
		return "", music.Provider("voice", "lookup", err)
	}
	if channel == "" {
		return "", music.ErrNotInVoiceChannel
	}
	return channel, nil
}

// existing returns the live session of a guild. A guild without one has an
// empty queue.
func (d *Dispatcher) existing(guildID string) (*session.Session, error) {
	s, ok := d.sessions.Get(guildID)
	if !ok {
		return nil, music.ErrEmptyQueue
	}
	return s, nil
}

// withSession runs fn against the guild session, once more with a fresh one
// if the first retired underneath it.
func (d *Dispatcher) withSession(guildID string, fn func(*session.Session) error) error {
	for attempt := 0; ; attempt++ {
		s, err := d.sessions.GetOrCreate(guildID)
		if err != nil {
			return err
		}
		err = fn(s)
		if errors.Is(err, session.ErrClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// awaitStart reports a failed start of the head. Cancellation and slow starts
// are not failures.
func (d *Dispatcher) awaitStart(ctx context.Context, started <-chan error) error {
	if started == nil || d.cfg.StartWait <= 0 {
		return nil
	}
	timer := time.NewTimer(d.cfg.StartWait)
	defer timer.Stop()

	select {
	case err := <-started:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func closedAsEmpty(err error) error {
	if errors.Is(err, session.ErrClosed) {
		return music.ErrEmptyQueue
	}
	return err
}

func isUserError(err error) bool {
	for _, target := range []error{
		music.ErrNotInVoiceChannel,
		music.ErrNotJoinable,
		music.ErrEmptyQueue,
		music.ErrOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
