// Package music holds the error taxonomy shared by the resolver, queue,
// session and dispatcher packages.
package music

import (
	"context"
	"errors"
	"fmt"
)

// MaxMessageLength is the longest text the chat platform accepts in one reply.
const MaxMessageLength = 2000

var (
	ErrNotInVoiceChannel = errors.New("you must be in a voice channel to use this command")
	ErrNotJoinable       = errors.New("bot cannot join that voice channel")
	ErrInvalidURL        = errors.New("invalid or unsupported URL")
	ErrEmptyQueue        = errors.New("queue is empty")
	ErrOutOfRange        = errors.New("position is out of range")
	ErrResolutionTimeout = errors.New("resolution timed out")
)

// ExternalProviderError is a failure reported by a media platform, a search
// backend or the voice transport.
type ExternalProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }

// Provider wraps err as an ExternalProviderError. Nil stays nil, and errors
// that already carry the provider are returned as is.
func Provider(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ExternalProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ExternalProviderError{Provider: provider, Op: op, Err: err}
}

// Timeout marks err as ErrResolutionTimeout when it was caused by ctx's
// deadline. Other errors pass through untouched.
func Timeout(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrResolutionTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrResolutionTimeout, err)
	}
	return err
}

// UserMessage maps err to the short diagnostic shown to chat users.
func UserMessage(err error) string {
	var pe *ExternalProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInVoiceChannel):
		return "You must be in a voice channel to use this command!"
	case errors.Is(err, ErrNotJoinable):
		return "I don't have permission to join that voice channel!"
	case errors.Is(err, ErrResolutionTimeout):
		return "Timed out while looking that up, try again later."
	case errors.Is(err, ErrInvalidURL):
		if errors.As(err, &pe) {
			return Truncate(fmt.Sprintf("Couldn't load that link (%s): %v", pe.Provider, pe.Err), MaxMessageLength)
		}
		return "That doesn't look like a supported YouTube or Spotify link!"
	case errors.Is(err, ErrEmptyQueue):
		return "There are no songs in the queue!"
	case errors.Is(err, ErrOutOfRange):
		return "That song doesn't exist in the queue!"
	case errors.As(err, &pe):
		return Truncate(fmt.Sprintf("%s failed: %v", pe.Provider, pe.Err), MaxMessageLength)
	default:
		return "Something went wrong, please try again."
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
