// Package queue implements the ordered per-guild playback queue. Position 0
// is the entry that is playing or about to play.
//
// A Queue is not safe for concurrent use; the owning session serializes
// every call.
package queue

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/keshon/jukebox/internal/music"
)

const (
	DefaultPageSize = 30
	MaxListLength   = music.MaxMessageLength
)

type Queue struct {
	entries []Entry
	rng     *rand.Rand
}

// New returns an empty queue shuffled with the global random source.
func New() *Queue {
	return &Queue{}
}

// NewWithRand returns an empty queue that shuffles with r.
func NewWithRand(r *rand.Rand) *Queue {
	return &Queue{rng: r}
}

// Append adds entries to the tail in order and returns the new length.
func (q *Queue) Append(entries ...Entry) int {
	q.entries = append(q.entries, entries...)
	return len(q.entries)
}

// PopFront removes and returns the head.
func (q *Queue) PopFront() (Entry, error) {
	if len(q.entries) == 0 {
		return Entry{}, music.ErrEmptyQueue
	}
	head := q.entries[0]
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	return head, nil
}

// SkipTo makes the entry at 1-based position n the new head, discarding the
// entries before it. The former head is returned.
func (q *Queue) SkipTo(n int) (Entry, error) {
	if len(q.entries) == 0 {
		return Entry{}, music.ErrEmptyQueue
	}
	if n < 1 || n > len(q.entries) {
		return Entry{}, fmt.Errorf("%w: %d of %d", music.ErrOutOfRange, n, len(q.entries))
	}
	skipped := q.entries[0]
	q.entries = slices.Delete(q.entries, 0, n-1)
	return skipped, nil
}

// Head returns the entry at position 0.
func (q *Queue) Head() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// ResolveHead stores the playable URL found for the head, provided the head
// is still the entry with the given id.
func (q *Queue) ResolveHead(id, url string) bool {
	if len(q.entries) == 0 || q.entries[0].ID != id {
		return false
	}
	q.entries[0].URL = url
	q.entries[0].Resolved = true
	return true
}

func (q *Queue) Len() int { return len(q.entries) }

// Entries returns a copy of the queue contents.
func (q *Queue) Entries() []Entry {
	return slices.Clone(q.entries)
}

// List renders one page of the queue, numbered by absolute position.
func (q *Queue) List(page, pageSize int) (string, error) {
	if len(q.entries) == 0 {
		return "", music.ErrEmptyQueue
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	start := (page - 1) * pageSize
	if start >= len(q.entries) {
		return "", fmt.Errorf("%w: page %d", music.ErrOutOfRange, page)
	}
	end := min(start+pageSize, len(q.entries))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, q.entries[i].DisplayTitle()))
	}
	return music.Truncate(strings.Join(lines, "\n"), MaxListLength), nil
}

// Shuffle permutes every entry except the head.
func (q *Queue) Shuffle() {
	for i := len(q.entries) - 1; i > 1; i-- {
		j := 1 + q.intN(i)
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	}
}

// Clear drops every entry.
func (q *Queue) Clear() {
	clear(q.entries)
	q.entries = q.entries[:0]
}

// intN returns a number in [0, n).
func (q *Queue) intN(n int) int {
	if q.rng != nil {
		return q.rng.IntN(n)
	}
	return rand.IntN(n)
}
