package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/keshon/jukebox/pkg/jobmgr"
)

// Registry keeps one live session per guild. Sessions are created on demand
// and drop out of the registry when they are torn down.
type Registry struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
	cfg      Config
	deps     Deps
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	if deps.Jobs == nil {
		deps.Jobs = jobmgr.NewManager(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultConfig().ResolveTimeout
	}
	return &Registry{
		sessions: make(map[snowflake.ID]*Session),
		cfg:      cfg,
		deps:     deps,
	}
}

// GetOrCreate returns the live session of a guild, creating it if needed.
func (r *Registry) GetOrCreate(guildID string) (*Session, error) {
	id, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, fmt.Errorf("invalid guild id %q: %w", guildID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s := newSession(id.String(), r.cfg, r.deps, func(s *Session) { r.retire(id, s) })
	r.sessions[id] = s
	return s, nil
}

// Get returns the live session of a guild, if any.
func (r *Registry) Get(guildID string) (*Session, bool) {
	id, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshots returns a view of every live session, oldest guild first.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0)
	for _, s := range r.list() {
		out = append(out, s.Snapshot())
	}
	return out
}

// Shutdown tears every session down.
func (r *Registry) Shutdown() {
	for _, s := range r.list() {
		s.Shutdown()
	}
	r.deps.Jobs.StopAll()
}

// list copies the sessions so that no session lock is taken under r.mu.
func (r *Registry) list() []*Session {
	r.mu.Lock()
	ids := make([]snowflake.ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sessions[id])
	}
	r.mu.Unlock()
	return out
}

func (r *Registry) retire(id snowflake.ID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
}
