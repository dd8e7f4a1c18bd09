// Package jobmgr runs named, cancellable background jobs.
//
// At most one job runs per name: starting a job under a name that is already
// running cancels the old one first. Jobs remove themselves when they return.
//
//	jm := jobmgr.NewManager(nil)
//	jm.Start(ctx, "guild:123", func(ctx context.Context) error {
//	    return resolve(ctx)
//	})
//	jm.Stop("guild:123")
package jobmgr

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Job is a running unit of work.
type Job struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the job's runner has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// StatusReporter receives lifecycle events such as "running:name",
// "error:name:reason", "cancelled:name" and "done:name".
type StatusReporter func(string)

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	Reporter StatusReporter
}

// NewManager creates a Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// Start runs runner in its own goroutine under a context derived from
// parent. A job already running under name is cancelled and replaced.
func (m *Manager) Start(parent context.Context, name string, runner func(ctx context.Context) error) *Job {
	ctx, cancel := context.WithCancel(parent)
	job := &Job{Name: name, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if prev, ok := m.jobs[name]; ok {
		prev.cancel()
	}
	m.jobs[name] = job
	m.mu.Unlock()

	go func() {
		defer close(job.done)
		defer cancel()

		m.report("running:" + name)
		err := runner(ctx)
		switch {
		case ctx.Err() == context.Canceled:
			m.report("cancelled:" + name)
		case err != nil:
			m.report("error:" + name + ":" + err.Error())
		default:
			m.report("done:" + name)
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return job
}

// Stop cancels the job running under name. It reports whether one was running.
func (m *Manager) Stop(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return false
	}
	job.cancel()
	delete(m.jobs, name)
	return true
}

// StopAll cancels every running job.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, job := range m.jobs {
		job.cancel()
		delete(m.jobs, name)
	}
}

// Running reports whether a job is registered under name.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
