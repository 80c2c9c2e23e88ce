// Package pool tracks the fixed set of audio-relay workers and which loop,
// if any, each one currently serves.
//
// A Pool is not safe for concurrent use. The engine owns it and serializes
// every access behind its own lock.
package pool

import (
	"net/url"
	"strconv"
	"time"
)

// Worker is one relay process reachable at a fixed endpoint.
type Worker struct {
	Name     string
	Endpoint string

	// Assigned is the loop this worker serves, or "" when idle.
	Assigned string
	LastUsed time.Time

	order int
}

// Idle reports whether the worker has no loop assigned.
func (w *Worker) Idle() bool {
	return w.Assigned == ""
}

// Port returns the TCP port of the worker endpoint, or 0 if it has none.
func (w *Worker) Port() int {
	u, err := url.Parse(w.Endpoint)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0
	}
	return p
}

// Spec names a worker and its endpoint at construction time.
type Spec struct {
	Name     string
	Endpoint string
}

// Pool is the worker registry.
type Pool struct {
	workers []*Worker
	byName  map[string]*Worker
	now     func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the time source used for LastUsed stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a pool from specs. All workers start idle with a zero
// LastUsed, so the first acquisitions follow declaration order.
func New(specs []Spec, opts ...Option) *Pool {
	p := &Pool{
		byName: make(map[string]*Worker, len(specs)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i, s := range specs {
		w := &Worker{Name: s.Name, Endpoint: s.Endpoint, order: i}
		p.workers = append(p.workers, w)
		p.byName[s.Name] = w
	}
	return p
}

// Workers returns the workers in declaration order.
func (p *Pool) Workers() []*Worker {
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// Get returns the named worker.
func (p *Pool) Get(name string) (*Worker, bool) {
	w, ok := p.byName[name]
	return w, ok
}

// Len returns the pool size.
func (p *Pool) Len() int {
	return len(p.workers)
}

// IdleCount returns how many workers have no assignment.
func (p *Pool) IdleCount() int {
	n := 0
	for _, w := range p.workers {
		if w.Idle() {
			n++
		}
	}
	return n
}

// FindIdle returns the idle worker that was used least recently, or nil when
// every worker is assigned. Ties go to the worker declared first.
func (p *Pool) FindIdle() *Worker {
	var best *Worker
	for _, w := range p.workers {
		if !w.Idle() {
			continue
		}
		if best == nil || w.LastUsed.Before(best.LastUsed) ||
			(w.LastUsed.Equal(best.LastUsed) && w.order < best.order) {
			best = w
		}
	}
	return best
}

// Assign binds w to loop and stamps it as used now.
func (p *Pool) Assign(w *Worker, loop string) {
	w.Assigned = loop
	w.LastUsed = p.now()
}

// Release clears the assignment of w and stamps it as used now.
func (p *Pool) Release(w *Worker) {
	w.Assigned = ""
	w.LastUsed = p.now()
}
