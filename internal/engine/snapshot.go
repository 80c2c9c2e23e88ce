package engine

import (
	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/worker"
)

// Snapshot is a self-consistent copy of engine state taken under the lock.
type Snapshot struct {
	Role    string
	Loops   []catalog.Loop
	States  map[string]LoopView
	Volumes map[string]float64
	Delay   bool
	Workers []WorkerView
}

// WorkerView is a copy of one pool entry.
type WorkerView struct {
	Target   worker.Target
	Assigned string
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Role:    e.catalog.Role(),
		Loops:   e.catalog.Loops(),
		States:  make(map[string]LoopView, len(e.states)),
		Volumes: make(map[string]float64, len(e.volumes)),
		Delay:   e.delay,
	}
	for name := range e.states {
		s.States[name] = e.viewLocked(name)
	}
	for name, v := range e.volumes {
		s.Volumes[name] = v
	}
	for _, w := range e.pool.Workers() {
		s.Workers = append(s.Workers, WorkerView{Target: targetOf(w), Assigned: w.Assigned})
	}
	return s
}

// Loop returns a copy of one loop's state.
func (e *Engine) Loop(name string) LoopView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked(name)
}

// Volume returns the stored volume for a loop, DefaultVolume if unset.
func (e *Engine) Volume(loop string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volumeLocked(loop)
}

// Delay reports the delay flag.
func (e *Engine) Delay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delay
}

// Catalog returns the active catalog. Catalogs are immutable.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog
}

// Targets returns every pool worker as a call target, in pool order.
func (e *Engine) Targets() []worker.Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws := e.pool.Workers()
	out := make([]worker.Target, len(ws))
	for i, w := range ws {
		out[i] = targetOf(w)
	}
	return out
}
