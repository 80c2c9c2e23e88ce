// Package status merges the engine's local view of loop assignments with
// what each worker reports about the loops it has joined.
package status

import (
	"context"
	"sync"

	"github.com/thruflo/voiceloops/internal/engine"
	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/worker"
)

// Status is the merged per-loop view served to the UI. Map keys are loop
// names; JSON field names match the browser client.
type Status struct {
	UserCounts  map[string]int      `json:"user_counts"`
	States      map[string]int      `json:"states"`
	Assignments map[string]*int     `json:"assignments"`
	Endpoints   map[string]*string  `json:"endpoints"`
	Talkers     map[string][]string `json:"talkers"`
	Volumes     map[string]float64  `json:"volumes"`
	Delay       bool                `json:"delay"`
	Role        string              `json:"role"`

	// Unreachable lists workers that did not answer this poll.
	Unreachable []string `json:"unreachable,omitempty"`
}

// Source supplies the local half of the merge.
type Source interface {
	Snapshot() engine.Snapshot
}

// Aggregator polls every worker and merges the answers with local state.
type Aggregator struct {
	source  Source
	fetcher worker.StatusFetcher
	logger  *logging.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(source Source, fetcher worker.StatusFetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:  source,
		fetcher: fetcher,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("status")
	return a
}

type reply struct {
	report *worker.Report
	err    error
}

// Collect takes a locked snapshot of local state, polls all workers in
// parallel and merges the replies. Workers that fail or time out are left
// out of the merge; Collect itself never fails.
func (a *Aggregator) Collect(ctx context.Context) *Status {
	snap := a.source.Snapshot()

	replies := make([]reply, len(snap.Workers))
	var wg sync.WaitGroup
	for i, w := range snap.Workers {
		wg.Add(1)
		go func(i int, target worker.Target) {
			defer wg.Done()
			r, err := a.fetcher.FetchStatus(ctx, target)
			replies[i] = reply{report: r, err: err}
		}(i, w.Target)
	}
	wg.Wait()

	st := newStatus(snap)
	// Replies are merged in pool order, so when two workers report the same
	// loop the later worker's mode wins.
	for i, r := range replies {
		if r.err != nil || r.report == nil {
			st.Unreachable = append(st.Unreachable, snap.Workers[i].Target.Name)
			continue
		}
		st.merge(r.report)
	}
	if len(st.Unreachable) > 0 {
		a.logger.Debug("partial status", "unreachable", st.Unreachable)
	}
	return st
}

// newStatus fills the local half: zeroed counts and talker lists for every
// catalog loop, local modes, assignments and volumes.
func newStatus(snap engine.Snapshot) *Status {
	st := &Status{
		UserCounts:  make(map[string]int, len(snap.Loops)),
		States:      make(map[string]int, len(snap.States)),
		Assignments: make(map[string]*int, len(snap.States)),
		Endpoints:   make(map[string]*string, len(snap.States)),
		Talkers:     make(map[string][]string, len(snap.Loops)),
		Volumes:     make(map[string]float64, len(snap.Volumes)),
		Delay:       snap.Delay,
		Role:        snap.Role,
	}
	for _, l := range snap.Loops {
		st.UserCounts[l.Name] = 0
		st.Talkers[l.Name] = []string{}
	}
	for name, v := range snap.States {
		st.States[name] = int(v.Mode)
		if v.Assigned() {
			port := v.Port
			endpoint := v.Endpoint
			st.Assignments[name] = &port
			st.Endpoints[name] = &endpoint
		} else {
			st.Assignments[name] = nil
			st.Endpoints[name] = nil
		}
	}
	for name, vol := range snap.Volumes {
		st.Volumes[name] = vol
	}
	return st
}

func (st *Status) merge(r *worker.Report) {
	for loop, n := range r.UserCounts {
		st.UserCounts[loop] += n
	}
	for loop, names := range r.Talkers {
		st.Talkers[loop] = append(st.Talkers[loop], names...)
	}
	for loop, mode := range r.States {
		st.States[loop] = mode
	}
}
