package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thruflo/voiceloops/internal/worker"
)

// SentCall is one call observed by a RecordingSender.
type SentCall struct {
	Worker string
	Call   worker.Call
}

// RecordingSender is an in-memory worker.Sender and worker.StatusFetcher.
type RecordingSender struct {
	mu       sync.Mutex
	calls    []SentCall
	failing  map[string]bool
	reports  map[string]*worker.Report
	statusFn func(target worker.Target)
}

var (
	_ worker.Sender        = (*RecordingSender)(nil)
	_ worker.StatusFetcher = (*RecordingSender)(nil)
)

// NewRecordingSender creates an empty RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{
		failing: make(map[string]bool),
		reports: make(map[string]*worker.Report),
	}
}

// Send records the call. Calls to a failing worker are still recorded but
// report an error.
func (s *RecordingSender) Send(_ context.Context, target worker.Target, call worker.Call) worker.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, SentCall{Worker: target.Name, Call: call})
	res := worker.Result{Target: target, Call: call, StatusCode: 200}
	if s.failing[target.Name] {
		res.StatusCode = 0
		res.Err = errors.New("connection refused")
	}
	return res
}

// FetchStatus returns the report set with SetReport, or an error for a
// worker marked failing or without a report.
func (s *RecordingSender) FetchStatus(_ context.Context, target worker.Target) (*worker.Report, error) {
	s.mu.Lock()
	fn := s.statusFn
	s.mu.Unlock()
	if fn != nil {
		fn(target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[target.Name] {
		return nil, errors.New("connection refused")
	}
	r, ok := s.reports[target.Name]
	if !ok {
		return nil, errors.New("no report")
	}
	return r, nil
}

// SetReport sets the status report served for a worker.
func (s *RecordingSender) SetReport(workerName string, r *worker.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[workerName] = r
}

// SetFailing marks a worker as unreachable.
func (s *RecordingSender) SetFailing(workerName string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[workerName] = failing
}

// OnStatus registers a hook run at the start of every FetchStatus call.
func (s *RecordingSender) OnStatus(fn func(target worker.Target)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFn = fn
}

// Calls returns a copy of every recorded call.
func (s *RecordingSender) Calls() []SentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the calls sent to one worker.
func (s *RecordingSender) CallsTo(workerName string) []worker.Call {
	var out []worker.Call
	for _, c := range s.Calls() {
		if c.Worker == workerName {
			out = append(out, c.Call)
		}
	}
	return out
}

// VerbsTo returns the verbs sent to one worker, in order.
func (s *RecordingSender) VerbsTo(workerName string) []worker.Verb {
	var out []worker.Verb
	for _, c := range s.CallsTo(workerName) {
		out = append(out, c.Verb)
	}
	return out
}

// Reset forgets recorded calls.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// AssertVerbs asserts the exact ordered verbs sent to a worker.
func AssertVerbs(t *testing.T, s *RecordingSender, workerName string, verbs ...worker.Verb) {
	t.Helper()
	if len(verbs) == 0 {
		assert.Empty(t, s.VerbsTo(workerName), "unexpected calls to %s", workerName)
		return
	}
	assert.Equal(t, verbs, s.VerbsTo(workerName), "verbs sent to %s", workerName)
}

// AssertNoCalls asserts that nothing was sent to any worker.
func AssertNoCalls(t *testing.T, s *RecordingSender) {
	t.Helper()
	assert.Empty(t, s.Calls(), "expected no worker calls")
}
