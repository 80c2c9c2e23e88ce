// Package metrics records engine, worker-call and status-poll activity.
package metrics

import "time"

// Recorder receives instrumentation events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// CommandHandled counts one inbound command by action and outcome
	// (e.g. "assigned", "no_capacity", "noop").
	CommandHandled(action, outcome string)

	// WorkerCall records one outbound worker call.
	WorkerCall(verb string, ok bool, latency time.Duration)

	// StatusPoll records one status query against a worker.
	StatusPoll(worker string, ok bool)

	// SetAssignment publishes the current number of busy workers and
	// talking loops.
	SetAssignment(busyWorkers, talkingLoops int)

	// SetDelay publishes the delay flag.
	SetDelay(enabled bool)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

// NewNop returns a Recorder that does nothing.
func NewNop() Nop { return Nop{} }

func (Nop) CommandHandled(string, string) {}
func (Nop) WorkerCall(string, bool, time.Duration) {}
func (Nop) StatusPoll(string, bool) {}
func (Nop) SetAssignment(int, int) {}
func (Nop) SetDelay(bool) {}
