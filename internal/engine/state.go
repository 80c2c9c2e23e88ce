package engine

import (
	"fmt"
	"math"
)

// Mode is the coarse state of a loop. The integer values are part of the
// status protocol shared with workers and the browser UI.
type Mode int

const (
	ModeOff    Mode = 0
	ModeListen Mode = 1
	ModeTalk   Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeListen:
		return "listen"
	case ModeTalk:
		return "talk"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Volume limits.
const (
	MinVolume     = 0.0
	MaxVolume     = 2.0
	DefaultVolume = 1.0
)

// MaxUncataloguedVolumes bounds how many loop names outside the active
// catalog keep a stored volume until the next reload.
const MaxUncataloguedVolumes = 64

// ClampVolume limits v to [MinVolume, MaxVolume]. NaN maps to DefaultVolume.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultVolume
	}
	return math.Max(MinVolume, math.Min(MaxVolume, v))
}

// LoopView is a copy of one loop's state, safe to hand to callers.
type LoopView struct {
	Name     string
	Mode     Mode
	Worker   string
	Endpoint string
	Port     int
	Volume   float64
}

// Assigned reports whether a worker holds the loop.
func (v LoopView) Assigned() bool {
	return v.Worker != ""
}

// Outcome classifies how a command was handled.
type Outcome string

const (
	OutcomeAssigned   Outcome = "assigned"
	OutcomeReleased   Outcome = "released"
	OutcomeNoCapacity Outcome = "no_capacity"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeNoop       Outcome = "noop"
	OutcomeApplied    Outcome = "applied"
)

// Result describes the effect of a Toggle or Off command.
type Result struct {
	Outcome Outcome
	Loop    LoopView
}

// Assigned reports whether the loop ended the command bound to a worker.
func (r Result) Assigned() bool {
	return r.Outcome == OutcomeAssigned
}
