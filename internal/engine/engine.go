package engine

import (
	"context"
	"sync"

	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/metrics"
	"github.com/thruflo/voiceloops/internal/pool"
	"github.com/thruflo/voiceloops/internal/worker"
)

// loopState is the mutable per-loop record. worker is nil exactly when mode
// is ModeOff.
type loopState struct {
	mode   Mode
	worker *pool.Worker
}

// step is one planned worker call.
type step struct {
	target worker.Target
	call   worker.Call
}

type plan []step

func (p *plan) add(w *pool.Worker, call worker.Call) {
	*p = append(*p, step{target: targetOf(w), call: call})
}

func targetOf(w *pool.Worker) worker.Target {
	return worker.Target{Name: w.Name, Endpoint: w.Endpoint}
}

// Engine owns the worker pool, per-loop state, volumes and the delay flag.
type Engine struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	pool    *pool.Pool
	states  map[string]*loopState
	volumes map[string]float64
	extra   int // volumes entries outside the catalog
	delay   bool

	// Plans run in ticket order. nextTicket is guarded by mu; serving by
	// dispatchMu.
	nextTicket uint64
	dispatchMu sync.Mutex
	turn       *sync.Cond
	serving    uint64

	sender  worker.Sender
	logger  *logging.Logger
	metrics metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine over p with cat as the active catalog. Every loop
// starts OFF at DefaultVolume.
func New(p *pool.Pool, cat *catalog.Catalog, sender worker.Sender, opts ...Option) *Engine {
	e := &Engine{
		pool:    p,
		sender:  sender,
		logger:  logging.Default(),
		metrics: metrics.NewNop(),
	}
	e.turn = sync.NewCond(&e.dispatchMu)
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")
	e.resetLocked(cat)
	e.publishLocked()
	return e
}

// resetLocked installs cat and rebuilds per-loop state and volumes.
func (e *Engine) resetLocked(cat *catalog.Catalog) {
	if cat == nil {
		cat = catalog.New("", nil)
	}
	e.catalog = cat
	e.states = make(map[string]*loopState, cat.Len())
	e.volumes = make(map[string]float64, cat.Len())
	e.extra = 0
	for _, name := range cat.Names() {
		e.states[name] = &loopState{mode: ModeOff}
		e.volumes[name] = DefaultVolume
	}
}

// commit hands a decided plan to the dispatcher. It must be called with mu
// held and releases it.
func (e *Engine) commit(ctx context.Context, p plan) {
	e.publishLocked()
	ticket := e.nextTicket
	e.nextTicket++
	e.mu.Unlock()

	e.dispatch(ctx, ticket, p)
}

// dispatch waits for the ticket's turn and runs the plan. Results are
// dropped: state has already been committed.
func (e *Engine) dispatch(ctx context.Context, ticket uint64, p plan) {
	e.dispatchMu.Lock()
	for e.serving != ticket {
		e.turn.Wait()
	}
	e.dispatchMu.Unlock()

	defer func() {
		e.dispatchMu.Lock()
		e.serving++
		e.turn.Broadcast()
		e.dispatchMu.Unlock()
	}()

	// Calls outlive a caller that gives up; only the per-call timeout
	// bounds them.
	ctx = context.WithoutCancel(ctx)
	for _, s := range p {
		_ = e.sender.Send(ctx, s.target, s.call)
	}
}

func (e *Engine) publishLocked() {
	talking := 0
	for _, st := range e.states {
		if st.mode == ModeTalk {
			talking++
		}
	}
	e.metrics.SetAssignment(e.pool.Len()-e.pool.IdleCount(), talking)
	e.metrics.SetDelay(e.delay)
}

func (e *Engine) viewLocked(name string) LoopView {
	v := LoopView{Name: name, Volume: e.volumeLocked(name)}
	if st, ok := e.states[name]; ok {
		v.Mode = st.mode
		if st.worker != nil {
			v.Worker = st.worker.Name
			v.Endpoint = st.worker.Endpoint
			v.Port = st.worker.Port()
		}
	}
	return v
}

func (e *Engine) volumeLocked(name string) float64 {
	if v, ok := e.volumes[name]; ok {
		return v
	}
	return DefaultVolume
}

// muteVerb picks the mute verb for a worker leaving TALK.
func (e *Engine) muteVerb(demotingFromTalk bool) worker.Verb {
	if e.delay && demotingFromTalk {
		return worker.VerbMuteAfterDelay
	}
	return worker.VerbMute
}

// Toggle advances a loop one step through OFF -> LISTEN -> TALK -> LISTEN.
//
// Loops that are unknown or cannot be listened to are ignored. A loop that
// cannot talk stays in LISTEN and has its join, volume and mute re-sent.
// Entering TALK first demotes whichever loop currently talks.
func (e *Engine) Toggle(ctx context.Context, loop string) Result {
	e.mu.Lock()

	desc, ok := e.catalog.Lookup(loop)
	if !ok || !desc.CanListen {
		res := Result{Outcome: OutcomeIgnored, Loop: e.viewLocked(loop)}
		e.mu.Unlock()
		e.metrics.CommandHandled("toggle", string(res.Outcome))
		e.logger.Debug("toggle ignored", "loop", loop, "known", ok)
		return res
	}

	st := e.states[loop]
	from := st.mode
	to := ModeListen
	if from == ModeListen && desc.CanTalk {
		to = ModeTalk
	}

	w := st.worker
	if w == nil {
		w = e.pool.FindIdle()
	}
	if w == nil {
		res := Result{Outcome: OutcomeNoCapacity, Loop: e.viewLocked(loop)}
		e.mu.Unlock()
		e.metrics.CommandHandled("toggle", string(res.Outcome))
		e.logger.Warn("no idle worker for loop", "loop", loop)
		return res
	}

	var p plan
	vol := e.volumeLocked(loop)
	switch to {
	case ModeListen:
		p.add(w, worker.Join(loop))
		p.add(w, worker.SetVolume(vol))
		p.add(w, worker.Simple(e.muteVerb(from == ModeTalk)))
	case ModeTalk:
		for _, other := range e.catalog.Names() {
			ost := e.states[other]
			if other == loop || ost.mode != ModeTalk {
				continue
			}
			ost.mode = ModeListen
			p.add(ost.worker, worker.Simple(e.muteVerb(true)))
			e.logger.Info("loop demoted", "loop", other, "worker", ost.worker.Name)
		}
		p.add(w, worker.Join(loop))
		p.add(w, worker.SetVolume(vol))
		p.add(w, worker.Simple(worker.VerbTalk))
	}

	e.pool.Assign(w, loop)
	st.mode = to
	st.worker = w

	res := Result{Outcome: OutcomeAssigned, Loop: e.viewLocked(loop)}
	e.logger.Info("loop toggled", "loop", loop, "from", from.String(), "to", to.String(), "worker", w.Name)
	e.commit(ctx, p)

	e.metrics.CommandHandled("toggle", string(res.Outcome))
	return res
}

// Off turns a loop off and releases its worker. With delay mode on the
// worker is told to leave after its buffer drains; otherwise it leaves and
// is muted immediately. Off on a loop that is already off does nothing.
func (e *Engine) Off(ctx context.Context, loop string) Result {
	e.mu.Lock()

	st, ok := e.states[loop]
	if !ok || st.worker == nil {
		res := Result{Outcome: OutcomeNoop, Loop: e.viewLocked(loop)}
		e.mu.Unlock()
		e.metrics.CommandHandled("off", string(res.Outcome))
		return res
	}

	w := st.worker
	var p plan
	if e.delay {
		p.add(w, worker.Simple(worker.VerbLeaveAfterDelay))
	} else {
		p.add(w, worker.Simple(worker.VerbLeave))
		p.add(w, worker.Simple(worker.VerbMute))
	}

	e.pool.Release(w)
	st.mode = ModeOff
	st.worker = nil

	res := Result{Outcome: OutcomeReleased, Loop: e.viewLocked(loop)}
	e.logger.Info("loop off", "loop", loop, "worker", w.Name, "delayed", e.delay)
	e.commit(ctx, p)

	e.metrics.CommandHandled("off", string(res.Outcome))
	return res
}

// SetDelay sets the delay flag and broadcasts it to every worker. Existing
// assignments are untouched; only later mute and leave verbs change.
func (e *Engine) SetDelay(ctx context.Context, enabled bool) {
	e.mu.Lock()
	e.delay = enabled

	verb := worker.VerbDelayOff
	if enabled {
		verb = worker.VerbDelayOn
	}
	var p plan
	for _, w := range e.pool.Workers() {
		p.add(w, worker.Simple(verb))
	}

	e.logger.Info("delay mode set", "enabled", enabled)
	e.commit(ctx, p)
	e.metrics.CommandHandled("delay", string(OutcomeApplied))
}

// SetVolume clamps and stores a loop's volume, forwarding it to the loop's
// worker when one is assigned. Unassigned loops pick the value up on their
// next join. Names outside the catalog are stored too, up to
// MaxUncataloguedVolumes of them; further new names are dropped.
func (e *Engine) SetVolume(ctx context.Context, loop string, volume float64) float64 {
	volume = ClampVolume(volume)

	e.mu.Lock()
	if _, known := e.volumes[loop]; !known {
		if e.extra >= MaxUncataloguedVolumes {
			e.mu.Unlock()
			e.logger.Debug("volume dropped for unknown loop", "loop", loop, "limit", MaxUncataloguedVolumes)
			e.metrics.CommandHandled("set_volume", string(OutcomeIgnored))
			return volume
		}
		e.extra++
		e.logger.Debug("volume stored for unknown loop", "loop", loop)
	}
	e.volumes[loop] = volume

	var p plan
	if st, ok := e.states[loop]; ok && st.worker != nil {
		p.add(st.worker, worker.SetVolume(volume))
	}

	e.logger.Debug("volume set", "loop", loop, "volume", volume, "forwarded", len(p) > 0)
	e.commit(ctx, p)
	e.metrics.CommandHandled("set_volume", string(OutcomeApplied))
	return volume
}

// Reload installs a new catalog. Every worker is told to leave, whether or
// not it held a loop, and every loop of the new catalog starts OFF at
// DefaultVolume.
func (e *Engine) Reload(ctx context.Context, cat *catalog.Catalog) {
	e.mu.Lock()

	var p plan
	for _, w := range e.pool.Workers() {
		p.add(w, worker.Simple(worker.VerbLeave))
		e.pool.Release(w)
	}
	e.resetLocked(cat)

	e.logger.Info("catalog reloaded", "role", e.catalog.Role(), "loops", e.catalog.Len())
	e.commit(ctx, p)
	e.metrics.CommandHandled("reload", string(OutcomeApplied))
}
