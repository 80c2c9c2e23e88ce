package engine

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/voiceloops/internal/catalog"
	"github.com/thruflo/voiceloops/internal/logging"
	"github.com/thruflo/voiceloops/internal/pool"
	"github.com/thruflo/voiceloops/internal/testutil"
	"github.com/thruflo/voiceloops/internal/worker"
)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEngine(t *testing.T, workers int) (*Engine, *testutil.RecordingSender) {
	t.Helper()

	clock := &tickClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := pool.New(testutil.SampleWorkerSpecs(workers), pool.WithClock(clock.now))
	sender := testutil.NewRecordingSender()
	var logs bytes.Buffer
	e := New(p, testutil.SampleCatalog(), sender, WithLogger(logging.NewWithWriter(&logs, logging.LevelWarn)))
	return e, sender
}

// assertInvariants checks the loop/worker invariants on a snapshot.
func assertInvariants(t *testing.T, s Snapshot) {
	t.Helper()

	talking := 0
	for name, v := range s.States {
		if v.Mode == ModeTalk {
			talking++
		}
		if v.Mode == ModeOff {
			assert.Empty(t, v.Worker, "loop %s is off but holds a worker", name)
		} else {
			assert.NotEmpty(t, v.Worker, "loop %s is %s without a worker", name, v.Mode)
		}
	}
	assert.LessOrEqual(t, talking, 1, "more than one loop talking")

	holders := make(map[string]string)
	for _, w := range s.Workers {
		if w.Assigned != "" {
			holders[w.Target.Name] = w.Assigned
			assert.Equal(t, w.Target.Name, s.States[w.Assigned].Worker,
				"worker %s is assigned to %s but the loop does not hold it", w.Target.Name, w.Assigned)
		}
	}
	for name, v := range s.States {
		if v.Worker != "" {
			assert.Equal(t, name, holders[v.Worker], "loop %s holds %s which is not assigned back", name, v.Worker)
		}
	}
}

func TestToggleOffToListen(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	res := e.Toggle(ctx, "FD")

	require.True(t, res.Assigned())
	assert.Equal(t, ModeListen, res.Loop.Mode)
	assert.Equal(t, "BOT1", res.Loop.Worker)
	assert.Equal(t, 6001, res.Loop.Port)

	testutil.AssertVerbs(t, sender, "BOT1", worker.VerbJoin, worker.VerbSetVolume, worker.VerbMute)
	calls := sender.CallsTo("BOT1")
	assert.Equal(t, "FD", calls[0].Loop)
	assert.Equal(t, DefaultVolume, calls[1].Volume)

	s := e.Snapshot()
	assert.Equal(t, "FD", s.Workers[0].Assigned)
	assertInvariants(t, s)
}

func TestToggleListenToTalkDemotesCurrentTalker(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "GC")
	e.Toggle(ctx, "GC")
	require.Equal(t, ModeTalk, e.Loop("GC").Mode)
	gcWorker := e.Loop("GC").Worker

	e.Toggle(ctx, "FD")
	sender.Reset()
	res := e.Toggle(ctx, "FD")

	assert.Equal(t, ModeTalk, res.Loop.Mode)
	assert.Equal(t, ModeListen, e.Loop("GC").Mode)
	assert.Equal(t, gcWorker, e.Loop("GC").Worker, "demoted loop keeps its worker")

	testutil.AssertVerbs(t, sender, gcWorker, worker.VerbMute)
	testutil.AssertVerbs(t, sender, res.Loop.Worker, worker.VerbJoin, worker.VerbSetVolume, worker.VerbTalk)

	calls := sender.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, gcWorker, calls[0].Worker, "the old talker is muted before the new one talks")
	assertInvariants(t, e.Snapshot())
}

func TestTalkerDemotionUsesDelayedMute(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "GC")
	e.Toggle(ctx, "GC")
	e.Toggle(ctx, "FD")
	e.SetDelay(ctx, true)
	sender.Reset()

	e.Toggle(ctx, "FD")

	testutil.AssertVerbs(t, sender, e.Loop("GC").Worker, worker.VerbMuteAfterDelay)
}

func TestTalkToListen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		delay bool
		mute  worker.Verb
	}{
		{"immediate", false, worker.VerbMute},
		{"delayed", true, worker.VerbMuteAfterDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sender := newTestEngine(t, 3)
			ctx := context.Background()

			e.Toggle(ctx, "FD")
			e.Toggle(ctx, "FD")
			held := e.Loop("FD").Worker
			e.SetDelay(ctx, tt.delay)
			sender.Reset()

			res := e.Toggle(ctx, "FD")

			assert.Equal(t, ModeListen, res.Loop.Mode)
			assert.Equal(t, held, res.Loop.Worker, "worker is sticky")
			testutil.AssertVerbs(t, sender, held, worker.VerbJoin, worker.VerbSetVolume, tt.mute)
			assertInvariants(t, e.Snapshot())
		})
	}
}

func TestListenToListenWithDelayUsesImmediateMute(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.SetDelay(ctx, true)
	e.Toggle(ctx, "EECOM")
	sender.Reset()

	e.Toggle(ctx, "EECOM")

	testutil.AssertVerbs(t, sender, e.Loop("EECOM").Worker, worker.VerbJoin, worker.VerbSetVolume, worker.VerbMute)
}

func TestListenOnlyLoopRefreshesInPlace(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	first := e.Toggle(ctx, "EECOM")
	sender.Reset()
	second := e.Toggle(ctx, "EECOM")

	assert.Equal(t, ModeListen, second.Loop.Mode)
	assert.Equal(t, first.Loop.Worker, second.Loop.Worker)
	testutil.AssertVerbs(t, sender, first.Loop.Worker, worker.VerbJoin, worker.VerbSetVolume, worker.VerbMute)
}

func TestToggleIgnoresUnlistenableAndUnknownLoops(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()
	before := e.Snapshot()

	assert.Equal(t, OutcomeIgnored, e.Toggle(ctx, "MOCR").Outcome)
	assert.Equal(t, OutcomeIgnored, e.Toggle(ctx, "NOPE").Outcome)

	testutil.AssertNoCalls(t, sender)
	assert.Equal(t, before, e.Snapshot())
}

func TestToggleNoCapacity(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 2)
	ctx := context.Background()

	e.Toggle(ctx, "FD")
	e.Toggle(ctx, "GC")
	sender.Reset()
	before := e.Snapshot()

	res := e.Toggle(ctx, "EECOM")

	assert.Equal(t, OutcomeNoCapacity, res.Outcome)
	assert.False(t, res.Assigned())
	assert.Equal(t, ModeOff, res.Loop.Mode)
	testutil.AssertNoCalls(t, sender)
	assert.Equal(t, before, e.Snapshot())
}

func TestOff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		delay bool
		verbs []worker.Verb
	}{
		{"immediate leave then mute", false, []worker.Verb{worker.VerbLeave, worker.VerbMute}},
		{"deferred leave only", true, []worker.Verb{worker.VerbLeaveAfterDelay}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sender := newTestEngine(t, 3)
			ctx := context.Background()

			e.Toggle(ctx, "FD")
			held := e.Loop("FD").Worker
			e.SetDelay(ctx, tt.delay)
			sender.Reset()

			res := e.Off(ctx, "FD")

			assert.Equal(t, OutcomeReleased, res.Outcome)
			assert.Equal(t, ModeOff, res.Loop.Mode)
			assert.Empty(t, res.Loop.Worker)
			testutil.AssertVerbs(t, sender, held, tt.verbs...)

			s := e.Snapshot()
			for _, w := range s.Workers {
				assert.Empty(t, w.Assigned)
			}
			assertInvariants(t, s)
		})
	}
}

func TestOffIsIdempotent(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "GC")
	e.Off(ctx, "FD")
	sender.Reset()
	before := e.Snapshot()

	assert.Equal(t, OutcomeNoop, e.Off(ctx, "FD").Outcome)
	assert.Equal(t, OutcomeNoop, e.Off(ctx, "NOPE").Outcome)

	testutil.AssertNoCalls(t, sender)
	assert.Equal(t, before, e.Snapshot())
}

func TestAcquisitionIsOldestFirst(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, 3)
	ctx := context.Background()

	assert.Equal(t, "BOT1", e.Toggle(ctx, "FD").Loop.Worker)
	assert.Equal(t, "BOT2", e.Toggle(ctx, "GC").Loop.Worker)
	e.Off(ctx, "FD")

	// BOT3 was never used; BOT1 was released after BOT2 was assigned.
	assert.Equal(t, "BOT3", e.Toggle(ctx, "EECOM").Loop.Worker)
	e.Off(ctx, "GC")
	assert.Equal(t, "BOT1", e.Toggle(ctx, "FD").Loop.Worker)
}

func TestSetVolumeUnassignedThenJoin(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	got := e.SetVolume(ctx, "FD", 1.5)

	assert.Equal(t, 1.5, got)
	assert.Equal(t, 1.5, e.Volume("FD"))
	testutil.AssertNoCalls(t, sender)

	e.Toggle(ctx, "FD")
	calls := sender.CallsTo("BOT1")
	require.Len(t, calls, 3)
	assert.Equal(t, worker.VerbSetVolume, calls[1].Verb)
	assert.Equal(t, 1.5, calls[1].Volume)
}

func TestSetVolumeForwardsToAssignedWorker(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "FD")
	sender.Reset()

	e.SetVolume(ctx, "FD", 3.7)

	calls := sender.CallsTo("BOT1")
	require.Len(t, calls, 1)
	assert.Equal(t, worker.VerbSetVolume, calls[0].Verb)
	assert.Equal(t, MaxVolume, calls[0].Volume)
}

func TestVolumeSurvivesModeChanges(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, 3)
	ctx := context.Background()

	e.SetVolume(ctx, "FD", 0.25)
	e.Toggle(ctx, "FD")
	e.Toggle(ctx, "FD")
	e.Off(ctx, "FD")

	assert.Equal(t, 0.25, e.Volume("FD"))
}

func TestSetVolumeBoundsUnknownLoops(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	for i := 0; i < MaxUncataloguedVolumes; i++ {
		e.SetVolume(ctx, fmt.Sprintf("GHOST %d", i), 0.5)
	}
	assert.Equal(t, 0.5, e.Volume("GHOST 0"))

	e.SetVolume(ctx, "ONE TOO MANY", 0.5)
	assert.Equal(t, DefaultVolume, e.Volume("ONE TOO MANY"))
	assert.NotContains(t, e.Snapshot().Volumes, "ONE TOO MANY")

	e.SetVolume(ctx, "GHOST 0", 1.75)
	assert.Equal(t, 1.75, e.Volume("GHOST 0"), "stored names can still change")
	e.SetVolume(ctx, "FD", 0.25)
	assert.Equal(t, 0.25, e.Volume("FD"), "catalog loops are never dropped")
	testutil.AssertNoCalls(t, sender)

	e.Reload(ctx, testutil.SampleCatalog())
	assert.NotContains(t, e.Snapshot().Volumes, "GHOST 0")
	e.SetVolume(ctx, "ONE TOO MANY", 0.5)
	assert.Equal(t, 0.5, e.Volume("ONE TOO MANY"))
}

func TestClampVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{2, 2},
		{2.01, 2},
		{math.Inf(1), 2},
		{math.Inf(-1), 0},
		{math.NaN(), DefaultVolume},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampVolume(tt.in))
		})
	}
}

func TestSetDelayBroadcasts(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "FD")
	before := e.Snapshot()
	sender.Reset()

	e.SetDelay(ctx, true)

	assert.True(t, e.Delay())
	for _, name := range []string{"BOT1", "BOT2", "BOT3"} {
		testutil.AssertVerbs(t, sender, name, worker.VerbDelayOn)
	}
	after := e.Snapshot()
	assert.Equal(t, before.States, after.States, "delay does not touch assignments")

	sender.Reset()
	e.SetDelay(ctx, false)
	testutil.AssertVerbs(t, sender, "BOT2", worker.VerbDelayOff)
}

func TestReloadResetsEverything(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()

	e.Toggle(ctx, "FD")
	e.Toggle(ctx, "FD")
	e.SetVolume(ctx, "GC", 0.3)
	sender.Reset()

	next := catalog.New("CAPCOM", []catalog.Loop{
		{Name: "CAPCOM", CanListen: true, CanTalk: true},
		{Name: "GC", CanListen: true},
	})
	e.Reload(ctx, next)

	for _, name := range []string{"BOT1", "BOT2", "BOT3"} {
		testutil.AssertVerbs(t, sender, name, worker.VerbLeave)
	}

	s := e.Snapshot()
	assert.Equal(t, "CAPCOM", s.Role)
	assert.Len(t, s.States, 2)
	for name, v := range s.States {
		assert.Equal(t, ModeOff, v.Mode, name)
		assert.Equal(t, DefaultVolume, s.Volumes[name], name)
	}
	for _, w := range s.Workers {
		assert.Empty(t, w.Assigned)
	}
	_, stillThere := s.States["FD"]
	assert.False(t, stillThere)
	assertInvariants(t, s)
}

func TestFailedCallsStillCommit(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx := context.Background()
	sender.SetFailing("BOT1", true)

	res := e.Toggle(ctx, "FD")

	assert.True(t, res.Assigned())
	assert.Equal(t, ModeListen, e.Loop("FD").Mode)
	assert.Len(t, sender.CallsTo("BOT1"), 3, "calls are attempted once, never retried")

	e.Off(ctx, "FD")
	assert.Equal(t, ModeOff, e.Loop("FD").Mode)
}

func TestCancelledContextDoesNotStopDispatch(t *testing.T) {
	t.Parallel()

	e, sender := newTestEngine(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e.Toggle(ctx, "FD")
	assert.Len(t, sender.CallsTo("BOT1"), 3)
}

func TestConcurrentCommandsKeepInvariants(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, 2)
	ctx := context.Background()
	loops := []string{"FD", "GC", "EECOM", "MOCR"}

	done := make(chan struct{})
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-done:
				return
			default:
				assertInvariants(t, e.Snapshot())
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				loop := loops[rng.Intn(len(loops))]
				switch rng.Intn(6) {
				case 0:
					e.Off(ctx, loop)
				case 1:
					e.SetVolume(ctx, loop, rng.Float64()*3)
				case 2:
					e.SetDelay(ctx, rng.Intn(2) == 0)
				default:
					e.Toggle(ctx, loop)
				}
			}
		}(int64(g))
	}
	wg.Wait()
	close(done)
	checker.Wait()

	assertInvariants(t, e.Snapshot())
}
