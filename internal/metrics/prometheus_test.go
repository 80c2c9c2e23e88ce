package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.CommandHandled("toggle", "assigned")
	p.CommandHandled("toggle", "assigned")
	p.CommandHandled("toggle", "no_capacity")
	p.WorkerCall("join", true, 10*time.Millisecond)
	p.WorkerCall("join", false, time.Second)
	p.StatusPoll("BOT1", false)
	p.SetAssignment(2, 1)
	p.SetDelay(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.commands.WithLabelValues("toggle", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.commands.WithLabelValues("toggle", "no_capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.calls.WithLabelValues("join", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.calls.WithLabelValues("join", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.polls.WithLabelValues("BOT1", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.busyWorkers))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.talkingLoops))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.delayEnabled))

	p.SetDelay(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.delayEnabled))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_engine_commands_total")
	assert.Contains(t, names, "test_worker_call_latency_seconds")
}

func TestNopRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNop()
	assert.NotPanics(t, func() {
		r.CommandHandled("off", "noop")
		r.WorkerCall("leave", false, 0)
		r.StatusPoll("BOT1", true)
		r.SetAssignment(0, 0)
		r.SetDelay(true)
	})
}
