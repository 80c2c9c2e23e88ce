package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder backed by Prometheus collectors.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	commands     *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callLatency  *prometheus.HistogramVec
	polls        *prometheus.CounterVec
	busyWorkers  prometheus.Gauge
	talkingLoops prometheus.Gauge
	delayEnabled prometheus.Gauge
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus-backed recorder. A nil reg uses
// prometheus.DefaultRegisterer; an empty namespace uses "voiceloops".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "voiceloops"
	}
	p := &Prometheus{reg: reg, namespace: namespace}
	p.ensureRegistered()
	return p
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Commands handled by action and outcome.",
		}, []string{"action", "outcome"})

		p.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "calls_total",
			Help:      "Outbound worker calls by verb and result (ok, failed).",
		}, []string{"verb", "result"})

		p.callLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "call_latency_seconds",
			Help:      "Latency of outbound worker calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 9), // 5ms .. ~1.3s
		}, []string{"verb"})

		p.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "status",
			Name:      "polls_total",
			Help:      "Worker status polls by worker and result (ok, failed).",
		}, []string{"worker", "result"})

		p.busyWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Workers currently assigned to a loop.",
		})

		p.talkingLoops = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "talking_loops",
			Help:      "Loops currently in talk mode (0 or 1).",
		})

		p.delayEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "delay_enabled",
			Help:      "1 when delayed leave/mute is enabled.",
		})

		p.reg.MustRegister(
			p.commands,
			p.calls,
			p.callLatency,
			p.polls,
			p.busyWorkers,
			p.talkingLoops,
			p.delayEnabled,
		)
	})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// CommandHandled implements Recorder.
func (p *Prometheus) CommandHandled(action, outcome string) {
	p.commands.WithLabelValues(action, outcome).Inc()
}

// WorkerCall implements Recorder.
func (p *Prometheus) WorkerCall(verb string, ok bool, latency time.Duration) {
	p.calls.WithLabelValues(verb, result(ok)).Inc()
	p.callLatency.WithLabelValues(verb).Observe(latency.Seconds())
}

// StatusPoll implements Recorder.
func (p *Prometheus) StatusPoll(worker string, ok bool) {
	p.polls.WithLabelValues(worker, result(ok)).Inc()
}

// SetAssignment implements Recorder.
func (p *Prometheus) SetAssignment(busyWorkers, talkingLoops int) {
	p.busyWorkers.Set(float64(busyWorkers))
	p.talkingLoops.Set(float64(talkingLoops))
}

// SetDelay implements Recorder.
func (p *Prometheus) SetDelay(enabled bool) {
	if enabled {
		p.delayEnabled.Set(1)
		return
	}
	p.delayEnabled.Set(0)
}
