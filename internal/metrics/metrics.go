// Package metrics exposes runtime counters for the agent server in the
// Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentarena.ai/internal/actions"
	"agentarena.ai/internal/behavior"
	"agentarena.ai/internal/bot"
	"agentarena.ai/internal/observer"
)

const namespace = "agentarena"

// ConnectionSource lists registered connections at scrape time.
type ConnectionSource interface {
	States() []bot.ConnectionState
}

type Metrics struct {
	reg *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	stateUpdates   prometheus.Counter
	listeners      prometheus.Gauge
	dropped        prometheus.Counter
	ticks          *prometheus.CounterVec
}

// New builds a private registry with the process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions by type and outcome status.",
		}, []string{"action", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Wall time of dispatched actions.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"action"}),
		stateUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "Connection state changes published by the observer.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Attached event stream listeners.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Messages dropped because a listener queue was full.",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "behavior_ticks_total",
			Help:      "Behavior loop ticks by profile and result.",
		}, []string{"profile", "result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.actions,
		m.actionDuration,
		m.stateUpdates,
		m.listeners,
		m.dropped,
		m.ticks,
	)
	return m
}

// TrackConnections exports the connections gauge, read from src at scrape
// time.
func (m *Metrics) TrackConnections(src ConnectionSource) {
	m.reg.MustRegister(&connCollector{src: src})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ActionOutcome is a dispatcher outcome hook.
func (m *Metrics) ActionOutcome(req actions.Request, out actions.Outcome) {
	action := string(out.ActionType)
	if action == "" {
		action = string(req.Type)
	}
	m.actions.WithLabelValues(action, string(out.Status)).Inc()
	m.actionDuration.WithLabelValues(action).Observe(float64(out.DurationMs) / 1000)
}

func (m *Metrics) SetListeners(n int) { m.listeners.Set(float64(n)) }

func (m *Metrics) BroadcastDropped() { m.dropped.Inc() }

func (m *Metrics) BehaviorTick(profile string, res behavior.TickResult) {
	m.ticks.WithLabelValues(profile, string(res)).Inc()
}

// StateSink counts state updates on their way to next.
func (m *Metrics) StateSink(next observer.StateSink) observer.StateSink {
	return observer.StateSinkFunc(func(st bot.ConnectionState) {
		m.stateUpdates.Inc()
		if next != nil {
			next.StateChanged(st)
		}
	})
}

// IndexQueue exports the depth of the index writer queue.
func (m *Metrics) IndexQueue(depth func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_queue_depth",
		Help:      "Pending writes in the SQLite index queue.",
	}, func() float64 { return float64(depth()) }))
}

var connStatuses = []bot.Status{
	bot.StatusDisconnected,
	bot.StatusConnecting,
	bot.StatusConnected,
	bot.StatusSpawned,
	bot.StatusError,
}

// connCollector reports the connections gauge from a live snapshot.
type connCollector struct {
	src ConnectionSource
}

var connDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "connections"),
	"Registered connections by status.",
	[]string{"status"}, nil,
)

func (c *connCollector) Describe(ch chan<- *prometheus.Desc) { ch <- connDesc }

func (c *connCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[bot.Status]int{}
	for _, st := range c.src.States() {
		counts[st.Status]++
	}
	for _, s := range connStatuses {
		ch <- prometheus.MustNewConstMetric(connDesc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
