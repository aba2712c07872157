package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cdprepeater"

// Metrics 引擎运行指标，使用独立的 registry
type Metrics struct {
	registry *prometheus.Registry

	Intercepted     prometheus.Counter
	Evictions       prometheus.Counter
	BodyFetches     *prometheus.CounterVec
	SessionFiltered prometheus.Counter
	IgnoredFrames   *prometheus.CounterVec
	RelayDrops      prometheus.Counter
	RelayFailures   prometheus.Counter
	Repeats         *prometheus.CounterVec
	HistorySize     prometheus.Gauge
	PendingCommands prometheus.Gauge
}

// New 创建并注册全部指标
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		Intercepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intercepted_requests_total",
			Help:      "Paused requests seen on the monitored session",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Records evicted from the request history",
		}),
		BodyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_fetches_total",
			Help:      "Response body resolutions by outcome",
		}, []string{"outcome"}),
		SessionFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_filtered_frames_total",
			Help:      "Frames dropped because they belong to another session",
		}),
		IgnoredFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_frames_total",
			Help:      "Inbound frames not handled by the engine",
		}, []string{"reason"}),
		RelayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Notifications dropped because the relay queue was full",
		}),
		RelayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_delivery_failures_total",
			Help:      "Notifications the UI transport did not accept",
		}),
		Repeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repeats_total",
			Help:      "Repeated requests by outcome",
		}, []string{"outcome"}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Records currently held in the request history",
		}),
		PendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_commands",
			Help:      "Commands awaiting a reply",
		}),
	}
	r.MustRegister(m.Intercepted, m.Evictions, m.BodyFetches, m.SessionFiltered, m.IgnoredFrames,
		m.RelayDrops, m.RelayFailures, m.Repeats, m.HistorySize, m.PendingCommands)
	return m
}

// Registry 返回指标 registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
