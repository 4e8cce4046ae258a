// Package metrics exposes Prometheus metrics for the coach service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goalcoach"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests  *prometheus.CounterVec
	ChatDuration  *prometheus.HistogramVec
	ModelPasses   *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	RateLimited   prometheus.Counter
	WSConnections prometheus.Gauge
}

// New registers the service collectors plus Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat turns by transport channel and outcome",
		}, []string{"channel", "status"}),
		ChatDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "request_duration_seconds",
			Help:      "Chat turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"channel"}),
		ModelPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "model_passes_total",
			Help:      "Total language model invocations by pass and outcome",
		}, []string{"pass", "status"}),
		ModelDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "model_pass_duration_seconds",
			Help:      "Language model invocation duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"pass"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool executions by tool and outcome",
		}, []string{"tool_name", "status"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"tool_name"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "rate_limited_total",
			Help:      "Chat requests rejected by the per-user rate limiter",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "websocket_connections",
			Help:      "Open chat WebSocket connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ModelPass records one language model invocation.
func (m *Metrics) ModelPass(pass string, elapsed time.Duration, err error) {
	m.ModelPasses.WithLabelValues(pass, status(err)).Inc()
	m.ModelDuration.WithLabelValues(pass).Observe(elapsed.Seconds())
}

// ToolExecuted records one tool execution.
func (m *Metrics) ToolExecuted(name string, elapsed time.Duration, err error) {
	m.ToolCalls.WithLabelValues(name, status(err)).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// RecordChat records a completed chat turn.
func (m *Metrics) RecordChat(channel string, elapsed time.Duration, err error) {
	m.ChatRequests.WithLabelValues(channel, status(err)).Inc()
	m.ChatDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
