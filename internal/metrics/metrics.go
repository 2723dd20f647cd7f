// Package metrics exposes Prometheus collectors for voice sessions and the
// development pipeline server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicecall"

// Metrics bundles the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	Reconnects       prometheus.Counter
	ToolDispatches   *prometheus.CounterVec
	KnowledgeFetches *prometheus.CounterVec
	Interruptions    prometheus.Counter
	CaptureDrops     prometheus.Counter
	PipelineConns    prometheus.Gauge
	PipelineFrames   *prometheus.CounterVec
}

// New registers all collectors, plus Go runtime collectors, on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active",
			Help: "Sessions currently in the active state.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_state_transitions_total",
			Help: "Session state transitions by source and target state.",
		}, []string{"from", "to"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transport_reconnects_total",
			Help: "Pipeline reconnection attempts.",
		}),
		ToolDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_dispatches_total",
			Help: "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		KnowledgeFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "knowledge_lookups_total",
			Help: "Knowledge cache lookups by outcome.",
		}, []string{"outcome"}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "playback_interruptions_total",
			Help: "Agent playback cut short by barge-in or a newer buffer.",
		}),
		CaptureDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capture_dropped_chunks_total",
			Help: "Microphone chunks dropped because the sender was behind.",
		}),
		PipelineConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipeline_connections",
			Help: "Open connections on the development pipeline.",
		}),
		PipelineFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_frames_total",
			Help: "Frames handled by the development pipeline by direction and type.",
		}, []string{"direction", "type"}),
	}
	reg.MustRegister(
		m.SessionsActive, m.StateTransitions, m.Reconnects, m.ToolDispatches,
		m.KnowledgeFetches, m.Interruptions, m.CaptureDrops, m.PipelineConns, m.PipelineFrames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Transition records a state change and keeps the active gauge in step.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
	if to == "active" {
		m.SessionsActive.Inc()
	} else if from == "active" {
		m.SessionsActive.Dec()
	}
}

// Reconnect records one redial.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// ToolDispatch records a tool result.
func (m *Metrics) ToolDispatch(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolDispatches.WithLabelValues(tool, outcome).Inc()
}

// KnowledgeLookup records a cache lookup outcome.
func (m *Metrics) KnowledgeLookup(outcome string) {
	if m == nil {
		return
	}
	m.KnowledgeFetches.WithLabelValues(outcome).Inc()
}

// Interruption records a cut-short playback.
func (m *Metrics) Interruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// CaptureDrop records a dropped microphone chunk.
func (m *Metrics) CaptureDrop() {
	if m == nil {
		return
	}
	m.CaptureDrops.Inc()
}

// PipelineFrame records a frame on the development pipeline.
func (m *Metrics) PipelineFrame(direction, eventType string) {
	if m == nil {
		return
	}
	m.PipelineFrames.WithLabelValues(direction, eventType).Inc()
}

// PipelineOpened and PipelineClosed track open pipeline connections.
func (m *Metrics) PipelineOpened() {
	if m == nil {
		return
	}
	m.PipelineConns.Inc()
}

func (m *Metrics) PipelineClosed() {
	if m == nil {
		return
	}
	m.PipelineConns.Dec()
}
