package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// Every Observe method is a no-op on a nil *Metrics.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	AnswersTotal    *prometheus.CounterVec
	PublishTotal    *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	OpenFeeds       *prometheus.GaugeVec
	Reconciliations *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	SubmitLatency   prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of survey sessions accepting answers.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		AnswersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answer submissions by outcome.",
		}, []string{"outcome"}),
		PublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Answer event publications by outcome.",
		}, []string{"outcome"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers.",
		}),
		OpenFeeds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_feeds",
			Help:      "Open results feeds by delivery mode.",
		}, []string{"mode"}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Full resnapshots of live aggregates by reason and result.",
		}, []string{"reason", "result"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_latency_ms",
			Help:      "Latency from submission to durable append and publish in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		stages: newStageWindow(512),
	}
}

func (m *Metrics) ObserveAnswer(outcome string) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePublish(outcome string) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		m.stages.ObserveIndicator("publish_" + outcome)
	}
}

func (m *Metrics) ObserveDroppedEvent() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
	m.stages.ObserveIndicator("event_dropped")
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) FeedOpened(mode string) {
	if m == nil {
		return
	}
	m.OpenFeeds.WithLabelValues(mode).Inc()
}

func (m *Metrics) FeedClosed(mode string) {
	if m == nil {
		return
	}
	m.OpenFeeds.WithLabelValues(mode).Dec()
}

// ObserveReconcile records a full resnapshot. drift reports whether the live
// aggregate had diverged from the store.
func (m *Metrics) ObserveReconcile(reason string, drift bool) {
	if m == nil {
		return
	}
	result := "in_sync"
	if drift {
		result = "drift_corrected"
		m.stages.ObserveIndicator("drift_corrected")
	}
	m.Reconciliations.WithLabelValues(reason, result).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SubmitLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageSubmitTotal, durationMS(d))
}

// ObserveStage records one sample in the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, durationMS(d))
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
