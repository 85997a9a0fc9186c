package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "conn_server"

const (
	RESULT_OK        = "ok"
	RESULT_ERROR     = "error"
	RESULT_PANIC     = "panic"
	RESULT_CANCELLED = "cancelled"

	DROP_OVERLOADED = "overloaded"
	DROP_DRAINING   = "draining"
	DROP_REJECTED   = "rejected"
)

// worker pool, acceptor, lifecycle controller가 공통으로 사용하는 기록 인터페이스.
type Recorder interface {
	ConnectionAccepted()
	ConnectionDropped(reason string)
	AcceptError(transient bool)
	ConnectionProcessed(result string, elapsed time.Duration)
	SetBusyWorkers(count int)
	SetQueueDepth(depth int)
	SetStalledConnections(count int)
	SetState(state string)
}

type Noop struct{}

func (Noop) ConnectionAccepted() {}
func (Noop) ConnectionDropped(string) {}
func (Noop) AcceptError(bool) {}
func (Noop) ConnectionProcessed(string, time.Duration) {}
func (Noop) SetBusyWorkers(int) {}
func (Noop) SetQueueDepth(int) {}
func (Noop) SetStalledConnections(int) {}
func (Noop) SetState(string) {}

// 전역 DefaultRegisterer 대신 인스턴스마다 registry를 둔다.
// 테스트에서 여러 서버를 동시에 띄워도 중복 등록 panic이 나지 않는다.
type Prometheus struct {
	registry     *prometheus.Registry
	accepted     prometheus.Counter
	dropped      *prometheus.CounterVec
	acceptErrors *prometheus.CounterVec
	processed    *prometheus.CounterVec
	duration     prometheus.Histogram
	busyWorkers  prometheus.Gauge
	queueDepth   prometheus.Gauge
	stalled      prometheus.Gauge
	state        *prometheus.GaugeVec
	states       []string
}

func NewPrometheus(states ...string) *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "connections_dropped_total",
			Help:      "Accepted connections closed without processing.",
		}, []string{"reason"}),
		acceptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "accept_errors_total",
			Help:      "Errors returned by the listener accept call.",
		}, []string{"transient"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "connections_processed_total",
			Help:      "Connections finished by a worker, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "connection_processing_seconds",
			Help:      "Time a worker spent on one connection.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "busy_workers",
			Help:      "Workers currently processing a connection.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "queue_depth",
			Help:      "Connections waiting for a worker.",
		}),
		stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "stalled_connections",
			Help:      "In-flight connections older than the stall threshold at the last health check.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "lifecycle_state",
			Help:      "1 for the current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		states: states,
	}

	m.registry.MustRegister(
		m.accepted,
		m.dropped,
		m.acceptErrors,
		m.processed,
		m.duration,
		m.busyWorkers,
		m.queueDepth,
		m.stalled,
		m.state,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Prometheus) ConnectionAccepted() {
	m.accepted.Inc()
}

func (m *Prometheus) ConnectionDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Prometheus) AcceptError(transient bool) {
	label := "false"
	if transient {
		label = "true"
	}

	m.acceptErrors.WithLabelValues(label).Inc()
}

func (m *Prometheus) ConnectionProcessed(result string, elapsed time.Duration) {
	m.processed.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Prometheus) SetBusyWorkers(count int) {
	m.busyWorkers.Set(float64(count))
}

func (m *Prometheus) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *Prometheus) SetStalledConnections(count int) {
	m.stalled.Set(float64(count))
}

func (m *Prometheus) SetState(state string) {
	for _, known := range m.states {
		m.state.WithLabelValues(known).Set(0)
	}

	m.state.WithLabelValues(state).Set(1)
}
