package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	IncEvent(kind string)
	IncDecodeFailure()
	ObserveAPICall(method string, outcome string, duration time.Duration)
	IncReconnectScheduled()
	SetConnectionState(state int)
	ObserveColdStart(duration time.Duration, outcome string)
}

type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	decodeFailures     prometheus.Counter
	apiCallsTotal      *prometheus.CounterVec
	apiCallDuration    *prometheus.HistogramVec
	reconnectsTotal    prometheus.Counter
	connectionState    prometheus.Gauge
	coldStartDurations *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_events_total",
			Help: "Stream events applied, by kind",
		}, []string{"kind"}),

		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_decode_failures_total",
			Help: "Stream frames that could not be parsed",
		}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_api_calls_total",
			Help: "API calls by method and outcome",
		}, []string{"method", "outcome"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatsync_api_call_duration_seconds",
			Help:    "API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after the stream closed",
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Stream state: 0 disconnected, 1 connecting, 2 connected",
		}),

		coldStartDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatsync_cold_start_duration_seconds",
			Help:    "Duration of full synchronisation runs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncEvent(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncDecodeFailure() {
	m.decodeFailures.Inc()
}

func (m *Metrics) ObserveAPICall(method string, outcome string, duration time.Duration) {
	m.apiCallsTotal.WithLabelValues(method, outcome).Inc()
	m.apiCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) IncReconnectScheduled() {
	m.reconnectsTotal.Inc()
}

func (m *Metrics) SetConnectionState(state int) {
	m.connectionState.Set(float64(state))
}

func (m *Metrics) ObserveColdStart(duration time.Duration, outcome string) {
	m.coldStartDurations.WithLabelValues(outcome).Observe(duration.Seconds())
}

type noop struct{}

func Noop() Recorder { return noop{} }

func (noop) IncEvent(string) {}
func (noop) IncDecodeFailure() {}
func (noop) ObserveAPICall(string, string, time.Duration) {}
func (noop) IncReconnectScheduled() {}
func (noop) SetConnectionState(int) {}
func (noop) ObserveColdStart(time.Duration, string) {}
