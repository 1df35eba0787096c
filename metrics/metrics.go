package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncFilterInstalled(kind string)
	SetFiltersActive(count int)

	IncSweep()
	ObserveSweepDuration(d time.Duration)
	IncUpdateFailure(kind string)

	AddUptime(float64)
}

// FilterMetrics contains instrumented metrics that should be incremented by the filter manager using the methods below
type FilterMetrics struct {
	uptime prometheus.Counter

	numFiltersInstalled *prometheus.CounterVec
	numFiltersActive    prometheus.Gauge

	numSweeps     prometheus.Counter
	sweepDuration prometheus.Histogram
	// a failure leaves the filter one tick stale, it never reaches the client
	numUpdateFailures *prometheus.CounterVec
}

const apNamespace = "ap"

func NewFilterMetrics(reg prometheus.Registerer) *FilterMetrics {
	return &FilterMetrics{
		uptime: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "uptime_milliseconds_total",
				Help:      "The elapse time in milliseconds since the gateway is booted",
			}),

		numFiltersInstalled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "filters_installed_total",
				Help:      "The number of filters installed by clients",
			}, []string{"kind"}),

		numFiltersActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: apNamespace,
				Name:      "filters_active",
				Help:      "The number of filters currently installed",
			}),

		numSweeps: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "filter_sweeps_total",
				Help:      "The number of update sweeps over all filters. If it isn't increasing while filters exist, the block tracker is stuck",
			}),

		sweepDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: apNamespace,
				Name:      "filter_sweep_duration_seconds",
				Help:      "Time spent updating every filter for one head change. Requests wait on this",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			}),

		numUpdateFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "filter_update_failures_total",
				Help:      "The number of filter updates that failed during a sweep",
			}, []string{"kind"}),
	}
}

func (m *FilterMetrics) IncFilterInstalled(kind string) {
	m.numFiltersInstalled.WithLabelValues(kind).Inc()
}

func (m *FilterMetrics) SetFiltersActive(count int) {
	m.numFiltersActive.Set(float64(count))
}

func (m *FilterMetrics) IncSweep() {
	m.numSweeps.Inc()
}

func (m *FilterMetrics) ObserveSweepDuration(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

func (m *FilterMetrics) IncUpdateFailure(kind string) {
	m.numUpdateFailures.WithLabelValues(kind).Inc()
}

func (m *FilterMetrics) AddUptime(total float64) {
	m.uptime.Add(total)
}

// NoopMetrics discards everything. Used when metrics are disabled and in tests.
type NoopMetrics struct{}

func (NoopMetrics) IncFilterInstalled(string)          {}
func (NoopMetrics) SetFiltersActive(int)               {}
func (NoopMetrics) IncSweep()                          {}
func (NoopMetrics) ObserveSweepDuration(time.Duration) {}
func (NoopMetrics) IncUpdateFailure(string)            {}
func (NoopMetrics) AddUptime(float64)                  {}
