package presence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the poller's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Ticks         prometheus.Counter
	Results       *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	Status        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presenced_ticks_total",
			Help: "Total number of poll ticks started",
		}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenced_results_total",
			Help: "Committed tick results, split by error kind (none on success)",
		}, []string{"kind"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "presenced_fetch_duration_seconds",
			Help:    "Latency of presence fetches, including cancelled ones",
			Buckets: prometheus.DefBuckets,
		}),
		Status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presenced_poller_status",
			Help: "Current poller status (0 idle, 1 not_configured, 2 loading, 3 ready, 4 errored)",
		}),
	}
	reg.MustRegister(m.Ticks, m.Results, m.FetchDuration, m.Status)
	return m
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) result(err error) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(ErrorKind(err)).Inc()
}

func (m *Metrics) observeFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) observeStatus(s Status) {
	if m == nil {
		return
	}
	m.Status.Set(float64(s))
}
