package discovery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports scan counters to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	scans     prometheus.Counter
	datagrams prometheus.Counter
	decoded   prometheus.Counter
	dropped   *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics registers discovery metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugscan_scans_total",
			Help: "Discovery probes sent.",
		}),
		datagrams: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugscan_datagrams_total",
			Help: "Reply datagrams received.",
		}),
		decoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugscan_devices_decoded_total",
			Help: "Replies decoded into device records.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plugscan_replies_dropped_total",
			Help: "Replies discarded, by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plugscan_scan_duration_seconds",
			Help:    "Wall-clock time from probe to socket close.",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
		}),
	}
	reg.MustRegister(m.scans, m.datagrams, m.decoded, m.dropped, m.duration)

	// Expose every reason at zero so dashboards see the full series set
	for _, reason := range AllDropReasons {
		m.dropped.WithLabelValues(string(reason))
	}
	return m
}

func (m *Metrics) scanStarted() {
	if m == nil {
		return
	}
	m.scans.Inc()
}

func (m *Metrics) observe(r Reply) {
	if m == nil {
		return
	}
	m.datagrams.Inc()
	if r.OK() {
		m.decoded.Inc()
		return
	}
	m.dropped.WithLabelValues(string(r.Reason)).Inc()
}

func (m *Metrics) scanFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
