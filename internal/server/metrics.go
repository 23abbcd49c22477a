package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/gcslaoli/provenance-watermark-go/internal/batch"
)

// Metrics are the Prometheus collectors exported on /metrics.
type Metrics struct {
	requests *prometheus.CounterVec
	rejected *prometheus.CounterVec
	images   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aiprotect"
	}
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Watermark requests by response status code",
		}, []string{"code"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Watermark requests rejected by reason",
		}, []string{"reason"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_processed_total",
			Help:      "Images watermarked by watermark type",
		}, []string{"type"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_skipped_total",
			Help:      "Best-effort stages that did not apply, by stage",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to validate, watermark and package a batch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// Register registers every collector, collecting all failures.
func (m *Metrics) Register(r prometheus.Registerer) error {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	var mErr error
	for _, c := range []prometheus.Collector{m.requests, m.rejected, m.images, m.skipped, m.duration} {
		if err := r.Register(c); err != nil {
			mErr = multierr.Append(mErr, err)
		}
	}
	return mErr
}

func (m *Metrics) observeResult(res *batch.Result, typ string) {
	for _, out := range res.Outputs {
		m.images.WithLabelValues(typ).Inc()
		if typ != "visible" {
			if !out.Report.BitPlaneApplied {
				m.skipped.WithLabelValues("bitplane").Inc()
			}
			if !out.Report.TransformApplied {
				m.skipped.WithLabelValues("transform").Inc()
			}
		}
		if !out.Metadata.Applied {
			m.skipped.WithLabelValues("metadata").Inc()
		}
	}
}
