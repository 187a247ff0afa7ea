// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	uploads         prometheus.Counter
	uploadBytes     prometheus.Counter
	downloads       *prometheus.CounterVec
	downloadRetries prometheus.Counter
	deletes         prometheus.Counter
	orphanedBlobs   prometheus.Counter
	shares          *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "uploads_total",
			Help:      "Total number of completed uploads",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted by uploads",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "downloads_total",
			Help:      "Downloads by outcome classification",
		}, []string{"outcome"}),
		downloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "download_retries_total",
			Help:      "Blob download attempts repeated after a transient failure",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "deletes_total",
			Help:      "Total number of deleted files",
		}),
		orphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "orphaned_blobs_total",
			Help:      "Blobs left behind by a failed delete",
		}),
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "share_operations_total",
			Help:      "Share link operations by kind",
		}, []string{"operation"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pinpin",
			Name:      "key_redemptions_total",
			Help:      "Premium key redemptions by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pinpin",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.uploads,
		m.uploadBytes,
		m.downloads,
		m.downloadRetries,
		m.deletes,
		m.orphanedBlobs,
		m.shares,
		m.redemptions,
		m.requestDuration,
	)
	return m
}

// Upload records a completed upload of size bytes
func (m *Metrics) Upload(size int64) {
	if m == nil {
		return
	}
	m.uploads.Inc()
	m.uploadBytes.Add(float64(size))
}

// Download records a finished download. outcome is "ok" or an error classification.
func (m *Metrics) Download(outcome string, retries int) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
	m.downloadRetries.Add(float64(retries))
}

// Delete records a deleted file and whether its blob was orphaned
func (m *Metrics) Delete(orphaned bool) {
	if m == nil {
		return
	}
	m.deletes.Inc()
	if orphaned {
		m.orphanedBlobs.Inc()
	}
}

// Share records a share operation ("create" or "remove")
func (m *Metrics) Share(operation string) {
	if m == nil {
		return
	}
	m.shares.WithLabelValues(operation).Inc()
}

// Redemption records a key redemption outcome ("ok" or an error code)
func (m *Metrics) Redemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the latency of one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
