// Package observability carries the process-wide logger and prometheus
// metrics.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "critters",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "critters",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	editsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "critters",
			Subsystem: "store",
			Name:      "edits_total",
			Help:      "Apply-edits items by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	staleCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "critters",
			Subsystem: "editor",
			Name:      "stale_completions_total",
			Help:      "Round-trip completions discarded because a newer request was issued.",
		},
	)
	editorSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "critters",
			Subsystem: "editor",
			Name:      "sessions",
			Help:      "Live edit sessions.",
		},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, editsApplied, staleCompletions, editorSessions)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordEdit counts one apply-edits item. kind is add, update or delete.
func RecordEdit(kind string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	editsApplied.WithLabelValues(kind, outcome).Inc()
}

func RecordStaleCompletion() {
	staleCompletions.Inc()
}

func SetSessions(n int) {
	editorSessions.Set(float64(n))
}
