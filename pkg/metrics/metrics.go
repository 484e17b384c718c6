package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ImportBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viva_import_batches_total",
			Help: "Import batches by outcome (committed, rejected, failed)",
		},
		[]string{"outcome"},
	)

	ImportRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "viva_import_rows_total",
			Help: "Rows scanned by the importer",
		},
	)

	ExportRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viva_export_requests_total",
			Help: "Export requests by format and outcome",
		},
		[]string{"format", "outcome"},
	)

	ExportSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viva_export_skipped_questions_total",
			Help: "Questions left out of an export because the format cannot represent them",
		},
		[]string{"format"},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viva_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viva_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(ImportBatches, ImportRows, ExportRequests, ExportSkipped, RequestCounter, RequestDuration)
	})
}

// Middleware records request counts and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
