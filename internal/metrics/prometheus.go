package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "endpoint", "status"},
	)
	scrapeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scrape_outcomes_total",
			Help: "Product resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	scrapeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_scrape_resolution_seconds",
			Help:    "Time spent resolving one product.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)
	syncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_mirror_syncs_total",
			Help: "Spreadsheet mirror regenerations by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(scrapeOutcomes)
	prometheus.MustRegister(scrapeDuration)
	prometheus.MustRegister(syncTotal)
}

// RecordRequest records metrics for one HTTP request.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordResolution counts one resolver outcome ("found", "not_found", "error").
func RecordResolution(kind string, duration time.Duration) {
	scrapeOutcomes.WithLabelValues(kind).Inc()
	scrapeDuration.Observe(duration.Seconds())
}

// RecordSync counts one mirror regeneration.
func RecordSync(err error) {
	if err != nil {
		syncTotal.WithLabelValues("failed").Inc()
		return
	}
	syncTotal.WithLabelValues("ok").Inc()
}

func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	}
	return "unknown"
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
