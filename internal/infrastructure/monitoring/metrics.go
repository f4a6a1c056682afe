package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type StoreMetrics struct {
	CallDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	RegistrationsTotal *prometheus.CounterVec
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_registrar_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_registrar_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	Store = StoreMetrics{
		CallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_registrar_store_call_duration_seconds",
				Help:    "Histogram of key-value store round trips.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"call", "status"},
		),
	}

	Business = BusinessMetrics{
		RegistrationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_registrations_total",
				Help: "Loan registration attempts by write policy and terminal outcome.",
			},
			[]string{"policy", "outcome"},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordStoreCall(call, status string, duration time.Duration) {
	Store.CallDuration.WithLabelValues(call, status).Observe(duration.Seconds())
}

func RecordRegistration(policy, outcome string) {
	Business.RegistrationsTotal.WithLabelValues(policy, outcome).Inc()
}
