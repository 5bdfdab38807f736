package server

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"nostr-zapwallet/internal/payment"
)

var serverStartTime = time.Now()

// HTTP metrics
var (
	httpRequestsTotal atomic.Int64
	httpErrorsTotal   atomic.Int64
)

// Payment metrics
var (
	paymentsSucceeded atomic.Int64
	paymentsFailed    atomic.Int64
	paymentsDisabled  atomic.Int64
)

func recordOutcome(status payment.Status) {
	switch status {
	case payment.StatusSuccess:
		paymentsSucceeded.Add(1)
	case payment.StatusDisabled:
		paymentsDisabled.Add(1)
	default:
		paymentsFailed.Add(1)
	}
}

// metricsHandler serves Prometheus-compatible metrics
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP process_uptime_seconds Time since process started\n")
	fmt.Fprintf(w, "# TYPE process_uptime_seconds gauge\n")
	fmt.Fprintf(w, "process_uptime_seconds %.0f\n\n", time.Since(serverStartTime).Seconds())

	fmt.Fprintf(w, "# HELP go_goroutines Number of active goroutines\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", httpRequestsTotal.Load())

	fmt.Fprintf(w, "# HELP http_errors_total Total number of HTTP 5xx errors\n")
	fmt.Fprintf(w, "# TYPE http_errors_total counter\n")
	fmt.Fprintf(w, "http_errors_total %d\n\n", httpErrorsTotal.Load())

	fmt.Fprintf(w, "# HELP zapwallet_payments_total Payment attempts by outcome\n")
	fmt.Fprintf(w, "# TYPE zapwallet_payments_total counter\n")
	fmt.Fprintf(w, "zapwallet_payments_total{status=\"success\"} %d\n", paymentsSucceeded.Load())
	fmt.Fprintf(w, "zapwallet_payments_total{status=\"failed\"} %d\n", paymentsFailed.Load())
	fmt.Fprintf(w, "zapwallet_payments_total{status=\"disabled\"} %d\n", paymentsDisabled.Load())
}
