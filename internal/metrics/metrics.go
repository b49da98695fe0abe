package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // MatchingRuns counts matching executions by algorithm
    MatchingRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "matching_runs_total", Help: "Matching executions by algorithm."},
        []string{"algorithm"},
    )
    // MatchingDuration tracks matching execution time in milliseconds
    MatchingDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "matching_duration_ms", Help: "Matching execution time in ms.", Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}},
        []string{"algorithm"},
    )
    // MatchesFound tracks result-set sizes per run
    MatchesFound = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "matching_results", Help: "Matches returned per run.", Buckets: []float64{0, 1, 2, 5, 10, 20, 50}},
        []string{"algorithm"},
    )

    // ConversionTransitions counts workflow transitions by target status
    ConversionTransitions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "conversion_transitions_total", Help: "Conversion session transitions by status."},
        []string{"status"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(MatchingRuns)
        Registry.MustRegister(MatchingDuration)
        Registry.MustRegister(MatchesFound)
        Registry.MustRegister(ConversionTransitions)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
