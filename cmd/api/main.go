package main

import (
    "log"
    "net/http"
    "os"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "tripmatch/internal/api"
    "tripmatch/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Trip requests
    mux.HandleFunc("/v1/requests", srvDeps.RequestsHandler)
    mux.HandleFunc("/v1/requests/", srvDeps.RequestByIDHandler) // includes /status, /matching-runs

    // Package catalog
    mux.HandleFunc("/v1/packages", srvDeps.PackagesHandler)
    mux.HandleFunc("/v1/packages/", srvDeps.PackageByIDHandler)

    // Matching
    mux.HandleFunc("/v1/matching/execute", srvDeps.MatchingExecuteHandler)
    mux.HandleFunc("/v1/matching/algorithms", srvDeps.MatchingAlgorithmsHandler)

    // Conversion workflow
    mux.HandleFunc("/v1/conversions", srvDeps.ConversionsHandler)
    mux.HandleFunc("/v1/conversions/", srvDeps.ConversionByIDHandler) // includes /matching, /pricing, /select, /convert, /events/stream
    mux.HandleFunc("/v1/conversions/analytics", srvDeps.ConversionsHandler)
    mux.HandleFunc("/v1/conversions/ws", srvDeps.ConversionWSHandler)

    // Bookings
    mux.HandleFunc("/v1/bookings/", srvDeps.BookingByIDHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Admin
    mux.HandleFunc("/v1/admin/matching-metrics", srvDeps.MatchingMetricsHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq", srvDeps.WebhookDLQHandler)
    mux.HandleFunc("/v1/admin/webhook-dlq/", srvDeps.WebhookDLQHandler)
    mux.HandleFunc("/debug/info", srvDeps.DebugJSON)

    // Docs
    mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
    mux.HandleFunc("/docs", srvDeps.DocsHandler)
    mux.HandleFunc("/swagger", srvDeps.SwaggerHandler)

    // Prometheus metrics
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    // GraphQL subscription bridge (SSE) for conversion events
    mux.HandleFunc("/graphql/subscriptions/conversion-events", func(w http.ResponseWriter, r *http.Request) {
        // bridge to existing SSE handler: /v1/conversions/{sessionId}/events/stream
        id := r.URL.Query().Get("sessionId")
        if id == "" { http.Error(w, "sessionId required", http.StatusBadRequest); return }
        // rewrite path and delegate
        r.URL.Path = "/v1/conversions/" + id + "/events/stream"
        srvDeps.ConversionByIDHandler(w, r)
    })

    // GraphQL WebSocket subscriptions endpoint
    mux.HandleFunc("/graphql/ws", srvDeps.ConversionWSHandler)

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    handler := logMiddleware(api.MetricsMiddleware(srvDeps.RateLimitMiddleware(mux)))
    srv := &http.Server{
        Addr:              addr,
        Handler:           handler,
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    // Start webhook worker
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
