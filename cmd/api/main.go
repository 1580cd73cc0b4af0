package main

import (
    "context"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "orderbridge/internal/api"
    "orderbridge/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Inbound upstream webhooks
    mux.HandleFunc("/v1/webhooks/upstream", srvDeps.InboundWebhookHandler)
    mux.HandleFunc("/v1/webhooks/events", srvDeps.InboundEventsHandler)

    // Orders
    mux.HandleFunc("/v1/orders", srvDeps.OrdersHandler)
    mux.HandleFunc("/v1/orders/", srvDeps.OrderByIDHandler) // includes /status, /cancel, /courier, /refresh, /events/stream

    // Outbound subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Upstream pass-throughs
    mux.HandleFunc("/v1/upstream/register-webhook", srvDeps.RegisterWebhookHandler)
    mux.HandleFunc("/v1/upstream/organizations", srvDeps.UpstreamOrganizationsHandler)
    mux.HandleFunc("/v1/upstream/stop-lists", srvDeps.UpstreamStopListsHandler)

    // Admin
    mux.HandleFunc("/v1/admin/delivery-logs", srvDeps.DeliveryLogsHandler)
    mux.HandleFunc("/v1/admin/delivery-stats", srvDeps.DeliveryStatsHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Metrics
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // Background inbound event worker and token ticker
    go srvDeps.Worker.Run(ctx)
    srvDeps.Tokens.StartTicker()
    defer srvDeps.Tokens.Stop()

    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutdownCtx)
    }()

    log.Printf("API listening on %s", addr)
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
