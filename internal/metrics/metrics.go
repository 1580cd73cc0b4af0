package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()

    // InboundEvents counts received upstream notifications by wire format and outcome
    InboundEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "inbound_events_total", Help: "Inbound upstream events by wire format and outcome."},
        []string{"wire_format", "outcome"},
    )
    // UnmappedStatuses counts status spellings the normalizer could not map
    UnmappedStatuses = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "unmapped_statuses_total", Help: "Upstream status spellings with no canonical mapping."},
        []string{"status"},
    )
    // Projections counts order projections by result
    Projections = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "order_projections_total", Help: "Order projections by result (created, updated, noop)."},
        []string{"result"},
    )
    // Deliveries counts logical outbound deliveries by event type and final state
    Deliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "outbound_deliveries_total", Help: "Outbound deliveries by event type and final state."},
        []string{"event_type", "state"},
    )
    // DeliveryLatency tracks per-attempt latencies in milliseconds
    DeliveryLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "outbound_delivery_latency_ms", Help: "Outbound delivery attempt latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "state"},
    )
    // TokenRefreshes counts upstream token refresh calls by outcome
    TokenRefreshes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "upstream_token_refreshes_total", Help: "Upstream access token refreshes by outcome."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(InboundEvents)
        Registry.MustRegister(UnmappedStatuses)
        Registry.MustRegister(Projections)
        Registry.MustRegister(Deliveries)
        Registry.MustRegister(DeliveryLatency)
        Registry.MustRegister(TokenRefreshes)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
