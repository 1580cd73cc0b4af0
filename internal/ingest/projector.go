// Package ingest drains the inbound event queue: normalize, project onto
// the local order, then hand the change to the outbound dispatcher.
package ingest

import (
    "context"
    "errors"
    "fmt"
    "log"

    "orderbridge/internal/metrics"
    "orderbridge/internal/model"
    "orderbridge/internal/store"
)

// ProjectionResult reports what applying one normalized event did.
type ProjectionResult struct {
    Order          model.Order
    Created        bool
    NoOp           bool
    PreviousStatus string
}

// Projector applies normalized events to order rows. Business-level
// mismatches (update for an unknown order) are logged no-ops; only storage
// failures surface as errors.
type Projector struct {
    store store.Store
}

func NewProjector(st store.Store) *Projector {
    return &Projector{store: st}
}

// Apply resolves the order by upstream id, falling back to the external
// key, merges the event's non-empty fields, and persists. A CREATE with no
// match creates the order; an UPDATE with no match never does.
func (p *Projector) Apply(ctx context.Context, n *model.NormalizedEvent) (ProjectionResult, error) {
    if n.StatusUnmapped {
        metrics.UnmappedStatuses.WithLabelValues(n.Status).Inc()
        log.Printf("unmapped order status %q (order %s)", n.Status, orderKey(n))
    }

    existing, found, err := p.resolve(ctx, n)
    if err != nil {
        metrics.Projections.WithLabelValues("error").Inc()
        return ProjectionResult{}, err
    }

    if found {
        prev := existing.Status
        merge(&existing, n)
        updated, err := p.store.UpdateOrder(ctx, existing)
        if err != nil {
            metrics.Projections.WithLabelValues("error").Inc()
            return ProjectionResult{}, err
        }
        metrics.Projections.WithLabelValues("updated").Inc()
        return ProjectionResult{Order: updated, PreviousStatus: prev}, nil
    }

    if n.Kind != "CREATE" {
        log.Printf("order not found for update (%s), ignoring", orderKey(n))
        metrics.Projections.WithLabelValues("noop").Inc()
        return ProjectionResult{NoOp: true}, nil
    }

    o := model.Order{}
    merge(&o, n)
    created, err := p.store.CreateOrder(ctx, o)
    if err != nil {
        metrics.Projections.WithLabelValues("error").Inc()
        return ProjectionResult{}, err
    }
    metrics.Projections.WithLabelValues("created").Inc()
    return ProjectionResult{Order: created, Created: true}, nil
}

func (p *Projector) resolve(ctx context.Context, n *model.NormalizedEvent) (model.Order, bool, error) {
    if n.UpstreamOrderID != "" {
        o, err := p.store.FindOrderByUpstreamID(ctx, n.UpstreamOrderID)
        if err == nil { return o, true, nil }
        if !errors.Is(err, store.ErrNotFound) { return model.Order{}, false, err }
    }
    if n.ExternalKey != "" {
        o, err := p.store.FindOrderByExternalKey(ctx, n.ExternalKey)
        if err == nil { return o, true, nil }
        if !errors.Is(err, store.ErrNotFound) { return model.Order{}, false, err }
    }
    return model.Order{}, false, nil
}

// merge copies the event's non-empty fields onto the order. Status always
// wins when present; absent fields leave the order untouched.
func merge(o *model.Order, n *model.NormalizedEvent) {
    if n.UpstreamOrderID != "" { o.UpstreamOrderID = n.UpstreamOrderID }
    if n.ExternalKey != "" { o.ExternalKey = n.ExternalKey }
    if n.ReadableNumber != "" { o.ReadableNumber = n.ReadableNumber }
    if n.OrganizationID != "" { o.OrganizationID = n.OrganizationID }
    if n.Status != "" { o.Status = n.Status }
    if n.OrderType != "" { o.OrderType = n.OrderType }
    if n.RestaurantName != "" { o.RestaurantName = n.RestaurantName }
    if n.AmountMinor != nil { o.TotalAmount = *n.AmountMinor }
    if n.Courier != nil {
        o.CourierID = n.Courier.ID
        o.CourierName = n.Courier.Name
    }
    if n.Customer != nil {
        if n.Customer.Name != "" { o.CustomerName = n.Customer.Name }
        if n.Customer.Phone != "" { o.CustomerPhone = n.Customer.Phone }
        if n.Customer.Address != "" { o.DeliveryAddress = n.Customer.Address }
    }
    if n.PromisedTime != nil { o.PromisedTime = n.PromisedTime }
    if n.Problem != "" { o.Problem = n.Problem }
    if n.CreationStatus != "" { o.CreationStatus = n.CreationStatus }
    if n.ErrorInfo != "" { o.ErrorInfo = n.ErrorInfo }
    if len(n.RawPayload) > 0 { o.RawPayload = n.RawPayload }
}

func orderKey(n *model.NormalizedEvent) string {
    if n.UpstreamOrderID != "" { return "upstream " + n.UpstreamOrderID }
    if n.ExternalKey != "" { return "external " + n.ExternalKey }
    return fmt.Sprintf("no key, kind %s", n.Kind)
}
