package ingest

import (
    "context"
    "log"
    "time"

    "orderbridge/internal/events"
    "orderbridge/internal/metrics"
    "orderbridge/internal/model"
    "orderbridge/internal/store"
)

// Dispatcher fans one order change out to subscribers. Implemented by the
// dispatch package; failures stay inside the dispatcher.
type Dispatcher interface {
    Dispatch(ctx context.Context, o model.Order, eventKey, previousStatus string)
}

// Notifier receives every successful projection, used to feed live
// order streams. May be nil.
type Notifier func(o model.Order, eventKey string)

// Worker drains unprocessed inbound event rows on a ticker, with a nudge
// channel so freshly acknowledged webhooks are picked up without waiting a
// full interval. Rows stay unprocessed until handled, so events received
// just before a crash are retried on restart.
type Worker struct {
    store     store.Store
    projector *Projector
    dispatch  Dispatcher
    notify    Notifier
    interval  time.Duration
    batch     int
    nudge     chan struct{}
}

func NewWorker(st store.Store, d Dispatcher, notify Notifier, interval time.Duration) *Worker {
    if interval <= 0 { interval = 2 * time.Second }
    return &Worker{
        store:     st,
        projector: NewProjector(st),
        dispatch:  d,
        notify:    notify,
        interval:  interval,
        batch:     50,
        nudge:     make(chan struct{}, 1),
    }
}

// Nudge wakes the worker immediately. Non-blocking; a pending nudge is enough.
func (w *Worker) Nudge() {
    select {
    case w.nudge <- struct{}{}:
    default:
    }
}

// Run processes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
    ticker := time.NewTicker(w.interval)
    defer ticker.Stop()
    for {
        w.drain(ctx)
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
        case <-w.nudge:
        }
    }
}

func (w *Worker) drain(ctx context.Context) {
    for {
        batch, err := w.store.FetchUnprocessedInboundEvents(ctx, w.batch)
        if err != nil {
            log.Printf("fetch inbound events: %v", err)
            return
        }
        if len(batch) == 0 { return }
        for _, ev := range batch {
            if ctx.Err() != nil { return }
            if err := w.ProcessOne(ctx, ev); err != nil {
                // a row that cannot be acked would be refetched forever;
                // stop and let the next tick retry
                return
            }
        }
    }
}

// ProcessOne normalizes and projects a single stored event, then marks it
// processed. Processing failures are recorded on the row and never retried
// automatically; the row keeps the error for audit. The returned error is
// the ack failure, if any.
func (w *Worker) ProcessOne(ctx context.Context, ev model.InboundEvent) error {
    n, err := events.Normalize(ev)
    if err != nil {
        metrics.InboundEvents.WithLabelValues(ev.WireFormat, "error").Inc()
        log.Printf("normalize inbound event %s: %v", ev.ID, err)
        return w.ack(ctx, ev.ID, "normalize: "+err.Error())
    }
    if n == nil {
        // recognized non-order notification, nothing to project
        metrics.InboundEvents.WithLabelValues(ev.WireFormat, "ignored").Inc()
        return w.ack(ctx, ev.ID, "")
    }

    res, err := w.projector.Apply(ctx, n)
    if err != nil {
        metrics.InboundEvents.WithLabelValues(ev.WireFormat, "error").Inc()
        log.Printf("project inbound event %s: %v", ev.ID, err)
        return w.ack(ctx, ev.ID, "project: "+err.Error())
    }
    if res.NoOp {
        metrics.InboundEvents.WithLabelValues(ev.WireFormat, "noop").Inc()
        return w.ack(ctx, ev.ID, "")
    }
    metrics.InboundEvents.WithLabelValues(ev.WireFormat, "projected").Inc()

    for _, key := range eventKeys(res) {
        if w.dispatch != nil { w.dispatch.Dispatch(ctx, res.Order, key, res.PreviousStatus) }
        if w.notify != nil { w.notify(res.Order, key) }
    }
    return w.ack(ctx, ev.ID, "")
}

func (w *Worker) ack(ctx context.Context, id, processingError string) error {
    if err := w.store.MarkInboundEventProcessed(ctx, id, processingError); err != nil {
        log.Printf("mark inbound event %s processed: %v", id, err)
        return err
    }
    return nil
}

// eventKeys derives the outbound event keys for one projection: creation,
// status change, or plain update, with cancellation reported additionally
// when the order just became Cancelled.
func eventKeys(res ProjectionResult) []string {
    var keys []string
    switch {
    case res.Created:
        keys = append(keys, model.EventOrderCreated)
    case res.PreviousStatus != res.Order.Status:
        keys = append(keys, model.EventOrderStatusChanged)
    default:
        keys = append(keys, model.EventOrderUpdated)
    }
    if res.Order.Status == model.StatusCancelled && res.PreviousStatus != model.StatusCancelled {
        keys = append(keys, model.EventOrderCancelled)
    }
    return keys
}
