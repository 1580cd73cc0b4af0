package ingest

import (
    "context"
    "errors"
    "sync"
    "testing"

    "orderbridge/internal/model"
    "orderbridge/internal/store"
)

type recordedDispatch struct {
    Order    model.Order
    EventKey string
    Previous string
}

type fakeDispatcher struct {
    mu    sync.Mutex
    calls []recordedDispatch
}

func (d *fakeDispatcher) Dispatch(_ context.Context, o model.Order, eventKey, previousStatus string) {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.calls = append(d.calls, recordedDispatch{Order: o, EventKey: eventKey, Previous: previousStatus})
}

func (d *fakeDispatcher) keys() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    out := make([]string, len(d.calls))
    for i, c := range d.calls { out[i] = c.EventKey }
    return out
}

func amount(v int64) *int64 { return &v }

func TestProjectorCreateThenUpdate(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    p := NewProjector(st)

    res, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind:            "CREATE",
        UpstreamOrderID: "up-1",
        ExternalKey:     "ext-1",
        Status:          model.StatusCookingStarted,
        AmountMinor:     amount(152050),
    })
    if err != nil { t.Fatal(err) }
    if !res.Created { t.Fatal("expected creation") }
    if res.Order.Status != model.StatusCookingStarted { t.Errorf("status = %q", res.Order.Status) }
    if res.Order.TotalAmount != 152050 { t.Errorf("amount = %d", res.Order.TotalAmount) }

    // update matched by upstream id, amount absent so it must not reset
    res2, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind:            "UPDATE",
        UpstreamOrderID: "up-1",
        Status:          model.StatusDelivered,
    })
    if err != nil { t.Fatal(err) }
    if res2.Created { t.Fatal("update created a second order") }
    if res2.PreviousStatus != model.StatusCookingStarted { t.Errorf("previous = %q", res2.PreviousStatus) }
    if res2.Order.ID != res.Order.ID { t.Fatal("update resolved a different order") }
    if res2.Order.Status != model.StatusDelivered { t.Errorf("status = %q", res2.Order.Status) }
    if res2.Order.TotalAmount != 152050 { t.Errorf("amount drifted to %d", res2.Order.TotalAmount) }

    orders, _, _ := st.ListOrders(ctx, "", "", 10)
    if len(orders) != 1 { t.Fatalf("order count = %d", len(orders)) }
}

func TestProjectorUpdateWithoutMatchIsNoOp(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    p := NewProjector(st)

    res, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind:            "UPDATE",
        UpstreamOrderID: "ghost",
        Status:          model.StatusDelivered,
    })
    if err != nil { t.Fatal(err) }
    if !res.NoOp { t.Fatal("expected no-op for unmatched update") }

    orders, _, _ := st.ListOrders(ctx, "", "", 10)
    if len(orders) != 0 { t.Fatalf("phantom order created, count = %d", len(orders)) }
}

func TestProjectorExternalKeyFallback(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    p := NewProjector(st)

    if _, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind:        "CREATE",
        ExternalKey: "ext-9",
        Status:      model.StatusUnconfirmed,
    }); err != nil { t.Fatal(err) }

    // the upstream id arrives later; the external key must still match
    res, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind:            "UPDATE",
        UpstreamOrderID: "up-9",
        ExternalKey:     "ext-9",
        Status:          model.StatusWaitingCooking,
    })
    if err != nil { t.Fatal(err) }
    if res.Created || res.NoOp { t.Fatalf("result = %+v", res) }
    if res.Order.UpstreamOrderID != "up-9" { t.Errorf("upstream id not merged: %q", res.Order.UpstreamOrderID) }
}

func TestProjectorIdempotentUpdate(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    p := NewProjector(st)

    if _, err := p.Apply(ctx, &model.NormalizedEvent{
        Kind: "CREATE", UpstreamOrderID: "up-2", Status: model.StatusUnconfirmed,
    }); err != nil { t.Fatal(err) }

    upd := &model.NormalizedEvent{
        Kind: "UPDATE", UpstreamOrderID: "up-2",
        Status: model.StatusOnWay, AmountMinor: amount(500),
    }
    first, err := p.Apply(ctx, upd)
    if err != nil { t.Fatal(err) }
    second, err := p.Apply(ctx, upd)
    if err != nil { t.Fatal(err) }
    if second.Order.Status != first.Order.Status || second.Order.TotalAmount != first.Order.TotalAmount {
        t.Fatalf("repeat apply drifted: %+v vs %+v", first.Order, second.Order)
    }
    orders, _, _ := st.ListOrders(ctx, "", "", 10)
    if len(orders) != 1 { t.Fatalf("order count = %d", len(orders)) }
}

func TestWorkerEndToEndSOIScenario(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    disp := &fakeDispatcher{}
    w := NewWorker(st, disp, nil, 0)

    createBody := `{
        "type": "CREATE",
        "orderExternalId": "20200831-515",
        "transactionDetails": {"organizationId": "org-1"},
        "iikoOrderDetails": {"iikoOrderId": "iiko-1", "orderStatus": "COOKING_STARTED", "orderAmount": 1520.50}
    }`
    _, _ = st.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireSOI, EventType: "CREATE", Payload: []byte(createBody)})
    w.drain(ctx)

    o, err := st.FindOrderByExternalKey(ctx, "20200831-515")
    if err != nil { t.Fatalf("order not created: %v", err) }
    if o.Status != model.StatusCookingStarted { t.Errorf("status = %q", o.Status) }
    if o.TotalAmount != 152050 { t.Errorf("amount = %d", o.TotalAmount) }

    updateBody := `{
        "type": "UPDATE",
        "orderExternalId": "20200831-515",
        "transactionDetails": {"organizationId": "org-1"},
        "iikoOrderDetails": {"iikoOrderId": "iiko-1", "orderStatus": "DELIVERED"}
    }`
    _, _ = st.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireSOI, EventType: "UPDATE", Payload: []byte(updateBody)})
    w.drain(ctx)

    o2, err := st.FindOrderByUpstreamID(ctx, "iiko-1")
    if err != nil { t.Fatal(err) }
    if o2.ID != o.ID { t.Fatal("update hit a different order") }
    if o2.Status != model.StatusDelivered { t.Errorf("status = %q", o2.Status) }

    keys := disp.keys()
    if len(keys) != 2 || keys[0] != model.EventOrderCreated || keys[1] != model.EventOrderStatusChanged {
        t.Fatalf("dispatched keys = %v", keys)
    }

    ev1, _, _ := st.ListInboundEvents(ctx, "", 10)
    for _, ev := range ev1 {
        if !ev.Processed { t.Errorf("event %s left unprocessed", ev.ID) }
        if ev.ProcessingError != "" { t.Errorf("event %s error %q", ev.ID, ev.ProcessingError) }
    }
}

func TestWorkerCancellationEmitsBothKeys(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    disp := &fakeDispatcher{}
    w := NewWorker(st, disp, nil, 0)

    if _, err := st.CreateOrder(ctx, model.Order{UpstreamOrderID: "up-c", Status: model.StatusOnWay}); err != nil { t.Fatal(err) }
    body := `{"eventType":"DeliveryOrderUpdate","eventInfo":{"id":"up-c","status":"CANCELLED"}}`
    _, _ = st.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireCloud, Payload: []byte(body)})
    w.drain(ctx)

    keys := disp.keys()
    if len(keys) != 2 || keys[0] != model.EventOrderStatusChanged || keys[1] != model.EventOrderCancelled {
        t.Fatalf("dispatched keys = %v", keys)
    }
}

func TestWorkerMarksOtherEventsProcessed(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    w := NewWorker(st, &fakeDispatcher{}, nil, 0)

    _, _ = st.InsertInboundEvent(ctx, model.InboundEvent{
        WireFormat: model.WireOther, EventType: "StopListUpdate", Payload: []byte(`{"eventType":"StopListUpdate"}`),
    })
    w.drain(ctx)

    evs, _, _ := st.ListInboundEvents(ctx, "", 10)
    if len(evs) != 1 || !evs[0].Processed { t.Fatalf("events = %+v", evs) }
    orders, _, _ := st.ListOrders(ctx, "", "", 10)
    if len(orders) != 0 { t.Fatal("non-order event projected an order") }
}

func TestWorkerRecordsProcessingError(t *testing.T) {
    ctx := context.Background()
    st := store.NewMemory()
    w := NewWorker(st, &fakeDispatcher{}, nil, 0)

    _, _ = st.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireSOI, Payload: []byte(`{"type":`)})
    w.drain(ctx)

    evs, _, _ := st.ListInboundEvents(ctx, "", 10)
    if len(evs) != 1 { t.Fatal("event missing") }
    if !evs[0].Processed { t.Fatal("failed event left in queue forever") }
    if evs[0].ProcessingError == "" { t.Fatal("processing error not recorded") }
}

// ackFailingStore fails every processed mark while the fetch keeps
// returning the same unprocessed rows.
type ackFailingStore struct {
    store.Store
    fetches int
}

func (s *ackFailingStore) FetchUnprocessedInboundEvents(ctx context.Context, limit int) ([]model.InboundEvent, error) {
    s.fetches++
    return s.Store.FetchUnprocessedInboundEvents(ctx, limit)
}

func (s *ackFailingStore) MarkInboundEventProcessed(ctx context.Context, id, processingError string) error {
    return errors.New("ack unavailable")
}

func TestWorkerStopsDrainingWhenAckFails(t *testing.T) {
    ctx := context.Background()
    mem := store.NewMemory()
    st := &ackFailingStore{Store: mem}
    d := &fakeDispatcher{}
    w := NewWorker(st, d, nil, 0)

    _, err := mem.InsertInboundEvent(ctx, model.InboundEvent{
        WireFormat: model.WireSOI,
        EventType:  "CREATE",
        Payload:    []byte(`{"type":"CREATE","orderExternalId":"ext-ack","iikoOrderDetails":{"iikoOrderId":"up-ack","orderStatus":"DELIVERED"}}`),
    })
    if err != nil { t.Fatal(err) }

    w.drain(ctx)

    if st.fetches != 1 { t.Fatalf("fetches = %d, want 1", st.fetches) }
    if got := len(d.keys()); got != 1 { t.Fatalf("dispatches = %d, want 1", got) }
}
