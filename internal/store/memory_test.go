package store

import (
    "context"
    "testing"
    "time"

    "orderbridge/internal/model"
)

func TestMemoryInboundQueue(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()

    id1, err := m.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireSOI, Payload: []byte(`{}`)})
    if err != nil { t.Fatal(err) }
    id2, _ := m.InsertInboundEvent(ctx, model.InboundEvent{WireFormat: model.WireCloud, Payload: []byte(`{}`)})

    due, err := m.FetchUnprocessedInboundEvents(ctx, 10)
    if err != nil { t.Fatal(err) }
    if len(due) != 2 || due[0].ID != id1 || due[1].ID != id2 {
        t.Fatalf("due = %+v, want insertion order", due)
    }

    if err := m.MarkInboundEventProcessed(ctx, id1, ""); err != nil { t.Fatal(err) }
    due, _ = m.FetchUnprocessedInboundEvents(ctx, 10)
    if len(due) != 1 || due[0].ID != id2 { t.Fatalf("due after ack = %+v", due) }

    if err := m.MarkInboundEventProcessed(ctx, id2, "boom"); err != nil { t.Fatal(err) }
    all, _, _ := m.ListInboundEvents(ctx, "", 10)
    if all[1].ProcessingError != "boom" { t.Fatalf("error not kept: %+v", all[1]) }
}

func TestMemoryOrderLookups(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()

    o, err := m.CreateOrder(ctx, model.Order{UpstreamOrderID: "up-1", ExternalKey: "ext-1", Status: model.StatusUnconfirmed})
    if err != nil { t.Fatal(err) }
    if o.ID == "" { t.Fatal("no id assigned") }

    if got, err := m.FindOrderByUpstreamID(ctx, "up-1"); err != nil || got.ID != o.ID {
        t.Fatalf("by upstream: %v %v", got, err)
    }
    if got, err := m.FindOrderByExternalKey(ctx, "ext-1"); err != nil || got.ID != o.ID {
        t.Fatalf("by external: %v %v", got, err)
    }
    if _, err := m.FindOrderByUpstreamID(ctx, ""); err != ErrNotFound {
        t.Fatalf("empty key must not match, got %v", err)
    }

    o.Status = model.StatusDelivered
    upd, err := m.UpdateOrder(ctx, o)
    if err != nil { t.Fatal(err) }
    if !upd.UpdatedAt.After(upd.CreatedAt) && !upd.UpdatedAt.Equal(upd.CreatedAt) {
        t.Fatal("updatedAt not advanced")
    }

    delivered, _, _ := m.ListOrders(ctx, model.StatusDelivered, "", 10)
    if len(delivered) != 1 { t.Fatalf("status filter: %d", len(delivered)) }
    none, _, _ := m.ListOrders(ctx, model.StatusClosed, "", 10)
    if len(none) != 0 { t.Fatalf("status filter leak: %d", len(none)) }
}

func TestMemorySubscriptionStatsOwnership(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()

    sub, _ := m.CreateSubscription(ctx, model.Subscription{URL: "https://example.test", IsActive: true})
    at := time.Now().UTC()
    if err := m.RecordSubscriptionDelivery(ctx, sub.ID, false, "HTTP 500", at); err != nil { t.Fatal(err) }
    if err := m.RecordSubscriptionDelivery(ctx, sub.ID, true, "", at); err != nil { t.Fatal(err) }

    got, _ := m.GetSubscription(ctx, sub.ID)
    if got.Stats.TotalSent != 2 || got.Stats.TotalFailed != 1 || got.Stats.TotalSuccess != 1 {
        t.Fatalf("stats = %+v", got.Stats)
    }
    if got.Stats.LastError != "" { t.Fatalf("success must clear lastError, got %q", got.Stats.LastError) }

    // an admin edit must not reset dispatcher-owned counters
    sub.Name = "renamed"
    edited, err := m.UpdateSubscription(ctx, sub)
    if err != nil { t.Fatal(err) }
    if edited.Stats.TotalSent != 2 { t.Fatalf("edit reset stats: %+v", edited.Stats) }
}

func TestMemoryWebhookSecrets(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()
    m.PutUpstreamCredential(model.UpstreamCredential{OrganizationID: "org-1", WebhookSecret: "s1", IsActive: true})
    m.PutUpstreamCredential(model.UpstreamCredential{OrganizationID: "org-2", WebhookSecret: "s2", IsActive: false})

    secrets, err := m.ListWebhookSecrets(ctx)
    if err != nil { t.Fatal(err) }
    if len(secrets) != 1 || secrets[0] != "s1" { t.Fatalf("secrets = %v, want active only", secrets) }

    at := time.Now().UTC()
    if err := m.MarkWebhookRegistered(ctx, "org-1", "registered", at); err != nil { t.Fatal(err) }
    c, _ := m.GetUpstreamCredential(ctx, "org-1")
    if c.RegistrationStatus != "registered" || c.LastRegistered == nil {
        t.Fatalf("credential = %+v", c)
    }
}

func TestMemoryListOrdersFilteredPaging(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()

    // delivered orders interleaved with others
    statuses := []string{
        model.StatusDelivered, model.StatusOnWay, model.StatusDelivered,
        model.StatusClosed, model.StatusDelivered,
    }
    for i, st := range statuses {
        if _, err := m.CreateOrder(ctx, model.Order{ExternalKey: "pg-" + string(rune('a'+i)), Status: st}); err != nil {
            t.Fatal(err)
        }
    }

    page1, cursor, err := m.ListOrders(ctx, model.StatusDelivered, "", 2)
    if err != nil { t.Fatal(err) }
    if len(page1) != 2 { t.Fatalf("page1 = %d orders", len(page1)) }
    if cursor == "" { t.Fatal("expected a cursor, later rows still match") }

    page2, cursor2, err := m.ListOrders(ctx, model.StatusDelivered, cursor, 2)
    if err != nil { t.Fatal(err) }
    if len(page2) != 1 { t.Fatalf("page2 = %d orders", len(page2)) }
    if cursor2 != "" { t.Fatalf("cursor2 = %q, want empty", cursor2) }

    seen := map[string]bool{}
    for _, o := range append(page1, page2...) {
        if o.Status != model.StatusDelivered { t.Errorf("non-matching order %s in page", o.ID) }
        if seen[o.ID] { t.Errorf("order %s returned twice", o.ID) }
        seen[o.ID] = true
    }
    if len(seen) != 3 { t.Fatalf("matched %d distinct orders, want 3", len(seen)) }
}

func TestMemoryListDeliveryAttemptsFilteredPaging(t *testing.T) {
    ctx := context.Background()
    m := NewMemory()

    for i := 0; i < 6; i++ {
        sub := "sub-a"
        if i%2 == 1 { sub = "sub-b" }
        if _, err := m.InsertDeliveryAttempt(ctx, model.DeliveryAttempt{SubscriptionID: sub}); err != nil {
            t.Fatal(err)
        }
    }

    page1, cursor, err := m.ListDeliveryAttempts(ctx, "sub-a", "", 2)
    if err != nil { t.Fatal(err) }
    if len(page1) != 2 { t.Fatalf("page1 = %d attempts", len(page1)) }
    if cursor == "" { t.Fatal("expected a cursor, a third sub-a row remains") }

    page2, cursor2, err := m.ListDeliveryAttempts(ctx, "sub-a", cursor, 2)
    if err != nil { t.Fatal(err) }
    if len(page2) != 1 { t.Fatalf("page2 = %d attempts", len(page2)) }
    if cursor2 != "" { t.Fatalf("cursor2 = %q, want empty", cursor2) }
    for _, a := range append(page1, page2...) {
        if a.SubscriptionID != "sub-a" { t.Errorf("attempt %s belongs to %s", a.ID, a.SubscriptionID) }
    }
}
