package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "orderbridge/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    events   map[string]*model.InboundEvent // id -> event
    eventIDs []string                       // insertion order (queue order)
    orders   map[string]model.Order         // id -> order
    orderIDs []string
    subs     map[string]model.Subscription  // id -> subscription
    subIDs   []string
    attempts []model.DeliveryAttempt
    creds    map[string]model.UpstreamCredential // orgID -> credential
    apiLogs  []model.APILog
}

func NewMemory() *Memory {
    return &Memory{
        events: map[string]*model.InboundEvent{},
        orders: map[string]model.Order{},
        subs:   map[string]model.Subscription{},
        creds:  map[string]model.UpstreamCredential{},
    }
}

func (m *Memory) InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if ev.ID == "" { ev.ID = uuid.New().String() }
    if ev.CreatedAt.IsZero() { ev.CreatedAt = time.Now().UTC() }
    cp := ev
    m.events[ev.ID] = &cp
    m.eventIDs = append(m.eventIDs, ev.ID)
    return ev.ID, nil
}

func (m *Memory) FetchUnprocessedInboundEvents(ctx context.Context, limit int) ([]model.InboundEvent, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.InboundEvent{}
    for _, id := range m.eventIDs {
        ev := m.events[id]
        if ev == nil || ev.Processed { continue }
        out = append(out, *ev)
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) MarkInboundEventProcessed(ctx context.Context, id string, processingError string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    ev := m.events[id]
    if ev == nil { return ErrNotFound }
    ev.Processed = true
    ev.ProcessingError = processingError
    return nil
}

func (m *Memory) ListInboundEvents(ctx context.Context, cursor string, limit int) ([]model.InboundEvent, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    start := 0
    if cursor != "" {
        for i, id := range m.eventIDs { if id == cursor { start = i + 1; break } }
    }
    out := []model.InboundEvent{}
    var last string
    for i := start; i < len(m.eventIDs) && len(out) < limit; i++ {
        out = append(out, *m.events[m.eventIDs[i]])
        last = m.eventIDs[i]
    }
    next := ""
    if len(out) == limit && start+len(out) < len(m.eventIDs) { next = last }
    return out, next, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) FindOrderByUpstreamID(ctx context.Context, upstreamOrderID string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if upstreamOrderID == "" { return model.Order{}, ErrNotFound }
    for _, id := range m.orderIDs {
        if o := m.orders[id]; o.UpstreamOrderID == upstreamOrderID { return o, nil }
    }
    return model.Order{}, ErrNotFound
}

func (m *Memory) FindOrderByExternalKey(ctx context.Context, externalKey string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if externalKey == "" { return model.Order{}, ErrNotFound }
    for _, id := range m.orderIDs {
        if o := m.orders[id]; o.ExternalKey == externalKey { return o, nil }
    }
    return model.Order{}, ErrNotFound
}

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if o.ID == "" { o.ID = uuid.New().String() }
    now := time.Now().UTC()
    o.CreatedAt = now
    o.UpdatedAt = now
    m.orders[o.ID] = o
    m.orderIDs = append(m.orderIDs, o.ID)
    return o, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.orders[o.ID]; !ok { return model.Order{}, ErrNotFound }
    o.UpdatedAt = time.Now().UTC()
    m.orders[o.ID] = o
    return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    start := 0
    if cursor != "" {
        for i, id := range m.orderIDs { if id == cursor { start = i + 1; break } }
    }
    out := []model.Order{}
    i := start
    for ; i < len(m.orderIDs) && len(out) < limit; i++ {
        o := m.orders[m.orderIDs[i]]
        if status == "" || o.Status == status { out = append(out, o) }
    }
    next := ""
    // cursor resumes after the last scanned row, not the last match
    if len(out) == limit && i < len(m.orderIDs) { next = m.orderIDs[i-1] }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if sub.ID == "" { sub.ID = uuid.New().String() }
    m.subs[sub.ID] = sub
    m.subIDs = append(m.subIDs, sub.ID)
    return sub, nil
}

func (m *Memory) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return model.Subscription{}, ErrNotFound }
    return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    start := 0
    if cursor != "" {
        for i, id := range m.subIDs { if id == cursor { start = i + 1; break } }
    }
    out := []model.Subscription{}
    var last string
    for i := start; i < len(m.subIDs) && len(out) < limit; i++ {
        out = append(out, m.subs[m.subIDs[i]])
        last = m.subIDs[i]
    }
    next := ""
    if len(out) == limit && start+limit < len(m.subIDs) { next = last }
    return out, next, nil
}

func (m *Memory) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, id := range m.subIDs {
        if s := m.subs[id]; s.IsActive { out = append(out, s) }
    }
    return out, nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    cur, ok := m.subs[sub.ID]
    if !ok { return model.Subscription{}, ErrNotFound }
    sub.Stats = cur.Stats // stats are dispatcher-owned
    m.subs[sub.ID] = sub
    return sub, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.subs[id]; !ok { return ErrNotFound }
    delete(m.subs, id)
    out := make([]string, 0, len(m.subIDs))
    for _, v := range m.subIDs { if v != id { out = append(out, v) } }
    m.subIDs = out
    return nil
}

func (m *Memory) RecordSubscriptionDelivery(ctx context.Context, id string, success bool, lastError string, at time.Time) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return ErrNotFound }
    s.Stats.TotalSent++
    s.Stats.LastSentAt = &at
    if success {
        s.Stats.TotalSuccess++
        s.Stats.LastSuccessAt = &at
        s.Stats.LastError = ""
    } else {
        s.Stats.TotalFailed++
        s.Stats.LastError = lastError
    }
    m.subs[id] = s
    return nil
}

func (m *Memory) InsertDeliveryAttempt(ctx context.Context, att model.DeliveryAttempt) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if att.ID == "" { att.ID = uuid.New().String() }
    if att.CreatedAt.IsZero() { att.CreatedAt = time.Now().UTC() }
    m.attempts = append(m.attempts, att)
    return att.ID, nil
}

func (m *Memory) ListDeliveryAttempts(ctx context.Context, subscriptionID, cursor string, limit int) ([]model.DeliveryAttempt, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    start := 0
    if cursor != "" {
        for i := range m.attempts { if m.attempts[i].ID == cursor { start = i + 1; break } }
    }
    out := []model.DeliveryAttempt{}
    i := start
    for ; i < len(m.attempts) && len(out) < limit; i++ {
        if subscriptionID == "" || m.attempts[i].SubscriptionID == subscriptionID {
            out = append(out, m.attempts[i])
        }
    }
    next := ""
    if len(out) == limit && i < len(m.attempts) { next = m.attempts[i-1].ID }
    return out, next, nil
}

func (m *Memory) ListUpstreamCredentials(ctx context.Context) ([]model.UpstreamCredential, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.UpstreamCredential{}
    for _, c := range m.creds { out = append(out, c) }
    sort.Slice(out, func(i, j int) bool { return out[i].OrganizationID < out[j].OrganizationID })
    return out, nil
}

func (m *Memory) GetUpstreamCredential(ctx context.Context, organizationID string) (model.UpstreamCredential, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    c, ok := m.creds[organizationID]
    if !ok { return model.UpstreamCredential{}, ErrNotFound }
    return c, nil
}

// PutUpstreamCredential seeds a credential; used by tests and bootstrap.
func (m *Memory) PutUpstreamCredential(c model.UpstreamCredential) {
    m.mu.Lock(); defer m.mu.Unlock()
    if c.ID == "" { c.ID = uuid.New().String() }
    m.creds[c.OrganizationID] = c
}

func (m *Memory) ListWebhookSecrets(ctx context.Context) ([]string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []string{}
    for _, c := range m.creds {
        if c.IsActive && c.WebhookSecret != "" { out = append(out, c.WebhookSecret) }
    }
    return out, nil
}

func (m *Memory) MarkWebhookRegistered(ctx context.Context, organizationID, status string, at time.Time) error {
    m.mu.Lock(); defer m.mu.Unlock()
    c, ok := m.creds[organizationID]
    if !ok { return ErrNotFound }
    c.LastRegistered = &at
    c.RegistrationStatus = status
    m.creds[organizationID] = c
    return nil
}

func (m *Memory) InsertAPILog(ctx context.Context, entry model.APILog) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if entry.ID == "" { entry.ID = uuid.New().String() }
    if entry.CreatedAt.IsZero() { entry.CreatedAt = time.Now().UTC() }
    m.apiLogs = append(m.apiLogs, entry)
    return nil
}

func (m *Memory) DeliveryStats(ctx context.Context) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.subIDs {
        s := m.subs[id]
        row := map[string]any{
            "subscriptionId": s.ID,
            "url":            s.URL,
            "totalSent":      s.Stats.TotalSent,
            "totalSuccess":   s.Stats.TotalSuccess,
            "totalFailed":    s.Stats.TotalFailed,
        }
        if s.Stats.LastSentAt != nil { row["lastSentAt"] = *s.Stats.LastSentAt }
        if s.Stats.LastError != "" { row["lastError"] = s.Stats.LastError }
        out = append(out, row)
    }
    return out, nil
}
