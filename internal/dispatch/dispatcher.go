package dispatch

import (
    "bytes"
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "fmt"
    "io"
    "log"
    "net/http"
    "time"

    "orderbridge/internal/metrics"
    "orderbridge/internal/model"
    "orderbridge/internal/store"
)

const (
    defaultRetryCount = 3
    defaultTimeoutSec = 10
    maxLoggedBody     = 5000
)

// Dispatcher delivers order events to every matching active subscription,
// sequentially, with the subscription's own retry policy. A failing
// subscriber never affects another subscriber or the caller.
type Dispatcher struct {
    store store.Store
    httpc *http.Client
    sleep func(time.Duration)
    now   func() time.Time
}

func NewDispatcher(st store.Store) *Dispatcher {
    return &Dispatcher{
        store: st,
        httpc: &http.Client{},
        sleep: time.Sleep,
        now:   time.Now,
    }
}

// Dispatch fans one order change out. Errors are logged and recorded on
// the subscriptions involved; nothing propagates.
func (d *Dispatcher) Dispatch(ctx context.Context, o model.Order, eventKey, previousStatus string) {
    subs, err := d.store.ListActiveSubscriptions(ctx)
    if err != nil {
        log.Printf("dispatch %s for order %s: list subscriptions: %v", eventKey, o.ID, err)
        return
    }
    for _, sub := range subs {
        if !shouldSend(sub, eventKey, o) { continue }
        d.Deliver(ctx, sub, o, eventKey, previousStatus)
    }
}

// Deliver runs one logical delivery: up to retryCount attempts with the
// subscription's fixed delay between them, one attempt log row each, and a
// single stats update based on the final outcome.
func (d *Dispatcher) Deliver(ctx context.Context, sub model.Subscription, o model.Order, eventKey, previousStatus string) {
    body := renderPayload(sub, o, eventKey, previousStatus)
    retries := sub.RetryCount
    if retries <= 0 { retries = defaultRetryCount }

    var lastErr string
    success := false
    for attempt := 1; attempt <= retries; attempt++ {
        ok, errMsg := d.attempt(ctx, sub, o, eventKey, body, attempt)
        if ok {
            success = true
            break
        }
        lastErr = errMsg
        if attempt < retries {
            delay := sub.RetryDelaySec
            if delay < 0 { delay = 0 }
            d.sleep(time.Duration(delay) * time.Second)
        }
    }

    state := "delivered"
    if !success { state = "exhausted" }
    metrics.Deliveries.WithLabelValues(eventKey, state).Inc()
    if !success {
        log.Printf("delivery to %s exhausted after %d attempts: %s", sub.URL, retries, lastErr)
    }
    if err := d.store.RecordSubscriptionDelivery(ctx, sub.ID, success, lastErr, d.now().UTC()); err != nil {
        log.Printf("record delivery stats for %s: %v", sub.ID, err)
    }
}

func (d *Dispatcher) attempt(ctx context.Context, sub model.Subscription, o model.Order, eventKey string, body []byte, attemptNumber int) (bool, string) {
    timeout := sub.TimeoutSec
    if timeout <= 0 { timeout = defaultTimeoutSec }
    reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
    defer cancel()

    att := model.DeliveryAttempt{
        SubscriptionID: sub.ID,
        OrderID:        o.ID,
        EventType:      eventKey,
        AttemptNumber:  attemptNumber,
        RequestURL:     sub.URL,
        RequestBody:    truncate(string(body), maxLoggedBody),
        CreatedAt:      d.now().UTC(),
    }

    start := time.Now()
    status, respBody, err := d.send(reqCtx, sub, body)
    att.DurationMs = int(time.Since(start).Milliseconds())
    metrics.DeliveryLatency.WithLabelValues(eventKey, outcomeLabel(status, err)).Observe(float64(time.Since(start).Milliseconds()))

    if err != nil {
        att.ErrorMessage = truncate(err.Error(), 500)
    } else {
        att.ResponseStatus = status
        att.ResponseBody = truncate(respBody, maxLoggedBody)
        if status < 200 || status >= 300 {
            att.ErrorMessage = truncate(fmt.Sprintf("HTTP %d: %s", status, respBody), 500)
        } else {
            att.Success = true
        }
    }
    if _, logErr := d.store.InsertDeliveryAttempt(ctx, att); logErr != nil {
        log.Printf("insert delivery attempt for %s: %v", sub.ID, logErr)
    }
    return att.Success, att.ErrorMessage
}

func (d *Dispatcher) send(ctx context.Context, sub model.Subscription, body []byte) (int, string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
    if err != nil { return 0, "", err }
    req.Header.Set("Content-Type", "application/json")
    switch sub.AuthType {
    case "bearer":
        if sub.AuthToken != "" { req.Header.Set("Authorization", "Bearer "+sub.AuthToken) }
    case "basic":
        if sub.AuthUsername != "" {
            creds := base64.StdEncoding.EncodeToString([]byte(sub.AuthUsername + ":" + sub.AuthPassword))
            req.Header.Set("Authorization", "Basic "+creds)
        }
    }
    for k, v := range sub.CustomHeaders { req.Header.Set(k, v) }
    if sub.Secret != "" {
        mac := hmac.New(sha256.New, []byte(sub.Secret))
        mac.Write(body)
        req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
    }

    resp, err := d.httpc.Do(req)
    if err != nil { return 0, "", err }
    defer func() { _ = resp.Body.Close() }()
    respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
    return resp.StatusCode, string(respBody), nil
}

// shouldSend applies the subscription's event flag and allow-list filters.
// Empty allow-lists accept everything; a configured list rejects orders
// whose value is absent from it.
func shouldSend(sub model.Subscription, eventKey string, o model.Order) bool {
    switch eventKey {
    case model.EventOrderCreated:
        if !sub.OnCreated { return false }
    case model.EventOrderUpdated:
        if !sub.OnUpdated { return false }
    case model.EventOrderStatusChanged:
        if !sub.OnStatusChanged { return false }
    case model.EventOrderCancelled:
        if !sub.OnCancelled { return false }
    default:
        return false
    }
    if len(sub.FilterOrgIDs) > 0 && o.OrganizationID != "" && !contains(sub.FilterOrgIDs, o.OrganizationID) { return false }
    if len(sub.FilterOrderTypes) > 0 && o.OrderType != "" && !contains(sub.FilterOrderTypes, o.OrderType) { return false }
    if len(sub.FilterStatuses) > 0 && o.Status != "" && !contains(sub.FilterStatuses, o.Status) { return false }
    return true
}

func contains(list []string, v string) bool {
    for _, s := range list { if s == v { return true } }
    return false
}

func outcomeLabel(status int, err error) string {
    if err != nil { return "error" }
    if status >= 200 && status < 300 { return "success" }
    return "failure"
}

func truncate(s string, n int) string { if len(s) > n { return s[:n] }; return s }
