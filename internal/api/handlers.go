package api

import (
    "crypto/subtle"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "net/http"
    "strings"
    "time"

    "orderbridge/internal/buildinfo"
    "orderbridge/internal/events"
    "orderbridge/internal/model"
    "orderbridge/internal/store"
)

// InboundWebhookHandler handles POST /v1/webhooks/upstream. The contract
// with the provider: authenticate, persist the raw event, answer 200
// immediately. Processing happens in the worker; a malformed body is
// acknowledged as ignored so the provider never retries it.
func (s *Server) InboundWebhookHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if !s.inboundLimiter.Allow() {
        writeProblem(w, http.StatusTooManyRequests, "Rate Limited", "too many webhook calls", r.URL.Path)
        return
    }
    if !s.authorizeInbound(r) {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "unknown webhook secret", r.URL.Path)
        return
    }

    var body json.RawMessage
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 || body[0] != '{' {
        // unparseable payloads are acknowledged, never retried by the provider
        log.Printf("ignoring malformed inbound webhook body")
        writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
        return
    }

    wireFormat, eventType := events.DetectFormat(body)
    ev := model.InboundEvent{
        WireFormat: wireFormat,
        EventType:  eventType,
        Payload:    body,
    }
    // best effort key extraction for the audit row
    var probe struct {
        OrderExternalID    string `json:"orderExternalId"`
        TransactionDetails struct {
            OrganizationID string `json:"organizationId"`
        } `json:"transactionDetails"`
    }
    if json.Unmarshal(body, &probe) == nil {
        ev.OrderExternalKey = probe.OrderExternalID
        ev.OrganizationID = probe.TransactionDetails.OrganizationID
    }

    id, err := s.Store.InsertInboundEvent(r.Context(), ev)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Store event failed", err.Error(), r.URL.Path)
        return
    }
    s.Worker.Nudge()
    writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "eventId": id})
}

// authorizeInbound compares the presented secret against every registered
// per-organization webhook secret plus the environment fallback, in
// constant time per candidate.
func (s *Server) authorizeInbound(r *http.Request) bool {
    presented := r.Header.Get("Authorization")
    presented = strings.TrimPrefix(presented, "Bearer ")
    if presented == "" { presented = r.Header.Get("X-Webhook-Secret") }
    // the provider echoes the registered secret in an authToken header
    if presented == "" { presented = r.Header.Get("authToken") }
    if presented == "" { return false }

    secrets, err := s.Store.ListWebhookSecrets(r.Context())
    if err != nil {
        log.Printf("list webhook secrets: %v", err)
        return false
    }
    if s.webhookSecret != "" { secrets = append(secrets, s.webhookSecret) }
    ok := false
    for _, secret := range secrets {
        if secret == "" { continue }
        if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1 { ok = true }
    }
    return ok
}

// InboundEventsHandler handles GET /v1/webhooks/events (audit listing).
func (s *Server) InboundEventsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListInboundEvents(r.Context(), cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List events failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// OrdersHandler handles GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListOrders(r.Context(), status, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// OrderByIDHandler handles /v1/orders/{id} plus the /status, /cancel,
// /courier, /refresh and /events/stream subresources.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    parts := strings.Split(rest, "/")
    id := parts[0]
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    switch {
    case len(parts) == 1 && r.Method == http.MethodGet:
        s.getOrder(w, r, id)
    case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
        s.updateOrderStatus(w, r, id)
    case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
        s.cancelOrder(w, r, id)
    case len(parts) == 2 && parts[1] == "courier" && r.Method == http.MethodPost:
        s.assignCourier(w, r, id)
    case len(parts) == 2 && parts[1] == "refresh" && r.Method == http.MethodGet:
        s.refreshOrder(w, r, id)
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" && r.Method == http.MethodGet:
        s.streamOrderEvents(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request, id string) {
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, o)
}

// updateOrderStatus pushes a status override to the provider and mirrors
// it locally so the projection and subscribers see it without waiting for
// the provider's own webhook.
func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request, id string) {
    var req struct {
        Status string `json:"status"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    canonical, mapped := events.MapStatus(req.Status)
    if !mapped {
        writeProblem(w, http.StatusBadRequest, "Unknown status", req.Status, r.URL.Path)
        return
    }
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    if o.UpstreamOrderID != "" {
        if _, err := s.Upstream.UpdateOrderStatus(r.Context(), o.OrganizationID, o.UpstreamOrderID, canonical); err != nil {
            writeProblem(w, http.StatusBadGateway, "Upstream status update failed", err.Error(), r.URL.Path)
            return
        }
    }
    prev := o.Status
    o.Status = canonical
    updated, err := s.Store.UpdateOrder(r.Context(), o)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Update order failed", err.Error(), r.URL.Path)
        return
    }
    if prev != canonical {
        s.Disp.Dispatch(r.Context(), updated, model.EventOrderStatusChanged, prev)
        s.Broker.Publish(updated.ID, SSEEvent{Type: model.EventOrderStatusChanged, Data: map[string]any{"orderId": updated.ID, "status": updated.Status}})
    }
    writeJSON(w, http.StatusOK, updated)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request, id string) {
    var req struct {
        Reason string `json:"reason"`
    }
    _ = json.NewDecoder(r.Body).Decode(&req)
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    if o.UpstreamOrderID != "" {
        if _, err := s.Upstream.CancelOrder(r.Context(), o.OrganizationID, o.UpstreamOrderID, req.Reason); err != nil {
            writeProblem(w, http.StatusBadGateway, "Upstream cancel failed", err.Error(), r.URL.Path)
            return
        }
    }
    prev := o.Status
    o.Status = model.StatusCancelled
    updated, err := s.Store.UpdateOrder(r.Context(), o)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Update order failed", err.Error(), r.URL.Path)
        return
    }
    if prev != model.StatusCancelled {
        s.Disp.Dispatch(r.Context(), updated, model.EventOrderStatusChanged, prev)
        s.Disp.Dispatch(r.Context(), updated, model.EventOrderCancelled, prev)
        s.Broker.Publish(updated.ID, SSEEvent{Type: model.EventOrderCancelled, Data: map[string]any{"orderId": updated.ID, "status": updated.Status}})
    }
    writeJSON(w, http.StatusOK, updated)
}

// refreshOrder re-queries the provider for its current view of one
// order and returns the raw snapshot next to the local record.
func (s *Server) refreshOrder(w http.ResponseWriter, r *http.Request, id string) {
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    if o.UpstreamOrderID == "" {
        writeProblem(w, http.StatusConflict, "Order has no upstream id", "", r.URL.Path)
        return
    }
    resp, err := s.Upstream.OrderStatus(r.Context(), o.OrganizationID, []string{o.UpstreamOrderID})
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Upstream order lookup failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"order": o, "upstream": resp})
}

// assignCourier pushes a driver change to the provider and mirrors the
// courier fields on the local order.
func (s *Server) assignCourier(w http.ResponseWriter, r *http.Request, id string) {
    var req struct {
        CourierID   string `json:"courierId"`
        CourierName string `json:"courierName"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.CourierID == "" {
        writeProblem(w, http.StatusBadRequest, "courierId is required", "", r.URL.Path)
        return
    }
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    if o.UpstreamOrderID != "" {
        if _, err := s.Upstream.AssignCourier(r.Context(), o.OrganizationID, o.UpstreamOrderID, req.CourierID); err != nil {
            writeProblem(w, http.StatusBadGateway, "Upstream courier assignment failed", err.Error(), r.URL.Path)
            return
        }
    }
    o.CourierID = req.CourierID
    o.CourierName = req.CourierName
    updated, err := s.Store.UpdateOrder(r.Context(), o)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Update order failed", err.Error(), r.URL.Path)
        return
    }
    s.Broker.Publish(updated.ID, SSEEvent{Type: model.EventOrderUpdated, Data: map[string]any{"orderId": updated.ID, "courierId": updated.CourierID}})
    writeJSON(w, http.StatusOK, updated)
}

// streamOrderEvents serves Server-Sent Events for one order.
func (s *Server) streamOrderEvents(w http.ResponseWriter, r *http.Request, id string) {
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)

    keepalive := time.NewTicker(25 * time.Second)
    defer keepalive.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case <-keepalive.C:
            fmt.Fprint(w, ": keepalive\n\n")
            flusher.Flush()
        case evt, open := <-ch:
            if !open { return }
            data, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
            flusher.Flush()
        }
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var sub model.Subscription
        if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if sub.URL == "" {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url is required", r.URL.Path)
            return
        }
        created, err := s.Store.CreateSubscription(r.Context(), sub)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, created)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles /v1/subscriptions/{id} and /{id}/test
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    parts := strings.Split(rest, "/")
    id := parts[0]
    if id == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if len(parts) == 2 && parts[1] == "test" && r.Method == http.MethodPost {
        s.testSubscription(w, r, id)
        return
    }
    if len(parts) != 1 {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    switch r.Method {
    case http.MethodGet:
        sub, err := s.Store.GetSubscription(r.Context(), id)
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Get subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, sub)
    case http.MethodPut, http.MethodPatch:
        var sub model.Subscription
        if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        sub.ID = id
        updated, err := s.Store.UpdateSubscription(r.Context(), sub)
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Update subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, updated)
    case http.MethodDelete:
        if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
                return
            }
            writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
            return
        }
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// testSubscription fires one delivery with a synthetic order, bypassing
// filters, so operators can verify an endpoint before real traffic.
func (s *Server) testSubscription(w http.ResponseWriter, r *http.Request, id string) {
    sub, err := s.Store.GetSubscription(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get subscription failed", err.Error(), r.URL.Path)
        return
    }
    now := time.Now().UTC()
    sample := model.Order{
        ID:              "test-order",
        UpstreamOrderID: "test-upstream-id",
        ExternalKey:     "test-external-key",
        ReadableNumber:  "0000",
        Status:          model.StatusDelivered,
        CustomerName:    "Test Customer",
        TotalAmount:     152050,
        CreatedAt:       now,
        UpdatedAt:       now,
    }
    s.Disp.Deliver(r.Context(), sub, sample, model.EventOrderStatusChanged, model.StatusOnWay)
    updated, err := s.Store.GetSubscription(r.Context(), id)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get subscription failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"delivered": updated.Stats.LastError == "", "stats": updated.Stats})
}

// RegisterWebhookHandler handles POST /v1/upstream/register-webhook:
// points the provider's webhook at our inbound endpoint for one
// organization, using that organization's own credential when it has one.
func (s *Server) RegisterWebhookHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        OrganizationID string `json:"organizationId"`
        WebhookURL     string `json:"webhookUrl"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.OrganizationID == "" || req.WebhookURL == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid request", "organizationId and webhookUrl are required", r.URL.Path)
        return
    }

    client := s.Upstream
    secret := s.webhookSecret
    cred, err := s.Store.GetUpstreamCredential(r.Context(), req.OrganizationID)
    if err == nil {
        if cred.APILogin != "" { client = client.WithCredential(cred) }
        if cred.WebhookSecret != "" { secret = cred.WebhookSecret }
    } else if !errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusInternalServerError, "Get credential failed", err.Error(), r.URL.Path)
        return
    }

    resp, err := client.RegisterWebhook(r.Context(), req.OrganizationID, req.WebhookURL, secret)
    status := "registered"
    if err != nil { status = "failed: " + err.Error() }
    if markErr := s.Store.MarkWebhookRegistered(r.Context(), req.OrganizationID, status, time.Now().UTC()); markErr != nil {
        log.Printf("mark webhook registered for %s: %v", req.OrganizationID, markErr)
    }
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Webhook registration failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": status, "upstream": resp})
}

// UpstreamOrganizationsHandler handles GET /v1/upstream/organizations:
// an authenticated pass-through to the provider's organization list.
func (s *Server) UpstreamOrganizationsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    resp, err := s.Upstream.Organizations(r.Context())
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Upstream organizations failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, resp)
}

// UpstreamStopListsHandler handles GET /v1/upstream/stop-lists?organizationId=...
func (s *Server) UpstreamStopListsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    orgID := r.URL.Query().Get("organizationId")
    if orgID == "" {
        writeProblem(w, http.StatusBadRequest, "organizationId is required", "", r.URL.Path)
        return
    }
    resp, err := s.Upstream.StopLists(r.Context(), orgID)
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Upstream stop lists failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, resp)
}

// DeliveryLogsHandler handles GET /v1/admin/delivery-logs
func (s *Server) DeliveryLogsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    subID := r.URL.Query().Get("subscriptionId")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListDeliveryAttempts(r.Context(), subID, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List delivery logs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// DeliveryStatsHandler handles GET /v1/admin/delivery-stats
func (s *Server) DeliveryStatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    rows, err := s.Store.DeliveryStats(r.Context())
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Delivery stats failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // store reachability is the readiness signal
    if _, err := s.Store.ListActiveSubscriptions(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
