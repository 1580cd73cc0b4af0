// Package dispatch fans order lifecycle changes out to registered
// subscriber endpoints: filter, render, deliver with bounded retry, and
// keep per-attempt logs plus rolling statistics.
package dispatch

import (
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "orderbridge/internal/events"
    "orderbridge/internal/model"
)

const (
    FormatSOI    = "soi"
    FormatCloud  = "cloud"
    FormatSimple = "simple"
    FormatCustom = "custom"
)

// renderPayload builds the subscriber's configured payload shape. The
// simple shape is the default for unknown formats; a broken custom
// template also degrades to it instead of failing the delivery.
func renderPayload(sub model.Subscription, o model.Order, eventKey, prevStatus string) []byte {
    switch sub.PayloadFormat {
    case FormatSOI:
        return soiPayload(o, eventKey, prevStatus)
    case FormatCloud:
        return cloudPayload(o, eventKey)
    case FormatCustom:
        if sub.CustomTemplate != "" {
            if b := customPayload(sub.CustomTemplate, o, eventKey, prevStatus); b != nil { return b }
        }
        return simplePayload(o, eventKey, prevStatus)
    default:
        return simplePayload(o, eventKey, prevStatus)
    }
}

func soiPayload(o model.Order, eventKey, prevStatus string) []byte {
    kind := "UPDATE"
    if eventKey == model.EventOrderCreated { kind = "CREATE" }
    details := map[string]any{
        "iikoOrderId":      o.UpstreamOrderID,
        "iikoOrderNumber":  o.ReadableNumber,
        "restaurantName":   o.RestaurantName,
        "orderType":        o.OrderType,
        "orderStatus":      o.Status,
        "receivedAt":       timeOrNil(&o.CreatedAt),
        "promisedTime":     timeOrNil(o.PromisedTime),
        "problem":          o.Problem,
        "orderAmount":      events.ToMajorUnits(o.TotalAmount),
    }
    if o.CourierID != "" || o.CourierName != "" {
        details["courier"] = map[string]any{"id": o.CourierID, "name": o.CourierName}
    }
    if o.CustomerName != "" || o.CustomerPhone != "" {
        details["customer"] = map[string]any{"name": o.CustomerName, "phone": o.CustomerPhone}
    }
    payload := map[string]any{
        "type":            kind,
        "orderExternalId": o.ExternalKey,
        "readableNumber":  o.ReadableNumber,
        "creationStatus":  o.CreationStatus,
        "errorInfo":       o.ErrorInfo,
        "transactionDetails": map[string]any{
            "organizationId": o.OrganizationID,
        },
        "iikoOrderDetails": details,
    }
    if prevStatus != "" { payload["previousStatus"] = prevStatus }
    b, _ := json.Marshal(payload)
    return b
}

func cloudPayload(o model.Order, eventKey string) []byte {
    eventType := "DeliveryOrderUpdate"
    if eventKey == model.EventOrderCreated { eventType = "DeliveryOrderCreate" }
    info := map[string]any{
        "id":             o.UpstreamOrderID,
        "externalId":     o.ExternalKey,
        "organizationId": o.OrganizationID,
        "status":         o.Status,
        "sum":            events.ToMajorUnits(o.TotalAmount),
        "number":         o.ReadableNumber,
        "orderType":      o.OrderType,
        "createdAt":      timeOrNil(&o.CreatedAt),
        "promisedTime":   timeOrNil(o.PromisedTime),
    }
    if o.CourierID != "" || o.CourierName != "" {
        info["courier"] = map[string]any{"id": o.CourierID, "name": o.CourierName}
    }
    if o.CustomerName != "" || o.CustomerPhone != "" {
        info["customer"] = map[string]any{"name": o.CustomerName, "phone": o.CustomerPhone, "address": o.DeliveryAddress}
    }
    b, _ := json.Marshal(map[string]any{"eventType": eventType, "eventInfo": info})
    return b
}

func simplePayload(o model.Order, eventKey, prevStatus string) []byte {
    b, _ := json.Marshal(map[string]any{
        "event": eventKey,
        "order": map[string]any{
            "id":               o.ID,
            "external_id":      o.ExternalKey,
            "upstream_order_id": o.UpstreamOrderID,
            "status":           o.Status,
            "previous_status":  prevStatus,
            "customer_name":    o.CustomerName,
            "customer_phone":   o.CustomerPhone,
            "delivery_address": o.DeliveryAddress,
            "total_amount":     o.TotalAmount,
            "courier_id":       o.CourierID,
            "courier_name":     o.CourierName,
            "order_type":       o.OrderType,
            "restaurant_name":  o.RestaurantName,
            "organization_id":  o.OrganizationID,
            "created_at":       timeOrNil(&o.CreatedAt),
            "updated_at":       timeOrNil(&o.UpdatedAt),
            "promised_time":    timeOrNil(o.PromisedTime),
        },
    })
    return b
}

// templateVars is the closed set of placeholders a custom template may
// reference. Anything else stays literal in the rendered body.
func templateVars(o model.Order, eventKey, prevStatus string) map[string]string {
    return map[string]string{
        "order_id":          o.ID,
        "external_order_id": o.ExternalKey,
        "upstream_order_id": o.UpstreamOrderID,
        "status":            o.Status,
        "previous_status":   prevStatus,
        "customer_name":     o.CustomerName,
        "customer_phone":    o.CustomerPhone,
        "total_amount":      fmt.Sprintf("%d", o.TotalAmount),
        "event_type":        eventKey,
        "courier_name":      o.CourierName,
        "order_type":        o.OrderType,
        "organization_id":   o.OrganizationID,
    }
}

// customPayload substitutes {{name}} placeholders and returns nil when the
// result is not valid JSON, letting the caller fall back to the simple shape.
func customPayload(template string, o model.Order, eventKey, prevStatus string) []byte {
    out := template
    for name, value := range templateVars(o, eventKey, prevStatus) {
        out = strings.ReplaceAll(out, "{{"+name+"}}", value)
    }
    if !json.Valid([]byte(out)) { return nil }
    return []byte(out)
}

func timeOrNil(t *time.Time) any {
    if t == nil || t.IsZero() { return nil }
    return t.UTC().Format(time.RFC3339)
}
