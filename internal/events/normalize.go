package events

import (
    "encoding/json"
    "strings"
    "time"

    "orderbridge/internal/model"
)

// DetectFormat classifies a raw webhook body by its discriminant field.
// SOI envelopes carry type=CREATE|UPDATE, cloud envelopes carry an
// eventType starting with DeliveryOrder, generic envelopes wrap an
// order/data object. Everything else is "other": acknowledged but never
// projected onto an order.
func DetectFormat(payload []byte) (wireFormat, eventType string) {
    var env struct {
        Type      string          `json:"type"`
        EventType string          `json:"eventType"`
        Order     json.RawMessage `json:"order"`
        Data      json.RawMessage `json:"data"`
    }
    if err := json.Unmarshal(payload, &env); err != nil {
        return model.WireOther, ""
    }
    switch env.Type {
    case "CREATE", "UPDATE":
        return model.WireSOI, env.Type
    }
    switch env.EventType {
    case "DeliveryOrderUpdate", "DeliveryOrderError":
        return model.WireCloud, env.EventType
    case "OrderChanged", "DeliveryOrderChanged", "order":
        return model.WireGeneric, env.EventType
    }
    if len(env.Order) > 0 || len(env.Data) > 0 {
        return model.WireGeneric, env.EventType
    }
    if env.EventType != "" { return model.WireOther, env.EventType }
    return model.WireOther, env.Type
}

// Normalize reduces an inbound event to the canonical tuple. A nil event
// with a nil error means the payload is a recognized non-order notification
// (stop lists, shifts, reserves) and should just be marked processed.
func Normalize(ev model.InboundEvent) (*model.NormalizedEvent, error) {
    switch ev.WireFormat {
    case model.WireSOI:
        var env soiEnvelope
        if err := json.Unmarshal(ev.Payload, &env); err != nil { return nil, err }
        return env.normalize(ev.Payload), nil
    case model.WireCloud:
        var env cloudEnvelope
        if err := json.Unmarshal(ev.Payload, &env); err != nil { return nil, err }
        return env.normalize(ev.Payload), nil
    case model.WireGeneric:
        var env genericEnvelope
        if err := json.Unmarshal(ev.Payload, &env); err != nil { return nil, err }
        return env.normalize(ev.Payload), nil
    default:
        return nil, nil
    }
}

// soiEnvelope is the store-order-interface shape: CREATE/UPDATE with the
// order nested under iikoOrderDetails.
type soiEnvelope struct {
    Type               string `json:"type"`
    OrderExternalID    string `json:"orderExternalId"`
    ReadableNumber     string `json:"readableNumber"`
    CreationStatus     string `json:"creationStatus"`
    ErrorInfo          any    `json:"errorInfo"`
    TransactionDetails struct {
        OrganizationID string `json:"organizationId"`
    } `json:"transactionDetails"`
    Details struct {
        OrderID        string   `json:"iikoOrderId"`
        OrderType      string   `json:"orderType"`
        OrderStatus    string   `json:"orderStatus"`
        RestaurantName string   `json:"restaurantName"`
        PromisedTime   string   `json:"promisedTime"`
        Problem        string   `json:"problem"`
        OrderAmount    *float64 `json:"orderAmount"`
    } `json:"iikoOrderDetails"`
}

func (e soiEnvelope) normalize(raw []byte) *model.NormalizedEvent {
    status, mapped := MapStatus(e.Details.OrderStatus)
    out := &model.NormalizedEvent{
        Kind:            e.Type,
        UpstreamOrderID: e.Details.OrderID,
        ExternalKey:     e.OrderExternalID,
        ReadableNumber:  e.ReadableNumber,
        OrganizationID:  e.TransactionDetails.OrganizationID,
        Status:          status,
        StatusUnmapped:  status != "" && !mapped,
        OrderType:       e.Details.OrderType,
        RestaurantName:  e.Details.RestaurantName,
        Problem:         e.Details.Problem,
        CreationStatus:  e.CreationStatus,
        PromisedTime:    parseTime(e.Details.PromisedTime),
        RawPayload:      raw,
    }
    if e.Details.OrderAmount != nil {
        minor := ToMinorUnits(*e.Details.OrderAmount)
        out.AmountMinor = &minor
    }
    if e.ErrorInfo != nil {
        if b, err := json.Marshal(e.ErrorInfo); err == nil { out.ErrorInfo = string(b) }
    }
    return out
}

// cloudEnvelope is the cloud-API shape: always an update to an order the
// provider already assigned an id to.
type cloudEnvelope struct {
    EventType string `json:"eventType"`
    EventInfo struct {
        ID      string   `json:"id"`
        Status  string   `json:"status"`
        Sum     *float64 `json:"sum"`
        Courier *struct {
            ID   string `json:"id"`
            Name string `json:"name"`
        } `json:"courier"`
        Customer *struct {
            Name    string `json:"name"`
            Phone   string `json:"phone"`
            Address string `json:"address"`
        } `json:"customer"`
    } `json:"eventInfo"`
}

func (e cloudEnvelope) normalize(raw []byte) *model.NormalizedEvent {
    status, mapped := MapStatus(e.EventInfo.Status)
    out := &model.NormalizedEvent{
        Kind:            "UPDATE",
        UpstreamOrderID: e.EventInfo.ID,
        Status:          status,
        StatusUnmapped:  status != "" && !mapped,
        RawPayload:      raw,
    }
    if e.EventType == "DeliveryOrderError" { out.Problem = "delivery order error" }
    if e.EventInfo.Sum != nil {
        minor := ToMinorUnits(*e.EventInfo.Sum)
        out.AmountMinor = &minor
    }
    if c := e.EventInfo.Courier; c != nil {
        out.Courier = &model.Courier{ID: c.ID, Name: c.Name}
    }
    if c := e.EventInfo.Customer; c != nil {
        out.Customer = &model.Customer{Name: c.Name, Phone: c.Phone, Address: c.Address}
    }
    return out
}

// genericEnvelope wraps an order object under "order" or "data" with loose
// field naming.
type genericEnvelope struct {
    Order *genericOrder `json:"order"`
    Data  *genericOrder `json:"data"`
}

type genericOrder struct {
    ID          string `json:"id"`
    OrderID     string `json:"orderId"`
    Status      string `json:"status"`
    OrderStatus string `json:"orderStatus"`
}

func (e genericEnvelope) normalize(raw []byte) *model.NormalizedEvent {
    o := e.Order
    if o == nil { o = e.Data }
    if o == nil { return nil }
    id := o.ID
    if id == "" { id = o.OrderID }
    rawStatus := o.Status
    if rawStatus == "" { rawStatus = o.OrderStatus }
    status, mapped := MapStatus(rawStatus)
    return &model.NormalizedEvent{
        Kind:            "UPDATE",
        UpstreamOrderID: id,
        Status:          status,
        StatusUnmapped:  status != "" && !mapped,
        RawPayload:      raw,
    }
}

func parseTime(s string) *time.Time {
    if s == "" { return nil }
    s = strings.TrimSpace(s)
    for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
        if t, err := time.Parse(layout, s); err == nil { return &t }
    }
    return nil
}
