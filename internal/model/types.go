package model

import "time"

// Canonical order lifecycle statuses. Cancellation and problem states are
// absorbing; the rest roughly follow the cooking/delivery progression.
const (
    StatusUnconfirmed      = "Unconfirmed"
    StatusWaitingCooking   = "WaitingCooking"
    StatusReadyForCooking  = "ReadyForCooking"
    StatusCookingStarted   = "CookingStarted"
    StatusCookingCompleted = "CookingCompleted"
    StatusWaitingCourier   = "WaitingCourier"
    StatusOnWay            = "OnWay"
    StatusDelivered        = "Delivered"
    StatusClosed           = "Closed"
    StatusCancelled        = "Cancelled"
)

// CanonicalStatuses lists every status the projector will store.
var CanonicalStatuses = []string{
    StatusUnconfirmed, StatusWaitingCooking, StatusReadyForCooking,
    StatusCookingStarted, StatusCookingCompleted, StatusWaitingCourier,
    StatusOnWay, StatusDelivered, StatusClosed, StatusCancelled,
}

// Outbound event keys.
const (
    EventOrderCreated       = "order.created"
    EventOrderUpdated       = "order.updated"
    EventOrderStatusChanged = "order.status_changed"
    EventOrderCancelled     = "order.cancelled"
)

// Inbound wire formats.
const (
    WireSOI     = "soi"
    WireCloud   = "cloud"
    WireGeneric = "generic"
    WireOther   = "other"
)

// Order is the local projection of an upstream delivery order.
type Order struct {
    ID              string     `json:"id"`
    UpstreamOrderID string     `json:"upstreamOrderId,omitempty"`
    ExternalKey     string     `json:"externalKey,omitempty"`
    ReadableNumber  string     `json:"readableNumber,omitempty"`
    OrganizationID  string     `json:"organizationId,omitempty"`
    Status          string     `json:"status"`
    OrderType       string     `json:"orderType,omitempty"`
    RestaurantName  string     `json:"restaurantName,omitempty"`
    CustomerName    string     `json:"customerName,omitempty"`
    CustomerPhone   string     `json:"customerPhone,omitempty"`
    DeliveryAddress string     `json:"deliveryAddress,omitempty"`
    CourierID       string     `json:"courierId,omitempty"`
    CourierName     string     `json:"courierName,omitempty"`
    TotalAmount     int64      `json:"totalAmount"` // minor currency units
    Problem         string     `json:"problem,omitempty"`
    CreationStatus  string     `json:"creationStatus,omitempty"`
    ErrorInfo       string     `json:"errorInfo,omitempty"`
    PromisedTime    *time.Time `json:"promisedTime,omitempty"`
    RawPayload      []byte     `json:"-"`
    CreatedAt       time.Time  `json:"createdAt"`
    UpdatedAt       time.Time  `json:"updatedAt"`
}

// InboundEvent is one received upstream notification. Rows double as the
// durable processing queue: processed=false means due.
type InboundEvent struct {
    ID               string    `json:"id"`
    WireFormat       string    `json:"wireFormat"`
    EventType        string    `json:"eventType"`
    OrderExternalKey string    `json:"orderExternalKey,omitempty"`
    OrganizationID   string    `json:"organizationId,omitempty"`
    Payload          []byte    `json:"-"`
    Processed        bool      `json:"processed"`
    ProcessingError  string    `json:"processingError,omitempty"`
    CreatedAt        time.Time `json:"createdAt"`
}

// NormalizedEvent is the canonical tuple every supported wire format reduces to.
type NormalizedEvent struct {
    Kind            string // "CREATE" or "UPDATE"
    UpstreamOrderID string
    ExternalKey     string
    ReadableNumber  string
    OrganizationID  string
    Status          string // canonical, or the raw spelling when unmapped
    StatusUnmapped  bool
    OrderType       string
    RestaurantName  string
    AmountMinor     *int64
    Courier         *Courier
    Customer        *Customer
    PromisedTime    *time.Time
    Problem         string
    CreationStatus  string
    ErrorInfo       string
    RawPayload      []byte
}

type Courier struct {
    ID   string `json:"id,omitempty"`
    Name string `json:"name,omitempty"`
}

type Customer struct {
    Name    string `json:"name,omitempty"`
    Phone   string `json:"phone,omitempty"`
    Address string `json:"address,omitempty"`
}

// Subscription is one externally registered outbound webhook target.
type Subscription struct {
    ID               string            `json:"id"`
    Name             string            `json:"name,omitempty"`
    URL              string            `json:"url"`
    IsActive         bool              `json:"isActive"`
    OnCreated        bool              `json:"onCreated"`
    OnUpdated        bool              `json:"onUpdated"`
    OnStatusChanged  bool              `json:"onStatusChanged"`
    OnCancelled      bool              `json:"onCancelled"`
    FilterOrgIDs     []string          `json:"filterOrgIds,omitempty"`
    FilterOrderTypes []string          `json:"filterOrderTypes,omitempty"`
    FilterStatuses   []string          `json:"filterStatuses,omitempty"`
    PayloadFormat    string            `json:"payloadFormat,omitempty"` // soi, cloud, simple, custom
    CustomTemplate   string            `json:"customTemplate,omitempty"`
    AuthType         string            `json:"authType,omitempty"` // none, bearer, basic, header
    AuthToken        string            `json:"authToken,omitempty"`
    AuthUsername     string            `json:"authUsername,omitempty"`
    AuthPassword     string            `json:"authPassword,omitempty"`
    CustomHeaders    map[string]string `json:"customHeaders,omitempty"`
    Secret           string            `json:"secret,omitempty"`
    RetryCount       int               `json:"retryCount,omitempty"`
    RetryDelaySec    int               `json:"retryDelaySec,omitempty"`
    TimeoutSec       int               `json:"timeoutSec,omitempty"`
    Stats            SubscriptionStats `json:"stats"`
}

// SubscriptionStats are rolling delivery counters owned by the dispatcher.
// A logical delivery (one attempt sequence) counts once regardless of attempts.
type SubscriptionStats struct {
    TotalSent     int64      `json:"totalSent"`
    TotalSuccess  int64      `json:"totalSuccess"`
    TotalFailed   int64      `json:"totalFailed"`
    LastSentAt    *time.Time `json:"lastSentAt,omitempty"`
    LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
    LastError     string     `json:"lastError,omitempty"`
}

// DeliveryAttempt is one HTTP attempt toward one subscriber. Append-only.
type DeliveryAttempt struct {
    ID             string    `json:"id"`
    SubscriptionID string    `json:"subscriptionId"`
    OrderID        string    `json:"orderId,omitempty"`
    EventType      string    `json:"eventType"`
    AttemptNumber  int       `json:"attemptNumber"`
    RequestURL     string    `json:"requestUrl"`
    RequestBody    string    `json:"requestBody,omitempty"`
    ResponseStatus int       `json:"responseStatus,omitempty"`
    ResponseBody   string    `json:"responseBody,omitempty"`
    DurationMs     int       `json:"durationMs"`
    Success        bool      `json:"success"`
    ErrorMessage   string    `json:"errorMessage,omitempty"`
    CreatedAt      time.Time `json:"createdAt"`
}

// UpstreamCredential is a per-organization upstream API credential plus the
// secret the upstream presents on inbound webhook calls.
type UpstreamCredential struct {
    ID                 string     `json:"id"`
    OrganizationID     string     `json:"organizationId"`
    APILogin           string     `json:"-"`
    APIURL             string     `json:"apiUrl,omitempty"`
    WebhookSecret      string     `json:"-"`
    IsActive           bool       `json:"isActive"`
    LastRegistered     *time.Time `json:"lastRegistered,omitempty"`
    RegistrationStatus string     `json:"registrationStatus,omitempty"`
}

// APILog records one call to the upstream API (truncated bodies).
type APILog struct {
    ID             string    `json:"id"`
    Method         string    `json:"method"`
    URL            string    `json:"url"`
    RequestBody    string    `json:"requestBody,omitempty"`
    ResponseStatus int       `json:"responseStatus,omitempty"`
    ResponseBody   string    `json:"responseBody,omitempty"`
    DurationMs     int       `json:"durationMs"`
    CreatedAt      time.Time `json:"createdAt"`
}
