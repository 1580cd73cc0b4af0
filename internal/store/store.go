package store

import (
    "context"
    "errors"
    "time"

    "orderbridge/internal/model"
)

// Store is the persistence interface used by the API server and workers.
type Store interface {
    // Inbound events (rows double as the processing queue)
    InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error)
    FetchUnprocessedInboundEvents(ctx context.Context, limit int) ([]model.InboundEvent, error)
    MarkInboundEventProcessed(ctx context.Context, id string, processingError string) error
    ListInboundEvents(ctx context.Context, cursor string, limit int) ([]model.InboundEvent, string, error)

    // Orders
    GetOrder(ctx context.Context, id string) (model.Order, error)
    FindOrderByUpstreamID(ctx context.Context, upstreamOrderID string) (model.Order, error)
    FindOrderByExternalKey(ctx context.Context, externalKey string) (model.Order, error)
    CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
    UpdateOrder(ctx context.Context, o model.Order) (model.Order, error)
    ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error)

    // Outbound subscriptions
    CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
    GetSubscription(ctx context.Context, id string) (model.Subscription, error)
    ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
    ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
    UpdateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error
    RecordSubscriptionDelivery(ctx context.Context, id string, success bool, lastError string, at time.Time) error

    // Delivery attempt log
    InsertDeliveryAttempt(ctx context.Context, att model.DeliveryAttempt) (string, error)
    ListDeliveryAttempts(ctx context.Context, subscriptionID, cursor string, limit int) ([]model.DeliveryAttempt, string, error)

    // Upstream credentials / inbound webhook secrets
    ListUpstreamCredentials(ctx context.Context) ([]model.UpstreamCredential, error)
    GetUpstreamCredential(ctx context.Context, organizationID string) (model.UpstreamCredential, error)
    ListWebhookSecrets(ctx context.Context) ([]string, error)
    MarkWebhookRegistered(ctx context.Context, organizationID, status string, at time.Time) error

    // Upstream API request log
    InsertAPILog(ctx context.Context, entry model.APILog) error

    // Aggregates for admin views
    DeliveryStats(ctx context.Context) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")
