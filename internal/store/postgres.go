package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "orderbridge/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migration %s: %w", n, err)
        }
    }
    return nil
}

// Inbound events

func (p *Postgres) InsertInboundEvent(ctx context.Context, ev model.InboundEvent) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO inbound_events (id, wire_format, event_type, order_external_key, organization_id, payload, processed)
        VALUES ($1,$2,$3,$4,$5,$6,false)`,
        id, ev.WireFormat, ev.EventType, nullIfEmpty(ev.OrderExternalKey), nullIfEmpty(ev.OrganizationID), ev.Payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchUnprocessedInboundEvents(ctx context.Context, limit int) ([]model.InboundEvent, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, wire_format, event_type, COALESCE(order_external_key,''), COALESCE(organization_id,''), payload, created_at
        FROM inbound_events WHERE processed = false ORDER BY created_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.InboundEvent{}
    for rows.Next() {
        var ev model.InboundEvent
        if err := rows.Scan(&ev.ID, &ev.WireFormat, &ev.EventType, &ev.OrderExternalKey, &ev.OrganizationID, &ev.Payload, &ev.CreatedAt); err != nil { return nil, err }
        out = append(out, ev)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkInboundEventProcessed(ctx context.Context, id string, processingError string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE inbound_events SET processed=true, processing_error=$2 WHERE id=$1`, id, nullIfEmpty(processingError))
    return err
}

func (p *Postgres) ListInboundEvents(ctx context.Context, cursor string, limit int) ([]model.InboundEvent, string, error) {
    if limit <= 0 || limit > 500 { limit = 50 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, wire_format, event_type, COALESCE(order_external_key,''), COALESCE(organization_id,''), processed, COALESCE(processing_error,''), created_at
            FROM inbound_events WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, wire_format, event_type, COALESCE(order_external_key,''), COALESCE(organization_id,''), processed, COALESCE(processing_error,''), created_at
            FROM inbound_events ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.InboundEvent{}
    var last string
    for rows.Next() {
        var ev model.InboundEvent
        if err := rows.Scan(&ev.ID, &ev.WireFormat, &ev.EventType, &ev.OrderExternalKey, &ev.OrganizationID, &ev.Processed, &ev.ProcessingError, &ev.CreatedAt); err != nil { return nil, "", err }
        out = append(out, ev)
        last = ev.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Orders

const orderCols = `id::text, COALESCE(upstream_order_id,''), COALESCE(external_key,''), COALESCE(readable_number,''), COALESCE(organization_id,''),
    status, COALESCE(order_type,''), COALESCE(restaurant_name,''), COALESCE(customer_name,''), COALESCE(customer_phone,''), COALESCE(delivery_address,''),
    COALESCE(courier_id,''), COALESCE(courier_name,''), total_amount, COALESCE(problem,''), COALESCE(creation_status,''), COALESCE(error_info,''),
    promised_time, raw_payload, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
    var o model.Order
    var promised sql.NullTime
    err := row.Scan(&o.ID, &o.UpstreamOrderID, &o.ExternalKey, &o.ReadableNumber, &o.OrganizationID,
        &o.Status, &o.OrderType, &o.RestaurantName, &o.CustomerName, &o.CustomerPhone, &o.DeliveryAddress,
        &o.CourierID, &o.CourierName, &o.TotalAmount, &o.Problem, &o.CreationStatus, &o.ErrorInfo,
        &promised, &o.RawPayload, &o.CreatedAt, &o.UpdatedAt)
    if err != nil { return model.Order{}, err }
    if promised.Valid { t := promised.Time; o.PromisedTime = &t }
    return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
    o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) FindOrderByUpstreamID(ctx context.Context, upstreamOrderID string) (model.Order, error) {
    if upstreamOrderID == "" { return model.Order{}, ErrNotFound }
    o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE upstream_order_id=$1`, upstreamOrderID))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) FindOrderByExternalKey(ctx context.Context, externalKey string) (model.Order, error) {
    if externalKey == "" { return model.Order{}, ErrNotFound }
    o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE external_key=$1 ORDER BY created_at LIMIT 1`, externalKey))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    if o.ID == "" { o.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO orders (id, upstream_order_id, external_key, readable_number, organization_id, status, order_type,
        restaurant_name, customer_name, customer_phone, delivery_address, courier_id, courier_name, total_amount, problem, creation_status, error_info, promised_time, raw_payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
        o.ID, nullIfEmpty(o.UpstreamOrderID), nullIfEmpty(o.ExternalKey), nullIfEmpty(o.ReadableNumber), nullIfEmpty(o.OrganizationID),
        o.Status, nullIfEmpty(o.OrderType), nullIfEmpty(o.RestaurantName), nullIfEmpty(o.CustomerName), nullIfEmpty(o.CustomerPhone),
        nullIfEmpty(o.DeliveryAddress), nullIfEmpty(o.CourierID), nullIfEmpty(o.CourierName), o.TotalAmount, nullIfEmpty(o.Problem),
        nullIfEmpty(o.CreationStatus), nullIfEmpty(o.ErrorInfo), o.PromisedTime, o.RawPayload)
    if err != nil { return model.Order{}, err }
    return p.GetOrder(ctx, o.ID)
}

func (p *Postgres) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET upstream_order_id=$2, external_key=$3, readable_number=$4, organization_id=$5, status=$6,
        order_type=$7, restaurant_name=$8, customer_name=$9, customer_phone=$10, delivery_address=$11, courier_id=$12, courier_name=$13,
        total_amount=$14, problem=$15, creation_status=$16, error_info=$17, promised_time=$18, raw_payload=$19, updated_at=now() WHERE id=$1`,
        o.ID, nullIfEmpty(o.UpstreamOrderID), nullIfEmpty(o.ExternalKey), nullIfEmpty(o.ReadableNumber), nullIfEmpty(o.OrganizationID), o.Status,
        nullIfEmpty(o.OrderType), nullIfEmpty(o.RestaurantName), nullIfEmpty(o.CustomerName), nullIfEmpty(o.CustomerPhone), nullIfEmpty(o.DeliveryAddress),
        nullIfEmpty(o.CourierID), nullIfEmpty(o.CourierName), o.TotalAmount, nullIfEmpty(o.Problem), nullIfEmpty(o.CreationStatus), nullIfEmpty(o.ErrorInfo),
        o.PromisedTime, o.RawPayload)
    if err != nil { return model.Order{}, err }
    if n, _ := res.RowsAffected(); n == 0 { return model.Order{}, ErrNotFound }
    return p.GetOrder(ctx, o.ID)
}

func (p *Postgres) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
    if limit <= 0 || limit > 500 { limit = 50 }
    q := `SELECT ` + orderCols + ` FROM orders WHERE 1=1`
    args := []any{}
    idx := 1
    if status != "" { q += fmt.Sprintf(` AND status=$%d`, idx); args = append(args, status); idx++ }
    if cursor != "" { q += fmt.Sprintf(` AND id::text > $%d`, idx); args = append(args, cursor); idx++ }
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Order{}
    var last string
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, "", err }
        out = append(out, o)
        last = o.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    if sub.ID == "" { sub.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, name, url, is_active, on_created, on_updated, on_status_changed, on_cancelled,
        filter_org_ids, filter_order_types, filter_statuses, payload_format, custom_template, auth_type, auth_token, auth_username, auth_password,
        custom_headers, secret, retry_count, retry_delay_sec, timeout_sec)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
        sub.ID, nullIfEmpty(sub.Name), sub.URL, sub.IsActive, sub.OnCreated, sub.OnUpdated, sub.OnStatusChanged, sub.OnCancelled,
        toJSONList(sub.FilterOrgIDs), toJSONList(sub.FilterOrderTypes), toJSONList(sub.FilterStatuses), nullIfEmpty(sub.PayloadFormat),
        nullIfEmpty(sub.CustomTemplate), nullIfEmpty(sub.AuthType), nullIfEmpty(sub.AuthToken), nullIfEmpty(sub.AuthUsername),
        nullIfEmpty(sub.AuthPassword), toJSONMap(sub.CustomHeaders), nullIfEmpty(sub.Secret), sub.RetryCount, sub.RetryDelaySec, sub.TimeoutSec)
    if err != nil { return model.Subscription{}, err }
    return p.GetSubscription(ctx, sub.ID)
}

const subCols = `id::text, COALESCE(name,''), url, is_active, on_created, on_updated, on_status_changed, on_cancelled,
    filter_org_ids, filter_order_types, filter_statuses, COALESCE(payload_format,''), COALESCE(custom_template,''),
    COALESCE(auth_type,''), COALESCE(auth_token,''), COALESCE(auth_username,''), COALESCE(auth_password,''), custom_headers,
    COALESCE(secret,''), retry_count, retry_delay_sec, timeout_sec, total_sent, total_success, total_failed, last_sent_at, last_success_at, COALESCE(last_error,'')`

func scanSubscription(row interface{ Scan(...any) error }) (model.Subscription, error) {
    var s model.Subscription
    var orgs, types, statuses, headers []byte
    var lastSent, lastSuccess sql.NullTime
    err := row.Scan(&s.ID, &s.Name, &s.URL, &s.IsActive, &s.OnCreated, &s.OnUpdated, &s.OnStatusChanged, &s.OnCancelled,
        &orgs, &types, &statuses, &s.PayloadFormat, &s.CustomTemplate,
        &s.AuthType, &s.AuthToken, &s.AuthUsername, &s.AuthPassword, &headers,
        &s.Secret, &s.RetryCount, &s.RetryDelaySec, &s.TimeoutSec,
        &s.Stats.TotalSent, &s.Stats.TotalSuccess, &s.Stats.TotalFailed, &lastSent, &lastSuccess, &s.Stats.LastError)
    if err != nil { return model.Subscription{}, err }
    if len(orgs) > 0 { _ = json.Unmarshal(orgs, &s.FilterOrgIDs) }
    if len(types) > 0 { _ = json.Unmarshal(types, &s.FilterOrderTypes) }
    if len(statuses) > 0 { _ = json.Unmarshal(statuses, &s.FilterStatuses) }
    if len(headers) > 0 { _ = json.Unmarshal(headers, &s.CustomHeaders) }
    if lastSent.Valid { t := lastSent.Time; s.Stats.LastSentAt = &t }
    if lastSuccess.Valid { t := lastSuccess.Time; s.Stats.LastSuccessAt = &t }
    return s, nil
}

func (p *Postgres) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    s, err := scanSubscription(p.db.QueryRowContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
    return s, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 50 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+subCols+` FROM subscriptions ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, "", err }
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+subCols+` FROM subscriptions WHERE is_active = true ORDER BY created_at`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) UpdateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE subscriptions SET name=$2, url=$3, is_active=$4, on_created=$5, on_updated=$6, on_status_changed=$7,
        on_cancelled=$8, filter_org_ids=$9, filter_order_types=$10, filter_statuses=$11, payload_format=$12, custom_template=$13, auth_type=$14,
        auth_token=$15, auth_username=$16, auth_password=$17, custom_headers=$18, secret=$19, retry_count=$20, retry_delay_sec=$21, timeout_sec=$22 WHERE id=$1`,
        sub.ID, nullIfEmpty(sub.Name), sub.URL, sub.IsActive, sub.OnCreated, sub.OnUpdated, sub.OnStatusChanged, sub.OnCancelled,
        toJSONList(sub.FilterOrgIDs), toJSONList(sub.FilterOrderTypes), toJSONList(sub.FilterStatuses), nullIfEmpty(sub.PayloadFormat),
        nullIfEmpty(sub.CustomTemplate), nullIfEmpty(sub.AuthType), nullIfEmpty(sub.AuthToken), nullIfEmpty(sub.AuthUsername),
        nullIfEmpty(sub.AuthPassword), toJSONMap(sub.CustomHeaders), nullIfEmpty(sub.Secret), sub.RetryCount, sub.RetryDelaySec, sub.TimeoutSec)
    if err != nil { return model.Subscription{}, err }
    if n, _ := res.RowsAffected(); n == 0 { return model.Subscription{}, ErrNotFound }
    return p.GetSubscription(ctx, sub.ID)
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) RecordSubscriptionDelivery(ctx context.Context, id string, success bool, lastError string, at time.Time) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE subscriptions SET total_sent=total_sent+1, total_success=total_success+1, last_sent_at=$2, last_success_at=$2, last_error=NULL WHERE id=$1`, id, at)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE subscriptions SET total_sent=total_sent+1, total_failed=total_failed+1, last_sent_at=$2, last_error=$3 WHERE id=$1`, id, at, nullIfEmpty(lastError))
    return err
}

// Delivery attempts

func (p *Postgres) InsertDeliveryAttempt(ctx context.Context, att model.DeliveryAttempt) (string, error) {
    if att.ID == "" { att.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO delivery_attempts (id, subscription_id, order_id, event_type, attempt_number, request_url,
        request_body, response_status, response_body, duration_ms, success, error_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
        att.ID, att.SubscriptionID, nullIfEmpty(att.OrderID), att.EventType, att.AttemptNumber, att.RequestURL,
        nullIfEmpty(att.RequestBody), att.ResponseStatus, nullIfEmpty(att.ResponseBody), att.DurationMs, att.Success, nullIfEmpty(att.ErrorMessage))
    if err != nil { return "", err }
    return att.ID, nil
}

func (p *Postgres) ListDeliveryAttempts(ctx context.Context, subscriptionID, cursor string, limit int) ([]model.DeliveryAttempt, string, error) {
    if limit <= 0 || limit > 500 { limit = 50 }
    q := `SELECT id::text, subscription_id::text, COALESCE(order_id::text,''), event_type, attempt_number, request_url,
        COALESCE(request_body,''), response_status, COALESCE(response_body,''), duration_ms, success, COALESCE(error_message,''), created_at
        FROM delivery_attempts WHERE 1=1`
    args := []any{}
    idx := 1
    if subscriptionID != "" { q += fmt.Sprintf(` AND subscription_id=$%d`, idx); args = append(args, subscriptionID); idx++ }
    if cursor != "" { q += fmt.Sprintf(` AND id::text > $%d`, idx); args = append(args, cursor); idx++ }
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.DeliveryAttempt{}
    var last string
    for rows.Next() {
        var a model.DeliveryAttempt
        if err := rows.Scan(&a.ID, &a.SubscriptionID, &a.OrderID, &a.EventType, &a.AttemptNumber, &a.RequestURL,
            &a.RequestBody, &a.ResponseStatus, &a.ResponseBody, &a.DurationMs, &a.Success, &a.ErrorMessage, &a.CreatedAt); err != nil { return nil, "", err }
        out = append(out, a)
        last = a.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// Upstream credentials

func (p *Postgres) ListUpstreamCredentials(ctx context.Context) ([]model.UpstreamCredential, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, organization_id, api_login, COALESCE(api_url,''), COALESCE(webhook_secret,''), is_active, last_registered, COALESCE(registration_status,'')
        FROM upstream_credentials ORDER BY organization_id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.UpstreamCredential{}
    for rows.Next() {
        var c model.UpstreamCredential
        var reg sql.NullTime
        if err := rows.Scan(&c.ID, &c.OrganizationID, &c.APILogin, &c.APIURL, &c.WebhookSecret, &c.IsActive, &reg, &c.RegistrationStatus); err != nil { return nil, err }
        if reg.Valid { t := reg.Time; c.LastRegistered = &t }
        out = append(out, c)
    }
    return out, rows.Err()
}

func (p *Postgres) GetUpstreamCredential(ctx context.Context, organizationID string) (model.UpstreamCredential, error) {
    var c model.UpstreamCredential
    var reg sql.NullTime
    err := p.db.QueryRowContext(ctx, `SELECT id::text, organization_id, api_login, COALESCE(api_url,''), COALESCE(webhook_secret,''), is_active, last_registered, COALESCE(registration_status,'')
        FROM upstream_credentials WHERE organization_id=$1`, organizationID).
        Scan(&c.ID, &c.OrganizationID, &c.APILogin, &c.APIURL, &c.WebhookSecret, &c.IsActive, &reg, &c.RegistrationStatus)
    if errors.Is(err, sql.ErrNoRows) { return model.UpstreamCredential{}, ErrNotFound }
    if err != nil { return model.UpstreamCredential{}, err }
    if reg.Valid { t := reg.Time; c.LastRegistered = &t }
    return c, nil
}

func (p *Postgres) ListWebhookSecrets(ctx context.Context) ([]string, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT webhook_secret FROM upstream_credentials WHERE is_active = true AND webhook_secret IS NOT NULL`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []string{}
    for rows.Next() {
        var s string
        if err := rows.Scan(&s); err != nil { return nil, err }
        if s != "" { out = append(out, s) }
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookRegistered(ctx context.Context, organizationID, status string, at time.Time) error {
    _, err := p.db.ExecContext(ctx, `UPDATE upstream_credentials SET last_registered=$2, registration_status=$3 WHERE organization_id=$1`, organizationID, at, status)
    return err
}

func (p *Postgres) InsertAPILog(ctx context.Context, entry model.APILog) error {
    if entry.ID == "" { entry.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO api_logs (id, method, url, request_body, response_status, response_body, duration_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        entry.ID, entry.Method, entry.URL, nullIfEmpty(entry.RequestBody), entry.ResponseStatus, nullIfEmpty(entry.ResponseBody), entry.DurationMs)
    return err
}

func (p *Postgres) DeliveryStats(ctx context.Context) ([]map[string]any, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, total_sent, total_success, total_failed, last_sent_at, COALESCE(last_error,'')
        FROM subscriptions ORDER BY created_at`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, url, lastErr string
        var sent, ok, failed int64
        var lastSent sql.NullTime
        if err := rows.Scan(&id, &url, &sent, &ok, &failed, &lastSent, &lastErr); err != nil { return nil, err }
        row := map[string]any{"subscriptionId": id, "url": url, "totalSent": sent, "totalSuccess": ok, "totalFailed": failed}
        if lastSent.Valid { row["lastSentAt"] = lastSent.Time }
        if lastErr != "" { row["lastError"] = lastErr }
        out = append(out, row)
    }
    return out, nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func toJSONList(v []string) any {
    if len(v) == 0 { return nil }
    b, _ := json.Marshal(v)
    return b
}

func toJSONMap(m map[string]string) any {
    if len(m) == 0 { return nil }
    b, _ := json.Marshal(m)
    return b
}
