package upstream

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "orderbridge/internal/model"
)

const maxLogBody = 2000

// APILogger records upstream API calls. Satisfied by store implementations.
type APILogger interface {
    InsertAPILog(ctx context.Context, entry model.APILog) error
}

// Client is an authenticated caller for the provider's cloud API. It takes
// its token from the shared cache unless a per-organization credential was
// attached with WithCredential.
type Client struct {
    httpc   *http.Client
    baseURL string
    tokens  *TokenCache
    logs    APILogger

    // set only on the per-organization fallback path
    orgLogin string
    orgToken string
}

func NewClient(baseURL string, tokens *TokenCache, logs APILogger) *Client {
    return &Client{
        httpc:   &http.Client{Timeout: requestTimeout},
        baseURL: strings.TrimRight(baseURL, "/"),
        tokens:  tokens,
        logs:    logs,
    }
}

// WithCredential returns a client scoped to one organization's own API
// login. Its token is fetched locally and never shared with the cache.
func (c *Client) WithCredential(cred model.UpstreamCredential) *Client {
    cp := *c
    cp.orgLogin = cred.APILogin
    if cred.APIURL != "" {
        cp.baseURL = strings.TrimRight(cred.APIURL, "/")
    }
    cp.orgToken = ""
    return &cp
}

func (c *Client) token(ctx context.Context, force bool) (string, error) {
    if c.orgLogin != "" {
        if c.orgToken != "" && !force {
            return c.orgToken, nil
        }
        tok, err := Authenticate(ctx, c.httpc, c.baseURL, c.orgLogin)
        if err != nil {
            return "", err
        }
        c.orgToken = tok
        return tok, nil
    }
    tok, err := c.tokens.Token(ctx, force)
    if err != nil {
        return "", err
    }
    return tok.Value, nil
}

// post sends an authenticated JSON POST and decodes the response object.
// On 401 it refreshes the token once and retries.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
    return c.doPost(ctx, path, body, out, false)
}

func (c *Client) doPost(ctx context.Context, path string, body any, out any, retried bool) error {
    tok, err := c.token(ctx, retried)
    if err != nil {
        return err
    }
    reqBody, _ := json.Marshal(body)
    url := c.baseURL + "/" + strings.TrimLeft(path, "/")
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("Authorization", "Bearer "+tok)

    start := time.Now()
    resp, err := c.httpc.Do(req)
    dur := int(time.Since(start).Milliseconds())
    if err != nil {
        c.logCall(ctx, url, reqBody, 0, nil, dur)
        return fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer func() { _ = resp.Body.Close() }()
    respBody, _ := io.ReadAll(resp.Body)
    c.logCall(ctx, url, reqBody, resp.StatusCode, respBody, dur)

    if resp.StatusCode == http.StatusUnauthorized && !retried {
        return c.doPost(ctx, path, body, out, true)
    }
    if resp.StatusCode >= 400 {
        return fmt.Errorf("upstream api error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
    }
    if out != nil && len(respBody) > 0 {
        if err := json.Unmarshal(respBody, out); err != nil {
            return fmt.Errorf("decode upstream response: %w", err)
        }
    }
    return nil
}

func (c *Client) logCall(ctx context.Context, url string, reqBody []byte, status int, respBody []byte, durMs int) {
    if c.logs == nil { return }
    _ = c.logs.InsertAPILog(ctx, model.APILog{
        Method:         http.MethodPost,
        URL:            url,
        RequestBody:    truncate(string(reqBody), maxLogBody),
        ResponseStatus: status,
        ResponseBody:   truncate(string(respBody), maxLogBody),
        DurationMs:     durMs,
    })
}

func truncate(s string, n int) string { if len(s) > n { return s[:n] }; return s }

// Organizations returns the organizations visible to the credential.
func (c *Client) Organizations(ctx context.Context) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/organizations", map[string]any{}, &out)
    return out, err
}

// OrderStatus queries current delivery order state by id.
func (c *Client) OrderStatus(ctx context.Context, organizationID string, orderIDs []string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/deliveries/by_id", map[string]any{
        "organizationId": organizationID,
        "orderIds":       orderIDs,
    }, &out)
    return out, err
}

// UpdateOrderStatus pushes a status override to the provider.
func (c *Client) UpdateOrderStatus(ctx context.Context, organizationID, orderID, status string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/deliveries/update_order_delivery_status", map[string]any{
        "organizationId": organizationID,
        "orderId":        orderID,
        "deliveryStatus": status,
    }, &out)
    return out, err
}

// CancelOrder cancels a delivery order upstream.
func (c *Client) CancelOrder(ctx context.Context, organizationID, orderID, reason string) (map[string]any, error) {
    body := map[string]any{"organizationId": organizationID, "orderId": orderID}
    if reason != "" {
        body["cancelCause"] = map[string]any{"comment": reason}
    }
    out := map[string]any{}
    err := c.post(ctx, "/deliveries/cancel", body, &out)
    return out, err
}

// AssignCourier attaches a courier to an order upstream.
func (c *Client) AssignCourier(ctx context.Context, organizationID, orderID, courierID string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/deliveries/change_driver_info", map[string]any{
        "organizationId": organizationID,
        "orderId":        orderID,
        "driverId":       courierID,
    }, &out)
    return out, err
}

// RegisterWebhook points the provider's webhook at the given URL.
func (c *Client) RegisterWebhook(ctx context.Context, organizationID, webhookURL, authToken string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/webhooks/update_settings", map[string]any{
        "organizationId": organizationID,
        "webHooksUri":    webhookURL,
        "authToken":      authToken,
    }, &out)
    return out, err
}

// WebhookSettings reads the provider's current webhook registration.
func (c *Client) WebhookSettings(ctx context.Context, organizationID string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/webhooks/settings", map[string]any{"organizationId": organizationID}, &out)
    return out, err
}

// StopLists fetches the out-of-stock lists for an organization.
func (c *Client) StopLists(ctx context.Context, organizationID string) (map[string]any, error) {
    out := map[string]any{}
    err := c.post(ctx, "/stop_lists", map[string]any{"organizationIds": []string{organizationID}}, &out)
    return out, err
}
