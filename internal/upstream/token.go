// Package upstream talks to the point-of-sale provider's cloud API:
// access token lifecycle plus the authenticated calls the rest of the
// system makes on an order's behalf.
package upstream

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "strings"
    "sync"
    "time"

    "orderbridge/internal/metrics"
)

var (
    // ErrAuth means the credential is absent or was rejected.
    ErrAuth = errors.New("upstream auth failed")
    // ErrUnavailable means the provider could not be reached in time.
    ErrUnavailable = errors.New("upstream unavailable")
)

// Upstream tokens live ~15 minutes; refresh a minute early so callers
// never hold a token that expires mid-request.
const tokenTTL = 14 * time.Minute

const requestTimeout = 30 * time.Second

type Token struct {
    Value     string
    ExpiresAt time.Time
}

// TokenCache holds the process-wide access token. All refreshes serialize
// through its mutex: concurrent callers during an expired state trigger a
// single authentication call and share its result.
type TokenCache struct {
    mu       sync.Mutex
    httpc    *http.Client
    baseURL  string
    apiLogin string
    tok      Token
    stop     chan struct{}
    stopOnce sync.Once
    now      func() time.Time
}

func NewTokenCache(baseURL, apiLogin string) *TokenCache {
    return &TokenCache{
        httpc:    &http.Client{Timeout: requestTimeout},
        baseURL:  strings.TrimRight(baseURL, "/"),
        apiLogin: strings.TrimSpace(apiLogin),
        stop:     make(chan struct{}),
        now:      time.Now,
    }
}

// Token returns a valid access token, refreshing it when absent, expired,
// or forced. A cached unexpired token is returned without any I/O.
func (c *TokenCache) Token(ctx context.Context, forceRefresh bool) (Token, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if !forceRefresh && c.tok.Value != "" && c.now().Before(c.tok.ExpiresAt) {
        return c.tok, nil
    }
    if c.apiLogin == "" {
        return Token{}, fmt.Errorf("%w: no api login configured", ErrAuth)
    }
    val, err := requestToken(ctx, c.httpc, c.baseURL, c.apiLogin)
    if err != nil {
        metrics.TokenRefreshes.WithLabelValues("error").Inc()
        return Token{}, err
    }
    metrics.TokenRefreshes.WithLabelValues("ok").Inc()
    c.tok = Token{Value: val, ExpiresAt: c.now().Add(tokenTTL)}
    return c.tok, nil
}

// StartTicker refreshes the token every tokenTTL in the background so
// foreground requests rarely pay for a refresh. Failures are logged and
// retried on the next tick.
func (c *TokenCache) StartTicker() {
    go func() {
        ticker := time.NewTicker(tokenTTL)
        defer ticker.Stop()
        for {
            select {
            case <-c.stop:
                return
            case <-ticker.C:
                ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
                if _, err := c.Token(ctx, true); err != nil {
                    log.Printf("token refresh failed: %v", err)
                }
                cancel()
            }
        }
    }()
}

// Stop halts the background ticker. Safe to call more than once.
func (c *TokenCache) Stop() {
    c.stopOnce.Do(func() { close(c.stop) })
}

// Authenticate performs a one-off, uncached token request with the given
// credential. This is the degraded path for organizations with their own
// API login; the result must not be mixed into the shared cache.
func Authenticate(ctx context.Context, httpc *http.Client, baseURL, apiLogin string) (string, error) {
    apiLogin = strings.TrimSpace(apiLogin)
    if apiLogin == "" {
        return "", fmt.Errorf("%w: empty api login", ErrAuth)
    }
    return requestToken(ctx, httpc, strings.TrimRight(baseURL, "/"), apiLogin)
}

func requestToken(ctx context.Context, httpc *http.Client, baseURL, apiLogin string) (string, error) {
    body, _ := json.Marshal(map[string]string{"apiLogin": apiLogin})
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/access_token", bytes.NewReader(body))
    if err != nil {
        return "", err
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := httpc.Do(req)
    if err != nil {
        return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer func() { _ = resp.Body.Close() }()
    raw, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    if resp.StatusCode != http.StatusOK {
        if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
            return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
        }
        return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
    }
    tok := parseTokenBody(raw)
    if tok == "" {
        return "", fmt.Errorf("%w: empty token in response", ErrAuth)
    }
    return tok, nil
}

// parseTokenBody accepts either a bare JSON string ("abc") or an object
// carrying a token field ({"token":"abc"}).
func parseTokenBody(raw []byte) string {
    text := strings.TrimSpace(string(raw))
    if strings.HasPrefix(text, "{") {
        var obj struct {
            Token       string `json:"token"`
            AccessToken string `json:"access_token"`
        }
        if json.Unmarshal(raw, &obj) == nil {
            if obj.Token != "" { return obj.Token }
            return obj.AccessToken
        }
        return ""
    }
    if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
        text = text[1 : len(text)-1]
    }
    return strings.TrimSpace(text)
}
