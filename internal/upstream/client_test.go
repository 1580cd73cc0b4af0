package upstream

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"

    "orderbridge/internal/model"
)

type captureLogger struct {
    mu      sync.Mutex
    entries []model.APILog
}

func (l *captureLogger) InsertAPILog(_ context.Context, e model.APILog) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.entries = append(l.entries, e)
    return nil
}

func TestClientRetriesOnceOn401(t *testing.T) {
    var authCalls, apiCalls int
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/access_token":
            authCalls++
            _, _ = w.Write([]byte(`"tok-` + string(rune('0'+authCalls)) + `"`))
        case "/organizations":
            apiCalls++
            if r.Header.Get("Authorization") == "Bearer tok-1" {
                w.WriteHeader(http.StatusUnauthorized)
                return
            }
            _, _ = w.Write([]byte(`{"organizations":[]}`))
        default:
            t.Errorf("unexpected path %s", r.URL.Path)
        }
    }))
    defer srv.Close()

    logs := &captureLogger{}
    c := NewClient(srv.URL, NewTokenCache(srv.URL, "login"), logs)
    if _, err := c.Organizations(context.Background()); err != nil {
        t.Fatalf("organizations: %v", err)
    }
    if authCalls != 2 { t.Fatalf("auth calls = %d, want 2", authCalls) }
    if apiCalls != 2 { t.Fatalf("api calls = %d, want 2", apiCalls) }
    if len(logs.entries) != 2 { t.Fatalf("logged calls = %d, want 2", len(logs.entries)) }
    if logs.entries[0].ResponseStatus != 401 || logs.entries[1].ResponseStatus != 200 {
        t.Fatalf("logged statuses %d,%d", logs.entries[0].ResponseStatus, logs.entries[1].ResponseStatus)
    }
}

func TestClientWithCredentialUsesOwnToken(t *testing.T) {
    var sharedAuth int
    shared := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/access_token" { sharedAuth++ }
        _, _ = w.Write([]byte(`"shared-tok"`))
    }))
    defer shared.Close()

    orgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/access_token":
            var req map[string]string
            _ = json.NewDecoder(r.Body).Decode(&req)
            if req["apiLogin"] != "org-login" {
                t.Errorf("apiLogin = %q", req["apiLogin"])
            }
            _, _ = w.Write([]byte(`"org-tok"`))
        case "/webhooks/settings":
            if got := r.Header.Get("Authorization"); got != "Bearer org-tok" {
                t.Errorf("Authorization = %q", got)
            }
            _, _ = w.Write([]byte(`{"webHooksUri":"https://example.test/hook"}`))
        }
    }))
    defer orgSrv.Close()

    base := NewClient(shared.URL, NewTokenCache(shared.URL, "shared-login"), nil)
    c := base.WithCredential(model.UpstreamCredential{APILogin: "org-login", APIURL: orgSrv.URL})
    if _, err := c.WebhookSettings(context.Background(), "org-1"); err != nil {
        t.Fatalf("settings: %v", err)
    }
    if sharedAuth != 0 { t.Fatalf("shared cache authenticated %d times for per-org call", sharedAuth) }
}

func TestClientErrorStatusSurfaces(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/access_token" {
            _, _ = w.Write([]byte(`"tok"`))
            return
        }
        w.WriteHeader(http.StatusBadRequest)
        _, _ = w.Write([]byte(`{"errorDescription":"no such organization"}`))
    }))
    defer srv.Close()

    c := NewClient(srv.URL, NewTokenCache(srv.URL, "login"), nil)
    if _, err := c.StopLists(context.Background(), "missing"); err == nil {
        t.Fatal("expected error for 400 response")
    }
}
