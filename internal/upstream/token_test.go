package upstream

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

func tokenServer(t *testing.T, calls *int64, body string, status int) *httptest.Server {
    t.Helper()
    return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt64(calls, 1)
        if r.URL.Path != "/access_token" {
            t.Errorf("unexpected path %s", r.URL.Path)
        }
        w.WriteHeader(status)
        _, _ = w.Write([]byte(body))
    }))
}

func TestTokenCachedNoNetwork(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `"tok-1"`, 200)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    tok, err := c.Token(context.Background(), false)
    if err != nil { t.Fatalf("first token: %v", err) }
    if tok.Value != "tok-1" { t.Fatalf("token = %q", tok.Value) }

    for i := 0; i < 5; i++ {
        if _, err := c.Token(context.Background(), false); err != nil { t.Fatalf("cached token: %v", err) }
    }
    if n := atomic.LoadInt64(&calls); n != 1 {
        t.Fatalf("expected 1 auth call, got %d", n)
    }
}

func TestTokenRefreshAfterExpiry(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `"tok-1"`, 200)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    if _, err := c.Token(context.Background(), false); err != nil { t.Fatal(err) }

    // jump the clock past the TTL
    c.now = func() time.Time { return time.Now().Add(tokenTTL + time.Minute) }
    if _, err := c.Token(context.Background(), false); err != nil { t.Fatal(err) }
    if n := atomic.LoadInt64(&calls); n != 2 {
        t.Fatalf("expected 2 auth calls, got %d", n)
    }
}

func TestTokenConcurrentSingleFlight(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `{"token":"tok-obj"}`, 200)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            tok, err := c.Token(context.Background(), false)
            if err != nil { t.Errorf("token: %v", err) }
            if tok.Value != "tok-obj" { t.Errorf("token = %q", tok.Value) }
        }()
    }
    wg.Wait()
    if n := atomic.LoadInt64(&calls); n != 1 {
        t.Fatalf("expected 1 auth call for concurrent callers, got %d", n)
    }
}

func TestTokenMissingLogin(t *testing.T) {
    c := NewTokenCache("http://unused.invalid", "")
    _, err := c.Token(context.Background(), false)
    if !errors.Is(err, ErrAuth) { t.Fatalf("err = %v, want ErrAuth", err) }
}

func TestTokenEmptyBodyIsAuthFailure(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `""`, 200)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    _, err := c.Token(context.Background(), false)
    if !errors.Is(err, ErrAuth) { t.Fatalf("err = %v, want ErrAuth", err) }
}

func TestTokenRejectedCredential(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `{"errorDescription":"bad login"}`, 401)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    _, err := c.Token(context.Background(), false)
    if !errors.Is(err, ErrAuth) { t.Fatalf("err = %v, want ErrAuth", err) }
}

func TestTokenServerErrorIsUnavailable(t *testing.T) {
    var calls int64
    srv := tokenServer(t, &calls, `oops`, 503)
    defer srv.Close()

    c := NewTokenCache(srv.URL, "login")
    _, err := c.Token(context.Background(), false)
    if !errors.Is(err, ErrUnavailable) { t.Fatalf("err = %v, want ErrUnavailable", err) }
}

func TestParseTokenBody(t *testing.T) {
    cases := []struct {
        in   string
        want string
    }{
        {`"abc"`, "abc"},
        {`abc`, "abc"},
        {`{"token":"abc"}`, "abc"},
        {`{"access_token":"abc"}`, "abc"},
        {`{"token":""}`, ""},
        {`""`, ""},
        {` "padded" `, "padded"},
    }
    for _, tc := range cases {
        if got := parseTokenBody([]byte(tc.in)); got != tc.want {
            t.Errorf("parseTokenBody(%q) = %q, want %q", tc.in, got, tc.want)
        }
    }
}

func TestStopIsIdempotent(t *testing.T) {
    c := NewTokenCache("http://unused.invalid", "login")
    c.StartTicker()
    c.Stop()
    c.Stop()
}
