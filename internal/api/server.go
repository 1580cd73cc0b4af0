package api

import (
    "context"
    "fmt"
    "log"
    "os"
    "strconv"
    "strings"
    "time"

    "golang.org/x/time/rate"
    "gopkg.in/yaml.v3"

    "orderbridge/internal/dispatch"
    "orderbridge/internal/ingest"
    "orderbridge/internal/model"
    "orderbridge/internal/store"
    "orderbridge/internal/upstream"
)

const defaultUpstreamURL = "https://api-ru.iiko.services/api/1"

type Server struct {
    Store    store.Store
    Tokens   *upstream.TokenCache
    Upstream *upstream.Client
    Broker   EventBroker
    Worker   *ingest.Worker
    Disp     *dispatch.Dispatcher

    inboundLimiter *rate.Limiter
    webhookSecret  string // env fallback alongside per-org secrets
}

// NewServer wires the server from the environment. If DATABASE_URL is
// unset, uses the in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }

    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }

    baseURL := envDefault("UPSTREAM_API_URL", defaultUpstreamURL)
    tokens := upstream.NewTokenCache(baseURL, os.Getenv("UPSTREAM_API_LOGIN"))
    client := upstream.NewClient(baseURL, tokens, s)

    srv := &Server{
        Store:          s,
        Tokens:         tokens,
        Upstream:       client,
        Broker:         broker,
        inboundLimiter: rate.NewLimiter(rate.Limit(envFloat("RATE_RPS", 50)), envInt("RATE_BURST", 100)),
        webhookSecret:  os.Getenv("WEBHOOK_SECRET"),
    }

    notify := func(o model.Order, eventKey string) {
        broker.Publish(o.ID, SSEEvent{Type: eventKey, Data: map[string]any{
            "orderId": o.ID, "status": o.Status, "updatedAt": o.UpdatedAt,
        }})
    }
    interval := time.Duration(envInt("WORKER_INTERVAL_SEC", 2)) * time.Second
    srv.Disp = dispatch.NewDispatcher(s)
    srv.Worker = ingest.NewWorker(s, srv.Disp, notify, interval)

    if path := os.Getenv("SUBSCRIPTIONS_FILE"); path != "" {
        if err := srv.seedSubscriptions(path); err != nil {
            log.Printf("seed subscriptions from %s: %v", path, err)
        }
    }
    return srv, nil
}

// subscriptionSeed is the yaml shape for declaring outbound subscriptions
// at startup. The events list maps onto the per-event flags.
type subscriptionSeed struct {
    Name          string            `yaml:"name"`
    URL           string            `yaml:"url"`
    Events        []string          `yaml:"events"`
    OrgIDs        []string          `yaml:"orgIds"`
    OrderTypes    []string          `yaml:"orderTypes"`
    Statuses      []string          `yaml:"statuses"`
    PayloadFormat string            `yaml:"payloadFormat"`
    Template      string            `yaml:"template"`
    AuthType      string            `yaml:"authType"`
    AuthToken     string            `yaml:"authToken"`
    AuthUsername  string            `yaml:"authUsername"`
    AuthPassword  string            `yaml:"authPassword"`
    Headers       map[string]string `yaml:"headers"`
    Secret        string            `yaml:"secret"`
    RetryCount    int               `yaml:"retryCount"`
    RetryDelaySec int               `yaml:"retryDelaySec"`
    TimeoutSec    int               `yaml:"timeoutSec"`
}

func (seed subscriptionSeed) toSubscription() model.Subscription {
    sub := model.Subscription{
        Name:             seed.Name,
        URL:              seed.URL,
        IsActive:         true,
        FilterOrgIDs:     seed.OrgIDs,
        FilterOrderTypes: seed.OrderTypes,
        FilterStatuses:   seed.Statuses,
        PayloadFormat:    seed.PayloadFormat,
        CustomTemplate:   seed.Template,
        AuthType:         seed.AuthType,
        AuthToken:        seed.AuthToken,
        AuthUsername:     seed.AuthUsername,
        AuthPassword:     seed.AuthPassword,
        CustomHeaders:    seed.Headers,
        Secret:           seed.Secret,
        RetryCount:       seed.RetryCount,
        RetryDelaySec:    seed.RetryDelaySec,
        TimeoutSec:       seed.TimeoutSec,
    }
    for _, ev := range seed.Events {
        switch ev {
        case model.EventOrderCreated:
            sub.OnCreated = true
        case model.EventOrderUpdated:
            sub.OnUpdated = true
        case model.EventOrderStatusChanged:
            sub.OnStatusChanged = true
        case model.EventOrderCancelled:
            sub.OnCancelled = true
        }
    }
    return sub
}

// seedSubscriptions loads outbound subscriptions declared in a yaml file,
// skipping URLs that already exist so restarts do not duplicate.
func (s *Server) seedSubscriptions(path string) error {
    raw, err := os.ReadFile(path)
    if err != nil { return err }
    var doc struct {
        Subscriptions []subscriptionSeed `yaml:"subscriptions"`
    }
    if err := yaml.Unmarshal(raw, &doc); err != nil { return err }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    existing, err := s.Store.ListActiveSubscriptions(ctx)
    if err != nil { return err }
    known := map[string]bool{}
    for _, sub := range existing { known[sub.URL] = true }

    for _, seed := range doc.Subscriptions {
        if seed.URL == "" || known[seed.URL] { continue }
        if _, err := s.Store.CreateSubscription(ctx, seed.toSubscription()); err != nil {
            return fmt.Errorf("create subscription %s: %w", seed.URL, err)
        }
        log.Printf("seeded subscription %s", seed.URL)
    }
    return nil
}

func envDefault(key, fallback string) string {
    if v := os.Getenv(key); v != "" { return v }
    return fallback
}

func envInt(key string, fallback int) int {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil { return n }
    }
    return fallback
}

func envFloat(key string, fallback float64) float64 {
    if v := os.Getenv(key); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil { return f }
    }
    return fallback
}
