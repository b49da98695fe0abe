package api

import (
    "context"
    "net/http"
    "os"
    "strings"

    "tripmatch/internal/auth"
    "tripmatch/internal/conversion"
    "tripmatch/internal/match"
    "tripmatch/internal/store"
    "tripmatch/internal/webhooks"
)

type Server struct {
    Store    store.Store
    Engine   *match.Engine
    Workflow *conversion.Workflow
    Pub      *webhooks.Publisher
    Auth     *auth.Verifier
    Broker   EventBroker
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
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
    pub := webhooks.NewPublisher(s)
    eng := match.NewEngine(s)
    wf := conversion.NewWorkflow(s, eng, pub)
    wf.Notif = brokerNotifier{broker}
    return &Server{Store: s, Engine: eng, Workflow: wf, Pub: pub, Auth: auth.NewVerifierFromEnv(), Broker: broker}, nil
}

// brokerNotifier bridges workflow step notifications onto the event broker
// feeding SSE and WebSocket subscribers.
type brokerNotifier struct{ b EventBroker }

func (n brokerNotifier) Notify(sessionID, event string, data map[string]any) {
    n.b.Publish(sessionID, SSEEvent{Type: event, Data: data})
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    tenant := s.getPrincipal(r).Tenant
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
