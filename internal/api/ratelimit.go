package api

import (
    "fmt"
    "net/http"
    "os"
    "sync"

    "golang.org/x/time/rate"
)

// tenantLimiter hands out one token bucket per tenant. Defaults are
// generous; tune with RATE_RPS and RATE_BURST.
type tenantLimiter struct {
    mu       sync.Mutex
    limiters map[string]*rate.Limiter
    rps      rate.Limit
    burst    int
}

func newTenantLimiter() *tenantLimiter {
    rps := 50.0
    burst := 100
    if v := os.Getenv("RATE_RPS"); v != "" { fmt.Sscanf(v, "%f", &rps) }
    if v := os.Getenv("RATE_BURST"); v != "" { fmt.Sscanf(v, "%d", &burst) }
    return &tenantLimiter{limiters: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (t *tenantLimiter) get(tenant string) *rate.Limiter {
    t.mu.Lock()
    defer t.mu.Unlock()
    l, ok := t.limiters[tenant]
    if !ok {
        l = rate.NewLimiter(t.rps, t.burst)
        t.limiters[tenant] = l
    }
    return l
}

// RateLimitMiddleware rejects requests over the per-tenant budget with 429.
// Streaming endpoints are exempt; they hold a slot for minutes.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
    tl := newTenantLimiter()
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/graphql/ws" || r.URL.Path == "/v1/conversions/ws" || isStreamPath(r.URL.Path) {
            next.ServeHTTP(w, r)
            return
        }
        tenant := s.getPrincipal(r).Tenant
        if !tl.get(tenant).Allow() {
            writeProblem(w, http.StatusTooManyRequests, "Rate limited", "per-tenant request budget exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func isStreamPath(p string) bool {
    const suffix = "/events/stream"
    return len(p) >= len(suffix) && p[len(p)-len(suffix):] == suffix
}
