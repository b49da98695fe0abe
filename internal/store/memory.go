package store

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "tripmatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    requests map[string]model.TripRequest      // id -> request
    reqTen   map[string][]string               // tenant -> request ids
    packages map[string]model.Package          // id -> package
    pkgTen   map[string][]string               // tenant -> package ids
    sessions map[string]*model.ConversionSession // id -> session
    sessTen  map[string][]string               // tenant -> session ids
    sessReq  map[string]string                 // tenant|requestId -> session id
    bookings map[string]model.Booking          // id -> booking
    runs     map[string][]model.MatchingSessionResult // tenant -> matching runs
    subs     map[string][]model.Subscription   // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery
    deliveriesByTenant map[string][]string
    dlq      []*memDelivery
}

func NewMemory() *Memory {
    return &Memory{
        requests: map[string]model.TripRequest{},
        reqTen: map[string][]string{},
        packages: map[string]model.Package{},
        pkgTen: map[string][]string{},
        sessions: map[string]*model.ConversionSession{},
        sessTen: map[string][]string{},
        sessReq: map[string]string{},
        bookings: map[string]model.Booking{},
        runs: map[string][]model.MatchingSessionResult{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dlq: []*memDelivery{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func sessKey(tenantID, requestID string) string { return tenantID + "|" + requestID }

func (m *Memory) CreateTripRequests(ctx context.Context, tenantID string, reqs []model.TripRequestIn) (string, int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    importID := fmt.Sprintf("imp_%d", time.Now().UnixNano())
    created, skipped := 0, 0
    for _, in := range reqs {
        if in.Budget <= 0 || in.DurationDays <= 0 || in.GroupSize < 1 { skipped++; continue }
        if in.ExternalRef != "" && m.requestByRef(tenantID, in.ExternalRef) != "" { skipped++; continue }
        id := uuid.New().String()
        m.requests[id] = model.TripRequest{
            ID: id, TenantID: tenantID, ExternalRef: in.ExternalRef,
            Destination: in.Destination, Budget: in.Budget, DurationDays: in.DurationDays,
            GroupSize: in.GroupSize, BudgetFlexibility: in.BudgetFlexibility,
            FlexibleDates: in.FlexibleDates, StartDate: in.StartDate,
            Activities: in.Activities, AccommodationTypes: in.AccommodationTypes,
            Status: "pending", CreatedAt: time.Now().UTC().Format(time.RFC3339),
        }
        m.reqTen[tenantID] = append(m.reqTen[tenantID], id)
        created++
    }
    return importID, created, skipped, nil
}

func (m *Memory) requestByRef(tenantID, ref string) string {
    for _, id := range m.reqTen[tenantID] {
        if m.requests[id].ExternalRef == ref { return id }
    }
    return ""
}

func (m *Memory) GetTripRequest(ctx context.Context, tenantID, id string) (*model.TripRequest, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.requests[id]
    if !ok || r.TenantID != tenantID { return nil, ErrNotFound }
    return &r, nil
}

func (m *Memory) ListTripRequests(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.TripRequest, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.reqTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.TripRequest{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        r := m.requests[ids[i]]
        if status == "" || r.Status == status { out = append(out, r) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) UpdateTripRequestStatus(ctx context.Context, tenantID, id, status, adminNotes string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.requests[id]
    if !ok || r.TenantID != tenantID { return ErrNotFound }
    r.Status = status
    if adminNotes != "" { r.AdminNotes = adminNotes }
    m.requests[id] = r
    return nil
}

func (m *Memory) CreatePackages(ctx context.Context, tenantID string, pkgs []model.PackageIn) (int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    created, skipped := 0, 0
    for _, in := range pkgs {
        if in.BasePrice <= 0 || in.MaxGuests < 1 { skipped++; continue }
        if in.ExternalRef != "" && m.packageByRef(tenantID, in.ExternalRef) != "" { skipped++; continue }
        id := uuid.New().String()
        m.packages[id] = model.Package{
            ID: id, TenantID: tenantID, ExternalRef: in.ExternalRef,
            Name: in.Name, Category: in.Category, BasePrice: in.BasePrice,
            DurationDays: in.DurationDays, MaxGuests: in.MaxGuests,
            Description: in.Description, Highlights: in.Highlights,
            IsFeatured: in.IsFeatured, DiscountPercentage: in.DiscountPercentage,
            AccommodationID: in.AccommodationID,
        }
        m.pkgTen[tenantID] = append(m.pkgTen[tenantID], id)
        created++
    }
    return created, skipped, nil
}

func (m *Memory) packageByRef(tenantID, ref string) string {
    for _, id := range m.pkgTen[tenantID] {
        if m.packages[id].ExternalRef == ref { return id }
    }
    return ""
}

func (m *Memory) GetPackage(ctx context.Context, tenantID, id string) (*model.Package, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p, ok := m.packages[id]
    if !ok || p.TenantID != tenantID { return nil, ErrNotFound }
    return &p, nil
}

func (m *Memory) ListPackages(ctx context.Context, tenantID string) ([]model.Package, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.pkgTen[tenantID]
    out := make([]model.Package, 0, len(ids))
    for _, id := range ids { out = append(out, m.packages[id]) }
    return out, nil
}

func (m *Memory) ListPackagesPage(ctx context.Context, tenantID, cursor string, limit int) ([]model.Package, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.pkgTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    out := make([]model.Package, 0, end-start)
    for _, id := range ids[start:end] { out = append(out, m.packages[id]) }
    next := ""
    if end < len(ids) { next = ids[end-1] }
    return out, next, nil
}

func (m *Memory) CreateConversionSession(ctx context.Context, sess *model.ConversionSession) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if sess.ID == "" { sess.ID = uuid.New().String() }
    if sess.Version == 0 { sess.Version = 1 }
    now := time.Now().UTC().Format(time.RFC3339)
    sess.CreatedAt = now
    sess.UpdatedAt = now
    cp := *sess
    m.sessions[cp.ID] = &cp
    m.sessTen[cp.TenantID] = append(m.sessTen[cp.TenantID], cp.ID)
    m.sessReq[sessKey(cp.TenantID, cp.RequestID)] = cp.ID
    return nil
}

func (m *Memory) GetConversionSession(ctx context.Context, tenantID, id string) (*model.ConversionSession, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.sessions[id]
    if !ok || s.TenantID != tenantID { return nil, ErrNotFound }
    cp := *s
    return &cp, nil
}

func (m *Memory) FindConversionSessionByRequest(ctx context.Context, tenantID, requestID string) (*model.ConversionSession, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id, ok := m.sessReq[sessKey(tenantID, requestID)]
    if !ok { return nil, ErrNotFound }
    cp := *m.sessions[id]
    return &cp, nil
}

// SaveConversionSession applies an optimistic write: the caller's copy
// must carry the version it read, and the stored version advances by one.
func (m *Memory) SaveConversionSession(ctx context.Context, sess *model.ConversionSession) error {
    m.mu.Lock(); defer m.mu.Unlock()
    cur, ok := m.sessions[sess.ID]
    if !ok || cur.TenantID != sess.TenantID { return ErrNotFound }
    if cur.Version != sess.Version { return ErrVersionConflict }
    sess.Version++
    sess.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
    cp := *sess
    m.sessions[cp.ID] = &cp
    return nil
}

func (m *Memory) ListConversionSessions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.ConversionSession, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.sessTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.ConversionSession{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        s := m.sessions[ids[i]]
        if status == "" || s.Status == status { out = append(out, *s) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) CreateBooking(ctx context.Context, b *model.Booking) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if b.ID == "" { b.ID = uuid.New().String() }
    b.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    m.bookings[b.ID] = *b
    return nil
}

func (m *Memory) GetBooking(ctx context.Context, tenantID, id string) (*model.Booking, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    b, ok := m.bookings[id]
    if !ok || b.TenantID != tenantID { return nil, ErrNotFound }
    return &b, nil
}

func (m *Memory) SaveMatchingRun(ctx context.Context, tenantID string, res *model.MatchingSessionResult) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.runs[tenantID] = append(m.runs[tenantID], *res)
    return nil
}

func (m *Memory) ListMatchingRuns(ctx context.Context, tenantID, requestID string) ([]model.MatchingSessionResult, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.MatchingSessionResult{}
    for _, r := range m.runs[tenantID] {
        if requestID == "" || r.RequestID == requestID { out = append(out, r) }
    }
    return out, nil
}

func (m *Memory) ConversionAnalytics(ctx context.Context, tenantID string, since time.Time, adminID string) (*model.ConversionAnalytics, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := &model.ConversionAnalytics{ByStatus: map[string]int{}}
    var hours float64
    completed := 0
    for _, id := range m.sessTen[tenantID] {
        s := m.sessions[id]
        if adminID != "" && s.AdminID != adminID { continue }
        if ts, err := time.Parse(time.RFC3339, s.CreatedAt); err == nil && ts.Before(since) { continue }
        out.TotalSessions++
        out.ByStatus[s.Status]++
        switch s.Status {
        case model.StatusConversionComplete:
            out.Completed++
            if h, ok := sessionHours(s); ok { hours += h; completed++ }
        case model.StatusConversionFailed:
            out.Failed++
        case model.StatusCustomerRejected:
            out.Rejected++
        }
    }
    if out.TotalSessions > 0 {
        out.ConversionRate = float64(out.Completed) / float64(out.TotalSessions)
    }
    if completed > 0 { out.AvgCompletionHours = hours / float64(completed) }
    return out, nil
}

func sessionHours(s *model.ConversionSession) (float64, bool) {
    created, err1 := time.Parse(time.RFC3339, s.CreatedAt)
    updated, err2 := time.Parse(time.RFC3339, s.UpdatedAt)
    if err1 != nil || err2 != nil { return 0, false }
    return updated.Sub(created).Hours(), true
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events {
            if e == eventType || e == "*" { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list {
            if list[i].ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    for i := range list {
        if list[i].ID == id {
            m.subs[tenantID] = append(list[:i], list[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) iterDeliveryIDs() []string {
    ids := make([]string, 0, len(m.deliveries))
    for id := range m.deliveries { ids = append(ids, id) }
    sort.Strings(ids)
    return ids
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    m.dlq = append(m.dlq, d)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > 500 { limit = 100 }
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []map[string]any{}
    for i := start; i < len(ids) && len(out) < limit; i++ {
        d := m.deliveries[ids[i]]
        if d == nil { continue }
        if status != "" && d.Status != status { continue }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
        if d.LastError != "" { item["lastError"] = d.LastError }
        out = append(out, item)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1]["id"].(string) }
    return out, next, nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, d := range m.dlq {
        if d.TenantID != tenantID { continue }
        if eventType != "" && d.EventType != eventType { continue }
        out = append(out, map[string]any{"id": d.ID, "eventType": d.EventType, "attempts": d.Attempts, "lastError": d.LastError, "responseCode": d.ResponseCode})
    }
    return out, "", nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for i, d := range m.dlq {
        if d.ID != id || d.TenantID != tenantID { continue }
        d.Status = "pending"
        d.Attempts = 0
        d.NextAttemptAt = time.Now()
        m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
        return nil
    }
    return ErrNotFound
}
