package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body []byte) *httptest.ResponseRecorder {
    t.Helper()
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "master")
    h(rr, req)
    return rr
}

func getPath(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
    t.Helper()
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, path, nil)
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "master")
    h(rr, req)
    return rr
}

// seedCatalog imports one request and one compatible package, returning the request id.
func seedCatalog(t *testing.T, s *Server) string {
    t.Helper()
    rr := postJSON(t, s.PackagesHandler, "/v1/packages", []byte(`{"packages":[{"name":"Noronha Essencial","category":"Fernando de Noronha","basePrice":2000,"durationDays":4,"maxGuests":4,"description":"mergulho e trilhas"}]}`))
    if rr.Code != http.StatusAccepted { t.Fatalf("packages create: %d %s", rr.Code, rr.Body.String()) }
    rr = postJSON(t, s.RequestsHandler, "/v1/requests", []byte(`{"requests":[{"destination":"Fernando de Noronha","budget":2000,"durationDays":4,"groupSize":2,"activities":["mergulho"]}]}`))
    if rr.Code != http.StatusAccepted { t.Fatalf("requests create: %d %s", rr.Code, rr.Body.String()) }
    rr = getPath(t, s.RequestsHandler, "/v1/requests?limit=5")
    if rr.Code != 200 { t.Fatalf("requests list: %d", rr.Code) }
    var lst struct{ Items []struct{ ID string `json:"id"` } `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &lst); err != nil { t.Fatalf("decode list: %v", err) }
    if len(lst.Items) == 0 { t.Fatal("no requests returned") }
    return lst.Items[0].ID
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestRequestsCreateListGet(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := getPath(t, s.RequestByIDHandler, "/v1/requests/"+id)
    if rr.Code != 200 { t.Fatalf("request get: %d", rr.Code) }
    var req struct{ Destination string `json:"destination"`; Status string `json:"status"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &req); err != nil { t.Fatalf("decode: %v", err) }
    if req.Destination != "Fernando de Noronha" { t.Fatalf("destination: %q", req.Destination) }
    if req.Status != "pending" { t.Fatalf("status: %q", req.Status) }
}

func TestRequestsRejectInvalidPayload(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.RequestsHandler, "/v1/requests", []byte(`{"requests":[{"destination":"","budget":100,"durationDays":3,"groupSize":1}]}`))
    if rr.Code != http.StatusBadRequest { t.Fatalf("expected 400, got %d", rr.Code) }
    rr = postJSON(t, s.RequestsHandler, "/v1/requests", []byte(`{"requests":[{"destination":"Natal","budget":-1,"durationDays":3,"groupSize":1}]}`))
    if rr.Code != http.StatusBadRequest { t.Fatalf("expected 400, got %d", rr.Code) }
}

func TestRequestStatusUpdate(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPatch, "/v1/requests/"+id+"/status", bytes.NewReader([]byte(`{"status":"analyzing","adminNotes":"em análise"}`)))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "master")
    s.RequestByIDHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("status update: %d %s", rr.Code, rr.Body.String()) }

    rr = getPath(t, s.RequestByIDHandler, "/v1/requests/"+id)
    var got struct{ Status string `json:"status"`; AdminNotes string `json:"adminNotes"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &got)
    if got.Status != "analyzing" || got.AdminNotes != "em análise" { t.Fatalf("unexpected request state: %+v", got) }
}

func TestMatchingExecute(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := postJSON(t, s.MatchingExecuteHandler, "/v1/matching/execute", []byte(`{"requestId":"`+id+`","algorithm":"hybrid"}`))
    if rr.Code != 200 { t.Fatalf("matching: %d %s", rr.Code, rr.Body.String()) }
    var res struct {
        Matches []struct{ PackageID string `json:"packageId"`; MatchScore int `json:"matchScore"` } `json:"matches"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode: %v", err) }
    if len(res.Matches) == 0 { t.Fatal("expected at least one match") }
    if res.Matches[0].MatchScore < 40 { t.Fatalf("match below threshold: %d", res.Matches[0].MatchScore) }

    // run history recorded
    rr = getPath(t, s.RequestByIDHandler, "/v1/requests/"+id+"/matching-runs")
    if rr.Code != 200 { t.Fatalf("matching runs: %d", rr.Code) }
    var runs struct{ Items []json.RawMessage `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &runs)
    if len(runs.Items) != 1 { t.Fatalf("expected 1 run, got %d", len(runs.Items)) }
}

func TestMatchingAlgorithmsList(t *testing.T) {
    s := newTestServer(t)
    rr := getPath(t, s.MatchingAlgorithmsHandler, "/v1/matching/algorithms")
    if rr.Code != 200 { t.Fatalf("algorithms: %d", rr.Code) }
    var res struct {
        Algorithms []string `json:"algorithms"`
        Defaults   struct{ Algorithm string `json:"algorithm"` } `json:"defaults"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil { t.Fatalf("decode: %v", err) }
    if len(res.Algorithms) != 5 { t.Fatalf("expected 5 algorithms, got %v", res.Algorithms) }
    if res.Defaults.Algorithm != "hybrid" { t.Fatalf("default algorithm: %q", res.Defaults.Algorithm) }
}

func TestMatchingExecuteRejectsBadAlgorithm(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.MatchingExecuteHandler, "/v1/matching/execute", []byte(`{"requestId":"rq1","algorithm":"quantum"}`))
    if rr.Code != http.StatusBadRequest { t.Fatalf("expected 400, got %d", rr.Code) }
}

func TestMatchingExecuteUnknownRequest(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.MatchingExecuteHandler, "/v1/matching/execute", []byte(`{"requestId":"missing"}`))
    if rr.Code != http.StatusNotFound { t.Fatalf("expected 404, got %d", rr.Code) }
}

func TestConversionFlowThroughHandlers(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)

    // Subscription so workflow events enqueue deliveries
    rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", []byte(`{"url":"https://example.invalid/hook","events":["conversion.started","conversion.completed"],"secret":"shh"}`))
    if rr.Code != http.StatusCreated { t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String()) }

    // Start automatic conversion; matching runs inline
    rr = postJSON(t, s.ConversionsHandler, "/v1/conversions", []byte(`{"requestId":"`+id+`"}`))
    if rr.Code != http.StatusCreated { t.Fatalf("start: %d %s", rr.Code, rr.Body.String()) }
    var start struct {
        SessionID string `json:"sessionId"`
        Status    string `json:"status"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &start); err != nil { t.Fatalf("decode start: %v", err) }
    if start.SessionID == "" { t.Fatal("missing sessionId") }
    if start.Status != "matches_found" { t.Fatalf("status: %q", start.Status) }

    // Session readable by id
    rr = getPath(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID)
    if rr.Code != 200 { t.Fatalf("get session: %d", rr.Code) }
    var sess struct {
        Status         string `json:"status"`
        MatchingResult *struct {
            Matches []struct{ PackageID string `json:"packageId"` } `json:"matches"`
        } `json:"matchingResult"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &sess); err != nil { t.Fatalf("decode session: %v", err) }
    if sess.MatchingResult == nil || len(sess.MatchingResult.Matches) == 0 { t.Fatal("expected matches on session") }
    pkgID := sess.MatchingResult.Matches[0].PackageID

    // Pricing
    rr = postJSON(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID+"/pricing", []byte(`{"option":{"type":"existing_package","packageId":"`+pkgID+`"},"strategy":"standard"}`))
    if rr.Code != 200 { t.Fatalf("pricing: %d %s", rr.Code, rr.Body.String()) }
    var pricing struct {
        Success bool `json:"success"`
        Pricing *struct{ TotalPrice float64 `json:"totalPrice"` } `json:"pricing"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &pricing)
    if !pricing.Success || pricing.Pricing == nil { t.Fatalf("pricing failed: %s", rr.Body.String()) }
    if pricing.Pricing.TotalPrice != 4000 { t.Fatalf("total: %v", pricing.Pricing.TotalPrice) }

    // Select
    rr = postJSON(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID+"/select", []byte(`{"option":{"type":"existing_package","packageId":"`+pkgID+`"}}`))
    if rr.Code != 200 { t.Fatalf("select: %d %s", rr.Code, rr.Body.String()) }

    // Convert with approval
    rr = postJSON(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID+"/convert", []byte(`{"customerApproval":true,"paymentMethod":"pix"}`))
    if rr.Code != 200 { t.Fatalf("convert: %d %s", rr.Code, rr.Body.String()) }
    var booking struct {
        Success   bool   `json:"success"`
        BookingID string `json:"bookingId"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &booking)
    if !booking.Success || booking.BookingID == "" { t.Fatalf("booking failed: %s", rr.Body.String()) }

    // Booking readable
    rr = getPath(t, s.BookingByIDHandler, "/v1/bookings/"+booking.BookingID)
    if rr.Code != 200 { t.Fatalf("get booking: %d", rr.Code) }

    // Deliveries enqueued for subscribed events
    rr = getPath(t, s.WebhookDeliveriesHandler, "/v1/admin/webhook-deliveries?limit=10")
    if rr.Code != 200 { t.Fatalf("deliveries: %d", rr.Code) }
    var dres struct{ Items []map[string]any `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil { t.Fatalf("decode deliveries: %v", err) }
    if len(dres.Items) < 2 { t.Fatalf("expected deliveries for started and completed, got %d", len(dres.Items)) }

    // Analytics counts the completed session
    rr = getPath(t, s.ConversionsHandler, "/v1/conversions/analytics")
    if rr.Code != 200 { t.Fatalf("analytics: %d", rr.Code) }
    var stats struct{ TotalSessions, Completed int }
    _ = json.Unmarshal(rr.Body.Bytes(), &stats)
    if stats.TotalSessions != 1 || stats.Completed != 1 { t.Fatalf("analytics: %+v", stats) }
}

func TestConversionStartForbiddenForCustomer(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/conversions", bytes.NewReader([]byte(`{"requestId":"`+id+`"}`)))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "customer")
    s.ConversionsHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("expected 403, got %d", rr.Code) }
}

func TestConversionMatchingStepWithFilters(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := postJSON(t, s.ConversionsHandler, "/v1/conversions", []byte(`{"requestId":"`+id+`","conversionType":"assisted"}`))
    if rr.Code != http.StatusCreated { t.Fatalf("start: %d", rr.Code) }
    var start struct{ SessionID string `json:"sessionId"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &start)

    // Price window excludes the only package
    rr = postJSON(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID+"/matching", []byte(`{"filters":{"priceMin":5000,"priceMax":9000}}`))
    if rr.Code != 200 { t.Fatalf("matching step: %d %s", rr.Code, rr.Body.String()) }
    var res struct{ Matches []json.RawMessage `json:"matches"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if len(res.Matches) != 0 { t.Fatalf("expected no matches, got %d", len(res.Matches)) }

    rr = getPath(t, s.ConversionByIDHandler, "/v1/conversions/"+start.SessionID)
    var sess struct{ Status string `json:"status"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &sess)
    if sess.Status != "custom_package_required" { t.Fatalf("status: %q", sess.Status) }
}

func TestSubscriptionLifecycle(t *testing.T) {
    s := newTestServer(t)
    rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", []byte(`{"url":"https://example.invalid/hook","events":["*"],"secret":"shh"}`))
    if rr.Code != http.StatusCreated { t.Fatalf("create: %d", rr.Code) }
    var sub struct{ ID string `json:"id"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &sub)

    rr = getPath(t, s.SubscriptionsHandler, "/v1/subscriptions")
    if rr.Code != 200 { t.Fatalf("list: %d", rr.Code) }

    rr = httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "master")
    s.SubscriptionByIDHandler(rr, req)
    if rr.Code != 204 { t.Fatalf("delete: %d", rr.Code) }
}

func TestSubscriptionsRequireMaster(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":"https://x","events":["*"]}`)))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "employee")
    s.SubscriptionsHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("expected 403, got %d", rr.Code) }
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}

func TestConversionEventsSSE(t *testing.T) {
    s := newTestServer(t)
    id := seedCatalog(t, s)
    rr := postJSON(t, s.ConversionsHandler, "/v1/conversions", []byte(`{"requestId":"`+id+`","conversionType":"assisted"}`))
    if rr.Code != http.StatusCreated { t.Fatalf("start: %d", rr.Code) }
    var start struct{ SessionID string `json:"sessionId"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &start); err != nil { t.Fatalf("decode start: %v", err) }
    sid := start.SessionID

    // Prepare SSE request with cancelable context
    sseReq := httptest.NewRequest(http.MethodGet, "/v1/conversions/"+sid+"/events/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)
    sseReq.Header.Set("X-Tenant-Id", "t_test")
    sseReq.Header.Set("X-Role", "master")

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.ConversionByIDHandler(rec, sseReq)
        close(done)
    }()

    // Give handler time to subscribe and send heartbeat
    time.Sleep(50 * time.Millisecond)
    // Running the matching step publishes matching.completed to the broker
    rr = postJSON(t, s.ConversionByIDHandler, "/v1/conversions/"+sid+"/matching", []byte(`{}`))
    if rr.Code != 200 { t.Fatalf("matching step: %d", rr.Code) }

    // Wait up to 500ms for the event to appear in buffer
    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("event: matching_complete")) {
            break
        }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: matching_complete")) {
        t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
    }
    // Ensure handler exits on context cancel
    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}
