package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "tripmatch/internal/conversion"
    "tripmatch/internal/match"
    "tripmatch/internal/model"
    "tripmatch/internal/store"
)

// RequestsHandler handles POST/GET /v1/requests
func (s *Server) RequestsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID string                `json:"tenantId"`
            Requests []model.TripRequestIn `json:"requests"`
        }
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        for i := range req.Requests {
            if err := validateTripRequest(&req.Requests[i]); err != nil {
                writeProblem(w, http.StatusBadRequest, "Invalid trip request", err.Error(), r.URL.Path)
                return
            }
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        imp, created, skipped, err := s.Store.CreateTripRequests(r.Context(), req.TenantID, req.Requests)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create requests failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"importId": imp, "created": created, "skipped": skipped})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListTripRequests(r.Context(), tenant, status, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List requests failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// RequestByIDHandler handles GET /v1/requests/{id}, PATCH /v1/requests/{id}/status
// and GET /v1/requests/{id}/matching-runs
func (s *Server) RequestByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/requests/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    _, tenant := s.withTenant(r)
    if len(parts) > 1 && parts[1] == "status" {
        if r.Method != http.MethodPatch { w.WriteHeader(http.StatusMethodNotAllowed); return }
        pr := s.getPrincipal(r)
        if !pr.canOperate() { writeProblem(w, 403, "Forbidden", "operator role required", r.URL.Path); return }
        var body struct {
            Status     string `json:"status"`
            AdminNotes string `json:"adminNotes"`
        }
        if err := decodeJSON(r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Status == "" { writeProblem(w, 400, "Missing status", "", r.URL.Path); return }
        if err := s.Store.UpdateTripRequestStatus(r.Context(), tenant, id, body.Status, body.AdminNotes); err != nil {
            if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Request not found", err.Error(), r.URL.Path); return }
            writeProblem(w, 500, "Update status failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, 200, map[string]bool{"ok": true})
        return
    }
    if len(parts) > 1 && parts[1] == "matching-runs" {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        runs, err := s.Store.ListMatchingRuns(r.Context(), tenant, id)
        if err != nil { writeProblem(w, 500, "List matching runs failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": runs})
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    req, err := s.Store.GetTripRequest(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Request not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, req)
}

// PackagesHandler handles POST/GET /v1/packages
func (s *Server) PackagesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        pr := s.getPrincipal(r)
        if !pr.canOperate() { writeProblem(w, 403, "Forbidden", "operator role required", r.URL.Path); return }
        var req struct {
            TenantID string           `json:"tenantId"`
            Packages []model.PackageIn `json:"packages"`
        }
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        for i := range req.Packages {
            if err := validatePackage(&req.Packages[i]); err != nil {
                writeProblem(w, http.StatusBadRequest, "Invalid package", err.Error(), r.URL.Path)
                return
            }
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        created, skipped, err := s.Store.CreatePackages(r.Context(), req.TenantID, req.Packages)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create packages failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"created": created, "skipped": skipped})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListPackagesPage(r.Context(), tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List packages failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// PackageByIDHandler handles GET /v1/packages/{id}
func (s *Server) PackageByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/packages/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/packages/")
    _, tenant := s.withTenant(r)
    pkg, err := s.Store.GetPackage(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Package not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, pkg)
}

// MatchingExecuteHandler handles POST /v1/matching/execute
func (s *Server) MatchingExecuteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.canOperate() { writeProblem(w, 403, "Forbidden", "operator role required", r.URL.Path); return }
    var req model.MatchingRequest
    if err := decodeJSON(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateMatchingRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid matching request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
    res, err := s.Engine.ExecuteMatching(r.Context(), req.TenantID, req)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Request not found", err.Error(), r.URL.Path); return }
        writeProblem(w, http.StatusInternalServerError, "Matching failed", err.Error(), r.URL.Path)
        return
    }
    _ = s.Store.SaveMatchingRun(r.Context(), req.TenantID, res)
    writeJSON(w, http.StatusOK, res)
}

// MatchingAlgorithmsHandler handles GET /v1/matching/algorithms
func (s *Server) MatchingAlgorithmsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "algorithms": match.Algorithms(),
        "defaults": map[string]any{
            "algorithm":  match.DefaultAlgorithm,
            "maxResults": match.DefaultMaxResults,
            "minScore":   match.DefaultMinScore,
        },
    })
}

// ConversionsHandler handles POST/GET /v1/conversions and GET /v1/conversions/analytics
func (s *Server) ConversionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path == "/v1/conversions/analytics" {
        s.conversionAnalytics(w, r)
        return
    }
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID       string `json:"tenantId"`
            RequestID      string `json:"requestId"`
            ConversionType string `json:"conversionType"`
        }
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.RequestID == "" { writeProblem(w, 400, "Missing requestId", "", r.URL.Path); return }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        pr := s.getPrincipal(r)
        res, err := s.Workflow.StartConversionProcess(r.Context(), req.TenantID, req.RequestID, req.ConversionType, conversion.Actor{UserID: pr.UserID, Role: pr.Role})
        if err != nil {
            s.writeWorkflowError(w, r, "Start conversion failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, res)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListConversionSessions(r.Context(), tenant, status, cursor, limit)
        if err != nil { writeProblem(w, 500, "List conversions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) conversionAnalytics(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !pr.canOperate() { writeProblem(w, 403, "Forbidden", "operator role required", r.URL.Path); return }
    sinceHours := 24 * 30
    if v := r.URL.Query().Get("sinceHours"); v != "" { fmt.Sscanf(v, "%d", &sinceHours) }
    since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
    partnerID := r.URL.Query().Get("partnerId")
    stats, err := s.Store.ConversionAnalytics(r.Context(), pr.Tenant, since, partnerID)
    if err != nil { writeProblem(w, 500, "Analytics failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, stats)
}

// ConversionByIDHandler handles GET /v1/conversions/{id} and the step
// endpoints /matching /pricing /select /convert plus /events/stream (SSE).
func (s *Server) ConversionByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/conversions/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    _, tenant := s.withTenant(r)
    pr := s.getPrincipal(r)
    actor := conversion.Actor{UserID: pr.UserID, Role: pr.Role}

    if len(parts) > 1 && parts[1] == "events" && len(parts) > 2 && parts[2] == "stream" {
        // SSE for conversion session events
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        if !pr.canOperate() {
            writeProblem(w, 403, "Forbidden", "not authorized for conversion events", r.URL.Path)
            return
        }
        if _, err := s.Store.GetConversionSession(r.Context(), tenant, id); err != nil {
            writeProblem(w, 404, "Conversion not found", err.Error(), r.URL.Path)
            return
        }
        flusher, ok := w.(http.Flusher)
        if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
        w.Header().Set("Content-Type", "text/event-stream")
        w.Header().Set("Cache-Control", "no-cache")
        w.Header().Set("Connection", "keep-alive")
        ch := s.Broker.Subscribe(id)
        defer s.Broker.Unsubscribe(id, ch)
        // initial heartbeat
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
        flusher.Flush()
        notify := r.Context().Done()
        for {
            select {
            case <-notify:
                return
            case evt, ok := <-ch:
                if !ok { return }
                b, _ := json.Marshal(evt.Data)
                fmt.Fprintf(w, "event: %s\n", evt.Type)
                fmt.Fprintf(w, "data: %s\n\n", string(b))
                flusher.Flush()
            case <-time.After(15 * time.Second):
                fmt.Fprintf(w, "event: heartbeat\n")
                fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
                flusher.Flush()
            }
        }
    }
    if len(parts) > 1 && parts[1] == "matching" {
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var body struct {
            Algorithm string              `json:"algorithm"`
            Filters   *model.MatchFilters `json:"filters"`
        }
        // body is optional
        if r.Body != nil { _ = json.NewDecoder(r.Body).Decode(&body) }
        if !validAlgorithm(body.Algorithm) { writeProblem(w, 400, "Invalid matching request", "invalid algorithm: "+body.Algorithm, r.URL.Path); return }
        if err := validateMatchFilters(body.Filters); err != nil { writeProblem(w, 400, "Invalid filters", err.Error(), r.URL.Path); return }
        var filters model.MatchFilters
        if body.Filters != nil { filters = *body.Filters }
        res, err := s.Workflow.ExecutePackageMatching(r.Context(), tenant, id, body.Algorithm, filters, actor)
        if err != nil {
            s.writeWorkflowError(w, r, "Matching step failed", err)
            return
        }
        writeJSON(w, http.StatusOK, res)
        return
    }
    if len(parts) > 1 && parts[1] == "pricing" {
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var body struct {
            Option   model.ConversionOption `json:"option"`
            Strategy string                 `json:"strategy"`
        }
        if err := decodeJSON(r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        res, err := s.Workflow.CalculateConversionPricing(r.Context(), tenant, id, body.Option, body.Strategy, actor)
        if err != nil {
            s.writeWorkflowError(w, r, "Pricing step failed", err)
            return
        }
        writeJSON(w, http.StatusOK, res)
        return
    }
    if len(parts) > 1 && parts[1] == "select" {
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var body struct {
            Option model.ConversionOption `json:"option"`
        }
        if err := decodeJSON(r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        res, err := s.Workflow.SelectConversionOption(r.Context(), tenant, id, body.Option, actor)
        if err != nil {
            s.writeWorkflowError(w, r, "Select step failed", err)
            return
        }
        writeJSON(w, http.StatusOK, res)
        return
    }
    if len(parts) > 1 && parts[1] == "convert" {
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var body struct {
            CustomerApproval bool   `json:"customerApproval"`
            PaymentMethod    string `json:"paymentMethod"`
        }
        if err := decodeJSON(r, &body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        res, err := s.Workflow.ExecuteConversionToBooking(r.Context(), tenant, id, body.CustomerApproval, body.PaymentMethod, actor)
        if err != nil {
            s.writeWorkflowError(w, r, "Conversion step failed", err)
            return
        }
        writeJSON(w, http.StatusOK, res)
        return
    }

    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    sess, err := s.Workflow.GetConversionStatus(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Conversion not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, sess)
}

// writeWorkflowError maps workflow errors onto problem responses.
func (s *Server) writeWorkflowError(w http.ResponseWriter, r *http.Request, title string, err error) {
    switch {
    case errors.Is(err, conversion.ErrUnauthorized):
        writeProblem(w, http.StatusForbidden, "Forbidden", err.Error(), r.URL.Path)
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
    case errors.Is(err, store.ErrVersionConflict):
        writeProblem(w, http.StatusConflict, "Conflict", err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
    }
}

// BookingByIDHandler handles GET /v1/bookings/{id}
func (s *Server) BookingByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/bookings/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/bookings/")
    _, tenant := s.withTenant(r)
    b, err := s.Store.GetBooking(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Booking not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, b)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
        var req model.SubscriptionRequest
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.URL == "" || len(req.Events) == 0 { writeProblem(w, 400, "Invalid subscription", "url and events required", r.URL.Path); return }
        if req.TenantID == "" { req.TenantID = p.Tenant }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// Admin: matching run metrics across the tenant
func (s *Server) MatchingMetricsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    requestID := r.URL.Query().Get("requestId")
    runs, err := s.Store.ListMatchingRuns(r.Context(), p.Tenant, requestID)
    if err != nil { writeProblem(w, 500, "List matching runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": runs})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsMaster() { writeProblem(w, 403, "Forbidden", "master required", r.URL.Path); return }
    if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        eventType := r.URL.Query().Get("eventType")
        items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, eventType, cursor, limit)
        if err != nil { writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
        return
    }
    if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
        id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
        if err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id); err != nil { writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 202, map[string]int{"accepted": 1})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}
