package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "tripmatch/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Ping reports database connectivity for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS style).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        sqlText, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(sqlText)); err != nil {
            return fmt.Errorf("migrate %s: %w", n, err)
        }
    }
    return nil
}

func (p *Postgres) CreateTripRequests(ctx context.Context, tenantID string, reqs []model.TripRequestIn) (string, int, int, error) {
    importID := fmt.Sprintf("imp_%d", time.Now().UnixNano())
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return "", 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    created, skipped := 0, 0
    for _, in := range reqs {
        if in.Budget <= 0 || in.DurationDays <= 0 || in.GroupSize < 1 { skipped++; continue }
        if in.ExternalRef != "" {
            var existsID string
            err = tx.QueryRowContext(ctx, `SELECT id::text FROM trip_requests WHERE tenant_id=$1 AND external_ref=$2`, tenantID, in.ExternalRef).Scan(&existsID)
            if err == nil { skipped++; continue }
            if !errors.Is(err, sql.ErrNoRows) { return "", 0, 0, err }
        }
        id := uuid.New()
        _, err = tx.ExecContext(ctx, `INSERT INTO trip_requests (id, tenant_id, external_ref, destination, budget, duration_days, group_size, budget_flexibility, flexible_dates, start_date, activities, accommodation_types, status) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
            id, tenantID, nullIfEmpty(in.ExternalRef), in.Destination, in.Budget, in.DurationDays, in.GroupSize,
            nullIfEmpty(in.BudgetFlexibility), in.FlexibleDates, nullIfEmpty(in.StartDate), toJSON(in.Activities), toJSON(in.AccommodationTypes), "pending")
        if err != nil { return "", 0, 0, err }
        created++
    }
    if err := tx.Commit(); err != nil { return "", 0, 0, err }
    return importID, created, skipped, nil
}

const tripRequestCols = `id::text, COALESCE(external_ref,''), destination, budget, duration_days, group_size, COALESCE(budget_flexibility,''), flexible_dates, COALESCE(start_date,''), activities, accommodation_types, status, COALESCE(admin_notes,''), to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`

func scanTripRequest(row interface{ Scan(...any) error }, tenantID string) (*model.TripRequest, error) {
    var r model.TripRequest
    var acts, accoms []byte
    err := row.Scan(&r.ID, &r.ExternalRef, &r.Destination, &r.Budget, &r.DurationDays, &r.GroupSize,
        &r.BudgetFlexibility, &r.FlexibleDates, &r.StartDate, &acts, &accoms, &r.Status, &r.AdminNotes, &r.CreatedAt)
    if err != nil { return nil, err }
    r.TenantID = tenantID
    _ = json.Unmarshal(acts, &r.Activities)
    _ = json.Unmarshal(accoms, &r.AccommodationTypes)
    return &r, nil
}

func (p *Postgres) GetTripRequest(ctx context.Context, tenantID, id string) (*model.TripRequest, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+tripRequestCols+` FROM trip_requests WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
    r, err := scanTripRequest(row, tenantID)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    return r, err
}

func (p *Postgres) ListTripRequests(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.TripRequest, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + tripRequestCols + ` FROM trip_requests WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(" AND status=$%d", len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(" AND id::text > $%d", len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.TripRequest{}
    for rows.Next() {
        r, err := scanTripRequest(rows, tenantID)
        if err != nil { return nil, "", err }
        out = append(out, *r)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) UpdateTripRequestStatus(ctx context.Context, tenantID, id, status, adminNotes string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE trip_requests SET status=$3, admin_notes=COALESCE(NULLIF($4,''), admin_notes) WHERE tenant_id=$1 AND id::text=$2`, tenantID, id, status, adminNotes)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) CreatePackages(ctx context.Context, tenantID string, pkgs []model.PackageIn) (int, int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    created, skipped := 0, 0
    for _, in := range pkgs {
        if in.BasePrice <= 0 || in.MaxGuests < 1 { skipped++; continue }
        if in.ExternalRef != "" {
            var existsID string
            err = tx.QueryRowContext(ctx, `SELECT id::text FROM packages WHERE tenant_id=$1 AND external_ref=$2`, tenantID, in.ExternalRef).Scan(&existsID)
            if err == nil { skipped++; continue }
            if !errors.Is(err, sql.ErrNoRows) { return 0, 0, err }
        }
        _, err = tx.ExecContext(ctx, `INSERT INTO packages (id, tenant_id, external_ref, name, category, base_price, duration_days, max_guests, description, highlights, is_featured, discount_percentage, accommodation_id) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
            uuid.New(), tenantID, nullIfEmpty(in.ExternalRef), in.Name, in.Category, in.BasePrice, in.DurationDays, in.MaxGuests,
            in.Description, toJSON(in.Highlights), in.IsFeatured, in.DiscountPercentage, nullIfEmpty(in.AccommodationID))
        if err != nil { return 0, 0, err }
        created++
    }
    if err := tx.Commit(); err != nil { return 0, 0, err }
    return created, skipped, nil
}

const packageCols = `id::text, COALESCE(external_ref,''), name, category, base_price, duration_days, max_guests, COALESCE(description,''), highlights, is_featured, discount_percentage, COALESCE(accommodation_id,'')`

func scanPackage(row interface{ Scan(...any) error }, tenantID string) (*model.Package, error) {
    var pk model.Package
    var hl []byte
    err := row.Scan(&pk.ID, &pk.ExternalRef, &pk.Name, &pk.Category, &pk.BasePrice, &pk.DurationDays, &pk.MaxGuests,
        &pk.Description, &hl, &pk.IsFeatured, &pk.DiscountPercentage, &pk.AccommodationID)
    if err != nil { return nil, err }
    pk.TenantID = tenantID
    _ = json.Unmarshal(hl, &pk.Highlights)
    return &pk, nil
}

func (p *Postgres) GetPackage(ctx context.Context, tenantID, id string) (*model.Package, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+packageCols+` FROM packages WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
    pk, err := scanPackage(row, tenantID)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    return pk, err
}

func (p *Postgres) ListPackages(ctx context.Context, tenantID string) ([]model.Package, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+packageCols+` FROM packages WHERE tenant_id=$1 ORDER BY id`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Package{}
    for rows.Next() {
        pk, err := scanPackage(rows, tenantID)
        if err != nil { return nil, err }
        out = append(out, *pk)
    }
    return out, rows.Err()
}

func (p *Postgres) ListPackagesPage(ctx context.Context, tenantID, cursor string, limit int) ([]model.Package, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+packageCols+` FROM packages WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+packageCols+` FROM packages WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Package{}
    for rows.Next() {
        pk, err := scanPackage(rows, tenantID)
        if err != nil { return nil, "", err }
        out = append(out, *pk)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

// Conversion sessions are stored as one jsonb document per session with
// the version held in its own column so the optimistic check stays in SQL.
func (p *Postgres) CreateConversionSession(ctx context.Context, sess *model.ConversionSession) error {
    if sess.ID == "" { sess.ID = uuid.New().String() }
    if sess.Version == 0 { sess.Version = 1 }
    now := time.Now().UTC().Format(time.RFC3339)
    sess.CreatedAt = now
    sess.UpdatedAt = now
    _, err := p.db.ExecContext(ctx, `INSERT INTO conversion_sessions (id, tenant_id, request_id, status, version, doc, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,now(),now())`,
        sess.ID, sess.TenantID, sess.RequestID, sess.Status, sess.Version, toJSON(sess))
    return err
}

func (p *Postgres) GetConversionSession(ctx context.Context, tenantID, id string) (*model.ConversionSession, error) {
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT doc FROM conversion_sessions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id).Scan(&doc)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    return decodeSession(doc)
}

func (p *Postgres) FindConversionSessionByRequest(ctx context.Context, tenantID, requestID string) (*model.ConversionSession, error) {
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT doc FROM conversion_sessions WHERE tenant_id=$1 AND request_id::text=$2 ORDER BY created_at LIMIT 1`, tenantID, requestID).Scan(&doc)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    return decodeSession(doc)
}

func (p *Postgres) SaveConversionSession(ctx context.Context, sess *model.ConversionSession) error {
    readVersion := sess.Version
    sess.Version++
    sess.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
    res, err := p.db.ExecContext(ctx, `UPDATE conversion_sessions SET status=$4, version=$5, doc=$6, updated_at=now() WHERE tenant_id=$1 AND id::text=$2 AND version=$3`,
        sess.TenantID, sess.ID, readVersion, sess.Status, sess.Version, toJSON(sess))
    if err != nil { return err }
    n, _ := res.RowsAffected()
    if n == 1 { return nil }
    // Distinguish a stale version from a missing session.
    var exists int
    err = p.db.QueryRowContext(ctx, `SELECT 1 FROM conversion_sessions WHERE tenant_id=$1 AND id::text=$2`, sess.TenantID, sess.ID).Scan(&exists)
    if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
    if err != nil { return err }
    return ErrVersionConflict
}

func (p *Postgres) ListConversionSessions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.ConversionSession, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT doc FROM conversion_sessions WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(" AND status=$%d", len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(" AND id::text > $%d", len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.ConversionSession{}
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return nil, "", err }
        s, err := decodeSession(doc)
        if err != nil { return nil, "", err }
        out = append(out, *s)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func decodeSession(doc []byte) (*model.ConversionSession, error) {
    var s model.ConversionSession
    if err := json.Unmarshal(doc, &s); err != nil { return nil, err }
    return &s, nil
}

func (p *Postgres) CreateBooking(ctx context.Context, b *model.Booking) error {
    if b.ID == "" { b.ID = uuid.New().String() }
    b.CreatedAt = time.Now().UTC().Format(time.RFC3339)
    _, err := p.db.ExecContext(ctx, `INSERT INTO bookings (id, tenant_id, session_id, request_id, package_id, type, payment_method, total_price, confirmation_code, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())`,
        b.ID, b.TenantID, b.SessionID, b.RequestID, nullIfEmpty(b.PackageID), b.Type, nullIfEmpty(b.PaymentMethod), b.TotalPrice, b.ConfirmationCode, b.Status)
    return err
}

func (p *Postgres) GetBooking(ctx context.Context, tenantID, id string) (*model.Booking, error) {
    var b model.Booking
    err := p.db.QueryRowContext(ctx, `SELECT id::text, session_id::text, request_id::text, COALESCE(package_id::text,''), type, COALESCE(payment_method,''), total_price, confirmation_code, status, to_char(created_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM bookings WHERE tenant_id=$1 AND id::text=$2`, tenantID, id).
        Scan(&b.ID, &b.SessionID, &b.RequestID, &b.PackageID, &b.Type, &b.PaymentMethod, &b.TotalPrice, &b.ConfirmationCode, &b.Status, &b.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    if err != nil { return nil, err }
    b.TenantID = tenantID
    return &b, nil
}

func (p *Postgres) SaveMatchingRun(ctx context.Context, tenantID string, res *model.MatchingSessionResult) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO matching_runs (id, tenant_id, request_id, algorithm, doc, created_at) VALUES ($1,$2,$3,$4,$5,now())`,
        uuid.New(), tenantID, res.RequestID, res.Algorithm, toJSON(res))
    return err
}

func (p *Postgres) ListMatchingRuns(ctx context.Context, tenantID, requestID string) ([]model.MatchingSessionResult, error) {
    q := `SELECT doc FROM matching_runs WHERE tenant_id=$1`
    args := []any{tenantID}
    if requestID != "" {
        args = append(args, requestID)
        q += " AND request_id::text=$2"
    }
    q += " ORDER BY created_at"
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.MatchingSessionResult{}
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return nil, err }
        var r model.MatchingSessionResult
        if err := json.Unmarshal(doc, &r); err != nil { return nil, err }
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) ConversionAnalytics(ctx context.Context, tenantID string, since time.Time, adminID string) (*model.ConversionAnalytics, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at))/3600.0), 0) FROM conversion_sessions WHERE tenant_id=$1 AND created_at >= $2 AND ($3 = '' OR doc->>'adminId' = $3) GROUP BY status`, tenantID, since, adminID)
    if err != nil { return nil, err }
    defer rows.Close()

    out := &model.ConversionAnalytics{ByStatus: map[string]int{}}
    var completedHours float64
    for rows.Next() {
        var status string
        var count int
        var avgHours float64
        if err := rows.Scan(&status, &count, &avgHours); err != nil { return nil, err }
        out.TotalSessions += count
        out.ByStatus[status] = count
        switch status {
        case model.StatusConversionComplete:
            out.Completed = count
            completedHours = avgHours
        case model.StatusConversionFailed:
            out.Failed = count
        case model.StatusCustomerRejected:
            out.Rejected = count
        }
    }
    if out.TotalSessions > 0 {
        out.ConversionRate = float64(out.Completed) / float64(out.TotalSessions)
    }
    out.AvgCompletionHours = completedHours
    return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
        s.ID, s.TenantID, s.URL, toJSON(s.Events), s.Secret)
    if err != nil { return model.Subscription{}, err }
    s.Secret = ""
    return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.Subscription
    for rows.Next() {
        var s model.Subscription
        var evs []byte
        if err := rows.Scan(&s.ID, &s.URL, &evs, &s.Secret); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(evs, &s.Events)
        for _, e := range s.Events {
            if e == eventType || e == "*" { out = append(out, s); break }
        }
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var evs []byte
        if err := rows.Scan(&s.ID, &s.URL, &evs); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(evs, &s.Events)
        out = append(out, s)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at) VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
        id, tenantID, subscriptionID, eventType, url, secret, payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now() WHERE id::text=$1`, id, responseCode, latencyMs)
        return err
    }
    next := time.Now().Add(1 * time.Minute)
    if nextAttemptAt != nil { next = *nextAttemptAt }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id::text=$1`, id, lastError, responseCode, latencyMs, next)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id::text=$1`, id, lastError, responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,'') FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(" AND status=$%d", len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(" AND id::text > $%d", len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, eventType, st, url, lastError string
        var attempts int
        if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastError); err != nil { return nil, "", err }
        item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
        if lastError != "" { item["lastError"] = lastError }
        out = append(out, item)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1]["id"].(string) }
    return out, next, rows.Err()
}

func (p *Postgres) ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, attempts, COALESCE(last_error,''), COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1 AND status='failed'`
    args := []any{tenantID}
    if eventType != "" {
        args = append(args, eventType)
        q += fmt.Sprintf(" AND event_type=$%d", len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(" AND id::text > $%d", len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, et, lastError string
        var attempts, code int
        if err := rows.Scan(&id, &et, &attempts, &lastError, &code); err != nil { return nil, "", err }
        out = append(out, map[string]any{"id": id, "eventType": et, "attempts": attempts, "lastError": lastError, "responseCode": code})
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1]["id"].(string) }
    return out, next, rows.Err()
}

func (p *Postgres) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=now() WHERE tenant_id=$1 AND id::text=$2 AND status='failed'`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}

func toJSON(v any) []byte {
    b, _ := json.Marshal(v)
    if b == nil { b = []byte("null") }
    return b
}
