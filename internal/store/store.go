package store

import (
    "context"
    "errors"
    "time"

    "tripmatch/internal/model"
)

// Store is the persistence interface used by the API server and the
// conversion workflow.
type Store interface {
    // Trip requests
    CreateTripRequests(ctx context.Context, tenantID string, reqs []model.TripRequestIn) (importID string, created, skipped int, err error)
    GetTripRequest(ctx context.Context, tenantID, id string) (*model.TripRequest, error)
    ListTripRequests(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.TripRequest, string, error)
    UpdateTripRequestStatus(ctx context.Context, tenantID, id, status, adminNotes string) error

    // Package catalog
    CreatePackages(ctx context.Context, tenantID string, pkgs []model.PackageIn) (created, skipped int, err error)
    GetPackage(ctx context.Context, tenantID, id string) (*model.Package, error)
    ListPackages(ctx context.Context, tenantID string) ([]model.Package, error)
    ListPackagesPage(ctx context.Context, tenantID, cursor string, limit int) ([]model.Package, string, error)

    // Conversion sessions
    CreateConversionSession(ctx context.Context, sess *model.ConversionSession) error
    GetConversionSession(ctx context.Context, tenantID, id string) (*model.ConversionSession, error)
    FindConversionSessionByRequest(ctx context.Context, tenantID, requestID string) (*model.ConversionSession, error)
    SaveConversionSession(ctx context.Context, sess *model.ConversionSession) error
    ListConversionSessions(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.ConversionSession, string, error)

    // Bookings
    CreateBooking(ctx context.Context, b *model.Booking) error
    GetBooking(ctx context.Context, tenantID, id string) (*model.Booking, error)

    // Matching run history
    SaveMatchingRun(ctx context.Context, tenantID string, res *model.MatchingSessionResult) error
    ListMatchingRuns(ctx context.Context, tenantID, requestID string) ([]model.MatchingSessionResult, error)

    // Aggregates
    ConversionAnalytics(ctx context.Context, tenantID string, since time.Time, adminID string) (*model.ConversionAnalytics, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    ListWebhookDLQ(ctx context.Context, tenantID, eventType, cursor string, limit int) ([]map[string]any, string, error)
    RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by SaveConversionSession when the
// session changed since the caller read it.
var ErrVersionConflict = errors.New("version conflict")

// WebhookDelivery is one queued outbound delivery.
type WebhookDelivery struct {
    ID             string
    TenantID       string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}
