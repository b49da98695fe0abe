package model

// Core domain types for the matching and conversion engine.

// Budget flexibility levels accepted on a trip request.
const (
    BudgetRigid        = "rigid"
    BudgetFlexible     = "flexible"
    BudgetVeryFlexible = "very_flexible"
)

// TripRequestIn is the intake payload for a customer trip request.
type TripRequestIn struct {
    ExternalRef        string   `json:"externalRef,omitempty"`
    Destination        string   `json:"destination"`
    Budget             float64  `json:"budget"`
    DurationDays       int      `json:"durationDays"`
    GroupSize          int      `json:"groupSize"`
    BudgetFlexibility  string   `json:"budgetFlexibility,omitempty"`
    FlexibleDates      bool     `json:"flexibleDates,omitempty"`
    StartDate          string   `json:"startDate,omitempty"`
    Activities         []string `json:"activities,omitempty"`
    AccommodationTypes []string `json:"accommodationTypes,omitempty"`
}

// TripRequest is the stored request read model.
type TripRequest struct {
    ID                 string   `json:"id"`
    TenantID           string   `json:"tenantId"`
    ExternalRef        string   `json:"externalRef,omitempty"`
    Destination        string   `json:"destination"`
    Budget             float64  `json:"budget"`
    DurationDays       int      `json:"durationDays"`
    GroupSize          int      `json:"groupSize"`
    BudgetFlexibility  string   `json:"budgetFlexibility,omitempty"`
    FlexibleDates      bool     `json:"flexibleDates,omitempty"`
    StartDate          string   `json:"startDate,omitempty"`
    Activities         []string `json:"activities,omitempty"`
    AccommodationTypes []string `json:"accommodationTypes,omitempty"`
    Status             string   `json:"status"`
    AdminNotes         string   `json:"adminNotes,omitempty"`
    CreatedAt          string   `json:"createdAt,omitempty"`
}

// PackageIn is the catalog upsert payload.
type PackageIn struct {
    ExternalRef        string   `json:"externalRef,omitempty"`
    Name               string   `json:"name"`
    Category           string   `json:"category"`
    BasePrice          float64  `json:"basePrice"`
    DurationDays       int      `json:"durationDays"`
    MaxGuests          int      `json:"maxGuests"`
    Description        string   `json:"description,omitempty"`
    Highlights         []string `json:"highlights,omitempty"`
    IsFeatured         bool     `json:"isFeatured,omitempty"`
    DiscountPercentage float64  `json:"discountPercentage,omitempty"`
    AccommodationID    string   `json:"accommodationId,omitempty"`
}

// Package is a catalog entry scored against trip requests.
type Package struct {
    ID                 string   `json:"id"`
    TenantID           string   `json:"tenantId"`
    ExternalRef        string   `json:"externalRef,omitempty"`
    Name               string   `json:"name"`
    Category           string   `json:"category"`
    BasePrice          float64  `json:"basePrice"`
    DurationDays       int      `json:"durationDays"`
    MaxGuests          int      `json:"maxGuests"`
    Description        string   `json:"description,omitempty"`
    Highlights         []string `json:"highlights,omitempty"`
    IsFeatured         bool     `json:"isFeatured,omitempty"`
    DiscountPercentage float64  `json:"discountPercentage,omitempty"`
    AccommodationID    string   `json:"accommodationId,omitempty"`
}

// MatchFactors holds the six per-factor compatibility scores, each in [0,100].
type MatchFactors struct {
    DestinationMatch float64 `json:"destinationMatch"`
    BudgetMatch      float64 `json:"budgetMatch"`
    DurationMatch    float64 `json:"durationMatch"`
    ActivityMatch    float64 `json:"activityMatch"`
    GroupSizeMatch   float64 `json:"groupSizeMatch"`
    DateAvailability float64 `json:"dateAvailability"`
}

// Confidence buckets derived from the combined match score.
const (
    ConfidenceHigh   = "high"
    ConfidenceMedium = "medium"
    ConfidenceLow    = "low"
)

// AdjustmentSuggestion proposes a package modification that would lift a weak factor.
type AdjustmentSuggestion struct {
    Type        string  `json:"type"`
    Description string  `json:"description"`
    Impact      int     `json:"impact"`
    Cost        float64 `json:"cost"`
}

// PackageMatchResult is one scored package for one request. Immutable once built.
type PackageMatchResult struct {
    PackageID             string                 `json:"packageId"`
    MatchScore            int                    `json:"matchScore"`
    ConfidenceLevel       string                 `json:"confidenceLevel"`
    MatchFactors          MatchFactors           `json:"matchFactors"`
    AdjustmentSuggestions []AdjustmentSuggestion `json:"adjustmentSuggestions,omitempty"`
    ConversionProbability int                    `json:"conversionProbability"`
}

// PerformanceMetrics summarizes one matching run.
type PerformanceMetrics struct {
    ProcessingTimeMs      int64   `json:"processingTimeMs"`
    MatchesFound          int     `json:"matchesFound"`
    AverageMatchScore     float64 `json:"averageMatchScore"`
    HighConfidenceMatches int     `json:"highConfidenceMatches"`
}

// MatchingSessionResult is produced once per ExecuteMatching invocation.
type MatchingSessionResult struct {
    RequestID             string               `json:"requestId"`
    Algorithm             string               `json:"algorithm"`
    ExecutedAt            string               `json:"executedAt"`
    TotalPackagesAnalyzed int                  `json:"totalPackagesAnalyzed"`
    Matches               []PackageMatchResult `json:"matches"`
    PerformanceMetrics    PerformanceMetrics   `json:"performanceMetrics"`
    Recommendations       []string             `json:"recommendations"`
}

// MatchingRequest is the API payload for POST /v1/matching/execute.
type MatchingRequest struct {
    TenantID   string `json:"tenantId,omitempty"`
    RequestID  string `json:"requestId"`
    Algorithm  string `json:"algorithm,omitempty"`
    MaxResults int    `json:"maxResults,omitempty"`
    MinScore   int    `json:"minScore,omitempty"`
}

// MatchFilters narrows a conversion-scoped matching run.
type MatchFilters struct {
    PriceMin float64 `json:"priceMin,omitempty"`
    PriceMax float64 `json:"priceMax,omitempty"`
    MinScore int     `json:"minScore,omitempty"`
}

// Conversion workflow statuses.
const (
    StatusAnalysisPending         = "analysis_pending"
    StatusAnalysisComplete        = "analysis_complete"
    StatusMatchingInProgress      = "matching_in_progress"
    StatusMatchesFound            = "matches_found"
    StatusCustomPackageRequired   = "custom_package_required"
    StatusPricingCalculated       = "pricing_calculated"
    StatusReadyForConversion      = "ready_for_conversion"
    StatusCustomerApprovalPending = "customer_approval_pending"
    StatusCustomerApproved        = "customer_approved"
    StatusCustomerRejected        = "customer_rejected"
    StatusConversionInProgress    = "conversion_in_progress"
    StatusConversionComplete      = "conversion_complete"
    StatusConversionFailed        = "conversion_failed"
)

// Conversion types accepted when starting a session.
const (
    ConversionAutomatic = "automatic"
    ConversionAssisted  = "assisted"
    ConversionManual    = "manual"
)

// Conversion option types.
const (
    OptionExistingPackage = "existing_package"
    OptionCustomPackage   = "custom_package"
    OptionModifiedPackage = "modified_package"
)

// TimelineEntry is one audit record on a conversion session.
type TimelineEntry struct {
    TS          string `json:"ts"`
    Event       string `json:"event"`
    Description string `json:"description,omitempty"`
    UserID      string `json:"userId,omitempty"`
}

// AnalysisResult is the best-effort pre-matching assessment of a request.
type AnalysisResult struct {
    Complexity              string   `json:"complexity"`
    Score                   int      `json:"score"`
    RecommendedAlgorithm    string   `json:"recommendedAlgorithm"`
    EstimatedCompletionDays int      `json:"estimatedCompletionDays"`
    Notes                   []string `json:"notes,omitempty"`
}

// ConversionOption is the priced path chosen for a session.
type ConversionOption struct {
    Type       string             `json:"type"`
    PackageID  string             `json:"packageId,omitempty"`
    Components []PricingComponent `json:"components,omitempty"`
    Notes      string             `json:"notes,omitempty"`
}

// PricingComponent is one line item of a custom or modified package.
type PricingComponent struct {
    Type        string  `json:"type"`
    Description string  `json:"description,omitempty"`
    UnitPrice   float64 `json:"unitPrice"`
    Quantity    int     `json:"quantity"`
}

// PricingAdjustment is one applied modifier over the base price.
type PricingAdjustment struct {
    Type        string  `json:"type"`
    Description string  `json:"description,omitempty"`
    Amount      float64 `json:"amount"`
}

// PricingResult is the output of the dynamic pricing engine.
type PricingResult struct {
    BasePrice   float64             `json:"basePrice"`
    Adjustments []PricingAdjustment `json:"adjustments,omitempty"`
    TotalPrice  float64             `json:"totalPrice"`
    PerPerson   float64             `json:"perPerson"`
    Currency    string              `json:"currency"`
    Strategy    string              `json:"strategy"`
}

// ConversionSession is the single mutable record driving the workflow.
// Version increments on every save; writers pass the version they read.
type ConversionSession struct {
    ID             string                 `json:"id"`
    TenantID       string                 `json:"tenantId"`
    RequestID      string                 `json:"requestId"`
    AdminID        string                 `json:"adminId"`
    ConversionType string                 `json:"conversionType"`
    Status         string                 `json:"status"`
    Version        int                    `json:"version"`
    AnalysisResult *AnalysisResult        `json:"analysisResult"`
    MatchingResult *MatchingSessionResult `json:"matchingResult,omitempty"`
    PricingResult  *PricingResult         `json:"pricingResult,omitempty"`
    SelectedOption *ConversionOption      `json:"selectedOption,omitempty"`
    Timeline       []TimelineEntry        `json:"timeline"`
    CreatedAt      string                 `json:"createdAt,omitempty"`
    UpdatedAt      string                 `json:"updatedAt,omitempty"`
}

// Booking is the terminal artifact of a completed conversion.
type Booking struct {
    ID               string  `json:"id"`
    TenantID         string  `json:"tenantId"`
    SessionID        string  `json:"sessionId"`
    RequestID        string  `json:"requestId"`
    PackageID        string  `json:"packageId,omitempty"`
    Type             string  `json:"type"`
    PaymentMethod    string  `json:"paymentMethod,omitempty"`
    TotalPrice       float64 `json:"totalPrice"`
    ConfirmationCode string  `json:"confirmationCode"`
    Status           string  `json:"status"`
    CreatedAt        string  `json:"createdAt,omitempty"`
}

// ConversionAnalytics aggregates session outcomes for a tenant window.
type ConversionAnalytics struct {
    TotalSessions      int            `json:"totalSessions"`
    ByStatus           map[string]int `json:"byStatus"`
    Completed          int            `json:"completed"`
    Failed             int            `json:"failed"`
    Rejected           int            `json:"rejected"`
    ConversionRate     float64        `json:"conversionRate"`
    AvgCompletionHours float64        `json:"avgCompletionHours"`
}

// SubscriptionRequest registers a webhook endpoint for conversion events.
type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
