package conversion

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"

    "tripmatch/internal/match"
    "tripmatch/internal/metrics"
    "tripmatch/internal/model"
    "tripmatch/internal/pricing"
    "tripmatch/internal/store"
    "tripmatch/internal/webhooks"
)

// ErrUnauthorized is returned when the caller's role may not drive the
// workflow step.
var ErrUnauthorized = errors.New("unauthorized")

// allowedRoles may start sessions and select options.
var allowedRoles = map[string]bool{"master": true, "partner": true, "employee": true}

// Notifier receives live session events for streaming consumers.
// Implementations must not block.
type Notifier interface {
    Notify(sessionID, event string, data map[string]any)
}

// Workflow drives a conversion session from intake analysis to booking.
type Workflow struct {
    Store  store.Store
    Engine *match.Engine
    Pub    *webhooks.Publisher
    Notif  Notifier
}

func NewWorkflow(s store.Store, eng *match.Engine, pub *webhooks.Publisher) *Workflow {
    return &Workflow{Store: s, Engine: eng, Pub: pub}
}

// Actor identifies the admin driving a workflow step.
type Actor struct {
    UserID string
    Role   string
}

// StartResult is the envelope returned by StartConversionProcess.
type StartResult struct {
    Success                 bool     `json:"success"`
    SessionID               string   `json:"sessionId,omitempty"`
    Status                  string   `json:"status,omitempty"`
    NextSteps               []string `json:"nextSteps,omitempty"`
    EstimatedCompletionTime string   `json:"estimatedCompletionTime,omitempty"`
    Message                 string   `json:"message"`
}

type MatchingStepResult struct {
    Success bool                       `json:"success"`
    Matches []model.PackageMatchResult `json:"matches"`
    Metrics model.PerformanceMetrics   `json:"metrics"`
    Message string                     `json:"message"`
}

type PricingStepResult struct {
    Success bool                 `json:"success"`
    Pricing *model.PricingResult `json:"pricing,omitempty"`
    Message string               `json:"message"`
}

type SelectResult struct {
    Success  bool   `json:"success"`
    NextStep string `json:"nextStep,omitempty"`
    Message  string `json:"message"`
}

type BookingResult struct {
    Success          bool   `json:"success"`
    BookingID        string `json:"bookingId,omitempty"`
    ConfirmationCode string `json:"confirmationCode,omitempty"`
    Message          string `json:"message"`
}

// StartConversionProcess creates a session for the request, runs the
// intake analysis, and for automatic sessions immediately runs matching.
// A second call for the same request returns the existing session.
func (w *Workflow) StartConversionProcess(ctx context.Context, tenantID, requestID, conversionType string, actor Actor) (*StartResult, error) {
    if !allowedRoles[actor.Role] { return nil, ErrUnauthorized }
    if conversionType == "" { conversionType = model.ConversionAutomatic }
    switch conversionType {
    case model.ConversionAutomatic, model.ConversionAssisted, model.ConversionManual:
    default:
        return nil, fmt.Errorf("invalid conversion type %q", conversionType)
    }

    if existing, err := w.Store.FindConversionSessionByRequest(ctx, tenantID, requestID); err == nil {
        return &StartResult{
            Success:   true,
            SessionID: existing.ID,
            Status:    existing.Status,
            NextSteps: nextSteps(existing.Status),
            Message:   "Sessão de conversão já existente para esta solicitação",
        }, nil
    } else if !errors.Is(err, store.ErrNotFound) {
        return nil, err
    }

    req, err := w.Store.GetTripRequest(ctx, tenantID, requestID)
    if err != nil { return nil, err }

    sess := &model.ConversionSession{
        ID:             uuid.New().String(),
        TenantID:       tenantID,
        RequestID:      req.ID,
        AdminID:        actor.UserID,
        ConversionType: conversionType,
        Status:         model.StatusAnalysisPending,
        Timeline: []model.TimelineEntry{{
            TS:          time.Now().UTC().Format(time.RFC3339),
            Event:       "conversion_started",
            Description: fmt.Sprintf("Processo de conversão iniciado (%s)", conversionType),
            UserID:      actor.UserID,
        }},
    }

    // Analysis is best effort: a failure leaves the session degraded at
    // analysis_pending with a null result instead of aborting.
    analysis, aerr := analyzeRequest(req)
    if aerr == nil {
        sess.AnalysisResult = analysis
        sess.Status = model.StatusAnalysisComplete
    }

    if err := w.Store.CreateConversionSession(ctx, sess); err != nil { return nil, err }
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()
    w.emit(ctx, tenantID, webhooks.EventConversionStarted, map[string]any{"sessionId": sess.ID, "requestId": req.ID, "conversionType": conversionType})
    w.notify(sess.ID, "conversion_started", map[string]any{"status": sess.Status})

    message := "Processo de conversão iniciado"
    if aerr != nil { message = "Processo iniciado, mas a análise da solicitação falhou - revisar manualmente" }

    if conversionType == model.ConversionAutomatic && aerr == nil {
        if err := w.runMatching(ctx, sess, analysis.RecommendedAlgorithm, model.MatchFilters{}, actor); err == nil {
            message = "Processo iniciado e matching executado automaticamente"
        }
    }

    res := &StartResult{
        Success:   true,
        SessionID: sess.ID,
        Status:    sess.Status,
        NextSteps: nextSteps(sess.Status),
        Message:   message,
    }
    if sess.AnalysisResult != nil {
        eta := time.Now().AddDate(0, 0, sess.AnalysisResult.EstimatedCompletionDays)
        res.EstimatedCompletionTime = eta.UTC().Format(time.RFC3339)
    }
    return res, nil
}

// GetConversionStatus resolves a session by its id, falling back to a
// lookup by request id.
func (w *Workflow) GetConversionStatus(ctx context.Context, tenantID, id string) (*model.ConversionSession, error) {
    sess, err := w.Store.GetConversionSession(ctx, tenantID, id)
    if errors.Is(err, store.ErrNotFound) {
        return w.Store.FindConversionSessionByRequest(ctx, tenantID, id)
    }
    return sess, err
}

// ExecutePackageMatching re-runs matching for the session's request,
// optionally narrowed by a price window.
func (w *Workflow) ExecutePackageMatching(ctx context.Context, tenantID, sessionID, algorithm string, filters model.MatchFilters, actor Actor) (*MatchingStepResult, error) {
    sess, err := w.Store.GetConversionSession(ctx, tenantID, sessionID)
    if err != nil { return nil, err }

    if err := w.runMatching(ctx, sess, algorithm, filters, actor); err != nil {
        return &MatchingStepResult{Success: false, Matches: []model.PackageMatchResult{}, Message: "Falha ao executar matching: " + err.Error()}, nil
    }

    mr := sess.MatchingResult
    message := fmt.Sprintf("%d pacote(s) compatível(is) encontrado(s)", len(mr.Matches))
    if len(mr.Matches) == 0 { message = "Nenhum pacote compatível encontrado" }
    return &MatchingStepResult{Success: true, Matches: mr.Matches, Metrics: mr.PerformanceMetrics, Message: message}, nil
}

func (w *Workflow) runMatching(ctx context.Context, sess *model.ConversionSession, algorithm string, filters model.MatchFilters, actor Actor) error {
    if algorithm == "" {
        algorithm = match.DefaultAlgorithm
        if sess.AnalysisResult != nil && sess.AnalysisResult.RecommendedAlgorithm != "" {
            algorithm = sess.AnalysisResult.RecommendedAlgorithm
        }
    }

    sess.Status = model.StatusMatchingInProgress
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    started := time.Now()
    result, err := w.Engine.ExecuteMatching(ctx, sess.TenantID, model.MatchingRequest{
        RequestID: sess.RequestID,
        Algorithm: algorithm,
        MinScore:  filters.MinScore,
    })
    if err != nil {
        // Matching failure keeps the session at its pre-matching state.
        sess.Status = model.StatusAnalysisComplete
        return err
    }
    metrics.MatchingRuns.WithLabelValues(algorithm).Inc()
    metrics.MatchingDuration.WithLabelValues(algorithm).Observe(float64(time.Since(started).Milliseconds()))

    if filters.PriceMin > 0 || filters.PriceMax > 0 {
        if err := w.filterByPrice(ctx, sess.TenantID, result, filters); err != nil { return err }
    }
    metrics.MatchesFound.WithLabelValues(algorithm).Observe(float64(len(result.Matches)))

    sess.MatchingResult = result
    sess.Status = model.StatusMatchesFound
    if len(result.Matches) == 0 { sess.Status = model.StatusCustomPackageRequired }
    sess.Timeline = append(sess.Timeline, model.TimelineEntry{
        TS:          time.Now().UTC().Format(time.RFC3339),
        Event:       "matching_complete",
        Description: fmt.Sprintf("Matching executado (%s): %d resultado(s)", algorithm, len(result.Matches)),
        UserID:      actor.UserID,
    })
    if err := w.Store.SaveConversionSession(ctx, sess); err != nil { return err }
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()
    _ = w.Store.SaveMatchingRun(ctx, sess.TenantID, result)

    w.emit(ctx, sess.TenantID, webhooks.EventMatchingCompleted, map[string]any{"sessionId": sess.ID, "requestId": sess.RequestID, "algorithm": algorithm, "matches": len(result.Matches)})
    w.notify(sess.ID, "matching_complete", map[string]any{"status": sess.Status, "matches": len(result.Matches)})
    return nil
}

func (w *Workflow) filterByPrice(ctx context.Context, tenantID string, result *model.MatchingSessionResult, filters model.MatchFilters) error {
    pkgs, err := w.Store.ListPackages(ctx, tenantID)
    if err != nil { return err }
    prices := make(map[string]float64, len(pkgs))
    for _, p := range pkgs { prices[p.ID] = p.BasePrice }

    kept := result.Matches[:0:0]
    for _, m := range result.Matches {
        price, ok := prices[m.PackageID]
        if !ok { continue }
        if filters.PriceMin > 0 && price < filters.PriceMin { continue }
        if filters.PriceMax > 0 && price > filters.PriceMax { continue }
        kept = append(kept, m)
    }
    result.Matches = kept
    result.PerformanceMetrics.MatchesFound = len(kept)
    return nil
}

// CalculateConversionPricing prices the given option for the session's
// request, dispatching on the option type.
func (w *Workflow) CalculateConversionPricing(ctx context.Context, tenantID, sessionID string, option model.ConversionOption, strategy string, actor Actor) (*PricingStepResult, error) {
    if strategy == "" { strategy = pricing.StrategyStandard }
    sess, err := w.Store.GetConversionSession(ctx, tenantID, sessionID)
    if err != nil { return nil, err }
    req, err := w.Store.GetTripRequest(ctx, tenantID, sess.RequestID)
    if err != nil { return nil, err }

    var result *model.PricingResult
    switch option.Type {
    case model.OptionExistingPackage:
        pkg, err := w.Store.GetPackage(ctx, tenantID, option.PackageID)
        if err != nil { return nil, err }
        result, err = pricing.ForPackage(req, pkg, strategy)
        if err != nil { return &PricingStepResult{Success: false, Message: err.Error()}, nil }
    case model.OptionCustomPackage:
        result, err = pricing.ForComponents(req, option.Components, strategy)
        if err != nil { return &PricingStepResult{Success: false, Message: err.Error()}, nil }
    case model.OptionModifiedPackage:
        pkg, err := w.Store.GetPackage(ctx, tenantID, option.PackageID)
        if err != nil { return nil, err }
        result, err = pricing.ForModifiedPackage(req, pkg, option.Components, strategy)
        if err != nil { return &PricingStepResult{Success: false, Message: err.Error()}, nil }
    default:
        return &PricingStepResult{Success: false, Message: fmt.Sprintf("Tipo de opção inválido: %q", option.Type)}, nil
    }

    sess.PricingResult = result
    sess.Status = model.StatusPricingCalculated
    sess.Timeline = append(sess.Timeline, model.TimelineEntry{
        TS:          time.Now().UTC().Format(time.RFC3339),
        Event:       "pricing_calculated",
        Description: fmt.Sprintf("Preço calculado (%s): %.2f %s", strategy, result.TotalPrice, result.Currency),
        UserID:      actor.UserID,
    })
    if err := w.Store.SaveConversionSession(ctx, sess); err != nil { return nil, err }
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    w.emit(ctx, tenantID, webhooks.EventPricingCalculated, map[string]any{"sessionId": sess.ID, "totalPrice": result.TotalPrice, "strategy": strategy})
    w.notify(sess.ID, "pricing_calculated", map[string]any{"status": sess.Status, "totalPrice": result.TotalPrice})
    return &PricingStepResult{Success: true, Pricing: result, Message: "Preço calculado com sucesso"}, nil
}

// SelectConversionOption pins the option the admin picked and moves the
// underlying request to approved, awaiting the customer's decision.
func (w *Workflow) SelectConversionOption(ctx context.Context, tenantID, sessionID string, option model.ConversionOption, actor Actor) (*SelectResult, error) {
    if !allowedRoles[actor.Role] { return nil, ErrUnauthorized }
    sess, err := w.Store.GetConversionSession(ctx, tenantID, sessionID)
    if err != nil { return nil, err }

    if option.Type == model.OptionExistingPackage || option.Type == model.OptionModifiedPackage {
        if _, err := w.Store.GetPackage(ctx, tenantID, option.PackageID); err != nil { return nil, err }
    }

    sess.SelectedOption = &option
    sess.Status = model.StatusCustomerApprovalPending
    sess.Timeline = append(sess.Timeline, model.TimelineEntry{
        TS:          time.Now().UTC().Format(time.RFC3339),
        Event:       "option_selected",
        Description: fmt.Sprintf("Opção selecionada: %s", option.Type),
        UserID:      actor.UserID,
    })
    if err := w.Store.SaveConversionSession(ctx, sess); err != nil { return nil, err }
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    if err := w.Store.UpdateTripRequestStatus(ctx, tenantID, sess.RequestID, "approved", ""); err != nil { return nil, err }

    w.emit(ctx, tenantID, webhooks.EventOptionSelected, map[string]any{"sessionId": sess.ID, "optionType": option.Type})
    w.notify(sess.ID, "option_selected", map[string]any{"status": sess.Status})
    return &SelectResult{Success: true, NextStep: "customer_approval", Message: "Opção registrada - aguardando aprovação do cliente"}, nil
}

// ExecuteConversionToBooking closes the session. A customer rejection is
// an explicit cancellation: no booking is created and the trip request
// is left untouched.
func (w *Workflow) ExecuteConversionToBooking(ctx context.Context, tenantID, sessionID string, customerApproval bool, paymentMethod string, actor Actor) (*BookingResult, error) {
    sess, err := w.Store.GetConversionSession(ctx, tenantID, sessionID)
    if err != nil { return nil, err }
    if sess.SelectedOption == nil {
        return &BookingResult{Success: false, Message: "Nenhuma opção de conversão selecionada"}, nil
    }

    if !customerApproval {
        sess.Status = model.StatusCustomerRejected
        sess.Timeline = append(sess.Timeline, model.TimelineEntry{
            TS:          time.Now().UTC().Format(time.RFC3339),
            Event:       "customer_rejected",
            Description: "Cliente não aprovou a conversão",
            UserID:      actor.UserID,
        })
        if err := w.Store.SaveConversionSession(ctx, sess); err != nil { return nil, err }
        metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()
        w.emit(ctx, tenantID, webhooks.EventConversionFailed, map[string]any{"sessionId": sess.ID, "reason": "customer_rejected"})
        w.notify(sess.ID, "customer_rejected", map[string]any{"status": sess.Status})
        return &BookingResult{Success: false, Message: "Conversão cancelada - cliente não aprovou."}, nil
    }

    sess.Status = model.StatusCustomerApproved
    sess.Timeline = append(sess.Timeline, model.TimelineEntry{
        TS:          time.Now().UTC().Format(time.RFC3339),
        Event:       "customer_approved",
        Description: "Cliente aprovou a conversão",
        UserID:      actor.UserID,
    })
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    sess.Status = model.StatusConversionInProgress
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    booking, err := w.createBooking(ctx, sess, paymentMethod)
    if err != nil {
        sess.Status = model.StatusConversionFailed
        sess.Timeline = append(sess.Timeline, model.TimelineEntry{
            TS:          time.Now().UTC().Format(time.RFC3339),
            Event:       "conversion_failed",
            Description: err.Error(),
            UserID:      actor.UserID,
        })
        _ = w.Store.SaveConversionSession(ctx, sess)
        metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()
        w.emit(ctx, tenantID, webhooks.EventConversionFailed, map[string]any{"sessionId": sess.ID, "reason": err.Error()})
        return &BookingResult{Success: false, Message: "Falha ao criar reserva: " + err.Error()}, nil
    }

    sess.Status = model.StatusConversionComplete
    sess.Timeline = append(sess.Timeline, model.TimelineEntry{
        TS:          time.Now().UTC().Format(time.RFC3339),
        Event:       "conversion_complete",
        Description: fmt.Sprintf("Reserva %s criada", booking.ConfirmationCode),
        UserID:      actor.UserID,
    })
    if err := w.Store.SaveConversionSession(ctx, sess); err != nil { return nil, err }
    metrics.ConversionTransitions.WithLabelValues(sess.Status).Inc()

    if err := w.Store.UpdateTripRequestStatus(ctx, tenantID, sess.RequestID, "completed", ""); err != nil { return nil, err }

    w.emit(ctx, tenantID, webhooks.EventConversionComplete, map[string]any{"sessionId": sess.ID, "bookingId": booking.ID, "confirmationCode": booking.ConfirmationCode})
    w.notify(sess.ID, "conversion_complete", map[string]any{"status": sess.Status, "bookingId": booking.ID})
    return &BookingResult{Success: true, BookingID: booking.ID, ConfirmationCode: booking.ConfirmationCode, Message: "Conversão concluída com sucesso"}, nil
}

func (w *Workflow) createBooking(ctx context.Context, sess *model.ConversionSession, paymentMethod string) (*model.Booking, error) {
    opt := sess.SelectedOption
    b := &model.Booking{
        TenantID:         sess.TenantID,
        SessionID:        sess.ID,
        RequestID:        sess.RequestID,
        Type:             opt.Type,
        PaymentMethod:    paymentMethod,
        ConfirmationCode: confirmationCode(),
        Status:           "confirmed",
    }

    switch opt.Type {
    case model.OptionExistingPackage, model.OptionModifiedPackage:
        pkg, err := w.Store.GetPackage(ctx, sess.TenantID, opt.PackageID)
        if err != nil { return nil, err }
        b.PackageID = pkg.ID
        b.TotalPrice = pkg.BasePrice
    case model.OptionCustomPackage:
        for _, c := range opt.Components {
            b.TotalPrice += c.UnitPrice * float64(c.Quantity)
        }
    default:
        return nil, fmt.Errorf("invalid selected option type %q", opt.Type)
    }
    // Prefer the priced total when pricing ran for this session.
    if sess.PricingResult != nil { b.TotalPrice = sess.PricingResult.TotalPrice }

    if err := w.Store.CreateBooking(ctx, b); err != nil { return nil, err }
    return b, nil
}

func confirmationCode() string {
    raw := strings.ReplaceAll(uuid.New().String(), "-", "")
    return "TM-" + strings.ToUpper(raw[:8])
}

func nextSteps(status string) []string {
    switch status {
    case model.StatusAnalysisPending:
        return []string{"Revisar dados da solicitação", "Reexecutar análise"}
    case model.StatusAnalysisComplete:
        return []string{"Executar matching de pacotes"}
    case model.StatusMatchesFound:
        return []string{"Revisar pacotes compatíveis", "Calcular preço", "Selecionar opção"}
    case model.StatusCustomPackageRequired:
        return []string{"Montar pacote personalizado", "Calcular preço"}
    case model.StatusPricingCalculated:
        return []string{"Selecionar opção de conversão"}
    case model.StatusCustomerApprovalPending:
        return []string{"Aguardar aprovação do cliente", "Executar conversão"}
    case model.StatusConversionComplete:
        return []string{}
    }
    return []string{"Verificar status da sessão"}
}

func (w *Workflow) emit(ctx context.Context, tenantID, eventType string, data map[string]any) {
    if w.Pub != nil { w.Pub.Emit(ctx, tenantID, eventType, data) }
}

func (w *Workflow) notify(sessionID, event string, data map[string]any) {
    if w.Notif != nil { w.Notif.Notify(sessionID, event, data) }
}
