package match

import (
    "context"
    "fmt"
    "math"
    "time"

    "tripmatch/internal/model"
)

// Catalog is the slice of the store the matching engine needs.
type Catalog interface {
    GetTripRequest(ctx context.Context, tenantID, id string) (*model.TripRequest, error)
    ListPackages(ctx context.Context, tenantID string) ([]model.Package, error)
}

const (
    DefaultAlgorithm  = AlgoHybrid
    DefaultMaxResults = 10
    DefaultMinScore   = scoreThreshold
)

// Engine runs full matching sessions against a tenant catalog.
type Engine struct {
    catalog Catalog
}

func NewEngine(catalog Catalog) *Engine {
    return &Engine{catalog: catalog}
}

// ExecuteMatching loads the request and catalog, runs the selected
// algorithm, applies minScore/maxResults, and attaches run metrics and
// operator recommendations.
func (e *Engine) ExecuteMatching(ctx context.Context, tenantID string, mr model.MatchingRequest) (*model.MatchingSessionResult, error) {
    algorithm := mr.Algorithm
    if algorithm == "" { algorithm = DefaultAlgorithm }
    maxResults := mr.MaxResults
    if maxResults <= 0 { maxResults = DefaultMaxResults }
    minScore := mr.MinScore
    if minScore <= 0 { minScore = DefaultMinScore }

    req, err := e.catalog.GetTripRequest(ctx, tenantID, mr.RequestID)
    if err != nil { return nil, err }
    packages, err := e.catalog.ListPackages(ctx, tenantID)
    if err != nil { return nil, fmt.Errorf("load packages: %w", err) }

    start := time.Now()
    matches, err := Run(algorithm, req, packages)
    if err != nil { return nil, err }

    filtered := matches[:0:0]
    for _, m := range matches {
        if m.MatchScore >= minScore { filtered = append(filtered, m) }
    }
    if len(filtered) > maxResults { filtered = filtered[:maxResults] }

    res := &model.MatchingSessionResult{
        RequestID:             req.ID,
        Algorithm:             algorithm,
        ExecutedAt:            time.Now().UTC().Format(time.RFC3339),
        TotalPackagesAnalyzed: len(packages),
        Matches:               filtered,
        PerformanceMetrics:    buildMetrics(filtered, time.Since(start)),
        Recommendations:       buildRecommendations(filtered),
    }
    return res, nil
}

func buildMetrics(matches []model.PackageMatchResult, elapsed time.Duration) model.PerformanceMetrics {
    m := model.PerformanceMetrics{
        ProcessingTimeMs: elapsed.Milliseconds(),
        MatchesFound:     len(matches),
    }
    if len(matches) == 0 { return m }
    var sum float64
    for _, r := range matches {
        sum += float64(r.MatchScore)
        if r.ConfidenceLevel == model.ConfidenceHigh { m.HighConfidenceMatches++ }
    }
    m.AverageMatchScore = math.Round(sum/float64(len(matches))*100) / 100
    return m
}

// buildRecommendations produces operator-facing guidance in pt-BR, the
// locale of the consuming back office.
func buildRecommendations(matches []model.PackageMatchResult) []string {
    if len(matches) == 0 {
        return []string{
            "Nenhum pacote compatível encontrado",
            "Considere criar um pacote personalizado ou revisar os critérios da solicitação",
        }
    }

    high := 0
    var sum float64
    for _, m := range matches {
        sum += float64(m.MatchScore)
        if m.ConfidenceLevel == model.ConfidenceHigh { high++ }
    }
    avg := sum / float64(len(matches))

    recs := []string{fmt.Sprintf("%d pacote(s) compatível(is) encontrado(s), %d com alta confiança", len(matches), high)}
    switch {
    case avg > 80:
        recs = append(recs, "Compatibilidade excelente - conversão automática recomendada")
    case avg > 60:
        recs = append(recs, "Boa compatibilidade - revisar ajustes sugeridos antes de converter")
    default:
        recs = append(recs, "Compatibilidade moderada - personalização do pacote recomendada")
    }

    best := matches[0]
    if best.MatchFactors.BudgetMatch < 70 {
        recs = append(recs, "Orçamento do melhor pacote está distante do solicitado - avaliar ajuste de preço")
    }
    if best.MatchFactors.DurationMatch < 70 {
        recs = append(recs, "Duração do melhor pacote difere da solicitada - avaliar ajuste de itinerário")
    }
    return recs
}
