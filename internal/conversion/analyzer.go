package conversion

import (
    "fmt"

    "tripmatch/internal/match"
    "tripmatch/internal/model"
)

// analyzeRequest sizes up a request before matching: how bespoke it is,
// which algorithm fits it best, and how long the conversion is likely to
// take. Invalid request data is an error; the caller treats that as a
// degraded (analysis-less) session rather than a hard failure.
func analyzeRequest(req *model.TripRequest) (*model.AnalysisResult, error) {
    if req.Budget <= 0 || req.DurationDays <= 0 || req.GroupSize < 1 {
        return nil, fmt.Errorf("request %s has invalid budget/duration/group data", req.ID)
    }

    points := 0
    var notes []string
    if len(req.Activities) > 3 {
        points += 2
        notes = append(notes, "Muitas atividades solicitadas - pacote provavelmente exigirá personalização")
    }
    if len(req.AccommodationTypes) > 2 { points++ }
    if req.GroupSize > 8 {
        points += 2
        notes = append(notes, "Grupo grande - verificar disponibilidade de capacidade")
    }
    if req.BudgetFlexibility == model.BudgetRigid {
        points++
        notes = append(notes, "Orçamento rígido - priorizar compatibilidade de preço")
    }
    if req.DurationDays > 14 { points++ }

    res := &model.AnalysisResult{Notes: notes}
    switch {
    case points >= 4:
        res.Complexity = "complex"
        res.Score = 40
        res.EstimatedCompletionDays = 5
    case points >= 2:
        res.Complexity = "moderate"
        res.Score = 70
        res.EstimatedCompletionDays = 2
    default:
        res.Complexity = "simple"
        res.Score = 90
        res.EstimatedCompletionDays = 1
    }

    switch {
    case req.BudgetFlexibility == model.BudgetRigid:
        res.RecommendedAlgorithm = match.AlgoBudget
    case len(req.Activities) > 3:
        res.RecommendedAlgorithm = match.AlgoPreference
    default:
        res.RecommendedAlgorithm = match.AlgoHybrid
    }
    return res, nil
}
