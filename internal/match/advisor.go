package match

import (
    "fmt"
    "math"
    "sort"

    "tripmatch/internal/model"
)

// ConfidenceLevel buckets a combined score. Callers only pass scores
// that already cleared the match threshold.
func ConfidenceLevel(score int) string {
    switch {
    case score >= 80:
        return model.ConfidenceHigh
    case score >= 60:
        return model.ConfidenceMedium
    }
    return model.ConfidenceLow
}

// EstimateConversionProbability projects how likely a match is to turn
// into a booking, biased toward strong budget and duration fit.
func EstimateConversionProbability(score int, f model.MatchFactors) int {
    p := float64(score) * 0.8
    if f.BudgetMatch > 80 { p += 10 }
    if f.DurationMatch == 100 { p += 5 }
    if f.ActivityMatch > 70 { p += 8 }
    if p > 100 { p = 100 }
    if p < 0 { p = 0 }
    return int(math.Round(p))
}

// SuggestAdjustments proposes package modifications that would lift the
// weakest factors, ordered by estimated score impact.
func SuggestAdjustments(req *model.TripRequest, pkg *model.Package, f model.MatchFactors) []model.AdjustmentSuggestion {
    var out []model.AdjustmentSuggestion

    if f.BudgetMatch < 70 && pkg.BasePrice > req.Budget {
        diff := pkg.BasePrice - req.Budget
        out = append(out, model.AdjustmentSuggestion{
            Type:        "price_adjustment",
            Description: fmt.Sprintf("Reduzir preço em R$ %.2f para caber no orçamento", diff),
            Impact:      30,
            Cost:        -diff,
        })
    }

    if f.DurationMatch < 70 {
        days := pkg.DurationDays - req.DurationDays
        if days < 0 {
            shortfall := -days
            out = append(out, model.AdjustmentSuggestion{
                Type:        "duration_extension",
                Description: fmt.Sprintf("Estender o pacote em %d dia(s)", shortfall),
                Impact:      25,
                Cost:        200 * float64(shortfall),
            })
        } else {
            out = append(out, model.AdjustmentSuggestion{
                Type:        "duration_extension",
                Description: fmt.Sprintf("Reduzir o pacote em %d dia(s)", days),
                Impact:      25,
                Cost:        0,
            })
        }
    }

    if f.GroupSizeMatch < 70 && pkg.MaxGuests < req.GroupSize {
        shortfall := req.GroupSize - pkg.MaxGuests
        out = append(out, model.AdjustmentSuggestion{
            Type:        "group_size_adjustment",
            Description: fmt.Sprintf("Ampliar capacidade para mais %d pessoa(s)", shortfall),
            Impact:      20,
            Cost:        100 * float64(shortfall),
        })
    }

    if f.ActivityMatch < 60 {
        out = append(out, model.AdjustmentSuggestion{
            Type:        "activity_modification",
            Description: "Incluir atividades solicitadas pelo cliente",
            Impact:      15,
            Cost:        300,
        })
    }

    sort.SliceStable(out, func(i, j int) bool { return out[i].Impact > out[j].Impact })
    return out
}
