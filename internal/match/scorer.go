package match

import (
    "math"
    "strings"

    "tripmatch/internal/model"
)

// ScoreFactors computes the six compatibility sub-scores for one
// request/package pair. Each factor lands in [0,100]. Pure function,
// no allocations beyond tokenization.
func ScoreFactors(req *model.TripRequest, pkg *model.Package) model.MatchFactors {
    return model.MatchFactors{
        DestinationMatch: scoreDestination(req, pkg),
        BudgetMatch:      scoreBudget(req, pkg),
        DurationMatch:    scoreDuration(req, pkg),
        ActivityMatch:    scoreActivities(req, pkg),
        GroupSizeMatch:   scoreGroupSize(req, pkg),
        DateAvailability: scoreDateAvailability(req),
    }
}

func scoreDestination(req *model.TripRequest, pkg *model.Package) float64 {
    want := strings.ToLower(strings.TrimSpace(req.Destination))
    if want == "" { return 0 }
    for _, have := range []string{strings.ToLower(pkg.Category), strings.ToLower(pkg.Name)} {
        if have == "" { continue }
        if strings.Contains(have, want) || strings.Contains(want, have) { return 100 }
    }
    // Partial token overlap against category and name combined.
    reqTokens := strings.Fields(want)
    if len(reqTokens) == 0 { return 0 }
    hay := strings.ToLower(pkg.Category + " " + pkg.Name)
    matched := 0
    for _, tok := range reqTokens {
        if strings.Contains(hay, tok) { matched++ }
    }
    return float64(matched) / float64(len(reqTokens)) * 80
}

func scoreBudget(req *model.TripRequest, pkg *model.Package) float64 {
    if req.Budget <= 0 { return 0 }
    d := math.Abs(pkg.BasePrice-req.Budget) / req.Budget
    switch {
    case d <= 0.05:
        return 100
    case d <= 0.10:
        return 90
    case d <= 0.20:
        return 75
    case d <= 0.30:
        return 60
    case d <= 0.50:
        return 40
    }
    return math.Max(0, 30-d*50)
}

func scoreDuration(req *model.TripRequest, pkg *model.Package) float64 {
    diff := pkg.DurationDays - req.DurationDays
    if diff < 0 { diff = -diff }
    switch {
    case diff == 0:
        return 100
    case diff <= 1:
        return 85
    case diff <= 2:
        return 70
    case diff <= 3:
        return 55
    }
    return math.Max(0, float64(40-diff*10))
}

func scoreActivities(req *model.TripRequest, pkg *model.Package) float64 {
    if len(req.Activities) == 0 { return 50 }
    hay := strings.ToLower(pkg.Description + " " + strings.Join(pkg.Highlights, " "))
    found := 0
    for _, a := range req.Activities {
        if a == "" { continue }
        if strings.Contains(hay, strings.ToLower(a)) { found++ }
    }
    return float64(found) / float64(len(req.Activities)) * 100
}

func scoreGroupSize(req *model.TripRequest, pkg *model.Package) float64 {
    if pkg.MaxGuests >= req.GroupSize { return 100 }
    return math.Max(0, float64(50-(req.GroupSize-pkg.MaxGuests)*20))
}

func scoreDateAvailability(req *model.TripRequest) float64 {
    // Proxy only; real inventory lives outside this service.
    if req.StartDate != "" { return 80 }
    return 60
}

func clamp100(v float64) float64 {
    if v < 0 { return 0 }
    if v > 100 { return 100 }
    return v
}
