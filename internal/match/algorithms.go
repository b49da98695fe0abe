package match

import (
    "fmt"
    "math"
    "sort"

    "tripmatch/internal/model"
)

// Algorithm identifiers accepted by ExecuteMatching.
const (
    AlgoSimilarity = "similarity_score"
    AlgoPreference = "preference_weighted"
    AlgoBudget     = "budget_optimized"
    AlgoClustering = "ml_clustering"
    AlgoHybrid     = "hybrid"
)

const scoreThreshold = 40

// Algorithms lists the identifiers Run accepts, in dispatch order.
func Algorithms() []string {
    return []string{AlgoSimilarity, AlgoPreference, AlgoBudget, AlgoClustering, AlgoHybrid}
}

// ensemble weights for the hybrid combination; a package absent from a
// sub-algorithm's top slice simply contributes nothing for that weight.
const (
    hybridSimilarityWeight = 0.40
    hybridPreferenceWeight = 0.35
    hybridBudgetWeight     = 0.25
    hybridSubListCap       = 20
    budgetPruneCap         = 50
)

// Run dispatches to the named algorithm. Unknown names are an error so
// typos fail loudly instead of silently falling back.
func Run(algorithm string, req *model.TripRequest, packages []model.Package) ([]model.PackageMatchResult, error) {
    switch algorithm {
    case AlgoSimilarity:
        return weightedMatch(req, packages, UniformWeights()), nil
    case AlgoPreference:
        return weightedMatch(req, packages, PreferenceWeights(req)), nil
    case AlgoBudget:
        return budgetOptimized(req, packages), nil
    case AlgoClustering:
        return clusteringMatch(req, packages), nil
    case AlgoHybrid:
        return hybridMatch(req, packages), nil
    }
    return nil, fmt.Errorf("unknown matching algorithm %q", algorithm)
}

// weightedMatch scores every package with the given weights and keeps
// those at or above the threshold, sorted by descending score.
func weightedMatch(req *model.TripRequest, packages []model.Package, w Weights) []model.PackageMatchResult {
    out := make([]model.PackageMatchResult, 0, len(packages))
    for i := range packages {
        pkg := &packages[i]
        factors := ScoreFactors(req, pkg)
        score := w.Combine(factors)
        if score < scoreThreshold { continue }
        out = append(out, buildResult(req, pkg, factors, score))
    }
    sortByScore(out)
    return out
}

// budgetOptimized prunes to the 50 packages closest to the requested
// budget before scoring; the rest of the catalog is never evaluated.
func budgetOptimized(req *model.TripRequest, packages []model.Package) []model.PackageMatchResult {
    pruned := make([]model.Package, len(packages))
    copy(pruned, packages)
    sort.SliceStable(pruned, func(i, j int) bool {
        return math.Abs(pruned[i].BasePrice-req.Budget) < math.Abs(pruned[j].BasePrice-req.Budget)
    })
    if len(pruned) > budgetPruneCap { pruned = pruned[:budgetPruneCap] }
    return weightedMatch(req, pruned, BudgetWeights())
}

// clusteringMatch ranks packages by euclidean distance between
// normalized 7-dimensional feature vectors.
func clusteringMatch(req *model.TripRequest, packages []model.Package) []model.PackageMatchResult {
    rv := requestVector(req)
    out := make([]model.PackageMatchResult, 0, len(packages))
    for i := range packages {
        pkg := &packages[i]
        dist := euclidean(rv, packageVector(pkg))
        score := int(math.Round(math.Max(0, 100-dist*10)))
        if score < scoreThreshold { continue }
        factors := ScoreFactors(req, pkg)
        out = append(out, buildResult(req, pkg, factors, score))
    }
    sortByScore(out)
    return out
}

func requestVector(req *model.TripRequest) [7]float64 {
    flex := 0.0
    switch req.BudgetFlexibility {
    case model.BudgetVeryFlexible:
        flex = 1
    case model.BudgetFlexible:
        flex = 0.5
    }
    dates := 0.0
    if req.FlexibleDates { dates = 1 }
    return [7]float64{
        req.Budget / 10000,
        float64(req.DurationDays) / 30,
        float64(req.GroupSize) / 20,
        float64(len(req.Activities)) / 10,
        float64(len(req.AccommodationTypes)) / 5,
        dates,
        flex,
    }
}

func packageVector(pkg *model.Package) [7]float64 {
    hasAccom := 0.0
    if pkg.AccommodationID != "" { hasAccom = 1 }
    featured := 0.0
    if pkg.IsFeatured { featured = 1 }
    return [7]float64{
        pkg.BasePrice / 10000,
        float64(pkg.DurationDays) / 30,
        float64(pkg.MaxGuests) / 20,
        float64(len(pkg.Highlights)) / 10,
        hasAccom,
        featured,
        pkg.DiscountPercentage / 100,
    }
}

func euclidean(a, b [7]float64) float64 {
    var sum float64
    for i := range a {
        d := a[i] - b[i]
        sum += d * d
    }
    return math.Sqrt(sum)
}

// hybridMatch combines three sub-algorithms as a single fold over their
// top slices. Weighted contributions are summed per package id; missing
// contributions stay missing, so a package seen by only one sub-list
// keeps only that one weighted share.
func hybridMatch(req *model.TripRequest, packages []model.Package) []model.PackageMatchResult {
    parts := []struct {
        results []model.PackageMatchResult
        weight  float64
    }{
        {top(weightedMatch(req, packages, UniformWeights()), hybridSubListCap), hybridSimilarityWeight},
        {top(weightedMatch(req, packages, PreferenceWeights(req)), hybridSubListCap), hybridPreferenceWeight},
        {top(budgetOptimized(req, packages), hybridSubListCap), hybridBudgetWeight},
    }

    combined := map[string]float64{}
    sample := map[string]model.PackageMatchResult{}
    order := []string{}
    for _, p := range parts {
        for _, r := range p.results {
            if _, seen := combined[r.PackageID]; !seen {
                order = append(order, r.PackageID)
                sample[r.PackageID] = r
            }
            combined[r.PackageID] += float64(r.MatchScore) * p.weight
        }
    }

    out := make([]model.PackageMatchResult, 0, len(order))
    for _, id := range order {
        score := int(math.Round(combined[id]))
        if score < scoreThreshold { continue }
        r := sample[id]
        r.MatchScore = score
        r.ConfidenceLevel = ConfidenceLevel(score)
        r.ConversionProbability = EstimateConversionProbability(score, r.MatchFactors)
        out = append(out, r)
    }
    sortByScore(out)
    return out
}

func buildResult(req *model.TripRequest, pkg *model.Package, factors model.MatchFactors, score int) model.PackageMatchResult {
    return model.PackageMatchResult{
        PackageID:             pkg.ID,
        MatchScore:            score,
        ConfidenceLevel:       ConfidenceLevel(score),
        MatchFactors:          factors,
        AdjustmentSuggestions: SuggestAdjustments(req, pkg, factors),
        ConversionProbability: EstimateConversionProbability(score, factors),
    }
}

func sortByScore(rs []model.PackageMatchResult) {
    sort.SliceStable(rs, func(i, j int) bool { return rs[i].MatchScore > rs[j].MatchScore })
}

func top(rs []model.PackageMatchResult, n int) []model.PackageMatchResult {
    if len(rs) > n { return rs[:n] }
    return rs
}
