package match

import (
    "math"

    "tripmatch/internal/model"
)

// Weights maps each factor to its share of the combined score.
type Weights struct {
    Destination float64
    Budget      float64
    Duration    float64
    Activity    float64
    GroupSize   float64
    Date        float64
}

// UniformWeights is the baseline similarity weighting.
func UniformWeights() Weights {
    return Weights{Destination: 0.25, Budget: 0.20, Duration: 0.15, Activity: 0.15, GroupSize: 0.10, Date: 0.05}
}

// BudgetWeights emphasizes price fit over everything else.
func BudgetWeights() Weights {
    return Weights{Destination: 0.20, Budget: 0.35, Duration: 0.15, Activity: 0.10, GroupSize: 0.05, Date: 0.05}
}

// PreferenceWeights derives per-request weights from the uniform base.
// The adjusted weights intentionally do not sum to 1; downstream
// scoring depends on that, so they are not renormalized here.
func PreferenceWeights(req *model.TripRequest) Weights {
    w := UniformWeights()
    switch req.BudgetFlexibility {
    case model.BudgetRigid:
        w.Budget += 0.10
        w.Activity -= 0.05
    case model.BudgetVeryFlexible:
        w.Budget -= 0.10
        w.Activity += 0.05
    }
    if req.FlexibleDates {
        w.Date -= 0.03
        w.Destination += 0.03
    }
    if req.GroupSize > 6 {
        w.GroupSize += 0.05
        w.Activity -= 0.05
    }
    return w
}

// Combine folds factor scores into one rounded integer score.
func (w Weights) Combine(f model.MatchFactors) int {
    sum := f.DestinationMatch*w.Destination +
        f.BudgetMatch*w.Budget +
        f.DurationMatch*w.Duration +
        f.ActivityMatch*w.Activity +
        f.GroupSizeMatch*w.GroupSize +
        f.DateAvailability*w.Date
    return int(math.Round(clamp100(sum)))
}
