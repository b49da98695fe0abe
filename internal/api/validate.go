package api

import (
	"fmt"
	"tripmatch/internal/match"
	"tripmatch/internal/model"
)

func validAlgorithm(a string) bool {
	switch a {
	case "", match.AlgoSimilarity, match.AlgoPreference, match.AlgoBudget, match.AlgoClustering, match.AlgoHybrid:
		return true
	}
	return false
}

func validateMatchingRequest(req *model.MatchingRequest) error {
	if req.RequestID == "" {
		return fmt.Errorf("requestId is required")
	}
	if !validAlgorithm(req.Algorithm) {
		return fmt.Errorf("invalid algorithm: %s", req.Algorithm)
	}
	if req.MaxResults < 0 || req.MaxResults > 100 {
		return fmt.Errorf("maxResults must be in [0,100]")
	}
	if req.MinScore < 0 || req.MinScore > 100 {
		return fmt.Errorf("minScore must be in [0,100]")
	}
	return nil
}

func validateMatchFilters(f *model.MatchFilters) error {
	if f == nil {
		return nil
	}
	if f.PriceMin < 0 || f.PriceMax < 0 {
		return fmt.Errorf("price filters must be >= 0")
	}
	if f.PriceMax > 0 && f.PriceMin > f.PriceMax {
		return fmt.Errorf("priceMin must be <= priceMax")
	}
	if f.MinScore < 0 || f.MinScore > 100 {
		return fmt.Errorf("minScore must be in [0,100]")
	}
	return nil
}

func validateTripRequest(in *model.TripRequestIn) error {
	if in.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	if in.Budget <= 0 {
		return fmt.Errorf("budget must be > 0")
	}
	if in.DurationDays <= 0 {
		return fmt.Errorf("durationDays must be > 0")
	}
	if in.GroupSize < 1 {
		return fmt.Errorf("groupSize must be >= 1")
	}
	switch in.BudgetFlexibility {
	case "", model.BudgetRigid, model.BudgetFlexible, model.BudgetVeryFlexible:
	default:
		return fmt.Errorf("invalid budgetFlexibility: %s", in.BudgetFlexibility)
	}
	return nil
}

func validatePackage(in *model.PackageIn) error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.BasePrice <= 0 {
		return fmt.Errorf("basePrice must be > 0")
	}
	if in.DurationDays <= 0 {
		return fmt.Errorf("durationDays must be > 0")
	}
	if in.MaxGuests < 1 {
		return fmt.Errorf("maxGuests must be >= 1")
	}
	if in.DiscountPercentage < 0 || in.DiscountPercentage > 100 {
		return fmt.Errorf("discountPercentage must be in [0,100]")
	}
	return nil
}
