package pricing

import (
    "fmt"
    "math"

    "tripmatch/internal/model"
)

// Pricing strategies. Standard applies only the structural adjustments;
// competitive and premium add a flat percentage on top.
const (
    StrategyStandard    = "standard"
    StrategyCompetitive = "competitive"
    StrategyPremium     = "premium"
)

const currency = "BRL"

const (
    competitiveDiscount = 0.05
    premiumMarkup       = 0.15
    groupDiscountSize   = 6
    groupDiscountRate   = 0.08
)

// ForPackage prices an existing catalog package for a request: per-seat
// base, catalog discount, group discount, then the strategy modifier.
func ForPackage(req *model.TripRequest, pkg *model.Package, strategy string) (*model.PricingResult, error) {
    if err := validStrategy(strategy); err != nil { return nil, err }

    base := pkg.BasePrice * float64(req.GroupSize)
    var adj []model.PricingAdjustment
    if pkg.DiscountPercentage > 0 {
        adj = append(adj, model.PricingAdjustment{
            Type:        "catalog_discount",
            Description: fmt.Sprintf("Desconto de catálogo de %.0f%%", pkg.DiscountPercentage),
            Amount:      -round2(base * pkg.DiscountPercentage / 100),
        })
    }
    return finalize(req, base, adj, strategy), nil
}

// ForModifiedPackage prices an existing package plus the modifications
// requested on top of it. Each component becomes one adjustment line.
func ForModifiedPackage(req *model.TripRequest, pkg *model.Package, components []model.PricingComponent, strategy string) (*model.PricingResult, error) {
    if err := validStrategy(strategy); err != nil { return nil, err }

    base := pkg.BasePrice * float64(req.GroupSize)
    var adj []model.PricingAdjustment
    if pkg.DiscountPercentage > 0 {
        adj = append(adj, model.PricingAdjustment{
            Type:        "catalog_discount",
            Description: fmt.Sprintf("Desconto de catálogo de %.0f%%", pkg.DiscountPercentage),
            Amount:      -round2(base * pkg.DiscountPercentage / 100),
        })
    }
    for _, c := range components {
        if c.Quantity <= 0 { return nil, fmt.Errorf("component %q: quantity must be positive", c.Type) }
        adj = append(adj, model.PricingAdjustment{
            Type:        "modification",
            Description: c.Description,
            Amount:      round2(c.UnitPrice * float64(c.Quantity)),
        })
    }
    return finalize(req, base, adj, strategy), nil
}

// ForComponents prices a custom or modified package from its line items.
func ForComponents(req *model.TripRequest, components []model.PricingComponent, strategy string) (*model.PricingResult, error) {
    if err := validStrategy(strategy); err != nil { return nil, err }
    if len(components) == 0 { return nil, fmt.Errorf("at least one pricing component is required") }

    var base float64
    for _, c := range components {
        if c.Quantity <= 0 { return nil, fmt.Errorf("component %q: quantity must be positive", c.Type) }
        if c.UnitPrice < 0 { return nil, fmt.Errorf("component %q: unit price must not be negative", c.Type) }
        base += c.UnitPrice * float64(c.Quantity)
    }
    return finalize(req, base, nil, strategy), nil
}

func finalize(req *model.TripRequest, base float64, adj []model.PricingAdjustment, strategy string) *model.PricingResult {
    total := base
    for _, a := range adj { total += a.Amount }

    if req.GroupSize >= groupDiscountSize {
        a := model.PricingAdjustment{
            Type:        "group_discount",
            Description: fmt.Sprintf("Desconto para grupos de %d ou mais pessoas", groupDiscountSize),
            Amount:      -round2(total * groupDiscountRate),
        }
        adj = append(adj, a)
        total += a.Amount
    }

    switch strategy {
    case StrategyCompetitive:
        a := model.PricingAdjustment{
            Type:        "competitive_discount",
            Description: "Ajuste competitivo de mercado",
            Amount:      -round2(total * competitiveDiscount),
        }
        adj = append(adj, a)
        total += a.Amount
    case StrategyPremium:
        a := model.PricingAdjustment{
            Type:        "premium_markup",
            Description: "Serviços premium inclusos",
            Amount:      round2(total * premiumMarkup),
        }
        adj = append(adj, a)
        total += a.Amount
    }

    total = round2(total)
    per := total
    if req.GroupSize > 0 { per = round2(total / float64(req.GroupSize)) }
    return &model.PricingResult{
        BasePrice:   round2(base),
        Adjustments: adj,
        TotalPrice:  total,
        PerPerson:   per,
        Currency:    currency,
        Strategy:    strategy,
    }
}

func validStrategy(s string) error {
    switch s {
    case StrategyStandard, StrategyCompetitive, StrategyPremium:
        return nil
    }
    return fmt.Errorf("unknown pricing strategy %q", s)
}

func round2(v float64) float64 {
    return math.Round(v*100) / 100
}
