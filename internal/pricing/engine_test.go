package pricing

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "tripmatch/internal/model"
)

func TestForPackageStandard(t *testing.T) {
    req := &model.TripRequest{GroupSize: 2}
    pkg := &model.Package{BasePrice: 1500}

    res, err := ForPackage(req, pkg, StrategyStandard)
    require.NoError(t, err)
    assert.Equal(t, 3000.0, res.BasePrice)
    assert.Equal(t, 3000.0, res.TotalPrice)
    assert.Equal(t, 1500.0, res.PerPerson)
    assert.Equal(t, "BRL", res.Currency)
    assert.Empty(t, res.Adjustments)
}

func TestForPackageCatalogAndGroupDiscounts(t *testing.T) {
    req := &model.TripRequest{GroupSize: 6}
    pkg := &model.Package{BasePrice: 1000, DiscountPercentage: 10}

    res, err := ForPackage(req, pkg, StrategyStandard)
    require.NoError(t, err)
    require.Len(t, res.Adjustments, 2)
    assert.Equal(t, "catalog_discount", res.Adjustments[0].Type)
    assert.Equal(t, -600.0, res.Adjustments[0].Amount)
    assert.Equal(t, "group_discount", res.Adjustments[1].Type)
    assert.Equal(t, -432.0, res.Adjustments[1].Amount) // 8% of 5400
    assert.Equal(t, 4968.0, res.TotalPrice)
    assert.Equal(t, 828.0, res.PerPerson)
}

func TestStrategyModifiers(t *testing.T) {
    req := &model.TripRequest{GroupSize: 2}
    pkg := &model.Package{BasePrice: 1000}

    comp, err := ForPackage(req, pkg, StrategyCompetitive)
    require.NoError(t, err)
    assert.Equal(t, 1900.0, comp.TotalPrice)

    prem, err := ForPackage(req, pkg, StrategyPremium)
    require.NoError(t, err)
    assert.Equal(t, 2300.0, prem.TotalPrice)
}

func TestForComponents(t *testing.T) {
    req := &model.TripRequest{GroupSize: 2}
    components := []model.PricingComponent{
        {Type: "accommodation", UnitPrice: 400, Quantity: 4},
        {Type: "activity", UnitPrice: 150, Quantity: 2},
    }

    res, err := ForComponents(req, components, StrategyStandard)
    require.NoError(t, err)
    assert.Equal(t, 1900.0, res.BasePrice)
    assert.Equal(t, 1900.0, res.TotalPrice)
    assert.Equal(t, 950.0, res.PerPerson)
}

func TestForComponentsValidation(t *testing.T) {
    req := &model.TripRequest{GroupSize: 2}

    _, err := ForComponents(req, nil, StrategyStandard)
    assert.Error(t, err)

    _, err = ForComponents(req, []model.PricingComponent{{Type: "x", UnitPrice: 10, Quantity: 0}}, StrategyStandard)
    assert.Error(t, err)

    _, err = ForComponents(req, []model.PricingComponent{{Type: "x", UnitPrice: 10, Quantity: 1}}, "dynamic")
    assert.Error(t, err)
}
