package conversion

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "tripmatch/internal/match"
    "tripmatch/internal/model"
    "tripmatch/internal/store"
    "tripmatch/internal/webhooks"
)

func newFixture(t *testing.T) (*Workflow, *store.Memory, string, string) {
    t.Helper()
    mem := store.NewMemory()
    ctx := context.Background()

    _, created, _, err := mem.CreateTripRequests(ctx, "t1", []model.TripRequestIn{{
        Destination: "Noronha", Budget: 2000, DurationDays: 4, GroupSize: 2,
        Activities: []string{"mergulho"},
    }})
    require.NoError(t, err)
    require.Equal(t, 1, created)
    reqs, _, err := mem.ListTripRequests(ctx, "t1", "", "", 10)
    require.NoError(t, err)

    createdPkgs, _, err := mem.CreatePackages(ctx, "t1", []model.PackageIn{{
        Name: "Noronha Essencial", Category: "Fernando de Noronha", BasePrice: 2000,
        DurationDays: 4, MaxGuests: 4, Description: "mergulho e trilhas",
    }})
    require.NoError(t, err)
    require.Equal(t, 1, createdPkgs)
    pkgs, err := mem.ListPackages(ctx, "t1")
    require.NoError(t, err)

    w := NewWorkflow(mem, match.NewEngine(mem), webhooks.NewPublisher(mem))
    return w, mem, reqs[0].ID, pkgs[0].ID
}

func admin() Actor { return Actor{UserID: "u1", Role: "master"} }

func TestStartAutomaticRunsMatching(t *testing.T) {
    w, mem, reqID, _ := newFixture(t)
    ctx := context.Background()

    res, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAutomatic, admin())
    require.NoError(t, err)
    assert.True(t, res.Success)
    assert.Equal(t, model.StatusMatchesFound, res.Status)

    sess, err := mem.GetConversionSession(ctx, "t1", res.SessionID)
    require.NoError(t, err)
    require.NotNil(t, sess.AnalysisResult)
    require.NotNil(t, sess.MatchingResult)
    assert.NotEmpty(t, sess.MatchingResult.Matches)
    require.Len(t, sess.Timeline, 2)
    assert.Equal(t, "conversion_started", sess.Timeline[0].Event)
    assert.Equal(t, "matching_complete", sess.Timeline[1].Event)
}

func TestStartIsIdempotentPerRequest(t *testing.T) {
    w, _, reqID, _ := newFixture(t)
    ctx := context.Background()

    first, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)
    second, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAutomatic, admin())
    require.NoError(t, err)
    assert.Equal(t, first.SessionID, second.SessionID)
    assert.Contains(t, second.Message, "já existente")
}

func TestStartRejectsUnauthorizedRole(t *testing.T) {
    w, _, reqID, _ := newFixture(t)
    _, err := w.StartConversionProcess(context.Background(), "t1", reqID, model.ConversionAssisted, Actor{UserID: "c1", Role: "customer"})
    assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStartUnknownRequest(t *testing.T) {
    w, _, _, _ := newFixture(t)
    _, err := w.StartConversionProcess(context.Background(), "t1", "missing", model.ConversionAssisted, admin())
    assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAssistedStartDoesNotMatch(t *testing.T) {
    w, mem, reqID, _ := newFixture(t)
    ctx := context.Background()

    res, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)
    assert.Equal(t, model.StatusAnalysisComplete, res.Status)

    sess, err := mem.GetConversionSession(ctx, "t1", res.SessionID)
    require.NoError(t, err)
    assert.Nil(t, sess.MatchingResult)
    require.Len(t, sess.Timeline, 1)
}

func TestExecutePackageMatchingWithPriceFilter(t *testing.T) {
    w, mem, reqID, _ := newFixture(t)
    ctx := context.Background()
    _, _, err := mem.CreatePackages(ctx, "t1", []model.PackageIn{{
        Name: "Noronha Premium", Category: "Fernando de Noronha", BasePrice: 2100,
        DurationDays: 4, MaxGuests: 4, Description: "mergulho e trilhas",
    }})
    require.NoError(t, err)

    res, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)

    all, err := w.ExecutePackageMatching(ctx, "t1", res.SessionID, match.AlgoSimilarity, model.MatchFilters{}, admin())
    require.NoError(t, err)
    require.True(t, all.Success)
    assert.Len(t, all.Matches, 2)

    narrow, err := w.ExecutePackageMatching(ctx, "t1", res.SessionID, match.AlgoSimilarity, model.MatchFilters{PriceMax: 2050}, admin())
    require.NoError(t, err)
    require.True(t, narrow.Success)
    assert.Len(t, narrow.Matches, 1)
}

func TestPricingAndSelectionFlow(t *testing.T) {
    w, mem, reqID, pkgID := newFixture(t)
    ctx := context.Background()

    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAutomatic, admin())
    require.NoError(t, err)

    priced, err := w.CalculateConversionPricing(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: pkgID,
    }, "", admin())
    require.NoError(t, err)
    require.True(t, priced.Success)
    assert.Equal(t, 4000.0, priced.Pricing.TotalPrice)
    assert.Equal(t, "standard", priced.Pricing.Strategy)

    sel, err := w.SelectConversionOption(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: pkgID,
    }, admin())
    require.NoError(t, err)
    assert.True(t, sel.Success)
    assert.Equal(t, "customer_approval", sel.NextStep)

    req, err := mem.GetTripRequest(ctx, "t1", reqID)
    require.NoError(t, err)
    assert.Equal(t, "approved", req.Status)
}

func TestPricingUnknownPackage(t *testing.T) {
    w, _, reqID, _ := newFixture(t)
    ctx := context.Background()
    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)

    _, err = w.CalculateConversionPricing(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: "missing",
    }, "", admin())
    assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCustomerRejectionLeavesNoTrace(t *testing.T) {
    w, mem, reqID, pkgID := newFixture(t)
    ctx := context.Background()

    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAutomatic, admin())
    require.NoError(t, err)
    _, err = w.SelectConversionOption(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: pkgID,
    }, admin())
    require.NoError(t, err)

    res, err := w.ExecuteConversionToBooking(ctx, "t1", start.SessionID, false, "pix", admin())
    require.NoError(t, err)
    assert.False(t, res.Success)
    assert.Equal(t, "Conversão cancelada - cliente não aprovou.", res.Message)
    assert.Empty(t, res.BookingID)
    assert.Empty(t, res.ConfirmationCode)

    // Request keeps the status selection gave it; only the session moves.
    req, err := mem.GetTripRequest(ctx, "t1", reqID)
    require.NoError(t, err)
    assert.Equal(t, "approved", req.Status)
    sess, err := mem.GetConversionSession(ctx, "t1", start.SessionID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCustomerRejected, sess.Status)
}

func TestApprovedConversionCreatesBooking(t *testing.T) {
    w, mem, reqID, pkgID := newFixture(t)
    ctx := context.Background()

    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAutomatic, admin())
    require.NoError(t, err)
    _, err = w.CalculateConversionPricing(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: pkgID,
    }, "", admin())
    require.NoError(t, err)
    _, err = w.SelectConversionOption(ctx, "t1", start.SessionID, model.ConversionOption{
        Type: model.OptionExistingPackage, PackageID: pkgID,
    }, admin())
    require.NoError(t, err)

    res, err := w.ExecuteConversionToBooking(ctx, "t1", start.SessionID, true, "pix", admin())
    require.NoError(t, err)
    require.True(t, res.Success)
    assert.NotEmpty(t, res.BookingID)
    assert.Regexp(t, `^TM-[0-9A-F]{8}$`, res.ConfirmationCode)

    booking, err := mem.GetBooking(ctx, "t1", res.BookingID)
    require.NoError(t, err)
    assert.Equal(t, 4000.0, booking.TotalPrice)
    assert.Equal(t, "confirmed", booking.Status)

    req, err := mem.GetTripRequest(ctx, "t1", reqID)
    require.NoError(t, err)
    assert.Equal(t, "completed", req.Status)

    sess, err := mem.GetConversionSession(ctx, "t1", start.SessionID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusConversionComplete, sess.Status)

    // the approval itself is audited before the booking is attempted
    var events []string
    for _, e := range sess.Timeline {
        events = append(events, e.Event)
    }
    approvedAt := -1
    completeAt := -1
    for i, e := range events {
        if e == "customer_approved" { approvedAt = i }
        if e == "conversion_complete" { completeAt = i }
    }
    require.NotEqual(t, -1, approvedAt, "timeline: %v", events)
    require.NotEqual(t, -1, completeAt, "timeline: %v", events)
    assert.Less(t, approvedAt, completeAt)
}

func TestBookingWithoutSelectedOption(t *testing.T) {
    w, _, reqID, _ := newFixture(t)
    ctx := context.Background()
    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)

    res, err := w.ExecuteConversionToBooking(ctx, "t1", start.SessionID, true, "", admin())
    require.NoError(t, err)
    assert.False(t, res.Success)
    assert.Empty(t, res.BookingID)
}

func TestSaveConflictBetweenTwoWriters(t *testing.T) {
    w, mem, reqID, _ := newFixture(t)
    ctx := context.Background()
    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)

    a, err := mem.GetConversionSession(ctx, "t1", start.SessionID)
    require.NoError(t, err)
    b, err := mem.GetConversionSession(ctx, "t1", start.SessionID)
    require.NoError(t, err)

    a.Status = model.StatusMatchesFound
    require.NoError(t, mem.SaveConversionSession(ctx, a))

    b.Status = model.StatusCustomPackageRequired
    err = mem.SaveConversionSession(ctx, b)
    assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestGetConversionStatusByRequestID(t *testing.T) {
    w, _, reqID, _ := newFixture(t)
    ctx := context.Background()
    start, err := w.StartConversionProcess(ctx, "t1", reqID, model.ConversionAssisted, admin())
    require.NoError(t, err)

    byID, err := w.GetConversionStatus(ctx, "t1", start.SessionID)
    require.NoError(t, err)
    byReq, err := w.GetConversionStatus(ctx, "t1", reqID)
    require.NoError(t, err)
    assert.Equal(t, byID.ID, byReq.ID)
}

func TestAnalyzeRequestComplexity(t *testing.T) {
    simple := &model.TripRequest{ID: "r", Budget: 1000, DurationDays: 3, GroupSize: 2}
    res, err := analyzeRequest(simple)
    require.NoError(t, err)
    assert.Equal(t, "simple", res.Complexity)
    assert.Equal(t, match.AlgoHybrid, res.RecommendedAlgorithm)

    complexReq := &model.TripRequest{
        ID: "r2", Budget: 1000, DurationDays: 20, GroupSize: 12,
        Activities:        []string{"a", "b", "c", "d"},
        BudgetFlexibility: model.BudgetRigid,
    }
    res, err = analyzeRequest(complexReq)
    require.NoError(t, err)
    assert.Equal(t, "complex", res.Complexity)
    assert.Equal(t, match.AlgoBudget, res.RecommendedAlgorithm)

    _, err = analyzeRequest(&model.TripRequest{ID: "bad", Budget: 0, DurationDays: 1, GroupSize: 1})
    assert.Error(t, err)
}
