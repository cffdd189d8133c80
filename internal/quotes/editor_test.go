package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func newTestEditor(t *testing.T, q Quote) (*Editor, *fixedClock) {
	t.Helper()
	clock := newClock()
	ed, err := NewEditor(q, snapshotFixture(), WithClock(clock.Now))
	require.NoError(t, err)
	return ed, clock
}

func TestEditorInitialBreakdown(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	b := ed.Breakdown()

	assertDec(t, "1200", b.Subtotal)
	assertDec(t, "1200", b.ProjectedSubtotal)
	assertDec(t, "120", b.DiscountAmount)
	assertDec(t, "1080", b.SuggestedPrice)
	assertDec(t, "1080", b.ClosingPrice)
	assertDec(t, "400", b.TotalCost)
	assertDec(t, "200", b.TotalExpense)
	assertDec(t, "108", b.Commission)
	assertDec(t, "372", b.NetUtility)
	assertDec(t, "34.44", b.MarginPct)
	assertDec(t, "540", b.Advance)
	assertDec(t, "540", b.Deferred)
	assertDec(t, "50", b.WeightedTargetPct)
	assert.Equal(t, pricing.HealthGreen, b.Health)
	assert.False(t, b.MeetsTarget)
	assert.False(t, ed.Dirty())
	assert.False(t, ed.Signal().Active)
}

func TestEditorNewQuoteShowsPublicConditions(t *testing.T) {
	q := quoteFixture()
	q.ID = 0
	q.VisibleConditionIDs = nil
	ed, _ := newTestEditor(t, q)
	assert.Equal(t, []int64{10, 11}, ed.Quote().VisibleConditionIDs)
}

func TestEditorLoadHidesDiscountsWhileNegotiated(t *testing.T) {
	q := quoteFixture()
	q.SpecialBonus = dec("50")
	ed, _ := newTestEditor(t, q)
	assert.Equal(t, []int64{11}, ed.Quote().VisibleConditionIDs)
	assert.False(t, ed.Dirty())

	q.PinnedConditionIDs = []int64{10}
	ed, _ = newTestEditor(t, q)
	assert.Equal(t, []int64{10, 11}, ed.Quote().VisibleConditionIDs)
}

func TestEditorBonusResyncsClosingPrice(t *testing.T) {
	ed, clock := newTestEditor(t, quoteFixture())

	require.NoError(t, ed.SetBonus(dec("100")))
	assert.True(t, ed.Dirty())
	b := ed.Breakdown()
	assertDec(t, "1100", b.ProjectedSubtotal)
	assertDec(t, "990", b.SuggestedPrice)
	assertDec(t, "990", b.ClosingPrice)

	sig := ed.Signal()
	assert.True(t, sig.Active)
	assert.Equal(t, clock.Now().Add(pricing.DefaultResyncSignalTTL), sig.ExpiresAt)
	require.NotNil(t, ed.Quote().ClosingPriceOverride)
	assertDec(t, "990", *ed.Quote().ClosingPriceOverride)

	assert.False(t, ed.ClearResyncSignal())
	clock.Advance(3 * time.Second)
	assert.True(t, ed.ClearResyncSignal())
	assert.False(t, ed.Signal().Active)
}

func TestEditorAutoHidesDiscountingConditions(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.SetBonus(dec("100")))
	assert.Equal(t, []int64{11}, ed.Quote().VisibleConditionIDs)

	require.NoError(t, ed.PinCondition(10))
	require.NoError(t, ed.SetBonus(dec("150")))
	assert.Equal(t, []int64{10, 11}, ed.Quote().VisibleConditionIDs)

	require.NoError(t, ed.SetBonus(dec("0")))
	ed.HideCondition(10)
	assert.Equal(t, []int64{11}, ed.Quote().VisibleConditionIDs)
	assert.Empty(t, ed.Quote().PinnedConditionIDs)
}

func TestEditorManualClosingPriceDoesNotSignal(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.SetClosingPrice(decPtr("1500")))
	assertDec(t, "1500", ed.Breakdown().ClosingPrice)
	assertDec(t, "1080", ed.Breakdown().SuggestedPrice)
	assert.False(t, ed.Signal().Active)

	require.NoError(t, ed.SelectCondition(idPtr(11)))
	assertDec(t, "1500", ed.Breakdown().ClosingPrice)

	require.NoError(t, ed.SetClosingPrice(nil))
	assertDec(t, "1200", ed.Breakdown().ClosingPrice)

	assert.True(t, errors.Is(ed.SetClosingPrice(decPtr("-1")), shared.ErrInvalidInput))
}

func TestEditorCourtesyAndRemoval(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.SetBonus(dec("100")))
	require.NoError(t, ed.ToggleCourtesy("album"))

	b := ed.Breakdown()
	assertDec(t, "200", b.CourtesyAmount)
	assertDec(t, "900", b.ProjectedSubtotal)
	assertDec(t, "810", b.ClosingPrice)

	require.NoError(t, ed.RemoveLine("album"))
	assert.Empty(t, ed.Quote().CourtesyItemIDs)
	assertDec(t, "1000", ed.Breakdown().Subtotal)
	assertDec(t, "900", ed.Breakdown().ProjectedSubtotal)

	assert.True(t, errors.Is(ed.ToggleCourtesy("album"), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.RemoveLine("album"), shared.ErrInvalidInput))
}

func TestEditorCourtesyToggleOff(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.ToggleCourtesy("album"))
	require.NoError(t, ed.ToggleCourtesy("album"))
	assert.Empty(t, ed.Quote().CourtesyItemIDs)
	assertDec(t, "0", ed.Breakdown().CourtesyAmount)
}

func TestEditorHourlyLines(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.AddLine(LineItem{ItemID: idPtr(3), Quantity: dec("4")}))
	assertDec(t, "1250", ed.Breakdown().Subtotal)

	require.NoError(t, ed.SetEventDuration(decPtr("5")))
	assertDec(t, "1450", ed.Breakdown().Subtotal)

	q := ed.Quote()
	require.Len(t, q.Items, 3)
	assert.NotEmpty(t, q.Items[2].ID)
	assert.Equal(t, 2, q.Items[2].Position)
}

func TestEditorRejectsBadInput(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	assert.True(t, errors.Is(ed.SetBonus(dec("-5")), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.AddLine(LineItem{ItemID: idPtr(99), Quantity: dec("1")}), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.AddLine(LineItem{ID: "foto", ItemID: idPtr(1), Quantity: dec("1")}), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.SelectCondition(idPtr(99)), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.PinCondition(99), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.Reorder([]string{"foto"}), shared.ErrInvalidInput))
	assert.True(t, errors.Is(ed.Reorder([]string{"foto", "foto"}), shared.ErrInvalidInput))
	assert.False(t, ed.Dirty())
	assertDec(t, "1080", ed.Breakdown().ClosingPrice)
}

func TestEditorConditionSelectionIsExclusive(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.SetNegotiatedCondition(pricing.Terms{Name: "Pactada", DiscountPercentage: dec("25"), AdvanceType: pricing.AdvanceFixedAmount, AdvanceValue: dec("100")}))
	q := ed.Quote()
	assert.Nil(t, q.SelectedConditionID)
	require.NotNil(t, q.NegotiatedCondition)
	assertDec(t, "900", ed.Breakdown().SuggestedPrice)
	assertDec(t, "100", ed.Breakdown().Advance)

	require.NoError(t, ed.SelectCondition(idPtr(10)))
	q = ed.Quote()
	assert.Nil(t, q.NegotiatedCondition)
	assert.Equal(t, int64(10), *q.SelectedConditionID)

	require.NoError(t, ed.SelectCondition(nil))
	assertDec(t, "1200", ed.Breakdown().ClosingPrice)
	assertDec(t, "0", ed.Breakdown().DiscountAmount)
}

func TestEditorReorder(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	require.NoError(t, ed.Reorder([]string{"album", "foto"}))
	q := ed.Quote()
	assert.Equal(t, "album", q.Items[0].ID)
	assert.Equal(t, 0, q.Items[0].Position)
	assert.Equal(t, "foto", q.Items[1].ID)
	assert.False(t, ed.Dirty())
}

func TestEditorWhatIfLeavesSelection(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	scenarios := ed.WhatIf()
	require.Len(t, scenarios, 2)

	assert.Equal(t, int64(10), scenarios[0].ConditionID)
	assertDec(t, "120", scenarios[0].DiscountAmount)
	assertDec(t, "1080", scenarios[0].SuggestedPrice)

	assert.Equal(t, int64(11), scenarios[1].ConditionID)
	assertDec(t, "1200", scenarios[1].SuggestedPrice)
	assertDec(t, "300", scenarios[1].Advance)
	assertDec(t, "900", scenarios[1].Deferred)

	assert.Equal(t, int64(10), *ed.Quote().SelectedConditionID)
}

func TestEditorAuthorisedQuoteIsImmutable(t *testing.T) {
	q := quoteFixture()
	q.Status = StatusAuthorized
	ed, _ := newTestEditor(t, q)
	before := ed.Quote()

	for name, err := range map[string]error{
		"bonus":     ed.SetBonus(dec("10")),
		"courtesy":  ed.ToggleCourtesy("foto"),
		"condition": ed.SelectCondition(idPtr(11)),
		"closing":   ed.SetClosingPrice(decPtr("10")),
		"add":       ed.AddLine(LineItem{ItemID: idPtr(2), Quantity: dec("1")}),
		"remove":    ed.RemoveLine("foto"),
		"terms":     ed.SetNegotiatedCondition(pricing.Terms{Name: "x"}),
	} {
		assert.True(t, errors.Is(err, shared.ErrImmutable), name)
	}
	assert.Equal(t, before, ed.Quote())
}

func TestApplyLineCommandRollsBackOnFailure(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	before := ed.Quote()
	beforeBreakdown := ed.Breakdown()

	boom := errors.New("save failed")
	err := ed.ApplyLineCommand(context.Background(), AddLineCommand{Line: LineItem{ItemID: idPtr(2), Quantity: dec("1")}},
		func(_ context.Context, q Quote) error {
			assert.Len(t, q.Items, 3)
			return boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, ed.Quote())
	assert.Equal(t, beforeBreakdown, ed.Breakdown())
	assert.False(t, ed.Dirty())
	assert.False(t, ed.Signal().Active)
}

func TestApplyLineCommandCommits(t *testing.T) {
	ed, _ := newTestEditor(t, quoteFixture())
	var saved Quote
	err := ed.ApplyLineCommand(context.Background(), RemoveLineCommand{ID: "album"}, func(_ context.Context, q Quote) error {
		saved = q
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, saved.Items, 1)
	assert.Len(t, ed.Quote().Items, 1)
	assert.True(t, ed.Dirty())

	require.NoError(t, ed.ApplyLineCommand(context.Background(), ToggleCourtesyCommand{ID: "foto"}, nil))
	assert.Equal(t, []string{"foto"}, ed.Quote().CourtesyItemIDs)

	err = ed.ApplyLineCommand(context.Background(), ReorderLinesCommand{IDs: []string{"missing"}}, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}
