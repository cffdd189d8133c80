package quotes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusDraft, StatusPublished},
		{StatusPublished, StatusDraft},
		{StatusDraft, StatusClosing},
		{StatusPublished, StatusClosing},
		{StatusClosing, StatusAuthorized},
		{StatusClosing, StatusDraft},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	illegal := [][2]Status{
		{StatusDraft, StatusDraft},
		{StatusDraft, StatusAuthorized},
		{StatusPublished, StatusAuthorized},
		{StatusClosing, StatusPublished},
		{StatusAuthorized, StatusDraft},
		{StatusAuthorized, StatusClosing},
		{StatusAuthorized, StatusAuthorized},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	q := quoteFixture()
	q.Status = StatusAuthorized
	_, err := Transition(q, StatusDraft, snapshotFixture().Conditions, newClock().Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	_, err = Transition(quoteFixture(), StatusDraft, nil, newClock().Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	_, err = Transition(quoteFixture(), Status("archived"), nil, newClock().Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestClosingRequiresCondition(t *testing.T) {
	q := quoteFixture()
	q.SelectedConditionID = nil
	got, err := Transition(q, StatusClosing, snapshotFixture().Conditions, newClock().Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrMissingCondition))
	assert.Equal(t, StatusDraft, got.Status)

	q.SelectedConditionID = idPtr(999)
	_, err = Transition(q, StatusClosing, snapshotFixture().Conditions, newClock().Now())
	assert.True(t, errors.Is(err, shared.ErrMissingCondition))
}

func TestClosingFreezesStandardCondition(t *testing.T) {
	clock := newClock()
	q := quoteFixture()
	q.Status = StatusPublished

	next, err := Transition(q, StatusClosing, snapshotFixture().Conditions, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusClosing, next.Status)
	assert.Nil(t, next.SelectedConditionID)
	require.NotNil(t, next.NegotiatedCondition)
	nc := next.NegotiatedCondition
	assert.True(t, nc.Frozen())
	assert.Equal(t, clock.Now(), *nc.FrozenAt)
	assert.Equal(t, int64(10), *nc.SourceConditionID)
	assert.Equal(t, "Contado", nc.Name)
	assertDec(t, "10", nc.DiscountPercentage)
	assert.Equal(t, q.ID, nc.QuoteID)

	assert.Equal(t, StatusPublished, q.Status)
	assert.Equal(t, int64(10), *q.SelectedConditionID)
	assert.Nil(t, q.NegotiatedCondition)

	back, err := Transition(next, StatusDraft, snapshotFixture().Conditions, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, back.Status)
	assert.Nil(t, back.NegotiatedCondition)
	require.NotNil(t, back.SelectedConditionID)
	assert.Equal(t, int64(10), *back.SelectedConditionID)
}

func TestClosingFreezesNegotiatedCondition(t *testing.T) {
	clock := newClock()
	q := quoteFixture()
	q.SelectedConditionID = nil
	q.NegotiatedCondition = &NegotiatedCondition{Name: "Pactada", DiscountPercentage: dec("5"), AdvanceType: pricing.AdvanceFixedAmount, AdvanceValue: dec("100")}

	next, err := Transition(q, StatusClosing, nil, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, next.NegotiatedCondition)
	assert.True(t, next.NegotiatedCondition.Frozen())
	assert.Nil(t, next.NegotiatedCondition.SourceConditionID)
	assert.False(t, q.NegotiatedCondition.Frozen())

	back, err := Transition(next, StatusDraft, nil, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, back.NegotiatedCondition)
	assert.False(t, back.NegotiatedCondition.Frozen())
	assert.Equal(t, "Pactada", back.NegotiatedCondition.Name)
	assert.Nil(t, back.SelectedConditionID)
}

func TestAuthorizeKeepsSnapshot(t *testing.T) {
	clock := newClock()
	closing, err := Transition(quoteFixture(), StatusClosing, snapshotFixture().Conditions, clock.Now())
	require.NoError(t, err)
	auth, err := Transition(closing, StatusAuthorized, snapshotFixture().Conditions, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, auth.Status)
	assert.Equal(t, closing.NegotiatedCondition.ID, auth.NegotiatedCondition.ID)

	assert.True(t, errors.Is(GuardMutation(auth, "op"), shared.ErrImmutable))
	assert.NoError(t, GuardMutation(closing, "op"))
}

func TestCommercialChanged(t *testing.T) {
	base := quoteFixture()
	same := base.Clone()
	same.Description = "notas internas"
	same.VisibleToClient = true
	same.CourtesyItemIDs = []string{}
	assert.False(t, CommercialChanged(base, same))

	cases := map[string]func(*Quote){
		"bonus":    func(q *Quote) { q.SpecialBonus = dec("1") },
		"courtesy": func(q *Quote) { q.CourtesyItemIDs = []string{"album"} },
		"override": func(q *Quote) { q.ClosingPriceOverride = decPtr("900") },
		"select":   func(q *Quote) { q.SelectedConditionID = idPtr(11) },
		"quantity": func(q *Quote) { q.Items[1].Quantity = dec("3") },
		"lines":    func(q *Quote) { q.Items = q.Items[:1] },
		"terms": func(q *Quote) {
			q.NegotiatedCondition = &NegotiatedCondition{Name: "x", AdvanceType: pricing.AdvancePercentage}
		},
	}
	for name, mutate := range cases {
		changed := base.Clone()
		mutate(&changed)
		assert.True(t, CommercialChanged(base, changed), name)
	}
}
