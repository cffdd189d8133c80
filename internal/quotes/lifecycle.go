package quotes

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusClosing},
	StatusPublished: {StatusDraft, StatusClosing},
	StatusClosing:   {StatusAuthorized, StatusDraft},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves q to the target status and returns the new quote; q is
// never modified. Entering en_cierre freezes the terms in effect into a
// negotiated condition; aborting back to draft discards that snapshot.
func Transition(q Quote, to Status, conditions []pricing.Condition, now time.Time) (Quote, error) {
	const op = "quotes.Transition"
	if !to.Valid() {
		return q, shared.E(shared.KindInvalidInput, op, "unknown status %q", to)
	}
	if !CanTransition(q.Status, to) {
		return q, shared.E(shared.KindInvalidTransition, op, "%s -> %s", q.Status, to)
	}
	next := q.Clone()
	switch {
	case to == StatusClosing:
		nc, err := freeze(q, conditions, now)
		if err != nil {
			return q, err
		}
		next.NegotiatedCondition = nc
		next.SelectedConditionID = nil
	case q.Status == StatusClosing && to == StatusDraft:
		restore(&next)
	}
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

func freeze(q Quote, conditions []pricing.Condition, now time.Time) (*NegotiatedCondition, error) {
	frozenAt := now
	if q.NegotiatedCondition != nil {
		nc := q.Clone().NegotiatedCondition
		nc.FrozenAt = &frozenAt
		return nc, nil
	}
	if q.SelectedConditionID != nil {
		for _, c := range conditions {
			if c.ID != *q.SelectedConditionID {
				continue
			}
			source := c.ID
			return &NegotiatedCondition{
				ID:                 uuid.New(),
				QuoteID:            q.ID,
				Name:               c.Name,
				DiscountPercentage: c.DiscountPercentage,
				AdvanceType:        c.AdvanceType,
				AdvanceValue:       c.AdvanceValue,
				SourceConditionID:  &source,
				FrozenAt:           &frozenAt,
			}, nil
		}
	}
	return nil, shared.E(shared.KindMissingCondition, "quotes.Transition", "a commercial condition is required to close quote %d", q.ID)
}

func restore(q *Quote) {
	nc := q.NegotiatedCondition
	if nc == nil {
		return
	}
	if nc.SourceConditionID != nil {
		id := *nc.SourceConditionID
		q.SelectedConditionID = &id
		q.NegotiatedCondition = nil
		return
	}
	nc.FrozenAt = nil
}

// GuardMutation rejects commercial edits on an authorised quote.
func GuardMutation(q Quote, op string) error {
	if q.Status == StatusAuthorized {
		return shared.E(shared.KindImmutable, op, "quote %d is authorised", q.ID)
	}
	return nil
}

// CommercialChanged reports whether anything that feeds the price, the
// condition, the bonus or the courtesy set differs between a and b.
func CommercialChanged(a, b Quote) bool {
	if len(a.Items) != len(b.Items) {
		return true
	}
	for i := range a.Items {
		if !sameLine(a.Items[i], b.Items[i]) {
			return true
		}
	}
	if !sameSet(a.CourtesyItemIDs, b.CourtesyItemIDs) {
		return true
	}
	if !a.SpecialBonus.Equal(b.SpecialBonus) ||
		!decPtrEqual(a.ClosingPriceOverride, b.ClosingPriceOverride) ||
		!decPtrEqual(a.EventDurationHours, b.EventDurationHours) ||
		!ptrEqual(a.SelectedConditionID, b.SelectedConditionID) {
		return true
	}
	if (a.NegotiatedCondition == nil) != (b.NegotiatedCondition == nil) {
		return true
	}
	if a.NegotiatedCondition != nil {
		ta, tb := a.NegotiatedCondition.Terms(), b.NegotiatedCondition.Terms()
		if ta.Name != tb.Name || ta.AdvanceType != tb.AdvanceType ||
			!ta.DiscountPercentage.Equal(tb.DiscountPercentage) ||
			!ta.AdvanceValue.Equal(tb.AdvanceValue) {
			return true
		}
	}
	return false
}

func sameLine(a, b LineItem) bool {
	return a.ID == b.ID &&
		ptrEqual(a.ItemID, b.ItemID) &&
		ptrEqual(a.OriginalItemID, b.OriginalItemID) &&
		a.Quantity.Equal(b.Quantity) &&
		a.UnitPrice.Equal(b.UnitPrice) &&
		a.Cost.Equal(b.Cost) &&
		a.Expense.Equal(b.Expense) &&
		a.BillingType == b.BillingType &&
		a.ProfitType == b.ProfitType
}

func sameSet(a, b []string) bool {
	sa, sb := slices.Clone(a), slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(slices.Compact(sa), slices.Compact(sb))
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
