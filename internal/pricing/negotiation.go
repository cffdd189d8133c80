package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Negotiation holds the concessions applied on top of the aggregated subtotal.
type Negotiation struct {
	Subtotal          decimal.Decimal
	CourtesyAmount    decimal.Decimal
	Bonus             decimal.Decimal
	ProjectedSubtotal decimal.Decimal
}

// Active reports whether any concession is applied.
func (n Negotiation) Active() bool {
	return n.CourtesyAmount.IsPositive() || n.Bonus.IsPositive()
}

// Negotiate waives the revenue of courtesy lines and subtracts the special
// bonus. The projected subtotal never goes below zero. Courtesy ids must
// reference lines present in totals.
func Negotiate(totals Totals, courtesyIDs []string, bonus decimal.Decimal) (Negotiation, error) {
	const op = "pricing.Negotiate"
	if bonus.IsNegative() {
		return Negotiation{}, shared.E(shared.KindInvalidInput, op, "special bonus must not be negative")
	}
	courtesy := decimal.Zero
	seen := make(map[string]struct{}, len(courtesyIDs))
	for _, id := range courtesyIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sub, ok := totals.LineSubtotal(id)
		if !ok {
			return Negotiation{}, shared.E(shared.KindInvalidInput, op, "courtesy line %s is not part of the quote", id)
		}
		courtesy = courtesy.Add(sub)
	}
	return Negotiation{
		Subtotal:          totals.Subtotal,
		CourtesyAmount:    courtesy,
		Bonus:             bonus,
		ProjectedSubtotal: maxZero(totals.Subtotal.Sub(courtesy).Sub(bonus)),
	}, nil
}

// Adjuster tracks whether the operator has touched the negotiation inputs
// since the quote finished loading. Changes made while populating the
// editor never mark it dirty.
type Adjuster struct {
	loaded bool
	dirty  bool
}

// MarkLoaded ends initial population.
func (a *Adjuster) MarkLoaded() { a.loaded = true }

// Loaded reports whether initial population is over.
func (a *Adjuster) Loaded() bool { return a.loaded }

// Touch records an operator change to lines, courtesy flags or bonus.
func (a *Adjuster) Touch() {
	if a.loaded {
		a.dirty = true
	}
}

// Dirty reports whether closing price resync is armed.
func (a *Adjuster) Dirty() bool { return a.dirty }

// Reset clears the flag, e.g. after a successful save.
func (a *Adjuster) Reset() { a.dirty = false }
