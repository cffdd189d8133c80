package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AdvanceType selects how the advance payment is computed.
type AdvanceType string

const (
	AdvancePercentage  AdvanceType = "percentage"
	AdvanceFixedAmount AdvanceType = "fixed_amount"
)

// ConditionKind separates everyday templates from special ones.
type ConditionKind string

const (
	ConditionStandard ConditionKind = "standard"
	ConditionSpecial  ConditionKind = "special"
)

// Condition is a reusable commercial condition template.
type Condition struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	AdvanceType        AdvanceType     `json:"advance_type"`
	AdvanceValue       decimal.Decimal `json:"advance_value"`
	IsPublic           bool            `json:"is_public"`
	Kind               ConditionKind   `json:"kind"`
}

// Terms returns the payment terms carried by the condition.
func (c Condition) Terms() Terms {
	return Terms{
		Name:               c.Name,
		DiscountPercentage: c.DiscountPercentage,
		AdvanceType:        c.AdvanceType,
		AdvanceValue:       c.AdvanceValue,
	}
}

// Discounts reports whether the condition carries a discount.
func (c Condition) Discounts() bool {
	return c.DiscountPercentage.IsPositive()
}

// Terms are the resolved discount and advance rules in effect for a quote,
// whether they come from a standard condition or a negotiated one.
type Terms struct {
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	AdvanceType        AdvanceType     `json:"advance_type"`
	AdvanceValue       decimal.Decimal `json:"advance_value"`
}

// Discount applies the terms' discount to the projected subtotal. Without
// terms the suggested price equals the projected subtotal.
func Discount(projected decimal.Decimal, terms *Terms) (discount, suggested decimal.Decimal) {
	if terms == nil || !terms.DiscountPercentage.IsPositive() {
		return decimal.Zero, maxZero(projected)
	}
	discount = percentOf(projected, terms.DiscountPercentage)
	return discount, maxZero(projected.Sub(discount))
}

// SplitPayment divides the closing price into advance and deferred parts.
// A fixed amount advance is reported as configured, even when it exceeds
// the closing price.
func SplitPayment(closing decimal.Decimal, terms *Terms) (advance, deferred decimal.Decimal) {
	if terms == nil {
		return decimal.Zero, maxZero(closing)
	}
	switch terms.AdvanceType {
	case AdvanceFixedAmount:
		advance = terms.AdvanceValue
	default:
		advance = percentOf(closing, terms.AdvanceValue)
	}
	return advance, maxZero(closing.Sub(advance))
}

// DefaultVisible returns the ids of all public conditions.
func DefaultVisible(conditions []Condition) []int64 {
	ids := make([]int64, 0, len(conditions))
	for _, c := range conditions {
		if c.IsPublic {
			ids = append(ids, c.ID)
		}
	}
	return sortedIDs(ids)
}

// ApplyVisibilityRule hides every discounting condition while a
// negotiation adjustment is active, so a visible discount is not stacked on
// top of other concessions. Conditions the operator pinned stay visible.
func ApplyVisibilityRule(visible []int64, conditions []Condition, adjustmentActive bool, pinned []int64) []int64 {
	if !adjustmentActive {
		return sortedIDs(visible)
	}
	discounting := make(map[int64]bool, len(conditions))
	for _, c := range conditions {
		discounting[c.ID] = c.Discounts()
	}
	keep := make(map[int64]struct{}, len(pinned))
	for _, id := range pinned {
		keep[id] = struct{}{}
	}
	out := make([]int64, 0, len(visible))
	for _, id := range visible {
		if _, ok := keep[id]; !ok && discounting[id] {
			continue
		}
		out = append(out, id)
	}
	return sortedIDs(out)
}

func sortedIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
