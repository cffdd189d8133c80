package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// UnitPrice derives the sale price of one unit so that, before commission,
// the profit type's margin ratio is realised over the sale price, and then
// applies the studio markup surcharge:
//
//	unit = (cost + expense) / (1 - margin) * (1 + markup)
//
// cfg must already be normalised.
func UnitPrice(cost, expense decimal.Decimal, pt ProfitType, cfg Config) (decimal.Decimal, error) {
	const op = "pricing.UnitPrice"
	if cost.IsNegative() {
		return decimal.Zero, shared.E(shared.KindInvalidInput, op, "cost must not be negative")
	}
	if expense.IsNegative() {
		return decimal.Zero, shared.E(shared.KindInvalidInput, op, "expense must not be negative")
	}
	margin := cfg.MarginRatio(pt)
	if margin.GreaterThanOrEqual(one) {
		return decimal.Zero, shared.E(shared.KindInvalidConfig, op, "margin ratio %s for %s must be below 1", margin, pt)
	}
	if margin.IsNegative() {
		return decimal.Zero, shared.E(shared.KindInvalidConfig, op, "margin ratio for %s must not be negative", pt)
	}
	base := cost.Add(expense).Div(one.Sub(margin))
	return base.Mul(one.Add(cfg.MarkupRatio)), nil
}
