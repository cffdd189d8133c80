package pricing

import "github.com/shopspring/decimal"

// Health classifies a quote's margin.
type Health string

const (
	HealthRed   Health = "red"
	HealthAmber Health = "amber"
	HealthGreen Health = "green"
)

var (
	amberFloor = decimal.NewFromInt(15)
	greenFloor = decimal.NewFromInt(25)
)

// ClassifyHealth maps a margin percentage onto red (< 15), amber (< 25) or green.
func ClassifyHealth(marginPct decimal.Decimal) Health {
	switch {
	case marginPct.LessThan(amberFloor):
		return HealthRed
	case marginPct.LessThan(greenFloor):
		return HealthAmber
	default:
		return HealthGreen
	}
}

// Audit is the profitability view of a quote at a given closing price.
type Audit struct {
	Commission             decimal.Decimal `json:"commission"`
	NetUtility             decimal.Decimal `json:"net_utility"`
	MarginPct              decimal.Decimal `json:"margin_pct"`
	UtilityWithoutDiscount decimal.Decimal `json:"utility_without_discount"`
	WeightedTargetPct      decimal.Decimal `json:"weighted_target_pct"`
	Health                 Health          `json:"health"`
	MeetsTarget            bool            `json:"meets_target"`
}

// Utility computes commission, net utility and margin for a revenue figure.
// The margin is zero when revenue is zero.
func Utility(revenue decimal.Decimal, totals Totals, cfg Config) (commission, net, marginPct decimal.Decimal) {
	commission = revenue.Mul(cfg.CommissionRatio)
	net = revenue.Sub(totals.TotalCost).Sub(totals.TotalExpense).Sub(commission)
	if revenue.IsZero() {
		return commission, net, decimal.Zero
	}
	return commission, net, net.Div(revenue).Mul(hundred)
}

// WeightedTargetPct blends the service and product margin targets by the
// quote's actual revenue mix. It is zero when there is no revenue.
func WeightedTargetPct(totals Totals, cfg Config) decimal.Decimal {
	revenue := totals.ServiceRevenue.Add(totals.ProductRevenue)
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	blended := totals.ServiceRevenue.Mul(cfg.UtilityServiceRatio).
		Add(totals.ProductRevenue.Mul(cfg.UtilityProductRatio))
	return blended.Div(revenue).Mul(hundred)
}

// AuditProfit produces the profitability audit. cfg must be normalised.
func AuditProfit(closing, projected decimal.Decimal, totals Totals, cfg Config) Audit {
	commission, net, margin := Utility(closing, totals, cfg)
	_, withoutDiscount, _ := Utility(projected, totals, cfg)
	target := WeightedTargetPct(totals, cfg)
	return Audit{
		Commission:             commission,
		NetUtility:             net,
		MarginPct:              margin,
		UtilityWithoutDiscount: withoutDiscount,
		WeightedTargetPct:      target,
		Health:                 ClassifyHealth(margin),
		MeetsTarget:            margin.GreaterThanOrEqual(target),
	}
}

// Scenario is a what-if evaluation of one visible condition.
type Scenario struct {
	ConditionID    int64           `json:"condition_id"`
	Name           string          `json:"name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
	Commission     decimal.Decimal `json:"commission"`
	NetUtility     decimal.Decimal `json:"net_utility"`
	MarginPct      decimal.Decimal `json:"margin_pct"`
	Advance        decimal.Decimal `json:"advance"`
	Deferred       decimal.Decimal `json:"deferred"`
	Health         Health          `json:"health"`
}

// WhatIf evaluates every visible condition as if it were selected, without
// touching the committed selection. Results follow the visible id order.
func WhatIf(projected decimal.Decimal, totals Totals, conditions []Condition, visible []int64, cfg Config) []Scenario {
	byID := make(map[int64]Condition, len(conditions))
	for _, c := range conditions {
		byID[c.ID] = c
	}
	out := make([]Scenario, 0, len(visible))
	for _, id := range sortedIDs(visible) {
		c, ok := byID[id]
		if !ok {
			continue
		}
		terms := c.Terms()
		discount, suggested := Discount(projected, &terms)
		commission, net, margin := Utility(suggested, totals, cfg)
		advance, deferred := SplitPayment(suggested, &terms)
		out = append(out, Scenario{
			ConditionID:    c.ID,
			Name:           c.Name,
			DiscountAmount: discount,
			SuggestedPrice: suggested,
			Commission:     commission,
			NetUtility:     net,
			MarginPct:      margin,
			Advance:        advance,
			Deferred:       deferred,
			Health:         ClassifyHealth(margin),
		})
	}
	return out
}
