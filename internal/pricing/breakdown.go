package pricing

import "github.com/shopspring/decimal"

// Input is everything needed to price a quote end to end.
type Input struct {
	CatalogLines    []CatalogLine
	CustomLines     []CustomLine
	Catalog         map[int64]CatalogItem
	Config          *Config
	EventHours      *decimal.Decimal
	CourtesyIDs     []string
	Bonus           decimal.Decimal
	Terms           *Terms
	ClosingOverride *decimal.Decimal
}

// Breakdown is the computed price breakdown handed to reporting and UI
// collaborators. Money is rounded to cents, percentages to two decimals.
type Breakdown struct {
	Subtotal               decimal.Decimal `json:"subtotal"`
	CourtesyAmount         decimal.Decimal `json:"courtesy_amount"`
	Bonus                  decimal.Decimal `json:"bonus"`
	ProjectedSubtotal      decimal.Decimal `json:"projected_subtotal"`
	DiscountAmount         decimal.Decimal `json:"discount_amount"`
	SuggestedPrice         decimal.Decimal `json:"suggested_price"`
	ClosingPrice           decimal.Decimal `json:"closing_price"`
	TotalCost              decimal.Decimal `json:"total_cost"`
	TotalExpense           decimal.Decimal `json:"total_expense"`
	Commission             decimal.Decimal `json:"commission"`
	NetUtility             decimal.Decimal `json:"net_utility"`
	MarginPct              decimal.Decimal `json:"margin_pct"`
	Advance                decimal.Decimal `json:"advance"`
	Deferred               decimal.Decimal `json:"deferred"`
	UtilityWithoutDiscount decimal.Decimal `json:"utility_without_discount"`
	WeightedTargetPct      decimal.Decimal `json:"weighted_target_pct"`
	Health                 Health          `json:"health"`
	MeetsTarget            bool            `json:"meets_target"`
}

// Result carries the rounded breakdown plus the unrounded intermediate values.
type Result struct {
	Breakdown   Breakdown
	Totals      Totals
	Negotiation Negotiation
	Audit       Audit
	Config      Config
}

// Compute runs the whole chain: aggregate, negotiate, discount, closing
// price, payment split and audit.
func Compute(in Input) (Result, error) {
	cfg, err := Normalize(in.Config)
	if err != nil {
		return Result{}, err
	}
	totals, err := Aggregate(AggregateInput{
		CatalogLines: in.CatalogLines,
		CustomLines:  in.CustomLines,
		Catalog:      in.Catalog,
		Config:       cfg,
		EventHours:   in.EventHours,
	})
	if err != nil {
		return Result{}, err
	}
	neg, err := Negotiate(totals, in.CourtesyIDs, in.Bonus)
	if err != nil {
		return Result{}, err
	}
	discount, suggested := Discount(neg.ProjectedSubtotal, in.Terms)
	closing := ClosingPrice(in.ClosingOverride, suggested)
	advance, deferred := SplitPayment(closing, in.Terms)
	audit := AuditProfit(closing, neg.ProjectedSubtotal, totals, cfg)

	return Result{
		Breakdown: Breakdown{
			Subtotal:               money(totals.Subtotal),
			CourtesyAmount:         money(neg.CourtesyAmount),
			Bonus:                  money(neg.Bonus),
			ProjectedSubtotal:      money(neg.ProjectedSubtotal),
			DiscountAmount:         money(discount),
			SuggestedPrice:         money(suggested),
			ClosingPrice:           money(closing),
			TotalCost:              money(totals.TotalCost),
			TotalExpense:           money(totals.TotalExpense),
			Commission:             money(audit.Commission),
			NetUtility:             money(audit.NetUtility),
			MarginPct:              money(audit.MarginPct),
			Advance:                money(advance),
			Deferred:               money(deferred),
			UtilityWithoutDiscount: money(audit.UtilityWithoutDiscount),
			WeightedTargetPct:      money(audit.WeightedTargetPct),
			Health:                 audit.Health,
			MeetsTarget:            audit.MeetsTarget,
		},
		Totals:      totals,
		Negotiation: neg,
		Audit:       audit,
		Config:      cfg,
	}, nil
}

func money(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
