// Package pricing implements the deterministic quote pricing chain: unit
// prices from catalog costs, billing quantities, line aggregation,
// negotiation concessions, commercial conditions, closing price
// reconciliation and the profitability audit. Every function is pure; the
// studio-wide Config is passed in explicitly.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Config holds the studio-wide pricing ratios. Values may be stored as
// percentages (> 1) or ratios (<= 1); use Normalize before computing.
type Config struct {
	UtilityServiceRatio decimal.Decimal `json:"utility_service_ratio"`
	UtilityProductRatio decimal.Decimal `json:"utility_product_ratio"`
	CommissionRatio     decimal.Decimal `json:"commission_ratio"`
	MarkupRatio         decimal.Decimal `json:"markup_ratio"`
}

// NormalizeRatio converts a percentage (> 1) into a ratio.
func NormalizeRatio(v decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(one) {
		return v.Div(hundred)
	}
	return v
}

// Normalize returns the config in ratio form. A nil config degrades to all
// zero ratios; negative values are rejected.
func Normalize(cfg *Config) (Config, error) {
	if cfg == nil {
		return Config{}, nil
	}
	out := Config{
		UtilityServiceRatio: NormalizeRatio(cfg.UtilityServiceRatio),
		UtilityProductRatio: NormalizeRatio(cfg.UtilityProductRatio),
		CommissionRatio:     NormalizeRatio(cfg.CommissionRatio),
		MarkupRatio:         NormalizeRatio(cfg.MarkupRatio),
	}
	checks := []struct {
		name  string
		value decimal.Decimal
	}{
		{"utility_service_ratio", out.UtilityServiceRatio},
		{"utility_product_ratio", out.UtilityProductRatio},
		{"commission_ratio", out.CommissionRatio},
		{"markup_ratio", out.MarkupRatio},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return Config{}, shared.E(shared.KindInvalidConfig, "pricing.Normalize", "%s must not be negative", c.name)
		}
	}
	return out, nil
}

// MarginRatio selects the target margin for a profit type.
func (c Config) MarginRatio(pt ProfitType) decimal.Decimal {
	if pt == ProfitProduct {
		return c.UtilityProductRatio
	}
	return c.UtilityServiceRatio
}

// ProfitType selects which margin target applies to a line.
type ProfitType string

const (
	ProfitService ProfitType = "service"
	ProfitProduct ProfitType = "product"
)

// Valid reports whether the profit type is known.
func (p ProfitType) Valid() bool {
	return p == ProfitService || p == ProfitProduct
}

// BillingType describes how a line's quantity is interpreted.
type BillingType string

const (
	BillingHour    BillingType = "HOUR"
	BillingService BillingType = "SERVICE"
	BillingUnit    BillingType = "UNIT"
)

// Valid reports whether the billing type is known.
func (b BillingType) Valid() bool {
	return b == BillingHour || b == BillingService || b == BillingUnit
}

func maxZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}
