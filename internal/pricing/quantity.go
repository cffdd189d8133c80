package pricing

import "github.com/shopspring/decimal"

// EffectiveQuantity resolves the billed quantity of a line. HOUR lines are
// included for the whole event: they bill the event duration, or 1 when the
// duration is unknown, regardless of the stored quantity.
func EffectiveQuantity(bt BillingType, base decimal.Decimal, eventHours *decimal.Decimal) decimal.Decimal {
	if bt == BillingHour {
		if eventHours != nil && eventHours.IsPositive() {
			return *eventHours
		}
		return one
	}
	return base
}
