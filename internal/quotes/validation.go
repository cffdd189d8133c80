package quotes

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	validate = newValidator()
	hundred  = decimal.NewFromInt(100)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatePayload checks the payload structure and reports failures per
// json field path.
func ValidatePayload(p Payload) shared.ValidationResult {
	res := shared.ValidationResult{}
	err := validate.Struct(p)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return res
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		res.Add(field, message(fe))
	}
	return res
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt", "gte":
		return "must be " + fe.Tag() + " " + fe.Param()
	default:
		return "invalid"
	}
}

// Validate checks a quote against the catalog items it references. Empty
// names, empty line lists, negative money, courtesy ids that are unknown or
// point at a replaced catalog line and a missing event duration for hourly
// lines are reported.
func Validate(q Quote, items map[int64]pricing.CatalogItem, conditions []pricing.Condition) shared.ValidationResult {
	res := shared.ValidationResult{}
	if strings.TrimSpace(q.Name) == "" {
		res.Add("name", "required")
	}
	if len(q.Items) == 0 {
		res.Add("items", "at least one line item is required")
	}
	hourly := false
	ids := make([]string, 0, len(q.Items))
	for i, l := range q.Items {
		ids = append(ids, l.ID)
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		if l.Quantity.IsNegative() {
			res.Add(field("quantity"), "must not be negative")
		}
		if !l.Custom() {
			item, ok := items[*l.ItemID]
			if !ok {
				res.Add(field("item_id"), "unknown catalog item")
				continue
			}
			hourly = hourly || item.BillingType == pricing.BillingHour
			continue
		}
		hourly = hourly || l.BillingType == pricing.BillingHour
		if l.UnitPrice.IsNegative() {
			res.Add(field("unit_price"), "must not be negative")
		}
		if l.Cost.IsNegative() {
			res.Add(field("cost"), "must not be negative")
		}
		if l.Expense.IsNegative() {
			res.Add(field("expense"), "must not be negative")
		}
	}
	if hourly && (q.EventDurationHours == nil || !q.EventDurationHours.IsPositive()) {
		res.Add("event_duration_hours", "must be positive when an hourly line is present")
	}
	replaced := q.ReplacedLineIDs()
	for _, c := range q.CourtesyItemIDs {
		if !slices.Contains(ids, c) {
			res.Add("courtesy_item_ids", fmt.Sprintf("unknown line %s", c))
			continue
		}
		if _, ok := replaced[c]; ok {
			res.Add("courtesy_item_ids", fmt.Sprintf("line %s is replaced by a custom line", c))
		}
	}
	if q.SpecialBonus.IsNegative() {
		res.Add("special_bonus", "must not be negative")
	}
	if q.ClosingPriceOverride != nil && q.ClosingPriceOverride.IsNegative() {
		res.Add("closing_price_override", "must not be negative")
	}
	if q.SelectedConditionID != nil && q.NegotiatedCondition != nil {
		res.Add("condition_id", "mutually exclusive with negotiated_condition")
	}
	if q.SelectedConditionID != nil && !slices.ContainsFunc(conditions, func(c pricing.Condition) bool { return c.ID == *q.SelectedConditionID }) {
		res.Add("condition_id", "unknown condition")
	}
	if nc := q.NegotiatedCondition; nc != nil {
		if nc.DiscountPercentage.IsNegative() || nc.DiscountPercentage.GreaterThan(hundred) {
			res.Add("negotiated_condition.discount_percentage", "must be between 0 and 100")
		}
		if nc.AdvanceValue.IsNegative() {
			res.Add("negotiated_condition.advance_value", "must not be negative")
		}
	}
	return res
}

func merge(dst, src shared.ValidationResult) shared.ValidationResult {
	for k, v := range src {
		dst.Add(k, v)
	}
	return dst
}
