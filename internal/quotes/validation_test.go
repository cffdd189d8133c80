package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

func TestValidatePayloadReportsJSONPaths(t *testing.T) {
	p := payloadFixture()
	p.PromiseID = 0
	p.CustomItems = []CustomLinePayload{{Quantity: dec("1"), BillingType: "DAY"}}
	p.NegotiatedCondition = &NegotiatedTermsInput{Name: "x", AdvanceType: "later"}

	res := ValidatePayload(p)
	assert.Equal(t, "required", res["promise_id"])
	assert.Equal(t, "required", res["custom_items[0].name"])
	assert.Equal(t, "must be one of HOUR SERVICE UNIT", res["custom_items[0].billing_type"])
	assert.Equal(t, "must be one of percentage fixed_amount", res["negotiated_condition.advance_type"])
}

func TestValidatePayloadAcceptsFixture(t *testing.T) {
	assert.True(t, ValidatePayload(payloadFixture()).OK())
}

func TestValidateQuote(t *testing.T) {
	snap := snapshotFixture()
	assert.True(t, Validate(quoteFixture(), snap.Items, snap.Conditions).OK())

	q := quoteFixture()
	q.Name = "   "
	q.Items = append(q.Items,
		LineItem{ID: "dj", ItemID: idPtr(3), Quantity: dec("1")},
		LineItem{ID: "ghost", ItemID: idPtr(99), Quantity: dec("-1")},
		LineItem{ID: "custom", UnitPrice: dec("-1"), Cost: dec("-1"), Expense: dec("-1"), Quantity: dec("1"), BillingType: pricing.BillingUnit},
	)
	q.CourtesyItemIDs = []string{"nope"}
	q.SpecialBonus = dec("-1")
	q.ClosingPriceOverride = decPtr("-1")
	q.NegotiatedCondition = &NegotiatedCondition{DiscountPercentage: dec("120"), AdvanceValue: dec("-1")}

	res := Validate(q, snap.Items, snap.Conditions)
	for _, field := range []string{
		"name",
		"event_duration_hours",
		"items[3].item_id",
		"items[3].quantity",
		"items[4].unit_price",
		"items[4].cost",
		"items[4].expense",
		"courtesy_item_ids",
		"special_bonus",
		"closing_price_override",
		"condition_id",
		"negotiated_condition.discount_percentage",
		"negotiated_condition.advance_value",
	} {
		assert.Contains(t, res, field)
	}
}

func TestValidateEmptyQuote(t *testing.T) {
	snap := snapshotFixture()
	res := Validate(Quote{Name: "x", SelectedConditionID: idPtr(404)}, snap.Items, snap.Conditions)
	assert.Equal(t, "at least one line item is required", res["items"])
	assert.Equal(t, "unknown condition", res["condition_id"])
}

func TestValidateHourlyDurationMustBePositive(t *testing.T) {
	snap := snapshotFixture()
	q := quoteFixture()
	q.Items = append(q.Items, LineItem{ID: "dj", ItemID: idPtr(3), Quantity: dec("1")})
	q.EventDurationHours = decPtr("0")
	assert.Contains(t, Validate(q, snap.Items, snap.Conditions), "event_duration_hours")

	q.EventDurationHours = decPtr("6")
	assert.True(t, Validate(q, snap.Items, snap.Conditions).OK())
}

func TestValidateCourtesyOnReplacedLine(t *testing.T) {
	snap := snapshotFixture()
	q := quoteFixture()
	q.Items = append(q.Items,
		LineItem{ID: "foto-2", ItemID: idPtr(1), Quantity: dec("1")},
		LineItem{ID: "foto-copia", UnitPrice: dec("800"), Quantity: dec("1"), BillingType: pricing.BillingService, OriginalItemID: idPtr(1)},
	)
	assert.Equal(t, map[string]struct{}{"foto": {}}, q.ReplacedLineIDs())

	q.CourtesyItemIDs = []string{"foto-2"}
	assert.True(t, Validate(q, snap.Items, snap.Conditions).OK())

	q.CourtesyItemIDs = []string{"foto"}
	res := Validate(q, snap.Items, snap.Conditions)
	assert.Equal(t, "line foto is replaced by a custom line", res["courtesy_item_ids"])
}

func TestPayloadRoundTrip(t *testing.T) {
	p := payloadFixture()
	p.CustomItems = []CustomLinePayload{{ID: "pista", Position: 0, Name: "Pista", UnitPrice: dec("800"), Quantity: dec("1"), BillingType: pricing.BillingService, OriginalItemID: idPtr(1)}}
	q := p.ToQuote()

	assert.Equal(t, []string{"foto", "pista", "album"}, []string{q.Items[0].ID, q.Items[1].ID, q.Items[2].ID})
	assert.Equal(t, []int{0, 1, 2}, []int{q.Items[0].Position, q.Items[1].Position, q.Items[2].Position})
	assert.True(t, q.Items[1].Custom())

	back := PayloadFromQuote(q)
	assert.Len(t, back.LineItems, 2)
	assert.Len(t, back.CustomItems, 1)
	assert.Equal(t, int64(1), *back.CustomItems[0].OriginalItemID)
	assert.Equal(t, int64(10), *back.ConditionID)
}
