package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ItemStatus marks whether a catalog item can be added to new quotes.
type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemInactive ItemStatus = "inactive"
)

// ExpenseEntry is one labelled operating expense of a catalog item.
type ExpenseEntry struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// CatalogItem is a priced catalog entry.
type CatalogItem struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Cost             decimal.Decimal `json:"cost"`
	ExpenseBreakdown []ExpenseEntry  `json:"expense_breakdown"`
	ProfitType       ProfitType      `json:"profit_type"`
	BillingType      BillingType     `json:"billing_type"`
	Status           ItemStatus      `json:"status"`
}

// Expense sums the expense breakdown.
func (c CatalogItem) Expense() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.ExpenseBreakdown {
		total = total.Add(e.Amount)
	}
	return total
}

// CatalogLine references a catalog item by id.
type CatalogLine struct {
	ID       string
	ItemID   int64
	Quantity decimal.Decimal
}

// CustomLine carries its own snapshot of price, cost and expense.
// OriginalItemID is set when it locally replaces a catalog item.
type CustomLine struct {
	ID             string
	UnitPrice      decimal.Decimal
	Cost           decimal.Decimal
	Expense        decimal.Decimal
	Quantity       decimal.Decimal
	BillingType    BillingType
	ProfitType     ProfitType
	OriginalItemID *int64
}

// AggregateInput gathers the lines of a quote and the context needed to
// price them. Config must be normalised.
type AggregateInput struct {
	CatalogLines []CatalogLine
	CustomLines  []CustomLine
	Catalog      map[int64]CatalogItem
	Config       Config
	EventHours   *decimal.Decimal
}

// LineTotal is the aggregated contribution of one line.
type LineTotal struct {
	ID                string          `json:"id"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	EffectiveQuantity decimal.Decimal `json:"effective_quantity"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Cost              decimal.Decimal `json:"cost"`
	Expense           decimal.Decimal `json:"expense"`
	ProfitType        ProfitType      `json:"profit_type"`
}

// Totals is the output of Aggregate.
type Totals struct {
	Subtotal       decimal.Decimal
	TotalCost      decimal.Decimal
	TotalExpense   decimal.Decimal
	ServiceRevenue decimal.Decimal
	ProductRevenue decimal.Decimal
	Lines          []LineTotal
}

// LineSubtotal returns the subtotal of a line, or zero if it is absent.
func (t Totals) LineSubtotal(id string) (decimal.Decimal, bool) {
	for _, l := range t.Lines {
		if l.ID == id {
			return l.Subtotal, true
		}
	}
	return decimal.Zero, false
}

// ReplacedCatalogLines returns the ids of catalog lines overridden by a
// custom line. Each custom line carrying an OriginalItemID replaces one
// catalog line of that item, the first not yet replaced in line order.
func ReplacedCatalogLines(catalogLines []CatalogLine, customLines []CustomLine) map[string]struct{} {
	pending := make(map[int64]int, len(customLines))
	for _, cl := range customLines {
		if cl.OriginalItemID != nil {
			pending[*cl.OriginalItemID]++
		}
	}
	replaced := make(map[string]struct{}, len(pending))
	for _, l := range catalogLines {
		if pending[l.ItemID] > 0 {
			pending[l.ItemID]--
			replaced[l.ID] = struct{}{}
		}
	}
	return replaced
}

// Aggregate prices every line and accumulates subtotal, cost and expense.
// Catalog lines replaced by a custom line are skipped so the replacement
// is counted once with its own values.
func Aggregate(in AggregateInput) (Totals, error) {
	const op = "pricing.Aggregate"
	replaced := ReplacedCatalogLines(in.CatalogLines, in.CustomLines)

	totals := Totals{
		Subtotal:       decimal.Zero,
		TotalCost:      decimal.Zero,
		TotalExpense:   decimal.Zero,
		ServiceRevenue: decimal.Zero,
		ProductRevenue: decimal.Zero,
		Lines:          make([]LineTotal, 0, len(in.CatalogLines)+len(in.CustomLines)),
	}

	for _, line := range in.CatalogLines {
		if _, ok := replaced[line.ID]; ok {
			continue
		}
		item, ok := in.Catalog[line.ItemID]
		if !ok {
			return Totals{}, shared.E(shared.KindInvalidInput, op, "catalog item %d not found", line.ItemID)
		}
		if line.Quantity.IsNegative() {
			return Totals{}, shared.E(shared.KindInvalidInput, op, "line %s: quantity must not be negative", line.ID)
		}
		expense := item.Expense()
		unit, err := UnitPrice(item.Cost, expense, item.ProfitType, in.Config)
		if err != nil {
			return Totals{}, err
		}
		totals.add(line.ID, unit, item.Cost, expense, EffectiveQuantity(item.BillingType, line.Quantity, in.EventHours), item.ProfitType)
	}

	for _, line := range in.CustomLines {
		if line.UnitPrice.IsNegative() || line.Cost.IsNegative() || line.Expense.IsNegative() || line.Quantity.IsNegative() {
			return Totals{}, shared.E(shared.KindInvalidInput, op, "line %s: amounts must not be negative", line.ID)
		}
		pt := line.ProfitType
		if pt == "" {
			pt = ProfitService
		}
		totals.add(line.ID, line.UnitPrice, line.Cost, line.Expense, EffectiveQuantity(line.BillingType, line.Quantity, in.EventHours), pt)
	}
	return totals, nil
}

func (t *Totals) add(id string, unit, cost, expense, qty decimal.Decimal, pt ProfitType) {
	lt := LineTotal{
		ID:                id,
		UnitPrice:         unit,
		EffectiveQuantity: qty,
		Subtotal:          unit.Mul(qty),
		Cost:              cost.Mul(qty),
		Expense:           expense.Mul(qty),
		ProfitType:        pt,
	}
	t.Subtotal = t.Subtotal.Add(lt.Subtotal)
	t.TotalCost = t.TotalCost.Add(lt.Cost)
	t.TotalExpense = t.TotalExpense.Add(lt.Expense)
	if pt == ProfitProduct {
		t.ProductRevenue = t.ProductRevenue.Add(lt.Subtotal)
	} else {
		t.ServiceRevenue = t.ServiceRevenue.Add(lt.Subtotal)
	}
	t.Lines = append(t.Lines, lt)
}
