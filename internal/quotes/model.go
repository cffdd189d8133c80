// Package quotes holds the quote aggregate, its lifecycle and the editing
// session that drives the pricing engine, plus persistence and HTTP wiring.
package quotes

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusClosing    Status = "en_cierre"
	StatusAuthorized Status = "autorizada"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusClosing, StatusAuthorized:
		return true
	}
	return false
}

// LineItem is a quote line. Catalog-linked lines carry ItemID; custom
// lines carry their own prices.
type LineItem struct {
	ID               string              `json:"id"`
	Position         int                 `json:"position"`
	ItemID           *int64              `json:"item_id,omitempty"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Name             string              `json:"name,omitempty"`
	Description      string              `json:"description,omitempty"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	Cost             decimal.Decimal     `json:"cost"`
	Expense          decimal.Decimal     `json:"expense"`
	BillingType      pricing.BillingType `json:"billing_type,omitempty"`
	ProfitType       pricing.ProfitType  `json:"profit_type,omitempty"`
	OriginalItemID   *int64              `json:"original_item_id,omitempty"`
	PromoteToCatalog bool                `json:"promote_to_catalog,omitempty"`
}

// Custom reports whether the line is priced by its own snapshot values.
func (l LineItem) Custom() bool { return l.ItemID == nil }

// NegotiatedCondition ("pactada") is a condition owned by a single quote.
// A frozen copy of a standard condition keeps SourceConditionID.
type NegotiatedCondition struct {
	ID                 uuid.UUID           `json:"id"`
	QuoteID            int64               `json:"quote_id"`
	Name               string              `json:"name"`
	DiscountPercentage decimal.Decimal     `json:"discount_percentage"`
	AdvanceType        pricing.AdvanceType `json:"advance_type"`
	AdvanceValue       decimal.Decimal     `json:"advance_value"`
	SourceConditionID  *int64              `json:"source_condition_id,omitempty"`
	FrozenAt           *time.Time          `json:"frozen_at,omitempty"`
}

// Frozen reports whether the condition was snapshotted by a closing transition.
func (n NegotiatedCondition) Frozen() bool { return n.FrozenAt != nil }

// Terms returns the payment terms of the condition.
func (n NegotiatedCondition) Terms() pricing.Terms {
	return pricing.Terms{
		Name:               n.Name,
		DiscountPercentage: n.DiscountPercentage,
		AdvanceType:        n.AdvanceType,
		AdvanceValue:       n.AdvanceValue,
	}
}

// Quote is the quote aggregate.
type Quote struct {
	ID                   int64                `json:"id"`
	PromiseID            int64                `json:"promise_id"`
	Name                 string               `json:"name"`
	Description          string               `json:"description"`
	Items                []LineItem           `json:"items"`
	CourtesyItemIDs      []string             `json:"courtesy_item_ids"`
	SpecialBonus         decimal.Decimal      `json:"special_bonus"`
	ClosingPriceOverride *decimal.Decimal     `json:"closing_price_override,omitempty"`
	SelectedConditionID  *int64               `json:"selected_condition_id,omitempty"`
	NegotiatedCondition  *NegotiatedCondition `json:"negotiated_condition,omitempty"`
	VisibleConditionIDs  []int64              `json:"visible_condition_ids"`
	PinnedConditionIDs   []int64              `json:"pinned_condition_ids"`
	EventDurationHours   *decimal.Decimal     `json:"event_duration_hours,omitempty"`
	VisibleToClient      bool                 `json:"visible_to_client"`
	Status               Status               `json:"status"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Line returns the line with the given id.
func (q Quote) Line(id string) (LineItem, bool) {
	for _, l := range q.Items {
		if l.ID == id {
			return l, true
		}
	}
	return LineItem{}, false
}

// ResolveTerms returns the terms in effect: the negotiated condition when
// present, otherwise the selected standard condition. Nil when neither
// resolves.
func (q Quote) ResolveTerms(conditions []pricing.Condition) *pricing.Terms {
	if q.NegotiatedCondition != nil {
		t := q.NegotiatedCondition.Terms()
		return &t
	}
	if q.SelectedConditionID == nil {
		return nil
	}
	for _, c := range conditions {
		if c.ID == *q.SelectedConditionID {
			t := c.Terms()
			return &t
		}
	}
	return nil
}

// PricingInput maps the quote onto the engine input for the given catalog.
func (q Quote) PricingInput(snap catalog.Snapshot) pricing.Input {
	cfg := snap.Config
	in := pricing.Input{
		Catalog:         snap.Items,
		Config:          &cfg,
		EventHours:      q.EventDurationHours,
		CourtesyIDs:     q.CourtesyItemIDs,
		Bonus:           q.SpecialBonus,
		Terms:           q.ResolveTerms(snap.Conditions),
		ClosingOverride: q.ClosingPriceOverride,
	}
	in.CatalogLines, in.CustomLines = q.engineLines()
	return in
}

func (q Quote) engineLines() (catalogLines []pricing.CatalogLine, customLines []pricing.CustomLine) {
	for _, l := range q.Items {
		if !l.Custom() {
			catalogLines = append(catalogLines, pricing.CatalogLine{
				ID:       l.ID,
				ItemID:   *l.ItemID,
				Quantity: l.Quantity,
			})
			continue
		}
		customLines = append(customLines, pricing.CustomLine{
			ID:             l.ID,
			UnitPrice:      l.UnitPrice,
			Cost:           l.Cost,
			Expense:        l.Expense,
			Quantity:       l.Quantity,
			BillingType:    l.BillingType,
			ProfitType:     l.ProfitType,
			OriginalItemID: l.OriginalItemID,
		})
	}
	return catalogLines, customLines
}

func (q Quote) promotes() bool {
	return slices.ContainsFunc(q.Items, func(l LineItem) bool { return l.Custom() && l.PromoteToCatalog })
}

// ReplacedLineIDs returns the catalog lines that a custom line overrides.
// They stay on the quote but do not contribute to its totals.
func (q Quote) ReplacedLineIDs() map[string]struct{} {
	return pricing.ReplacedCatalogLines(q.engineLines())
}

// Clone returns a deep copy.
func (q Quote) Clone() Quote {
	c := q
	c.Items = make([]LineItem, len(q.Items))
	for i, l := range q.Items {
		l.ItemID = clonePtr(l.ItemID)
		l.OriginalItemID = clonePtr(l.OriginalItemID)
		c.Items[i] = l
	}
	c.CourtesyItemIDs = append([]string(nil), q.CourtesyItemIDs...)
	c.VisibleConditionIDs = append([]int64(nil), q.VisibleConditionIDs...)
	c.PinnedConditionIDs = append([]int64(nil), q.PinnedConditionIDs...)
	c.ClosingPriceOverride = clonePtr(q.ClosingPriceOverride)
	c.SelectedConditionID = clonePtr(q.SelectedConditionID)
	c.EventDurationHours = clonePtr(q.EventDurationHours)
	if q.NegotiatedCondition != nil {
		nc := *q.NegotiatedCondition
		nc.SourceConditionID = clonePtr(nc.SourceConditionID)
		nc.FrozenAt = clonePtr(nc.FrozenAt)
		c.NegotiatedCondition = &nc
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Summary is a quote row as listed for a promise.
type Summary struct {
	ID           int64           `json:"id"`
	PromiseID    int64           `json:"promise_id"`
	Name         string          `json:"name"`
	Status       Status          `json:"status"`
	ClosingPrice decimal.Decimal `json:"closing_price"`
	Health       pricing.Health  `json:"health"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
