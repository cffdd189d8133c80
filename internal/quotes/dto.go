package quotes

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// Payload is the persisted shape of a quote as sent by editors.
type Payload struct {
	PromiseID            int64                 `json:"promise_id" validate:"required,gt=0"`
	Name                 string                `json:"name" validate:"max=200"`
	Description          string                `json:"description" validate:"max=2000"`
	LineItems            []CatalogLinePayload  `json:"line_items" validate:"dive"`
	CustomItems          []CustomLinePayload   `json:"custom_items" validate:"dive"`
	CourtesyItemIDs      []string              `json:"courtesy_item_ids"`
	SpecialBonus         decimal.Decimal       `json:"special_bonus"`
	ClosingPriceOverride *decimal.Decimal      `json:"closing_price_override"`
	ConditionID          *int64                `json:"condition_id"`
	NegotiatedCondition  *NegotiatedTermsInput `json:"negotiated_condition" validate:"omitempty"`
	VisibleConditionIDs  []int64               `json:"visible_condition_ids"`
	PinnedConditionIDs   []int64               `json:"pinned_condition_ids"`
	EventDurationHours   *decimal.Decimal      `json:"event_duration_hours"`
	VisibleToClient      bool                  `json:"visible_to_client"`
}

// CatalogLinePayload is a catalog-linked line.
type CatalogLinePayload struct {
	ID       string          `json:"id"`
	Position int             `json:"position" validate:"gte=0"`
	ItemID   int64           `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CustomLinePayload is a custom or snapshot line.
type CustomLinePayload struct {
	ID               string              `json:"id"`
	Position         int                 `json:"position" validate:"gte=0"`
	Name             string              `json:"name" validate:"required,max=200"`
	Description      string              `json:"description"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	Cost             decimal.Decimal     `json:"cost"`
	Expense          decimal.Decimal     `json:"expense"`
	Quantity         decimal.Decimal     `json:"quantity"`
	BillingType      pricing.BillingType `json:"billing_type" validate:"required,oneof=HOUR SERVICE UNIT"`
	ProfitType       pricing.ProfitType  `json:"profit_type" validate:"omitempty,oneof=service product"`
	OriginalItemID   *int64              `json:"original_item_id"`
	PromoteToCatalog bool                `json:"promote_to_catalog"`
}

// NegotiatedTermsInput carries quote-specific condition terms.
type NegotiatedTermsInput struct {
	Name               string              `json:"name" validate:"required,max=200"`
	DiscountPercentage decimal.Decimal     `json:"discount_percentage"`
	AdvanceType        pricing.AdvanceType `json:"advance_type" validate:"required,oneof=percentage fixed_amount"`
	AdvanceValue       decimal.Decimal     `json:"advance_value"`
}

// CreateResult is returned by Create.
type CreateResult struct {
	ID        int64  `json:"id"`
	Status    Status `json:"status"`
	PromiseID int64  `json:"promise_id"`
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`
}

// TransitionRequest asks for a lifecycle move.
type TransitionRequest struct {
	To Status `json:"to" validate:"required,oneof=draft published en_cierre autorizada"`
}

// DuplicateRequest names the copy of a quote.
type DuplicateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ToQuote maps the payload onto a quote. Lines are ordered by position,
// catalog lines first on ties.
func (p Payload) ToQuote() Quote {
	q := Quote{
		PromiseID:            p.PromiseID,
		Name:                 strings.TrimSpace(p.Name),
		Description:          p.Description,
		CourtesyItemIDs:      slices.Clone(p.CourtesyItemIDs),
		SpecialBonus:         p.SpecialBonus,
		ClosingPriceOverride: clonePtr(p.ClosingPriceOverride),
		SelectedConditionID:  clonePtr(p.ConditionID),
		VisibleConditionIDs:  slices.Clone(p.VisibleConditionIDs),
		PinnedConditionIDs:   slices.Clone(p.PinnedConditionIDs),
		EventDurationHours:   clonePtr(p.EventDurationHours),
		VisibleToClient:      p.VisibleToClient,
	}
	for _, l := range p.LineItems {
		id := l.ItemID
		q.Items = append(q.Items, LineItem{ID: l.ID, Position: l.Position, ItemID: &id, Quantity: l.Quantity})
	}
	for _, l := range p.CustomItems {
		q.Items = append(q.Items, LineItem{
			ID:               l.ID,
			Position:         l.Position,
			Quantity:         l.Quantity,
			Name:             l.Name,
			Description:      l.Description,
			UnitPrice:        l.UnitPrice,
			Cost:             l.Cost,
			Expense:          l.Expense,
			BillingType:      l.BillingType,
			ProfitType:       l.ProfitType,
			OriginalItemID:   clonePtr(l.OriginalItemID),
			PromoteToCatalog: l.PromoteToCatalog,
		})
	}
	slices.SortStableFunc(q.Items, func(a, b LineItem) int { return cmp.Compare(a.Position, b.Position) })
	renumber(q.Items)
	if n := p.NegotiatedCondition; n != nil {
		q.NegotiatedCondition = &NegotiatedCondition{
			Name:               n.Name,
			DiscountPercentage: n.DiscountPercentage,
			AdvanceType:        n.AdvanceType,
			AdvanceValue:       n.AdvanceValue,
		}
	}
	return q
}

// PayloadFromQuote is the inverse of ToQuote.
func PayloadFromQuote(q Quote) Payload {
	p := Payload{
		PromiseID:            q.PromiseID,
		Name:                 q.Name,
		Description:          q.Description,
		CourtesyItemIDs:      slices.Clone(q.CourtesyItemIDs),
		SpecialBonus:         q.SpecialBonus,
		ClosingPriceOverride: clonePtr(q.ClosingPriceOverride),
		ConditionID:          clonePtr(q.SelectedConditionID),
		VisibleConditionIDs:  slices.Clone(q.VisibleConditionIDs),
		PinnedConditionIDs:   slices.Clone(q.PinnedConditionIDs),
		EventDurationHours:   clonePtr(q.EventDurationHours),
		VisibleToClient:      q.VisibleToClient,
	}
	for _, l := range q.Items {
		if !l.Custom() {
			p.LineItems = append(p.LineItems, CatalogLinePayload{ID: l.ID, Position: l.Position, ItemID: *l.ItemID, Quantity: l.Quantity})
			continue
		}
		p.CustomItems = append(p.CustomItems, CustomLinePayload{
			ID:             l.ID,
			Position:       l.Position,
			Name:           l.Name,
			Description:    l.Description,
			UnitPrice:      l.UnitPrice,
			Cost:           l.Cost,
			Expense:        l.Expense,
			Quantity:       l.Quantity,
			BillingType:    l.BillingType,
			ProfitType:     l.ProfitType,
			OriginalItemID: clonePtr(l.OriginalItemID),
		})
	}
	if nc := q.NegotiatedCondition; nc != nil {
		p.NegotiatedCondition = &NegotiatedTermsInput{
			Name:               nc.Name,
			DiscountPercentage: nc.DiscountPercentage,
			AdvanceType:        nc.AdvanceType,
			AdvanceValue:       nc.AdvanceValue,
		}
	}
	return p
}
