// Package catalog is the Catalog Service collaborator of the quoting engine:
// catalog items, reusable commercial conditions and the studio pricing
// configuration, served to quote editors as a single snapshot.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

// Snapshot is the catalog state a quote editing session works against.
type Snapshot struct {
	Items      map[int64]pricing.CatalogItem `json:"items"`
	Conditions []pricing.Condition           `json:"conditions"`
	Config     pricing.Config                `json:"config"`
	LoadedAt   time.Time                     `json:"loaded_at"`
}

// Condition looks up a commercial condition by id.
func (s Snapshot) Condition(id int64) (pricing.Condition, bool) {
	for _, c := range s.Conditions {
		if c.ID == id {
			return c, true
		}
	}
	return pricing.Condition{}, false
}

// UpdateItemInput carries a catalog item edit.
type UpdateItemInput struct {
	Name             string                 `json:"name" validate:"required,max=200"`
	Cost             decimal.Decimal        `json:"cost"`
	ExpenseBreakdown []pricing.ExpenseEntry `json:"expense_breakdown"`
	ProfitType       pricing.ProfitType     `json:"profit_type" validate:"required,oneof=service product"`
	BillingType      pricing.BillingType    `json:"billing_type" validate:"required,oneof=HOUR SERVICE UNIT"`
	Status           pricing.ItemStatus     `json:"status" validate:"required,oneof=active inactive"`
}

// PromoteInput turns a custom quote line into a catalog item.
type PromoteInput struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Cost        decimal.Decimal     `json:"cost"`
	Expense     decimal.Decimal     `json:"expense"`
	ProfitType  pricing.ProfitType  `json:"profit_type"`
	BillingType pricing.BillingType `json:"billing_type" validate:"required,oneof=HOUR SERVICE UNIT"`
}
