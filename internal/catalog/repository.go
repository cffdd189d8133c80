package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Repository persists catalog data.
type Repository interface {
	ListItems(ctx context.Context) ([]pricing.CatalogItem, error)
	GetItem(ctx context.Context, id int64) (pricing.CatalogItem, error)
	UpdateItem(ctx context.Context, item pricing.CatalogItem) error
	InsertItem(ctx context.Context, item pricing.CatalogItem) (int64, error)
	ListConditions(ctx context.Context) ([]pricing.Condition, error)
	PricingConfig(ctx context.Context) (*pricing.Config, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const itemColumns = `id, name, cost, expense_breakdown, profit_type, billing_type, status`

func scanItem(row pgx.Row) (pricing.CatalogItem, error) {
	var (
		item     pricing.CatalogItem
		expenses []byte
		profit   string
		billing  string
		status   string
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Cost, &expenses, &profit, &billing, &status); err != nil {
		return pricing.CatalogItem{}, err
	}
	if len(expenses) > 0 {
		if err := json.Unmarshal(expenses, &item.ExpenseBreakdown); err != nil {
			return pricing.CatalogItem{}, fmt.Errorf("decode expense breakdown: %w", err)
		}
	}
	item.ProfitType = pricing.ProfitType(profit)
	item.BillingType = pricing.BillingType(billing)
	item.Status = pricing.ItemStatus(status)
	return item, nil
}

func (r *pgRepository) ListItems(ctx context.Context) ([]pricing.CatalogItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM catalog_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []pricing.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *pgRepository) GetItem(ctx context.Context, id int64) (pricing.CatalogItem, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.CatalogItem{}, shared.E(shared.KindNotFound, "catalog.GetItem", "catalog item %d not found", id)
	}
	return item, err
}

func (r *pgRepository) UpdateItem(ctx context.Context, item pricing.CatalogItem) error {
	expenses, err := json.Marshal(item.ExpenseBreakdown)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE catalog_items
SET name = $2, cost = $3, expense_breakdown = $4, profit_type = $5, billing_type = $6, status = $7, updated_at = NOW()
WHERE id = $1`, item.ID, item.Name, item.Cost, expenses, string(item.ProfitType), string(item.BillingType), string(item.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "catalog.UpdateItem", "catalog item %d not found", item.ID)
	}
	return nil
}

func (r *pgRepository) InsertItem(ctx context.Context, item pricing.CatalogItem) (int64, error) {
	expenses, err := json.Marshal(item.ExpenseBreakdown)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO catalog_items (name, cost, expense_breakdown, profit_type, billing_type, status)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.Name, item.Cost, expenses, string(item.ProfitType), string(item.BillingType), string(item.Status)).Scan(&id)
	return id, err
}

func (r *pgRepository) ListConditions(ctx context.Context) ([]pricing.Condition, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, discount_percentage, advance_type, advance_value, is_public, kind
FROM commercial_conditions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pricing.Condition
	for rows.Next() {
		var (
			c       pricing.Condition
			advance string
			kind    string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.DiscountPercentage, &advance, &c.AdvanceValue, &c.IsPublic, &kind); err != nil {
			return nil, err
		}
		c.AdvanceType = pricing.AdvanceType(advance)
		c.Kind = pricing.ConditionKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepository) PricingConfig(ctx context.Context) (*pricing.Config, error) {
	var service, product, commission, markup decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT utility_service_ratio, utility_product_ratio, commission_ratio, markup_ratio
FROM pricing_config ORDER BY id LIMIT 1`).Scan(&service, &product, &commission, &markup)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pricing.Config{
		UtilityServiceRatio: service,
		UtilityProductRatio: product,
		CommissionRatio:     commission,
		MarkupRatio:         markup,
	}, nil
}
