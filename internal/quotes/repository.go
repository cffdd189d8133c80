package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Repository persists quotes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, q Quote) (int64, error)
	Update(ctx context.Context, q Quote) error
	Get(ctx context.Context, id int64) (Quote, error)
	List(ctx context.Context, promiseID int64, limit, offset int) ([]Summary, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status, selectedConditionID *int64) error
	SaveNegotiatedCondition(ctx context.Context, nc NegotiatedCondition) error
	DeleteNegotiatedCondition(ctx context.Context, quoteID int64) error
	SaveBreakdown(ctx context.Context, quoteID int64, b pricing.Breakdown) error
	ListOpenByItem(ctx context.Context, itemID int64) ([]int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, inTx := r.db.(pgx.Tx); inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotes (promise_id, name, name_key, description, courtesy_item_ids, special_bonus,
closing_price_override, selected_condition_id, visible_condition_ids, pinned_condition_ids, event_duration_hours,
visible_to_client, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		q.PromiseID, q.Name, shared.NameKey(q.Name), q.Description, nonNil(q.CourtesyItemIDs), q.SpecialBonus,
		q.ClosingPriceOverride, q.SelectedConditionID, nonNil(q.VisibleConditionIDs), nonNil(q.PinnedConditionIDs),
		q.EventDurationHours, q.VisibleToClient, string(q.Status), q.CreatedAt, q.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("quotes.Create", err)
	}
	q.ID = id
	if err := r.insertItems(ctx, id, q.Items); err != nil {
		return 0, err
	}
	if q.NegotiatedCondition != nil {
		nc := *q.NegotiatedCondition
		nc.QuoteID = id
		if err := r.SaveNegotiatedCondition(ctx, nc); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, q Quote) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET name = $2, name_key = $3, description = $4, courtesy_item_ids = $5,
special_bonus = $6, closing_price_override = $7, selected_condition_id = $8, visible_condition_ids = $9,
pinned_condition_ids = $10, event_duration_hours = $11, visible_to_client = $12, updated_at = $13
WHERE id = $1`,
		q.ID, q.Name, shared.NameKey(q.Name), q.Description, nonNil(q.CourtesyItemIDs), q.SpecialBonus,
		q.ClosingPriceOverride, q.SelectedConditionID, nonNil(q.VisibleConditionIDs), nonNil(q.PinnedConditionIDs),
		q.EventDurationHours, q.VisibleToClient, q.UpdatedAt)
	if err != nil {
		return mapWriteErr("quotes.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "quotes.Update", "quote %d not found", q.ID)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
		return err
	}
	if err := r.insertItems(ctx, q.ID, q.Items); err != nil {
		return err
	}
	if q.NegotiatedCondition == nil {
		return r.DeleteNegotiatedCondition(ctx, q.ID)
	}
	return r.SaveNegotiatedCondition(ctx, *q.NegotiatedCondition)
}

func (r *repository) insertItems(ctx context.Context, quoteID int64, items []LineItem) error {
	for _, l := range items {
		_, err := r.db.Exec(ctx, `INSERT INTO quote_items (quote_id, id, position, item_id, quantity, name, description,
unit_price, cost, expense, billing_type, profit_type, original_item_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			quoteID, l.ID, l.Position, l.ItemID, l.Quantity, l.Name, l.Description,
			l.UnitPrice, l.Cost, l.Expense, string(l.BillingType), string(l.ProfitType), l.OriginalItemID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (Quote, error) {
	var (
		q        Quote
		status   string
		override decimal.NullDecimal
		hours    decimal.NullDecimal
	)
	err := r.db.QueryRow(ctx, `SELECT id, promise_id, name, description, courtesy_item_ids, special_bonus,
closing_price_override, selected_condition_id, visible_condition_ids, pinned_condition_ids, event_duration_hours,
visible_to_client, status, created_at, updated_at
FROM quotes WHERE id = $1`, id).Scan(&q.ID, &q.PromiseID, &q.Name, &q.Description, &q.CourtesyItemIDs, &q.SpecialBonus,
		&override, &q.SelectedConditionID, &q.VisibleConditionIDs, &q.PinnedConditionIDs, &hours,
		&q.VisibleToClient, &status, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, shared.E(shared.KindNotFound, "quotes.Get", "quote %d not found", id)
	}
	if err != nil {
		return Quote{}, err
	}
	q.Status = Status(status)
	q.ClosingPriceOverride = fromNull(override)
	q.EventDurationHours = fromNull(hours)

	items, err := r.items(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	q.Items = items

	nc, err := r.negotiated(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	q.NegotiatedCondition = nc
	return q, nil
}

func (r *repository) items(ctx context.Context, quoteID int64) ([]LineItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, position, item_id, quantity, name, description, unit_price, cost, expense,
billing_type, profit_type, original_item_id
FROM quote_items WHERE quote_id = $1 ORDER BY position`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineItem
	for rows.Next() {
		var (
			l       LineItem
			billing string
			profit  string
		)
		if err := rows.Scan(&l.ID, &l.Position, &l.ItemID, &l.Quantity, &l.Name, &l.Description, &l.UnitPrice,
			&l.Cost, &l.Expense, &billing, &profit, &l.OriginalItemID); err != nil {
			return nil, err
		}
		l.BillingType = pricing.BillingType(billing)
		l.ProfitType = pricing.ProfitType(profit)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) negotiated(ctx context.Context, quoteID int64) (*NegotiatedCondition, error) {
	var (
		nc      NegotiatedCondition
		advance string
	)
	err := r.db.QueryRow(ctx, `SELECT id, quote_id, name, discount_percentage, advance_type, advance_value,
source_condition_id, frozen_at
FROM negotiated_conditions WHERE quote_id = $1`, quoteID).Scan(&nc.ID, &nc.QuoteID, &nc.Name, &nc.DiscountPercentage,
		&advance, &nc.AdvanceValue, &nc.SourceConditionID, &nc.FrozenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	nc.AdvanceType = pricing.AdvanceType(advance)
	return &nc, nil
}

func (r *repository) List(ctx context.Context, promiseID int64, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE promise_id = $1`, promiseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT q.id, q.promise_id, q.name, q.status, COALESCE(b.closing_price, 0),
COALESCE(b.health, ''), q.updated_at
FROM quotes q LEFT JOIN quote_breakdowns b ON b.quote_id = q.id
WHERE q.promise_id = $1 ORDER BY q.updated_at DESC, q.id DESC LIMIT $2 OFFSET $3`, promiseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			s      Summary
			status string
			health string
		)
		if err := rows.Scan(&s.ID, &s.PromiseID, &s.Name, &status, &s.ClosingPrice, &health, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		s.Status = Status(status)
		s.Health = pricing.Health(health)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, selectedConditionID *int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET status = $2, selected_condition_id = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), selectedConditionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "quotes.UpdateStatus", "quote %d not found", id)
	}
	return nil
}

func (r *repository) SaveNegotiatedCondition(ctx context.Context, nc NegotiatedCondition) error {
	if nc.ID == uuid.Nil {
		nc.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO negotiated_conditions (id, quote_id, name, discount_percentage, advance_type,
advance_value, source_condition_id, frozen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (quote_id) DO UPDATE SET id = EXCLUDED.id, name = EXCLUDED.name,
discount_percentage = EXCLUDED.discount_percentage, advance_type = EXCLUDED.advance_type,
advance_value = EXCLUDED.advance_value, source_condition_id = EXCLUDED.source_condition_id,
frozen_at = EXCLUDED.frozen_at`,
		nc.ID, nc.QuoteID, nc.Name, nc.DiscountPercentage, string(nc.AdvanceType), nc.AdvanceValue,
		nc.SourceConditionID, nc.FrozenAt)
	return err
}

func (r *repository) DeleteNegotiatedCondition(ctx context.Context, quoteID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM negotiated_conditions WHERE quote_id = $1`, quoteID)
	return err
}

func (r *repository) SaveBreakdown(ctx context.Context, quoteID int64, b pricing.Breakdown) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO quote_breakdowns (quote_id, breakdown, closing_price, health, computed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (quote_id) DO UPDATE SET breakdown = EXCLUDED.breakdown, closing_price = EXCLUDED.closing_price,
health = EXCLUDED.health, computed_at = EXCLUDED.computed_at`,
		quoteID, raw, b.ClosingPrice, string(b.Health), time.Now().UTC())
	return err
}

func (r *repository) ListOpenByItem(ctx context.Context, itemID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT q.id FROM quotes q
JOIN quote_items i ON i.quote_id = q.id
WHERE (i.item_id = $1 OR i.original_item_id = $1) AND q.status IN ('draft', 'published')
ORDER BY q.id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "quotes_promise_name_key" {
		return shared.Wrap(shared.KindDuplicateName, op, err)
	}
	return err
}

func fromNull(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
