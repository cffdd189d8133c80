package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// ItemChangeNotifier is told about catalog item edits so open quotes can
// refresh their computed breakdowns.
type ItemChangeNotifier interface {
	NotifyItemUpdated(ctx context.Context, itemID int64) error
}

// Service serves catalog snapshots and catalog mutations.
type Service struct {
	repo     Repository
	cache    *SnapshotCache
	notifier ItemChangeNotifier
	logger   *slog.Logger
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
}

// NewService constructs the catalog service. cache and notifier are optional.
func NewService(repo Repository, cache *SnapshotCache, notifier ItemChangeNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Snapshot returns items, conditions and pricing config. Concurrent callers
// share one load; the result is cached until the next catalog mutation.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok, err := s.cache.Get(ctx); err != nil {
		s.logger.Warn("catalog cache get", slog.Any("error", err))
	} else if ok {
		return snap, nil
	}

	ch := s.group.DoChan(snapshotCacheKey, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (s *Service) load(ctx context.Context) (Snapshot, error) {
	var (
		items      []pricing.CatalogItem
		conditions []pricing.Condition
		cfg        *pricing.Config
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.ListItems(gctx)
		if err != nil {
			return fmt.Errorf("list catalog items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		conditions, err = s.repo.ListConditions(gctx)
		if err != nil {
			return fmt.Errorf("list commercial conditions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cfg, err = s.repo.PricingConfig(gctx)
		if err != nil {
			return fmt.Errorf("load pricing config: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Items:      make(map[int64]pricing.CatalogItem, len(items)),
		Conditions: conditions,
		LoadedAt:   s.now().UTC(),
	}
	for _, item := range items {
		snap.Items[item.ID] = item
	}
	if cfg != nil {
		snap.Config = *cfg
	}
	if _, err := pricing.Normalize(&snap.Config); err != nil {
		return Snapshot{}, err
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("catalog cache set", slog.Any("error", err))
	}
	return snap, nil
}

// UpdateItem edits a catalog item. It never touches quote snapshots; quotes
// pull catalog values only through an explicit resync.
func (s *Service) UpdateItem(ctx context.Context, id int64, in UpdateItemInput) (pricing.CatalogItem, error) {
	const op = "catalog.UpdateItem"
	if err := s.validate.Struct(in); err != nil {
		return pricing.CatalogItem{}, shared.Wrap(shared.KindInvalidInput, op, err)
	}
	if in.Cost.IsNegative() {
		return pricing.CatalogItem{}, shared.E(shared.KindInvalidInput, op, "cost must not be negative")
	}
	for _, e := range in.ExpenseBreakdown {
		if e.Amount.IsNegative() {
			return pricing.CatalogItem{}, shared.E(shared.KindInvalidInput, op, "expense %q must not be negative", e.Label)
		}
	}
	if _, err := s.repo.GetItem(ctx, id); err != nil {
		return pricing.CatalogItem{}, err
	}
	item := pricing.CatalogItem{
		ID:               id,
		Name:             in.Name,
		Cost:             in.Cost,
		ExpenseBreakdown: in.ExpenseBreakdown,
		ProfitType:       in.ProfitType,
		BillingType:      in.BillingType,
		Status:           in.Status,
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return pricing.CatalogItem{}, fmt.Errorf("update catalog item: %w", err)
	}
	s.invalidate(ctx)
	if s.notifier != nil {
		if err := s.notifier.NotifyItemUpdated(ctx, id); err != nil {
			s.logger.Warn("notify catalog item update", slog.Int64("item_id", id), slog.Any("error", err))
		}
	}
	return item, nil
}

// PromoteCustomItem creates a catalog item from a custom quote line and
// returns the new item.
func (s *Service) PromoteCustomItem(ctx context.Context, in PromoteInput) (pricing.CatalogItem, error) {
	const op = "catalog.PromoteCustomItem"
	if err := s.validate.Struct(in); err != nil {
		return pricing.CatalogItem{}, shared.Wrap(shared.KindInvalidInput, op, err)
	}
	if in.Cost.IsNegative() || in.Expense.IsNegative() {
		return pricing.CatalogItem{}, shared.E(shared.KindInvalidInput, op, "cost and expense must not be negative")
	}
	profit := in.ProfitType
	if profit == "" {
		profit = pricing.ProfitService
	}
	if !profit.Valid() {
		return pricing.CatalogItem{}, shared.E(shared.KindInvalidInput, op, "unknown profit type %q", profit)
	}
	item := pricing.CatalogItem{
		Name:        in.Name,
		Cost:        in.Cost,
		ProfitType:  profit,
		BillingType: in.BillingType,
		Status:      pricing.ItemActive,
	}
	if in.Expense.IsPositive() {
		item.ExpenseBreakdown = []pricing.ExpenseEntry{{Label: "gastos", Amount: in.Expense}}
	}
	id, err := s.repo.InsertItem(ctx, item)
	if err != nil {
		return pricing.CatalogItem{}, fmt.Errorf("insert catalog item: %w", err)
	}
	item.ID = id
	s.invalidate(ctx)
	return item, nil
}

func (s *Service) invalidate(ctx context.Context) {
	s.group.Forget(snapshotCacheKey)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog cache invalidate", slog.Any("error", err))
	}
}
