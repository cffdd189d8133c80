package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const idempotencyScope = "quotes.create"

// CatalogPort is the catalog collaborator used by the service.
type CatalogPort interface {
	Snapshot(ctx context.Context) (catalog.Snapshot, error)
	PromoteCustomItem(ctx context.Context, in catalog.PromoteInput) (pricing.CatalogItem, error)
}

// AuditPort records lifecycle transitions.
type AuditPort interface {
	Record(ctx context.Context, e shared.AuditEntry) error
}

// IdempotencyPort de-duplicates create requests.
type IdempotencyPort interface {
	Reserve(ctx context.Context, scope, key string) (resourceID string, reserved bool, err error)
	Complete(ctx context.Context, scope, key, resourceID string) error
	Release(ctx context.Context, scope, key string) error
}

// MetricsPort receives quote counters.
type MetricsPort interface {
	ObserveTransition(from, to string)
	ObserveHealth(health string)
	ObserveBusy()
}

// Service orchestrates quote persistence around the pricing engine.
type Service struct {
	repo        Repository
	catalog     CatalogPort
	guard       shared.Guard
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	logger      *slog.Logger
	resyncTTL   time.Duration
	now         func() time.Time
}

// Deps groups the optional collaborators of a Service.
type Deps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	ResyncTTL   time.Duration
}

// NewService constructs the quote service. A nil guard falls back to an
// in-process guard.
func NewService(repo Repository, cat CatalogPort, guard shared.Guard, logger *slog.Logger, deps Deps) *Service {
	if guard == nil {
		guard = shared.NewLocalGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		catalog:     cat,
		guard:       guard,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		logger:      logger,
		resyncTTL:   deps.ResyncTTL,
		now:         time.Now,
	}
}

// Create validates, prices and stores a new draft quote. A non-empty
// idempotency key returns the quote created by an earlier identical call.
func (s *Service) Create(ctx context.Context, p Payload, idempotencyKey string) (CreateResult, error) {
	release, err := s.acquire(ctx, promiseLockKey(p.PromiseID))
	if err != nil {
		return CreateResult{}, err
	}
	defer release()

	if idempotencyKey != "" && s.idempotency != nil {
		prior, reserved, err := s.idempotency.Reserve(ctx, idempotencyScope, idempotencyKey)
		if err != nil {
			return CreateResult{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !reserved {
			return s.replay(ctx, idempotencyKey, prior)
		}
	}

	res, err := s.create(ctx, p)
	if idempotencyKey != "" && s.idempotency != nil {
		if err != nil {
			if rerr := s.idempotency.Release(ctx, idempotencyScope, idempotencyKey); rerr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", rerr))
			}
		} else if cerr := s.idempotency.Complete(ctx, idempotencyScope, idempotencyKey, strconv.FormatInt(res.ID, 10)); cerr != nil {
			s.logger.Warn("complete idempotency key", slog.String("key", idempotencyKey), slog.Any("error", cerr))
		}
	}
	return res, err
}

// RetryWithName stores a payload that failed with DuplicateName under a
// new name. Nothing else in the payload is re-derived.
func (s *Service) RetryWithName(ctx context.Context, p Payload, name string) (CreateResult, error) {
	p.Name = name
	return s.Create(ctx, p, "")
}

func (s *Service) replay(ctx context.Context, key, raw string) (CreateResult, error) {
	if raw == "" {
		return CreateResult{}, shared.E(shared.KindBusy, "quotes.Create", "request %s is still being processed", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return CreateResult{}, fmt.Errorf("parse idempotent resource: %w", err)
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{ID: q.ID, Status: q.Status, PromiseID: q.PromiseID}, nil
}

func (s *Service) create(ctx context.Context, p Payload) (CreateResult, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load catalog: %w", err)
	}
	q, err := s.prepare(p, snap)
	if err != nil {
		return CreateResult{}, err
	}
	if err := s.promote(ctx, &q, &snap); err != nil {
		return CreateResult{}, err
	}
	now := s.now().UTC()
	q.Status = StatusDraft
	q.CreatedAt, q.UpdatedAt = now, now
	if len(q.VisibleConditionIDs) == 0 {
		q.VisibleConditionIDs = pricing.DefaultVisible(snap.Conditions)
	}
	if q.NegotiatedCondition != nil {
		q.NegotiatedCondition.ID = uuid.New()
	}
	q, breakdown, err := s.price(q, snap)
	if err != nil {
		return CreateResult{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, q)
		if err != nil {
			return err
		}
		q.ID = id
		return repo.SaveBreakdown(ctx, id, breakdown)
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create quote: %w", err)
	}
	s.logger.Info("quote created", slog.Int64("quote_id", q.ID), slog.Int64("promise_id", q.PromiseID), slog.String("health", string(breakdown.Health)))
	return CreateResult{ID: q.ID, Status: q.Status, PromiseID: q.PromiseID}, nil
}

// Update replaces the editable content of a quote. An authorised quote
// only accepts changes that leave its commercial terms untouched; a quote
// in en_cierre keeps its frozen condition.
func (s *Service) Update(ctx context.Context, id int64, p Payload) (UpdateResult, error) {
	const op = "quotes.Update"
	release, err := s.acquire(ctx, shared.QuoteLockKey(id))
	if err != nil {
		return UpdateResult{}, err
	}
	defer release()

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("load catalog: %w", err)
	}
	if existing.Status == StatusClosing {
		p.ConditionID = nil
		p.NegotiatedCondition = nil
	}
	q, err := s.prepare(p, snap)
	if err != nil {
		return UpdateResult{}, err
	}
	q.ID = existing.ID
	q.PromiseID = existing.PromiseID
	q.Status = existing.Status
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = s.now().UTC()
	if existing.Status == StatusAuthorized && (CommercialChanged(existing, q) || q.promotes()) {
		return UpdateResult{}, shared.E(shared.KindImmutable, op, "quote %d is authorised", id)
	}
	if err := s.promote(ctx, &q, &snap); err != nil {
		return UpdateResult{}, err
	}
	switch {
	case existing.Status == StatusClosing || existing.Status == StatusAuthorized:
		q.SelectedConditionID = existing.SelectedConditionID
		q.NegotiatedCondition = existing.NegotiatedCondition
	case q.NegotiatedCondition != nil && existing.NegotiatedCondition != nil:
		q.NegotiatedCondition.ID = existing.NegotiatedCondition.ID
		q.NegotiatedCondition.QuoteID = id
	case q.NegotiatedCondition != nil:
		q.NegotiatedCondition.ID = uuid.New()
		q.NegotiatedCondition.QuoteID = id
	}
	q, breakdown, err := s.price(q, snap)
	if err != nil {
		return UpdateResult{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		return repo.SaveBreakdown(ctx, id, breakdown)
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update quote: %w", err)
	}
	return UpdateResult{ID: id, Status: q.Status}, nil
}

// Get returns a quote.
func (s *Service) Get(ctx context.Context, id int64) (Quote, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of quotes for a promise.
func (s *Service) List(ctx context.Context, promiseID int64, page, perPage int) ([]Summary, shared.Page, error) {
	p := shared.NewPage(page, perPage, 0)
	items, total, err := s.repo.List(ctx, promiseID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Page{}, fmt.Errorf("list quotes: %w", err)
	}
	return items, p.WithTotal(total), nil
}

// Breakdown prices a stored quote against the current catalog.
func (s *Service) Breakdown(ctx context.Context, id int64) (pricing.Breakdown, error) {
	ed, err := s.editor(ctx, id)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	b := ed.Breakdown()
	if s.metrics != nil {
		s.metrics.ObserveHealth(string(b.Health))
	}
	return b, nil
}

// WhatIf evaluates every visible condition for a stored quote.
func (s *Service) WhatIf(ctx context.Context, id int64) ([]pricing.Scenario, error) {
	ed, err := s.editor(ctx, id)
	if err != nil {
		return nil, err
	}
	return ed.WhatIf(), nil
}

// Transition moves a quote through its lifecycle. Entering en_cierre
// persists the frozen condition first and removes it again when the status
// write fails.
func (s *Service) Transition(ctx context.Context, id int64, to Status, actor string) (Quote, error) {
	release, err := s.acquire(ctx, shared.QuoteLockKey(id))
	if err != nil {
		return Quote{}, err
	}
	defer release()

	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("load catalog: %w", err)
	}
	next, err := Transition(q, to, snap.Conditions, s.now().UTC())
	if err != nil {
		return Quote{}, err
	}

	switch {
	case to == StatusClosing:
		if err := s.closeQuote(ctx, q, next); err != nil {
			return Quote{}, err
		}
	case q.Status == StatusClosing && to == StatusDraft:
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			if next.NegotiatedCondition == nil {
				if err := repo.DeleteNegotiatedCondition(ctx, id); err != nil {
					return err
				}
			} else if err := repo.SaveNegotiatedCondition(ctx, *next.NegotiatedCondition); err != nil {
				return err
			}
			return repo.UpdateStatus(ctx, id, next.Status, next.SelectedConditionID)
		})
		if err != nil {
			return Quote{}, fmt.Errorf("abort closing: %w", err)
		}
	default:
		if err := s.repo.UpdateStatus(ctx, id, next.Status, next.SelectedConditionID); err != nil {
			return Quote{}, fmt.Errorf("update status: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(q.Status), string(next.Status))
	}
	s.recordAudit(ctx, shared.AuditEntry{QuoteID: id, Actor: actor, Action: "QUOTE_TRANSITION", From: string(q.Status), To: string(next.Status)})
	s.logger.Info("quote transitioned", slog.Int64("quote_id", id), slog.String("from", string(q.Status)), slog.String("to", string(next.Status)))
	return next, nil
}

func (s *Service) closeQuote(ctx context.Context, prev, next Quote) error {
	if err := s.repo.SaveNegotiatedCondition(ctx, *next.NegotiatedCondition); err != nil {
		return fmt.Errorf("save condition snapshot: %w", err)
	}
	err := s.repo.UpdateStatus(ctx, next.ID, next.Status, nil)
	if err == nil {
		return nil
	}
	var cerr error
	if prev.NegotiatedCondition != nil {
		cerr = s.repo.SaveNegotiatedCondition(ctx, *prev.NegotiatedCondition)
	} else {
		cerr = s.repo.DeleteNegotiatedCondition(ctx, next.ID)
	}
	if cerr != nil {
		s.logger.Error("compensate condition snapshot", slog.Int64("quote_id", next.ID), slog.Any("error", cerr))
	}
	return fmt.Errorf("update status: %w", err)
}

// Duplicate copies a quote under a new name as a fresh draft. A frozen
// condition is replaced by the standard condition it was taken from.
func (s *Service) Duplicate(ctx context.Context, id int64, name string) (CreateResult, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}
	if nc := q.NegotiatedCondition; nc != nil && nc.Frozen() {
		restore(&q)
	}
	p := PayloadFromQuote(q)
	p.Name = name
	return s.Create(ctx, p, "")
}

// ResyncSnapshotFromCatalog refreshes custom lines that were copied from a
// catalog item with the item's current values.
func (s *Service) ResyncSnapshotFromCatalog(ctx context.Context, id int64) (Quote, error) {
	const op = "quotes.ResyncSnapshotFromCatalog"
	release, err := s.acquire(ctx, shared.QuoteLockKey(id))
	if err != nil {
		return Quote{}, err
	}
	defer release()

	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if err := GuardMutation(q, op); err != nil {
		return Quote{}, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("load catalog: %w", err)
	}
	cfg, err := pricing.Normalize(&snap.Config)
	if err != nil {
		return Quote{}, err
	}
	changed := 0
	for i, l := range q.Items {
		if !l.Custom() || l.OriginalItemID == nil {
			continue
		}
		item, ok := snap.Items[*l.OriginalItemID]
		if !ok {
			continue
		}
		unit, err := pricing.UnitPrice(item.Cost, item.Expense(), item.ProfitType, cfg)
		if err != nil {
			return Quote{}, err
		}
		l.Name = item.Name
		l.UnitPrice = unit
		l.Cost = item.Cost
		l.Expense = item.Expense()
		l.ProfitType = item.ProfitType
		l.BillingType = item.BillingType
		q.Items[i] = l
		changed++
	}
	if changed == 0 {
		return q, nil
	}
	q, breakdown, err := s.price(q, snap)
	if err != nil {
		return Quote{}, err
	}
	q.UpdatedAt = s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		return repo.SaveBreakdown(ctx, id, breakdown)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("resync quote: %w", err)
	}
	s.logger.Info("quote resynced from catalog", slog.Int64("quote_id", id), slog.Int("lines", changed))
	return q, nil
}

// RefreshForCatalogItem recomputes the stored breakdown of every open quote
// that references the item and returns the health of each refreshed quote.
func (s *Service) RefreshForCatalogItem(ctx context.Context, itemID int64) (map[pricing.Health]int, error) {
	ids, err := s.repo.ListOpenByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list quotes for item %d: %w", itemID, err)
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	out := make(map[pricing.Health]int)
	for _, id := range ids {
		q, err := s.repo.Get(ctx, id)
		if err != nil {
			return out, err
		}
		_, breakdown, err := s.price(q, snap)
		if err != nil {
			s.logger.Warn("refresh quote breakdown", slog.Int64("quote_id", id), slog.Any("error", err))
			continue
		}
		if err := s.repo.SaveBreakdown(ctx, id, breakdown); err != nil {
			return out, fmt.Errorf("save breakdown %d: %w", id, err)
		}
		out[breakdown.Health]++
	}
	return out, nil
}

// prepare validates the payload against the catalog and assigns line ids.
// It has no side effects.
func (s *Service) prepare(p Payload, snap catalog.Snapshot) (Quote, error) {
	res := ValidatePayload(p)
	q := p.ToQuote()
	for i := range q.Items {
		if q.Items[i].ID == "" {
			q.Items[i].ID = uuid.NewString()
		}
	}
	merge(res, Validate(q, snap.Items, snap.Conditions))
	if err := res.Err(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// promote turns flagged custom lines into catalog items and relinks the
// lines to them. snap gains the new items.
func (s *Service) promote(ctx context.Context, q *Quote, snap *catalog.Snapshot) error {
	for i, l := range q.Items {
		if !l.Custom() || !l.PromoteToCatalog {
			continue
		}
		item, err := s.catalog.PromoteCustomItem(ctx, catalog.PromoteInput{
			Name:        l.Name,
			Cost:        l.Cost,
			Expense:     l.Expense,
			ProfitType:  l.ProfitType,
			BillingType: l.BillingType,
		})
		if err != nil {
			return fmt.Errorf("promote line %s: %w", l.ID, err)
		}
		items := make(map[int64]pricing.CatalogItem, len(snap.Items)+1)
		for k, v := range snap.Items {
			items[k] = v
		}
		items[item.ID] = item
		snap.Items = items
		itemID := item.ID
		q.Items[i] = LineItem{ID: l.ID, Position: l.Position, ItemID: &itemID, Quantity: l.Quantity}
	}
	return nil
}

// price computes the breakdown of q and returns q with the visible
// condition set the editor settled on.
func (s *Service) price(q Quote, snap catalog.Snapshot) (Quote, pricing.Breakdown, error) {
	ed, err := NewEditor(q, snap, WithClock(s.now), WithResyncTTL(s.resyncTTL))
	if err != nil {
		return Quote{}, pricing.Breakdown{}, err
	}
	q.VisibleConditionIDs = ed.Quote().VisibleConditionIDs
	b := ed.Breakdown()
	if s.metrics != nil {
		s.metrics.ObserveHealth(string(b.Health))
	}
	s.logger.Debug("breakdown computed",
		slog.Int64("quote_id", q.ID),
		slog.String("closing_price", b.ClosingPrice.String()),
		slog.String("margin_pct", b.MarginPct.String()),
		slog.String("health", string(b.Health)))
	return q, b, nil
}

func (s *Service) editor(ctx context.Context, id int64) (*Editor, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return NewEditor(q, snap, WithClock(s.now), WithResyncTTL(s.resyncTTL))
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrBusy) && s.metrics != nil {
			s.metrics.ObserveBusy()
		}
		return nil, err
	}
	return release, nil
}

func (s *Service) recordAudit(ctx context.Context, e shared.AuditEntry) {
	if s.audit == nil {
		return
	}
	e.At = s.now().UTC()
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Warn("record audit", slog.Int64("quote_id", e.QuoteID), slog.Any("error", err))
	}
}

func promiseLockKey(promiseID int64) string {
	return fmt.Sprintf("quotes:promise:%d:create", promiseID)
}
