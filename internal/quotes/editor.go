package quotes

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Editor is a single-operator editing session over one quote. It keeps the
// negotiation dirty flag and the closing price resync signal, and
// recomputes the breakdown after every change.
type Editor struct {
	quote   Quote
	snap    catalog.Snapshot
	adjust  pricing.Adjuster
	closing *pricing.ClosingResolver
	result  pricing.Result
	now     func() time.Time
	ttl     time.Duration
}

// EditorOption customises an Editor.
type EditorOption func(*Editor)

// WithClock sets the time source used for the resync signal.
func WithClock(now func() time.Time) EditorOption {
	return func(e *Editor) { e.now = now }
}

// WithResyncTTL sets how long the resync signal stays raised.
func WithResyncTTL(ttl time.Duration) EditorOption {
	return func(e *Editor) { e.ttl = ttl }
}

// NewEditor loads q against the catalog snapshot. A quote without a
// visible condition set starts with every public condition visible; while
// courtesy or bonus is active, unpinned discounting conditions are hidden.
func NewEditor(q Quote, snap catalog.Snapshot, opts ...EditorOption) (*Editor, error) {
	e := &Editor{quote: q.Clone(), snap: snap, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.closing = pricing.NewClosingResolver(e.quote.ClosingPriceOverride, e.ttl)
	if e.quote.ID == 0 && len(e.quote.VisibleConditionIDs) == 0 {
		e.quote.VisibleConditionIDs = pricing.DefaultVisible(snap.Conditions)
	}
	if err := e.compute(); err != nil {
		return nil, err
	}
	if e.result.Negotiation.Active() {
		e.hideDiscounts()
	}
	e.adjust.MarkLoaded()
	return e, nil
}

// Quote returns a copy of the edited quote.
func (e *Editor) Quote() Quote {
	q := e.quote.Clone()
	q.ClosingPriceOverride = e.closing.Override()
	return q
}

// Result returns the last computed result.
func (e *Editor) Result() pricing.Result { return e.result }

// Breakdown returns the last computed breakdown.
func (e *Editor) Breakdown() pricing.Breakdown { return e.result.Breakdown }

// WhatIf evaluates every visible condition against the current totals
// without changing the selection.
func (e *Editor) WhatIf() []pricing.Scenario {
	return pricing.WhatIf(e.result.Negotiation.ProjectedSubtotal, e.result.Totals, e.snap.Conditions, e.quote.VisibleConditionIDs, e.result.Config)
}

// Dirty reports whether the operator changed lines, courtesy or bonus.
func (e *Editor) Dirty() bool { return e.adjust.Dirty() }

// Signal returns the closing price resync signal.
func (e *Editor) Signal() pricing.ResyncSignal { return e.closing.Signal() }

// ClearResyncSignal drops the signal once it has expired.
func (e *Editor) ClearResyncSignal() bool { return e.closing.ClearSignal(e.now()) }

// AddLine appends a line. A missing id is generated.
func (e *Editor) AddLine(line LineItem) error {
	const op = "quotes.AddLine"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if _, ok := e.quote.Line(line.ID); ok {
		return shared.E(shared.KindInvalidInput, op, "line %s already exists", line.ID)
	}
	if line.Quantity.IsNegative() {
		return shared.E(shared.KindInvalidInput, op, "quantity must not be negative")
	}
	if line.ItemID != nil {
		if _, ok := e.snap.Items[*line.ItemID]; !ok {
			return shared.E(shared.KindInvalidInput, op, "unknown catalog item %d", *line.ItemID)
		}
	}
	line.Position = len(e.quote.Items)
	return e.mutate(true, func(q *Quote) error {
		q.Items = append(q.Items, line)
		return nil
	})
}

// RemoveLine drops a line and prunes it from the courtesy set.
func (e *Editor) RemoveLine(id string) error {
	const op = "quotes.RemoveLine"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	idx := slices.IndexFunc(e.quote.Items, func(l LineItem) bool { return l.ID == id })
	if idx < 0 {
		return shared.E(shared.KindInvalidInput, op, "unknown line %s", id)
	}
	return e.mutate(true, func(q *Quote) error {
		q.Items = slices.Delete(q.Items, idx, idx+1)
		q.CourtesyItemIDs = slices.DeleteFunc(q.CourtesyItemIDs, func(c string) bool { return c == id })
		renumber(q.Items)
		return nil
	})
}

// Reorder sets the line order. ids must be a permutation of the current ids.
func (e *Editor) Reorder(ids []string) error {
	const op = "quotes.Reorder"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if len(ids) != len(e.quote.Items) {
		return shared.E(shared.KindInvalidInput, op, "expected %d line ids, got %d", len(e.quote.Items), len(ids))
	}
	ordered := make([]LineItem, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		l, ok := e.quote.Line(id)
		if !ok {
			return shared.E(shared.KindInvalidInput, op, "unknown line %s", id)
		}
		if _, dup := seen[id]; dup {
			return shared.E(shared.KindInvalidInput, op, "line %s listed twice", id)
		}
		seen[id] = struct{}{}
		ordered = append(ordered, l)
	}
	renumber(ordered)
	e.quote.Items = ordered
	return nil
}

// ToggleCourtesy flips the courtesy flag of a line.
func (e *Editor) ToggleCourtesy(id string) error {
	const op = "quotes.ToggleCourtesy"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if _, ok := e.quote.Line(id); !ok {
		return shared.E(shared.KindInvalidInput, op, "unknown line %s", id)
	}
	return e.mutate(true, func(q *Quote) error {
		if slices.Contains(q.CourtesyItemIDs, id) {
			q.CourtesyItemIDs = slices.DeleteFunc(q.CourtesyItemIDs, func(c string) bool { return c == id })
		} else {
			q.CourtesyItemIDs = append(q.CourtesyItemIDs, id)
		}
		return nil
	})
}

// SetBonus sets the special bonus.
func (e *Editor) SetBonus(v decimal.Decimal) error {
	const op = "quotes.SetBonus"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if v.IsNegative() {
		return shared.E(shared.KindInvalidInput, op, "bonus must not be negative")
	}
	return e.mutate(true, func(q *Quote) error {
		q.SpecialBonus = v
		return nil
	})
}

// SelectCondition selects a standard condition, or clears the selection
// when id is nil. Any negotiated condition is dropped.
func (e *Editor) SelectCondition(id *int64) error {
	const op = "quotes.SelectCondition"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if id != nil {
		if _, ok := e.snap.Condition(*id); !ok {
			return shared.E(shared.KindInvalidInput, op, "unknown condition %d", *id)
		}
	}
	return e.mutate(false, func(q *Quote) error {
		q.SelectedConditionID = clonePtr(id)
		q.NegotiatedCondition = nil
		return nil
	})
}

// SetNegotiatedCondition installs quote-specific terms and clears the
// standard selection.
func (e *Editor) SetNegotiatedCondition(terms pricing.Terms) error {
	const op = "quotes.SetNegotiatedCondition"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if terms.DiscountPercentage.IsNegative() || terms.AdvanceValue.IsNegative() {
		return shared.E(shared.KindInvalidInput, op, "negotiated terms must not be negative")
	}
	return e.mutate(false, func(q *Quote) error {
		nc := &NegotiatedCondition{ID: uuid.New(), QuoteID: q.ID}
		if q.NegotiatedCondition != nil && !q.NegotiatedCondition.Frozen() {
			nc.ID = q.NegotiatedCondition.ID
		}
		nc.Name = terms.Name
		nc.DiscountPercentage = terms.DiscountPercentage
		nc.AdvanceType = terms.AdvanceType
		nc.AdvanceValue = terms.AdvanceValue
		q.NegotiatedCondition = nc
		q.SelectedConditionID = nil
		return nil
	})
}

// PinCondition shows a condition and keeps it visible while adjustments
// are active.
func (e *Editor) PinCondition(id int64) error {
	if _, ok := e.snap.Condition(id); !ok {
		return shared.E(shared.KindInvalidInput, "quotes.PinCondition", "unknown condition %d", id)
	}
	if !slices.Contains(e.quote.PinnedConditionIDs, id) {
		e.quote.PinnedConditionIDs = append(e.quote.PinnedConditionIDs, id)
	}
	if !slices.Contains(e.quote.VisibleConditionIDs, id) {
		e.quote.VisibleConditionIDs = append(e.quote.VisibleConditionIDs, id)
	}
	return nil
}

// HideCondition removes a condition from the visible and pinned sets.
func (e *Editor) HideCondition(id int64) {
	drop := func(v int64) bool { return v == id }
	e.quote.VisibleConditionIDs = slices.DeleteFunc(e.quote.VisibleConditionIDs, drop)
	e.quote.PinnedConditionIDs = slices.DeleteFunc(e.quote.PinnedConditionIDs, drop)
}

// SetClosingPrice records a manual edit of the closing price. Nil or zero
// falls back to the suggested price.
func (e *Editor) SetClosingPrice(v *decimal.Decimal) error {
	const op = "quotes.SetClosingPrice"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if v != nil && v.IsNegative() {
		return shared.E(shared.KindInvalidInput, op, "closing price must not be negative")
	}
	prev := e.closing.Override()
	e.closing.Manual(v)
	if err := e.compute(); err != nil {
		e.closing.Manual(prev)
		return err
	}
	return nil
}

// SetEventDuration sets the event length used by hourly lines.
func (e *Editor) SetEventDuration(hours *decimal.Decimal) error {
	const op = "quotes.SetEventDuration"
	if err := GuardMutation(e.quote, op); err != nil {
		return err
	}
	if hours != nil && hours.IsNegative() {
		return shared.E(shared.KindInvalidInput, op, "event duration must not be negative")
	}
	return e.mutate(false, func(q *Quote) error {
		q.EventDurationHours = clonePtr(hours)
		return nil
	})
}

// ApplyLineCommand applies cmd locally, then asks confirm to persist the
// resulting quote. When confirm fails the session is restored to its
// state before the command.
func (e *Editor) ApplyLineCommand(ctx context.Context, cmd LineCommand, confirm func(context.Context, Quote) error) error {
	saved := e.save()
	if err := cmd.Apply(e); err != nil {
		return err
	}
	if confirm == nil {
		return nil
	}
	if err := confirm(ctx, e.Quote()); err != nil {
		e.restore(saved)
		return err
	}
	return nil
}

type editorState struct {
	quote   Quote
	adjust  pricing.Adjuster
	closing pricing.ClosingResolver
	result  pricing.Result
}

func (e *Editor) save() editorState {
	return editorState{quote: e.quote.Clone(), adjust: e.adjust, closing: *e.closing, result: e.result}
}

func (e *Editor) restore(s editorState) {
	e.quote = s.quote
	e.adjust = s.adjust
	c := s.closing
	e.closing = &c
	e.result = s.result
}

// mutate applies fn to a copy, recomputes and commits. touch marks the
// negotiation dirty. Upstream changes resync the closing price when dirty.
func (e *Editor) mutate(touch bool, fn func(*Quote) error) error {
	saved := e.save()
	if err := fn(&e.quote); err != nil {
		e.restore(saved)
		return err
	}
	if touch {
		e.adjust.Touch()
	}
	if err := e.compute(); err != nil {
		e.restore(saved)
		return err
	}
	if e.closing.Upstream(e.result.Breakdown.SuggestedPrice, e.adjust.Dirty(), e.now()) {
		if err := e.compute(); err != nil {
			e.restore(saved)
			return err
		}
	}
	e.hideDiscounts()
	return nil
}

func (e *Editor) hideDiscounts() {
	e.quote.VisibleConditionIDs = pricing.ApplyVisibilityRule(
		e.quote.VisibleConditionIDs, e.snap.Conditions, e.result.Negotiation.Active(), e.quote.PinnedConditionIDs)
}

func (e *Editor) compute() error {
	q := e.quote
	q.ClosingPriceOverride = e.closing.Override()
	res, err := pricing.Compute(q.PricingInput(e.snap))
	if err != nil {
		return err
	}
	e.result = res
	return nil
}

func renumber(items []LineItem) {
	for i := range items {
		items[i].Position = i
	}
}
