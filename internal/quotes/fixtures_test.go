package quotes

import (
	"context"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func idPtr(v int64) *int64 { return &v }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// snapshotFixture prices with a 50% margin on both profit types and a 10%
// commission, so unit price is twice cost plus expense.
func snapshotFixture() catalog.Snapshot {
	return catalog.Snapshot{
		Items: map[int64]pricing.CatalogItem{
			1: {ID: 1, Name: "Fotografía", Cost: dec("300"), ExpenseBreakdown: []pricing.ExpenseEntry{{Label: "traslado", Amount: dec("200")}},
				ProfitType: pricing.ProfitService, BillingType: pricing.BillingService, Status: pricing.ItemActive},
			2: {ID: 2, Name: "Álbum", Cost: dec("50"), ProfitType: pricing.ProfitProduct, BillingType: pricing.BillingUnit, Status: pricing.ItemActive},
			3: {ID: 3, Name: "DJ", Cost: dec("25"), ProfitType: pricing.ProfitService, BillingType: pricing.BillingHour, Status: pricing.ItemActive},
		},
		Conditions: []pricing.Condition{
			{ID: 10, Name: "Contado", DiscountPercentage: dec("10"), AdvanceType: pricing.AdvancePercentage, AdvanceValue: dec("50"), IsPublic: true, Kind: pricing.ConditionStandard},
			{ID: 11, Name: "Plazos", AdvanceType: pricing.AdvanceFixedAmount, AdvanceValue: dec("300"), IsPublic: true, Kind: pricing.ConditionStandard},
			{ID: 12, Name: "Especial", DiscountPercentage: dec("20"), AdvanceType: pricing.AdvancePercentage, AdvanceValue: dec("30"), Kind: pricing.ConditionSpecial},
		},
		Config: pricing.Config{UtilityServiceRatio: dec("50"), UtilityProductRatio: dec("0.5"), CommissionRatio: dec("10")},
	}
}

// quoteFixture is one photography service plus two albums: subtotal 1200.
func quoteFixture() Quote {
	return Quote{
		ID:        1,
		PromiseID: 7,
		Name:      "Boda García",
		Items: []LineItem{
			{ID: "foto", Position: 0, ItemID: idPtr(1), Quantity: dec("1")},
			{ID: "album", Position: 1, ItemID: idPtr(2), Quantity: dec("2")},
		},
		SelectedConditionID: idPtr(10),
		VisibleConditionIDs: []int64{10, 11},
		Status:              StatusDraft,
	}
}

func payloadFixture() Payload {
	return Payload{
		PromiseID: 7,
		Name:      "Boda García",
		LineItems: []CatalogLinePayload{
			{ID: "foto", Position: 0, ItemID: 1, Quantity: dec("1")},
			{ID: "album", Position: 1, ItemID: 2, Quantity: dec("2")},
		},
		ConditionID: idPtr(10),
	}
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memRepo is a map backed Repository.
type memRepo struct {
	mu          sync.Mutex
	quotes      map[int64]Quote
	breakdowns  map[int64]pricing.Breakdown
	nextID      int64
	statusErr   error
	savedConds  int
	deletedCond int
}

func newMemRepo() *memRepo {
	return &memRepo{quotes: map[int64]Quote{}, breakdowns: map[int64]pricing.Breakdown{}, nextID: 1}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memRepo) nameTaken(q Quote) bool {
	key := shared.NameKey(q.Name)
	for id, other := range r.quotes {
		if id != q.ID && other.PromiseID == q.PromiseID && shared.NameKey(other.Name) == key {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(_ context.Context, q Quote) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nameTaken(q) {
		return 0, shared.E(shared.KindDuplicateName, "memRepo.Create", "%s", q.Name)
	}
	q.ID = r.nextID
	r.nextID++
	if q.NegotiatedCondition != nil {
		q.NegotiatedCondition.QuoteID = q.ID
	}
	r.quotes[q.ID] = q.Clone()
	return q.ID, nil
}

func (r *memRepo) Update(_ context.Context, q Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotes[q.ID]; !ok {
		return shared.E(shared.KindNotFound, "memRepo.Update", "quote %d", q.ID)
	}
	if r.nameTaken(q) {
		return shared.E(shared.KindDuplicateName, "memRepo.Update", "%s", q.Name)
	}
	r.quotes[q.ID] = q.Clone()
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok {
		return Quote{}, shared.E(shared.KindNotFound, "memRepo.Get", "quote %d", id)
	}
	return q.Clone(), nil
}

func (r *memRepo) List(_ context.Context, promiseID int64, limit, offset int) ([]Summary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Summary
	for _, q := range r.quotes {
		if q.PromiseID != promiseID {
			continue
		}
		b := r.breakdowns[q.ID]
		all = append(all, Summary{ID: q.ID, PromiseID: q.PromiseID, Name: q.Name, Status: q.Status, ClosingPrice: b.ClosingPrice, Health: b.Health})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id int64, status Status, selected *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statusErr != nil {
		return r.statusErr
	}
	q, ok := r.quotes[id]
	if !ok {
		return shared.E(shared.KindNotFound, "memRepo.UpdateStatus", "quote %d", id)
	}
	q.Status = status
	q.SelectedConditionID = clonePtr(selected)
	r.quotes[id] = q
	return nil
}

func (r *memRepo) SaveNegotiatedCondition(_ context.Context, nc NegotiatedCondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.quotes[nc.QuoteID]
	q.NegotiatedCondition = &nc
	r.quotes[nc.QuoteID] = q
	r.savedConds++
	return nil
}

func (r *memRepo) DeleteNegotiatedCondition(_ context.Context, quoteID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.quotes[quoteID]
	q.NegotiatedCondition = nil
	r.quotes[quoteID] = q
	r.deletedCond++
	return nil
}

func (r *memRepo) SaveBreakdown(_ context.Context, quoteID int64, b pricing.Breakdown) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakdowns[quoteID] = b
	return nil
}

func (r *memRepo) ListOpenByItem(_ context.Context, itemID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, q := range r.quotes {
		if q.Status != StatusDraft && q.Status != StatusPublished {
			continue
		}
		if slices.ContainsFunc(q.Items, func(l LineItem) bool {
			return (l.ItemID != nil && *l.ItemID == itemID) || (l.OriginalItemID != nil && *l.OriginalItemID == itemID)
		}) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// stubCatalog serves a fixed snapshot and records promotions.
type stubCatalog struct {
	mu       sync.Mutex
	snap     catalog.Snapshot
	promoted []catalog.PromoteInput
}

func newStubCatalog() *stubCatalog { return &stubCatalog{snap: snapshotFixture()} }

func (c *stubCatalog) Snapshot(context.Context) (catalog.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, nil
}

func (c *stubCatalog) PromoteCustomItem(_ context.Context, in catalog.PromoteInput) (pricing.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promoted = append(c.promoted, in)
	item := pricing.CatalogItem{ID: int64(100 + len(c.promoted)), Name: in.Name, Cost: in.Cost, ProfitType: in.ProfitType, BillingType: in.BillingType, Status: pricing.ItemActive}
	if item.ProfitType == "" {
		item.ProfitType = pricing.ProfitService
	}
	if in.Expense.IsPositive() {
		item.ExpenseBreakdown = []pricing.ExpenseEntry{{Label: "gastos", Amount: in.Expense}}
	}
	items := make(map[int64]pricing.CatalogItem, len(c.snap.Items)+1)
	for k, v := range c.snap.Items {
		items[k] = v
	}
	items[item.ID] = item
	c.snap.Items = items
	return item, nil
}

func (c *stubCatalog) setItem(item pricing.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make(map[int64]pricing.CatalogItem, len(c.snap.Items))
	for k, v := range c.snap.Items {
		items[k] = v
	}
	items[item.ID] = item
	c.snap.Items = items
}

// memIdempotency mirrors the PostgreSQL idempotency store.
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdempotency() *memIdempotency { return &memIdempotency{keys: map[string]string{}} }

func (m *memIdempotency) Reserve(_ context.Context, _, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		return id, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *memIdempotency) Complete(_ context.Context, _, key, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = resourceID
	return nil
}

func (m *memIdempotency) Release(_ context.Context, _, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == "" {
		delete(m.keys, key)
	}
	return nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, e shared.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, e)
	return nil
}

type countingMetrics struct {
	mu          sync.Mutex
	transitions []string
	health      map[string]int
	busy        int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{health: map[string]int{}} }

func (m *countingMetrics) ObserveTransition(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *countingMetrics) ObserveHealth(h string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[h]++
}

func (m *countingMetrics) ObserveBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy++
}
