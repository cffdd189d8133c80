package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

type stubRepo struct {
	mu         sync.Mutex
	items      map[int64]pricing.CatalogItem
	conditions []pricing.Condition
	cfg        *pricing.Config
	nextID     int64
	listCalls  atomic.Int32
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		items: map[int64]pricing.CatalogItem{
			1: {ID: 1, Name: "Fotografía", Cost: decimal.NewFromInt(60), ProfitType: pricing.ProfitService, BillingType: pricing.BillingHour, Status: pricing.ItemActive},
		},
		conditions: []pricing.Condition{
			{ID: 10, Name: "Contado", DiscountPercentage: decimal.NewFromInt(10), AdvanceType: pricing.AdvancePercentage, AdvanceValue: decimal.NewFromInt(50), IsPublic: true, Kind: pricing.ConditionStandard},
		},
		cfg:    &pricing.Config{UtilityServiceRatio: decimal.NewFromInt(30), CommissionRatio: decimal.NewFromInt(5)},
		nextID: 100,
	}
}

func (r *stubRepo) ListItems(context.Context) ([]pricing.CatalogItem, error) {
	r.listCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pricing.CatalogItem, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func (r *stubRepo) GetItem(_ context.Context, id int64) (pricing.CatalogItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return pricing.CatalogItem{}, shared.E(shared.KindNotFound, "stub", "item %d", id)
	}
	return it, nil
}

func (r *stubRepo) UpdateItem(_ context.Context, item pricing.CatalogItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *stubRepo) InsertItem(_ context.Context, item pricing.CatalogItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *stubRepo) ListConditions(context.Context) ([]pricing.Condition, error) {
	return r.conditions, nil
}

func (r *stubRepo) PricingConfig(context.Context) (*pricing.Config, error) {
	return r.cfg, nil
}

type recordingNotifier struct {
	ids []int64
	err error
}

func (n *recordingNotifier) NotifyItemUpdated(_ context.Context, id int64) error {
	n.ids = append(n.ids, id)
	return n.err
}

func newCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client, time.Minute), mr
}

func TestSnapshotLoadsAndCaches(t *testing.T) {
	repo := newStubRepo()
	cache, mr := newCache(t)
	svc := NewService(repo, cache, nil, nil)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, "Fotografía", snap.Items[1].Name)
	cond, ok := snap.Condition(10)
	require.True(t, ok)
	assert.Equal(t, "Contado", cond.Name)
	assert.True(t, snap.Config.UtilityServiceRatio.Equal(decimal.NewFromInt(30)))
	assert.True(t, mr.Exists(snapshotCacheKey))

	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.listCalls.Load())
}

func TestSnapshotWithoutCacheOrConfig(t *testing.T) {
	repo := newStubRepo()
	repo.cfg = nil
	svc := NewService(repo, nil, nil, nil)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Config.CommissionRatio.IsZero())
}

func TestSnapshotRejectsNegativeConfig(t *testing.T) {
	repo := newStubRepo()
	repo.cfg = &pricing.Config{CommissionRatio: decimal.NewFromInt(-1)}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Snapshot(context.Background())
	assert.True(t, errors.Is(err, shared.ErrInvalidConfig))
}

func TestUpdateItemInvalidatesAndNotifies(t *testing.T) {
	repo := newStubRepo()
	cache, mr := newCache(t)
	notifier := &recordingNotifier{err: errors.New("queue down")}
	svc := NewService(repo, cache, notifier, nil)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(snapshotCacheKey))

	item, err := svc.UpdateItem(ctx, 1, UpdateItemInput{
		Name:        "Fotografía y video",
		Cost:        decimal.NewFromInt(80),
		ProfitType:  pricing.ProfitService,
		BillingType: pricing.BillingHour,
		Status:      pricing.ItemActive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Fotografía y video", item.Name)
	assert.False(t, mr.Exists(snapshotCacheKey))
	assert.Equal(t, []int64{1}, notifier.ids)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Items[1].Cost.Equal(decimal.NewFromInt(80)))
}

func TestUpdateItemValidation(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateItem(ctx, 1, UpdateItemInput{Name: "x", ProfitType: "other", BillingType: pricing.BillingUnit, Status: pricing.ItemActive})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = svc.UpdateItem(ctx, 1, UpdateItemInput{Name: "x", Cost: decimal.NewFromInt(-1), ProfitType: pricing.ProfitProduct, BillingType: pricing.BillingUnit, Status: pricing.ItemActive})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = svc.UpdateItem(ctx, 99, UpdateItemInput{Name: "x", ProfitType: pricing.ProfitProduct, BillingType: pricing.BillingUnit, Status: pricing.ItemActive})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestPromoteCustomItem(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil)

	item, err := svc.PromoteCustomItem(context.Background(), PromoteInput{
		Name:        "Pista iluminada",
		Cost:        decimal.NewFromInt(500),
		Expense:     decimal.NewFromInt(50),
		BillingType: pricing.BillingService,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), item.ID)
	assert.Equal(t, pricing.ProfitService, item.ProfitType)
	assert.Equal(t, pricing.ItemActive, item.Status)
	assert.True(t, item.Expense().Equal(decimal.NewFromInt(50)))

	stored, err := repo.GetItem(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "Pista iluminada", stored.Name)
}

func TestPromoteRejectsNegativeCost(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	_, err := svc.PromoteCustomItem(context.Background(), PromoteInput{Name: "x", Cost: decimal.NewFromInt(-5), BillingType: pricing.BillingUnit})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}
