package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuoteRefresher recomputes stored breakdowns for quotes using an item.
type QuoteRefresher interface {
	RefreshForCatalogItem(ctx context.Context, itemID int64) (map[pricing.Health]int, error)
}

// CatalogRefreshJob keeps open quote breakdowns in line with the catalog.
type CatalogRefreshJob struct {
	Quotes  QuoteRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewCatalogRefreshJob wires dependencies for the refresh handler.
func NewCatalogRefreshJob(quotes QuoteRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogRefreshJob {
	return &CatalogRefreshJob{Quotes: quotes, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes TaskCatalogItemUpdated tasks.
func (j *CatalogRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Quotes == nil {
		return errors.New("catalog refresh: handler not configured")
	}
	var payload CatalogItemUpdatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ItemID <= 0 {
		return fmt.Errorf("catalog refresh: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCatalogItemUpdated)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("item_id", payload.ItemID))
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	counts, err := j.Quotes.RefreshForCatalogItem(ctx, payload.ItemID)
	for health, n := range counts {
		j.metrics().AddRefreshed(string(health), n)
	}
	if err != nil {
		logger.Error("refresh quotes for catalog item", slog.Any("error", err))
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	logger.Info("refreshed quotes for catalog item", slog.Int("quotes", total), slog.Int("red", counts[pricing.HealthRed]))
	return nil
}

func (j *CatalogRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogItemUpdated))
	}
	return slog.Default().With(slog.String("job", TaskCatalogItemUpdated))
}

func (j *CatalogRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
