package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quotes/cmd/quoted/cli"
	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/quotes"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "audit":
			os.Exit(runAudit(os.Args[2:]))
		case "jobs":
			os.Exit(runJobs(os.Args[2:]))
		}
	}

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := serve(); err != nil {
		slog.Default().Error("quoted", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalogService := catalog.NewService(
		catalog.NewRepository(pool),
		catalog.NewSnapshotCache(redisClient, cfg.CatalogCacheTTL),
		jobClient,
		logger,
	)
	quoteService := quotes.NewService(
		quotes.NewRepository(pool),
		catalogService,
		shared.NewRedisGuard(redisClient, cfg.QuoteLockTTL),
		logger,
		quotes.Deps{
			Audit:       shared.NewAuditLogger(pool),
			Idempotency: shared.NewIdempotencyStore(pool),
			Metrics:     metrics,
			ResyncTTL:   cfg.ResyncSignalTTL,
		},
	)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		QuotesHandler:  quotes.NewHandler(logger, quoteService),
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	return app.Serve(ctx, server, logger, 10*time.Second)
}

func runAudit(args []string) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	path := fs.String("file", "-", "quote document, - for stdin")
	jsonOut := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return cli.AuditCommand(cli.AuditOptions{Path: *path, JSONOutput: *jsonOut})
}

func runJobs(args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	itemID := fs.Int64("item", 0, "catalog item id for "+jobs.TaskCatalogItemUpdated)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: quoted jobs [-redis addr] [-item id] stats | trigger <job>")
		return 2
	}

	jc, err := cli.NewJobsCLI(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer jc.Close()

	ctx := context.Background()
	switch rest[0] {
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "trigger":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "jobs: trigger needs a job name")
			return 2
		}
		info, err := jc.Trigger(ctx, rest[1], *itemID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown command %s\n", rest[0])
		return 2
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
