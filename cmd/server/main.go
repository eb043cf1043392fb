package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/hotukdeals-notifier/internal/config"
	"github.com/pauljones0/hotukdeals-notifier/internal/notifier"
	"github.com/pauljones0/hotukdeals-notifier/internal/processor"
	"github.com/pauljones0/hotukdeals-notifier/internal/scheduler"
	"github.com/pauljones0/hotukdeals-notifier/internal/scraper"
	"github.com/pauljones0/hotukdeals-notifier/internal/storage"
	"github.com/pauljones0/hotukdeals-notifier/internal/storage/dynamo"
	"github.com/pauljones0/hotukdeals-notifier/internal/subscriptions"
	"github.com/pauljones0/hotukdeals-notifier/internal/validator"
)

const (
	purgeSchedule  = "@daily"
	purgeBatchSize = 500
)

// store is the union of what the backends provide to the rest of the service.
type store interface {
	processor.DealStore
	subscriptions.Repository
	channelGetter
	Close() error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	slog.Info("Starting HotUKDeals notifier", "backend", cfg.StoreBackend, "schedule", cfg.RunSchedule)

	ctx := context.Background()
	st, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	n := notifier.New(cfg)
	configs := subscriptions.NewCache(st, validator.New(), cfg.ConfigCacheTTL, cfg.RequestTimeout)
	s := scraper.New(cfg, scraper.LoadConfig(cfg.SelectorsPath))
	p := processor.New(st, n, s, configs, cfg)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	srv := &Server{
		baseCtx:        runCtx,
		processor:      p,
		channels:       st,
		sender:         n,
		requestTimeout: cfg.RequestTimeout,
	}

	sched := scheduler.New()
	if cfg.ScheduleEnabled() {
		if err := sched.Add("process-deals", cfg.RunSchedule, srv.runScheduled); err != nil {
			slog.Error("Invalid RUN_SCHEDULE", "error", err)
			os.Exit(1)
		}
	}
	if purger, ok := st.(*storage.Client); ok && cfg.DedupRetention > 0 {
		if err := sched.Add("purge-expired-deals", purgeSchedule, purgeJob(purger, time.Now)); err != nil {
			slog.Error("Failed to schedule purge of expired deals", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 1 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cancelRuns()
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Error("Scheduler shutdown error", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	srv.Wait()
	slog.Info("Server stopped.")
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return dynamo.NewStore(client, cfg.DynamoTableName), nil
	case config.BackendFirestore:
		client, err := storage.New(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

type expiredDealPurger interface {
	PurgeExpiredDeals(ctx context.Context, now time.Time, limit int) (int, error)
}

// purgeJob deletes expired seen records in batches until a batch comes back
// short. A batch with failed deletes ends the job so the same records are not
// read again in a loop.
func purgeJob(p expiredDealPurger, now func() time.Time) scheduler.Job {
	return func(ctx context.Context) {
		total := 0
		for {
			n, err := p.PurgeExpiredDeals(ctx, now(), purgeBatchSize)
			total += n
			if err != nil {
				slog.Error("Failed to purge expired deals", "deleted", total, "error", err)
				return
			}
			if n < purgeBatchSize || ctx.Err() != nil {
				break
			}
		}
		slog.Info("Purged expired deals", "deleted", total)
	}
}

var (
	_ store = (*storage.Client)(nil)
	_ store = (*dynamo.Store)(nil)
)
