package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/coordinator"
	"github.com/duplistack/core/pkg/database/pool"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/notify"
	"github.com/duplistack/core/pkg/registry"
	"github.com/duplistack/core/pkg/runner"
	"github.com/duplistack/core/pkg/scheduler"
	"github.com/duplistack/core/pkg/server"
)

func main() {
	var (
		memoryRegistry = flag.Bool("memory", false, "Use the in-memory job registry instead of Postgres")
		drainTimeout   = flag.Duration("drain", 30*time.Second, "How long to wait for in-flight runs on shutdown")
	)
	flag.Parse()

	log := logger.New("backup-orchestrator")
	cfg := config.Load()

	var reg registry.Registry
	var dbPool *pgxpool.Pool
	if *memoryRegistry {
		reg = registry.NewMemoryRegistry()
		log.Warn().Msg("Using in-memory job registry; jobs will not survive a restart")
	} else {
		var err error
		dbPool, err = pool.New(context.Background(), cfg.DatabaseURL(), nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		if err := pingWithRetry(dbPool, log); err != nil {
			log.Fatal().Err(err).Msg("Database unreachable")
		}
		reg = registry.NewPostgresRegistry(dbPool)
	}

	engineRunner := runner.New(log, cfg.Engine.TailLines)
	notifier := notify.NewWebhookDispatcher(cfg.Notifier, log)
	coord := coordinator.New(cfg.Engine, reg, coordinator.NewProcessRunner(engineRunner), notifier, log)
	sched := scheduler.New(reg, coord, cfg.Scheduler.TickInterval, log)
	srv := server.New(cfg, log, reg, coord)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		err := sched.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("Service exited with error")
	}

	// Outstanding runs get a bounded drain; abandoning them is logged,
	// never silent.
	drainCtx, cancel := context.WithTimeout(context.Background(), *drainTimeout)
	defer cancel()
	coord.Shutdown(drainCtx)

	log.Info().Msg("Backup orchestrator stopped")
	os.Exit(0)
}

func pingWithRetry(dbPool *pgxpool.Pool, log *logger.Logger) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := dbPool.Ping(ctx)
		cancel()

		if err == nil {
			return nil
		}
		if i == maxRetries-1 {
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Str("action", "db_ping_retry").
			Msg("Retrying database connection")
		time.Sleep(2 * time.Second)
	}
	return nil
}
