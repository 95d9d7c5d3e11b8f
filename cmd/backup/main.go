// Command backup triggers a single job's run against a running registry
// and waits for the outcome. It is the operational escape hatch for "run
// this backup now, from a shell".
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/coordinator"
	"github.com/duplistack/core/pkg/database/pool"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/notify"
	"github.com/duplistack/core/pkg/registry"
	"github.com/duplistack/core/pkg/runner"
)

func main() {
	var (
		jobID   = flag.String("job", "", "Job ID to back up")
		threads = flag.Int("threads", 0, "Engine thread count override")
		quiet   = flag.Bool("quiet", false, "Suppress live engine output")
	)
	flag.Parse()

	if *jobID == "" {
		fmt.Fprintln(os.Stderr, "usage: backup -job <id> [-threads N] [-quiet]")
		os.Exit(2)
	}

	log := logger.New("backup-cli")
	cfg := config.Load()

	dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	reg := registry.NewPostgresRegistry(dbPool)
	engineRunner := runner.New(log, cfg.Engine.TailLines)
	notifier := notify.NewWebhookDispatcher(cfg.Notifier, log)
	coord := coordinator.New(cfg.Engine, reg, coordinator.NewProcessRunner(engineRunner), notifier, log)

	events, unsubscribe := subscribeAfterStart(coord, *jobID, *threads, log)
	defer unsubscribe()

	for event := range events {
		switch event.Type {
		case models.RunEventOutput:
			if !*quiet {
				fmt.Println(event.Line)
			}
		case models.RunEventDone:
			printOutcome(event)
			if event.Outcome != nil && !event.Outcome.Success() {
				os.Exit(1)
			}
			return
		}
	}
}

func subscribeAfterStart(coord *coordinator.Coordinator, jobID string, threads int, log *logger.Logger) (<-chan models.RunEvent, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := coord.StartRun(ctx, jobID, models.TriggerManual, threads); err != nil {
		log.Fatal().Err(err).Str("job_id", jobID).Msg("Failed to start backup run")
	}
	return coord.Subscribe(jobID)
}

func printOutcome(event models.RunEvent) {
	out, err := json.MarshalIndent(event.Outcome, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render outcome: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
