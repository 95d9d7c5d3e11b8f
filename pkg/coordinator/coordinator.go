// Package coordinator owns the process-wide table of in-flight backup
// runs. It enforces at-most-one concurrent run per job, fans live engine
// output out to any number of subscribers, and drives every run through
// the same finalize path regardless of how it ended.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/engine"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/registry"
)

var (
	// ErrAlreadyRunning rejects a second concurrent run for the same job.
	ErrAlreadyRunning = errors.New("backup already running for this job")
	// ErrNotRunning rejects cancellation when no run is active.
	ErrNotRunning = errors.New("no backup running for this job")
)

const (
	heartbeatInterval   = 5 * time.Second
	subscriberBuffer    = 64
	doneDeliveryTimeout = 5 * time.Second
)

// Runner launches and terminates engine processes.
type Runner interface {
	Launch(ctx context.Context, inv engine.Invocation) (ProcessHandle, error)
	Terminate(h ProcessHandle, grace time.Duration)
}

// ProcessHandle is the coordinator's view of one running engine process.
type ProcessHandle interface {
	Lines() <-chan string
	Output() string
	LastLine() string
	Wait() int
	Done() <-chan struct{}
}

// Notifier receives terminal run outcomes. Delivery failures must never
// fail or roll back the run itself.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job, outcome models.RunOutcome)
}

// runState is the ephemeral bookkeeping for one in-flight run. At most one
// exists per job ID at any instant; that is the core concurrency contract.
type runState struct {
	job          *models.Job
	trigger      models.Trigger
	startedAt    time.Time
	handle       ProcessHandle
	cancelFlag   bool
	lastOutput   string
	prevRevision *int
	subscribers  map[int]chan models.RunEvent
	nextSubID    int
}

type completedRun struct {
	outcome   models.RunOutcome
	cancelled bool
}

// Coordinator tracks in-flight runs. The runs map is the only mutable
// shared structure in the core; mu makes check-absence-then-insert atomic.
type Coordinator struct {
	mu        sync.Mutex
	runs      map[string]*runState
	completed map[string]*completedRun
	wg        sync.WaitGroup

	engineCfg config.EngineConfig
	reg       registry.Registry
	runner    Runner
	notifier  Notifier
	log       *logger.Logger

	onComplete []func(job *models.Job, outcome models.RunOutcome)
}

func New(engineCfg config.EngineConfig, reg registry.Registry, r Runner, n Notifier, log *logger.Logger) *Coordinator {
	return &Coordinator{
		runs:      make(map[string]*runState),
		completed: make(map[string]*completedRun),
		engineCfg: engineCfg,
		reg:       reg,
		runner:    r,
		notifier:  n,
		log:       log,
	}
}

// OnComplete registers a hook invoked after every finalized run. The
// scheduler uses this to recompute next-due timestamps.
func (c *Coordinator) OnComplete(fn func(job *models.Job, outcome models.RunOutcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = append(c.onComplete, fn)
}

// StartRun looks up the job, atomically claims its run slot, and launches
// the engine. It returns as soon as the process is running; all further
// progress is delivered through subscriptions. A spawn failure is finalized
// as a failed outcome through the normal Done path and also returned.
func (c *Coordinator) StartRun(ctx context.Context, jobID string, trigger models.Trigger, threads int) error {
	job, err := c.reg.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	state := &runState{
		job:         job,
		trigger:     trigger,
		startedAt:   time.Now(),
		subscribers: make(map[int]chan models.RunEvent),
		lastOutput:  "Starting backup...",
	}

	c.mu.Lock()
	if _, exists := c.runs[jobID]; exists {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.runs[jobID] = state
	delete(c.completed, jobID)
	c.mu.Unlock()

	c.log.LogRunStart(jobID, job.Name, string(trigger))

	if threads <= 0 {
		if job.Schedule != nil && job.Schedule.Threads > 0 {
			threads = job.Schedule.Threads
		} else {
			threads = c.engineCfg.DefaultThreads
		}
	}

	log := c.log.WithJob(jobID, job.Name)

	opts := engine.Options{Threads: threads}
	if creds, credErr := c.reg.GetCredentials(ctx, jobID); credErr == nil {
		opts.Password = creds.Password
		opts.ExtraEnv = creds.Env
	} else {
		log.Warn().Err(credErr).Msg("Proceeding without stored credentials")
	}

	// The engine reads its filters file from the source directory; a job
	// whose selection cannot be materialized must not silently back up
	// everything.
	if err := engine.SyncFilters(job.SourcePath, job.ContentSelection); err != nil {
		outcome := models.RunOutcome{
			Status:   models.RunStatusError,
			ExitCode: -1,
			Message:  err.Error(),
		}
		c.finalize(state, jobID, outcome)
		return fmt.Errorf("sync filters for job %s: %w", jobID, err)
	}

	inv := engine.BackupInvocation(c.engineCfg.BinaryPath, job, opts)
	handle, err := c.runner.Launch(ctx, inv)
	if err != nil {
		// Same Done path as any other terminal state, so subscribers and
		// the registry see a failed run rather than a vanished one.
		outcome := models.RunOutcome{
			Status:   models.RunStatusError,
			ExitCode: -1,
			Message:  err.Error(),
		}
		c.finalize(state, jobID, outcome)
		return fmt.Errorf("start run for job %s: %w", jobID, err)
	}

	c.mu.Lock()
	state.handle = handle
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pump(jobID, state, handle)
	go c.lookupPreviousRevision(state, job, opts)

	return nil
}

// lookupPreviousRevision asks the engine for the job's latest stored
// revision so the outcome can report what this run superseded. Best-effort:
// the backup proceeds regardless, and a slow or failing listing only leaves
// the field unset.
func (c *Coordinator) lookupPreviousRevision(state *runState, job *models.Job, opts engine.Options) {
	defer c.wg.Done()

	log := c.log.WithJob(job.ID, job.Name)
	inv := engine.ListInvocation(c.engineCfg.BinaryPath, job, opts)
	handle, err := c.runner.Launch(context.Background(), inv)
	if err != nil {
		log.Debug().Err(err).Msg("Revision listing unavailable")
		return
	}
	for range handle.Lines() {
	}
	if code := handle.Wait(); code != 0 {
		log.Debug().Int("exit_code", code).Msg("Revision listing failed")
		return
	}

	prev := engine.LatestRevision(engine.ParseSnapshots(handle.Output()), job.SnapshotID)
	if prev == nil {
		return
	}
	c.mu.Lock()
	state.prevRevision = prev
	c.mu.Unlock()
}

// pump relays engine output to subscribers until the process exits, then
// finalizes the run. Ordering is preserved per subscriber; Done is always
// the last event delivered.
func (c *Coordinator) pump(jobID string, state *runState, handle ProcessHandle) {
	defer c.wg.Done()

	// Cancel may have landed between RunState insertion and the handle
	// being recorded; honor it now that the process can be signalled.
	c.mu.Lock()
	cancelledEarly := state.cancelFlag
	c.mu.Unlock()
	if cancelledEarly {
		go c.runner.Terminate(handle, c.engineCfg.GracePeriod)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	lines := handle.Lines()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.mu.Lock()
			state.lastOutput = line
			c.mu.Unlock()
			c.broadcast(state, models.RunEvent{Type: models.RunEventOutput, Line: line})
		case <-ticker.C:
			c.broadcast(state, models.RunEvent{Type: models.RunEventHeartbeat})
		}
	}

	exitCode := handle.Wait()

	started := state.startedAt
	outcome := engine.Parse(handle.Output(), exitCode)
	outcome.Duration = time.Since(started).Seconds()

	c.finalize(state, jobID, outcome)
}

// finalize drives a run to its terminal state: classify cancellation,
// persist last-run fields, notify, emit Done to every subscriber, and
// remove the RunState so the job can run again.
func (c *Coordinator) finalize(state *runState, jobID string, outcome models.RunOutcome) {
	c.mu.Lock()
	cancelled := state.cancelFlag
	if cancelled {
		outcome.Status = models.RunStatusCancelled
	}
	if outcome.PreviousRevision == nil {
		outcome.PreviousRevision = state.prevRevision
	}
	job := state.job
	subs := state.subscribers
	state.subscribers = make(map[int]chan models.RunEvent)
	c.completed[jobID] = &completedRun{outcome: outcome, cancelled: cancelled}
	delete(c.runs, jobID)
	hooks := append([]func(*models.Job, models.RunOutcome){}, c.onComplete...)
	c.mu.Unlock()

	c.log.LogRunComplete(jobID, string(outcome.Status), time.Duration(outcome.Duration*float64(time.Second)), outcome.ExitCode)

	// Each registry write is an independent, retryable operation at the
	// collaborator boundary; a failure here must not take the run down.
	writeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	start := time.Now()
	err := c.reg.UpdateLastRun(writeCtx, jobID, outcome.Status, time.Now(), &outcome)
	c.log.LogRegistryWrite("update_last_run", jobID, time.Since(start), err)

	if c.notifier != nil {
		// Fire-and-forget: notification failures never fail the run.
		go func() {
			nctx, ncancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer ncancel()
			c.notifier.Notify(nctx, job, outcome)
		}()
	}

	for _, fn := range hooks {
		fn(job, outcome)
	}

	done := models.RunEvent{Type: models.RunEventDone, Outcome: &outcome, Cancelled: cancelled}
	for _, ch := range subs {
		select {
		case ch <- done:
		default:
			// Done must not be lost to a full buffer, but an abandoned
			// subscriber must not pin this goroutine forever either: give
			// the receiver a bounded window to drain, then close.
			go func(ch chan models.RunEvent) {
				select {
				case ch <- done:
				case <-time.After(doneDeliveryTimeout):
				}
				close(ch)
			}(ch)
			continue
		}
		close(ch)
	}
}

// broadcast fans one event out to all current subscribers. A slow
// subscriber is skipped rather than allowed to block the run; the tail
// accumulator used for parsing is unaffected by drops.
func (c *Coordinator) broadcast(state *runState, event models.RunEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range state.subscribers {
		select {
		case ch <- event:
		default:
			c.log.Debug().Int("subscriber", id).Msg("Dropping event for slow subscriber")
		}
	}
}

// Subscribe attaches a live tail to the job's current run. Events flow
// from the moment of subscription onward; earlier output is not replayed.
// If the most recent run already finished, the stream immediately yields
// its Done event and closes. The returned func detaches the subscriber.
func (c *Coordinator) Subscribe(jobID string) (<-chan models.RunEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.runs[jobID]; ok {
		ch := make(chan models.RunEvent, subscriberBuffer)
		id := state.nextSubID
		state.nextSubID++
		state.subscribers[id] = ch

		unsubscribe := func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if s, stillRunning := c.runs[jobID]; stillRunning {
				if _, attached := s.subscribers[id]; attached {
					delete(s.subscribers, id)
					close(ch)
				}
			}
		}
		return ch, unsubscribe
	}

	ch := make(chan models.RunEvent, 1)
	if done, ok := c.completed[jobID]; ok {
		ch <- models.RunEvent{
			Type:      models.RunEventDone,
			Outcome:   &done.outcome,
			Cancelled: done.cancelled,
		}
	}
	close(ch)
	return ch, func() {}
}

// Cancel flips the cancellation flag synchronously and asks the runner to
// terminate the process group. The run still flows through finalize, so
// subscribers always get a Done event.
func (c *Coordinator) Cancel(jobID string) error {
	c.mu.Lock()
	state, ok := c.runs[jobID]
	if !ok {
		c.mu.Unlock()
		return ErrNotRunning
	}
	state.cancelFlag = true
	state.lastOutput = "Cancellation requested..."
	handle := state.handle
	c.mu.Unlock()

	c.broadcast(state, models.RunEvent{Type: models.RunEventOutput, Line: "Cancellation requested..."})

	c.log.Info().
		Str("action", "run_cancel").
		Str("job_id", jobID).
		Msg("Cancellation requested")

	if handle != nil {
		go c.runner.Terminate(handle, c.engineCfg.GracePeriod)
	}
	return nil
}

// Status reports whether a run is active for the job without subscribing.
func (c *Coordinator) Status(jobID string) models.RunInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.runs[jobID]
	if !ok {
		return models.RunInfo{JobID: jobID, Running: false}
	}
	return models.RunInfo{
		JobID:      jobID,
		Running:    true,
		StartedAt:  state.startedAt,
		ElapsedSec: time.Since(state.startedAt).Seconds(),
		LastOutput: state.lastOutput,
		Trigger:    state.trigger,
	}
}

// Running reports whether the job currently has an in-flight run.
func (c *Coordinator) Running(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[jobID]
	return ok
}

// Shutdown waits for in-flight runs to finish until the context expires,
// then logs a warning naming the runs it is abandoning. Outstanding runs
// are never dropped silently.
func (c *Coordinator) Shutdown(ctx context.Context) {
	doneCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		c.log.Info().Str("action", "shutdown").Msg("All runs drained")
	case <-ctx.Done():
		c.mu.Lock()
		var abandoned []string
		for id := range c.runs {
			abandoned = append(abandoned, id)
		}
		c.mu.Unlock()
		c.log.Warn().
			Str("action", "shutdown").
			Strs("abandoned_jobs", abandoned).
			Msg("Shutdown deadline reached with runs still in flight")
	}
}
