package evolved

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoSim-25-26J-441/race-evolution/internal/evolution"
	"github.com/GoSim-25-26J-441/race-evolution/internal/fitness"
	"github.com/GoSim-25-26J-441/race-evolution/internal/simulator"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// ErrNoResult is returned when a run has no best design yet
var ErrNoResult = errors.New("run has no result")

// SimulatorFactory opens the simulator backend of one run
type SimulatorFactory func(cfg config.Simulator, seed int64) (simulator.Backend, error)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store        *RunStore
	broadcaster  Broadcaster
	publisher    Publisher
	notifier     *Notifier
	newSimulator SimulatorFactory

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// ExecutorOption configures a RunExecutor
type ExecutorOption func(*RunExecutor)

// WithBroadcaster streams run events to live subscribers
func WithBroadcaster(b Broadcaster) ExecutorOption {
	return func(e *RunExecutor) {
		e.broadcaster = b
	}
}

// WithPublisher forwards run events to a message bus
func WithPublisher(p Publisher) ExecutorOption {
	return func(e *RunExecutor) {
		e.publisher = p
	}
}

// WithNotifier enables callback notifications when runs end
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *RunExecutor) {
		e.notifier = n
	}
}

// WithSimulatorFactory replaces simulator.Open
func WithSimulatorFactory(f SimulatorFactory) ExecutorOption {
	return func(e *RunExecutor) {
		e.newSimulator = f
	}
}

func NewRunExecutor(store *RunStore, opts ...ExecutorOption) *RunExecutor {
	e := &RunExecutor{
		store:        store,
		newSimulator: simulator.Open,
		cancels:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins executing a run asynchronously.
// Returns the updated run state (running) or an error.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	// e.mu spans the transition so a concurrent Stop sees the cancel func.
	e.mu.Lock()
	updated, started, err := e.store.MarkRunning(runID)
	if err != nil || !started {
		e.mu.Unlock()
		return updated, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancels[runID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	e.emitStatus(updated)
	go e.runEvolution(ctx, runID)
	return updated, nil
}

// Stop requests cancellation of a run and marks it cancelled.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	e.mu.Lock()
	cancel, running := e.cancels[runID]
	e.mu.Unlock()
	if running {
		cancel()
	}

	updated, err := e.store.SetStatus(runID, models.RunStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	e.emitStatus(updated)
	if !running {
		e.notify(updated)
	}
	return updated, nil
}

// Wait blocks until every started run has finished
func (e *RunExecutor) Wait() {
	e.wg.Wait()
	if e.notifier != nil {
		e.notifier.Wait()
	}
}

// Shutdown cancels every active run and waits for them to finish or for ctx to expire.
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trajectory replays the best design of a run on a fresh simulator
func (e *RunExecutor) Trajectory(ctx context.Context, runID string) ([]simulator.State, error) {
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, runID)
	}
	backend, err := e.newSimulator(rec.Input.Simulator, rec.Input.Evolution.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to open simulator: %w", err)
	}
	defer backend.Close()
	return backend.Trajectory(ctx, rec.Best.Design)
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) runEvolution(ctx context.Context, runID string) {
	defer e.wg.Done()
	defer e.cleanup(runID)

	rec, ok := e.store.Get(runID)
	if !ok {
		logger.Error("run not found", "run_id", runID)
		return
	}
	log := logger.ForRun(runID)
	cfg := rec.Input.Evolution
	rng := utils.NewRandSource(cfg.Seed)
	controller, err := evolution.NewController(cfg, rng)
	if err != nil {
		e.finish(runID, models.RunStatusFailed, err.Error())
		return
	}

	backend, err := e.newSimulator(rec.Input.Simulator, rng.Seed())
	if err != nil {
		e.finish(runID, models.RunStatusFailed, fmt.Sprintf("failed to open simulator: %v", err))
		return
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close simulator", "error", err)
		}
	}()

	evalOpts := []fitness.Option{fitness.WithParallelism(cfg.Parallelism)}
	if rec.Input.Simulator.Batch {
		evalOpts = append(evalOpts, fitness.WithRacer(backend, rec.Input.Simulator.BatchSize))
	}
	evaluator := fitness.NewEvaluator(backend, evalOpts...)

	evolver, err := evolution.NewEvolver(controller, evaluator,
		evolution.WithTrackRenewer(backend),
		evolution.WithLogger(log),
		evolution.WithProgress(func(summary models.GenerationSummary) {
			if err := e.store.AppendGeneration(runID, summary); err != nil {
				log.Warn("failed to record generation", "generation", summary.Generation, "error", err)
			}
			e.emit(Event{
				ID:         utils.GenerateEventID(),
				Type:       EventGeneration,
				RunID:      runID,
				Timestamp:  nowUTC(),
				Generation: &summary,
			})
		}),
	)
	if err != nil {
		e.finish(runID, models.RunStatusFailed, err.Error())
		return
	}

	log.Info("run started", "seed", rng.Seed(), "population_size", cfg.PopulationSize, "generations", cfg.Generations)
	result, runErr := evolver.Run(ctx)

	if result != nil && result.Best != nil {
		best := BestDesign{
			Genome:     append([]float64(nil), result.Best...),
			Design:     result.BestDesign,
			Fitness:    result.BestFitness,
			Generation: result.Generations,
		}
		if err := e.store.SetResult(runID, best, result.StopReason); err != nil {
			log.Warn("failed to record result", "error", err)
		}
	}

	switch {
	case runErr == nil:
		log.Info("run completed", "best_fitness", result.BestFitness, "stop_reason", result.StopReason)
		e.finish(runID, models.RunStatusCompleted, "")
	case ctx.Err() != nil:
		log.Info("run cancelled")
		e.finish(runID, models.RunStatusCancelled, "")
	default:
		log.Error("run failed", "error", runErr)
		e.finish(runID, models.RunStatusFailed, runErr.Error())
	}
}

// finish moves the run to a terminal status and notifies. A run already
// stopped through Stop keeps its status.
func (e *RunExecutor) finish(runID string, status models.RunStatus, errMsg string) {
	updated, err := e.store.SetStatus(runID, status, errMsg)
	if err != nil {
		if !errors.Is(err, ErrRunTerminal) {
			logger.Error("failed to set run status", "run_id", runID, "status", status, "error", err)
			return
		}
		rec, ok := e.store.Get(runID)
		if !ok {
			return
		}
		e.notify(rec)
		return
	}
	e.emitStatus(updated)
	e.notify(updated)
}

func (e *RunExecutor) notify(rec *RunRecord) {
	if e.notifier == nil || rec.Input.CallbackURL == "" {
		return
	}
	e.notifier.Notify(rec.Input.CallbackURL, rec.Input.CallbackSecret, rec)
}

func (e *RunExecutor) emitStatus(rec *RunRecord) {
	run := rec.Run
	e.emit(Event{
		ID:        utils.GenerateEventID(),
		Type:      EventStatus,
		RunID:     run.ID,
		Timestamp: nowUTC(),
		Run:       &run,
	})
}

func (e *RunExecutor) emit(event Event) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(event)
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(event); err != nil {
			logger.Warn("failed to publish event", "run_id", event.RunID, "type", event.Type, "error", err)
		}
	}
}
