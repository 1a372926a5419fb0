package fitness

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

var (
	// ErrSimulatorFailure marks a single car the simulator could not race.
	ErrSimulatorFailure = errors.New("simulator failure")
	// ErrSimulatorUnavailable is returned when every car of a pass failed.
	ErrSimulatorUnavailable = errors.New("simulator unavailable")
)

// Simulator races one car design at a time.
type Simulator interface {
	Simulate(ctx context.Context, design genome.CarDesign) (models.Outcome, error)
}

// Racer races many car designs in one call. Outcomes are returned in input order.
type Racer interface {
	Race(ctx context.Context, designs []genome.CarDesign) ([]models.Outcome, error)
}

// Report is the result of evaluating a population.
type Report struct {
	Scores   []float64
	Outcomes []models.Outcome
	Failures int
	// Errors holds the simulator error per genome, nil where the race succeeded.
	Errors []error
}

// Evaluator scores genomes by racing their decoded designs.
type Evaluator struct {
	sim         Simulator
	racer       Racer
	batchSize   int
	parallelism int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRacer switches population passes to batched races of at most batchSize cars.
func WithRacer(r Racer, batchSize int) Option {
	return func(e *Evaluator) {
		if batchSize <= 0 || batchSize > config.MaxBatchSize {
			batchSize = config.MaxBatchSize
		}
		e.racer = r
		e.batchSize = batchSize
	}
}

// WithParallelism bounds concurrent simulator calls (single cars or batches).
func WithParallelism(n int) Option {
	return func(e *Evaluator) {
		if n < 1 {
			n = 1
		}
		e.parallelism = n
	}
}

// NewEvaluator creates an evaluator around a simulator.
func NewEvaluator(sim Simulator, opts ...Option) *Evaluator {
	e := &Evaluator{
		sim:         sim,
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Batched reports whether population passes use the Racer.
func (e *Evaluator) Batched() bool {
	return e.racer != nil
}

// Evaluate races a single genome and returns its fitness. When the simulator
// fails the car gets the score of a failed outcome, returned together with
// the error wrapped in ErrSimulatorFailure.
func (e *Evaluator) Evaluate(ctx context.Context, g genome.Genome) (float64, error) {
	design, err := genome.Decode(g)
	if err != nil {
		return 0, err
	}
	outcome, err := e.sim.Simulate(ctx, design)
	if err != nil {
		return Score(models.FailedOutcome()), fmt.Errorf("%w: %v", ErrSimulatorFailure, err)
	}
	return Score(outcome), nil
}

// EvaluatePopulation races every genome once. A car the simulator fails on
// scores as a non-finisher with zero completion. If every car fails the pass
// returns ErrSimulatorUnavailable.
func (e *Evaluator) EvaluatePopulation(ctx context.Context, pop genome.Population) (*Report, error) {
	designs, err := genome.DecodePopulation(pop)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Scores:   make([]float64, len(pop)),
		Outcomes: make([]models.Outcome, len(pop)),
		Errors:   make([]error, len(pop)),
	}
	if len(pop) == 0 {
		return report, nil
	}

	if e.racer != nil {
		e.raceBatches(ctx, designs, report)
	} else {
		e.simulateEach(ctx, designs, report)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	var lastErr error
	for i, outcome := range report.Outcomes {
		report.Scores[i] = Score(outcome)
		if report.Errors[i] != nil {
			report.Failures++
			lastErr = report.Errors[i]
			logger.Warn("simulator failed for genome", "index", i, "error", report.Errors[i])
		}
	}

	if report.Failures == len(pop) {
		return report, fmt.Errorf("%w: all %d evaluations failed: %v", ErrSimulatorUnavailable, len(pop), lastErr)
	}
	return report, nil
}

// simulateEach races designs one at a time on up to parallelism goroutines
func (e *Evaluator) simulateEach(ctx context.Context, designs []genome.CarDesign, report *Report) {
	semaphore := make(chan struct{}, e.parallelism)
	var wg sync.WaitGroup

	for i, design := range designs {
		wg.Add(1)
		go func(idx int, d genome.CarDesign) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcome, err := e.sim.Simulate(ctx, d)
			e.record(report, idx, outcome, err)
		}(i, design)
	}

	wg.Wait()
}

// raceBatches splits designs into races of at most batchSize cars
func (e *Evaluator) raceBatches(ctx context.Context, designs []genome.CarDesign, report *Report) {
	semaphore := make(chan struct{}, e.parallelism)
	var wg sync.WaitGroup

	for start := 0; start < len(designs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(designs) {
			end = len(designs)
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcomes, err := e.racer.Race(ctx, designs[lo:hi])
			if err == nil && len(outcomes) != hi-lo {
				err = fmt.Errorf("race returned %d outcomes for %d cars", len(outcomes), hi-lo)
			}
			for idx := lo; idx < hi; idx++ {
				if err != nil {
					e.record(report, idx, models.Outcome{}, err)
					continue
				}
				e.record(report, idx, outcomes[idx-lo], nil)
			}
		}(start, end)
	}

	wg.Wait()
}

// record stores one result. Each index is written by exactly one goroutine.
func (e *Evaluator) record(report *Report, idx int, outcome models.Outcome, err error) {
	if err != nil {
		report.Outcomes[idx] = models.FailedOutcome()
		report.Errors[idx] = fmt.Errorf("%w: %v", ErrSimulatorFailure, err)
		return
	}
	report.Outcomes[idx] = outcome
}
