package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/internal/fitness"
	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// Stop reasons reported in Result.StopReason
const (
	StopReasonGenerations = "generation limit reached"
	StopReasonCancelled   = "cancelled"
)

// PopulationEvaluator scores a whole population in one pass
type PopulationEvaluator interface {
	EvaluatePopulation(ctx context.Context, pop genome.Population) (*fitness.Report, error)
}

// TrackRenewer asks the simulator for a fresh race track
type TrackRenewer interface {
	NewTrack(ctx context.Context) error
}

// ProgressFunc receives the summary of every evaluated generation
type ProgressFunc func(summary models.GenerationSummary)

// Result is the outcome of an evolution run. Best is the top genome of the
// last fully evaluated population.
type Result struct {
	Best        genome.Genome
	BestDesign  genome.CarDesign
	BestFitness float64
	Population  genome.Population
	Scores      []float64
	Generations int
	History     []models.GenerationSummary
	Converged   bool
	StopReason  string
	Seed        int64
}

// Evolver drives a controller through evaluate, select and advance cycles
type Evolver struct {
	controller *Controller
	evaluator  PopulationEvaluator
	tracks     TrackRenewer
	stop       ConvergenceStrategy
	progress   ProgressFunc
	log        *slog.Logger
}

// EvolverOption configures an Evolver
type EvolverOption func(*Evolver)

// WithProgress registers a callback invoked after every generation
func WithProgress(fn ProgressFunc) EvolverOption {
	return func(e *Evolver) {
		e.progress = fn
	}
}

// WithTrackRenewer enables track rotation every new_track_every generations
func WithTrackRenewer(r TrackRenewer) EvolverOption {
	return func(e *Evolver) {
		e.tracks = r
	}
}

// WithStopStrategy overrides the early-stop rules taken from the configuration
func WithStopStrategy(s ConvergenceStrategy) EvolverOption {
	return func(e *Evolver) {
		e.stop = s
	}
}

// WithLogger sets the logger used for generation progress
func WithLogger(l *slog.Logger) EvolverOption {
	return func(e *Evolver) {
		e.log = l
	}
}

// NewEvolver creates an evolver
func NewEvolver(controller *Controller, evaluator PopulationEvaluator, opts ...EvolverOption) (*Evolver, error) {
	if controller == nil {
		return nil, errors.New("controller is required")
	}
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	e := &Evolver{
		controller: controller,
		evaluator:  evaluator,
		stop:       StopStrategyFromConfig(controller.Config().Stop),
		log:        logger.Default,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run evolves for the configured number of generations, each generation being
// one evaluation pass. Cancelling ctx stops the run; the result of the last
// complete generation is returned together with the context error.
func (e *Evolver) Run(ctx context.Context) (*Result, error) {
	cfg := e.controller.Config()
	rng := e.controller.Rand()

	result := &Result{Seed: rng.Seed()}

	pop, err := InitialPopulation(cfg.PopulationSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize population: %w", err)
	}

	for gen := 1; ; gen++ {
		if err := ctx.Err(); err != nil {
			result.StopReason = StopReasonCancelled
			return result, err
		}

		if e.tracks != nil && cfg.NewTrackEvery > 0 && gen > 1 && (gen-1)%cfg.NewTrackEvery == 0 {
			if err := e.tracks.NewTrack(ctx); err != nil {
				return result, fmt.Errorf("failed to generate new track before generation %d: %w", gen, err)
			}
			e.log.Info("new track generated", "generation", gen)
		}

		started := time.Now()
		report, err := e.evaluator.EvaluatePopulation(ctx, pop)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.StopReason = StopReasonCancelled
				return result, ctxErr
			}
			return result, fmt.Errorf("generation %d evaluation failed: %w", gen, err)
		}

		summary := summarize(gen, pop, report, time.Since(started))
		result.record(pop, report.Scores, summary)

		e.log.Info("generation evaluated",
			"generation", gen,
			"best_fitness", summary.BestFitness,
			"mean_fitness", summary.MeanFitness,
			"failures", summary.Failures)
		if e.progress != nil {
			e.progress(summary)
		}

		if gen >= cfg.Generations {
			result.StopReason = StopReasonGenerations
			return result, nil
		}
		if e.stop != nil {
			if converged, reason := e.stop.CheckConvergence(result.History); converged {
				result.Converged = true
				result.StopReason = reason
				e.log.Info("evolution converged", "generation", gen, "reason", reason)
				return result, nil
			}
		}

		pop, err = e.controller.Advance(pop, report.Scores)
		if err != nil {
			return result, fmt.Errorf("failed to advance generation %d: %w", gen, err)
		}
	}
}

// record makes pop the latest evaluated population of the result
func (r *Result) record(pop genome.Population, scores []float64, summary models.GenerationSummary) {
	best := utils.ArgMax(scores)
	r.Population = pop
	r.Scores = scores
	r.Best = pop[best].Clone()
	// Genomes in a population are always repaired, so decoding cannot fail.
	r.BestDesign, _ = genome.Decode(r.Best)
	r.BestFitness = scores[best]
	r.Generations = summary.Generation
	r.History = append(r.History, summary)
}

// summarize builds the per-generation progress record
func summarize(gen int, pop genome.Population, report *fitness.Report, elapsed time.Duration) models.GenerationSummary {
	best := utils.ArgMax(report.Scores)
	worst, _ := utils.MinMax(report.Scores)
	return models.GenerationSummary{
		Generation:    gen,
		BestGenome:    pop[best].Clone(),
		BestFitness:   report.Scores[best],
		MeanFitness:   utils.Mean(report.Scores),
		WorstFitness:  worst,
		StdDevFitness: utils.StdDev(report.Scores),
		Failures:      report.Failures,
		Evaluations:   len(pop),
		ElapsedMs:     elapsed.Milliseconds(),
	}
}
