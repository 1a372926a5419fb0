package evolution

import (
	"fmt"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// ConvergenceStrategy decides from the generation history whether a run can stop early
type ConvergenceStrategy interface {
	// CheckConvergence reports whether evolution has converged and why
	CheckConvergence(history []models.GenerationSummary) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// StagnationStrategy stops when the best fitness has not improved by more
// than MinImprovement for Generations consecutive generations.
type StagnationStrategy struct {
	Generations    int
	MinImprovement float64
}

func (s *StagnationStrategy) Name() string {
	return "stagnation"
}

func (s *StagnationStrategy) CheckConvergence(history []models.GenerationSummary) (bool, string) {
	if s.Generations <= 0 || len(history) <= s.Generations {
		return false, ""
	}

	// Best-so-far before the window, then whether the window improved on it
	best := history[0].BestFitness
	for _, h := range history[1 : len(history)-s.Generations] {
		if h.BestFitness > best {
			best = h.BestFitness
		}
	}
	for _, h := range history[len(history)-s.Generations:] {
		if h.BestFitness-best > s.MinImprovement {
			return false, ""
		}
	}

	return true, fmt.Sprintf("best fitness %.4f not improved by more than %.4f for %d generations", best, s.MinImprovement, s.Generations)
}

// TargetStrategy stops once a generation reaches the target fitness
type TargetStrategy struct {
	Target float64
}

func (s *TargetStrategy) Name() string {
	return "target_fitness"
}

func (s *TargetStrategy) CheckConvergence(history []models.GenerationSummary) (bool, string) {
	if len(history) == 0 {
		return false, ""
	}
	last := history[len(history)-1]
	if last.BestFitness >= s.Target {
		return true, fmt.Sprintf("best fitness %.4f reached target %.4f in generation %d", last.BestFitness, s.Target, last.Generation)
	}
	return false, ""
}

// CombinedStrategy converges as soon as any of its strategies does
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewCombinedStrategy combines the given strategies
func NewCombinedStrategy(strategies ...ConvergenceStrategy) *CombinedStrategy {
	return &CombinedStrategy{strategies: strategies}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(history []models.GenerationSummary) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(history); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// AddStrategy adds a strategy to the combination
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}

// Len returns the number of combined strategies
func (s *CombinedStrategy) Len() int {
	return len(s.strategies)
}

// StopStrategyFromConfig builds the early-stop rules enabled in cfg, or nil
// when none are.
func StopStrategyFromConfig(cfg config.Stop) ConvergenceStrategy {
	combined := NewCombinedStrategy()
	if cfg.StagnationGenerations > 0 {
		combined.AddStrategy(&StagnationStrategy{
			Generations:    cfg.StagnationGenerations,
			MinImprovement: cfg.MinImprovement,
		})
	}
	if cfg.TargetFitness > 0 {
		combined.AddStrategy(&TargetStrategy{Target: cfg.TargetFitness})
	}
	if combined.Len() == 0 {
		return nil
	}
	return combined
}
