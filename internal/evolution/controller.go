package evolution

import (
	"fmt"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// Controller builds each next generation from the scored current one.
type Controller struct {
	cfg config.Evolution
	rng *utils.RandSource
}

// NewController validates the evolution parameters and returns a controller
// drawing randomness from rng.
func NewController(cfg config.Evolution, rng *utils.RandSource) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = utils.NewRandSource(cfg.Seed)
	}
	return &Controller{cfg: cfg, rng: rng}, nil
}

// Config returns the parameters the controller runs with
func (c *Controller) Config() config.Evolution {
	return c.cfg
}

// Rand returns the controller's random source
func (c *Controller) Rand() *utils.RandSource {
	return c.rng
}

// Quotas returns the elite, offspring and immigrant counts of one generation
func (c *Controller) Quotas() (elite, offspring, immigrants int) {
	return c.cfg.Quotas(c.cfg.PopulationSize)
}

// Advance produces the next population: the elites unchanged, then offspring
// bred from pairs of elites by crossover and mutation, then fresh random
// immigrants. The input population is left untouched.
func (c *Controller) Advance(pop genome.Population, scores []float64) (genome.Population, error) {
	n := c.cfg.PopulationSize
	if len(pop) != n {
		return nil, fmt.Errorf("expected population of %d, got %d", n, len(pop))
	}
	eliteCount, offspringCount, immigrantCount := c.cfg.Quotas(n)

	elites, err := SelectElite(pop, scores, c.cfg.EliteFraction)
	if err != nil {
		return nil, fmt.Errorf("failed to select elites: %w", err)
	}
	if len(elites) != eliteCount {
		return nil, fmt.Errorf("selected %d elites, expected %d", len(elites), eliteCount)
	}

	next := make(genome.Population, 0, n)
	for _, e := range elites {
		next = append(next, e.Clone())
	}

	for i := 0; i < offspringCount; i++ {
		p1, p2 := pickParents(elites, c.rng)
		child, err := Crossover(p1, p2, c.rng)
		if err != nil {
			return nil, fmt.Errorf("crossover failed: %w", err)
		}
		child, err = Mutate(child, c.cfg.MutationStrength, c.rng)
		if err != nil {
			return nil, fmt.Errorf("mutation failed: %w", err)
		}
		next = append(next, child)
	}

	if immigrantCount > 0 {
		immigrants, err := InitialPopulation(immigrantCount, c.rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create immigrants: %w", err)
		}
		next = append(next, immigrants...)
	}

	return next, nil
}
