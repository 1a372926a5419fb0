package evolution

import (
	"errors"
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// InitialPopulation creates n random genomes, each field drawn uniformly from
// its domain and then repaired into a valid design.
func InitialPopulation(n int, rng *utils.RandSource) (genome.Population, error) {
	if n <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", n)
	}
	pop := make(genome.Population, n)
	for i := range pop {
		g := make(genome.Genome, genome.Length)
		for f := range g {
			d := genome.FieldDomain(f)
			g[f] = rng.UniformFloat64(d.Min, d.Max)
		}
		repaired, err := genome.Repair(g)
		if err != nil {
			return nil, err
		}
		pop[i] = repaired
	}
	return pop, nil
}

// SelectElite returns deep copies of the top floor(fraction*N) genomes
// (at least one), best first. Ties keep population order.
func SelectElite(pop genome.Population, scores []float64, fraction float64) ([]genome.Genome, error) {
	if len(pop) == 0 {
		return nil, errors.New("cannot select from an empty population")
	}
	if len(pop) != len(scores) {
		return nil, fmt.Errorf("population has %d genomes but %d scores", len(pop), len(scores))
	}

	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	k := config.FractionCount(fraction, len(pop))
	elites := make([]genome.Genome, k)
	for i := 0; i < k; i++ {
		elites[i] = pop[order[i]].Clone()
	}
	return elites, nil
}

// Crossover cuts both parents at a point drawn uniformly from 1..Length-1 and
// joins the head of p1 with the tail of p2. The child is repaired.
func Crossover(p1, p2 genome.Genome, rng *utils.RandSource) (genome.Genome, error) {
	if len(p1) != genome.Length || len(p2) != genome.Length {
		return nil, fmt.Errorf("%w: crossover parents have %d and %d values", genome.ErrMalformedGenome, len(p1), len(p2))
	}
	point := rng.IntRange(1, genome.Length-1)
	return crossoverAt(p1, p2, point)
}

func crossoverAt(p1, p2 genome.Genome, point int) (genome.Genome, error) {
	child := make(genome.Genome, 0, genome.Length)
	child = append(child, p1[:point]...)
	child = append(child, p2[point:]...)
	return genome.Repair(child)
}

// Mutate adds independent N(0, strength^2) noise to every field and repairs
// the result. The input genome is not modified.
func Mutate(g genome.Genome, strength float64, rng *utils.RandSource) (genome.Genome, error) {
	if len(g) != genome.Length {
		return nil, fmt.Errorf("%w: got %d values", genome.ErrMalformedGenome, len(g))
	}
	mutated := make(genome.Genome, genome.Length)
	for i, v := range g {
		mutated[i] = v + rng.NormFloat64(0, strength)
	}
	return genome.Repair(mutated)
}

// pickParents draws two distinct elites uniformly at random. A pool of one
// returns that genome twice.
func pickParents(elites []genome.Genome, rng *utils.RandSource) (genome.Genome, genome.Genome) {
	k := len(elites)
	if k == 1 {
		return elites[0], elites[0]
	}
	i := rng.Intn(k)
	j := rng.Intn(k - 1)
	if j >= i {
		j++
	}
	return elites[i], elites[j]
}
