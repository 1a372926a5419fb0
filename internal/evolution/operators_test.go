package evolution

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// parentA and parentB differ in every field and any mix of them is valid.
func parentA() genome.Genome {
	return genome.Encode(genome.CarDesign{
		FrameLength:  3,
		UpperProfile: [genome.ProfilePoints]float64{1, 1, 1, 1, 1},
		LowerProfile: [genome.ProfilePoints]float64{1.5, 1.5, 1.5, 1.5, 1.5},
		LeftWheel:    genome.Wheel{Position: 0.2, Radius: 0.5},
		RightWheel:   genome.Wheel{Position: 0.8, Radius: 0.6},
	})
}

func parentB() genome.Genome {
	return genome.Encode(genome.CarDesign{
		FrameLength:  5,
		UpperProfile: [genome.ProfilePoints]float64{2, 2, 2, 2, 2},
		LowerProfile: [genome.ProfilePoints]float64{2.5, 2.5, 2.5, 2.5, 2.5},
		LeftWheel:    genome.Wheel{Position: 0.3, Radius: 1.5},
		RightWheel:   genome.Wheel{Position: 0.7, Radius: 1.6},
	})
}

func TestInitialPopulation(t *testing.T) {
	rng := utils.NewRandSource(7)
	pop, err := InitialPopulation(50, rng)
	if err != nil {
		t.Fatalf("InitialPopulation failed: %v", err)
	}
	if len(pop) != 50 {
		t.Fatalf("expected 50 genomes, got %d", len(pop))
	}
	for i, g := range pop {
		if !genome.IsValid(g) {
			t.Fatalf("genome %d is not valid: %v", i, genome.Violations(g))
		}
	}
}

func TestInitialPopulationRejectsNonPositiveSize(t *testing.T) {
	for _, n := range []int{0, -3} {
		if _, err := InitialPopulation(n, utils.NewRandSource(1)); err == nil {
			t.Fatalf("expected error for size %d", n)
		}
	}
}

func TestInitialPopulationDeterministic(t *testing.T) {
	a, _ := InitialPopulation(10, utils.NewRandSource(99))
	b, _ := InitialPopulation(10, utils.NewRandSource(99))
	for i := range a {
		for f := range a[i] {
			if a[i][f] != b[i][f] {
				t.Fatalf("genome %d field %d differs between runs with the same seed", i, f)
			}
		}
	}
}

func TestSelectElite(t *testing.T) {
	pop := genome.Population{parentA(), parentB(), parentA(), parentB()}
	pop[2][0] = 4
	scores := []float64{1.0, 3.0, 3.0, 0.5}

	elites, err := SelectElite(pop, scores, 0.5)
	if err != nil {
		t.Fatalf("SelectElite failed: %v", err)
	}
	if len(elites) != 2 {
		t.Fatalf("expected 2 elites, got %d", len(elites))
	}
	// Tie between index 1 and 2 keeps population order.
	if elites[0][0] != pop[1][0] || elites[1][0] != pop[2][0] {
		t.Fatalf("unexpected elite order: frames %f, %f", elites[0][0], elites[1][0])
	}

	elites[0][0] = 42
	if pop[1][0] == 42 {
		t.Fatal("elites must be deep copies")
	}
}

func TestSelectEliteAtLeastOne(t *testing.T) {
	pop := genome.Population{parentA(), parentB(), parentA()}
	elites, err := SelectElite(pop, []float64{0.1, 0.9, 0.2}, 0.01)
	if err != nil {
		t.Fatalf("SelectElite failed: %v", err)
	}
	if len(elites) != 1 || elites[0][0] != pop[1][0] {
		t.Fatalf("expected the single best genome, got %d elites", len(elites))
	}
}

func TestSelectEliteErrors(t *testing.T) {
	if _, err := SelectElite(nil, nil, 0.3); err == nil {
		t.Fatal("expected error for empty population")
	}
	if _, err := SelectElite(genome.Population{parentA()}, []float64{1, 2}, 0.3); err == nil {
		t.Fatal("expected error for mismatched scores")
	}
}

func TestCrossoverAtPointSix(t *testing.T) {
	a, b := parentA(), parentB()
	child, err := crossoverAt(a, b, 6)
	if err != nil {
		t.Fatalf("crossoverAt failed: %v", err)
	}
	want := append(a[:6:6], b[6:]...)
	for i := range want {
		if child[i] != want[i] {
			t.Fatalf("child[%d] = %f, want %f", i, child[i], want[i])
		}
	}
}

func TestCrossoverPointRange(t *testing.T) {
	a, b := parentA(), parentB()
	rng := utils.NewRandSource(3)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		child, err := Crossover(a, b, rng)
		if err != nil {
			t.Fatalf("Crossover failed: %v", err)
		}
		point := 0
		for point < genome.Length && child[point] == a[point] {
			point++
		}
		if point < 1 || point > genome.Length-1 {
			t.Fatalf("crossover point %d outside 1..%d", point, genome.Length-1)
		}
		for f := point; f < genome.Length; f++ {
			if child[f] != b[f] {
				t.Fatalf("child field %d not taken from second parent after point %d", f, point)
			}
		}
		seen[point] = true
	}
	if len(seen) != genome.Length-1 {
		t.Fatalf("expected every crossover point to occur, saw %d", len(seen))
	}
}

func TestCrossoverRepairsChild(t *testing.T) {
	a, b := parentA(), parentB()
	// Tall first parent, tall second parent: a mixed point may exceed 5.0.
	for i := 1; i <= 5; i++ {
		a[i] = 4.5
		b[i+5] = 4.5
	}
	rng := utils.NewRandSource(11)
	for i := 0; i < 100; i++ {
		child, err := Crossover(a, b, rng)
		if err != nil {
			t.Fatalf("Crossover failed: %v", err)
		}
		if !genome.IsValid(child) {
			t.Fatalf("child is not valid: %v", genome.Violations(child))
		}
	}
}

func TestCrossoverMalformed(t *testing.T) {
	_, err := Crossover(genome.Genome{1, 2}, parentB(), utils.NewRandSource(1))
	if !errors.Is(err, genome.ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestMutate(t *testing.T) {
	g := parentA()
	rng := utils.NewRandSource(5)
	mutated, err := Mutate(g, 0.05, rng)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !genome.IsValid(mutated) {
		t.Fatalf("mutated genome is not valid: %v", genome.Violations(mutated))
	}
	changed := 0
	for i := range g {
		if mutated[i] != g[i] {
			changed++
		}
		if math.Abs(mutated[i]-g[i]) > 0.5 {
			t.Fatalf("field %d moved by %f, far more than the mutation strength", i, mutated[i]-g[i])
		}
	}
	if changed == 0 {
		t.Fatal("expected mutation to change the genome")
	}
	if g[0] != 3 {
		t.Fatal("Mutate must not modify its input")
	}
}

func TestMutateZeroStrength(t *testing.T) {
	g := parentB()
	mutated, err := Mutate(g, 0, utils.NewRandSource(1))
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	for i := range g {
		if mutated[i] != g[i] {
			t.Fatalf("field %d changed with zero strength", i)
		}
	}
}

func TestMutateKeepsValidityUnderLargeNoise(t *testing.T) {
	rng := utils.NewRandSource(17)
	g := parentA()
	for i := 0; i < 200; i++ {
		var err error
		g, err = Mutate(g, 2.0, rng)
		if err != nil {
			t.Fatalf("Mutate failed: %v", err)
		}
		if !genome.IsValid(g) {
			t.Fatalf("iteration %d: invalid genome %v", i, genome.Violations(g))
		}
	}
}

func TestPickParents(t *testing.T) {
	rng := utils.NewRandSource(21)
	single := []genome.Genome{parentA()}
	p1, p2 := pickParents(single, rng)
	if &p1[0] != &single[0][0] || &p2[0] != &single[0][0] {
		t.Fatal("a pool of one must yield the same genome twice")
	}

	pool := []genome.Genome{parentA(), parentB(), parentA(), parentB()}
	for i := range pool {
		pool[i][0] = float64(2 + i)
	}
	counts := map[float64]int{}
	for i := 0; i < 4000; i++ {
		p1, p2 := pickParents(pool, rng)
		if p1[0] == p2[0] {
			t.Fatal("parents must be distinct elites")
		}
		counts[p1[0]]++
		counts[p2[0]]++
	}
	for frame, c := range counts {
		if c < 1500 || c > 2500 {
			t.Fatalf("elite with frame %f picked %d times, expected roughly 2000", frame, c)
		}
	}
}
