// Package evolution implements the genetic algorithm that evolves car
// genomes: random initialization, elite selection, single-point crossover,
// Gaussian mutation and generational replacement.
//
// Every random decision is drawn from one *utils.RandSource, so a run is
// reproducible from its seed when the simulator is deterministic.
package evolution
