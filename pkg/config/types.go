package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// fractionTolerance absorbs float round-off when checking that fractions sum to 1.
const fractionTolerance = 1e-9

// MaxBatchSize is the largest race the simulator accepts in one call.
const MaxBatchSize = 100

// Config is the root configuration of the evolution tools
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Evolution Evolution `yaml:"evolution"`
	Simulator Simulator `yaml:"simulator"`
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	Events    Events    `yaml:"events"`
}

// Evolution holds the genetic algorithm parameters
type Evolution struct {
	PopulationSize    int     `yaml:"population_size" json:"population_size"`
	Generations       int     `yaml:"generations" json:"generations"`
	EliteFraction     float64 `yaml:"elite_fraction" json:"elite_fraction"`
	OffspringFraction float64 `yaml:"offspring_fraction" json:"offspring_fraction"`
	ImmigrantFraction float64 `yaml:"immigrant_fraction" json:"immigrant_fraction"`
	MutationStrength  float64 `yaml:"mutation_strength" json:"mutation_strength"`
	Seed              int64   `yaml:"seed" json:"seed"`
	Parallelism       int     `yaml:"parallelism" json:"parallelism"`
	NewTrackEvery     int     `yaml:"new_track_every" json:"new_track_every"`
	Stop              Stop    `yaml:"stop" json:"stop"`
}

// Stop configures optional early termination. Zero values disable each rule.
type Stop struct {
	StagnationGenerations int     `yaml:"stagnation_generations" json:"stagnation_generations"`
	MinImprovement        float64 `yaml:"min_improvement" json:"min_improvement"`
	TargetFitness         float64 `yaml:"target_fitness" json:"target_fitness"`
}

// Simulator configures how cars are raced
type Simulator struct {
	Mode           string   `yaml:"mode" json:"mode"` // synthetic or process
	Binary         string   `yaml:"binary" json:"binary"`
	Args           []string `yaml:"args" json:"args,omitempty"`
	Port           int      `yaml:"port" json:"port"`
	Timeout        string   `yaml:"timeout" json:"timeout"` // e.g. "30s"
	Batch          bool     `yaml:"batch" json:"batch"`
	BatchSize      int      `yaml:"batch_size" json:"batch_size"`
	TrackLength    float64  `yaml:"track_length" json:"track_length"`
	MaxRestarts    int      `yaml:"max_restarts" json:"max_restarts"`
	RestartBackoff string   `yaml:"restart_backoff" json:"restart_backoff"` // exponential, linear, constant
	RestartBaseMs  int      `yaml:"restart_base_ms" json:"restart_base_ms"`
}

// Server holds the daemon listen addresses
type Server struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// Store configures run persistence
type Store struct {
	BadgerDir string `yaml:"badger_dir"` // empty keeps badger in memory
}

// Events configures generation event publishing
type Events struct {
	NATSURL string `yaml:"nats_url"` // empty disables publishing
	Subject string `yaml:"subject"`
}

// Simulator modes
const (
	SimulatorModeSynthetic = "synthetic"
	SimulatorModeProcess   = "process"
)

// GetTimeout parses the per-call simulator timeout
func (s *Simulator) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(s.Timeout)
}

// Quotas splits a population of n into elite, offspring and immigrant counts.
// The elite count is at least one; offspring take whatever the others leave.
func (e Evolution) Quotas(n int) (elite, offspring, immigrants int) {
	elite = FractionCount(e.EliteFraction, n)
	immigrants = int(math.Floor(e.ImmigrantFraction*float64(n) + fractionTolerance))
	if immigrants > n-elite {
		immigrants = n - elite
	}
	if immigrants < 0 {
		immigrants = 0
	}
	offspring = n - elite - immigrants
	return elite, offspring, immigrants
}

// FractionCount is floor(fraction*n), at least 1 and at most n.
func FractionCount(fraction float64, n int) int {
	count := int(math.Floor(fraction*float64(n) + fractionTolerance))
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count
}

// Validate checks the evolution parameters; failures wrap ErrInvalidConfig.
func (e Evolution) Validate() error {
	if e.PopulationSize <= 0 {
		return fmt.Errorf("%w: population_size must be positive, got %d", ErrInvalidConfig, e.PopulationSize)
	}
	if e.Generations <= 0 {
		return fmt.Errorf("%w: generations must be positive, got %d", ErrInvalidConfig, e.Generations)
	}
	fractions := map[string]float64{
		"elite_fraction":     e.EliteFraction,
		"offspring_fraction": e.OffspringFraction,
		"immigrant_fraction": e.ImmigrantFraction,
	}
	for name, f := range fractions {
		if math.IsNaN(f) || f < 0 || f > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %f", ErrInvalidConfig, name, f)
		}
	}
	sum := e.EliteFraction + e.OffspringFraction + e.ImmigrantFraction
	if math.Abs(sum-1.0) > fractionTolerance {
		return fmt.Errorf("%w: elite, offspring and immigrant fractions must sum to 1.0, got %f", ErrInvalidConfig, sum)
	}
	if math.IsNaN(e.MutationStrength) || e.MutationStrength < 0 {
		return fmt.Errorf("%w: mutation_strength cannot be negative, got %f", ErrInvalidConfig, e.MutationStrength)
	}
	if e.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism cannot be negative, got %d", ErrInvalidConfig, e.Parallelism)
	}
	if e.NewTrackEvery < 0 {
		return fmt.Errorf("%w: new_track_every cannot be negative, got %d", ErrInvalidConfig, e.NewTrackEvery)
	}
	if e.Stop.StagnationGenerations < 0 {
		return fmt.Errorf("%w: stop.stagnation_generations cannot be negative, got %d", ErrInvalidConfig, e.Stop.StagnationGenerations)
	}
	return nil
}
