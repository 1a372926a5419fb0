package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/race-evolution/internal/evolution"
	"github.com/GoSim-25-26J-441/race-evolution/internal/fitness"
	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/internal/simulator"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// report is printed to stdout when the run ends
type report struct {
	Seed        int64                      `yaml:"seed"`
	Generations int                        `yaml:"generations"`
	StopReason  string                     `yaml:"stop_reason"`
	Converged   bool                       `yaml:"converged"`
	BestFitness float64                    `yaml:"best_fitness"`
	BestGenome  []float64                  `yaml:"best_genome"`
	BestDesign  genome.CarDesign           `yaml:"best_design"`
	History     []models.GenerationSummary `yaml:"history,omitempty"`
}

func main() {
	var configPath string
	var logLevel string
	var seed int64
	var generations int
	var withHistory bool
	var printConfig bool

	flag.StringVar(&configPath, "config", "", "path to config YAML (defaults are used when empty)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.Int64Var(&seed, "seed", 0, "random seed (overrides config; 0 keeps the config value)")
	flag.IntVar(&generations, "generations", 0, "number of generations (overrides config)")
	flag.BoolVar(&withHistory, "history", false, "include per-generation summaries in the output")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if seed != 0 {
		cfg.Evolution.Seed = seed
	}
	if generations > 0 {
		cfg.Evolution.Generations = generations
	}

	if printConfig {
		out, err := config.MarshalConfigYAML(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	// Logs go to stderr so stdout carries only the YAML report.
	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg)
	if result != nil && result.Best != nil {
		if werr := writeReport(os.Stdout, result, withHistory); werr != nil {
			logger.Error("failed to write report", "error", werr)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("evolution interrupted", "generations", resultGenerations(result))
			os.Exit(130)
		}
		logger.Error("evolution failed", "error", err)
		os.Exit(1)
	}
	logger.Info("evolution finished",
		"generations", result.Generations,
		"best_fitness", utils.Round(result.BestFitness, 4),
		"stop_reason", result.StopReason)
}

func run(ctx context.Context, cfg *config.Config) (*evolution.Result, error) {
	rng := utils.NewRandSource(cfg.Evolution.Seed)
	controller, err := evolution.NewController(cfg.Evolution, rng)
	if err != nil {
		return nil, err
	}
	if err := cfg.Simulator.Validate(); err != nil {
		return nil, err
	}

	backend, err := simulator.Open(cfg.Simulator, rng.Seed())
	if err != nil {
		return nil, fmt.Errorf("failed to open simulator: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to close simulator", "error", err)
		}
	}()

	evalOpts := []fitness.Option{fitness.WithParallelism(cfg.Evolution.Parallelism)}
	if cfg.Simulator.Batch {
		evalOpts = append(evalOpts, fitness.WithRacer(backend, cfg.Simulator.BatchSize))
	}

	evolver, err := evolution.NewEvolver(controller, fitness.NewEvaluator(backend, evalOpts...),
		evolution.WithTrackRenewer(backend))
	if err != nil {
		return nil, err
	}

	logger.Info("evolution started",
		"seed", rng.Seed(),
		"population_size", cfg.Evolution.PopulationSize,
		"generations", cfg.Evolution.Generations,
		"simulator", cfg.Simulator.Mode)
	return evolver.Run(ctx)
}

func writeReport(w io.Writer, result *evolution.Result, withHistory bool) error {
	out := report{
		Seed:        result.Seed,
		Generations: result.Generations,
		StopReason:  result.StopReason,
		Converged:   result.Converged,
		BestFitness: result.BestFitness,
		BestGenome:  result.Best,
		BestDesign:  result.BestDesign,
	}
	if withHistory {
		out.History = result.History
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func resultGenerations(result *evolution.Result) int {
	if result == nil {
		return 0
	}
	return result.Generations
}
