package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a complete configuration with every default filled in
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued settings. Fractions are only defaulted
// when all three are unset, so a partial split still fails validation.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	ev := &cfg.Evolution
	if ev.PopulationSize == 0 {
		ev.PopulationSize = 100
	}
	if ev.Generations == 0 {
		ev.Generations = 50
	}
	if ev.EliteFraction == 0 && ev.OffspringFraction == 0 && ev.ImmigrantFraction == 0 {
		ev.EliteFraction = 0.3
		ev.OffspringFraction = 0.4
		ev.ImmigrantFraction = 0.3
	}
	if ev.MutationStrength == 0 {
		ev.MutationStrength = 0.05
	}
	if ev.Parallelism == 0 {
		ev.Parallelism = 1
	}

	sim := &cfg.Simulator
	if sim.Mode == "" {
		sim.Mode = SimulatorModeSynthetic
	}
	if sim.Binary == "" {
		sim.Binary = "./carsim"
	}
	if sim.Timeout == "" {
		sim.Timeout = "30s"
	}
	if sim.BatchSize == 0 {
		sim.BatchSize = MaxBatchSize
	}
	if sim.MaxRestarts == 0 {
		sim.MaxRestarts = 3
	}
	if sim.RestartBackoff == "" {
		sim.RestartBackoff = "exponential"
	}
	if sim.RestartBaseMs == 0 {
		sim.RestartBaseMs = 100
	}

	if cfg.Server.GRPCAddr == "" {
		cfg.Server.GRPCAddr = ":50051"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "evolution.generations"
	}
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("%w: invalid log_level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, cfg.LogLevel)
	}

	if err := cfg.Evolution.Validate(); err != nil {
		return fmt.Errorf("evolution validation failed: %w", err)
	}

	if err := cfg.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator validation failed: %w", err)
	}

	return nil
}

// Validate checks the simulator settings; failures wrap ErrInvalidConfig.
func (s *Simulator) Validate() error {
	switch s.Mode {
	case SimulatorModeSynthetic:
	case SimulatorModeProcess:
		if s.Binary == "" {
			return fmt.Errorf("%w: binary is required in process mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: invalid mode: %s (must be synthetic or process)", ErrInvalidConfig, s.Mode)
	}

	if s.Port < 0 || s.Port > 0xffff {
		return fmt.Errorf("%w: port must be between 0 and 65535, got %d", ErrInvalidConfig, s.Port)
	}
	if timeout, err := s.GetTimeout(); err != nil {
		return fmt.Errorf("%w: invalid timeout %s: %v", ErrInvalidConfig, s.Timeout, err)
	} else if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, s.Timeout)
	}
	if s.BatchSize < 1 || s.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size must be between 1 and %d, got %d", ErrInvalidConfig, MaxBatchSize, s.BatchSize)
	}
	if s.TrackLength < 0 {
		return fmt.Errorf("%w: track_length cannot be negative, got %f", ErrInvalidConfig, s.TrackLength)
	}
	if s.MaxRestarts < 0 {
		return fmt.Errorf("%w: max_restarts cannot be negative, got %d", ErrInvalidConfig, s.MaxRestarts)
	}
	validBackoffs := map[string]bool{
		"exponential": true,
		"linear":      true,
		"constant":    true,
	}
	if !validBackoffs[s.RestartBackoff] {
		return fmt.Errorf("%w: invalid restart_backoff: %s (must be exponential, linear, or constant)", ErrInvalidConfig, s.RestartBackoff)
	}
	if s.RestartBaseMs < 0 {
		return fmt.Errorf("%w: restart_base_ms cannot be negative, got %d", ErrInvalidConfig, s.RestartBaseMs)
	}
	return nil
}
