// Package simulator races car designs, either against the external carsim
// binary over its line protocol or against an in-process synthetic model.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

var (
	// ErrNoCars is returned for a race without cars.
	ErrNoCars = errors.New("race needs at least one car")
	// ErrTooManyCars is returned for a race above config.MaxBatchSize cars.
	ErrTooManyCars = fmt.Errorf("race accepts at most %d cars", config.MaxBatchSize)
	// ErrClosed is returned by calls on a closed backend.
	ErrClosed = errors.New("simulator closed")
	// ErrUnavailable is returned when the simulator process could not be
	// brought back after the configured number of restarts.
	ErrUnavailable = errors.New("simulator process unavailable")
	// ErrTrackGeneration is returned when the simulator did not confirm a new track.
	ErrTrackGeneration = errors.New("simulator was not able to generate a new track")
)

// SimulationError is an error reported by the simulator itself on an ERR line.
type SimulationError struct {
	Message string
}

func (e *SimulationError) Error() string {
	return "simulation error: " + e.Message
}

// State is one sample of a simulated car trajectory.
type State struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// Backend is a race simulator.
type Backend interface {
	// Simulate races a single car.
	Simulate(ctx context.Context, design genome.CarDesign) (models.Outcome, error)
	// Race races up to config.MaxBatchSize cars together; outcomes follow input order.
	Race(ctx context.Context, designs []genome.CarDesign) ([]models.Outcome, error)
	// Trajectory returns the frame positions of a single car over time.
	Trajectory(ctx context.Context, design genome.CarDesign) ([]State, error)
	// NewTrack replaces the track used by every following race.
	NewTrack(ctx context.Context) error
	io.Closer
}

// Open creates the backend selected by cfg.Mode.
func Open(cfg config.Simulator, seed int64) (Backend, error) {
	switch cfg.Mode {
	case "", config.SimulatorModeSynthetic:
		return NewSynthetic(seed), nil
	case config.SimulatorModeProcess:
		return StartProcess(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown simulator mode %q", config.ErrInvalidConfig, cfg.Mode)
	}
}

func checkRaceSize(n int) error {
	if n == 0 {
		return ErrNoCars
	}
	if n > config.MaxBatchSize {
		return fmt.Errorf("%w: got %d", ErrTooManyCars, n)
	}
	return nil
}
