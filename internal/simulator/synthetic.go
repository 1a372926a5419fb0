package simulator

import (
	"context"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

const trajectorySamples = 50

// Synthetic is a deterministic stand-in for the carsim binary. It has no
// physics: completion grows with wheelbase, wheel size and clearance and
// shrinks with body mass. Each track scales the mass penalty by a roughness
// factor.
type Synthetic struct {
	mu        sync.Mutex
	rng       *utils.RandSource
	roughness float64
	tracks    int
	closed    bool
}

// NewSynthetic creates a synthetic simulator. Track changes are drawn from seed.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{
		rng:       utils.NewRandSource(seed),
		roughness: 1.0,
	}
}

// Simulate races a single car.
func (s *Synthetic) Simulate(ctx context.Context, design genome.CarDesign) (models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Outcome{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}
	return s.outcome(design), nil
}

// Race races every design independently on the current track.
func (s *Synthetic) Race(ctx context.Context, designs []genome.CarDesign) ([]models.Outcome, error) {
	if err := checkRaceSize(len(designs)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.Outcome, len(designs))
	for i, d := range designs {
		out[i] = s.outcome(d)
	}
	return out, nil
}

// Trajectory returns evenly spaced samples over the distance the car covers.
func (s *Synthetic) Trajectory(ctx context.Context, design genome.CarDesign) ([]State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	o := s.outcome(design)
	states := make([]State, trajectorySamples)
	for i := range states {
		x := o.Completion * float64(i) / float64(trajectorySamples-1)
		states[i] = State{
			X:     x,
			Y:     0.1 * s.roughness * math.Sin(8*math.Pi*x),
			Angle: math.Atan(0.8 * math.Pi * s.roughness * math.Cos(8*math.Pi*x)),
		}
	}
	return states, nil
}

// NewTrack draws a new roughness factor in [0.8, 1.2).
func (s *Synthetic) NewTrack(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.roughness = s.rng.UniformFloat64(0.8, 1.2)
	s.tracks++
	return nil
}

// Tracks returns how many tracks have been generated since creation
func (s *Synthetic) Tracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Close marks the simulator closed.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// outcome scores a design on the current track. Callers hold s.mu.
func (s *Synthetic) outcome(d genome.CarDesign) models.Outcome {
	// Cars without two rolling wheels do not move.
	if d.LeftWheel.Radius <= 0 || d.RightWheel.Radius <= 0 {
		return models.Outcome{}
	}

	wheelbase := math.Abs(d.RightWheel.Position-d.LeftWheel.Position) * d.FrameLength
	meanRadius := (d.LeftWheel.Radius + d.RightWheel.Radius) / 2

	var upper, lower float64
	for i := 0; i < genome.ProfilePoints; i++ {
		upper += d.UpperProfile[i]
		lower += d.LowerProfile[i]
	}
	upper /= genome.ProfilePoints
	lower /= genome.ProfilePoints

	mass := d.FrameLength * (upper + lower)
	clearance := utils.ClampFloat64(2*meanRadius-lower, -1, 1)
	stability := 1 - math.Exp(-wheelbase/2)
	grip := math.Min(meanRadius, 1.2) / 1.2

	completion := stability*(0.6+0.6*grip) + 0.1*clearance - 0.03*mass*s.roughness
	completion = utils.ClampFloat64(completion, 0, 1)
	if completion < 1 {
		return models.Outcome{Completion: completion}
	}

	raceTime := 20 + 2*mass*s.roughness + 10/(meanRadius+0.1)
	return models.Outcome{Completion: 1, Time: raceTime, Finished: true}
}
