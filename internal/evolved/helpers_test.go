package evolved

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/internal/simulator"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

func testDefaults() config.Config {
	cfg := config.Default()
	cfg.Evolution.PopulationSize = 10
	cfg.Evolution.Generations = 3
	cfg.Evolution.Seed = 7
	return *cfg
}

func testInput() RunInput {
	cfg := testDefaults()
	return RunInput{Evolution: cfg.Evolution, Simulator: cfg.Simulator}
}

func waitForStatus(t *testing.T, store *RunStore, runID string, want models.RunStatus) *RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := store.Get(runID)
		if ok && rec.Run.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := store.Get(runID)
	t.Fatalf("run %s did not reach %s, last state %+v", runID, want, rec.Run)
	return nil
}

// blockingBackend races nothing until its context is cancelled
type blockingBackend struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{started: make(chan struct{})}
}

func (b *blockingBackend) block(ctx context.Context) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingBackend) Simulate(ctx context.Context, _ genome.CarDesign) (models.Outcome, error) {
	return models.Outcome{}, b.block(ctx)
}

func (b *blockingBackend) Race(ctx context.Context, _ []genome.CarDesign) ([]models.Outcome, error) {
	return nil, b.block(ctx)
}

func (b *blockingBackend) Trajectory(ctx context.Context, _ genome.CarDesign) ([]simulator.State, error) {
	return nil, b.block(ctx)
}

func (b *blockingBackend) NewTrack(context.Context) error { return nil }
func (b *blockingBackend) Close() error                   { return nil }

func blockingFactory(b *blockingBackend) SimulatorFactory {
	return func(config.Simulator, int64) (simulator.Backend, error) {
		return b, nil
	}
}

func failingFactory(config.Simulator, int64) (simulator.Backend, error) {
	return nil, errors.New("carsim binary missing")
}

// recordingBroadcaster keeps every event it receives
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingBroadcaster) Broadcast(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) Publish(event Event) error {
	r.Broadcast(event)
	return nil
}

func (r *recordingBroadcaster) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
