package fitness

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// frameSim finishes every car in a time equal to ten times its frame length.
type frameSim struct {
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	failOver float64 // frame lengths above this fail
}

func (s *frameSim) Simulate(ctx context.Context, d genome.CarDesign) (models.Outcome, error) {
	s.calls.Add(1)
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.failOver > 0 && d.FrameLength > s.failOver {
		return models.Outcome{}, errors.New("simulator crashed")
	}
	return models.Outcome{Completion: 1, Time: d.FrameLength * 10, Finished: true}, nil
}

// batchRacer records batch sizes and reports completion = frame length / 10.
type batchRacer struct {
	mu      sync.Mutex
	batches []int
	fail    bool
}

func (r *batchRacer) Race(ctx context.Context, designs []genome.CarDesign) ([]models.Outcome, error) {
	r.mu.Lock()
	r.batches = append(r.batches, len(designs))
	r.mu.Unlock()
	if r.fail {
		return nil, errors.New("broken pipe")
	}
	out := make([]models.Outcome, len(designs))
	for i, d := range designs {
		out[i] = models.Outcome{Completion: d.FrameLength / 10}
	}
	return out, nil
}

func populationWithFrames(frames ...float64) genome.Population {
	pop := make(genome.Population, len(frames))
	for i, f := range frames {
		pop[i] = genome.Encode(genome.CarDesign{
			FrameLength:  f,
			UpperProfile: [genome.ProfilePoints]float64{0.5, 0.5, 0.5, 0.5, 0.5},
			LowerProfile: [genome.ProfilePoints]float64{0.5, 0.5, 0.5, 0.5, 0.5},
			LeftWheel:    genome.Wheel{Position: 0.1, Radius: 0.5},
			RightWheel:   genome.Wheel{Position: 0.9, Radius: 0.5},
		})
	}
	return pop
}

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator(&frameSim{})
	score, err := ev.Evaluate(context.Background(), populationWithFrames(4.2)[0])
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(score-59.0) > 1e-9 {
		t.Fatalf("expected score 59, got %f", score)
	}
}

func TestEvaluateMalformedGenome(t *testing.T) {
	ev := NewEvaluator(&frameSim{})
	_, err := ev.Evaluate(context.Background(), genome.Genome{1, 2, 3})
	if !errors.Is(err, genome.ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestEvaluateSimulatorFailure(t *testing.T) {
	ev := NewEvaluator(&frameSim{failOver: 3})
	score, err := ev.Evaluate(context.Background(), populationWithFrames(5)[0])
	if !errors.Is(err, ErrSimulatorFailure) {
		t.Fatalf("expected ErrSimulatorFailure, got %v", err)
	}
	if want := Score(models.FailedOutcome()); score != want {
		t.Fatalf("expected failed outcome score %v, got %v", want, score)
	}
}

func TestEvaluatePopulationKeepsOrder(t *testing.T) {
	sim := &frameSim{delay: time.Millisecond}
	ev := NewEvaluator(sim, WithParallelism(4))
	frames := []float64{2, 3, 4, 5, 6, 2.5, 3.5, 4.5}
	report, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(frames...))
	if err != nil {
		t.Fatalf("EvaluatePopulation failed: %v", err)
	}
	if int(sim.calls.Load()) != len(frames) {
		t.Fatalf("expected %d simulator calls, got %d", len(frames), sim.calls.Load())
	}
	for i, f := range frames {
		want := 1 + (100 - f*10)
		if math.Abs(report.Scores[i]-want) > 1e-9 {
			t.Fatalf("score[%d] = %f, want %f", i, report.Scores[i], want)
		}
	}
	if report.Failures != 0 {
		t.Fatalf("expected no failures, got %d", report.Failures)
	}
}

func TestEvaluatePopulationBoundsParallelism(t *testing.T) {
	sim := &frameSim{delay: 5 * time.Millisecond}
	ev := NewEvaluator(sim, WithParallelism(2))
	if _, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(2, 3, 4, 5, 6, 2, 3, 4)); err != nil {
		t.Fatalf("EvaluatePopulation failed: %v", err)
	}
	if peak := sim.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent simulations, saw %d", peak)
	}
}

func TestEvaluatePopulationNeverCaches(t *testing.T) {
	sim := &frameSim{}
	ev := NewEvaluator(sim)
	pop := populationWithFrames(3, 3, 3)
	for i := 0; i < 2; i++ {
		if _, err := ev.EvaluatePopulation(context.Background(), pop); err != nil {
			t.Fatalf("EvaluatePopulation failed: %v", err)
		}
	}
	if sim.calls.Load() != 6 {
		t.Fatalf("expected 6 simulator calls over two passes, got %d", sim.calls.Load())
	}
}

func TestEvaluatePopulationPartialFailure(t *testing.T) {
	ev := NewEvaluator(&frameSim{failOver: 4}, WithParallelism(3))
	report, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(2, 5, 3, 6))
	if err != nil {
		t.Fatalf("partial failure should not abort the pass: %v", err)
	}
	if report.Failures != 2 {
		t.Fatalf("expected 2 failures, got %d", report.Failures)
	}
	for _, idx := range []int{1, 3} {
		if !report.Outcomes[idx].Failed || report.Scores[idx] != 0 {
			t.Fatalf("genome %d: expected failed outcome scoring 0, got %+v score %f", idx, report.Outcomes[idx], report.Scores[idx])
		}
		if !errors.Is(report.Errors[idx], ErrSimulatorFailure) {
			t.Fatalf("genome %d: expected ErrSimulatorFailure, got %v", idx, report.Errors[idx])
		}
	}
	if report.Errors[0] != nil || report.Scores[0] <= 1 {
		t.Fatalf("genome 0 should have finished, got %+v", report.Outcomes[0])
	}
}

func TestEvaluatePopulationAllFailed(t *testing.T) {
	ev := NewEvaluator(&frameSim{failOver: 1})
	report, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(2, 3))
	if !errors.Is(err, ErrSimulatorUnavailable) {
		t.Fatalf("expected ErrSimulatorUnavailable, got %v", err)
	}
	if report == nil || report.Failures != 2 {
		t.Fatalf("expected report with 2 failures, got %+v", report)
	}
}

func TestEvaluatePopulationBatched(t *testing.T) {
	racer := &batchRacer{}
	ev := NewEvaluator(&frameSim{}, WithRacer(racer, 3), WithParallelism(1))
	if !ev.Batched() {
		t.Fatal("expected evaluator to be batched")
	}
	frames := []float64{2, 3, 4, 5, 6, 2.5, 3.5}
	report, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(frames...))
	if err != nil {
		t.Fatalf("EvaluatePopulation failed: %v", err)
	}

	total := 0
	for _, b := range racer.batches {
		if b > 3 {
			t.Fatalf("batch of %d exceeds batch size 3", b)
		}
		total += b
	}
	if len(racer.batches) != 3 || total != len(frames) {
		t.Fatalf("expected 3 batches covering %d cars, got %v", len(frames), racer.batches)
	}
	for i, f := range frames {
		if math.Abs(report.Scores[i]-f/10) > 1e-9 {
			t.Fatalf("score[%d] = %f, want %f", i, report.Scores[i], f/10)
		}
	}
}

func TestWithRacerCapsBatchSize(t *testing.T) {
	ev := NewEvaluator(&frameSim{}, WithRacer(&batchRacer{}, 500))
	if ev.batchSize != 100 {
		t.Fatalf("expected batch size capped at 100, got %d", ev.batchSize)
	}
}

func TestEvaluatePopulationBatchFailure(t *testing.T) {
	ev := NewEvaluator(&frameSim{}, WithRacer(&batchRacer{fail: true}, 10))
	report, err := ev.EvaluatePopulation(context.Background(), populationWithFrames(2, 3, 4))
	if !errors.Is(err, ErrSimulatorUnavailable) {
		t.Fatalf("expected ErrSimulatorUnavailable, got %v", err)
	}
	if report.Failures != 3 {
		t.Fatalf("expected every car in the failed batch counted, got %d", report.Failures)
	}
}

func TestEvaluatePopulationEmpty(t *testing.T) {
	report, err := NewEvaluator(&frameSim{}).EvaluatePopulation(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty population should not fail: %v", err)
	}
	if len(report.Scores) != 0 {
		t.Fatalf("expected no scores, got %d", len(report.Scores))
	}
}
