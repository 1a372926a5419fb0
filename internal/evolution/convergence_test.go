package evolution

import (
	"testing"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

func historyOf(best ...float64) []models.GenerationSummary {
	h := make([]models.GenerationSummary, len(best))
	for i, b := range best {
		h[i] = models.GenerationSummary{Generation: i + 1, BestFitness: b}
	}
	return h
}

func TestStagnationStrategy(t *testing.T) {
	s := &StagnationStrategy{Generations: 3, MinImprovement: 0.01}

	tests := []struct {
		name    string
		history []models.GenerationSummary
		want    bool
	}{
		{"too short", historyOf(1, 1, 1), false},
		{"flat", historyOf(1, 1, 1, 1), true},
		{"tiny gains", historyOf(1, 1.001, 1.002, 1.005), true},
		{"recent improvement", historyOf(1, 1, 1, 1.5), false},
		{"improved earlier then flat", historyOf(0.2, 0.8, 0.8, 0.8, 0.8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converged, reason := s.CheckConvergence(tt.history)
			if converged != tt.want {
				t.Fatalf("expected converged=%v, got %v (%s)", tt.want, converged, reason)
			}
			if converged && reason == "" {
				t.Fatal("expected convergence reason")
			}
		})
	}
}

func TestTargetStrategy(t *testing.T) {
	s := &TargetStrategy{Target: 60}
	if converged, _ := s.CheckConvergence(nil); converged {
		t.Fatal("empty history cannot converge")
	}
	if converged, _ := s.CheckConvergence(historyOf(0.5, 59.9)); converged {
		t.Fatal("expected no convergence below target")
	}
	if converged, _ := s.CheckConvergence(historyOf(0.5, 61)); !converged {
		t.Fatal("expected convergence at target")
	}
}

func TestStopStrategyFromConfig(t *testing.T) {
	if s := StopStrategyFromConfig(config.Stop{}); s != nil {
		t.Fatalf("expected no strategy for zero config, got %s", s.Name())
	}

	s := StopStrategyFromConfig(config.Stop{StagnationGenerations: 2, TargetFitness: 50})
	if s == nil {
		t.Fatal("expected a strategy")
	}
	converged, reason := s.CheckConvergence(historyOf(10, 10, 10))
	if !converged || reason == "" {
		t.Fatal("expected stagnation to trigger")
	}
	converged, _ = s.CheckConvergence(historyOf(10, 55))
	if !converged {
		t.Fatal("expected target to trigger")
	}
}
