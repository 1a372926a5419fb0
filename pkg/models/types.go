package models

import "time"

// RunStatus represents the status of an evolution run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this status can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Run represents one evolution run managed by the daemon
type Run struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Generation  int       `json:"generation"`
	BestFitness float64   `json:"best_fitness"`
	StopReason  string    `json:"stop_reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	CallbackURL string    `json:"callback_url,omitempty"`
}

// Outcome is what the race simulator reports for a single car.
// Time is only meaningful when Finished is set.
type Outcome struct {
	Completion float64 `json:"completion"`
	Time       float64 `json:"time"`
	Finished   bool    `json:"finished"`
	Failed     bool    `json:"failed,omitempty"`
}

// FailedOutcome is the outcome recorded when the simulator could not race a car.
func FailedOutcome() Outcome {
	return Outcome{Completion: 0, Failed: true}
}

// GenerationSummary is the per-generation progress record
type GenerationSummary struct {
	Generation    int       `json:"generation" yaml:"generation"`
	BestGenome    []float64 `json:"best_genome" yaml:"best_genome"`
	BestFitness   float64   `json:"best_fitness" yaml:"best_fitness"`
	MeanFitness   float64   `json:"mean_fitness" yaml:"mean_fitness"`
	WorstFitness  float64   `json:"worst_fitness" yaml:"worst_fitness"`
	StdDevFitness float64   `json:"stddev_fitness" yaml:"stddev_fitness"`
	Failures      int       `json:"failures" yaml:"failures"`
	Evaluations   int       `json:"evaluations" yaml:"evaluations"`
	ElapsedMs     int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
}
