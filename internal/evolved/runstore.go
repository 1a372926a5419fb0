package evolved

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/internal/storage"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run already exists")
	ErrRunTerminal  = errors.New("run is terminal")
	ErrRunIDMissing = errors.New("run_id is required")
)

// RunInput is everything needed to execute a run
type RunInput struct {
	Evolution      config.Evolution `json:"evolution"`
	Simulator      config.Simulator `json:"simulator"`
	CallbackURL    string           `json:"callback_url,omitempty"`
	CallbackSecret string           `json:"-"`
}

// Validate checks the run parameters
func (in *RunInput) Validate() error {
	if err := in.Evolution.Validate(); err != nil {
		return err
	}
	if err := in.Simulator.Validate(); err != nil {
		return err
	}
	if in.CallbackURL != "" {
		if err := validateCallbackURL(in.CallbackURL); err != nil {
			return err
		}
	}
	return nil
}

// BestDesign is the winning car of a run
type BestDesign struct {
	Genome     []float64        `json:"genome" yaml:"genome"`
	Design     genome.CarDesign `json:"design" yaml:"design"`
	Fitness    float64          `json:"fitness" yaml:"fitness"`
	Generation int              `json:"generation" yaml:"generation"`
}

// RunRecord is the full state of one run. Records returned by the store are copies.
type RunRecord struct {
	Run     models.Run                 `json:"run"`
	Input   RunInput                   `json:"input"`
	History []models.GenerationSummary `json:"history,omitempty"`
	Best    *BestDesign                `json:"best,omitempty"`
}

func (r *RunRecord) clone() *RunRecord {
	out := &RunRecord{
		Run:     r.Run,
		Input:   r.Input,
		History: append([]models.GenerationSummary(nil), r.History...),
	}
	out.Input.Simulator.Args = append([]string(nil), r.Input.Simulator.Args...)
	if r.Best != nil {
		best := *r.Best
		best.Genome = append([]float64(nil), r.Best.Genome...)
		out.Best = &best
	}
	return out
}

// Persister stores runs beyond the life of the process
type Persister interface {
	SaveRun(snap storage.Snapshot) error
	AppendGeneration(runID string, summary models.GenerationSummary) error
	LoadRuns() ([]storage.Snapshot, error)
	LoadGenerations(runID string) ([]models.GenerationSummary, error)
}

// RunStore keeps runs in memory and writes them through to an optional Persister.
type RunStore struct {
	mu        sync.RWMutex
	runs      map[string]*RunRecord
	persister Persister
}

// NewRunStore creates a store. persister may be nil.
func NewRunStore(persister Persister) *RunStore {
	return &RunStore{
		runs:      make(map[string]*RunRecord),
		persister: persister,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Restore loads persisted runs. Runs that were active when the previous
// process stopped are marked failed.
func (s *RunStore) Restore() (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	snaps, err := s.persister.LoadRuns()
	if err != nil {
		return 0, fmt.Errorf("failed to load runs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		history, err := s.persister.LoadGenerations(snap.Run.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to load history of run %s: %w", snap.Run.ID, err)
		}
		rec := &RunRecord{
			Run:     snap.Run,
			Input:   RunInput{Evolution: snap.Evolution, Simulator: snap.Simulator, CallbackURL: snap.Run.CallbackURL},
			History: history,
		}
		if len(snap.Best) == genome.Length {
			design, _ := genome.Decode(snap.Best)
			rec.Best = &BestDesign{Genome: snap.Best, Design: design, Fitness: snap.Run.BestFitness, Generation: snap.Run.Generation}
		}
		if rec.Run.Status == models.RunStatusRunning {
			rec.Run.Status = models.RunStatusFailed
			rec.Run.Error = "interrupted by daemon restart"
			rec.Run.EndedAt = nowUTC()
			s.persist(rec)
		}
		s.runs[rec.Run.ID] = rec
	}
	return len(snaps), nil
}

// Create registers a pending run. An empty runID gets a generated one.
func (s *RunStore) Create(runID string, input RunInput) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	rec := &RunRecord{
		Run: models.Run{
			ID:          runID,
			Status:      models.RunStatusPending,
			CreatedAt:   nowUTC(),
			CallbackURL: input.CallbackURL,
		},
		Input: input,
	}
	s.runs[runID] = rec
	s.persist(rec)
	return rec.clone(), nil
}

// Get returns a copy of a run
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// List returns up to limit runs, newest first. An empty status matches all runs.
func (s *RunStore) List(limit int, status models.RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status != "" && rec.Run.Status != status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Run.CreatedAt.Equal(out[j].Run.CreatedAt) {
			return out[i].Run.ID < out[j].Run.ID
		}
		return out[i].Run.CreatedAt.After(out[j].Run.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i, rec := range out {
		out[i] = rec.clone()
	}
	return out
}

// SetStatus moves a run to status. A terminal run cannot change status.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}

	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}

	switch {
	case status == models.RunStatusRunning:
		if rec.Run.StartedAt.IsZero() {
			rec.Run.StartedAt = nowUTC()
		}
	case status.Terminal():
		rec.Run.EndedAt = nowUTC()
	}

	s.persist(rec)
	return rec.clone(), nil
}

// MarkRunning moves a pending run to running. started is false when the run
// was already running, in which case the current record is returned.
func (s *RunStore) MarkRunning(runID string) (rec *RunRecord, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	switch {
	case r.Run.Status == models.RunStatusRunning:
		return r.clone(), false, nil
	case r.Run.Status.Terminal():
		return nil, false, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, r.Run.Status)
	}

	r.Run.Status = models.RunStatusRunning
	if r.Run.StartedAt.IsZero() {
		r.Run.StartedAt = nowUTC()
	}
	s.persist(r)
	return r.clone(), true, nil
}

// AppendGeneration records the summary of an evaluated generation
func (s *RunStore) AppendGeneration(runID string, summary models.GenerationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.History = append(rec.History, summary)
	rec.Run.Generation = summary.Generation
	rec.Run.BestFitness = summary.BestFitness

	if s.persister != nil {
		if err := s.persister.AppendGeneration(runID, summary); err != nil {
			logger.Warn("failed to persist generation", "run_id", runID, "generation", summary.Generation, "error", err)
		}
	}
	s.persist(rec)
	return nil
}

// SetResult stores the best design and the reason the run stopped
func (s *RunStore) SetResult(runID string, best BestDesign, stopReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Best = &best
	rec.Run.BestFitness = best.Fitness
	rec.Run.StopReason = stopReason
	s.persist(rec)
	return nil
}

// History returns the generation summaries of a run
func (s *RunStore) History(runID string) ([]models.GenerationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return append([]models.GenerationSummary(nil), rec.History...), nil
}

// persist writes the run snapshot. Callers hold s.mu.
func (s *RunStore) persist(rec *RunRecord) {
	if s.persister == nil {
		return
	}
	snap := storage.Snapshot{
		Run:       rec.Run,
		Evolution: rec.Input.Evolution,
		Simulator: rec.Input.Simulator,
	}
	if rec.Best != nil {
		snap.Best = rec.Best.Genome
	}
	if err := s.persister.SaveRun(snap); err != nil {
		logger.Warn("failed to persist run", "run_id", rec.Run.ID, "error", err)
	}
}
