// Package storage persists evolution runs and their generation history in
// Badger so a restarted daemon can list and export earlier runs.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// Key prefixes
const (
	prefixRun        = "run:"
	prefixGeneration = "gen:"
)

// ErrNotFound is returned when a run is not stored.
var ErrNotFound = errors.New("run not found")

// Snapshot is the persisted state of one run
type Snapshot struct {
	Run       models.Run       `json:"run"`
	Evolution config.Evolution `json:"evolution"`
	Simulator config.Simulator `json:"simulator"`
	Best      []float64        `json:"best,omitempty"`
}

// BadgerStore stores run snapshots and generation summaries
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the store in dir. An empty dir keeps everything in memory.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(&badgerLogger{log: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func runKey(runID string) []byte {
	return []byte(prefixRun + runID)
}

func generationPrefix(runID string) []byte {
	return []byte(prefixGeneration + runID + ":")
}

// generationKey is zero-padded so keys iterate in generation order
func generationKey(runID string, generation int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixGeneration, runID, generation))
}

// SaveRun writes or replaces a run snapshot
func (s *BadgerStore) SaveRun(snap Snapshot) error {
	if snap.Run.ID == "" {
		return errors.New("run ID is required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", snap.Run.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(snap.Run.ID), data)
	})
}

// GetRun reads a run snapshot
func (s *BadgerStore) GetRun(runID string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	return snap, err
}

// LoadRuns reads every stored run snapshot
func (s *BadgerStore) LoadRuns() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var snap Snapshot
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return fmt.Errorf("failed to decode run %s: %w", strings.TrimPrefix(string(item.Key()), prefixRun), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	return snaps, err
}

// AppendGeneration stores one generation summary of a run
func (s *BadgerStore) AppendGeneration(runID string, summary models.GenerationSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode generation %d of run %s: %w", summary.Generation, runID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(generationKey(runID, summary.Generation), data)
	})
}

// LoadGenerations reads the generation history of a run in order
func (s *BadgerStore) LoadGenerations(runID string) ([]models.GenerationSummary, error) {
	var history []models.GenerationSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = generationPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var summary models.GenerationSummary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &summary)
			}); err != nil {
				return fmt.Errorf("failed to decode generation of run %s: %w", runID, err)
			}
			history = append(history, summary)
		}
		return nil
	})
	return history, err
}

// DeleteRun removes a run and its history
func (s *BadgerStore) DeleteRun(runID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(runKey(runID)); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = generationPrefix(runID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// badgerLogger routes badger's internal logging to slog
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
