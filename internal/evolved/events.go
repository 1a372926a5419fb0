package evolved

import (
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
)

// Event types
const (
	EventStatus     = "status"
	EventGeneration = "generation"
)

// Event is a run update fanned out to stream clients and the message bus
type Event struct {
	ID         string                    `json:"id"`
	Type       string                    `json:"type"`
	RunID      string                    `json:"run_id"`
	Timestamp  time.Time                 `json:"timestamp"`
	Run        *models.Run               `json:"run,omitempty"`
	Generation *models.GenerationSummary `json:"generation,omitempty"`
}

// Terminal reports whether this event ends the run's stream
func (e Event) Terminal() bool {
	return e.Type == EventStatus && e.Run != nil && e.Run.Status.Terminal()
}

// Broadcaster delivers events to live subscribers
type Broadcaster interface {
	Broadcast(event Event)
}

// Publisher forwards events to an external message bus
type Publisher interface {
	Publish(event Event) error
}
