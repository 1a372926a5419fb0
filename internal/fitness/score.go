package fitness

import "github.com/GoSim-25-26J-441/race-evolution/pkg/models"

const (
	// finishBonus lifts every finisher to at least this score before the time term.
	finishBonus = 1.0
	// timeBudget is the race time a finisher is measured against.
	timeBudget = 100.0
)

// Score reduces a race outcome to a scalar fitness. Cars that did not finish
// score their completion fraction; finishers score 1 + (100 - time).
// Finishers slower than 100 time units drop below 1.0 and can rank under
// a good non-finisher; the formula is kept as is.
func Score(o models.Outcome) float64 {
	if o.Completion < 1.0 {
		return o.Completion
	}
	return finishBonus + (timeBudget - o.Time)
}
