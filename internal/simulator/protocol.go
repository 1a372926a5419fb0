package simulator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// Protocol commands and replies of the carsim binary.
const (
	cmdRace     = "RACE"
	cmdSim      = "SIM"
	cmdTrack    = "TRACK\n"
	replyDone   = "DONE"
	errorPrefix = "ERR "
)

// FormatCarSpec renders a design as the 15 space-prefixed values the
// simulator expects, terminated by a newline.
func FormatCarSpec(d genome.CarDesign) string {
	var b strings.Builder
	for _, v := range genome.Encode(d) {
		fmt.Fprintf(&b, " %f", v)
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatRace renders a RACE command. The first car spec shares the command line.
func FormatRace(designs []genome.CarDesign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", cmdRace, len(designs))
	for _, d := range designs {
		b.WriteString(FormatCarSpec(d))
	}
	return b.String()
}

// FormatSim renders a single-car SIM command.
func FormatSim(d genome.CarDesign) string {
	return cmdSim + FormatCarSpec(d)
}

// checkReply turns an ERR line into a *SimulationError.
func checkReply(line string) (string, error) {
	line = strings.TrimRight(line, " \r\n")
	if strings.HasPrefix(line, errorPrefix) {
		return "", &SimulationError{Message: line[len(errorPrefix):]}
	}
	return line, nil
}

func parseFloats(line string, want int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %d in %q", want, len(fields), line)
	}
	out := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseScoreLine parses a "distance time" race reply.
func ParseScoreLine(line string) (distance, time float64, err error) {
	v, err := parseFloats(line, 2)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// ParseStateLine parses an "x y angle" trajectory sample.
func ParseStateLine(line string) (State, error) {
	v, err := parseFloats(line, 3)
	if err != nil {
		return State{}, err
	}
	return State{X: v[0], Y: v[1], Angle: v[2]}, nil
}

// ToOutcome converts a race reply into an outcome. With a positive track
// length the distance is divided by it; otherwise it already is a fraction.
func ToOutcome(distance, time, trackLength float64) models.Outcome {
	completion := distance
	if trackLength > 0 {
		completion = distance / trackLength
	}
	if math.IsNaN(completion) {
		completion = 0
	}
	completion = utils.ClampFloat64(completion, 0, 1)
	finished := completion >= 1.0
	if !finished {
		time = 0
	}
	return models.Outcome{Completion: completion, Time: time, Finished: finished}
}
