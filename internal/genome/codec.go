package genome

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

// ProfilePoints is the number of sample points of each body profile.
const ProfilePoints = 5

// Length is the number of values in a genome.
const Length = 1 + 2*ProfilePoints + 2 + 2

// Field offsets inside a genome.
const (
	frameIndex       = 0
	upperIndex       = 1
	lowerIndex       = upperIndex + ProfilePoints
	leftWheelIndex   = lowerIndex + ProfilePoints
	rightWheelIndex  = leftWheelIndex + 2
	wheelPositionOff = 0
	wheelRadiusOff   = 1
)

// ErrMalformedGenome is returned when a genome does not have exactly Length values.
var ErrMalformedGenome = errors.New("malformed genome")

// Domain is the closed interval a single field may take.
type Domain struct {
	Min float64
	Max float64
}

// Clamp returns v limited to the domain. NaN maps to Min.
func (d Domain) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return d.Min
	}
	return utils.ClampFloat64(v, d.Min, d.Max)
}

// Contains reports whether v lies in the domain.
func (d Domain) Contains(v float64) bool {
	return v >= d.Min && v <= d.Max
}

var (
	FrameLengthDomain   = Domain{Min: 2.0, Max: 6.0}
	ProfileDomain       = Domain{Min: 0.0, Max: 5.0}
	WheelPositionDomain = Domain{Min: 0.0, Max: 1.0}
	WheelRadiusDomain   = Domain{Min: 0.0, Max: 2.0}
)

// fieldDomains lists the per-field domain in genome order.
var fieldDomains = func() [Length]Domain {
	var d [Length]Domain
	d[frameIndex] = FrameLengthDomain
	for i := 0; i < ProfilePoints; i++ {
		d[upperIndex+i] = ProfileDomain
		d[lowerIndex+i] = ProfileDomain
	}
	for _, w := range []int{leftWheelIndex, rightWheelIndex} {
		d[w+wheelPositionOff] = WheelPositionDomain
		d[w+wheelRadiusOff] = WheelRadiusDomain
	}
	return d
}()

// FieldDomain returns the domain of field i.
func FieldDomain(i int) Domain {
	return fieldDomains[i]
}

// FieldName returns a readable name for field i, e.g. "upper_profile[2]".
func FieldName(i int) string {
	switch {
	case i == frameIndex:
		return "frame_length"
	case i >= upperIndex && i < lowerIndex:
		return fmt.Sprintf("upper_profile[%d]", i-upperIndex)
	case i >= lowerIndex && i < leftWheelIndex:
		return fmt.Sprintf("lower_profile[%d]", i-lowerIndex)
	case i == leftWheelIndex:
		return "left_wheel.position"
	case i == leftWheelIndex+1:
		return "left_wheel.radius"
	case i == rightWheelIndex:
		return "right_wheel.position"
	case i == rightWheelIndex+1:
		return "right_wheel.radius"
	}
	return fmt.Sprintf("field[%d]", i)
}

// Genome is the flat encoding of one car design.
type Genome []float64

// Population is an ordered set of genomes.
type Population []Genome

// Clone returns a deep copy of the genome.
func (g Genome) Clone() Genome {
	if g == nil {
		return nil
	}
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Clone returns a deep copy of every genome in the population.
func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, g := range p {
		out[i] = g.Clone()
	}
	return out
}

// Wheel is a wheel's attachment point along the frame (0..1) and its radius.
type Wheel struct {
	Position float64 `json:"position" yaml:"position"`
	Radius   float64 `json:"radius" yaml:"radius"`
}

// CarDesign is the structured, decoded form of a genome.
type CarDesign struct {
	FrameLength  float64                `json:"frame_length" yaml:"frame_length"`
	UpperProfile [ProfilePoints]float64 `json:"upper_profile" yaml:"upper_profile"`
	LowerProfile [ProfilePoints]float64 `json:"lower_profile" yaml:"lower_profile"`
	LeftWheel    Wheel                  `json:"left_wheel" yaml:"left_wheel"`
	RightWheel   Wheel                  `json:"right_wheel" yaml:"right_wheel"`
}

// Encode flattens a design into a genome in the fixed field order.
func Encode(d CarDesign) Genome {
	g := make(Genome, Length)
	g[frameIndex] = d.FrameLength
	copy(g[upperIndex:lowerIndex], d.UpperProfile[:])
	copy(g[lowerIndex:leftWheelIndex], d.LowerProfile[:])
	g[leftWheelIndex+wheelPositionOff] = d.LeftWheel.Position
	g[leftWheelIndex+wheelRadiusOff] = d.LeftWheel.Radius
	g[rightWheelIndex+wheelPositionOff] = d.RightWheel.Position
	g[rightWheelIndex+wheelRadiusOff] = d.RightWheel.Radius
	return g
}

// Decode expands a genome into a design.
func Decode(g Genome) (CarDesign, error) {
	if err := checkLength(g); err != nil {
		return CarDesign{}, err
	}
	var d CarDesign
	d.FrameLength = g[frameIndex]
	copy(d.UpperProfile[:], g[upperIndex:lowerIndex])
	copy(d.LowerProfile[:], g[lowerIndex:leftWheelIndex])
	d.LeftWheel = Wheel{Position: g[leftWheelIndex+wheelPositionOff], Radius: g[leftWheelIndex+wheelRadiusOff]}
	d.RightWheel = Wheel{Position: g[rightWheelIndex+wheelPositionOff], Radius: g[rightWheelIndex+wheelRadiusOff]}
	return d, nil
}

// DecodePopulation decodes every genome, failing on the first malformed one.
func DecodePopulation(p Population) ([]CarDesign, error) {
	designs := make([]CarDesign, len(p))
	for i, g := range p {
		d, err := Decode(g)
		if err != nil {
			return nil, fmt.Errorf("genome %d: %w", i, err)
		}
		designs[i] = d
	}
	return designs, nil
}

// Clip returns a copy with every known field clamped to its domain. It does not
// enforce the joint height constraint. Values beyond Length are copied unchanged.
func Clip(g Genome) Genome {
	out := g.Clone()
	for i := range out {
		if i >= Length {
			break
		}
		out[i] = fieldDomains[i].Clamp(out[i])
	}
	return out
}

func checkLength(g Genome) error {
	if len(g) != Length {
		return fmt.Errorf("%w: expected %d values, got %d", ErrMalformedGenome, Length, len(g))
	}
	return nil
}
