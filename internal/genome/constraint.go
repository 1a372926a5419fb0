package genome

import "fmt"

// Total height bounds for each upper/lower profile pair.
const (
	MinTotalHeight = 0.5
	MaxTotalHeight = 5.0
)

// heightTolerance absorbs round-off introduced by proportional rescaling.
const heightTolerance = 1e-9

// Violation describes one broken constraint.
type Violation struct {
	Field  string
	Value  float64
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%g: %s", v.Field, v.Value, v.Reason)
}

// Violations lists every constraint the genome breaks. A malformed genome
// yields a single violation.
func Violations(g Genome) []Violation {
	if len(g) != Length {
		return []Violation{{Field: "genome", Value: float64(len(g)), Reason: fmt.Sprintf("expected %d values", Length)}}
	}

	var out []Violation
	for i, v := range g {
		d := fieldDomains[i]
		if !d.Contains(v) {
			out = append(out, Violation{
				Field:  FieldName(i),
				Value:  v,
				Reason: fmt.Sprintf("outside [%g, %g]", d.Min, d.Max),
			})
		}
	}
	for i := 0; i < ProfilePoints; i++ {
		total := g[upperIndex+i] + g[lowerIndex+i]
		if total < MinTotalHeight-heightTolerance || total > MaxTotalHeight+heightTolerance {
			out = append(out, Violation{
				Field:  fmt.Sprintf("height[%d]", i),
				Value:  total,
				Reason: fmt.Sprintf("total height outside [%g, %g]", MinTotalHeight, MaxTotalHeight),
			})
		}
	}
	return out
}

// IsValid reports whether the genome satisfies every field domain and the
// per-point total height constraint.
func IsValid(g Genome) bool {
	return len(Violations(g)) == 0
}

// Repair clips every field and then rescales any profile pair whose total
// height falls outside the allowed band, keeping the upper/lower ratio.
// A pair that is entirely zero becomes an even split of MinTotalHeight.
func Repair(g Genome) (Genome, error) {
	if err := checkLength(g); err != nil {
		return nil, err
	}

	out := Clip(g)
	for i := 0; i < ProfilePoints; i++ {
		u, l := out[upperIndex+i], out[lowerIndex+i]
		total := u + l

		var target float64
		switch {
		case total == 0:
			out[upperIndex+i] = MinTotalHeight / 2
			out[lowerIndex+i] = MinTotalHeight / 2
			continue
		case total < MinTotalHeight:
			target = MinTotalHeight
		case total > MaxTotalHeight:
			target = MaxTotalHeight
		default:
			continue
		}

		// Divide before scaling so subnormal totals cannot overflow.
		out[upperIndex+i] = ProfileDomain.Clamp(u / total * target)
		out[lowerIndex+i] = ProfileDomain.Clamp(l / total * target)
	}
	return out, nil
}
