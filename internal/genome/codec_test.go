package genome

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func scenarioGenome() Genome {
	return Genome{4.0, 0.8, 1.0, 1.0, 0.5, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.1, 0.5, 0.9, 0.5}
}

func randomRawGenome(rng *rand.Rand) Genome {
	g := make(Genome, Length)
	for i := range g {
		g[i] = rng.NormFloat64() * 4
	}
	return g
}

func TestDecodeScenarioGenome(t *testing.T) {
	d, err := Decode(scenarioGenome())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if d.FrameLength != 4.0 {
		t.Errorf("expected frame_length 4.0, got %v", d.FrameLength)
	}
	wantUpper := [ProfilePoints]float64{0.8, 1.0, 1.0, 0.5, 0.3}
	if d.UpperProfile != wantUpper {
		t.Errorf("expected upper %v, got %v", wantUpper, d.UpperProfile)
	}
	wantLower := [ProfilePoints]float64{0.3, 0.3, 0.3, 0.3, 0.3}
	if d.LowerProfile != wantLower {
		t.Errorf("expected lower %v, got %v", wantLower, d.LowerProfile)
	}
	if d.LeftWheel != (Wheel{Position: 0.1, Radius: 0.5}) {
		t.Errorf("unexpected left wheel %+v", d.LeftWheel)
	}
	if d.RightWheel != (Wheel{Position: 0.9, Radius: 0.5}) {
		t.Errorf("unexpected right wheel %+v", d.RightWheel)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, n := range []int{0, 14, 16} {
		_, err := Decode(make(Genome, n))
		if !errors.Is(err, ErrMalformedGenome) {
			t.Errorf("len %d: expected ErrMalformedGenome, got %v", n, err)
		}
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	d := CarDesign{
		FrameLength:  2.5,
		UpperProfile: [ProfilePoints]float64{1, 2, 3, 4, 5},
		LowerProfile: [ProfilePoints]float64{6, 7, 8, 9, 10},
		LeftWheel:    Wheel{Position: 11, Radius: 12},
		RightWheel:   Wheel{Position: 13, Radius: 14},
	}
	g := Encode(d)
	want := Genome{2.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	if len(g) != Length {
		t.Fatalf("expected %d values, got %d", Length, len(g))
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("field %d (%s): expected %v, got %v", i, FieldName(i), want[i], g[i])
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		g := randomRawGenome(rng)
		d, err := Decode(g)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		again, err := Decode(Encode(d))
		if err != nil {
			t.Fatalf("Decode(Encode): %v", err)
		}
		if again != d {
			t.Fatalf("round trip mismatch: %+v vs %+v", again, d)
		}
	}
}

func TestClipIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		once := Clip(randomRawGenome(rng))
		twice := Clip(once)
		for j := range once {
			if once[j] != twice[j] {
				t.Fatalf("Clip not idempotent at %s: %v vs %v", FieldName(j), once[j], twice[j])
			}
			if !FieldDomain(j).Contains(once[j]) {
				t.Fatalf("%s=%v outside its domain after Clip", FieldName(j), once[j])
			}
		}
	}
}

func TestClipDoesNotAlias(t *testing.T) {
	g := scenarioGenome()
	g[0] = 10
	clipped := Clip(g)
	if g[0] != 10 {
		t.Fatal("Clip modified its input")
	}
	if clipped[0] != FrameLengthDomain.Max {
		t.Fatalf("expected frame clipped to %v, got %v", FrameLengthDomain.Max, clipped[0])
	}
}

func TestClipNaNAndInf(t *testing.T) {
	g := scenarioGenome()
	g[0] = math.NaN()
	g[1] = math.Inf(1)
	g[11] = math.Inf(-1)
	c := Clip(g)
	if c[0] != FrameLengthDomain.Min {
		t.Errorf("NaN should clip to domain min, got %v", c[0])
	}
	if c[1] != ProfileDomain.Max {
		t.Errorf("+Inf should clip to domain max, got %v", c[1])
	}
	if c[11] != WheelPositionDomain.Min {
		t.Errorf("-Inf should clip to domain min, got %v", c[11])
	}
}

func TestPopulationCloneIsDeep(t *testing.T) {
	p := Population{scenarioGenome(), scenarioGenome()}
	c := p.Clone()
	c[0][0] = 5.5
	if p[0][0] != 4.0 {
		t.Fatal("Population.Clone shares genome storage")
	}
}

func TestDecodePopulation(t *testing.T) {
	designs, err := DecodePopulation(Population{scenarioGenome(), scenarioGenome()})
	if err != nil || len(designs) != 2 {
		t.Fatalf("DecodePopulation: %v (%d designs)", err, len(designs))
	}
	_, err = DecodePopulation(Population{scenarioGenome(), Genome{1, 2}})
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestFieldName(t *testing.T) {
	tests := map[int]string{
		0:  "frame_length",
		3:  "upper_profile[2]",
		6:  "lower_profile[0]",
		11: "left_wheel.position",
		12: "left_wheel.radius",
		13: "right_wheel.position",
		14: "right_wheel.radius",
	}
	for i, want := range tests {
		if got := FieldName(i); got != want {
			t.Errorf("FieldName(%d) = %q, want %q", i, got, want)
		}
	}
}
