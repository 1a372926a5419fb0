package utils

import (
	"math"
	"testing"
)

func TestNewRandSourceKeepsSeed(t *testing.T) {
	rng := NewRandSource(12345)
	if rng.Seed() != 12345 {
		t.Fatalf("expected seed 12345, got %d", rng.Seed())
	}
	if NewRandSource(0).Seed() == 0 {
		t.Fatal("expected zero seed to be replaced with a time-based seed")
	}
}

func TestRandSourceReproducible(t *testing.T) {
	a := NewRandSource(7)
	b := NewRandSource(7)
	for i := 0; i < 50; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("draw %d differs for identical seeds", i)
		}
		if a.NormFloat64(0, 1) != b.NormFloat64(0, 1) {
			t.Fatalf("normal draw %d differs for identical seeds", i)
		}
	}
}

func TestRandSourceUniformFloat64(t *testing.T) {
	rng := NewRandSource(12345)
	for i := 0; i < 200; i++ {
		v := rng.UniformFloat64(2.0, 6.0)
		if v < 2.0 || v >= 6.0 {
			t.Fatalf("UniformFloat64 out of range: %f", v)
		}
	}
}

func TestRandSourceIntRange(t *testing.T) {
	rng := NewRandSource(99)
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := rng.IntRange(1, 14)
		if v < 1 || v > 14 {
			t.Fatalf("IntRange out of range: %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 14 {
		t.Fatalf("expected all 14 values to be drawn, saw %d", len(seen))
	}
	if got := rng.IntRange(5, 5); got != 5 {
		t.Fatalf("degenerate range should return min, got %d", got)
	}
}

func TestRandSourceNormFloat64Moments(t *testing.T) {
	rng := NewRandSource(2024)
	n := 20000
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.NormFloat64(0, 0.05)
	}
	if m := Mean(values); math.Abs(m) > 0.005 {
		t.Errorf("mean too far from 0: %f", m)
	}
	if sd := StdDev(values); math.Abs(sd-0.05) > 0.005 {
		t.Errorf("stddev too far from 0.05: %f", sd)
	}
}
