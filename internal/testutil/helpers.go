// Package testutil provides reusable test helper functions for watermark tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance   = 1e-10
	MagnitudeTolerance = 1e-2
	DBTolerance        = 0.01
)

// Linear congruential constants for the deterministic test-noise generator.
const (
	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407
)

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(v, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertAllInRange verifies that all elements are within [min, max].
func AssertAllInRange(t *testing.T, s []float64, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v < minVal || v > maxVal {
			return assert.Fail(t, "value out of range",
				"s[%d]=%f is outside range [%f, %f]", i, v, minVal, maxVal)
		}
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}

// AssertIsPermutation verifies that a slice contains every index in [0, len) exactly once.
func AssertIsPermutation(t *testing.T, s []int, msgAndArgs ...any) bool {
	t.Helper()
	seen := make([]bool, len(s))
	for i, v := range s {
		if v < 0 || v >= len(s) {
			return assert.Fail(t, "index out of range", "s[%d]=%d outside [0, %d)", i, v, len(s))
		}
		if seen[v] {
			return assert.Fail(t, "duplicate index", "index %d appears more than once", v)
		}
		seen[v] = true
	}
	return true
}

// NoiseSignal generates a deterministic noise-like interleaved signal in
// roughly [-amp, amp]. The same seed always produces the same samples, so
// tests that embed and extract watermarks are reproducible.
func NoiseSignal(n, channels int, amp float32, seed uint64) []float32 {
	out := make([]float32, n*channels)
	state := seed
	for i := range out {
		state = state*lcgMultiplier + lcgIncrement
		// top 24 bits, mapped to [-1, 1)
		v := float64(int32(state>>40)-(1<<23)) / float64(1<<23)
		out[i] = amp * float32(v)
	}
	return out
}

// SineSignal generates an interleaved multi-channel sine at the given
// frequency, sample rate and amplitude.
func SineSignal(n, channels int, freq, rate float64, amp float32) []float32 {
	out := make([]float32, n*channels)
	for i := range n {
		v := amp * float32(math.Sin(2*math.Pi*freq*float64(i)/rate))
		for ch := range channels {
			out[i*channels+ch] = v
		}
	}
	return out
}

// MusicLikeSignal mixes a few sine partials with noise, approximating the
// spectral spread of program material. Deterministic for a given seed.
func MusicLikeSignal(n, channels int, rate float64, seed uint64) []float32 {
	out := NoiseSignal(n, channels, 0.25, seed)
	partials := []struct {
		freq float64
		amp  float32
	}{
		{220, 0.20},
		{440, 0.15},
		{880, 0.10},
		{1760, 0.08},
		{3520, 0.05},
	}
	for _, p := range partials {
		for i := range n {
			v := p.amp * float32(math.Sin(2*math.Pi*p.freq*float64(i)/rate))
			for ch := range channels {
				out[i*channels+ch] += v
			}
		}
	}
	return out
}
