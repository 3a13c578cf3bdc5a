package mark

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-watermark/internal/prng"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
	"github.com/tphakala/go-audio-watermark/internal/testutil"
)

const (
	symmetryTolerance = 1e-9
	windowTolerance   = 1e-12
)

// testPayload returns a fixed 128-bit payload.
func testPayload() []int {
	bits := make([]int, PayloadSize)
	for i := range bits {
		// 0x5b pattern repeated
		bits[i] = int(uint8(0x5b)>>(7-i%8)) & 1
	}
	return bits
}

// TestSynthWindow_Shape verifies the synthesis window rises to 1 over the
// center frame and vanishes at the edges.
func TestSynthWindow_Shape(t *testing.T) {
	window := synthWindow()
	require.Len(t, window, 3*FrameSize)

	testutil.AssertAllInRange(t, window, 0.0, 1.0)

	// flat top across the center frame interior
	center := window[FrameSize+FrameSize/2]
	assert.InDelta(t, 1.0, center, windowTolerance)

	// zero well outside the overlap region
	assert.InDelta(t, 0.0, window[0], windowTolerance)
	assert.InDelta(t, 0.0, window[3*FrameSize-1], windowTolerance)
}

// TestMarkBitLinear_Symmetry verifies the linear embed invariant: flipping
// the bit produces the reciprocal magnitude ratio on the same bins.
func TestMarkBitLinear_Symmetry(t *testing.T) {
	layout := NewLayout(DefaultParams())

	bins := make([]complex128, spectrum.Bins)
	for i := range bins {
		bins[i] = complex(0.01+float64(i)*1e-4, -0.003)
	}

	delta1 := make([]complex128, spectrum.Bins)
	delta0 := make([]complex128, spectrum.Bins)
	layout.markBitLinear(3, bins, delta1, 1, prng.StreamDataUpDown)
	layout.markBitLinear(3, bins, delta0, 0, prng.StreamDataUpDown)

	up, down := layout.UpDownBands(3, prng.StreamDataUpDown)
	for _, b := range append(append([]int{}, up...), down...) {
		orig := cmplx.Abs(bins[b])
		mag1 := cmplx.Abs(bins[b] + delta1[b])
		mag0 := cmplx.Abs(bins[b] + delta0[b])

		// ratios are reciprocal: mag1/orig == orig/mag0
		require.InDelta(t, mag1/orig, orig/mag0, symmetryTolerance, "bin %d", b)
		require.NotEqual(t, orig, mag1, "bin %d unmodified", b)
	}

	// bins outside the plan stay untouched
	for i := range bins {
		planned := false
		for _, b := range append(append([]int{}, up...), down...) {
			if i == b {
				planned = true
			}
		}
		if !planned {
			require.Zero(t, delta1[i], "bin %d has unexpected delta", i)
		}
	}
}

// TestMarkBitLinear_SkipsSilentBins verifies near-zero bins are left alone.
func TestMarkBitLinear_SkipsSilentBins(t *testing.T) {
	layout := NewLayout(DefaultParams())

	bins := make([]complex128, spectrum.Bins) // all silent
	delta := make([]complex128, spectrum.Bins)
	layout.markBitLinear(0, bins, delta, 1, prng.StreamDataUpDown)

	for i, d := range delta {
		assert.Zero(t, d, "bin %d", i)
	}
}

// TestEmbedDelta_Deterministic verifies byte-identical embedding across runs.
func TestEmbedDelta_Deterministic(t *testing.T) {
	p := DefaultParams()
	samples := testutil.MusicLikeSignal(FrameSize*300, 2, SampleRate, 11)

	delta1, blocks1 := EmbedDelta(p, samples, 2, testPayload())
	delta2, blocks2 := EmbedDelta(p, samples, 2, testPayload())

	assert.Equal(t, blocks1, blocks2)
	assert.Equal(t, delta1, delta2)
}

// TestEmbedDelta_ShortInputWritesNoBlocks verifies the too-short edge case:
// padding only, no data blocks, no crash.
func TestEmbedDelta_ShortInputWritesNoBlocks(t *testing.T) {
	p := DefaultParams()
	samples := testutil.MusicLikeSignal(FrameSize*100, 2, SampleRate, 12)

	delta, blocks := EmbedDelta(p, samples, 2, testPayload())

	assert.Zero(t, blocks)
	assert.Len(t, delta, len(samples))
}

// TestEmbedDelta_BlockCount verifies the expected number of blocks fits.
func TestEmbedDelta_BlockCount(t *testing.T) {
	p := DefaultParams()
	layout := NewLayout(p)

	// room for exactly two blocks after start padding
	frames := FramesPadStart + 2*layout.BlockFrameCount() + 2
	samples := testutil.MusicLikeSignal(FrameSize*frames, 1, SampleRate, 13)

	_, blocks := EmbedDelta(p, samples, 1, testPayload())
	assert.Equal(t, 2, blocks)
}

// TestEmbedDelta_DeltaIsSmall verifies the watermark stays far below the
// signal level at default strength.
func TestEmbedDelta_DeltaIsSmall(t *testing.T) {
	p := DefaultParams()
	samples := testutil.MusicLikeSignal(FrameSize*400, 1, SampleRate, 14)

	delta, _ := EmbedDelta(p, samples, 1, testPayload())

	var maxDelta float64
	for _, d := range delta {
		if v := float64(d); v > maxDelta {
			maxDelta = v
		} else if -v > maxDelta {
			maxDelta = -v
		}
	}
	assert.Less(t, maxDelta, 0.1, "watermark delta suspiciously loud")
	assert.Greater(t, maxDelta, 0.0, "watermark delta all zero")
}
