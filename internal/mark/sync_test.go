package mark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-watermark/internal/convcode"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
	"github.com/tphakala/go-audio-watermark/internal/testutil"
)

// TestNormalizeSyncQuality verifies strength normalization and its cap.
func TestNormalizeSyncQuality(t *testing.T) {
	p := DefaultParams()
	sf := NewSyncFinder(p, NewLayout(p))

	assert.InDelta(t, 1.0, sf.normalizeSyncQuality(p.Delta*syncQualityDivisor), 1e-12)

	// above the cap, normalization stops scaling with delta
	strong := DefaultParams()
	strong.Delta = 0.5
	sfStrong := NewSyncFinder(strong, NewLayout(strong))
	assert.InDelta(t, 1.0,
		sfStrong.normalizeSyncQuality(syncQualityDeltaCap*syncQualityDivisor), 1e-12)
}

// TestSyncFinder_InitUpDown verifies the flattened offset arrays: sorted,
// sized for all sub-frames, and within the dB grid bounds of one block.
func TestSyncFinder_InitUpDown(t *testing.T) {
	const channels = 2

	p := DefaultParams()
	layout := NewLayout(p)
	sf := NewSyncFinder(p, layout)
	sf.initUpDown(channels)

	require.Len(t, sf.up, SyncBits)
	require.Len(t, sf.down, SyncBits)

	maxOffset := layout.BlockFrameCount() * numBands * channels
	for bit := range SyncBits {
		require.Len(t, sf.up[bit], SyncFramesPerBit*BandsPerFrame)
		require.Len(t, sf.down[bit], SyncFramesPerBit*BandsPerFrame)

		for i := 1; i < len(sf.up[bit]); i++ {
			require.LessOrEqual(t, sf.up[bit][i-1], sf.up[bit][i], "up offsets not sorted")
		}
		for _, off := range sf.up[bit] {
			require.GreaterOrEqual(t, off, 0)
			require.Less(t, off, maxOffset)
		}
		for _, off := range sf.down[bit] {
			require.GreaterOrEqual(t, off, 0)
			require.Less(t, off, maxOffset)
		}
	}
}

// TestSyncFFT verifies the dB grid layout and the floor for skipped frames.
func TestSyncFFT(t *testing.T) {
	const channels = 2
	samples := testutil.NoiseSignal(FrameSize*4, channels, 0.5, 31)

	fftDB := syncFFT(samples, channels, 0, 3, []bool{true, false, true})
	require.Len(t, fftDB, 3*channels*numBands)

	// skipped frame is floored
	for i := range numBands {
		assert.Equal(t, spectrum.MinDB, fftDB[(1*channels+0)*numBands+i])
	}
	// computed frames are not all floor
	floored := true
	for i := range numBands {
		if fftDB[i] != spectrum.MinDB {
			floored = false
		}
	}
	assert.False(t, floored)

	// too short for the requested range
	assert.Nil(t, syncFFT(samples, channels, FrameSize, 4, nil))
}

// TestSearch_TestNoSyncBypass verifies the bypass emits theoretical block
// positions with alternating polarity.
func TestSearch_TestNoSyncBypass(t *testing.T) {
	p := DefaultParams()
	p.TestNoSync = true
	layout := NewLayout(p)
	sf := NewSyncFinder(p, layout)

	frames := FramesPadStart + 3*layout.BlockFrameCount() + 2
	samples := make([]float32, frames*FrameSize)

	scores := sf.Search(samples, 1)
	require.Len(t, scores, 3)

	step := layout.BlockFrameCount() * FrameSize
	for i, score := range scores {
		assert.Equal(t, FramesPadStart*FrameSize+i*step, score.Index)
		assert.Equal(t, 1.0, score.Quality)
		if i%2 == 0 {
			assert.Equal(t, convcode.BlockA, score.Type)
		} else {
			assert.Equal(t, convcode.BlockB, score.Type)
		}
	}
}
