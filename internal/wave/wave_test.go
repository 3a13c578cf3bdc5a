package wave

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-watermark/internal/testutil"
)

const (
	testRate     = 44100
	testChannels = 2
	testFrames   = 4096

	// 16-bit quantization step is ~3e-5; allow a few steps of slack.
	roundTripTolerance16 = 1e-3
	roundTripTolerance24 = 1e-5
)

func TestSaveLoad_RoundTrip16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt16.wav")

	orig := &Buffer{
		Samples:  testutil.SineSignal(testFrames, testChannels, 440, testRate, 0.8),
		Channels: testChannels,
		Rate:     testRate,
		BitDepth: 16,
	}
	require.NoError(t, Save(path, orig))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, testChannels, got.Channels)
	assert.Equal(t, testRate, got.Rate)
	assert.Equal(t, 16, got.BitDepth)
	require.Len(t, got.Samples, len(orig.Samples))

	for i := range orig.Samples {
		require.InDelta(t, orig.Samples[i], got.Samples[i], roundTripTolerance16,
			"sample %d differs", i)
	}
}

func TestSaveLoad_RoundTrip24Mono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt24.wav")

	orig := &Buffer{
		Samples:  testutil.NoiseSignal(testFrames, 1, 0.5, 99),
		Channels: 1,
		Rate:     48000,
		BitDepth: 24,
	}
	require.NoError(t, Save(path, orig))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, got.Channels)
	assert.Equal(t, 48000, got.Rate)
	require.Len(t, got.Samples, len(orig.Samples))

	for i := range orig.Samples {
		require.InDelta(t, orig.Samples[i], got.Samples[i], roundTripTolerance24,
			"sample %d differs", i)
	}
}

func TestSave_ClipsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")

	orig := &Buffer{
		Samples:  []float32{1.5, -1.5, 0.25, -0.25},
		Channels: 1,
		Rate:     testRate,
		BitDepth: 16,
	}
	require.NoError(t, Save(path, orig))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got.Samples, 4)

	assert.InDelta(t, 1.0, got.Samples[0], roundTripTolerance16)
	assert.InDelta(t, -1.0, got.Samples[1], roundTripTolerance16)
	assert.InDelta(t, 0.25, got.Samples[2], roundTripTolerance16)
}

func TestSave_UnsupportedBitDepth(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "bad.wav"), &Buffer{
		Samples:  []float32{0},
		Channels: 1,
		Rate:     testRate,
		BitDepth: 12,
	})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}

func TestBuffer_Accessors(t *testing.T) {
	b := &Buffer{
		Samples:  make([]float32, testRate*testChannels*3),
		Channels: testChannels,
		Rate:     testRate,
		BitDepth: 16,
	}
	assert.Equal(t, testRate*testChannels*3, b.NumValues())
	assert.Equal(t, testRate*3, b.NumFrames())
	assert.Equal(t, 3, b.Seconds())
}
