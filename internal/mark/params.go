// Package mark implements the watermark signal processing core: spectral
// band planning, magnitude-domain embedding, synchronization search and
// soft-bit extraction. Encoder and decoder share every table in this package,
// derived only from the key and the protocol constants, which is what makes
// the wire format between them bit-exact.
package mark

import (
	"github.com/tphakala/go-audio-watermark/internal/prng"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
)

// Fixed protocol parameters. Changing any of these breaks compatibility with
// previously embedded watermarks.
const (
	// FrameSize is the per-channel analysis frame length.
	FrameSize = spectrum.FrameSize

	// BandsPerFrame is the size of each of the up and down band sets.
	BandsPerFrame = 30

	// MinBand and MaxBand bound the FFT bin range carrying the watermark.
	MinBand = 20
	MaxBand = 100

	// SyncBits is the length of the fixed sync pattern (010101 / 101010).
	SyncBits = 6

	// SyncFramesPerBit is the number of frames repeating each sync bit.
	SyncFramesPerBit = 85

	// FramesPadStart is the number of padding frames before the first block,
	// in case the track starts with silence.
	FramesPadStart = 250

	// SampleRate is the watermark generation and detection sample rate.
	SampleRate = 44100

	// PayloadSize is the number of payload bits in a watermark message.
	PayloadSize = 128

	// DefaultFramesPerBit is the default number of data frames per code bit.
	DefaultFramesPerBit = 2

	// DefaultDelta is the default watermark strength.
	DefaultDelta = 0.01
)

// Sync search parameters.
const (
	syncSearchStep = 256  // coarse grid step in samples
	syncSearchFine = 8    // refinement step in samples
	syncThreshold1 = 0.40 // minimum coarse grid quality
	syncThreshold2 = 0.70 // minimum refined quality

	// Empirical normalization of the raw sync quality: the raw score grows
	// with watermark strength up to roughly this cap, and the divisor maps a
	// good sync block to about 1.0.
	syncQualityDeltaCap = 0.080
	syncQualityDivisor  = 2.9
)

// minBandMagnitude skips near-silent bins, where the magnitude-power edit
// would blow up (pow(0, -delta) is infinite).
const minBandMagnitude = 1e-7

// Params carries the tunable configuration threaded through the pipeline.
// The zero value is not usable; start from DefaultParams.
type Params struct {
	// Delta is the watermark strength (spectral magnitude exponent).
	Delta float64

	// Mix selects the non-linear scattered bit storage; when false, data
	// bits are stored frame-linear.
	Mix bool

	// Hard selects hard bit decisions before Viterbi decoding.
	Hard bool

	// FramesPerBit is the number of data frames carrying each code bit.
	FramesPerBit int

	// Key is the watermarking key; the zero key is the standard key.
	Key prng.Key

	// TestNoSync bypasses the sync search and assumes theoretical block
	// positions. Test hook only.
	TestNoSync bool

	// TestCut shifts expected block positions in sync-match reporting after
	// a cut test. Test hook only.
	TestCut int
}

// DefaultParams returns the default protocol configuration.
func DefaultParams() Params {
	return Params{
		Delta:        DefaultDelta,
		Mix:          true,
		FramesPerBit: DefaultFramesPerBit,
	}
}

// FrameCount returns the number of whole frames in an interleaved sample
// buffer with the given channel count.
func FrameCount(numSamples, channels int) int {
	return numSamples / channels / FrameSize
}
