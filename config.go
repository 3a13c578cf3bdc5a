package watermark

import (
	"github.com/tphakala/go-audio-watermark/internal/mark"
	"github.com/tphakala/go-audio-watermark/internal/prng"
)

// Protocol constants re-exported for callers and tests.
const (
	// PayloadSize is the watermark message size in bits.
	PayloadSize = mark.PayloadSize

	// KeySize is the watermarking key size in bytes.
	KeySize = prng.KeySize

	// MarkSampleRate is the internal processing sample rate.
	MarkSampleRate = mark.SampleRate

	// DefaultStrength is the default watermark strength on the CLI scale
	// (strength / 1000 is the spectral delta).
	DefaultStrength = mark.DefaultDelta * strengthScale

	strengthScale = 1000.0
)

// Key is a 128-bit watermarking key. The zero key is the standard key used
// when none is configured.
type Key [KeySize]byte

// TestKey derives a key from a small integer, for reproducible tests.
func TestKey(n uint64) Key {
	return Key(prng.TestKey(n))
}

// Config is the immutable configuration of one watermarking operation.
type Config struct {
	// Strength is the watermark strength on the CLI scale; the spectral
	// magnitude delta is Strength/1000.
	Strength float64

	// Linear disables the non-linear ("mix") bit storage.
	Linear bool

	// Hard selects hard bit decisions instead of soft decoding.
	Hard bool

	// FramesPerBit is the number of data frames carrying each code bit.
	FramesPerBit int

	// Key is the watermarking key.
	Key Key

	// ReportSNR computes the watermark signal-to-noise ratio during Add.
	ReportSNR bool

	// TestNoSync bypasses the sync search, assuming theoretical block
	// positions. Test hook only.
	TestNoSync bool

	// TestCut shifts the expected block positions in the Cmp sync-match
	// report after a cut test. Test hook only.
	TestCut int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Strength:     DefaultStrength,
		FramesPerBit: mark.DefaultFramesPerBit,
	}
}

// params converts the public configuration to core parameters.
func (c Config) params() mark.Params {
	p := mark.DefaultParams()
	p.Delta = c.Strength / strengthScale
	p.Mix = !c.Linear
	p.Hard = c.Hard
	if c.FramesPerBit > 0 {
		p.FramesPerBit = c.FramesPerBit
	}
	p.Key = prng.Key(c.Key)
	p.TestNoSync = c.TestNoSync
	p.TestCut = c.TestCut
	return p
}
