// Package spectrum implements the frame/FFT front-end of the watermark
// pipeline: windowed analysis FFTs over a grid of (frame, channel) positions
// and the inverse transform used to synthesize the watermark delta signal.
package spectrum

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FrameSize is the analysis frame length in samples per channel.
	FrameSize = 1024

	// Bins is the number of complex bins kept per frame (real FFT).
	Bins = FrameSize/2 + 1

	// MinDB is the dB floor substituted for silent bins.
	MinDB = -96.0

	// Hamming window coefficients
	hammingA0 = 0.54
	hammingA1 = 0.46

	// The analysis window is scaled by this over its raw sum, so the
	// windowed DFT of a full-scale sine lands near unit magnitude.
	windowSumScale = 2.0
)

// Grid holds FFT frames for a range of (frame, channel) positions.
// Frames skipped via wantFrames have nil bins.
type Grid struct {
	frames   int
	channels int
	bins     [][]complex128
}

// NewGrid allocates a grid of zeroed spectra, one per (frame, channel).
func NewGrid(frames, channels int) *Grid {
	g := &Grid{frames: frames, channels: channels}
	g.bins = make([][]complex128, frames*channels)
	for i := range g.bins {
		g.bins[i] = make([]complex128, Bins)
	}
	return g
}

// Frames returns the frame count of the grid.
func (g *Grid) Frames() int { return g.frames }

// Channels returns the channel count of the grid.
func (g *Grid) Channels() int { return g.channels }

// At returns the bins for (frame, ch), or nil for a skipped frame.
func (g *Grid) At(frame, ch int) []complex128 {
	if frame < 0 || frame >= g.frames || ch < 0 || ch >= g.channels {
		panic("spectrum: grid index out of range")
	}
	return g.bins[frame*g.channels+ch]
}

// AnalysisWindow returns the normalized Hamming analysis window.
func AnalysisWindow() []float64 {
	window := make([]float64, FrameSize)

	var weight float64
	for i := range FrameSize {
		const half = FrameSize / 2.0
		x := (float64(i) - half) / half
		w := hammingA0 + hammingA1*math.Cos(math.Pi*x)
		window[i] = w
		weight += w
	}
	for i := range FrameSize {
		window[i] *= windowSumScale / weight
	}
	return window
}

// FrameFFTs computes windowed forward FFTs for frameCount frames of the
// interleaved signal starting at per-channel sample offset startIndex.
//
// When wantFrames is non-nil, frames with wantFrames[f] == false are skipped
// and left nil in the grid. Returns nil when the signal is too short for the
// requested range, mirroring the encoder/decoder contract that a partial
// block is not processed at all.
func FrameFFTs(samples []float32, channels, startIndex, frameCount int, wantFrames []bool) *Grid {
	if frameCount <= 0 || len(samples) < (startIndex+frameCount*FrameSize)*channels {
		return nil
	}

	window := AnalysisWindow()
	fft := fourier.NewFFT(FrameSize)
	frame := make([]float64, FrameSize)

	g := &Grid{
		frames:   frameCount,
		channels: channels,
		bins:     make([][]complex128, frameCount*channels),
	}

	for f := range frameCount {
		if wantFrames != nil && !wantFrames[f] {
			continue
		}
		for ch := range channels {
			pos := (startIndex+f*FrameSize)*channels + ch

			// deinterleave frame data and apply window
			for x := range FrameSize {
				frame[x] = float64(samples[pos]) * window[x]
				pos += channels
			}
			g.bins[f*channels+ch] = fft.Coefficients(nil, frame)
		}
	}
	return g
}

// InverseDelta transforms one 513-bin delta spectrum back to a 1024-sample
// time-domain frame, normalized so InverseDelta(Coefficients(x)) == x.
func InverseDelta(bins []complex128) []float64 {
	fft := fourier.NewFFT(FrameSize)
	out := fft.Sequence(nil, bins)

	// gonum's inverse is unnormalized
	const scale = 1.0 / FrameSize
	for i := range out {
		out[i] *= scale
	}
	return out
}

// DBFromFactor converts a linear magnitude to decibels, returning minDB for
// non-positive magnitudes.
func DBFromFactor(factor, minDB float64) float64 {
	if factor > 0 {
		return 20 * math.Log10(factor)
	}
	return minDB
}
