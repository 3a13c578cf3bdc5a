// Package resample converts interleaved float32 audio between sample rates.
//
// The watermark pipeline runs at a fixed rate, so resampling happens at most
// twice per operation: once into the watermark rate and once back out. Two
// kernels cover this: a fast polyphase FIR for ratios that reduce to a small
// rational fraction, and a slower windowed-sinc interpolator for arbitrary
// ratios. Both are one-shot whole-buffer kernels; there is no streaming state.
package resample

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// Resampling ratio limits
	minRatioFactor = 1.0 / 256.0 // Minimum resampling ratio (1/256)
	maxRatioFactor = 256.0       // Maximum resampling ratio (256x)

	// Largest up/down factor the polyphase fast path will build a phase
	// bank for; beyond this the arbitrary kernel is cheaper.
	maxRationalFactor = 1024

	// Filter sharpness shared by both kernels: 32 taps around each output
	// sample, with the Kaiser β derived from the attenuation target.
	rationalTapsPerPhase = 32
	arbitraryHalfTaps    = 16
	kernelAttenuationDB  = 100.0
)

// kernelBeta is the Kaiser β both kernels design their filters with.
var kernelBeta = kaiserBeta(kernelAttenuationDB)

// ErrUnsupportedRate indicates a rate conversion neither kernel can perform.
var ErrUnsupportedRate = errors.New("unsupported sample rate conversion")

// channelKernel resamples a single deinterleaved channel.
type channelKernel interface {
	process(dst, src []float64)
}

// Resample converts interleaved samples from fromRate to toRate, preserving
// the channel count. The output length is round(frames * toRate/fromRate)
// frames.
func Resample(samples []float32, channels, fromRate, toRate int) ([]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedRate, channels)
	}
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: %d Hz -> %d Hz", ErrUnsupportedRate, fromRate, toRate)
	}
	ratio := float64(toRate) / float64(fromRate)
	if ratio < minRatioFactor || ratio > maxRatioFactor {
		return nil, fmt.Errorf("%w: ratio %v out of range", ErrUnsupportedRate, ratio)
	}

	inFrames := len(samples) / channels
	outFrames := int(math.Round(float64(inFrames) * ratio))

	newKernel := func() channelKernel {
		if k := newRationalKernel(fromRate, toRate); k != nil {
			return k
		}
		return newArbitraryKernel(fromRate, toRate)
	}

	in := deinterleave(samples, channels, inFrames)
	out := make([][]float64, channels)
	for ch := range channels {
		out[ch] = make([]float64, outFrames)
	}

	// Channels are independent; process them concurrently when there are
	// several. Each channel gets its own kernel, so no state is shared.
	if channels > 1 {
		var wg sync.WaitGroup
		for ch := range channels {
			wg.Add(1)
			go func(channel int) {
				defer wg.Done()
				newKernel().process(out[channel], in[channel])
			}(ch)
		}
		wg.Wait()
	} else {
		newKernel().process(out[0], in[0])
	}

	return interleave(out, channels, outFrames), nil
}

// deinterleave converts interleaved float32 samples to per-channel float64.
func deinterleave(samples []float32, channels, frames int) [][]float64 {
	out := make([][]float64, channels)
	for ch := range channels {
		out[ch] = make([]float64, frames)
	}
	for i := range frames {
		base := i * channels
		for ch := range channels {
			out[ch][i] = float64(samples[base+ch])
		}
	}
	return out
}

// interleave converts per-channel float64 buffers back to interleaved float32.
func interleave(chans [][]float64, channels, frames int) []float32 {
	out := make([]float32, frames*channels)
	for i := range frames {
		base := i * channels
		for ch := range channels {
			out[base+ch] = float32(chans[ch][i])
		}
	}
	return out
}
