package resample

import (
	"math"
)

// arbitraryKernel handles ratios the rational fast path cannot, e.g.
// 33333 -> 44100. It evaluates a Kaiser-windowed sinc interpolator directly
// at each fractional input position instead of precomputing a phase bank,
// trading throughput for exactness at any ratio.
type arbitraryKernel struct {
	ratio    float64 // toRate / fromRate
	cutoff   float64 // relative to input Nyquist, <= 1
	halfTaps int
	i0Beta   float64
}

func newArbitraryKernel(fromRate, toRate int) *arbitraryKernel {
	ratio := float64(toRate) / float64(fromRate)
	return &arbitraryKernel{
		ratio:    ratio,
		cutoff:   math.Min(1.0, ratio),
		halfTaps: arbitraryHalfTaps,
		i0Beta:   besselI0(kernelBeta),
	}
}

// process resamples one channel. dst length defines the output frame count.
func (k *arbitraryKernel) process(dst, src []float64) {
	half := k.halfTaps
	padded := make([]float64, len(src)+2*half+1)
	copy(padded[half:], src)

	invRatio := 1.0 / k.ratio
	for n := range dst {
		t := float64(n) * invRatio
		i0 := int(t)
		frac := t - float64(i0)

		var acc float64
		for j := -half + 1; j <= half; j++ {
			tau := float64(j) - frac
			h := k.cutoff * sinc(k.cutoff*tau) * kaiserValue(tau/float64(half), kernelBeta, k.i0Beta)
			acc += padded[i0+j+half] * h
		}
		dst[n] = acc
	}
}
