package resample

import (
	"github.com/tphakala/simd/f64"
)

// rationalKernel converts between rates whose ratio reduces to a small L/M
// fraction, which covers the common audio rates (44100, 48000, 32000, 96000).
// It is a polyphase decomposition of one Kaiser-windowed sinc prototype:
// phase p holds every L-th prototype tap starting at p, so each output sample
// is a single short dot product against the input history.
type rationalKernel struct {
	up   int // L
	down int // M

	tapsPerPhase int
	// phases[p] holds the taps of phase p in reversed order, so the inner
	// loop is a forward dot product over an ascending input slice.
	phases [][]float64
}

// newRationalKernel returns nil when the reduced fraction is too large for
// the fast path, in which case the caller falls back to the arbitrary kernel.
func newRationalKernel(fromRate, toRate int) *rationalKernel {
	g := gcd(fromRate, toRate)
	up := toRate / g
	down := fromRate / g
	if up > maxRationalFactor || down > maxRationalFactor {
		return nil
	}

	k := &rationalKernel{
		up:           up,
		down:         down,
		tapsPerPhase: rationalTapsPerPhase,
	}

	// Prototype runs at the virtual rate fromRate*L; cut at the narrower of
	// the two Nyquist frequencies.
	totalTaps := k.tapsPerPhase * up
	cutoff := 0.5 / float64(max(up, down))
	prototype := designLowpass(totalTaps, cutoff, kernelBeta, float64(up))

	k.phases = make([][]float64, up)
	for p := range up {
		phase := make([]float64, k.tapsPerPhase)
		for tap := range k.tapsPerPhase {
			idx := tap*up + p
			if idx < totalTaps {
				// reversed storage, see struct comment
				phase[k.tapsPerPhase-1-tap] = prototype[idx]
			}
		}
		k.phases[p] = phase
	}

	return k
}

// process resamples one channel. dst length defines the output frame count.
func (k *rationalKernel) process(dst, src []float64) {
	// Pad so every dot product stays in bounds.
	padded := make([]float64, len(src)+2*k.tapsPerPhase)
	copy(padded[k.tapsPerPhase:], src)

	center := k.tapsPerPhase * k.up / 2
	for n := range dst {
		u := n*k.down + center
		phase := u % k.up
		base := u/k.up + k.tapsPerPhase // index into padded

		lo := base - k.tapsPerPhase + 1
		dst[n] = f64.DotProductUnsafe(k.phases[phase], padded[lo:lo+k.tapsPerPhase])
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
