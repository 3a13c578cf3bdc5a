package mark

import (
	"math"
	"math/cmplx"

	"github.com/tphakala/go-audio-watermark/internal/convcode"
	"github.com/tphakala/go-audio-watermark/internal/prng"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
)

// Synthesis window shape: a triangle rising to 1 across the center frame
// with a linear ramp of this fraction around the frame boundaries, smoothed
// by a raised cosine. The 0.1 value is historical and pinned by the wire
// format.
const synthOverlap = 0.1

// markBitLinear writes one bit into a single frame spectrum: up bands get
// their magnitude raised to the power (1 - delta*sign), down bands to
// (1 + delta*sign). Magnitudes are below 1.0, so for a 1 bit this nudges up
// band energy upward and down band energy downward; a 0 bit does the
// reverse. Phases are preserved.
func (l *Layout) markBitLinear(f int, fftOut, fftDelta []complex128, bit int, stream prng.Stream) {
	up, down := l.UpDownBands(f, stream)

	sign := -1.0
	if bit > 0 {
		sign = 1.0
	}
	for _, u := range up {
		mag := cmplx.Abs(fftOut[u])
		if mag > minBandMagnitude {
			magFactor := math.Pow(mag, -l.params.Delta*sign)
			fftDelta[u] = fftOut[u] * complex(magFactor-1, 0)
		}
	}
	for _, d := range down {
		mag := cmplx.Abs(fftOut[d])
		if mag > minBandMagnitude {
			magFactor := math.Pow(mag, l.params.Delta*sign)
			fftDelta[d] = fftOut[d] * complex(magFactor-1, 0)
		}
	}
}

// markSync writes one sync block: pattern 010101 for an A block, 101010 for
// a B block, each bit repeated over SyncFramesPerBit frames. Sync frames are
// always stored frame-linear so the finder can score candidate offsets
// without undoing the mix plan.
func (l *Layout) markSync(fftOut, fftDelta *spectrum.Grid, startFrame, ab int) {
	channels := fftOut.Channels()
	for f := range l.syncFrames {
		pos := startFrame + l.SyncFramePos(f)
		bit := (f/SyncFramesPerBit + ab) & 1
		for ch := range channels {
			l.markBitLinear(f, fftOut.At(pos, ch), fftDelta.At(pos, ch), bit, prng.StreamSyncUpDown)
		}
	}
}

// markData writes one data block from an encoded (and bit-order shuffled)
// code bit vector, using the mix plan or frame-linear storage.
func (l *Layout) markData(fftOut, fftDelta *spectrum.Grid, startFrame int, bitvec []int) {
	channels := fftOut.Channels()

	if l.params.Mix {
		entries := l.MixEntries()
		for f := range l.dataFrames {
			bit := bitvec[f/l.params.FramesPerBit]
			sign := -1.0
			if bit > 0 {
				sign = 1.0
			}
			for ch := range channels {
				for frameB := range BandsPerFrame {
					e := entries[f*BandsPerFrame+frameB]
					out := fftOut.At(startFrame+e.Frame, ch)
					delta := fftDelta.At(startFrame+e.Frame, ch)

					if mag := cmplx.Abs(out[e.Up]); mag > minBandMagnitude {
						magFactor := math.Pow(mag, -l.params.Delta*sign)
						delta[e.Up] = out[e.Up] * complex(magFactor-1, 0)
					}
					if mag := cmplx.Abs(out[e.Down]); mag > minBandMagnitude {
						magFactor := math.Pow(mag, l.params.Delta*sign)
						delta[e.Down] = out[e.Down] * complex(magFactor-1, 0)
					}
				}
			}
		}
		return
	}

	for f := range l.dataFrames {
		pos := startFrame + l.DataFramePos(f)
		for ch := range channels {
			l.markBitLinear(f, fftOut.At(pos, ch), fftDelta.At(pos, ch),
				bitvec[f/l.params.FramesPerBit], prng.StreamDataUpDown)
		}
	}
}

// markPad writes a zero bit into a padding frame, seeded by the absolute
// frame index.
func (l *Layout) markPad(fftOut, fftDelta *spectrum.Grid, frame int) {
	for ch := range fftOut.Channels() {
		l.markBitLinear(frame, fftOut.At(frame, ch), fftDelta.At(frame, ch), 0, prng.StreamPadUpDown)
	}
}

// synthWindow builds the 3-frame overlap-add synthesis window: the IFFT of a
// frame's delta spectrum contributes to the previous, current and next frame
// positions under this window.
func synthWindow() []float64 {
	window := make([]float64, 3*FrameSize)
	for i := range window {
		// triangular basic window
		var tri float64
		normPos := (float64(i) - FrameSize) / FrameSize

		if normPos > 0.5 { // symmetric window
			normPos = 1 - normPos
		}
		switch {
		case normPos < -synthOverlap:
			tri = 0
		case normPos < synthOverlap:
			tri = 0.5 + normPos/(2*synthOverlap)
		default:
			tri = 1
		}
		// cosine smoothing
		window[i] = (math.Cos(tri*math.Pi+math.Pi) + 1) * 0.5
	}
	return window
}

// EmbedDelta computes the watermark delta signal for a payload.
//
// The samples must already be at the mark sample rate and padded to a whole
// number of frames per channel. The returned delta has the same length as
// the input and is meant to be mixed onto it; the second return value is the
// number of complete data blocks written (zero when the signal is too short
// for even one block, in which case only padding was embedded).
func EmbedDelta(p Params, samples []float32, channels int, payload []int) ([]float32, int) {
	layout := NewLayout(p)
	frameCount := FrameCount(len(samples), channels)

	// FEC-encode the payload once per polarity, then shuffle bit order
	bitvecA := randomizeBitOrder(p.Key, convcode.Encode(convcode.BlockA, payload), true)
	bitvecB := randomizeBitOrder(p.Key, convcode.Encode(convcode.BlockB, payload), true)

	fftOut := spectrum.FrameFFTs(samples, channels, 0, frameCount, nil)
	fftDelta := spectrum.NewGrid(frameCount, channels)
	if fftOut == nil {
		return make([]float32, len(samples)), 0
	}

	frameIndex := 0
	dataBlocks := 0

	// padding at start
	for frameIndex < FramesPadStart && frameIndex < frameCount {
		layout.markPad(fftOut, fftDelta, frameIndex)
		frameIndex++
	}
	// embed sync|data|sync|data|...
	for frameIndex+layout.BlockFrameCount() < frameCount {
		ab := dataBlocks & 1
		layout.markSync(fftOut, fftDelta, frameIndex, ab)
		if ab == 0 {
			layout.markData(fftOut, fftDelta, frameIndex, bitvecA)
		} else {
			layout.markData(fftOut, fftDelta, frameIndex, bitvecB)
		}
		frameIndex += layout.BlockFrameCount()
		dataBlocks++
	}
	// padding at end
	for frameIndex < frameCount {
		layout.markPad(fftOut, fftDelta, frameIndex)
		frameIndex++
	}

	// overlap-add the synthesized delta frames
	window := synthWindow()
	delta := make([]float32, len(samples))
	for f := range frameCount {
		for ch := range channels {
			// InverseDelta is normalized by 1/FrameSize; the delta is mixed
			// in at the unnormalized inverse scale
			frameDelta := spectrum.InverseDelta(fftDelta.At(f, ch))

			for dframe := -1; dframe <= 1; dframe++ {
				if f+dframe <= 0 || f+dframe >= frameCount {
					continue
				}
				wstart := (dframe + 1) * FrameSize
				pos := (f+dframe)*FrameSize*channels + ch
				for x := range FrameSize {
					delta[pos] += float32(frameDelta[x] * FrameSize * window[wstart+x])
					pos += channels
				}
			}
		}
	}

	return delta, dataBlocks
}
