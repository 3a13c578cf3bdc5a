package mark

import (
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/go-audio-watermark/internal/convcode"
	"github.com/tphakala/go-audio-watermark/internal/prng"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
)

// Pattern is one decoded watermark message.
type Pattern struct {
	Score       Score
	Bits        []int
	DecodeError float64

	// All marks the combined pattern aggregated over every block found.
	All bool
}

// Result is the outcome of a decode pass over one signal.
type Result struct {
	Patterns   []Pattern
	SyncScores []Score
	FrameCount int
}

// mixDecode extracts raw soft bits from a data block grid via the mix plan:
// the dB magnitudes of each code bit's scattered up and down bands are
// accumulated separately, and the soft bit is their difference.
func (l *Layout) mixDecode(grid *spectrum.Grid, startFrame int) []float64 {
	channels := grid.Channels()
	entries := l.MixEntries()

	rawBits := make([]float64, 0, l.dataFrames/l.params.FramesPerBit)
	var umag, dmag float64
	for f := range l.dataFrames {
		for ch := range channels {
			for frameB := range BandsPerFrame {
				e := entries[f*BandsPerFrame+frameB]
				bins := grid.At(startFrame+e.Frame, ch)

				umag += spectrum.DBFromFactor(cmplx.Abs(bins[e.Up]), spectrum.MinDB)
				dmag += spectrum.DBFromFactor(cmplx.Abs(bins[e.Down]), spectrum.MinDB)
			}
		}
		if f%l.params.FramesPerBit == l.params.FramesPerBit-1 {
			rawBits = append(rawBits, umag-dmag)
			umag, dmag = 0, 0
		}
	}
	return rawBits
}

// linearDecode extracts raw soft bits from frame-linear data storage.
func (l *Layout) linearDecode(grid *spectrum.Grid, startFrame int) []float64 {
	channels := grid.Channels()

	rawBits := make([]float64, 0, l.dataFrames/l.params.FramesPerBit)
	var umag, dmag float64
	for f := range l.dataFrames {
		up, down := l.UpDownBands(f, prng.StreamDataUpDown)
		for ch := range channels {
			bins := grid.At(startFrame+l.DataFramePos(f), ch)

			for _, u := range up {
				umag += spectrum.DBFromFactor(cmplx.Abs(bins[u]), spectrum.MinDB)
			}
			for _, d := range down {
				dmag += spectrum.DBFromFactor(cmplx.Abs(bins[d]), spectrum.MinDB)
			}
		}
		if f%l.params.FramesPerBit == l.params.FramesPerBit-1 {
			rawBits = append(rawBits, umag-dmag)
			umag, dmag = 0, 0
		}
	}
	return rawBits
}

// normalizeSoftBits maps raw soft bits to the [0, 1] confidence scale the
// Viterbi decoder expects. Soft decoding rescales by the mean magnitude;
// hard decoding thresholds at zero (soft decoding corrects more errors).
func normalizeSoftBits(p Params, softBits []float64) []float64 {
	norm := make([]float64, 0, len(softBits))

	if p.Hard {
		for _, v := range softBits {
			if v > 0 {
				norm = append(norm, 1.0)
			} else {
				norm = append(norm, 0.0)
			}
		}
		return norm
	}

	// figure out the average level of each bit
	mean := floats.Norm(softBits, 1) / float64(len(softBits))

	// rescale from [-mean, +mean] to [0, 1]
	for _, v := range softBits {
		norm = append(norm, 0.5*(v/mean+1))
	}
	return norm
}

// Decode extracts every watermark pattern from a signal at the mark rate:
// one pattern per sync hit, a combined AB pattern whenever a B block
// directly follows an A block, and — when at least two patterns decoded — an
// "all" pattern from the per-position average of every block's soft bits.
func Decode(p Params, samples []float32, channels int) *Result {
	layout := NewLayout(p)
	finder := NewSyncFinder(p, layout)

	result := &Result{
		SyncScores: finder.Search(samples, channels),
		FrameCount: FrameCount(len(samples), channels),
	}

	rawBitVecAll := make([]float64, convcode.CodeSize(convcode.BlockAB, PayloadSize))
	rawBitVecNorm := [2]int{}
	var allQuality float64

	lastBlockType := convcode.BlockB
	var abRawBitVec [2][]float64
	var abQuality [2]float64

	for _, syncScore := range result.SyncScores {
		grid := spectrum.FrameFFTs(samples, channels, syncScore.Index, layout.BlockFrameCount(), nil)
		if grid == nil {
			// block extends past the end of the signal
			continue
		}

		var rawBitVec []float64
		if p.Mix {
			rawBitVec = layout.mixDecode(grid, 0)
		} else {
			rawBitVec = layout.linearDecode(grid, 0)
		}
		rawBitVec = randomizeBitOrder(p.Key, rawBitVec, false)

		bits, decodeError := convcode.DecodeSoft(syncScore.Type, normalizeSoftBits(p, rawBitVec))
		result.Patterns = append(result.Patterns, Pattern{
			Score:       syncScore,
			Bits:        bits,
			DecodeError: decodeError,
		})

		// update "all" aggregation
		allQuality += syncScore.Quality
		ab := 0
		if syncScore.Type == convcode.BlockB {
			ab = 1
		}
		for i, v := range rawBitVec {
			rawBitVecAll[i*2+ab] += v
		}
		rawBitVecNorm[ab]++

		// a B block directly after an A block decodes as a combined AB block
		abRawBitVec[ab] = rawBitVec
		abQuality[ab] = syncScore.Quality
		if lastBlockType == convcode.BlockA && syncScore.Type == convcode.BlockB {
			abBits := make([]float64, 2*len(rawBitVec))
			for i := range rawBitVec {
				abBits[i*2] = abRawBitVec[0][i]
				abBits[i*2+1] = abRawBitVec[1][i]
			}
			bits, decodeError := convcode.DecodeSoft(convcode.BlockAB, normalizeSoftBits(p, abBits))
			result.Patterns = append(result.Patterns, Pattern{
				Score: Score{
					Index:   syncScore.Index,
					Quality: (abQuality[0] + abQuality[1]) / 2,
					Type:    convcode.BlockAB,
				},
				Bits:        bits,
				DecodeError: decodeError,
			})
		}
		lastBlockType = syncScore.Type
	}

	if len(result.Patterns) > 1 {
		// average A and B soft bits separately over their block counts
		for i := 0; i < len(rawBitVecAll); i += 2 {
			rawBitVecAll[i] /= float64(max(rawBitVecNorm[0], 1))
			rawBitVecAll[i+1] /= float64(max(rawBitVecNorm[1], 1))
		}

		bits, decodeError := convcode.DecodeSoft(convcode.BlockAB, normalizeSoftBits(p, rawBitVecAll))
		result.Patterns = append(result.Patterns, Pattern{
			Score: Score{
				Quality: allQuality / float64(rawBitVecNorm[0]+rawBitVecNorm[1]),
				Type:    convcode.BlockAB,
			},
			Bits:        bits,
			DecodeError: decodeError,
			All:         true,
		})
	}

	return result
}
