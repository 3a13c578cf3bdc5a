package mark

import (
	"math/cmplx"
	"sort"

	"github.com/tphakala/go-audio-watermark/internal/convcode"
	"github.com/tphakala/go-audio-watermark/internal/prng"
	"github.com/tphakala/go-audio-watermark/internal/spectrum"
)

// Score is one located sync block: the first-sample index of the block, the
// normalized sync quality, and the block polarity.
type Score struct {
	Index   int
	Quality float64
	Type    convcode.BlockType
}

// SyncFinder locates sync blocks in a signal without prior alignment. It
// precomputes, per sync bit, the flattened dB-array offsets of all up and
// down bins over the bit's 85 sub-frames, so scoring one candidate offset is
// a pair of gather-sums per bit.
type SyncFinder struct {
	params Params
	layout *Layout

	up   [][]int
	down [][]int
}

// NewSyncFinder creates a finder for the given layout.
func NewSyncFinder(p Params, layout *Layout) *SyncFinder {
	return &SyncFinder{params: p, layout: layout}
}

// initUpDown flattens the sync band plan into per-bit offset arrays for the
// dB magnitude layout produced by syncFFT: (frame*channels + ch)*numBands + band.
func (sf *SyncFinder) initUpDown(channels int) {
	sf.up = make([][]int, SyncBits)
	sf.down = make([][]int, SyncBits)

	for bit := range SyncBits {
		for f := range SyncFramesPerBit {
			frameUp, frameDown := sf.layout.UpDownBands(f+bit*SyncFramesPerBit, prng.StreamSyncUpDown)
			framePos := sf.layout.SyncFramePos(f + bit*SyncFramesPerBit)

			for _, u := range frameUp {
				sf.up[bit] = append(sf.up[bit], u-MinBand+framePos*numBands*channels)
			}
			for _, d := range frameDown {
				sf.down[bit] = append(sf.down[bit], d-MinBand+framePos*numBands*channels)
			}
		}
		sort.Ints(sf.up[bit])
		sort.Ints(sf.down[bit])
	}
}

// normalizeSyncQuality maps the raw score to a strength-independent value:
// about 1.0 or more on a real sync block and near 0.0 elsewhere, so a single
// threshold works at any configured delta.
func (sf *SyncFinder) normalizeSyncQuality(rawQuality float64) float64 {
	effectiveDelta := sf.params.Delta
	if effectiveDelta > syncQualityDeltaCap {
		effectiveDelta = syncQualityDeltaCap
	}
	return rawQuality / effectiveDelta / syncQualityDivisor
}

// syncDecode scores the 010101 template at startFrame against the dB
// magnitudes, returning the absolute quality and the polarity (a negative
// raw score means the 101010 pattern of a B block).
func (sf *SyncFinder) syncDecode(channels, startFrame int, fftOutDB []float64) (float64, convcode.BlockType) {
	var syncQuality float64

	for bit := range SyncBits {
		var umag, dmag float64
		for ch := range channels {
			index := (startFrame*channels + ch) * numBands
			for i := range sf.up[bit] {
				umag += fftOutDB[index+sf.up[bit][i]]
				dmag += fftOutDB[index+sf.down[bit][i]]
			}
		}

		// convert avoiding bias, rawBit < 0 => 0 bit, rawBit > 0 => 1 bit
		var rawBit float64
		if umag < dmag {
			rawBit = 1 - umag/dmag
		} else {
			rawBit = dmag/umag - 1
		}

		if expect := bit & 1; expect != 0 { // expect 010101
			syncQuality += rawBit
		} else {
			syncQuality -= rawBit
		}
	}
	syncQuality /= SyncBits
	syncQuality = sf.normalizeSyncQuality(syncQuality)

	if syncQuality < 0 {
		return -syncQuality, convcode.BlockB
	}
	return syncQuality, convcode.BlockA
}

// syncFFT computes dB magnitudes of the watermark band range for count
// frames starting at sample offset index. Frames excluded by wantFrames get
// the dB floor. Returns nil when the signal is too short.
func syncFFT(samples []float32, channels, index, count int, wantFrames []bool) []float64 {
	grid := spectrum.FrameFFTs(samples, channels, index, count, wantFrames)
	if grid == nil {
		return nil
	}

	fftOutDB := make([]float64, 0, count*channels*numBands)
	for f := range count {
		for ch := range channels {
			bins := grid.At(f, ch)
			if bins == nil { // not in wantFrames
				for i := MinBand; i <= MaxBand; i++ {
					fftOutDB = append(fftOutDB, spectrum.MinDB)
				}
				continue
			}
			for i := MinBand; i <= MaxBand; i++ {
				fftOutDB = append(fftOutDB, spectrum.DBFromFactor(cmplx.Abs(bins[i]), spectrum.MinDB))
			}
		}
	}
	return fftOutDB
}

// Search locates all sync blocks in the signal, in ascending index order.
//
// The coarse pass scores every frame start on four sample-shifted FFT grids
// (step 256 over the 1024 frame); local maxima above the first threshold are
// refined at step 8 over ±256 samples, recomputing only the sync frames.
// Hits must exceed the second, stricter threshold.
func (sf *SyncFinder) Search(samples []float32, channels int) []Score {
	var resultScores []Score

	frameCount := FrameCount(len(samples), channels)
	blockFrames := sf.layout.BlockFrameCount()
	if frameCount < 2 {
		return nil
	}

	if sf.params.TestNoSync {
		// theoretical positions, alternating polarity
		expectStep := blockFrames * FrameSize
		expectEnd := frameCount * FrameSize

		ab := 0
		for index := FramesPadStart * FrameSize; index+expectStep < expectEnd; index += expectStep {
			blockType := convcode.BlockA
			if ab&1 != 0 {
				blockType = convcode.BlockB
			}
			resultScores = append(resultScores, Score{Index: index, Quality: 1.0, Type: blockType})
			ab++
		}
		return resultScores
	}

	sf.initUpDown(channels)

	// coarse search over multiple time-shifted fft grids
	var syncScores []Score
	for syncShift := 0; syncShift < FrameSize; syncShift += syncSearchStep {
		fftDB := syncFFT(samples, channels, syncShift, frameCount-1, nil)
		for startFrame := 0; startFrame < frameCount; startFrame++ {
			if (startFrame+blockFrames)*channels*numBands >= len(fftDB) {
				continue
			}
			quality, blockType := sf.syncDecode(channels, startFrame, fftDB)
			syncScores = append(syncScores, Score{
				Index:   startFrame*FrameSize + syncShift,
				Quality: quality,
				Type:    blockType,
			})
		}
	}
	sort.Slice(syncScores, func(a, b int) bool { return syncScores[a].Index < syncScores[b].Index })

	// only the sync frames are needed during refinement
	wantFrames := make([]bool, blockFrames)
	for f := range sf.layout.SyncFrameCount() {
		wantFrames[sf.layout.SyncFramePos(f)] = true
	}

	for i := range syncScores {
		if syncScores[i].Quality <= syncThreshold1 {
			continue
		}

		// only strict local maxima of the coarse grid are refined
		qLast, qNext := -1.0, -1.0
		if i > 0 {
			qLast = syncScores[i-1].Quality
		}
		if i+1 < len(syncScores) {
			qNext = syncScores[i+1].Quality
		}
		if syncScores[i].Quality <= qLast || syncScores[i].Quality <= qNext {
			continue
		}

		bestQuality := syncScores[i].Quality
		bestIndex := syncScores[i].Index
		bestBlockType := syncScores[i].Type // doesn't change during refinement

		start := max(syncScores[i].Index-syncSearchStep, 0)
		end := syncScores[i].Index + syncSearchStep
		for fineIndex := start; fineIndex <= end; fineIndex += syncSearchFine {
			fftDB := syncFFT(samples, channels, fineIndex, blockFrames, wantFrames)
			if fftDB == nil {
				continue
			}
			if q, _ := sf.syncDecode(channels, 0, fftDB); q > bestQuality {
				bestQuality = q
				bestIndex = fineIndex
			}
		}

		if bestQuality > syncThreshold2 {
			resultScores = append(resultScores, Score{
				Index:   bestIndex,
				Quality: bestQuality,
				Type:    bestBlockType,
			})
		}
	}
	return resultScores
}
