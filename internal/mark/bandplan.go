package mark

import (
	"github.com/tphakala/go-audio-watermark/internal/convcode"
	"github.com/tphakala/go-audio-watermark/internal/prng"
)

// numBands is the size of the usable bin range [MinBand, MaxBand].
const numBands = MaxBand - MinBand + 1

// Layout precomputes the per-run tables shared by encoder and decoder: the
// frame-position permutation over one sync+data block and the mix plan. Both
// are pure functions of the key and the parameters.
type Layout struct {
	params     Params
	syncFrames int
	dataFrames int
	pos        []int

	mixEntries []MixEntry // built lazily
}

// MixEntry is one embedding slot of the mix plan: a band pair at a frame
// position inside the data block.
type MixEntry struct {
	Frame int
	Up    int
	Down  int
}

// NewLayout derives the block layout for the given parameters.
func NewLayout(p Params) *Layout {
	l := &Layout{
		params:     p,
		syncFrames: SyncBits * SyncFramesPerBit,
		dataFrames: convcode.CodeSize(convcode.BlockA, PayloadSize) * p.FramesPerBit,
	}

	l.pos = make([]int, l.syncFrames+l.dataFrames)
	for i := range l.pos {
		l.pos[i] = i
	}
	prng.Shuffle(prng.New(p.Key, prng.StreamFramePosition, 0), l.pos)

	return l
}

// SyncFrameCount returns the number of frames in a sync block.
func (l *Layout) SyncFrameCount() int { return l.syncFrames }

// DataFrameCount returns the number of frames in a data block.
func (l *Layout) DataFrameCount() int { return l.dataFrames }

// BlockFrameCount returns the total frames of one sync+data block.
func (l *Layout) BlockFrameCount() int { return l.syncFrames + l.dataFrames }

// SyncFramePos maps sync frame i to its position within the block.
func (l *Layout) SyncFramePos(f int) int {
	return l.pos[f]
}

// DataFramePos maps data frame j to its position within the block.
func (l *Layout) DataFramePos(f int) int {
	return l.pos[f+l.syncFrames]
}

// UpDownBands derives the up and down band sets for frame seed f on the
// given stream: a keyed shuffle of the usable bins, split into two disjoint
// halves of BandsPerFrame bins each.
func (l *Layout) UpDownBands(f int, stream prng.Stream) (up, down []int) {
	bands := make([]int, 0, numBands)
	for i := MinBand; i <= MaxBand; i++ {
		bands = append(bands, i)
	}

	// per frame random seed
	prng.Shuffle(prng.New(l.params.Key, stream, uint64(f)), bands)

	up = bands[:BandsPerFrame]
	down = bands[BandsPerFrame : 2*BandsPerFrame]
	return up, down
}

// MixEntries returns the global mix plan: every (frame, up, down) embedding
// slot of the data block, shuffled so each code bit's band edits scatter
// across many frame positions. The plan is memoized per layout.
func (l *Layout) MixEntries() []MixEntry {
	if l.mixEntries != nil {
		return l.mixEntries
	}

	entries := make([]MixEntry, 0, l.dataFrames*BandsPerFrame)
	for f := range l.dataFrames {
		up, down := l.UpDownBands(f, prng.StreamDataUpDown)
		for i := range BandsPerFrame {
			entries = append(entries, MixEntry{
				Frame: l.DataFramePos(f),
				Up:    up[i],
				Down:  down[i],
			})
		}
	}
	prng.Shuffle(prng.New(l.params.Key, prng.StreamMix, 0), entries)

	l.mixEntries = entries
	return entries
}

// randomizeBitOrder permutes a code bit vector with the fixed bit-order
// shuffle (encode) or applies the inverse permutation (decode).
func randomizeBitOrder[T any](key prng.Key, vec []T, encode bool) []T {
	order := make([]int, len(vec))
	for i := range order {
		order[i] = i
	}
	prng.Shuffle(prng.New(key, prng.StreamBitOrder, 0), order)

	out := make([]T, len(vec))
	for i := range vec {
		if encode {
			out[i] = vec[order[i]]
		} else {
			out[order[i]] = vec[i]
		}
	}
	return out
}
