package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testShuffleLen = 1000
	testWordCount  = 256
)

// TestRand_Deterministic verifies that two streams with the same triple
// produce identical output. This is a protocol requirement, not just a
// convenience: the extractor reconstructs the embedder's band plan from it.
func TestRand_Deterministic(t *testing.T) {
	key := TestKey(42)

	a := New(key, StreamDataUpDown, 7)
	b := New(key, StreamDataUpDown, 7)

	for i := range testWordCount {
		require.Equal(t, a.Uint64(), b.Uint64(), "streams diverge at word %d", i)
	}
}

// TestRand_StreamsIndependent verifies distinct stream ids and seeds yield
// distinct sequences.
func TestRand_StreamsIndependent(t *testing.T) {
	key := TestKey(42)

	tests := []struct {
		name string
		a, b *Rand
	}{
		{"different stream", New(key, StreamDataUpDown, 7), New(key, StreamSyncUpDown, 7)},
		{"different seed", New(key, StreamDataUpDown, 7), New(key, StreamDataUpDown, 8)},
		{"different key", New(key, StreamDataUpDown, 7), New(TestKey(43), StreamDataUpDown, 7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			same := true
			for range testWordCount {
				if tt.a.Uint64() != tt.b.Uint64() {
					same = false
					break
				}
			}
			assert.False(t, same, "sequences should differ")
		})
	}
}

// TestRand_KnownOutputStable pins the first words of a fixed triple. If this
// test ever fails, the wire format changed and existing watermarks can no
// longer be extracted.
func TestRand_KnownOutputStable(t *testing.T) {
	r := New(Key{}, StreamFramePosition, 0)

	first := r.Uint64()
	second := r.Uint64()

	// first counter block under the zero key
	require.Equal(t, uint64(0xbaac12fb613a7de1), first)
	require.Equal(t, uint64(0x1450375c74034041), second)

	r2 := New(Key{}, StreamFramePosition, 0)
	require.Equal(t, first, r2.Uint64())
	require.Equal(t, second, r2.Uint64())
	assert.NotEqual(t, first, second)
}

// TestUint64n_Bounds verifies bounded values stay in range for assorted n.
func TestUint64n_Bounds(t *testing.T) {
	r := New(TestKey(1), StreamMix, 0)

	for _, n := range []uint64{1, 2, 3, 81, 510, 1 << 40} {
		for range 100 {
			v := r.Uint64n(n)
			require.Less(t, v, n)
		}
	}
}

// TestShuffle_IsPermutation verifies the shuffle output is a permutation.
func TestShuffle_IsPermutation(t *testing.T) {
	r := New(TestKey(5), StreamBitOrder, 0)

	vec := make([]int, testShuffleLen)
	for i := range vec {
		vec[i] = i
	}
	Shuffle(r, vec)

	seen := make([]bool, testShuffleLen)
	for _, v := range vec {
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, testShuffleLen)
		require.False(t, seen[v], "duplicate index %d", v)
		seen[v] = true
	}
}

// TestShuffle_Deterministic verifies the same triple shuffles identically.
func TestShuffle_Deterministic(t *testing.T) {
	mk := func() []int {
		vec := make([]int, testShuffleLen)
		for i := range vec {
			vec[i] = i
		}
		Shuffle(New(TestKey(5), StreamBitOrder, 3), vec)
		return vec
	}

	assert.Equal(t, mk(), mk())
}
