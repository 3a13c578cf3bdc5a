// Package prng implements the deterministic random streams used by the
// watermark protocol. Both the embedder and the extractor derive band
// assignments, frame permutations and bit shuffles from these streams, so a
// given (key, stream, seed) triple must produce identical output on every
// platform. The generator is AES-128 in counter mode: the user key is the
// cipher key, and each counter block encodes the stream id, the seed and a
// running block counter.
package prng

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// Stream identifies one of the independent random sequences of the protocol.
type Stream uint8

const (
	// StreamDataUpDown selects up/down bands for data frames.
	StreamDataUpDown Stream = iota
	// StreamSyncUpDown selects up/down bands for sync frames.
	StreamSyncUpDown
	// StreamPadUpDown selects up/down bands for padding frames.
	StreamPadUpDown
	// StreamBitOrder shuffles the FEC-encoded bit vector.
	StreamBitOrder
	// StreamFramePosition shuffles sync/data frame positions within a block.
	StreamFramePosition
	// StreamMix shuffles the mix-plan embedding slots.
	StreamMix
)

// KeySize is the watermarking key size in bytes (128 bits).
const KeySize = 16

const (
	wordsPerBlock = aes.BlockSize / 8

	// counter block layout
	streamIDOffset = 0
	seedOffset     = 1
	counterOffset  = 9 // 56-bit block counter, big endian
	counterBytes   = aes.BlockSize - counterOffset
)

// Key is a 128-bit watermarking key. The zero value is the standard key used
// when no key is configured.
type Key [KeySize]byte

// TestKey derives a key from a small integer, for reproducible tests.
func TestKey(n uint64) Key {
	var key Key
	binary.BigEndian.PutUint64(key[KeySize-8:], n)
	return key
}

// Rand is a deterministic random stream for one (key, stream, seed) triple.
// It is not safe for concurrent use.
type Rand struct {
	block   cipher.Block
	counter [aes.BlockSize]byte
	buf     [wordsPerBlock]uint64
	used    int
}

// New creates a random stream seeded with the given stream id and seed.
func New(key Key, stream Stream, seed uint64) *Rand {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// aes.NewCipher only fails on invalid key sizes; Key fixes the size.
		panic("prng: " + err.Error())
	}

	r := &Rand{block: block, used: wordsPerBlock}
	r.counter[streamIDOffset] = byte(stream)
	binary.BigEndian.PutUint64(r.counter[seedOffset:seedOffset+8], seed)
	return r
}

// Uint64 returns the next 64-bit word of the stream.
func (r *Rand) Uint64() uint64 {
	if r.used == wordsPerBlock {
		r.refill()
	}
	w := r.buf[r.used]
	r.used++
	return w
}

func (r *Rand) refill() {
	var out [aes.BlockSize]byte
	r.block.Encrypt(out[:], r.counter[:])

	for i := range wordsPerBlock {
		r.buf[i] = binary.BigEndian.Uint64(out[i*8:])
	}
	r.used = 0

	// increment the 56-bit block counter
	for i := aes.BlockSize - 1; i >= counterOffset; i-- {
		r.counter[i]++
		if r.counter[i] != 0 {
			return
		}
	}
}

// Uint64n returns an unbiased uniform value in [0, n). n must be positive.
func (r *Rand) Uint64n(n uint64) uint64 {
	if n == 0 {
		panic("prng: Uint64n with n == 0")
	}
	// rejection sampling to remove modulo bias
	limit := -n % n // (2^64 - n) % n == 2^64 mod n
	for {
		w := r.Uint64()
		if w >= limit {
			return w % n
		}
	}
}

// Shuffle permutes vec with an unbiased Fisher-Yates shuffle.
func Shuffle[T any](r *Rand, vec []T) {
	for i := len(vec) - 1; i > 0; i-- {
		j := r.Uint64n(uint64(i + 1))
		vec[i], vec[j] = vec[j], vec[i]
	}
}
