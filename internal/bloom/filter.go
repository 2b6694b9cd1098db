// Package bloom provides a probabilistic membership filter used by the
// versioned encoding to skip segments that cannot contain a join key.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter is a fixed-size bloom filter. It guarantees no false negatives:
// if a key was added, Contains always returns true for it.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a Filter sized for the expected number of keys and target
// false positive rate, using the standard optimal-parameter formulas
// (m = -n*ln(p)/ln(2)^2, k = (m/n)*ln(2)).
func New(expectedKeys int, targetFPR float64) *Filter {
	if expectedKeys <= 0 {
		expectedKeys = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedKeys)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	numBits := uint64(math.Ceil(m))
	if numBits < 64 {
		numBits = 64
	}
	numHashes := uint64(math.Ceil(k))
	if numHashes < 1 {
		numHashes = 1
	}

	numWords := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   numWords * 64,
		numHashes: numHashes,
	}
}

// AddInt64 adds an integer key.
func (f *Filter) AddInt64(key int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	f.Add(buf[:])
}

// ContainsInt64 tests an integer key.
func (f *Filter) ContainsInt64(key int64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return f.Contains(buf[:])
}

// Add adds a key to the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// Contains reports whether the key might be in the filter. A false return
// means the key is definitely absent.
func (f *Filter) Contains(key []byte) bool {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of keys added.
func (f *Filter) Count() uint64 {
	return f.count
}

// Marshal serializes the filter for storage in the manifest.
// Layout: numBits, numHashes, count, then the bit words, all little-endian.
func (f *Filter) Marshal() []byte {
	out := make([]byte, 24+len(f.bits)*8)
	binary.LittleEndian.PutUint64(out[0:], f.numBits)
	binary.LittleEndian.PutUint64(out[8:], f.numHashes)
	binary.LittleEndian.PutUint64(out[16:], f.count)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(out[24+i*8:], w)
	}
	return out
}

// Unmarshal reconstructs a filter from Marshal output.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("bloom: serialized filter too short (%d bytes)", len(data))
	}
	numBits := binary.LittleEndian.Uint64(data[0:])
	numHashes := binary.LittleEndian.Uint64(data[8:])
	count := binary.LittleEndian.Uint64(data[16:])

	numWords := numBits / 64
	if uint64(len(data)-24) != numWords*8 {
		return nil, fmt.Errorf("bloom: serialized filter has %d payload bytes, want %d", len(data)-24, numWords*8)
	}

	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(data[24+i*8:])
	}

	return &Filter{bits: bits, numBits: numBits, numHashes: numHashes, count: count}, nil
}
