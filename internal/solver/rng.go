package solver

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mathrand "math/rand"
)

// newRNG builds the per-solve shuffle source. A non-empty seed string is
// hashed with FNV-1a 64 — pinned here so the same seed maps to the same
// numeric seed on every platform and process, unlike per-process map hashing.
// An empty seed draws from crypto/rand, making the solve intentionally
// non-reproducible.
func newRNG(seed string) *mathrand.Rand {
	if seed == "" {
		var b [8]byte
		_, _ = rand.Read(b[:])
		return mathrand.New(mathrand.NewSource(int64(binary.BigEndian.Uint64(b[:]))))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return mathrand.New(mathrand.NewSource(int64(h.Sum64())))
}
