// Package simhash fingerprints page text so near-identical pages can be
// spotted without comparing bodies.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash of text. Words are compared case
// insensitively; empty text fingerprints to 0.
func Fingerprint(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := range 64 {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := range 64 {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are at most threshold bits apart.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Set remembers fingerprints and rejects near-duplicates. The zero value
// accepts only exact duplicates as duplicates.
type Set struct {
	Threshold int
	seen      []uint64
}

// Add records fp and reports true, or reports false when a fingerprint
// within Threshold was already recorded.
func (s *Set) Add(fp uint64) bool {
	for _, other := range s.seen {
		if Similar(fp, other, s.Threshold) {
			return false
		}
	}
	s.seen = append(s.seen, fp)
	return true
}
