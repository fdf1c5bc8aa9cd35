package bitwise

import "math/bits"

// Bitmaps are little-endian within each byte: bit k lives in byte k/8 at
// position k%8.

func Unset(bitmap []byte, k int) {
	bitmap[k/8] &^= 1 << (k % 8) // AND NOT
}

func Set(bitmap []byte, k int) {
	bitmap[k/8] |= 1 << (k % 8) // OR
}

func Toggle(bitmap []byte, k int) {
	bitmap[k/8] ^= 1 << (k % 8) // XOR
}

func IsSet(bitmap []byte, k int) bool {
	return bitmap[k/8]&(1<<(k%8)) > 0
}

// FirstUnset returns the lowest unset bit below n, or -1 when all n bits are set.
func FirstUnset(bitmap []byte, n int) int {
	for i, b := range bitmap {
		if b == 0xff {
			continue
		}
		k := i*8 + bits.TrailingZeros8(^b)
		if k >= n {
			return -1
		}
		return k
	}
	return -1
}

// Count returns the number of set bits.
func Count(bitmap []byte) int {
	count := 0
	for _, b := range bitmap {
		count += bits.OnesCount8(b)
	}
	return count
}

// Size is the number of bytes needed to hold n bits.
func Size(n int) int {
	return (n + 7) / 8
}
