package bvh

import (
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

const (
	// Bits per axis in a morton code.
	mortonAxisBits = 10

	// Number of buckets per radix sort pass; one pass per axis worth of bits.
	radixBuckets = 1 << mortonAxisBits
	radixMask    = radixBuckets - 1
	radixPasses  = 3

	// Grid cells are slightly wider than sceneWidth/1024 so that primitives
	// on the upper scene bound still quantize to 1023.
	cellScale float32 = 1.00001 / radixBuckets

	// Lower bound for the cell width along degenerate (flat) scene axes.
	minCellWidth float32 = 1e-30
)

// Spread the lower 10 bits of v so that bit i moves to bit 3i.
func expandBits(v uint32) uint32 {
	v &= radixMask
	v = (v | v<<16) & 0x030000FF
	v = (v | v<<8) & 0x0300F00F
	v = (v | v<<4) & 0x030C30C3
	v = (v | v<<2) & 0x09249249
	return v
}

// Interleave three 10-bit coordinates into a 30-bit morton code. Bit i of x
// goes to bit 3i, bit i of y to 3i+1 and bit i of z to 3i+2.
func MortonCode(x, y, z uint32) uint32 {
	return expandBits(x) | expandBits(y)<<1 | expandBits(z)<<2
}

func quantize(v, invWidth float32) uint32 {
	q := v * invWidth
	if !(q > 0) {
		return 0
	}
	if q >= radixMask {
		return radixMask
	}
	return uint32(q)
}

// Compute the morton code of each primitive centroid in store order,
// normalized against the scene bounds.
func computeMortonCodes(store *scene.PrimitiveStore) []uint32 {
	low := store.LowerBounds()
	width := store.UpperBounds().Sub(low).Mul(cellScale)

	var invWidth types.Vec3
	for axis := 0; axis < 3; axis++ {
		if width[axis] < minCellWidth {
			width[axis] = minCellWidth
		}
		invWidth[axis] = 1.0 / width[axis]
	}

	codes := make([]uint32, store.Size())
	for i := range codes {
		c := store.IndirectPrimitive(i).Center().Sub(low)
		codes[i] = MortonCode(
			quantize(c[0], invWidth[0]),
			quantize(c[1], invWidth[1]),
			quantize(c[2], invWidth[2]),
		)
	}
	return codes
}

// Sort the store indirection table by the morton code of each primitive
// centroid and return the codes in sorted order. The sort is a stable three
// pass LSD radix sort over 10-bit digits that ping-pongs between two buffer
// pairs. The sorted order is written back into the store table so slices
// previously obtained from Indirections observe it.
func SortPrimitives(store *scene.PrimitiveStore) []uint32 {
	codes := computeMortonCodes(store)
	table := store.Indirections()
	prims := table
	if len(codes) == 0 {
		return codes
	}

	codesAlt := make([]uint32, len(codes))
	primsAlt := make([]int, len(prims))

	var histogram [radixBuckets]int
	for pass := 0; pass < radixPasses; pass++ {
		shift := uint(pass * mortonAxisBits)

		for i := range histogram {
			histogram[i] = 0
		}
		for _, code := range codes {
			histogram[(code>>shift)&radixMask]++
		}

		// Convert to exclusive prefix sums
		sum := 0
		for i, count := range histogram {
			histogram[i] = sum
			sum += count
		}

		for i, code := range codes {
			bucket := (code >> shift) & radixMask
			dst := histogram[bucket]
			histogram[bucket]++
			codesAlt[dst] = code
			primsAlt[dst] = prims[i]
		}

		codes, codesAlt = codesAlt, codes
		prims, primsAlt = primsAlt, prims
	}

	// An odd pass count leaves the result in the scratch buffer
	copy(table, prims)
	return codes
}
