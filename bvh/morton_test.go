package bvh

import (
	"sort"
	"testing"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/stretchr/testify/require"
)

func TestMortonCode(t *testing.T) {
	specs := []struct {
		x, y, z uint32
		exp     uint32
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 2},
		{0, 0, 1, 4},
		{2, 0, 0, 8},
		{3, 3, 3, 63},
		{1023, 1023, 1023, 1<<30 - 1},
		{512, 0, 0, 1 << 27},
		{0, 0, 512, 1 << 29},
	}

	for specIndex, spec := range specs {
		if got := MortonCode(spec.x, spec.y, spec.z); got != spec.exp {
			t.Fatalf("[spec %d] expected morton code %d; got %d", specIndex, spec.exp, got)
		}
	}
}

func TestSortPrimitives(t *testing.T) {
	store := genScene(t, scene.SoupScene, 5000, 7)

	codes := SortPrimitives(store)
	require.Len(t, codes, store.Size())
	require.True(t, sort.SliceIsSorted(codes, func(i, j int) bool { return codes[i] < codes[j] }), "expected sorted morton codes")

	// The indirection must remain a permutation
	seen := make([]bool, store.Size())
	for _, idx := range store.Indirections() {
		require.False(t, seen[idx], "primitive %d appears twice", idx)
		seen[idx] = true
	}

	// Codes must belong to the primitives they were sorted with
	require.Equal(t, codes, computeMortonCodes(store))

	// Sorting again is a no-op
	before := append([]int(nil), store.Indirections()...)
	again := SortPrimitives(store)
	require.Equal(t, codes, again)
	require.Equal(t, before, store.Indirections())
}

func TestSortPrimitivesUpdatesTableInPlace(t *testing.T) {
	store := genScene(t, scene.SoupScene, 3000, 11)
	table := store.Indirections()

	codes := SortPrimitives(store)
	require.Same(t, &table[0], &store.Indirections()[0], "expected the store table to be sorted in place")

	// The slice held by the caller must observe the sorted order
	require.Equal(t, codes, computeMortonCodes(store))
	for i := range table {
		require.Equal(t, store.Indirection(i), table[i])
	}
}

func TestSortPrimitivesDegenerate(t *testing.T) {
	// Empty store
	empty := scene.NewPrimitiveStore(0)
	require.Empty(t, SortPrimitives(empty))

	// All primitives collapse to the same point
	store := scene.NewPrimitiveStore(8)
	p := types.XYZ(3, 3, 3)
	for i := 0; i < 8; i++ {
		store.Add(scene.NewTriangle(p, p, p))
	}
	codes := SortPrimitives(store)
	require.Len(t, codes, 8)
	for _, code := range codes {
		require.Equal(t, uint32(0), code)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, store.Indirections())
}
