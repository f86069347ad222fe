package scene

import (
	"testing"

	"github.com/achilleasa/lbvh/types"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveStore(t *testing.T) {
	store := NewPrimitiveStore(3)
	require.True(t, store.Empty())
	require.Equal(t, types.Vec3{}, store.LowerBounds())
	require.Equal(t, types.Vec3{}, store.UpperBounds())

	tris := []Triangle{
		NewTriangle(types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
		NewTriangle(types.XYZ(5, 5, 5), types.XYZ(6, 5, 5), types.XYZ(5, 6, 5)),
		NewTriangle(types.XYZ(-3, 2, 1), types.XYZ(-2, 2, 1), types.XYZ(-3, 3, 1)),
	}
	for i, tri := range tris {
		require.Equal(t, i, store.Add(tri))
	}

	require.Equal(t, 3, store.Size())
	require.Equal(t, types.XYZ(-3, 0, 0), store.LowerBounds())
	require.Equal(t, types.XYZ(6, 6, 5), store.UpperBounds())
	require.Equal(t, []int{0, 1, 2}, store.Indirections())

	store.SetIndirections([]int{2, 0, 1})
	require.Equal(t, 2, store.Indirection(0))
	require.Equal(t, tris[2].A, store.IndirectPrimitive(0).A)
	require.Equal(t, tris[0].A, store.Primitive(0).A)

	store.ResetIndirection()
	require.Equal(t, []int{0, 1, 2}, store.Indirections())

	store.SetIndirections([]int{1, 2, 0})
	store.MoveToIndirect()
	require.Equal(t, []int{0, 1, 2}, store.Indirections())
	require.Equal(t, tris[1].A, store.Primitive(0).A)
	require.Equal(t, tris[2].A, store.Primitive(1).A)
	require.Equal(t, tris[0].A, store.Primitive(2).A)
}
