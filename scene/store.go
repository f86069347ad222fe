package scene

import (
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

// PrimitiveStore owns the scene triangles and an indirection table that maps
// a store index to an original primitive index. Acceleration structures
// reorder the indirection table, never the triangles themselves.
type PrimitiveStore struct {
	prims    []Triangle
	indirect []int

	low, high types.Vec3
}

// Create an empty store with room for size triangles.
func NewPrimitiveStore(size int) *PrimitiveStore {
	return &PrimitiveStore{
		prims:    make([]Triangle, 0, size),
		indirect: make([]int, 0, size),
		low:      types.Splat3(math32.MaxFloat32),
		high:     types.Splat3(-math32.MaxFloat32),
	}
}

// Append a triangle and return its original primitive index.
func (s *PrimitiveStore) Add(t Triangle) int {
	idx := len(s.prims)
	s.prims = append(s.prims, t)
	s.indirect = append(s.indirect, idx)
	s.low = types.MinVec3(s.low, t.low)
	s.high = types.MaxVec3(s.high, t.high)
	return idx
}

// Number of stored triangles.
func (s *PrimitiveStore) Size() int {
	return len(s.prims)
}

func (s *PrimitiveStore) Empty() bool {
	return len(s.prims) == 0
}

// Direct access by original primitive index.
func (s *PrimitiveStore) Primitive(i int) *Triangle {
	return &s.prims[i]
}

// Access the triangle stored at store index i.
func (s *PrimitiveStore) IndirectPrimitive(i int) *Triangle {
	return &s.prims[s.indirect[i]]
}

// Map a store index to the original primitive index.
func (s *PrimitiveStore) Indirection(i int) int {
	return s.indirect[i]
}

// Get the indirection table. Callers may permute it in place.
func (s *PrimitiveStore) Indirections() []int {
	return s.indirect
}

// Replace the indirection table. The table must be a permutation of the
// primitive indices.
func (s *PrimitiveStore) SetIndirections(indirect []int) {
	s.indirect = indirect
}

// Restore the identity indirection.
func (s *PrimitiveStore) ResetIndirection() {
	for i := range s.indirect {
		s.indirect[i] = i
	}
}

// Physically reorder the triangles to match the indirection table and reset
// the table. Original primitive indices are lost after this call.
func (s *PrimitiveStore) MoveToIndirect() {
	moved := make([]Triangle, len(s.prims))
	for i, idx := range s.indirect {
		moved[i] = s.prims[idx]
		s.indirect[i] = i
	}
	s.prims = moved
}

// Lowest corner of the scene AABB. Returns the zero vector for empty scenes.
func (s *PrimitiveStore) LowerBounds() types.Vec3 {
	if s.Empty() {
		return types.Vec3{}
	}
	return s.low
}

// Highest corner of the scene AABB. Returns the zero vector for empty scenes.
func (s *PrimitiveStore) UpperBounds() types.Vec3 {
	if s.Empty() {
		return types.Vec3{}
	}
	return s.high
}
