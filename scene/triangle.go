package scene

import "github.com/achilleasa/lbvh/types"

// A triangle primitive. Use NewTriangle to create triangles so that the
// intersection pre-computes and bounds are populated.
type Triangle struct {
	A, B, C types.Vec3

	// Lights and transparent surfaces never occlude shadow rays.
	Light       bool
	Transparent bool

	// Edge vectors used by the intersection test.
	e1, e2 types.Vec3

	low, high types.Vec3
}

// Create a triangle from its vertices.
func NewTriangle(a, b, c types.Vec3) Triangle {
	return Triangle{
		A:    a,
		B:    b,
		C:    c,
		e1:   b.Sub(a),
		e2:   c.Sub(a),
		low:  types.MinVec3(types.MinVec3(a, b), c),
		high: types.MaxVec3(types.MaxVec3(a, b), c),
	}
}

// Get the triangle AABB as a [low, high] pair.
func (t *Triangle) BBox() [2]types.Vec3 {
	return [2]types.Vec3{t.low, t.high}
}

// Lowest corner of the triangle AABB.
func (t *Triangle) LowestPoint() types.Vec3 {
	return t.low
}

// Highest corner of the triangle AABB.
func (t *Triangle) HighestPoint() types.Vec3 {
	return t.high
}

// Get triangle AABB center.
func (t *Triangle) Center() types.Vec3 {
	return t.low.Add(t.high).Mul(0.5)
}

// Geometric normal (not normalized), following the A, B, C winding.
func (t *Triangle) Normal() types.Vec3 {
	return t.e1.Cross(t.e2)
}

// Returns true if the triangle can block light.
func (t *Triangle) Occludes() bool {
	return !t.Light && !t.Transparent
}

// Intersect the triangle with r. Hits closer than Epsilon or farther than
// h.D are rejected. On a hit h is overwritten with the hit distance and
// barycentric coordinates; on a miss h.D is set to MaxDist.
func (t *Triangle) IsIntersecting(r *Ray, h *HitDescription) {
	p := r.Dir.Cross(t.e2)
	det := t.e1.Dot(p)
	if det == 0 {
		h.D, h.Type = MaxDist, Miss
		return
	}

	inv := 1.0 / det
	s := r.Origin.Sub(t.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		h.D, h.Type = MaxDist, Miss
		return
	}

	q := s.Cross(t.e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		h.D, h.Type = MaxDist, Miss
		return
	}

	dist := t.e2.Dot(q) * inv
	if dist < Epsilon || dist > h.D {
		h.D, h.Type = MaxDist, Miss
		return
	}

	h.D, h.U, h.V = dist, u, v
	if det > 0 {
		h.Type = OutIn
	} else {
		h.Type = InOut
	}
}

// Intersect the triangle with all lanes of a packet. Lanes that find a hit
// closer than their current h.D are updated; the returned mask flags them.
func (t *Triangle) IsIntersectingPacket(r *PacketRay, h *PacketHitDescription) types.Mask {
	// p = dir x e2
	px := r.Dir[1].Scale(t.e2[2]).Sub(r.Dir[2].Scale(t.e2[1]))
	py := r.Dir[2].Scale(t.e2[0]).Sub(r.Dir[0].Scale(t.e2[2]))
	pz := r.Dir[0].Scale(t.e2[1]).Sub(r.Dir[1].Scale(t.e2[0]))

	det := px.Scale(t.e1[0]).Add(py.Scale(t.e1[1])).Add(pz.Scale(t.e1[2]))
	inv := det.Inverse()

	sx := r.Origin[0].Sub(types.SplatLanes(t.A[0]))
	sy := r.Origin[1].Sub(types.SplatLanes(t.A[1]))
	sz := r.Origin[2].Sub(types.SplatLanes(t.A[2]))
	u := sx.Mul(px).Add(sy.Mul(py)).Add(sz.Mul(pz)).Mul(inv)

	// q = s x e1
	qx := sy.Scale(t.e1[2]).Sub(sz.Scale(t.e1[1]))
	qy := sz.Scale(t.e1[0]).Sub(sx.Scale(t.e1[2]))
	qz := sx.Scale(t.e1[1]).Sub(sy.Scale(t.e1[0]))
	v := r.Dir[0].Mul(qx).Add(r.Dir[1].Mul(qy)).Add(r.Dir[2].Mul(qz)).Mul(inv)
	dist := qx.Scale(t.e2[0]).Add(qy.Scale(t.e2[1])).Add(qz.Scale(t.e2[2])).Mul(inv)

	zero := types.SplatLanes(0)
	one := types.SplatLanes(1)
	hit := det.Abs().Greater(zero) &
		u.GreaterEq(zero) &
		v.GreaterEq(zero) &
		u.Add(v).LessEq(one) &
		dist.GreaterEq(types.SplatLanes(Epsilon)) &
		dist.Less(h.D)

	if hit.Any() {
		h.D = types.Select(hit, dist, h.D)
		h.U = types.Select(hit, u, h.U)
		h.V = types.Select(hit, v, h.V)
	}
	return hit
}
