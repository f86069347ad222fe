package scene

import (
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

const (
	// The distance reported for rays that do not hit anything.
	MaxDist float32 = math32.MaxFloat32

	// Hits closer than this are rejected to avoid self intersections.
	Epsilon float32 = 1e-3
)

// The side of a surface a ray hit.
type HitType int8

const (
	Miss  HitType = 0
	OutIn HitType = 1
	InOut HitType = -1
)

// A ray with a (not necessarily normalized) direction.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
}

// Create a ray from origin o heading towards d.
func NewRay(o, d types.Vec3) Ray {
	return Ray{Origin: o, Dir: d}
}

// Precompute the inverse direction used by the slab tests.
func (r *Ray) InverseDirection() types.Vec3 {
	return r.Dir.Inverse()
}

// Get the point at distance t along the ray.
func (r *Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Describes the nearest hit found along a ray. D is also used as input by
// the intersection routines: hits farther than D are ignored.
type HitDescription struct {
	// Distance along the ray.
	D float32

	// Barycentric coordinates of the hit point.
	U, V float32

	Type HitType
}

// Create a hit description that accepts hits up to d.
func NewHitDescription(d float32) HitDescription {
	return HitDescription{D: d}
}

// Four rays packed by component so that they can be processed lane-wise.
type PacketRay struct {
	Origin [3]types.Lanes
	Dir    [3]types.Lanes
}

// Pack four rays.
func NewPacketRay(r0, r1, r2, r3 Ray) PacketRay {
	var p PacketRay
	for lane, r := range [types.LaneWidth]Ray{r0, r1, r2, r3} {
		p.SetRay(lane, r)
	}
	return p
}

// Set the ray at a lane.
func (p *PacketRay) SetRay(lane int, r Ray) {
	for axis := 0; axis < 3; axis++ {
		p.Origin[axis][lane] = r.Origin[axis]
		p.Dir[axis][lane] = r.Dir[axis]
	}
}

// Extract the ray at a lane.
func (p *PacketRay) Ray(lane int) Ray {
	return Ray{
		Origin: types.XYZ(p.Origin[0][lane], p.Origin[1][lane], p.Origin[2][lane]),
		Dir:    types.XYZ(p.Dir[0][lane], p.Dir[1][lane], p.Dir[2][lane]),
	}
}

// Precompute the per-lane inverse direction.
func (p *PacketRay) InverseDirection() [3]types.Lanes {
	return [3]types.Lanes{p.Dir[0].Inverse(), p.Dir[1].Inverse(), p.Dir[2].Inverse()}
}

// Per-lane hit information for a PacketRay.
type PacketHitDescription struct {
	D    types.Lanes
	U, V types.Lanes
}

// Create a packet hit description that accepts hits up to d in every lane.
func NewPacketHitDescription(d float32) PacketHitDescription {
	return PacketHitDescription{D: types.SplatLanes(d)}
}

// Extract the hit recorded for a lane.
func (h *PacketHitDescription) Hit(lane int) HitDescription {
	out := HitDescription{D: h.D[lane], U: h.U[lane], V: h.V[lane]}
	if out.D < MaxDist {
		out.Type = OutIn
	}
	return out
}
