package bvh

import (
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

// An axis aligned bounding box.
type AABB struct {
	Low, High types.Vec3
}

// An inverted box that acts as the identity for Union.
func EmptyAABB() AABB {
	return AABB{
		Low:  types.Splat3(math32.MaxFloat32),
		High: types.Splat3(-math32.MaxFloat32),
	}
}

// The box enclosing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Low:  types.MinVec3(b.Low, o.Low),
		High: types.MaxVec3(b.High, o.High),
	}
}

// Grow the box to include a triangle.
func (b AABB) Extend(t *scene.Triangle) AABB {
	return AABB{
		Low:  types.MinVec3(b.Low, t.LowestPoint()),
		High: types.MaxVec3(b.High, t.HighestPoint()),
	}
}

// Half the surface area of the box: dx*dy + dx*dz + dy*dz.
func (b AABB) SurfaceArea() float32 {
	d := b.High.Sub(b.Low)
	return d[0]*d[1] + d[0]*d[2] + d[1]*d[2]
}

// Half the surface area of the union of b and o. Used as the merge cost when
// clustering nodes.
func (b AABB) CombinedSurfaceArea(o AABB) float32 {
	return b.Union(o).SurfaceArea()
}

// Returns true if o lies inside b, allowing for an absolute error of eps.
func (b AABB) Contains(o AABB, eps float32) bool {
	for axis := 0; axis < 3; axis++ {
		if o.Low[axis] < b.Low[axis]-eps || o.High[axis] > b.High[axis]+eps {
			return false
		}
	}
	return true
}

// Slab test. Returns the distance at which r enters the box (0 if the origin
// is inside) or scene.MaxDist if the box is missed.
//
// Rays parallel to a slab produce +/-Inf plane distances. A NaN plane distance
// (origin exactly on a parallel slab plane) leaves the running interval
// unchanged.
func (b AABB) IntersectionDistance(r *scene.Ray, invDir types.Vec3) float32 {
	enter := math32.Inf(-1)
	exit := math32.Inf(1)
	for axis := 0; axis < 3; axis++ {
		t0 := (b.Low[axis] - r.Origin[axis]) * invDir[axis]
		t1 := (b.High[axis] - r.Origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > enter {
			enter = t0
		}
		if t1 < exit {
			exit = t1
		}
	}

	if enter < 0 {
		enter = 0
	}
	if enter <= exit {
		return enter
	}
	return scene.MaxDist
}

// Lane-wise slab test. Every lane gets exactly the value IntersectionDistance
// would return for the ray in that lane.
func (b AABB) LaneIntersectionDistance(r *scene.PacketRay, invDir *[3]types.Lanes) types.Lanes {
	enter := types.SplatLanes(math32.Inf(-1))
	exit := types.SplatLanes(math32.Inf(1))
	for axis := 0; axis < 3; axis++ {
		t0 := types.SplatLanes(b.Low[axis]).Sub(r.Origin[axis]).Mul(invDir[axis])
		t1 := types.SplatLanes(b.High[axis]).Sub(r.Origin[axis]).Mul(invDir[axis])
		swap := t0.Greater(t1)
		near := types.Select(swap, t1, t0)
		far := types.Select(swap, t0, t1)
		enter = types.Select(near.Greater(enter), near, enter)
		exit = types.Select(far.Less(exit), far, exit)
	}

	zero := types.SplatLanes(0)
	enter = types.Select(enter.Less(zero), zero, enter)
	return types.Select(enter.LessEq(exit), enter, types.SplatLanes(scene.MaxDist))
}
