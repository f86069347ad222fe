package bvh

import (
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

// Relative slack added to the leaf culling rectangles.
const cullSlack float32 = 1e-5

// Frustum bounds a batch of packet rays by the interval of their origins and
// the interval of their directions along each axis. It provides conservative
// tests: a box or triangle is only culled if no ray of the batch can hit it.
type Frustum struct {
	originLow, originHigh types.Vec3
	dirLow, dirHigh       types.Vec3

	// Interval of the inverse direction along axes whose direction interval
	// does not contain 0.
	invLow, invHigh types.Vec3

	// Axes whose direction interval contains 0. These axes never cull.
	straddles [3]bool

	// Axis used for triangle culling or -1 if every axis straddles.
	dominantAxis int
}

// Build the frustum enclosing all lanes of rays.
func NewFrustum(rays []scene.PacketRay) Frustum {
	f := Frustum{
		originLow:  types.Splat3(math32.MaxFloat32),
		originHigh: types.Splat3(-math32.MaxFloat32),
		dirLow:     types.Splat3(math32.MaxFloat32),
		dirHigh:    types.Splat3(-math32.MaxFloat32),
	}
	for i := range rays {
		for axis := 0; axis < 3; axis++ {
			f.originLow[axis] = math32.Min(f.originLow[axis], rays[i].Origin[axis].HMin())
			f.originHigh[axis] = math32.Max(f.originHigh[axis], rays[i].Origin[axis].HMax())
			f.dirLow[axis] = math32.Min(f.dirLow[axis], rays[i].Dir[axis].HMin())
			f.dirHigh[axis] = math32.Max(f.dirHigh[axis], rays[i].Dir[axis].HMax())
		}
	}

	f.dominantAxis = -1
	var dominant float32
	for axis := 0; axis < 3; axis++ {
		if f.dirLow[axis] <= 0 && f.dirHigh[axis] >= 0 {
			f.straddles[axis] = true
			continue
		}
		// Same sign: the inverse interval is [1/high, 1/low]
		f.invLow[axis] = 1.0 / f.dirHigh[axis]
		f.invHigh[axis] = 1.0 / f.dirLow[axis]
		if math32.IsInf(f.invLow[axis], 0) || math32.IsInf(f.invHigh[axis], 0) {
			f.straddles[axis] = true
			continue
		}

		minAbs := math32.Min(math32.Abs(f.dirLow[axis]), math32.Abs(f.dirHigh[axis]))
		if minAbs > dominant {
			dominant, f.dominantAxis = minAbs, axis
		}
	}
	return f
}

// Returns true if the frustum can cull: at least one axis has a direction
// interval that excludes 0.
func (f *Frustum) Coherent() bool {
	return f.dominantAxis >= 0
}

// Returns true if no ray of the batch can hit b.
func (f *Frustum) CullBox(b AABB) bool {
	enter := math32.Inf(-1)
	exit := math32.Inf(1)
	for axis := 0; axis < 3; axis++ {
		if f.straddles[axis] {
			continue
		}
		lo0, hi0 := mulInterval(b.Low[axis]-f.originHigh[axis], b.Low[axis]-f.originLow[axis], f.invLow[axis], f.invHigh[axis])
		lo1, hi1 := mulInterval(b.High[axis]-f.originHigh[axis], b.High[axis]-f.originLow[axis], f.invLow[axis], f.invHigh[axis])

		// Every ray enters this slab no earlier than the smallest plane
		// distance and leaves it no later than the largest one.
		enter = math32.Max(enter, math32.Min(lo0, lo1))
		exit = math32.Min(exit, math32.Max(hi0, hi1))
	}
	return exit < 0 || enter > exit
}

// Product of intervals [a0, a1] and [b0, b1].
func mulInterval(a0, a1, b0, b1 float32) (float32, float32) {
	p0, p1, p2, p3 := a0*b0, a0*b1, a1*b0, a1*b1
	return math32.Min(math32.Min(p0, p1), math32.Min(p2, p3)),
		math32.Max(math32.Max(p0, p1), math32.Max(p2, p3))
}

// LeafFrustum culls triangles of a single leaf against the rays of a batch
// that are still active. Along the dominant axis the leaf slab is bounded by
// two planes; the rays cross each plane inside a rectangle and any point of
// the batch inside the slab lies between the linear interpolation of the two
// rectangles.
type LeafFrustum struct {
	axis, u, v int

	slabLow, invSlab float32

	// Rectangle bounds at the entry (index 0) and exit (index 1) planes.
	uLow, uHigh [2]float32
	vLow, vHigh [2]float32
}

// Fit the culling planes to the active packets of rays at a leaf with bounds
// b. Returns false if culling is not possible for this leaf.
func (f *Frustum) AdaptToLeaf(rays []scene.PacketRay, active []int, b AABB) (LeafFrustum, bool) {
	var lf LeafFrustum
	if f.dominantAxis < 0 || len(active) == 0 {
		return lf, false
	}

	lf.axis = f.dominantAxis
	lf.u = (lf.axis + 1) % 3
	lf.v = (lf.axis + 2) % 3

	planes := [2]float32{b.Low[lf.axis], b.High[lf.axis]}
	if planes[1]-planes[0] <= 0 {
		planes[0] -= 0.5
		planes[1] += 0.5
	}
	lf.slabLow = planes[0]
	lf.invSlab = 1.0 / (planes[1] - planes[0])

	for p := 0; p < 2; p++ {
		lf.uLow[p], lf.vLow[p] = math32.MaxFloat32, math32.MaxFloat32
		lf.uHigh[p], lf.vHigh[p] = -math32.MaxFloat32, -math32.MaxFloat32
	}

	// Slack grows with the magnitude of the coordinates involved
	var scale float32 = 1
	for axis := 0; axis < 3; axis++ {
		scale = math32.Max(scale, math32.Max(math32.Abs(b.Low[axis]), math32.Abs(b.High[axis])))
		scale = math32.Max(scale, math32.Max(math32.Abs(f.originLow[axis]), math32.Abs(f.originHigh[axis])))
	}
	for _, pi := range active {
		r := &rays[pi]
		for lane := 0; lane < types.LaneWidth; lane++ {
			d := r.Dir[lf.axis][lane]
			if d == 0 {
				return lf, false
			}
			for p, plane := range planes {
				dist := (plane - r.Origin[lf.axis][lane]) / d
				pu := r.Origin[lf.u][lane] + dist*r.Dir[lf.u][lane]
				pv := r.Origin[lf.v][lane] + dist*r.Dir[lf.v][lane]
				lf.uLow[p] = math32.Min(lf.uLow[p], pu)
				lf.uHigh[p] = math32.Max(lf.uHigh[p], pu)
				lf.vLow[p] = math32.Min(lf.vLow[p], pv)
				lf.vHigh[p] = math32.Max(lf.vHigh[p], pv)
				scale = math32.Max(scale, math32.Max(math32.Abs(pu), math32.Abs(pv)))
			}
		}
	}

	slack := cullSlack * scale
	for p := 0; p < 2; p++ {
		lf.uLow[p] -= slack
		lf.vLow[p] -= slack
		lf.uHigh[p] += slack
		lf.vHigh[p] += slack
	}
	return lf, true
}

// Returns true if the triangle with vertices a, b, c lies entirely outside
// one of the four side planes of the leaf frustum.
func (lf *LeafFrustum) CullTriangle(a, b, c types.Vec3) bool {
	var outside [4]int
	for _, p := range [3]types.Vec3{a, b, c} {
		s := (p[lf.axis] - lf.slabLow) * lf.invSlab
		if p[lf.u] < lerp(lf.uLow[0], lf.uLow[1], s) {
			outside[0]++
		}
		if p[lf.u] > lerp(lf.uHigh[0], lf.uHigh[1], s) {
			outside[1]++
		}
		if p[lf.v] < lerp(lf.vLow[0], lf.vLow[1], s) {
			outside[2]++
		}
		if p[lf.v] > lerp(lf.vHigh[0], lf.vHigh[1], s) {
			outside[3]++
		}
	}
	return outside[0] == 3 || outside[1] == 3 || outside[2] == 3 || outside[3] == 3
}

func lerp(a, b, s float32) float32 {
	return a + (b-a)*s
}
