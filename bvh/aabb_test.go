package bvh

import (
	"testing"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

func TestIntersectionDistance(t *testing.T) {
	box := AABB{Low: types.XYZ(1, 1, 1), High: types.XYZ(2, 2, 2)}

	specs := []struct {
		origin types.Vec3
		dir    types.Vec3
		exp    float32
	}{
		{types.XYZ(0, 0, 0), types.XYZ(1, 1, 1), 1},
		{types.XYZ(1.01, 0, 0), types.XYZ(1, 1, 1), scene.MaxDist},
		// Origin inside the box
		{types.XYZ(1.5, 1.5, 1.5), types.XYZ(0, 0, 1), 0},
		// Axis aligned rays
		{types.XYZ(1.5, 1.5, -3), types.XYZ(0, 0, 1), 4},
		{types.XYZ(1.5, 1.5, 5), types.XYZ(0, 0, -2), 1.5},
		{types.XYZ(3, 1.5, 1.5), types.XYZ(0, 0, 1), scene.MaxDist},
		// Pointing away from the box
		{types.XYZ(0, 0, 0), types.XYZ(-1, -1, -1), scene.MaxDist},
	}

	for specIndex, spec := range specs {
		r := scene.NewRay(spec.origin, spec.dir)
		got := box.IntersectionDistance(&r, r.InverseDirection())
		if got != spec.exp {
			t.Fatalf("[spec %d] expected intersection distance %f; got %f", specIndex, spec.exp, got)
		}
	}
}

func TestLaneIntersectionDistanceMatchesScalar(t *testing.T) {
	box := AABB{Low: types.XYZ(1, 1, 1), High: types.XYZ(2, 2, 2)}
	dir := types.XYZ(1, 1, 1)
	rays := [types.LaneWidth]scene.Ray{
		scene.NewRay(types.XYZ(0, 0, 0), dir),
		scene.NewRay(types.XYZ(0.5, 0, 0), dir),
		scene.NewRay(types.XYZ(1.01, 0, 0), dir),
		scene.NewRay(types.XYZ(1.5, 0, 0), dir),
	}

	packet := scene.NewPacketRay(rays[0], rays[1], rays[2], rays[3])
	invDir := packet.InverseDirection()
	got := box.LaneIntersectionDistance(&packet, &invDir)

	expDist := [types.LaneWidth]float32{1, 1, scene.MaxDist, scene.MaxDist}
	for lane, r := range rays {
		exp := box.IntersectionDistance(&r, r.InverseDirection())
		if got[lane] != exp {
			t.Fatalf("[lane %d] expected lane distance to match scalar distance %f; got %f", lane, exp, got[lane])
		}
		if exp != expDist[lane] {
			t.Fatalf("[lane %d] expected distance %f; got %f", lane, expDist[lane], exp)
		}
	}
}

func TestLaneIntersectionDistanceParallelRays(t *testing.T) {
	box := AABB{Low: types.XYZ(-1, -1, -1), High: types.XYZ(1, 1, 1)}
	rays := [types.LaneWidth]scene.Ray{
		scene.NewRay(types.XYZ(0, 0, -5), types.XYZ(0, 0, 1)),
		scene.NewRay(types.XYZ(2, 0, -5), types.XYZ(0, 0, 1)),
		// Origin on the slab plane
		scene.NewRay(types.XYZ(1, 0, -5), types.XYZ(0, 0, 1)),
		scene.NewRay(types.XYZ(0, -1, 5), types.XYZ(0, 0, -1)),
	}

	packet := scene.NewPacketRay(rays[0], rays[1], rays[2], rays[3])
	invDir := packet.InverseDirection()
	got := box.LaneIntersectionDistance(&packet, &invDir)
	for lane, r := range rays {
		exp := box.IntersectionDistance(&r, r.InverseDirection())
		if got[lane] != exp {
			t.Fatalf("[lane %d] expected lane distance to match scalar distance %f; got %f", lane, exp, got[lane])
		}
	}

	if got[0] != 4 || got[1] != scene.MaxDist {
		t.Fatalf("expected distances (4, MaxDist); got (%f, %f)", got[0], got[1])
	}
}

func TestCombinedSurfaceArea(t *testing.T) {
	a := AABB{Low: types.XYZ(0, 0, 0), High: types.XYZ(1, 1, 1)}
	b := AABB{Low: types.XYZ(2, 0, 0), High: types.XYZ(3, 1, 1)}

	// union extents: 3 x 1 x 1
	var exp float32 = 3*1 + 3*1 + 1*1
	if got := a.CombinedSurfaceArea(b); got != exp {
		t.Fatalf("expected combined surface area %f; got %f", exp, got)
	}
	if got := a.SurfaceArea(); got != 3 {
		t.Fatalf("expected surface area 3; got %f", got)
	}
}

func TestAABBContains(t *testing.T) {
	outer := AABB{Low: types.XYZ(0, 0, 0), High: types.XYZ(2, 2, 2)}
	inner := AABB{Low: types.XYZ(0.5, 0.5, 0.5), High: types.XYZ(1, 1, 2)}
	if !outer.Contains(inner, 0) {
		t.Fatal("expected inner box to be contained")
	}
	if inner.Contains(outer, 0) {
		t.Fatal("expected outer box not to be contained in inner box")
	}
	if !outer.Union(inner).Contains(outer, 0) {
		t.Fatal("expected union to contain both boxes")
	}
}
