package bvh

import (
	"testing"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected %s to panic", what)
		}
	}()
	fn()
}

func TestNodeVariants(t *testing.T) {
	nodes := make([]Node, 3)
	nodes[1].CreateLeafNode(types.XYZ(1, 1, 1), types.XYZ(0, 0, 0), 0, 4)
	nodes[2].CreateLeafNode(types.XYZ(3, 2, 1), types.XYZ(2, -1, 0), 4, 4)

	if !nodes[1].IsLeaf() || nodes[1].IsEmpty() {
		t.Fatal("expected node 1 to be a non-empty leaf")
	}
	if nodes[1].Size() != 4 || nodes[1].Begin() != 0 || nodes[1].End() != 4 {
		t.Fatalf("expected leaf range [0, 4); got [%d, %d)", nodes[1].Begin(), nodes[1].End())
	}
	if !nodes[2].IsEmpty() {
		t.Fatal("expected node 2 to be an empty leaf")
	}

	var interior Node
	interior.CreateGenericNode(nodes, 1, 2)
	if interior.IsLeaf() || interior.IsEmpty() {
		t.Fatal("expected an interior node")
	}
	if interior.Left() != 1 || interior.Right() != 2 {
		t.Fatalf("expected children (1, 2); got (%d, %d)", interior.Left(), interior.Right())
	}

	expLow, expHigh := types.XYZ(0, -1, 0), types.XYZ(3, 2, 1)
	if interior.Low() != expLow || interior.High() != expHigh {
		t.Fatalf("expected bounds %v - %v; got %v - %v", expLow, expHigh, interior.Low(), interior.High())
	}

	expectPanic(t, "merging a node with itself", func() {
		var n Node
		n.CreateGenericNode(nodes, 1, 1)
	})
	expectPanic(t, "accessing the children of a leaf", func() {
		nodes[1].Left()
	})
	expectPanic(t, "accessing the range of an interior node", func() {
		interior.Begin()
	})
}

func leafFixture() (*scene.PrimitiveStore, Node) {
	store := scene.NewPrimitiveStore(3)
	// Three parallel triangles at z = -5, -3 and -4; the middle one is a light
	store.Add(scene.NewTriangle(types.XYZ(-1, -1, -5), types.XYZ(1, -1, -5), types.XYZ(0, 1, -5)))
	light := scene.NewTriangle(types.XYZ(-1, -1, -3), types.XYZ(1, -1, -3), types.XYZ(0, 1, -3))
	light.Light = true
	store.Add(light)
	store.Add(scene.NewTriangle(types.XYZ(-1, -1, -4), types.XYZ(1, -1, -4), types.XYZ(0, 1, -4)))

	var leaf Node
	leaf.CreateLeafNode(types.XYZ(1, 1, -3), types.XYZ(-1, -1, -5), 0, 3)
	return store, leaf
}

func TestTestLeafNodeNearest(t *testing.T) {
	store, leaf := leafFixture()
	r := scene.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, -1))

	h := scene.NewHitDescription(scene.MaxDist)
	if got := leaf.TestLeafNodeNearest(store, &r, &h); got != 1 {
		t.Fatalf("expected nearest primitive 1; got %d", got)
	}
	if h.D != 3 {
		t.Fatalf("expected hit distance 3; got %f", h.D)
	}

	// Nothing improves on a hit at distance 2
	h = scene.NewHitDescription(2)
	if got := leaf.TestLeafNodeNearest(store, &r, &h); got != NoPrimitive {
		t.Fatalf("expected no improvement; got primitive %d", got)
	}
	if h.D != 2 {
		t.Fatalf("expected hit distance to remain 2; got %f", h.D)
	}
}

func TestTestLeafNodeNearer(t *testing.T) {
	store, leaf := leafFixture()
	r := scene.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, -1))

	// The light at distance 3 does not occlude
	if leaf.TestLeafNodeNearer(store, &r, 3.5) {
		t.Fatal("expected lights not to occlude")
	}
	if !leaf.TestLeafNodeNearer(store, &r, 4.5) {
		t.Fatal("expected the triangle at distance 4 to occlude")
	}
}

func TestTestLeafNodePacket(t *testing.T) {
	store, leaf := leafFixture()
	dir := types.XYZ(0, 0, -1)
	packet := scene.NewPacketRay(
		scene.NewRay(types.XYZ(0, 0, 0), dir),
		scene.NewRay(types.XYZ(5, 0, 0), dir),
		scene.NewRay(types.XYZ(0, 0, -3.5), dir),
		scene.NewRay(types.XYZ(0, 0, -10), dir),
	)

	ids := [types.LaneWidth]int{NoPrimitive, NoPrimitive, NoPrimitive, NoPrimitive}
	h := scene.NewPacketHitDescription(scene.MaxDist)
	leaf.TestLeafNodeNearestPacket(store, &packet, &ids, &h)

	expIDs := [types.LaneWidth]int{1, NoPrimitive, 2, NoPrimitive}
	if ids != expIDs {
		t.Fatalf("expected ids %v; got %v", expIDs, ids)
	}
	if h.D[0] != 3 || h.D[2] != 0.5 || h.D[1] != scene.MaxDist {
		t.Fatalf("unexpected hit distances %v", h.D)
	}

	closer := leaf.TestLeafNodeNearerPacket(store, &packet, types.SplatLanes(4.5))
	if exp := types.LaneMask(0) | types.LaneMask(2); closer != exp {
		t.Fatalf("expected closer mask %04b; got %04b", exp, closer)
	}
}
