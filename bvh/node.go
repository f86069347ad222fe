package bvh

import (
	"fmt"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

// Returned by the traversal functions when nothing was hit.
const NoPrimitive = -1

type nodeKind uint8

const (
	interiorNode nodeKind = iota
	leafNode
)

// A BVH node. Every node carries an AABB. Leaf nodes reference the primitive
// range [begin, end) of the store indirection table while interior nodes
// reference two child nodes in the same table. The payload is interpreted
// according to the node kind; accessing the payload of the other kind panics.
type Node struct {
	bounds AABB

	kind nodeKind

	// leaf: begin, end; interior: left, right
	payload [2]int32
}

// Setup node as a leaf covering primitive range [begin, end).
func (n *Node) CreateLeafNode(high, low types.Vec3, begin, end int) {
	n.bounds = AABB{Low: low, High: high}
	n.kind = leafNode
	n.payload = [2]int32{int32(begin), int32(end)}
}

// Setup node as an interior node whose children are nodes[left] and
// nodes[right]. The node bounds are set to the union of the child bounds.
func (n *Node) CreateGenericNode(nodes []Node, left, right int) {
	if left == right {
		panic(fmt.Sprintf("bvh: attempted to merge node %d with itself", left))
	}
	n.bounds = nodes[left].bounds.Union(nodes[right].bounds)
	n.kind = interiorNode
	n.payload = [2]int32{int32(left), int32(right)}
}

func (n *Node) IsLeaf() bool {
	return n.kind == leafNode
}

// Returns true for a leaf with an empty primitive range.
func (n *Node) IsEmpty() bool {
	return n.IsLeaf() && n.payload[0] == n.payload[1]
}

// Number of primitives in a leaf.
func (n *Node) Size() int {
	n.mustBe(leafNode)
	return int(n.payload[1] - n.payload[0])
}

// First store index covered by a leaf.
func (n *Node) Begin() int {
	n.mustBe(leafNode)
	return int(n.payload[0])
}

// One past the last store index covered by a leaf.
func (n *Node) End() int {
	n.mustBe(leafNode)
	return int(n.payload[1])
}

func (n *Node) Left() int {
	n.mustBe(interiorNode)
	return int(n.payload[0])
}

func (n *Node) Right() int {
	n.mustBe(interiorNode)
	return int(n.payload[1])
}

func (n *Node) Low() types.Vec3 {
	return n.bounds.Low
}

func (n *Node) High() types.Vec3 {
	return n.bounds.High
}

func (n *Node) Bounds() AABB {
	return n.bounds
}

func (n *Node) CombinedSurfaceArea(o *Node) float32 {
	return n.bounds.CombinedSurfaceArea(o.bounds)
}

func (n *Node) mustBe(kind nodeKind) {
	if n.kind != kind {
		if kind == leafNode {
			panic("bvh: leaf payload accessed on an interior node")
		}
		panic("bvh: interior payload accessed on a leaf node")
	}
}

// Distance at which the ray enters the node AABB or scene.MaxDist.
func (n *Node) IntersectionDistance(r *scene.Ray, invDir types.Vec3) float32 {
	return n.bounds.IntersectionDistance(r, invDir)
}

// Per lane distance at which the packet rays enter the node AABB.
func (n *Node) LaneIntersectionDistance(r *scene.PacketRay, invDir *[3]types.Lanes) types.Lanes {
	return n.bounds.LaneIntersectionDistance(r, invDir)
}

// Test every primitive in the leaf and keep the hit closest to the ray origin
// if it improves h. Returns the original index of the hit primitive or
// NoPrimitive if h was not improved.
func (n *Node) TestLeafNodeNearest(store *scene.PrimitiveStore, r *scene.Ray, h *scene.HitDescription) int {
	best := NoPrimitive
	for i := n.Begin(); i < n.End(); i++ {
		hit := scene.NewHitDescription(h.D)
		store.IndirectPrimitive(i).IsIntersecting(r, &hit)
		if hit.D < h.D {
			*h = hit
			best = store.Indirection(i)
		}
	}
	return best
}

// Returns true as soon as an occluding primitive in the leaf is hit closer
// than t. Lights and transparent primitives are skipped.
func (n *Node) TestLeafNodeNearer(store *scene.PrimitiveStore, r *scene.Ray, t float32) bool {
	for i := n.Begin(); i < n.End(); i++ {
		prim := store.IndirectPrimitive(i)
		if !prim.Occludes() {
			continue
		}
		hit := scene.NewHitDescription(t)
		prim.IsIntersecting(r, &hit)
		if hit.D < t {
			return true
		}
	}
	return false
}

// Packet version of TestLeafNodeNearest. Lanes of h that find a nearer hit
// are updated and the matching ids entries are set to the original primitive
// index.
func (n *Node) TestLeafNodeNearestPacket(store *scene.PrimitiveStore, r *scene.PacketRay, ids *[types.LaneWidth]int, h *scene.PacketHitDescription) types.Mask {
	var updated types.Mask
	for i := n.Begin(); i < n.End(); i++ {
		hit := store.IndirectPrimitive(i).IsIntersectingPacket(r, h)
		if !hit.Any() {
			continue
		}
		updated |= hit
		prim := store.Indirection(i)
		for lane := 0; lane < types.LaneWidth; lane++ {
			if hit.Has(lane) {
				ids[lane] = prim
			}
		}
	}
	return updated
}

// Packet version of TestLeafNodeNearer. Returns the lanes that hit an
// occluding primitive closer than their t value.
func (n *Node) TestLeafNodeNearerPacket(store *scene.PrimitiveStore, r *scene.PacketRay, t types.Lanes) types.Mask {
	var closer types.Mask
	for i := n.Begin(); i < n.End(); i++ {
		prim := store.IndirectPrimitive(i)
		if !prim.Occludes() {
			continue
		}
		h := scene.PacketHitDescription{D: t}
		closer |= prim.IsIntersectingPacket(r, &h)
		if closer.All() {
			break
		}
	}
	return closer
}
