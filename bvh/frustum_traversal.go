package bvh

import (
	"fmt"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

// Per batch traversal state.
type batchTraversal struct {
	tree    *Tree
	rays    []scene.PacketRay
	invDirs [MaxPacketSize][3]types.Lanes
	frustum Frustum

	// Per packet pruning threshold; nearest-hit uses the current hit
	// distance, occlusion the remaining threshold.
	limits [MaxPacketSize]types.Lanes

	// Packets worth testing at the current leaf.
	active []int
	buf    [MaxPacketSize]int
}

func (t *Tree) newBatchTraversal(rays []scene.PacketRay) *batchTraversal {
	if len(rays) > MaxPacketSize {
		panic(fmt.Sprintf("bvh: batch of %d packets exceeds the maximum of %d", len(rays), MaxPacketSize))
	}
	bt := &batchTraversal{
		tree:    t,
		rays:    rays,
		frustum: NewFrustum(rays),
	}
	for i := range rays {
		bt.invDirs[i] = rays[i].InverseDirection()
	}
	return bt
}

// Find the nearest primitive for every lane of up to MaxPacketSize packets.
// The packets are traced together inside a frustum bounding the batch; when
// the batch is not coherent enough for frustum culling each packet is traced
// on its own. ids and hits must have at least len(rays) entries.
func (t *Tree) FrustumFindNearestObject(rays []scene.PacketRay, ids [][types.LaneWidth]int, hits []scene.PacketHitDescription) {
	stack := t.packetStacks.Get().(*PacketStack)
	defer t.packetStacks.Put(stack)
	t.FrustumFindNearestObjectWithStack(stack, rays, ids, hits)
}

// FrustumFindNearestObject using a caller supplied stack.
func (t *Tree) FrustumFindNearestObjectWithStack(stack *PacketStack, rays []scene.PacketRay, ids [][types.LaneWidth]int, hits []scene.PacketHitDescription) {
	for i := range rays {
		hits[i] = scene.NewPacketHitDescription(scene.MaxDist)
		for lane := range ids[i] {
			ids[i][lane] = NoPrimitive
		}
	}
	if len(rays) == 0 {
		return
	}

	bt := t.newBatchTraversal(rays)
	if t.opts.DisableFrustum || !bt.frustum.Coherent() {
		for i := range rays {
			t.FindNearestPacketWithStack(stack, &rays[i], &ids[i], &hits[i])
		}
		return
	}
	if bt.frustum.CullBox(t.nodes[t.root].bounds) {
		return
	}

	for i := range rays {
		bt.limits[i] = hits[i].D
	}

	top := len(stack.batches)
	var entry batchStackElement
	entry.index = t.root
	for {
		if bt.findLeafNode(stack, &entry) {
			leaf := &t.nodes[entry.index]
			bt.activate(&entry, leaf)
			if len(bt.active) > 0 {
				bt.testLeafNearest(leaf, ids, hits)
			}
		}

		for {
			if len(stack.batches) <= top {
				return
			}
			stack.popBatch(&entry)
			if bt.worthVisiting(&entry) {
				break
			}
		}
	}
}

// Occlusion test for up to MaxPacketSize packets traced together. closer[i]
// receives the lanes of packet i that hit an occluding primitive closer than
// their dist[i] value. dist and closer must have at least len(rays) entries.
func (t *Tree) FrustumFoundNearerObject(rays []scene.PacketRay, dist []types.Lanes, closer []types.Mask) {
	stack := t.packetStacks.Get().(*PacketStack)
	defer t.packetStacks.Put(stack)
	t.FrustumFoundNearerObjectWithStack(stack, rays, dist, closer)
}

// FrustumFoundNearerObject using a caller supplied stack.
func (t *Tree) FrustumFoundNearerObjectWithStack(stack *PacketStack, rays []scene.PacketRay, dist []types.Lanes, closer []types.Mask) {
	for i := range rays {
		closer[i] = types.MaskNone
	}
	if len(rays) == 0 {
		return
	}

	bt := t.newBatchTraversal(rays)
	if t.opts.DisableFrustum || !bt.frustum.Coherent() {
		for i := range rays {
			closer[i] = t.FoundNearerPacketWithStack(stack, &rays[i], dist[i])
		}
		return
	}
	if bt.frustum.CullBox(t.nodes[t.root].bounds) {
		return
	}

	copy(bt.limits[:], dist)

	top := len(stack.batches)
	defer func() { stack.batches = stack.batches[:top] }()

	var entry batchStackElement
	entry.index = t.root
	for {
		if bt.findLeafNode(stack, &entry) {
			leaf := &t.nodes[entry.index]
			bt.activate(&entry, leaf)
			if len(bt.active) > 0 && bt.testLeafNearer(leaf, dist, closer) {
				return
			}
		}

		for {
			if len(stack.batches) <= top {
				return
			}
			stack.popBatch(&entry)
			if bt.worthVisiting(&entry) {
				break
			}
		}
	}
}

// Returns true if any lane of any packet enters the entry node before its
// pruning threshold.
func (bt *batchTraversal) worthVisiting(entry *batchStackElement) bool {
	// Quick reject against the largest threshold of the batch
	var nearest, needed float32 = scene.MaxDist, -scene.MaxDist
	for i := range bt.rays {
		if d := entry.tMin[i].HMin(); d < nearest {
			nearest = d
		}
		if d := bt.limits[i].HMax(); d > needed {
			needed = d
		}
	}
	if nearest >= needed+pruneTolerance {
		return false
	}

	for i := range bt.rays {
		if entry.tMin[i].Less(bt.limits[i].Add(laneTolerance)).Any() {
			return true
		}
	}
	return false
}

// Collect the packets that enter the leaf before their pruning threshold.
func (bt *batchTraversal) activate(entry *batchStackElement, leaf *Node) {
	bt.active = bt.buf[:0]
	if leaf.IsEmpty() {
		return
	}
	for i := range bt.rays {
		if entry.tMin[i].Less(bt.limits[i].Add(laneTolerance)).Any() {
			bt.active = append(bt.active, i)
		}
	}
}

// Descend from entry towards the nearest leaf. Children culled by the batch
// frustum are skipped without running the per packet slab tests. When both
// children survive, the child entered first by most lanes is visited first.
func (bt *batchTraversal) findLeafNode(stack *PacketStack, entry *batchStackElement) bool {
	nodes := bt.tree.nodes
	count := len(bt.rays)

	var leftDist, rightDist [MaxPacketSize]types.Lanes
	cur := entry.index
	for {
		node := &nodes[cur]
		if node.IsLeaf() {
			entry.index = cur
			return true
		}

		left, right := node.Left(), node.Right()
		visitLeft := bt.childDistances(&nodes[left], &leftDist)
		visitRight := bt.childDistances(&nodes[right], &rightDist)

		switch {
		case visitLeft && visitRight:
			leftFirst := 0
			for i := 0; i < count; i++ {
				leftFirst += leftDist[i].LessEq(rightDist[i]).Count()
			}
			if leftFirst*2 >= count*types.LaneWidth {
				stack.pushBatch(&batchStackElement{index: right, tMin: rightDist})
				cur, entry.tMin = left, leftDist
			} else {
				stack.pushBatch(&batchStackElement{index: left, tMin: leftDist})
				cur, entry.tMin = right, rightDist
			}
		case visitLeft:
			cur, entry.tMin = left, leftDist
		case visitRight:
			cur, entry.tMin = right, rightDist
		default:
			return false
		}
	}
}

// Compute the per packet entry distances for a child node. Returns false if
// no lane of the batch enters the child before its pruning threshold.
func (bt *batchTraversal) childDistances(node *Node, dist *[MaxPacketSize]types.Lanes) bool {
	if bt.frustum.CullBox(node.bounds) {
		for i := range bt.rays {
			dist[i] = laneMaxDist
		}
		return false
	}

	visit := false
	for i := range bt.rays {
		dist[i] = node.LaneIntersectionDistance(&bt.rays[i], &bt.invDirs[i])
		if dist[i].Less(bt.limits[i].Add(laneTolerance)).Any() {
			visit = true
		}
	}
	return visit
}

// Nearest hit test for the active packets of a leaf.
func (bt *batchTraversal) testLeafNearest(leaf *Node, ids [][types.LaneWidth]int, hits []scene.PacketHitDescription) {
	store := bt.tree.store
	lf, canCull := bt.frustum.AdaptToLeaf(bt.rays, bt.active, leaf.bounds)
	for i := leaf.Begin(); i < leaf.End(); i++ {
		prim := store.IndirectPrimitive(i)
		if canCull && lf.CullTriangle(prim.A, prim.B, prim.C) {
			continue
		}

		primIndex := store.Indirection(i)
		for _, pi := range bt.active {
			hit := prim.IsIntersectingPacket(&bt.rays[pi], &hits[pi])
			if !hit.Any() {
				continue
			}
			for lane := 0; lane < types.LaneWidth; lane++ {
				if hit.Has(lane) {
					ids[pi][lane] = primIndex
				}
			}
		}
	}

	for _, pi := range bt.active {
		bt.limits[pi] = hits[pi].D
	}
}

// Occlusion test for the active packets of a leaf. Packets whose lanes are
// all occluded are dropped from the active list. Returns true once every
// packet of the batch is fully occluded.
func (bt *batchTraversal) testLeafNearer(leaf *Node, dist []types.Lanes, closer []types.Mask) bool {
	store := bt.tree.store
	lf, canCull := bt.frustum.AdaptToLeaf(bt.rays, bt.active, leaf.bounds)
	for i := leaf.Begin(); i < leaf.End() && len(bt.active) > 0; i++ {
		prim := store.IndirectPrimitive(i)
		if !prim.Occludes() || (canCull && lf.CullTriangle(prim.A, prim.B, prim.C)) {
			continue
		}

		remaining := bt.active[:0]
		for _, pi := range bt.active {
			h := scene.PacketHitDescription{D: bt.limits[pi]}
			closer[pi] |= prim.IsIntersectingPacket(&bt.rays[pi], &h)
			bt.limits[pi] = types.Select(closer[pi], laneResolved, dist[pi])
			if !closer[pi].All() {
				remaining = append(remaining, pi)
			}
		}
		bt.active = remaining
	}

	for i := range bt.rays {
		if !closer[i].All() {
			return false
		}
	}
	return true
}
