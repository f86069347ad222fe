package bvh

import (
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

var (
	laneTolerance = types.SplatLanes(pruneTolerance)
	laneMaxDist   = types.SplatLanes(scene.MaxDist)

	// Lanes that already found an occluder use this threshold so that no
	// node or primitive distance passes the range checks.
	laneResolved = types.SplatLanes(-scene.MaxDist)
)

// Find the nearest primitive for each lane of a 4-ray packet. The original
// primitive index of each lane's hit is written to ids (NoPrimitive for
// lanes that miss) and the hits to h.
func (t *Tree) FindNearestPacket(r *scene.PacketRay, ids *[types.LaneWidth]int, h *scene.PacketHitDescription) {
	stack := t.packetStacks.Get().(*PacketStack)
	defer t.packetStacks.Put(stack)
	t.FindNearestPacketWithStack(stack, r, ids, h)
}

// FindNearestPacket using a caller supplied stack.
func (t *Tree) FindNearestPacketWithStack(stack *PacketStack, r *scene.PacketRay, ids *[types.LaneWidth]int, h *scene.PacketHitDescription) {
	*h = scene.NewPacketHitDescription(scene.MaxDist)
	for lane := range ids {
		ids[lane] = NoPrimitive
	}

	invDir := r.InverseDirection()
	if !t.nodes[t.root].LaneIntersectionDistance(r, &invDir).Less(laneMaxDist).Any() {
		return
	}

	top := len(stack.packets)
	entry := packetStackElement{index: t.root}
	for {
		if t.findLeafNodePacket(stack, r, &invDir, &entry, h.D) {
			t.nodes[entry.index].TestLeafNodeNearestPacket(t.store, r, ids, h)
		}

		for {
			if len(stack.packets) <= top {
				return
			}
			entry = stack.popPacket()
			if entry.tMin.Less(h.D.Add(laneTolerance)).Any() {
				break
			}
		}
	}
}

// Returns the lanes of the packet that hit an occluding primitive closer than
// the lane's t value.
func (t *Tree) FoundNearerPacket(r *scene.PacketRay, dist types.Lanes) types.Mask {
	stack := t.packetStacks.Get().(*PacketStack)
	defer t.packetStacks.Put(stack)
	return t.FoundNearerPacketWithStack(stack, r, dist)
}

// FoundNearerPacket using a caller supplied stack.
func (t *Tree) FoundNearerPacketWithStack(stack *PacketStack, r *scene.PacketRay, dist types.Lanes) types.Mask {
	invDir := r.InverseDirection()
	top := len(stack.packets)
	defer func() { stack.packets = stack.packets[:top] }()

	var closer types.Mask
	tMax := dist
	entry := packetStackElement{index: t.root}
	for {
		if t.findLeafNodePacket(stack, r, &invDir, &entry, tMax) {
			closer |= t.nodes[entry.index].TestLeafNodeNearerPacket(t.store, r, tMax)
			if closer.All() {
				return closer
			}
			tMax = types.Select(closer, laneResolved, dist)
		}

		for {
			if len(stack.packets) <= top {
				return closer
			}
			entry = stack.popPacket()
			if entry.tMin.Less(tMax.Add(laneTolerance)).Any() {
				break
			}
		}
	}
}

// Packet version of findLeafNode. A child is visited if any lane enters it
// before the lane's tMax; when both children qualify the child entered first
// by the majority of lanes is visited first.
func (t *Tree) findLeafNodePacket(stack *PacketStack, r *scene.PacketRay, invDir *[3]types.Lanes, entry *packetStackElement, tMax types.Lanes) bool {
	limit := tMax.Add(laneTolerance)
	cur := entry.index
	for {
		node := &t.nodes[cur]
		if node.IsLeaf() {
			entry.index = cur
			return true
		}

		left, right := node.Left(), node.Right()
		leftDist := t.nodes[left].LaneIntersectionDistance(r, invDir)
		rightDist := t.nodes[right].LaneIntersectionDistance(r, invDir)
		visitLeft := leftDist.Less(limit).Any()
		visitRight := rightDist.Less(limit).Any()

		switch {
		case visitLeft && visitRight:
			if leftDist.LessEq(rightDist).Count()*2 >= types.LaneWidth {
				stack.pushPacket(packetStackElement{index: right, tMin: rightDist})
				cur, entry.tMin = left, leftDist
			} else {
				stack.pushPacket(packetStackElement{index: left, tMin: leftDist})
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
