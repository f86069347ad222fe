package bvh

import "github.com/achilleasa/lbvh/types"

// The maximum number of 4-lane packets traced together by the frustum
// traversal functions.
const MaxPacketSize = 16

// A pending subtree and the distance at which the ray enters it.
type StackElement struct {
	Index int
	TMin  float32
}

// A traversal stack for single rays. Stacks are scratch space owned by one
// traversal at a time; concurrent traversals must use separate stacks.
type Stack struct {
	elems []StackElement
}

// Create a stack with enough room for a tree of the given depth.
func NewStack(depth int) *Stack {
	return &Stack{elems: make([]StackElement, 0, depth+1)}
}

// Number of pending entries.
func (s *Stack) Len() int {
	return len(s.elems)
}

// Drop all entries above top.
func (s *Stack) Truncate(top int) {
	s.elems = s.elems[:top]
}

func (s *Stack) push(e StackElement) {
	s.elems = append(s.elems, e)
}

func (s *Stack) pop() StackElement {
	last := len(s.elems) - 1
	e := s.elems[last]
	s.elems = s.elems[:last]
	return e
}

// Marks the point from which a traversal continues. The traversal starts at
// Entry and returns once the stack unwinds back to Top; entries below Top
// belong to the caller and are not touched.
type Checkpoint struct {
	Entry StackElement
	Top   int
}

type packetStackElement struct {
	index int
	tMin  types.Lanes
}

type batchStackElement struct {
	index int
	tMin  [MaxPacketSize]types.Lanes
}

// A traversal stack for packet and frustum traversals.
type PacketStack struct {
	packets []packetStackElement
	batches []batchStackElement
}

// Create a packet stack with enough room for a tree of the given depth.
func NewPacketStack(depth int) *PacketStack {
	return &PacketStack{
		packets: make([]packetStackElement, 0, depth+1),
		batches: make([]batchStackElement, 0, depth+1),
	}
}

func (s *PacketStack) pushPacket(e packetStackElement) {
	s.packets = append(s.packets, e)
}

func (s *PacketStack) popPacket() packetStackElement {
	last := len(s.packets) - 1
	e := s.packets[last]
	s.packets = s.packets[:last]
	return e
}

func (s *PacketStack) pushBatch(e *batchStackElement) {
	s.batches = append(s.batches, *e)
}

// Pop the top batch entry into e.
func (s *PacketStack) popBatch(e *batchStackElement) {
	last := len(s.batches) - 1
	*e = s.batches[last]
	s.batches = s.batches[:last]
}
