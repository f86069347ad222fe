package bvh

import (
	"errors"
	"fmt"

	"github.com/achilleasa/lbvh/scene"
)

// Maximum absolute error tolerated when checking node bounds.
const boundsTolerance float32 = 1e-4

var (
	ErrInvalidChild   = errors.New("bvh: invalid child reference")
	ErrUnsoundBounds  = errors.New("bvh: node bounds do not enclose their contents")
	ErrBadPartition   = errors.New("bvh: leaf ranges do not partition the primitives")
	ErrNodeReachTwice = errors.New("bvh: node reachable through more than one parent")
)

// Validate checks the structural invariants of the tree:
//   - interior nodes reference two distinct valid children other than the
//     reserved node 0 and every node has at most one parent;
//   - node bounds enclose the bounds of their children and leaf bounds
//     enclose their primitives;
//   - the leaf ranges cover every store index exactly once.
func (t *Tree) Validate() error {
	covered := make([]int, t.store.Size())
	visited := make([]bool, len(t.nodes))

	pending := []int{t.root}
	for len(pending) > 0 {
		idx := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if idx <= 0 || idx >= len(t.nodes) {
			return fmt.Errorf("%w: node index %d", ErrInvalidChild, idx)
		}
		if visited[idx] {
			return fmt.Errorf("%w: node %d", ErrNodeReachTwice, idx)
		}
		visited[idx] = true

		node := &t.nodes[idx]
		if node.IsLeaf() {
			if node.Begin() < 0 || node.End() > len(covered) || node.Begin() > node.End() {
				return fmt.Errorf("%w: leaf %d has range [%d, %d)", ErrBadPartition, idx, node.Begin(), node.End())
			}
			for i := node.Begin(); i < node.End(); i++ {
				covered[i]++
				prim := t.store.IndirectPrimitive(i)
				primBounds := AABB{Low: prim.LowestPoint(), High: prim.HighestPoint()}
				if !node.bounds.Contains(primBounds, boundsTolerance) {
					return fmt.Errorf("%w: leaf %d, store index %d", ErrUnsoundBounds, idx, i)
				}
			}
			continue
		}

		left, right := node.Left(), node.Right()
		if left == right {
			return fmt.Errorf("%w: node %d references child %d twice", ErrInvalidChild, idx, left)
		}
		for _, child := range [2]int{left, right} {
			if child <= 0 || child >= len(t.nodes) {
				return fmt.Errorf("%w: node %d references child %d", ErrInvalidChild, idx, child)
			}
			if !node.bounds.Contains(t.nodes[child].bounds, boundsTolerance) {
				return fmt.Errorf("%w: node %d, child %d", ErrUnsoundBounds, idx, child)
			}
		}
		pending = append(pending, left, right)
	}

	for i, count := range covered {
		if count != 1 {
			return fmt.Errorf("%w: store index %d covered by %d leaves", ErrBadPartition, i, count)
		}
	}
	return nil
}

// Find the nearest primitive by testing every primitive of the store.
func BruteForceNearest(store *scene.PrimitiveStore, r *scene.Ray) (int, scene.HitDescription) {
	best := NoPrimitive
	h := scene.NewHitDescription(scene.MaxDist)
	for i := 0; i < store.Size(); i++ {
		hit := scene.NewHitDescription(h.D)
		store.Primitive(i).IsIntersecting(r, &hit)
		if hit.D < h.D {
			h = hit
			best = i
		}
	}
	return best, h
}

// Returns true if any occluding primitive of the store is hit closer than
// dist.
func BruteForceNearer(store *scene.PrimitiveStore, r *scene.Ray, dist float32) bool {
	for i := 0; i < store.Size(); i++ {
		prim := store.Primitive(i)
		if !prim.Occludes() {
			continue
		}
		hit := scene.NewHitDescription(dist)
		prim.IsIntersecting(r, &hit)
		if hit.D < dist {
			return true
		}
	}
	return false
}
