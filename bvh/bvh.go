package bvh

import (
	"runtime"
	"sync"

	"github.com/achilleasa/lbvh/log"
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
)

// Distance tolerance used when comparing node distances against the current
// best hit, absorbing rounding error in the slab tests.
const pruneTolerance = 100 * scene.Epsilon

// Tree is a bounding volume hierarchy over the triangles of a primitive
// store. Once built a tree is read-only and may be traversed concurrently
// as long as every traversal uses its own stack. The convenience methods that
// do not take a stack borrow one from an internal pool.
type Tree struct {
	logger log.Logger

	store *scene.PrimitiveStore
	nodes []Node
	root  int
	opts  Options
	stats BuildStats

	stacks       sync.Pool
	packetStacks sync.Pool
}

// Build a tree over the primitives of store. The store indirection table is
// reordered so that the primitives of each leaf are contiguous.
func New(store *scene.PrimitiveStore, opts Options) *Tree {
	t := &Tree{
		logger: log.New("bvh"),
		store:  store,
		opts:   opts.withDefaults(),
	}
	t.nodes, t.root, t.stats = buildTree(t.logger, store, t.opts, int64(runtime.GOMAXPROCS(0)))
	t.logger.Infof("built BVH over %d primitives (%s)", store.Size(), t.stats)

	depth := t.stats.MaxDepth
	t.stacks.New = func() interface{} { return NewStack(depth) }
	t.packetStacks.New = func() interface{} { return NewPacketStack(depth) }
	return t
}

// Index of the root node.
func (t *Tree) Root() int {
	return t.root
}

// The node table. Node 0 is reserved and never referenced by the tree.
func (t *Tree) Nodes() []Node {
	return t.nodes
}

// The primitive store the tree was built over.
func (t *Tree) Store() *scene.PrimitiveStore {
	return t.store
}

// Number of nodes on the longest root to leaf path.
func (t *Tree) Depth() int {
	return t.stats.MaxDepth
}

func (t *Tree) Stats() BuildStats {
	return t.stats
}

func (t *Tree) Options() Options {
	return t.opts
}

// Create a stack large enough for traversing this tree.
func (t *Tree) NewStack() *Stack {
	return NewStack(t.stats.MaxDepth)
}

// Create a packet stack large enough for traversing this tree.
func (t *Tree) NewPacketStack() *PacketStack {
	return NewPacketStack(t.stats.MaxDepth)
}

// A stack entry for starting a traversal at the root.
func (t *Tree) RootEntry() StackElement {
	return StackElement{Index: t.root}
}

// Record a checkpoint that starts a traversal at entry while preserving the
// current stack contents.
func (t *Tree) Checkpoint(stack *Stack, entry StackElement) Checkpoint {
	return Checkpoint{Entry: entry, Top: stack.Len()}
}

// Find the primitive closest to the ray origin. Returns its original index
// and hit description, or NoPrimitive and a hit at scene.MaxDist.
func (t *Tree) FindNearestObject(r *scene.Ray) (int, scene.HitDescription) {
	stack := t.stacks.Get().(*Stack)
	defer t.stacks.Put(stack)
	return t.FindNearestObjectWithStack(stack, r)
}

// FindNearestObject using a caller supplied stack.
func (t *Tree) FindNearestObjectWithStack(stack *Stack, r *scene.Ray) (int, scene.HitDescription) {
	h := scene.NewHitDescription(scene.MaxDist)
	invDir := r.InverseDirection()
	if t.nodes[t.root].IntersectionDistance(r, invDir) == scene.MaxDist {
		return NoPrimitive, h
	}

	prim := t.findNearest(stack, r, invDir, t.Checkpoint(stack, t.RootEntry()), &h)
	return prim, h
}

// Continue a nearest hit search from a checkpoint. Only hits closer than
// h.D are reported; h is updated in place. Returns the original index of the
// nearest primitive found or NoPrimitive if h was not improved. On return
// the stack is back at cp.Top.
func (t *Tree) FindNearestObjectFrom(stack *Stack, r *scene.Ray, cp Checkpoint, h *scene.HitDescription) int {
	return t.findNearest(stack, r, r.InverseDirection(), cp, h)
}

func (t *Tree) findNearest(stack *Stack, r *scene.Ray, invDir types.Vec3, cp Checkpoint, h *scene.HitDescription) int {
	best := NoPrimitive
	entry := cp.Entry
	for {
		if t.findLeafNode(stack, r, invDir, &entry, h.D) {
			if prim := t.nodes[entry.Index].TestLeafNodeNearest(t.store, r, h); prim != NoPrimitive {
				best = prim
			}
		}

		// Skip pending subtrees that start beyond the current best hit
		for {
			if stack.Len() <= cp.Top {
				return best
			}
			entry = stack.pop()
			if entry.TMin <= h.D+pruneTolerance {
				break
			}
		}
	}
}

// Returns true if an occluding primitive is hit closer than t.
func (t *Tree) FoundNearerObject(r *scene.Ray, dist float32) bool {
	stack := t.stacks.Get().(*Stack)
	defer t.stacks.Put(stack)
	return t.FoundNearerObjectWithStack(stack, r, dist)
}

// FoundNearerObject using a caller supplied stack.
func (t *Tree) FoundNearerObjectWithStack(stack *Stack, r *scene.Ray, dist float32) bool {
	return t.foundNearer(stack, r, r.InverseDirection(), t.Checkpoint(stack, t.RootEntry()), dist)
}

// Continue an occlusion search from a checkpoint. On return the stack is back
// at cp.Top.
func (t *Tree) FoundNearerObjectFrom(stack *Stack, r *scene.Ray, cp Checkpoint, dist float32) bool {
	return t.foundNearer(stack, r, r.InverseDirection(), cp, dist)
}

func (t *Tree) foundNearer(stack *Stack, r *scene.Ray, invDir types.Vec3, cp Checkpoint, dist float32) bool {
	entry := cp.Entry
	for {
		if t.findLeafNode(stack, r, invDir, &entry, dist) &&
			t.nodes[entry.Index].TestLeafNodeNearer(t.store, r, dist) {
			stack.Truncate(cp.Top)
			return true
		}

		if stack.Len() <= cp.Top {
			return false
		}
		entry = stack.pop()
	}
}

// Descend from entry towards the nearest leaf, deferring the far child of
// every interior node whose children both start before tMax. Returns false
// if no leaf worth visiting was found below entry; otherwise entry points to
// the leaf.
func (t *Tree) findLeafNode(stack *Stack, r *scene.Ray, invDir types.Vec3, entry *StackElement, tMax float32) bool {
	limit := tMax + pruneTolerance
	cur := entry.Index
	for {
		node := &t.nodes[cur]
		if node.IsLeaf() {
			entry.Index = cur
			return true
		}

		near, far := node.Left(), node.Right()
		nearDist := t.nodes[near].IntersectionDistance(r, invDir)
		farDist := t.nodes[far].IntersectionDistance(r, invDir)
		if farDist < nearDist {
			near, far = far, near
			nearDist, farDist = farDist, nearDist
		}

		if nearDist >= limit {
			return false
		}
		if farDist < limit {
			stack.push(StackElement{Index: far, TMin: farDist})
		}
		cur = near
		entry.TMin = nearDist
	}
}
