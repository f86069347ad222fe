package bvh

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/lbvh/log"
	"github.com/achilleasa/lbvh/scene"
	"github.com/chewxy/math32"
	"golang.org/x/sync/semaphore"
)

// Options control the BVH builder and traversal.
type Options struct {
	// Ranges with at most this many primitives become a single leaf.
	MaxLeafSize int `toml:"max_leaf_size"`

	// Cluster reduction parameters. A subtree built over n primitives is
	// reduced to 0.5 * Delta^0.5 * n^Alpha clusters before being handed to
	// its parent.
	Alpha float32 `toml:"alpha"`
	Delta float32 `toml:"delta"`

	// Subtrees with more primitives than this are built in parallel.
	ParallelThreshold int `toml:"parallel_threshold"`

	// Trace packet batches through the per-packet path only.
	DisableFrustum bool `toml:"disable_frustum"`
}

// Get the default builder options.
func DefaultOptions() Options {
	return Options{
		MaxLeafSize:       16,
		Alpha:             0.4,
		Delta:             20,
		ParallelThreshold: 4096,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxLeafSize <= 0 {
		o.MaxLeafSize = def.MaxLeafSize
	}
	if o.Alpha <= 0 {
		o.Alpha = def.Alpha
	}
	if o.Delta <= 0 {
		o.Delta = def.Delta
	}
	if o.ParallelThreshold <= 0 {
		o.ParallelThreshold = def.ParallelThreshold
	}
	return o
}

// Statistics collected while building a tree.
type BuildStats struct {
	Primitives  int
	Nodes       int
	Leaves      int
	MaxDepth    int
	MaxLeafSize int
	Duration    time.Duration
}

func (s BuildStats) String() string {
	return fmt.Sprintf(
		"primitives: %d, nodes: %d, leaves: %d, max depth: %d, max leaf size: %d, build time: %s",
		s.Primitives, s.Nodes, s.Leaves, s.MaxDepth, s.MaxLeafSize, s.Duration,
	)
}

type bvhBuilder struct {
	logger log.Logger

	store *scene.PrimitiveStore
	codes []uint32
	opts  Options

	// Pre-sized node table; node 0 is reserved. Slots are claimed through
	// the atomic counter so that subtrees can be built concurrently.
	nodes    []Node
	nextNode atomic.Int32

	// Bounds the number of extra goroutines building subtrees.
	workers *semaphore.Weighted

	leaves      atomic.Int32
	maxLeafSize atomic.Int32
}

// Build a tree over the store primitives. The store indirection table is
// reordered by morton code. Returns the node table (truncated to the
// allocated nodes), the root index and the build statistics.
func buildTree(logger log.Logger, store *scene.PrimitiveStore, opts Options, workers int64) ([]Node, int, BuildStats) {
	start := time.Now()
	n := store.Size()

	size := 2 * n
	if size < 2 {
		size = 2
	}
	b := &bvhBuilder{
		logger:  logger,
		store:   store,
		opts:    opts,
		nodes:   make([]Node, size),
		workers: semaphore.NewWeighted(workers),
	}
	b.nextNode.Store(1)

	b.codes = SortPrimitives(store)
	sortTime := time.Since(start)

	var root int
	if n == 0 {
		root = b.createLeaf(0, 0)
	} else {
		clusters := b.build(0, n, mortonAxisBits*3-1)
		root = int(b.combine(clusters, 1)[0])
	}

	nodes := b.nodes[:b.nextNode.Load()]
	stats := BuildStats{
		Primitives:  n,
		Nodes:       len(nodes) - 1,
		Leaves:      int(b.leaves.Load()),
		MaxDepth:    treeDepth(nodes, root),
		MaxLeafSize: int(b.maxLeafSize.Load()),
		Duration:    time.Since(start),
	}

	b.logger.Debugf(
		"BVH tree build time: %d ms (sort: %d ms), maxDepth: %d, nodes: %d, leafs: %d\n",
		stats.Duration.Nanoseconds()/1e6, sortTime.Nanoseconds()/1e6,
		stats.MaxDepth, stats.Nodes, stats.Leaves,
	)
	return nodes, root, stats
}

// Claim a node slot.
func (b *bvhBuilder) allocNode() int32 {
	idx := b.nextNode.Add(1) - 1
	if int(idx) >= len(b.nodes) {
		panic(fmt.Sprintf("bvh: node table exhausted (%d slots)", len(b.nodes)))
	}
	return idx
}

// Create a leaf for store range [begin, end) and return its index.
func (b *bvhBuilder) createLeaf(begin, end int) int {
	bounds := EmptyAABB()
	for i := begin; i < end; i++ {
		bounds = bounds.Extend(b.store.IndirectPrimitive(i))
	}
	if begin == end {
		bounds = AABB{}
	}

	idx := b.allocNode()
	b.nodes[idx].CreateLeafNode(bounds.High, bounds.Low, begin, end)

	b.leaves.Add(1)
	for size := int32(end - begin); ; {
		cur := b.maxLeafSize.Load()
		if size <= cur || b.maxLeafSize.CompareAndSwap(cur, size) {
			break
		}
	}
	return int(idx)
}

// Build the clusters for the sorted range [begin, end). The range is split
// where the morton codes first differ in the highest bit at or below bit;
// the clusters returned by both halves are then merged down to the cluster
// budget for this range.
func (b *bvhBuilder) build(begin, end, bit int) []int32 {
	count := end - begin
	if count <= b.opts.MaxLeafSize {
		return []int32{int32(b.createLeaf(begin, end))}
	}

	split := -1
	for ; bit >= 0; bit-- {
		mask := uint32(1) << uint(bit)
		if b.codes[begin]&mask == b.codes[end-1]&mask {
			continue
		}
		// The range is sorted so all codes with the bit set follow the
		// codes with the bit clear.
		split = begin + sort.Search(count, func(i int) bool {
			return b.codes[begin+i]&mask != 0
		})
		break
	}
	if split < 0 {
		// All codes are equal
		return b.buildSpatial(begin, end, 0)
	}

	var left, right []int32
	if count > b.opts.ParallelThreshold && b.workers.TryAcquire(1) {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer b.workers.Release(1)
			left = b.build(begin, split, bit-1)
		}()
		right = b.build(split, end, bit-1)
		wg.Wait()
	} else {
		left = b.build(begin, split, bit-1)
		right = b.build(split, end, bit-1)
	}

	clusters := make([]int32, 0, len(left)+len(right))
	clusters = append(clusters, left...)
	clusters = append(clusters, right...)
	return b.combine(clusters, b.reduce(count))
}

// Axis order used when subdividing ranges that share a morton code.
var nextSplitAxis = [3]int{2, 0, 1}

// Build the clusters for a range whose morton codes are all equal. The range
// is partitioned about the middle of its centroid bounds, cycling through the
// x, z and y axes. Ranges whose centroids cannot be separated on any axis are
// split at the median.
func (b *bvhBuilder) buildSpatial(begin, end, axis int) []int32 {
	count := end - begin
	if count <= b.opts.MaxLeafSize {
		return []int32{int32(b.createLeaf(begin, end))}
	}

	split := -1
	for attempt := 0; attempt < 3 && split < 0; attempt++ {
		split = b.partition(begin, end, axis)
		axis = nextSplitAxis[axis]
	}
	if split < 0 {
		split = begin + count/2
	}

	left := b.buildSpatial(begin, split, axis)
	right := b.buildSpatial(split, end, axis)

	clusters := make([]int32, 0, len(left)+len(right))
	clusters = append(clusters, left...)
	clusters = append(clusters, right...)
	return b.combine(clusters, b.reduce(count))
}

// Reorder the store range [begin, end) so that primitives whose centroid lies
// at or below the middle of the range centroid bounds along axis come first.
// Returns the index of the first primitive of the upper half or -1 if either
// half would be empty. Centroids are compared doubled.
func (b *bvhBuilder) partition(begin, end, axis int) int {
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for i := begin; i < end; i++ {
		c := doubledCentroid(b.store.IndirectPrimitive(i), axis)
		lo = math32.Min(lo, c)
		hi = math32.Max(hi, c)
	}
	if !(lo < hi) {
		return -1
	}

	mid := 0.5 * (lo + hi)
	table := b.store.Indirections()
	split := begin
	for i := begin; i < end; i++ {
		if doubledCentroid(b.store.Primitive(table[i]), axis) <= mid {
			table[i], table[split] = table[split], table[i]
			split++
		}
	}
	if split == begin || split == end {
		return -1
	}
	return split
}

func doubledCentroid(t *scene.Triangle, axis int) float32 {
	return t.LowestPoint()[axis] + t.HighestPoint()[axis]
}

// Cluster budget for a range of n primitives.
func (b *bvhBuilder) reduce(n int) int {
	k := int(0.5 * math32.Sqrt(b.opts.Delta) * math32.Pow(float32(n), b.opts.Alpha))
	if k < 1 {
		return 1
	}
	return k
}

// Greedily merge the pair of clusters with the smallest combined surface area
// until at most target clusters remain.
func (b *bvhBuilder) combine(clusters []int32, target int) []int32 {
	n := len(clusters)
	if n <= target {
		return clusters
	}

	best := make([]int, n)
	cost := make([]float32, n)
	stale := make([]bool, n)
	for i := range clusters {
		best[i], cost[i] = b.nearest(clusters, i)
	}

	for n > target {
		i := 0
		for k := 1; k < n; k++ {
			if cost[k] < cost[i] {
				i = k
			}
		}
		j := best[i]
		if i > j {
			i, j = j, i
		}

		merged := b.allocNode()
		b.nodes[merged].CreateGenericNode(b.nodes, int(clusters[i]), int(clusters[j]))

		// Flag clusters whose nearest neighbour is about to disappear
		for k := 0; k < n; k++ {
			stale[k] = best[k] == i || best[k] == j
		}

		// Move the last cluster into the slot of j
		last := n - 1
		clusters[i] = merged
		clusters[j], best[j], cost[j], stale[j] = clusters[last], best[last], cost[last], stale[last]
		n--
		clusters = clusters[:n]
		for k := 0; k < n; k++ {
			if best[k] == last {
				best[k] = j
			}
		}

		best[i], cost[i] = b.nearest(clusters, i)
		for k := 0; k < n; k++ {
			if k == i {
				continue
			}
			if stale[k] {
				best[k], cost[k] = b.nearest(clusters, k)
				continue
			}
			if c := b.nodes[clusters[k]].CombinedSurfaceArea(&b.nodes[merged]); c < cost[k] {
				best[k], cost[k] = i, c
			}
		}
	}
	return clusters
}

// Find the cluster that yields the smallest combined surface area when merged
// with clusters[i].
func (b *bvhBuilder) nearest(clusters []int32, i int) (int, float32) {
	best, cost := -1, math32.Inf(1)
	node := &b.nodes[clusters[i]]
	for k := range clusters {
		if k == i {
			continue
		}
		if c := node.CombinedSurfaceArea(&b.nodes[clusters[k]]); best < 0 || c < cost {
			best, cost = k, c
		}
	}
	return best, cost
}

// Compute the depth of the tree rooted at root. A single leaf has depth 1.
func treeDepth(nodes []Node, root int) int {
	type entry struct{ index, depth int }

	maxDepth := 0
	pending := []entry{{root, 1}}
	for len(pending) > 0 {
		e := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if e.depth > maxDepth {
			maxDepth = e.depth
		}
		if node := &nodes[e.index]; !node.IsLeaf() {
			pending = append(pending, entry{node.Left(), e.depth + 1}, entry{node.Right(), e.depth + 1})
		}
	}
	return maxDepth
}
