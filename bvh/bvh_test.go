package bvh

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/stretchr/testify/require"
)

// Hit distances reported by different paths may differ by rounding error.
const distTolerance = 1e-3

func genScene(t *testing.T, kind string, count int, seed int64) *scene.PrimitiveStore {
	t.Helper()
	cfg := scene.DefaultGeneratorConfig()
	cfg.Kind = kind
	cfg.Primitives = count
	cfg.Seed = seed
	cfg.LightFraction = 0.05
	cfg.TransparentFraction = 0.05

	store, err := scene.Generate(cfg)
	require.NoError(t, err)
	return store
}

func randomRay(rng *rand.Rand, extent float32) scene.Ray {
	origin := types.XYZ(
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
	)
	// Aim at a random point near the center so that most rays hit something
	target := types.XYZ(
		(rng.Float32()-0.5)*extent*0.3,
		(rng.Float32()-0.5)*extent*0.3,
		(rng.Float32()-0.5)*extent*0.3,
	)
	return scene.NewRay(origin, target.Sub(origin).Normalize())
}

func requireOracleHit(t *testing.T, store *scene.PrimitiveStore, r *scene.Ray, gotPrim int, gotDist float32, msgAndArgs ...interface{}) {
	t.Helper()
	expPrim, expHit := BruteForceNearest(store, r)
	if expPrim == NoPrimitive {
		require.Equal(t, NoPrimitive, gotPrim, msgAndArgs...)
		require.Equal(t, scene.MaxDist, gotDist, msgAndArgs...)
		return
	}
	require.NotEqual(t, NoPrimitive, gotPrim, msgAndArgs...)
	require.InDelta(t, expHit.D, gotDist, distTolerance, msgAndArgs...)

	// Unless another primitive is hit within tolerance of the nearest one
	// the reported primitive must be the nearest one.
	runnerUp := scene.MaxDist
	for i := 0; i < store.Size(); i++ {
		if i == expPrim {
			continue
		}
		hit := scene.NewHitDescription(scene.MaxDist)
		store.Primitive(i).IsIntersecting(r, &hit)
		if hit.D < runnerUp {
			runnerUp = hit.D
		}
	}
	if runnerUp-expHit.D > distTolerance {
		require.Equal(t, expPrim, gotPrim, msgAndArgs...)
	}
}

func TestBuilderLeafCount(t *testing.T) {
	type primSpec struct {
		min types.Vec3
		max types.Vec3
	}

	primSpecs := []primSpec{
		{types.Vec3{-2, 0, -2}, types.Vec3{-1, 1, -1}},
		{types.Vec3{1, 0, -2}, types.Vec3{2, 1, -1}},
		{types.Vec3{-2, 0, 1}, types.Vec3{-1, 1, 2}},
		{types.Vec3{1, 0, 1}, types.Vec3{2, 1, 2}},
	}

	newStore := func() *scene.PrimitiveStore {
		store := scene.NewPrimitiveStore(len(primSpecs))
		for _, ps := range primSpecs {
			store.Add(scene.NewTriangle(
				ps.min,
				types.XYZ(ps.max[0], ps.max[1], ps.min[2]),
				types.XYZ(ps.min[0], ps.max[1], ps.max[2]),
			))
		}
		return store
	}

	specs := []struct {
		maxLeafSize int
		expLeaves   int
		expNodes    int
	}{
		{1, 4, 7},
		{2, 2, 3},
		{4, 1, 1},
	}

	for specIndex, spec := range specs {
		opts := DefaultOptions()
		opts.MaxLeafSize = spec.maxLeafSize
		tree := New(newStore(), opts)

		stats := tree.Stats()
		if stats.Leaves != spec.expLeaves {
			t.Fatalf("[spec %d] expected %d leaves; got %d", specIndex, spec.expLeaves, stats.Leaves)
		}
		if stats.Nodes != spec.expNodes {
			t.Fatalf("[spec %d] expected bvh tree to have %d nodes; got %d", specIndex, spec.expNodes, stats.Nodes)
		}
		if len(tree.Nodes()) != spec.expNodes+1 {
			t.Fatalf("[spec %d] expected node table with %d entries; got %d", specIndex, spec.expNodes+1, len(tree.Nodes()))
		}
		if err := tree.Validate(); err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
	}
}

func TestEmptyScene(t *testing.T) {
	tree := New(scene.NewPrimitiveStore(0), DefaultOptions())
	require.NoError(t, tree.Validate())
	require.Equal(t, 1, tree.Depth())
	require.True(t, tree.Nodes()[tree.Root()].IsEmpty())
	require.NotEqual(t, 0, tree.Root(), "node 0 is reserved")

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		r := randomRay(rng, 10)
		prim, hit := tree.FindNearestObject(&r)
		require.Equal(t, NoPrimitive, prim)
		require.Equal(t, scene.MaxDist, hit.D)
		require.False(t, tree.FoundNearerObject(&r, scene.MaxDist))
	}

	// A ray through the (empty) root bounds
	r := scene.NewRay(types.XYZ(0, 0, 5), types.XYZ(0, 0, -1))
	prim, _ := tree.FindNearestObject(&r)
	require.Equal(t, NoPrimitive, prim)

	packet := scene.NewPacketRay(r, r, r, r)
	var ids [types.LaneWidth]int
	var h scene.PacketHitDescription
	tree.FindNearestPacket(&packet, &ids, &h)
	require.Equal(t, [types.LaneWidth]int{NoPrimitive, NoPrimitive, NoPrimitive, NoPrimitive}, ids)
	require.Equal(t, types.MaskNone, tree.FoundNearerPacket(&packet, types.SplatLanes(scene.MaxDist)))

	batch := []scene.PacketRay{packet, packet}
	batchIDs := make([][types.LaneWidth]int, 2)
	batchHits := make([]scene.PacketHitDescription, 2)
	tree.FrustumFindNearestObject(batch, batchIDs, batchHits)
	require.Equal(t, [types.LaneWidth]int{NoPrimitive, NoPrimitive, NoPrimitive, NoPrimitive}, batchIDs[1])
	require.Equal(t, types.SplatLanes(scene.MaxDist), batchHits[0].D)
}

func TestSinglePrimitive(t *testing.T) {
	store := scene.NewPrimitiveStore(1)
	store.Add(scene.NewTriangle(types.XYZ(0, 0, -5), types.XYZ(1, 0, -5), types.XYZ(0, 1, -5)))
	tree := New(store, DefaultOptions())

	require.NoError(t, tree.Validate())
	require.Equal(t, 1, tree.Stats().Leaves)
	require.Equal(t, 1, tree.Stats().Nodes)
	require.True(t, tree.Nodes()[tree.Root()].IsLeaf())

	hitRay := scene.NewRay(types.XYZ(0.2, 0.2, 0), types.XYZ(0, 0, -1))
	prim, hit := tree.FindNearestObject(&hitRay)
	require.Equal(t, 0, prim)
	require.InDelta(t, 5, hit.D, 1e-5)
	require.True(t, tree.FoundNearerObject(&hitRay, 6))
	require.False(t, tree.FoundNearerObject(&hitRay, 4))

	missRay := scene.NewRay(types.XYZ(0.8, 0.8, 0), types.XYZ(0, 0, -1))
	prim, hit = tree.FindNearestObject(&missRay)
	require.Equal(t, NoPrimitive, prim)
	require.Equal(t, scene.MaxDist, hit.D)
}

func TestTreeStructure(t *testing.T) {
	specs := []struct {
		kind  string
		count int
		opts  func(*Options)
	}{
		{scene.SoupScene, 1000, nil},
		{scene.GridScene, 2000, nil},
		{scene.SoupScene, 3000, func(o *Options) { o.MaxLeafSize = 4 }},
		// Force parallel subtree construction
		{scene.SoupScene, 20000, func(o *Options) { o.ParallelThreshold = 256 }},
	}

	for specIndex, spec := range specs {
		opts := DefaultOptions()
		if spec.opts != nil {
			spec.opts(&opts)
		}
		store := genScene(t, spec.kind, spec.count, int64(specIndex+1))
		tree := New(store, opts)

		require.NoError(t, tree.Validate(), "spec %d", specIndex)
		stats := tree.Stats()
		require.Equal(t, spec.count, stats.Primitives)
		require.Equal(t, 2*stats.Leaves-1, stats.Nodes, "spec %d: a proper binary tree", specIndex)
		require.LessOrEqual(t, stats.MaxLeafSize, opts.MaxLeafSize, "spec %d", specIndex)
		require.LessOrEqual(t, stats.Nodes, 2*spec.count-1, "spec %d", specIndex)
		require.Greater(t, stats.MaxDepth, 1, "spec %d", specIndex)
	}
}

func TestBuilderSplitsCoincidentMortonCodes(t *testing.T) {
	// A far away primitive stretches the scene bounds so that all other
	// centroids fall in the same morton cell. They form two groups on either
	// side of x = 0.03, interleaved in insertion order.
	store := scene.NewPrimitiveStore(17)
	far := types.XYZ(1000, 1000, 1000)
	store.Add(scene.NewTriangle(far, far.Add(types.XYZ(1, 0, 0)), far.Add(types.XYZ(0, 1, 0))))
	for i := 0; i < 16; i++ {
		x := float32(0)
		if i%2 == 1 {
			x = 0.05
		}
		z := float32(i/2) * 0.001
		a := types.XYZ(x, 0, z)
		store.Add(scene.NewTriangle(a, a.Add(types.XYZ(0.001, 0, 0)), a.Add(types.XYZ(0, 0.001, 0))))
	}

	opts := DefaultOptions()
	opts.MaxLeafSize = 4
	tree := New(store, opts)
	require.NoError(t, tree.Validate())
	require.Equal(t, 17, tree.Stats().Primitives)

	codes := computeMortonCodes(store)
	for i := range codes {
		if store.Indirection(i) != 0 {
			require.Equal(t, uint32(0), codes[i], "expected primitive %d in the first morton cell", store.Indirection(i))
		}
	}

	nodes := tree.Nodes()
	for i := 1; i < len(nodes); i++ {
		node := &nodes[i]
		if !node.IsLeaf() || node.IsEmpty() {
			continue
		}
		var groups [2]int
		for j := node.Begin(); j < node.End(); j++ {
			if c := store.IndirectPrimitive(j).Center(); c[0] < 0.03 {
				groups[0]++
			} else {
				groups[1]++
			}
		}
		require.False(t, groups[0] > 0 && groups[1] > 0, "leaf %d mixes primitives from both groups", i)
	}

	// Both groups remain reachable
	for _, x := range []float32{0.0002, 0.0502} {
		r := scene.NewRay(types.XYZ(x, 0.0002, 5), types.XYZ(0, 0, -1))
		prim, hit := tree.FindNearestObject(&r)
		requireOracleHit(t, store, &r, prim, hit.D, "ray at x=%f", x)
	}
}

func TestFindNearestObjectMatchesBruteForce(t *testing.T) {
	for _, kind := range []string{scene.SoupScene, scene.GridScene} {
		store := genScene(t, kind, 2000, 3)
		tree := New(store, DefaultOptions())
		stack := tree.NewStack()

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 500; i++ {
			r := randomRay(rng, 200)
			prim, hit := tree.FindNearestObjectWithStack(stack, &r)
			requireOracleHit(t, store, &r, prim, hit.D, "%s ray %d", kind, i)
			require.Equal(t, 0, stack.Len())

			if prim != NoPrimitive {
				// The reported primitive must be hit at the reported distance
				check := scene.NewHitDescription(scene.MaxDist)
				store.Primitive(prim).IsIntersecting(&r, &check)
				require.InDelta(t, hit.D, check.D, distTolerance, "%s ray %d", kind, i)
			}
		}
	}
}

func TestFoundNearerObjectMatchesBruteForce(t *testing.T) {
	store := genScene(t, scene.SoupScene, 2000, 5)
	tree := New(store, DefaultOptions())

	rng := rand.New(rand.NewSource(43))
	for i := 0; i < 500; i++ {
		r := randomRay(rng, 200)
		dist := rng.Float32() * 250

		exp := BruteForceNearer(store, &r, dist)
		require.Equal(t, exp, tree.FoundNearerObject(&r, dist), "ray %d, t = %f", i, dist)
	}
}

func TestResumableTraversal(t *testing.T) {
	store := genScene(t, scene.SoupScene, 2000, 11)
	tree := New(store, DefaultOptions())
	stack := tree.NewStack()

	// Entries below the checkpoint belong to the caller
	stack.push(StackElement{Index: tree.Root(), TMin: 1234})

	rng := rand.New(rand.NewSource(44))
	for i := 0; i < 200; i++ {
		r := randomRay(rng, 200)
		expPrim, expHit := tree.FindNearestObject(&r)

		cp := tree.Checkpoint(stack, tree.RootEntry())
		h := scene.NewHitDescription(scene.MaxDist)
		prim := tree.FindNearestObjectFrom(stack, &r, cp, &h)
		require.Equal(t, expPrim, prim, "ray %d", i)
		require.Equal(t, expHit.D, h.D, "ray %d", i)
		require.Equal(t, 1, stack.Len(), "ray %d", i)

		// Restarting with the known hit as the exclusion distance finds
		// nothing closer
		if expPrim != NoPrimitive {
			prim = tree.FindNearestObjectFrom(stack, &r, cp, &h)
			require.Equal(t, NoPrimitive, prim, "ray %d", i)
			require.Equal(t, expHit.D, h.D, "ray %d", i)

			exp := BruteForceNearer(store, &r, expHit.D+1)
			require.Equal(t, exp, tree.FoundNearerObjectFrom(stack, &r, cp, expHit.D+1), "ray %d", i)
			require.Equal(t, 1, stack.Len(), "ray %d", i)
		}
	}
}

func TestConcurrentTraversal(t *testing.T) {
	store := genScene(t, scene.SoupScene, 3000, 13)
	tree := New(store, DefaultOptions())

	rng := rand.New(rand.NewSource(45))
	rays := make([]scene.Ray, 400)
	expPrims := make([]int, len(rays))
	for i := range rays {
		rays[i] = randomRay(rng, 200)
		expPrims[i], _ = tree.FindNearestObject(&rays[i])
	}

	var (
		wg         sync.WaitGroup
		mismatches int32
	)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := range rays {
				idx := (i + offset*37) % len(rays)
				if prim, _ := tree.FindNearestObject(&rays[idx]); prim != expPrims[idx] {
					atomic.AddInt32(&mismatches, 1)
				}
			}
		}(worker)
	}
	wg.Wait()

	require.Zero(t, mismatches)
}
