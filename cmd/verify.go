package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"

	"github.com/achilleasa/lbvh/bvh"
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

const (
	// Hit distances within this tolerance of the oracle are considered equal.
	verifyTolerance float32 = 1e-3

	// Frame size used for the camera driven frustum checks.
	verifyFrameSize = 64
)

var errVerifyFailed = errors.New("traversal results do not match the brute-force oracle")

// The outcome of one class of traversal checks.
type checkResult struct {
	Name       string
	Rays       int
	Mismatches int
}

// Compare all traversal paths against the brute-force oracle.
func VerifyTree(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}

	tree, err := buildScene(cfg)
	if err != nil {
		return err
	}

	if err = tree.Validate(); err != nil {
		logger.Errorf("tree validation failed: %v", err)
		return err
	}

	results := verifyTraversal(tree, cfg, ctx.Int("rays"), ctx.Int64("ray-seed"))
	displayVerifyResults(results)

	for _, res := range results {
		if res.Mismatches != 0 {
			logger.Errorf("%s: %d of %d rays disagree with the oracle", res.Name, res.Mismatches, res.Rays)
			return errVerifyFailed
		}
	}
	logger.Notice("all traversal results match the brute-force oracle")
	return nil
}

func verifyTraversal(tree *bvh.Tree, cfg Config, numRays int, seed int64) []checkResult {
	store := tree.Store()
	low, high := types.Splat3(-1), types.Splat3(1)
	if !store.Empty() {
		low, high = store.LowerBounds(), store.UpperBounds()
	}
	extent := math32.Max(high.Sub(low).Len(), 1)

	if numRays < 0 {
		numRays = 0
	}
	rng := rand.New(rand.NewSource(seed))
	rays := make([]scene.Ray, numRays-numRays%types.LaneWidth)
	limits := make([]float32, len(rays))
	for i := range rays {
		rays[i] = randomRay(rng, low, high)
		limits[i] = rng.Float32() * extent
	}

	results := []checkResult{
		verifyNearest(tree, rays),
		verifyNearer(tree, rays, limits),
		verifyPacketNearest(tree, rays),
		verifyPacketNearer(tree, rays, limits),
	}
	return append(results, verifyFrustum(tree, cfg)...)
}

// Generate a ray from a random point around the scene bounds towards a
// random point inside them.
func randomRay(rng *rand.Rand, low, high types.Vec3) scene.Ray {
	size := high.Sub(low)
	var origin, target types.Vec3
	for axis := 0; axis < 3; axis++ {
		origin[axis] = low[axis] + (rng.Float32()*2-0.5)*size[axis]
		target[axis] = low[axis] + rng.Float32()*size[axis]
	}
	return scene.NewRay(origin, target.Sub(origin).Normalize())
}

func sameHit(store *scene.PrimitiveStore, r *scene.Ray, prim int, dist float32) bool {
	expPrim, expHit := bvh.BruteForceNearest(store, r)
	if expPrim == bvh.NoPrimitive || prim == bvh.NoPrimitive {
		return expPrim == prim && dist == expHit.D
	}
	return math32.Abs(expHit.D-dist) <= verifyTolerance
}

func verifyNearest(tree *bvh.Tree, rays []scene.Ray) checkResult {
	res := checkResult{Name: "nearest", Rays: len(rays)}
	stack := tree.NewStack()
	for i := range rays {
		prim, hit := tree.FindNearestObjectWithStack(stack, &rays[i])
		if !sameHit(tree.Store(), &rays[i], prim, hit.D) {
			res.Mismatches++
		}
	}
	return res
}

func verifyNearer(tree *bvh.Tree, rays []scene.Ray, limits []float32) checkResult {
	res := checkResult{Name: "occlusion", Rays: len(rays)}
	stack := tree.NewStack()
	for i := range rays {
		if tree.FoundNearerObjectWithStack(stack, &rays[i], limits[i]) != bvh.BruteForceNearer(tree.Store(), &rays[i], limits[i]) {
			res.Mismatches++
		}
	}
	return res
}

func verifyPacketNearest(tree *bvh.Tree, rays []scene.Ray) checkResult {
	res := checkResult{Name: "packet nearest", Rays: len(rays)}
	stack := tree.NewPacketStack()
	for i := 0; i < len(rays); i += types.LaneWidth {
		packet := scene.NewPacketRay(rays[i], rays[i+1], rays[i+2], rays[i+3])
		var ids [types.LaneWidth]int
		var h scene.PacketHitDescription
		tree.FindNearestPacketWithStack(stack, &packet, &ids, &h)
		for lane := 0; lane < types.LaneWidth; lane++ {
			if !sameHit(tree.Store(), &rays[i+lane], ids[lane], h.D[lane]) {
				res.Mismatches++
			}
		}
	}
	return res
}

func verifyPacketNearer(tree *bvh.Tree, rays []scene.Ray, limits []float32) checkResult {
	res := checkResult{Name: "packet occlusion", Rays: len(rays)}
	stack := tree.NewPacketStack()
	for i := 0; i < len(rays); i += types.LaneWidth {
		packet := scene.NewPacketRay(rays[i], rays[i+1], rays[i+2], rays[i+3])
		dist := types.LanesOf(limits[i], limits[i+1], limits[i+2], limits[i+3])
		closer := tree.FoundNearerPacketWithStack(stack, &packet, dist)
		for lane := 0; lane < types.LaneWidth; lane++ {
			if closer.Has(lane) != bvh.BruteForceNearer(tree.Store(), &rays[i+lane], limits[i+lane]) {
				res.Mismatches++
			}
		}
	}
	return res
}

// Trace the tiles of a small frame through the frustum batch path, followed
// by shadow rays from the primary hits towards the light.
func verifyFrustum(tree *bvh.Tree, cfg Config) []checkResult {
	nearest := checkResult{Name: "frustum nearest"}
	nearer := checkResult{Name: "frustum occlusion"}

	cam := scene.NewCamera(cfg.Render.FOV)
	cam.Position = cfg.Render.Eye
	cam.LookAt = cfg.Render.LookAt
	cam.Update()

	var (
		stack   = tree.NewPacketStack()
		packets []scene.PacketRay
		shadow  = make([]scene.PacketRay, bvh.MaxPacketSize)
		ids     = make([][types.LaneWidth]int, bvh.MaxPacketSize)
		hits    = make([]scene.PacketHitDescription, bvh.MaxPacketSize)
		dist    = make([]types.Lanes, bvh.MaxPacketSize)
		closer  = make([]types.Mask, bvh.MaxPacketSize)
		light   = cfg.Render.LightPosition
	)
	for i := range dist {
		dist[i] = types.SplatLanes(1)
	}

	for y := 0; y < verifyFrameSize; y += scene.TileSize {
		for x := 0; x < verifyFrameSize; x += scene.TileSize {
			packets = cam.TilePackets(x, y, verifyFrameSize, verifyFrameSize, packets)
			tree.FrustumFindNearestObjectWithStack(stack, packets, ids, hits)

			for i := range packets {
				for lane := 0; lane < types.LaneWidth; lane++ {
					r := packets[i].Ray(lane)
					nearest.Rays++
					if !sameHit(tree.Store(), &r, ids[i][lane], hits[i].D[lane]) {
						nearest.Mismatches++
					}

					origin := r.Origin
					if ids[i][lane] != bvh.NoPrimitive {
						origin = r.At(hits[i].D[lane])
					}
					shadow[i].SetRay(lane, scene.NewRay(origin, light.Sub(origin)))
				}
			}

			tree.FrustumFoundNearerObjectWithStack(stack, shadow, dist, closer)
			for i := range shadow {
				for lane := 0; lane < types.LaneWidth; lane++ {
					r := shadow[i].Ray(lane)
					nearer.Rays++
					if closer[i].Has(lane) != bvh.BruteForceNearer(tree.Store(), &r, 1) {
						nearer.Mismatches++
					}
				}
			}
		}
	}

	return []checkResult{nearest, nearer}
}

func displayVerifyResults(results []checkResult) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Check", "Rays", "Mismatches", "Status"})

	var rays, mismatches int
	for _, res := range results {
		status := "OK"
		if res.Mismatches != 0 {
			status = "FAIL"
		}
		table.Append([]string{
			res.Name,
			fmt.Sprintf("%d", res.Rays),
			fmt.Sprintf("%d", res.Mismatches),
			status,
		})
		rays += res.Rays
		mismatches += res.Mismatches
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%d", rays), fmt.Sprintf("%d", mismatches), ""})

	table.Render()
	logger.Noticef("verification results\n%s", buf.String())
}
