package scene

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

var ErrUnknownSceneKind = errors.New("scene: unknown procedural scene kind")

// The procedural scene layouts understood by Generate.
const (
	// Randomly placed and oriented triangles.
	SoupScene = "soup"

	// A wavy height field made of quads split into triangle pairs.
	GridScene = "grid"
)

// Parameters for procedural scene generation.
type GeneratorConfig struct {
	Kind       string  `toml:"kind"`
	Primitives int     `toml:"primitives"`
	Seed       int64   `toml:"seed"`
	Extent     float32 `toml:"extent"`
	MaxEdge    float32 `toml:"max_edge"`

	// Fractions of soup triangles that are flagged as lights / transparent.
	LightFraction       float32 `toml:"light_fraction"`
	TransparentFraction float32 `toml:"transparent_fraction"`
}

// Get the default generator settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Kind:       SoupScene,
		Primitives: 10000,
		Seed:       1,
		Extent:     100,
		MaxEdge:    5,
	}
}

// Generate a procedural scene.
func Generate(cfg GeneratorConfig) (*PrimitiveStore, error) {
	if cfg.Primitives < 0 {
		return nil, fmt.Errorf("scene: invalid primitive count %d", cfg.Primitives)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	switch cfg.Kind {
	case SoupScene, "":
		return generateSoup(rng, cfg), nil
	case GridScene:
		return generateGrid(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSceneKind, cfg.Kind)
	}
}

func randomPoint(rng *rand.Rand, extent float32) types.Vec3 {
	return types.XYZ(
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
	)
}

func generateSoup(rng *rand.Rand, cfg GeneratorConfig) *PrimitiveStore {
	store := NewPrimitiveStore(cfg.Primitives)
	for i := 0; i < cfg.Primitives; i++ {
		a := randomPoint(rng, cfg.Extent)
		b := a.Add(randomPoint(rng, 2*cfg.MaxEdge))
		c := a.Add(randomPoint(rng, 2*cfg.MaxEdge))

		tri := NewTriangle(a, b, c)
		tri.Light = rng.Float32() < cfg.LightFraction
		tri.Transparent = rng.Float32() < cfg.TransparentFraction
		store.Add(tri)
	}
	return store
}

func generateGrid(cfg GeneratorConfig) *PrimitiveStore {
	// Two triangles per cell; round up to the next square grid.
	cells := (cfg.Primitives + 1) / 2
	side := int(math32.Ceil(math32.Sqrt(float32(cells))))
	store := NewPrimitiveStore(2 * side * side)
	if side == 0 {
		return store
	}

	step := cfg.Extent / float32(side)
	origin := -0.5 * cfg.Extent
	height := func(x, z int) types.Vec3 {
		fx := origin + float32(x)*step
		fz := origin + float32(z)*step
		y := math32.Sin(fx*0.1)*math32.Cos(fz*0.1) * cfg.MaxEdge
		return types.XYZ(fx, y, fz)
	}

	for z := 0; z < side && store.Size() < cfg.Primitives; z++ {
		for x := 0; x < side && store.Size() < cfg.Primitives; x++ {
			p00, p10 := height(x, z), height(x+1, z)
			p01, p11 := height(x, z+1), height(x+1, z+1)
			store.Add(NewTriangle(p00, p01, p10))
			if store.Size() < cfg.Primitives {
				store.Add(NewTriangle(p10, p01, p11))
			}
		}
	}
	return store
}
