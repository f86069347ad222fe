package cmd

import (
	"fmt"
	"os"

	"github.com/achilleasa/lbvh/bvh"
	"github.com/achilleasa/lbvh/renderer"
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/tracer"
	"github.com/achilleasa/lbvh/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli"
)

// Config groups the settings that can be loaded from a TOML file.
type Config struct {
	Scene  scene.GeneratorConfig `toml:"scene"`
	BVH    bvh.Options           `toml:"bvh"`
	Render RenderConfig          `toml:"render"`
}

type RenderConfig struct {
	renderer.Options

	// Camera setup.
	Eye    types.Vec3 `toml:"eye"`
	LookAt types.Vec3 `toml:"look_at"`
	FOV    float32    `toml:"fov"`

	// Block scheduler: naive or perfect.
	Scheduler string `toml:"scheduler"`

	Frames int    `toml:"frames"`
	Out    string `toml:"out"`
}

// Get the default configuration.
func DefaultConfig() Config {
	return Config{
		Scene: scene.DefaultGeneratorConfig(),
		BVH:   bvh.DefaultOptions(),
		Render: RenderConfig{
			Options: renderer.Options{
				FrameW:        512,
				FrameH:        512,
				Tracers:       4,
				LightPosition: types.XYZ(50, 200, 50),
				Exposure:      1,
			},
			Eye:       types.XYZ(0, 40, 160),
			LookAt:    types.XYZ(0, 0, 0),
			FOV:       60,
			Scheduler: "perfect",
			Frames:    1,
			Out:       "frame.png",
		},
	}
}

// Load a configuration file on top of the defaults. Unknown keys are
// rejected. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err = toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load the --config file and apply any explicitly set command flags.
func configFromContext(ctx *cli.Context) (Config, error) {
	cfg, err := LoadConfig(ctx.GlobalString("config"))
	if err != nil {
		return cfg, err
	}

	if ctx.IsSet("kind") {
		cfg.Scene.Kind = ctx.String("kind")
	}
	if ctx.IsSet("primitives") {
		cfg.Scene.Primitives = ctx.Int("primitives")
	}
	if ctx.IsSet("seed") {
		cfg.Scene.Seed = ctx.Int64("seed")
	}
	if ctx.IsSet("max-leaf-size") {
		cfg.BVH.MaxLeafSize = ctx.Int("max-leaf-size")
	}
	if ctx.IsSet("no-frustum") {
		cfg.BVH.DisableFrustum = ctx.Bool("no-frustum")
	}
	if ctx.IsSet("width") {
		cfg.Render.FrameW = uint32(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		cfg.Render.FrameH = uint32(ctx.Int("height"))
	}
	if ctx.IsSet("tracers") {
		cfg.Render.Tracers = ctx.Int("tracers")
	}
	if ctx.IsSet("exposure") {
		cfg.Render.Exposure = float32(ctx.Float64("exposure"))
	}
	if ctx.IsSet("scheduler") {
		cfg.Render.Scheduler = ctx.String("scheduler")
	}
	if ctx.IsSet("frames") {
		cfg.Render.Frames = ctx.Int("frames")
	}
	if ctx.IsSet("out") {
		cfg.Render.Out = ctx.String("out")
	}

	return cfg, nil
}

// Get the block scheduler matching the configured name.
func (rc RenderConfig) blockScheduler() (tracer.BlockScheduler, error) {
	switch rc.Scheduler {
	case "naive":
		return tracer.NaiveScheduler(), nil
	case "perfect", "":
		return tracer.PerfectScheduler(), nil
	default:
		return nil, fmt.Errorf("unknown block scheduler %q", rc.Scheduler)
	}
}

// Generate the configured scene and build a tree over it.
func buildScene(cfg Config) (*bvh.Tree, error) {
	store, err := scene.Generate(cfg.Scene)
	if err != nil {
		return nil, err
	}
	logger.Noticef("generated %s scene with %d primitives", cfg.Scene.Kind, store.Size())

	return bvh.New(store, cfg.BVH), nil
}

// Flags shared by all commands that build a tree.
var SceneFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "kind",
		Value: scene.SoupScene,
		Usage: "procedural scene kind (soup or grid)",
	},
	cli.IntFlag{
		Name:  "primitives, n",
		Value: 10000,
		Usage: "number of generated triangles",
	},
	cli.Int64Flag{
		Name:  "seed",
		Value: 1,
		Usage: "random seed for scene generation",
	},
	cli.IntFlag{
		Name:  "max-leaf-size",
		Value: 16,
		Usage: "max number of primitives in a leaf",
	},
	cli.BoolFlag{
		Name:  "no-frustum",
		Usage: "trace ray batches through the per-packet path",
	},
}
