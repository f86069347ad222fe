package renderer

import (
	"time"

	"github.com/achilleasa/lbvh/types"
)

type Options struct {
	// Frame dims.
	FrameW uint32 `toml:"width"`
	FrameH uint32 `toml:"height"`

	// Number of CPU tracers to spawn.
	Tracers int `toml:"tracers"`

	// Position of the point light that casts shadows.
	LightPosition types.Vec3 `toml:"light"`

	// Exposure for tonemapping.
	Exposure float32 `toml:"exposure"`

	// Abort a frame that takes longer than this. Zero waits forever.
	FrameTimeout time.Duration `toml:"-"`
}
