package renderer

import "time"

type TracerStat struct {
	// The tracer id.
	Id string

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Render time for assigned block
	RenderTime time.Duration

	// Rays traced for the assigned block.
	PrimaryRays uint64
	ShadowRays  uint64
}

type FrameStats struct {
	// Individual tracer stats.
	Tracers []TracerStat

	// Total render time for entire frame.
	RenderTime time.Duration

	// Primary rays that hit a primitive, summed over all tracers.
	Hits uint64
}

// Total number of traced rays.
func (s FrameStats) Rays() uint64 {
	var rays uint64
	for _, ts := range s.Tracers {
		rays += ts.PrimaryRays + ts.ShadowRays
	}
	return rays
}
