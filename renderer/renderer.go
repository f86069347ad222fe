package renderer

import "image"

type Renderer interface {
	// Render frame.
	Render() error

	// Get the last rendered frame. The image is reused between frames.
	Frame() *image.Gray

	// Push the current camera state to all tracers.
	UpdateCamera()

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
