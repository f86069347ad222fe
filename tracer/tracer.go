package tracer

import (
	"errors"
	"image"
	"time"
)

var (
	ErrNoSceneData = errors.New("tracer: no scene data")
	ErrClosed      = errors.New("tracer: tracer is closed")
	ErrBusy        = errors.New("tracer: worker is busy processing another block")
	ErrCancelled   = errors.New("tracer: block cancelled")
)

// The type of data passed to Tracer.Update.
type UpdateType uint8

const (
	// A *bvh.Tree to trace against.
	UpdateScene UpdateType = iota

	// A *scene.Camera generating the primary rays. Tracers keep a copy.
	UpdateCamera

	// The types.Vec3 position of the point light used for shadow rays.
	UpdateLight
)

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// The frame to render into. Its bounds define the frame dimensions and
	// tracers only write to the rows of their block.
	Frame *image.Gray

	// The exposure value scales the shaded intensity before quantization.
	Exposure float32

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error

	// Closing this channel aborts the block between tiles; the tracer then
	// reports ErrCancelled and stops writing to the frame. May be nil.
	Cancel <-chan struct{}
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// Time spent rendering the last block and applying pending updates.
	RenderTime time.Duration
	UpdateTime time.Duration

	// Rays traced for the last block.
	PrimaryRays uint64
	ShadowRays  uint64

	// Primary rays that hit a primitive.
	Hits uint64
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Get the tracer computation speed estimate. Schedulers use it to
	// split the first frame among tracers.
	Speed() uint32

	// Initialize the tracer and start its worker.
	Init() error

	// Shutdown and cleanup tracer.
	Close()

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Queue an update that is applied before the next block is rendered.
	// Updates of the same type overwrite each other.
	Update(UpdateType, interface{})

	// Retrieve last frame statistics.
	Stats() *Stats
}
