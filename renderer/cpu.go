package renderer

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/achilleasa/lbvh/bvh"
	"github.com/achilleasa/lbvh/log"
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/tracer"
)

type cpuRenderer struct {
	logger log.Logger

	tracers   []tracer.Tracer
	scheduler tracer.BlockScheduler
	camera    *scene.Camera
	opts      Options

	frame *image.Gray
	stats FrameStats
}

// Create a renderer that splits each frame among opts.Tracers CPU tracers
// sharing the given tree. The camera projection is adjusted to the frame
// aspect ratio.
func NewCPURenderer(tree *bvh.Tree, camera *scene.Camera, scheduler tracer.BlockScheduler, opts Options) (Renderer, error) {
	if tree == nil {
		return nil, ErrSceneNotDefined
	}
	if camera == nil {
		return nil, ErrCameraNotDefined
	}
	if opts.Tracers < 1 {
		return nil, ErrNoTracers
	}
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, fmt.Errorf("renderer: invalid frame dimensions %dx%d", opts.FrameW, opts.FrameH)
	}
	if scheduler == nil {
		scheduler = tracer.NaiveScheduler()
	}

	r := &cpuRenderer{
		logger:    log.New("renderer"),
		scheduler: scheduler,
		camera:    camera,
		opts:      opts,
		frame:     image.NewGray(image.Rect(0, 0, int(opts.FrameW), int(opts.FrameH))),
	}

	for idx := 0; idx < opts.Tracers; idx++ {
		tr := tracer.NewCPUTracer(fmt.Sprintf("cpu-%d", idx), 1)
		if err := tr.Init(); err != nil {
			r.Close()
			return nil, fmt.Errorf("renderer: could not init tracer %s: %w", tr.Id(), err)
		}
		tr.Update(tracer.UpdateScene, tree)
		tr.Update(tracer.UpdateLight, opts.LightPosition)
		r.tracers = append(r.tracers, tr)
	}

	r.camera.SetupProjection(float32(opts.FrameW) / float32(opts.FrameH))
	r.UpdateCamera()
	r.logger.Infof("attached %d tracers for a %dx%d frame", len(r.tracers), opts.FrameW, opts.FrameH)

	return r, nil
}

func (r *cpuRenderer) Frame() *image.Gray {
	return r.frame
}

func (r *cpuRenderer) Stats() FrameStats {
	return r.stats
}

func (r *cpuRenderer) UpdateCamera() {
	for _, tr := range r.tracers {
		tr.Update(tracer.UpdateCamera, r.camera)
	}
}

// Shutdown renderer and any attached tracer.
func (r *cpuRenderer) Close() {
	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil
}

// Render frame. Each tracer receives one block of rows; the call returns
// once all blocks are complete. If a tracer fails the remaining blocks are
// still awaited and the first error is returned. When the frame timeout
// expires the outstanding blocks are cancelled and awaited before
// ErrInterrupted is returned, so no tracer touches the frame afterwards.
func (r *cpuRenderer) Render() error {
	if len(r.tracers) == 0 {
		return ErrNoTracers
	}

	start := time.Now()
	blockAssignment := r.scheduler.Schedule(r.tracers, r.opts.FrameH)

	doneChan := make(chan uint32, len(r.tracers))
	errChan := make(chan error, len(r.tracers))
	cancel := make(chan struct{})

	var blockY uint32
	pending := 0
	for idx, tr := range r.tracers {
		if blockAssignment[idx] == 0 {
			continue
		}
		tr.Enqueue(tracer.BlockRequest{
			BlockY:   blockY,
			BlockH:   blockAssignment[idx],
			Frame:    r.frame,
			Exposure: r.opts.Exposure,
			DoneChan: doneChan,
			ErrChan:  errChan,
			Cancel:   cancel,
		})
		blockY += blockAssignment[idx]
		pending++
	}

	var timeout <-chan time.Time
	if r.opts.FrameTimeout > 0 {
		timer := time.NewTimer(r.opts.FrameTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var renderErr error
	interrupted := false
	for pending > 0 {
		select {
		case <-doneChan:
			pending--
		case err := <-errChan:
			pending--
			if interrupted && errors.Is(err, tracer.ErrCancelled) {
				continue
			}
			if renderErr == nil {
				renderErr = fmt.Errorf("renderer: block failed: %w", err)
			}
		case <-timeout:
			close(cancel)
			interrupted = true
			timeout = nil
		}
	}
	if renderErr != nil {
		r.logger.Error(renderErr.Error())
		return renderErr
	}
	if interrupted {
		r.logger.Warningf("frame interrupted after %d ms", time.Since(start).Nanoseconds()/1000000)
		return ErrInterrupted
	}

	r.collectStats(blockAssignment, time.Since(start))
	r.logger.Debugf("rendered frame in %d ms", r.stats.RenderTime.Nanoseconds()/1000000)
	return nil
}

func (r *cpuRenderer) collectStats(blockAssignment []uint32, renderTime time.Duration) {
	r.stats = FrameStats{
		Tracers:    make([]TracerStat, 0, len(r.tracers)),
		RenderTime: renderTime,
	}

	for idx, tr := range r.tracers {
		stat := TracerStat{
			Id:           tr.Id(),
			BlockH:       blockAssignment[idx],
			FramePercent: 100 * float32(blockAssignment[idx]) / float32(r.opts.FrameH),
		}
		if blockAssignment[idx] != 0 {
			trStats := tr.Stats()
			stat.RenderTime = trStats.RenderTime
			stat.PrimaryRays = trStats.PrimaryRays
			stat.ShadowRays = trStats.ShadowRays
			r.stats.Hits += trStats.Hits
		}
		r.stats.Tracers = append(r.stats.Tracers, stat)
	}
}
