package tracer

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/achilleasa/lbvh/bvh"
	"github.com/achilleasa/lbvh/log"
	"github.com/achilleasa/lbvh/scene"
	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

const (
	// Intensity of surfaces facing away from the light or in shadow.
	ambientTerm float32 = 0.1

	// Fraction of the direct light term that reaches shadowed surfaces.
	shadowTerm float32 = 0.2
)

type cpuTracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// Relative speed estimate.
	speed uint32

	// A buffer for queuing updates. Updates are grouped by type and
	// latest updates always overwrite the previous ones.
	updateMu     sync.Mutex
	updateBuffer map[UpdateType]interface{}

	// A channel for receiving block requests from the renderer.
	blockReqChan chan BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}
	closed    bool

	// Statistics for last rendered block.
	stats *Stats

	// Scene data owned by the worker.
	tree   *bvh.Tree
	camera *scene.Camera
	light  types.Vec3
	stack  *bvh.PacketStack

	// Per-tile scratch buffers.
	packets []scene.PacketRay
	shadow  []scene.PacketRay
	ids     [][types.LaneWidth]int
	hits    []scene.PacketHitDescription
	dist    []types.Lanes
	closer  []types.Mask
}

// Create a new tracer that renders blocks on a dedicated goroutine.
func NewCPUTracer(id string, speed uint32) Tracer {
	return &cpuTracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		speed:        speed,
		updateBuffer: make(map[UpdateType]interface{}),
		blockReqChan: make(chan BlockRequest, 1),
		stats:        &Stats{},
		ids:          make([][types.LaneWidth]int, bvh.MaxPacketSize),
		hits:         make([]scene.PacketHitDescription, bvh.MaxPacketSize),
		dist:         make([]types.Lanes, bvh.MaxPacketSize),
		closer:       make([]types.Mask, bvh.MaxPacketSize),
	}
}

// Get tracer id.
func (tr *cpuTracer) Id() string {
	return tr.id
}

func (tr *cpuTracer) Speed() uint32 {
	return tr.speed
}

// Initialize tracer
func (tr *cpuTracer) Init() error {
	tr.Lock()
	defer tr.Unlock()

	if tr.closed {
		return ErrClosed
	}

	// Start worker
	if tr.closeChan == nil {
		tr.startWorker()
	}

	return nil
}

// Shutdown and cleanup tracer.
func (tr *cpuTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	tr.cleanup()
}

// Cleanup tracer. This method is meant to be called while holding tr.Lock()
func (tr *cpuTracer) cleanup() {
	tr.closed = true

	// If the worker is running shut it down
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close and shutdown channel
		<-tr.closeChan
		close(tr.closeChan)
		tr.closeChan = nil
		tr.wg.Wait()
		tr.logger.Debug("worker stopped")
	}
}

// Enqueue block request.
func (tr *cpuTracer) Enqueue(blockReq BlockRequest) {
	tr.Lock()
	defer tr.Unlock()

	if tr.closed || tr.closeChan == nil {
		blockReq.ErrChan <- ErrClosed
		return
	}

	select {
	case tr.blockReqChan <- blockReq:
	default:
		tr.logger.Error("request processor did not receive block request")
		blockReq.ErrChan <- ErrBusy
	}
}

// Append a change to the tracer's update buffer.
func (tr *cpuTracer) Update(updateType UpdateType, data interface{}) {
	tr.updateMu.Lock()
	defer tr.updateMu.Unlock()

	if updateType == UpdateCamera {
		if cam, ok := data.(*scene.Camera); ok && cam != nil {
			camCopy := *cam
			data = &camCopy
		}
	}
	tr.updateBuffer[updateType] = data
}

// Retrieve last frame statistics.
func (tr *cpuTracer) Stats() *Stats {
	return tr.stats
}

// Commit queued changes.
func (tr *cpuTracer) commitUpdates() error {
	tr.updateMu.Lock()
	pending := tr.updateBuffer
	tr.updateBuffer = make(map[UpdateType]interface{})
	tr.updateMu.Unlock()

	for updateType, data := range pending {
		switch updateType {
		case UpdateScene:
			tree, ok := data.(*bvh.Tree)
			if !ok || tree == nil {
				return fmt.Errorf("tracer: invalid scene update %T: %w", data, ErrNoSceneData)
			}
			tr.tree = tree
			tr.stack = tree.NewPacketStack()
		case UpdateCamera:
			cam, ok := data.(*scene.Camera)
			if !ok || cam == nil {
				return fmt.Errorf("tracer: invalid camera update %T", data)
			}
			tr.camera = cam
		case UpdateLight:
			light, ok := data.(types.Vec3)
			if !ok {
				return fmt.Errorf("tracer: invalid light update %T", data)
			}
			tr.light = light
		default:
			return fmt.Errorf("tracer: unsupported update type %d", updateType)
		}
	}

	return nil
}

// Spawn a go-routine to process block render requests.
func (tr *cpuTracer) startWorker() {
	tr.closeChan = make(chan struct{})
	closeChan := tr.closeChan

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		var blockReq BlockRequest
		var startTime time.Time
		var err error
		close(readyChan)
		for {
			select {
			case blockReq = <-tr.blockReqChan:
				startTime = time.Now()
				*tr.stats = Stats{}

				// Apply any pending changes
				err = tr.commitUpdates()
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}
				tr.stats.UpdateTime = time.Since(startTime)

				// Render block and reply with our completion status
				err = tr.renderBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				// Update stats
				tr.stats.BlockH = blockReq.BlockH
				tr.stats.RenderTime = time.Since(startTime)

				blockReq.DoneChan <- blockReq.BlockH
			case <-closeChan:
				// Ack close
				closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
	tr.logger.Debug("worker started")
}

// Render the rows of a block tile by tile. Each tile is traced as a single
// frustum batch followed by a batch of shadow rays towards the light.
func (tr *cpuTracer) renderBlock(blockReq *BlockRequest) error {
	if tr.tree == nil || tr.camera == nil {
		return ErrNoSceneData
	}
	if blockReq.Frame == nil {
		return fmt.Errorf("tracer: block request without a frame")
	}

	frame := blockReq.Frame
	frameW, frameH := frame.Rect.Dx(), frame.Rect.Dy()
	y0 := int(blockReq.BlockY)
	y1 := y0 + int(blockReq.BlockH)
	if y1 > frameH {
		return fmt.Errorf("tracer: block rows [%d, %d) exceed frame height %d", y0, y1, frameH)
	}

	exposure := blockReq.Exposure
	if exposure <= 0 {
		exposure = 1
	}

	for ty := y0; ty < y1; ty += scene.TileSize {
		for tx := 0; tx < frameW; tx += scene.TileSize {
			select {
			case <-blockReq.Cancel:
				return ErrCancelled
			default:
			}
			tr.renderTile(frame, tx, ty, y0, y1, exposure)
		}
	}

	return nil
}

func (tr *cpuTracer) renderTile(frame *image.Gray, tx, ty, y0, y1 int, exposure float32) {
	frameW, frameH := frame.Rect.Dx(), frame.Rect.Dy()

	tr.packets = tr.camera.TilePackets(tx, ty, frameW, frameH, tr.packets)
	count := len(tr.packets)
	ids, hits := tr.ids[:count], tr.hits[:count]
	tr.tree.FrustumFindNearestObjectWithStack(tr.stack, tr.packets, ids, hits)

	// Shadow rays run from each hit point to the light, which sits at
	// t = 1. Lanes that missed get a zero limit and never report occlusion.
	tr.shadow = tr.shadow[:0]
	dist, closer := tr.dist[:count], tr.closer[:count]
	for i := range tr.packets {
		var sp scene.PacketRay
		for lane := 0; lane < types.LaneWidth; lane++ {
			r := tr.packets[i].Ray(lane)
			origin := r.Origin
			limit := float32(0)
			if ids[i][lane] != bvh.NoPrimitive {
				origin = r.At(hits[i].D[lane])
				limit = 1
			}
			sp.SetRay(lane, scene.NewRay(origin, tr.light.Sub(origin)))
			dist[i][lane] = limit
		}
		tr.shadow = append(tr.shadow, sp)
	}
	tr.tree.FrustumFoundNearerObjectWithStack(tr.stack, tr.shadow, dist, closer)

	store := tr.tree.Store()
	for i := range tr.packets {
		px := tx + (i%(scene.TileSize/scene.PacketSide))*scene.PacketSide
		py := ty + (i/(scene.TileSize/scene.PacketSide))*scene.PacketSide
		for lane := 0; lane < types.LaneWidth; lane++ {
			x, y := px+lane%scene.PacketSide, py+lane/scene.PacketSide
			if x >= frameW || y < y0 || y >= y1 {
				continue
			}

			tr.stats.PrimaryRays++
			var intensity float32
			if id := ids[i][lane]; id != bvh.NoPrimitive {
				tr.stats.Hits++
				tr.stats.ShadowRays++
				intensity = shade(
					store.Primitive(id).Normal(),
					tr.shadow[i].Ray(lane).Dir,
					closer[i].Has(lane),
				)
			}
			frame.Pix[frame.PixOffset(frame.Rect.Min.X+x, frame.Rect.Min.Y+y)] = quantize(intensity * exposure)
		}
	}
}

// Lambert term for a surface with normal n lit from direction l.
func shade(n, l types.Vec3, shadowed bool) float32 {
	direct := math32.Abs(n.Normalize().Dot(l.Normalize()))
	if shadowed {
		direct *= shadowTerm
	}
	return ambientTerm + (1-ambientTerm)*direct
}

func quantize(v float32) uint8 {
	v = math32.Max(0, math32.Min(1, v))
	return uint8(v*255 + 0.5)
}
