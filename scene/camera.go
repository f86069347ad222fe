package scene

import (
	"fmt"

	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
)

const (
	// Side of the square pixel block covered by one PacketRay.
	PacketSide = 2

	// Side of the square pixel tile traced as one frustum batch. A tile
	// yields (TileSize/PacketSide)^2 packets.
	TileSize = 8
)

// Stores the ray directions at the four corners of the camera frustrum. Per
// pixel rays are generated by interpolating the corner rays.
type Frustrum [4]types.Vec3

func (fr Frustrum) String() string {
	return fmt.Sprintf(
		"Frustrum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// The camera type controls the scene camera.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3
	Pitch    float32
	Yaw      float32

	Frustrum Frustrum

	// Vertical field of view in degrees.
	FOV float32

	// Frame width / height.
	Aspect float32
}

func NewCamera(fov float32) *Camera {
	c := &Camera{
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
		Aspect:   1,
	}
	c.Update()
	return c
}

// Setup camera aspect ratio.
func (c *Camera) SetupProjection(aspect float32) {
	c.Aspect = aspect
	c.Update()
}

// Apply pending yaw/pitch rotations and regenerate the corner rays.
func (c *Camera) Update() {
	dir := c.LookAt.Sub(c.Position).Normalize()
	pitchAxis := dir.Cross(c.Up)
	pitchQuat := types.QuatFromAxisAngle(pitchAxis, c.Pitch)
	yawQuat := types.QuatFromAxisAngle(c.Up, c.Yaw)

	orientQuat := pitchQuat.Mul(yawQuat).Normalize()

	dir = orientQuat.Rotate(dir)
	c.LookAt = c.Position.Add(dir)
	c.Pitch, c.Yaw = 0, 0

	c.updateFrustrum(dir)
}

// Generate a ray vector for each corner of the camera frustrum at unit
// distance from the eye.
func (c *Camera) updateFrustrum(dir types.Vec3) {
	right := dir.Cross(c.Up).Normalize()
	up := right.Cross(dir).Normalize()

	halfH := math32.Tan(c.FOV * 0.5 * math32.Pi / 180)
	halfW := halfH * c.Aspect

	u := right.Mul(halfW)
	v := up.Mul(halfH)
	c.Frustrum[0] = dir.Sub(u).Add(v)
	c.Frustrum[1] = dir.Add(u).Add(v)
	c.Frustrum[2] = dir.Sub(u).Sub(v)
	c.Frustrum[3] = dir.Add(u).Sub(v)
}

// Generate the primary ray through the center of pixel (x, y).
func (c *Camera) Ray(x, y, frameW, frameH int) Ray {
	fx := (float32(x) + 0.5) / float32(frameW)
	fy := (float32(y) + 0.5) / float32(frameH)

	top := c.Frustrum[0].Add(c.Frustrum[1].Sub(c.Frustrum[0]).Mul(fx))
	bottom := c.Frustrum[2].Add(c.Frustrum[3].Sub(c.Frustrum[2]).Mul(fx))
	return Ray{
		Origin: c.Position,
		Dir:    top.Add(bottom.Sub(top).Mul(fy)).Normalize(),
	}
}

// Generate the packets covering the TileSize x TileSize tile whose top-left
// pixel is (tileX, tileY). Pixels outside the frame are clamped to the frame
// edge so every packet lane carries a valid ray. Lane i of a packet maps to
// pixel (px + i%2, py + i/2).
func (c *Camera) TilePackets(tileX, tileY, frameW, frameH int, out []PacketRay) []PacketRay {
	out = out[:0]
	for py := tileY; py < tileY+TileSize; py += PacketSide {
		for px := tileX; px < tileX+TileSize; px += PacketSide {
			var p PacketRay
			for lane := 0; lane < types.LaneWidth; lane++ {
				x := clampInt(px+lane%PacketSide, 0, frameW-1)
				y := clampInt(py+lane/PacketSide, 0, frameH-1)
				p.SetRay(lane, c.Ray(x, y, frameW, frameH))
			}
			out = append(out, p)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
