package scene

import (
	"testing"

	"github.com/achilleasa/lbvh/types"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/require"
)

func requireVecInDelta(t *testing.T, exp, got types.Vec3, msgAndArgs ...interface{}) {
	t.Helper()
	for axis := 0; axis < 3; axis++ {
		require.InDelta(t, exp[axis], got[axis], 1e-5, msgAndArgs...)
	}
}

func TestCameraFrustrum(t *testing.T) {
	cam := NewCamera(90)

	requireVecInDelta(t, types.XYZ(-1, 1, -1), cam.Frustrum[0], "top left")
	requireVecInDelta(t, types.XYZ(1, 1, -1), cam.Frustrum[1], "top right")
	requireVecInDelta(t, types.XYZ(-1, -1, -1), cam.Frustrum[2], "bottom left")
	requireVecInDelta(t, types.XYZ(1, -1, -1), cam.Frustrum[3], "bottom right")

	cam.SetupProjection(2)
	requireVecInDelta(t, types.XYZ(-2, 1, -1), cam.Frustrum[0], "top left with aspect 2")
}

func TestCameraRay(t *testing.T) {
	cam := NewCamera(90)
	cam.Position = types.XYZ(1, 2, 3)
	cam.LookAt = types.XYZ(1, 2, 2)
	cam.Update()

	center := cam.Ray(1, 1, 3, 3)
	require.Equal(t, cam.Position, center.Origin)
	requireVecInDelta(t, types.XYZ(0, 0, -1), center.Dir)

	// Row 0 is the top of the frame
	top := cam.Ray(1, 0, 3, 3)
	require.Greater(t, top.Dir[1], float32(0))
	left := cam.Ray(0, 1, 3, 3)
	require.Less(t, left.Dir[0], float32(0))
	require.InDelta(t, 1, left.Dir.Len(), 1e-5)
}

func TestCameraYaw(t *testing.T) {
	cam := NewCamera(60)
	cam.Yaw = math32.Pi / 2
	cam.Update()

	dir := cam.LookAt.Sub(cam.Position)
	require.InDelta(t, 1, math32.Abs(dir[0]), 1e-5)
	require.InDelta(t, 0, dir[2], 1e-5)
	require.Zero(t, cam.Yaw)
	require.Zero(t, cam.Pitch)
}

func TestCameraTilePackets(t *testing.T) {
	const frameW, frameH = 6, 5
	cam := NewCamera(60)
	cam.SetupProjection(float32(frameW) / float32(frameH))

	packets := cam.TilePackets(0, 0, frameW, frameH, nil)
	require.Len(t, packets, (TileSize/PacketSide)*(TileSize/PacketSide))

	perRow := TileSize / PacketSide
	for i := range packets {
		px := (i % perRow) * PacketSide
		py := (i / perRow) * PacketSide
		for lane := 0; lane < types.LaneWidth; lane++ {
			x := clampInt(px+lane%PacketSide, 0, frameW-1)
			y := clampInt(py+lane/PacketSide, 0, frameH-1)
			require.Equal(t, cam.Ray(x, y, frameW, frameH), packets[i].Ray(lane), "packet %d lane %d", i, lane)
		}
	}

	// The output slice is reused
	again := cam.TilePackets(0, 0, frameW, frameH, packets)
	require.Same(t, &packets[0], &again[0])
}
