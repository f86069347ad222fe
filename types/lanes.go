package types

import (
	"math/bits"

	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// The number of rays packed together in a Lanes value.
const LaneWidth = 4

// Lanes holds one float per ray of a 4-wide ray packet. All operations are
// lane-wise; branches are replaced with comparisons that yield a Mask and
// Select.
type Lanes f32.Vec4

// A bit mask with one bit per lane. Bit i is set when lane i satisfied the
// comparison that produced the mask.
type Mask uint8

const (
	MaskNone Mask = 0x0
	MaskAll  Mask = 0xf
)

// Define a lane vector with all lanes set to s.
func SplatLanes(s float32) Lanes {
	return Lanes{s, s, s, s}
}

// Define a lane vector from individual lane values.
func LanesOf(l0, l1, l2, l3 float32) Lanes {
	return Lanes{l0, l1, l2, l3}
}

func (l Lanes) Add(o Lanes) Lanes {
	return Lanes{l[0] + o[0], l[1] + o[1], l[2] + o[2], l[3] + o[3]}
}

func (l Lanes) Sub(o Lanes) Lanes {
	return Lanes{l[0] - o[0], l[1] - o[1], l[2] - o[2], l[3] - o[3]}
}

func (l Lanes) Mul(o Lanes) Lanes {
	return Lanes{l[0] * o[0], l[1] * o[1], l[2] * o[2], l[3] * o[3]}
}

func (l Lanes) Div(o Lanes) Lanes {
	return Lanes{l[0] / o[0], l[1] / o[1], l[2] / o[2], l[3] / o[3]}
}

// Multiply all lanes with a scalar.
func (l Lanes) Scale(s float32) Lanes {
	return Lanes{l[0] * s, l[1] * s, l[2] * s, l[3] * s}
}

// Lane-wise reciprocal.
func (l Lanes) Inverse() Lanes {
	return Lanes{1.0 / l[0], 1.0 / l[1], 1.0 / l[2], 1.0 / l[3]}
}

func (l Lanes) Abs() Lanes {
	return Lanes{math32.Abs(l[0]), math32.Abs(l[1]), math32.Abs(l[2]), math32.Abs(l[3])}
}

// Lane-wise minimum. Like SSE minps, a lane where either operand is NaN
// yields the lane from b.
func MinLanes(a, b Lanes) Lanes {
	out := b
	for i := 0; i < LaneWidth; i++ {
		if a[i] < b[i] {
			out[i] = a[i]
		}
	}
	return out
}

// Lane-wise maximum. Like SSE maxps, a lane where either operand is NaN
// yields the lane from b.
func MaxLanes(a, b Lanes) Lanes {
	out := b
	for i := 0; i < LaneWidth; i++ {
		if a[i] > b[i] {
			out[i] = a[i]
		}
	}
	return out
}

// Pick lanes from a where the mask bit is set and from b otherwise.
func Select(m Mask, a, b Lanes) Lanes {
	out := b
	for i := 0; i < LaneWidth; i++ {
		if m&(1<<i) != 0 {
			out[i] = a[i]
		}
	}
	return out
}

func (l Lanes) Less(o Lanes) Mask {
	var m Mask
	for i := 0; i < LaneWidth; i++ {
		if l[i] < o[i] {
			m |= 1 << i
		}
	}
	return m
}

func (l Lanes) LessEq(o Lanes) Mask {
	var m Mask
	for i := 0; i < LaneWidth; i++ {
		if l[i] <= o[i] {
			m |= 1 << i
		}
	}
	return m
}

func (l Lanes) Greater(o Lanes) Mask {
	return o.Less(l)
}

func (l Lanes) GreaterEq(o Lanes) Mask {
	return o.LessEq(l)
}

// Smallest value across all lanes.
func (l Lanes) HMin() float32 {
	return math32.Min(math32.Min(l[0], l[1]), math32.Min(l[2], l[3]))
}

// Largest value across all lanes.
func (l Lanes) HMax() float32 {
	return math32.Max(math32.Max(l[0], l[1]), math32.Max(l[2], l[3]))
}

// Mask with lane i set.
func LaneMask(i int) Mask {
	return Mask(1 << i)
}

func (m Mask) All() bool {
	return m&MaskAll == MaskAll
}

func (m Mask) Any() bool {
	return m&MaskAll != 0
}

func (m Mask) Has(lane int) bool {
	return m&(1<<lane) != 0
}

func (m Mask) Not() Mask {
	return ^m & MaskAll
}

// Number of set lanes.
func (m Mask) Count() int {
	return bits.OnesCount8(uint8(m & MaskAll))
}
