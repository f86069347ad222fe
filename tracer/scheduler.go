package tracer

import "math"

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split frame into blocks of variable height and assign to the pool
	// of tracers using feedback collected from previous frames.
	//
	// This function returns the block height assignment for each tracer
	// in the input list. Assignments always add up to frameH.
	Schedule(tracers []Tracer, frameH uint32) []uint32
}

// The naive scheduler splits the frame according to the tracer speed estimates.
type naiveScheduler struct{}

// Create a new naive scheduler instance.
func NaiveScheduler() BlockScheduler {
	return naiveScheduler{}
}

func (naiveScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	return speedAssignment(tracers, frameH, make([]uint32, len(tracers)))
}

// The perfect scheduler assumes that the volume of tracing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	blockAssignment []uint32
}

// Create a new perfect scheduler instance.
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// Split frame into blocks of variable height and assign to the pool
// of tracers using feedback collected from previous frames.
//
// When previous frame information is available the scheduler uses the
// following formula for estimating the workload for tracer w and frame i+1:
// w_i, f_i+1 = (blockH,w_i / time,w_i) / Σ(blockH_i-1 / time,i-1)
func (sch *perfectScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	// If this is the first time we try to schedule or the number of tracers
	// has changed we need to reset the block assignments
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
		return speedAssignment(tracers, frameH, sch.blockAssignment)
	}

	// Use last frame statistics. Statistics only count as feedback if they
	// describe the block this scheduler assigned in the previous call;
	// tracers that were skipped or failed keep stale numbers.
	var total float64
	var stats *Stats
	for idx, tr := range tracers {
		stats = tr.Stats()
		if stats.BlockH == 0 || stats.BlockH != sch.blockAssignment[idx] || stats.RenderTime <= 0 {
			// No usable feedback for this tracer
			return speedAssignment(tracers, frameH, sch.blockAssignment)
		}
		total += float64(stats.BlockH) / float64(stats.RenderTime)
	}

	scaler := float64(frameH) / total
	for idx, tr := range tracers {
		stats = tr.Stats()
		sch.blockAssignment[idx] = uint32(math.Max(1.0, math.Floor(float64(stats.BlockH)/float64(stats.RenderTime)*scaler)))
	}

	return balance(sch.blockAssignment, frameH)
}

// Distribute rows proportionally to the tracer speed estimates.
func speedAssignment(tracers []Tracer, frameH uint32, out []uint32) []uint32 {
	if len(tracers) == 0 {
		return out
	}

	var total float64
	for _, tr := range tracers {
		total += float64(tr.Speed())
	}

	for idx, tr := range tracers {
		share := float64(frameH) / float64(len(tracers))
		if total > 0 {
			share = float64(tr.Speed()) * float64(frameH) / total
		}
		out[idx] = uint32(math.Max(1.0, math.Floor(share)))
	}

	return balance(out, frameH)
}

// Make the assignments add up to frameH. Excess rows are taken from the
// largest blocks; missing rows are appended to the first tracer.
func balance(rows []uint32, frameH uint32) []uint32 {
	if len(rows) == 0 {
		return rows
	}

	var scheduledRows uint32
	for _, r := range rows {
		scheduledRows += r
	}

	for scheduledRows > frameH {
		largest := 0
		for idx := range rows {
			if rows[idx] > rows[largest] {
				largest = idx
			}
		}
		rows[largest]--
		scheduledRows--
	}

	rows[0] += frameH - scheduledRows
	return rows
}
