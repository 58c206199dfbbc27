package planner

import "math"

const (
	velocityTolerance      = 1e-6
	vcConvergeTolerance    = 0.001
	maxTrapezoidIterations = 20
	// smallFactorThreshold bounds the near-minimum HB/BT band: lengths up
	// to 5% past the direct entry-to-exit transition length get a single
	// ramp plus a body at the faster endpoint instead of the full
	// iterative solve.
	smallFactorThreshold = 1.05
)

// TrapezoidResult is the (head, body, tail, cruise velocity)
// decomposition of a planned move. ExitVelocity is normally the caller's
// requested exit; the degraded single-ramp case is the one shape that
// must report a different exit, since the available length cannot reach
// the requested one.
type TrapezoidResult struct {
	HeadLength   float64
	BodyLength   float64
	TailLength   float64
	Cruise       float64
	ExitVelocity float64
	Degraded     bool
}

// SolveTrapezoid computes (head_length, body_length, tail_length) summing
// to length, adjusting the cruise velocity downward when the requested
// entry/cruise/exit triple cannot be achieved in the available length.
// Cases, checked in order: zero length; pure body; head+body+tail; the
// symmetric no-body triangle; the degraded single ramp; the near-minimum
// ramp-plus-body; and the iterative asymmetric triangle.
func SolveTrapezoid(entry, cruiseRequested, exit, length, jerk, cubeRootJerk float64) TrapezoidResult {
	if length < epsilon {
		return TrapezoidResult{Cruise: cruiseRequested, ExitVelocity: exit}
	}

	// Pure body: entry, cruise and exit already agree.
	if math.Abs(entry-cruiseRequested) < velocityTolerance && math.Abs(cruiseRequested-exit) < velocityTolerance {
		return TrapezoidResult{BodyLength: length, Cruise: cruiseRequested, ExitVelocity: exit}
	}

	cruise := cruiseRequested
	head := TargetLength(entry, cruise, jerk)
	tail := TargetLength(exit, cruise, jerk)

	// Head+body+tail: both ramps fit with room to spare for a cruise body.
	if head+tail <= length+velocityTolerance {
		body := length - head - tail
		if body < 0 {
			body = 0
		}
		return TrapezoidResult{HeadLength: head, BodyLength: body, TailLength: tail, Cruise: cruise, ExitVelocity: exit}
	}

	// Symmetric triangle: entry == exit, no body, ramps split the length
	// evenly and the achievable cruise is recomputed downward.
	if math.Abs(entry-exit) < velocityTolerance {
		half := length / 2
		vc := TargetVelocity(entry, half, cubeRootJerk)
		return TrapezoidResult{HeadLength: half, TailLength: half, Cruise: vc, ExitVelocity: exit}
	}

	minDirect := TargetLength(entry, exit, jerk)

	// Degraded single ramp: not even enough length to transition directly
	// from entry to exit. Recompute whichever endpoint is the far one to
	// match what the available length can actually deliver.
	if length < minDirect-velocityTolerance {
		if entry < exit {
			newExit := TargetVelocity(entry, length, cubeRootJerk)
			return TrapezoidResult{HeadLength: length, Cruise: newExit, ExitVelocity: newExit, Degraded: true}
		}
		newExit := entry - DeltaVmax(length, cubeRootJerk)
		if newExit < 0 {
			newExit = 0
		}
		return TrapezoidResult{TailLength: length, Cruise: entry, ExitVelocity: newExit, Degraded: true}
	}

	// Ramp plus body: length is within a small factor of the direct
	// transition minimum. One ramp covering the full entry-to-exit delta
	// and a short body at the faster endpoint soaking up the remainder.
	if length < minDirect*smallFactorThreshold {
		remainder := length - minDirect
		if remainder < 0 {
			remainder = 0
		}
		if entry < exit {
			return TrapezoidResult{HeadLength: minDirect, BodyLength: remainder, Cruise: exit, ExitVelocity: exit}
		}
		return TrapezoidResult{TailLength: minDirect, BodyLength: remainder, Cruise: entry, ExitVelocity: exit}
	}

	// Asymmetric triangle: iterate, scaling both ramps to fit the length
	// and recomputing the achievable cruise from the scaled ramp
	// endpoints, until the cruise converges.
	vc := cruise
	if vc < entry {
		vc = entry
	}
	if vc < exit {
		vc = exit
	}
	for i := 0; i < maxTrapezoidIterations; i++ {
		h := TargetLength(entry, vc, jerk)
		t := TargetLength(exit, vc, jerk)
		sum := h + t
		if sum < epsilon {
			break
		}
		scale := length / sum
		h *= scale
		t *= scale

		vcFromHead := TargetVelocity(entry, h, cubeRootJerk)
		vcFromTail := TargetVelocity(exit, t, cubeRootJerk)
		newVc := (vcFromHead + vcFromTail) / 2

		converged := vc > epsilon && math.Abs(newVc-vc)/vc < vcConvergeTolerance
		vc = newVc
		head, tail = h, t
		if converged {
			break
		}
	}
	return TrapezoidResult{HeadLength: head, TailLength: tail, Cruise: vc, ExitVelocity: exit}
}

// AbsorbSlivers folds any head/body/tail section shorter than minLength
// into a neighbour, so no sliver sections reach the segment executor.
func AbsorbSlivers(r TrapezoidResult, minLength float64) TrapezoidResult {
	head, body, tail := r.HeadLength, r.BodyLength, r.TailLength

	if head > 0 && head < minLength {
		body += head
		head = 0
	}
	if tail > 0 && tail < minLength {
		body += tail
		tail = 0
	}
	if body > 0 && body < minLength {
		switch {
		case head > 0:
			head += body
		case tail > 0:
			tail += body
		}
		body = 0
	}

	r.HeadLength, r.BodyLength, r.TailLength = head, body, tail
	return r
}
