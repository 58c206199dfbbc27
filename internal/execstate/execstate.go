// Package execstate implements the segment executor singleton: it drains
// one planning block at a time, emitting a sequence of constant-time
// segments whose velocities trace the block's S-curve, and hands each
// segment's travel vector to the preparer.
package execstate

import (
	"math"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/xfloat"
)

// Section is which region of the S-curve the runtime is currently in.
type Section int

const (
	SectionOff Section = iota
	SectionHead
	SectionBody
	SectionTail
)

// Outcome is the per-call return of Runtime.Step.
type Outcome int

const (
	Noop Outcome = iota
	Again
	Done
)

// Segment is one constant-time slice ready for the preparer.
type Segment struct {
	Travel          [6]float64 // target - position for this segment
	DurationMinutes float64
	Velocity        float64
	Target          [6]float64
}

const epsilon = 1e-10

// Runtime is the executor singleton, owned exclusively by the
// low-priority pump once a block starts running. Its only field readable
// from another level is the atomic segment velocity.
type Runtime struct {
	block *block.Block

	section   Section
	execState block.ExecSubState
	firstHalf bool

	position [6]float64
	unit     [6]float64
	jerk     float64
	halfJerk float64

	headLength, bodyLength, tailLength          float64
	entryVelocity, cruiseVelocity, exitVelocity float64

	segmentsRemaining int
	segmentTime       float64 // minutes of real time per segment
	segmentCount      int     // segments in the current half (or body)
	segmentAccelTime  float64 // pseudo-time step of the jerk integral per segment
	elapsedAccelTime  float64
	midpointVelocity  float64
	midpointAccel     float64
	startVelocity     float64 // velocity at the start of the current half

	// holdDecel marks that the current profile is a feedhold braking ramp
	// whose completion parks the machine instead of freeing the block.
	holdDecel     bool
	holdDecelDone bool

	segmentVelocity       xfloat.Float64
	nominalSegmentMinutes float64

	segmentsEmitted int64
}

// NewRuntime constructs an idle Runtime. nominalSegmentMinutes is the
// configured nominal segment time converted to minutes, since the planner
// and executor work in length-per-minute units throughout.
func NewRuntime(nominalSegmentMinutes float64) *Runtime {
	return &Runtime{section: SectionOff, nominalSegmentMinutes: nominalSegmentMinutes}
}

// Idle reports whether the runtime has no block loaded.
func (r *Runtime) Idle() bool { return r.block == nil }

// Position returns the runtime's current axis-space position.
func (r *Runtime) Position() [6]float64 { return r.position }

// SetPosition forces the runtime position, for homing and coordinate
// offsets.
func (r *Runtime) SetPosition(pos [6]float64) {
	r.position = pos
}

// SegmentVelocity is the velocity of the most recently emitted segment.
// This is the one cross-level read: the feedhold replan consumes it from
// the background level, which is safe because the value only changes at
// segment boundaries.
func (r *Runtime) SegmentVelocity() float64 { return r.segmentVelocity.Load() }

// Load begins draining a new block: latch its profile and enter the head
// section. The block must already be in the Running state.
func (r *Runtime) Load(b *block.Block) {
	r.block = b
	r.unit = b.Unit
	r.jerk = b.Jerk
	r.halfJerk = b.Jerk / 2
	r.headLength, r.bodyLength, r.tailLength = b.HeadLength, b.BodyLength, b.TailLength
	r.entryVelocity, r.cruiseVelocity, r.exitVelocity = b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity
	r.section = SectionHead
	r.segmentsRemaining = 0
	r.holdDecel = false
	r.holdDecelDone = false
	r.setState(block.ExecHeadNew)
}

// BeginHoldDecel discards the remainder of the latched profile and
// replaces it with a single braking tail from the current segment
// velocity down to exitVelocity over tailLength. final marks the ramp
// that ends the hold chain: its completion parks the machine on the
// current block instead of freeing it, so the block (rewritten by the
// hold replan as the unexecuted remainder) survives for the resume.
func (r *Runtime) BeginHoldDecel(tailLength, exitVelocity float64, final bool) {
	if r.block == nil {
		return
	}
	v := r.segmentVelocity.Load()
	r.headLength, r.bodyLength, r.tailLength = 0, 0, tailLength
	r.entryVelocity = v
	r.cruiseVelocity = v
	r.exitVelocity = exitVelocity
	r.segmentsRemaining = 0
	r.holdDecel = final
	r.setState(block.ExecTailNew)
}

// HoldDecelDone reports (and clears) whether the last Done outcome ended
// a final feedhold braking ramp.
func (r *Runtime) HoldDecelDone() bool {
	done := r.holdDecelDone
	r.holdDecelDone = false
	return done
}

// Reset drops any in-flight block and returns the runtime to idle. The
// position is kept: an abort must not lose track of where the machine
// physically is.
func (r *Runtime) Reset() {
	r.block = nil
	r.section = SectionOff
	r.execState = block.ExecOff
	r.segmentsRemaining = 0
	r.holdDecel = false
	r.holdDecelDone = false
	r.segmentVelocity.Store(0)
}

// Step advances the state machine by one segment, returning the segment
// to prepare (Again), signalling block completion (Done), or reporting
// nothing to do (Noop). Zero-length sections are skipped by falling
// through to the next state.
func (r *Runtime) Step() (Outcome, Segment) {
	if r.block == nil {
		return Noop, Segment{}
	}

	for {
		switch r.execState {
		case block.ExecHeadNew:
			if r.headLength < epsilon {
				r.setState(block.ExecBodyNew)
				continue
			}
			r.section = SectionHead
			r.beginRamp(r.entryVelocity, r.cruiseVelocity, r.headLength)
			r.setState(block.ExecHeadRun1)
			continue

		case block.ExecHeadRun1, block.ExecHeadRun2:
			return r.runRamp(true)

		case block.ExecBodyNew:
			if r.bodyLength < epsilon {
				r.setState(block.ExecTailNew)
				continue
			}
			r.section = SectionBody
			r.beginBody()
			r.setState(block.ExecBodyRun)
			continue

		case block.ExecBodyRun:
			return r.runBody()

		case block.ExecTailNew:
			if r.tailLength < epsilon {
				r.setState(block.ExecOff)
				continue
			}
			r.section = SectionTail
			r.beginRamp(r.cruiseVelocity, r.exitVelocity, r.tailLength)
			r.setState(block.ExecTailRun1)
			continue

		case block.ExecTailRun1, block.ExecTailRun2:
			return r.runRamp(false)

		case block.ExecOff:
			b := r.block
			r.block = nil
			r.section = SectionOff
			if b != nil {
				b.ExecState = block.ExecOff
			}
			r.holdDecelDone = r.holdDecel
			r.holdDecel = false
			return Done, Segment{}
		}
	}
}

func (r *Runtime) setState(s block.ExecSubState) {
	r.execState = s
	if r.block != nil {
		r.block.ExecState = s
	}
}

// beginRamp sets up one full head or tail section. The ramp runs as two
// jerk-symmetric halves around the midpoint velocity; the jerk integral
// advances in its own pseudo-time, which differs from the real segment
// time whenever the ramp is length-limited.
func (r *Runtime) beginRamp(v1, v2, length float64) {
	vmid := (v1 + v2) / 2
	moveTime := 0.0
	if vmid > epsilon {
		moveTime = length / vmid
	}
	deltaV := math.Abs(v2 - v1)

	accelTime := 0.0
	if r.jerk > epsilon {
		accelTime = 2 * math.Sqrt(deltaV/r.jerk)
	}
	r.midpointVelocity = vmid
	if accelTime > epsilon {
		r.midpointAccel = 2 * (v2 - v1) / accelTime
	} else {
		r.midpointAccel = 0
	}

	// segments per half
	segs := int(math.Ceil(moveTime / (2 * r.nominalSegmentMinutes)))
	if segs < 1 {
		segs = 1
	}
	r.segmentCount = segs
	r.segmentsRemaining = segs
	r.segmentTime = moveTime / float64(2*segs)
	r.segmentAccelTime = accelTime / float64(2*segs)
	r.elapsedAccelTime = 0
	r.startVelocity = v1
	r.firstHalf = true
}

// runRamp emits the next segment of a head or tail ramp, sampling the
// jerk curve at the segment's pseudo-time midpoint. First half: velocity
// moves away from the start at (jerk/2)*t². Second half: the midpoint
// acceleration contributes linearly and the jerk term bends the curve
// back toward the endpoint.
func (r *Runtime) runRamp(isHead bool) (Outcome, Segment) {
	t := r.elapsedAccelTime + r.segmentAccelTime/2
	var v float64

	if r.firstHalf {
		if isHead {
			v = r.startVelocity + r.halfJerk*t*t
		} else {
			v = r.startVelocity - r.halfJerk*t*t
		}
	} else {
		base := r.midpointVelocity + r.midpointAccel*t
		correction := r.halfJerk * t * t
		if isHead {
			v = base - correction
		} else {
			v = base + correction
		}
	}

	seg := r.emitSegment(v, r.segmentTime)

	r.elapsedAccelTime += r.segmentAccelTime
	r.segmentsRemaining--
	if r.segmentsRemaining <= 0 {
		if r.firstHalf {
			r.firstHalf = false
			r.segmentsRemaining = r.segmentCount
			r.elapsedAccelTime = 0
			if isHead {
				r.setState(block.ExecHeadRun2)
			} else {
				r.setState(block.ExecTailRun2)
			}
		} else {
			if isHead {
				r.setState(block.ExecBodyNew)
			} else {
				r.setState(block.ExecOff)
			}
		}
	}

	return Again, seg
}

// beginBody sets up the constant-velocity cruise section.
func (r *Runtime) beginBody() {
	moveTime := 0.0
	if r.cruiseVelocity > epsilon {
		moveTime = r.bodyLength / r.cruiseVelocity
	}
	segs := int(math.Ceil(moveTime / r.nominalSegmentMinutes))
	if segs < 1 {
		segs = 1
	}
	r.segmentCount = segs
	r.segmentsRemaining = segs
	r.segmentTime = moveTime / float64(segs)
}

func (r *Runtime) runBody() (Outcome, Segment) {
	seg := r.emitSegment(r.cruiseVelocity, r.segmentTime)
	r.segmentsRemaining--
	if r.segmentsRemaining <= 0 {
		r.setState(block.ExecTailNew)
	}
	return Again, seg
}

// emitSegment computes the segment's travel vector and target, advances
// the runtime position, and publishes the segment velocity for the
// cross-level read.
func (r *Runtime) emitSegment(v, durationMinutes float64) Segment {
	r.segmentVelocity.Store(v)
	r.segmentsEmitted++

	var target [6]float64
	var travel [6]float64
	for i := range target {
		d := r.unit[i] * v * durationMinutes
		target[i] = r.position[i] + d
		travel[i] = d
	}
	r.position = target

	return Segment{
		Travel:          travel,
		DurationMinutes: durationMinutes,
		Velocity:        v,
		Target:          target,
	}
}

// CurrentBlock returns the block currently being drained, or nil.
func (r *Runtime) CurrentBlock() *block.Block { return r.block }

// SegmentsEmitted is a lifetime counter.
func (r *Runtime) SegmentsEmitted() int64 { return r.segmentsEmitted }
