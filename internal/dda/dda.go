// Package dda implements the DDA runtime and step loader: a
// Bresenham-style fixed-point accumulator that turns substep increments
// into step pulses at a fixed pulse-clock rate, and the segment-boundary
// loader that picks up prepared segments from the prep slot.
package dda

import (
	"github.com/tinygo-motion/motioncore/internal/prep"
)

// MotorState is one motor's DDA state: the signed phase accumulator and
// the increment it advances by on every tick.
type MotorState struct {
	Accumulator      float64
	SubstepIncrement float64
	Direction        bool
	StepSign         int
	PowerState       PowerState
}

// PowerState is a motor's energized/de-energized state, driven by the
// power-mode policy during holds and idle periods.
type PowerState int

const (
	PowerOff PowerState = iota
	PowerOn
)

// StepEvent is emitted for each motor that crosses a substep boundary on
// a tick, for the HAL layer to turn into a pulse.
type StepEvent struct {
	Motor     int
	Direction bool
}

// Runtime is the step-generation singleton, owned exclusively by the
// high-priority pump. All arithmetic here is add-and-compare; the
// floating-point profile math stays upstream in the executor and
// preparer.
type Runtime struct {
	ddaTicksRemaining int64
	substeps          float64 // substep units per whole step
	motors            []MotorState
	inDwell           bool

	nullSegmentTicks int64

	stepsIssued  int64
	nullSegments int64
}

// NewRuntime constructs an idle Runtime for the given motor count.
func NewRuntime(numMotors int, ddaSubsteps float64) *Runtime {
	return &Runtime{
		motors:   make([]MotorState, numMotors),
		substeps: ddaSubsteps,
	}
}

// LoadSegment is the loader's segment-boundary action: copy the substep
// increments, tick count and directions in. Accumulators are re-seeded
// only on a direction change, so the fractional phase carries across
// segment boundaries and position cannot drift.
func (r *Runtime) LoadSegment(ticks int64, motors []prep.MotorPrep, isDwell bool) {
	r.ddaTicksRemaining = ticks
	r.inDwell = isDwell
	for i := range r.motors {
		if i >= len(motors) {
			break
		}
		m := motors[i]
		if m.DirectionChanged {
			r.motors[i].Accumulator = 0
		}
		r.motors[i].SubstepIncrement = m.SubstepIncrement
		r.motors[i].Direction = m.Direction
		r.motors[i].StepSign = m.StepSign
	}
}

// LoadNullSegment stalls substep emission while the preparer catches up.
// Starvation stretches timing but is not an error; the counter makes it
// visible.
func (r *Runtime) LoadNullSegment(ticks int64) {
	r.ddaTicksRemaining = ticks
	r.inDwell = false
	r.nullSegmentTicks += ticks
	r.nullSegments++
	for i := range r.motors {
		r.motors[i].SubstepIncrement = 0
	}
}

// Tick advances every motor's phase accumulator by one period and
// returns the motors that crossed a substep boundary. Returns ok=false
// when the current segment's ticks are exhausted — the caller must load
// a segment (real or null) before ticking again.
func (r *Runtime) Tick() (events []StepEvent, ok bool) {
	if r.ddaTicksRemaining <= 0 {
		return nil, false
	}
	for i := range r.motors {
		m := &r.motors[i]
		m.Accumulator += m.SubstepIncrement
		if m.Accumulator > 0 {
			events = append(events, StepEvent{Motor: i, Direction: m.Direction})
			m.Accumulator -= r.substeps
			r.stepsIssued++
		}
	}
	r.ddaTicksRemaining--
	return events, true
}

// SegmentExhausted reports whether the current segment's ticks have run
// out and the loader should act.
func (r *Runtime) SegmentExhausted() bool { return r.ddaTicksRemaining <= 0 }

// InDwell reports whether the currently loaded segment is a timed,
// step-free dwell.
func (r *Runtime) InDwell() bool { return r.inDwell }

// SetMotorPower sets a motor's energize state, used by the idle
// power-down policy and by feedhold.
func (r *Runtime) SetMotorPower(motor int, state PowerState) {
	if motor < 0 || motor >= len(r.motors) {
		return
	}
	r.motors[motor].PowerState = state
}

// Reset discards the current segment and zeroes every accumulator and
// increment. Power states are kept; abort stops pulses, it does not
// de-energize.
func (r *Runtime) Reset() {
	r.ddaTicksRemaining = 0
	r.inDwell = false
	for i := range r.motors {
		r.motors[i].Accumulator = 0
		r.motors[i].SubstepIncrement = 0
	}
}

// Motor returns a copy of a motor's current DDA state, for diagnostics.
func (r *Runtime) Motor(i int) MotorState {
	if i < 0 || i >= len(r.motors) {
		return MotorState{}
	}
	return r.motors[i]
}

// NumMotors returns how many motors this runtime drives.
func (r *Runtime) NumMotors() int { return len(r.motors) }

// StepsIssued is a lifetime pulse counter.
func (r *Runtime) StepsIssued() int64 { return r.stepsIssued }

// NullSegments is a lifetime loader-starvation counter.
func (r *Runtime) NullSegments() int64 { return r.nullSegments }
