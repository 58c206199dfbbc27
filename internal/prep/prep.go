// Package prep implements the segment preparer: it converts a segment's
// axis-space travel vector and duration into motor-space DDA parameters,
// and hands them to the step loader through a single-slot ownership flag.
package prep

import (
	"fmt"
	"sync/atomic"

	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/execstate"
	"github.com/tinygo-motion/motioncore/internal/kinematics"
)

// Owner is the handoff flag's value: which priority level currently holds
// write access to the slot. The flag is the only synchronization between
// the producer (executor pump) and the consumer (step loader): the
// producer writes it last, the consumer reads it first.
type Owner int32

const (
	OwnedByExec Owner = iota
	OwnedByLoader
)

// MotorPrep is the per-motor DDA parameter set for one segment.
type MotorPrep struct {
	SubstepIncrement float64
	Direction        bool // true = forward; already polarity-corrected
	DirectionChanged bool
	StepSign         int // encoder sign convention, +1/-1/0, independent of polarity
}

// Slot is the single-slot producer/consumer handoff between the executor
// pump and the step loader.
type Slot struct {
	ownedBy atomic.Int32

	ddaTicks int64
	isDwell  bool
	motors   []MotorPrep

	lastDirection []bool
	haveLast      []bool

	mapper   *kinematics.Mapper
	motorCfg []config.MotorConfig
	sys      config.SystemConfig
}

// NewSlot constructs an empty Slot, initially owned by the producer so
// the first Prepare call may write into it.
func NewSlot(mapper *kinematics.Mapper, motorCfg []config.MotorConfig, sys config.SystemConfig) *Slot {
	n := mapper.NumMotors()
	s := &Slot{
		motors:        make([]MotorPrep, n),
		lastDirection: make([]bool, n),
		haveLast:      make([]bool, n),
		mapper:        mapper,
		motorCfg:      motorCfg,
		sys:           sys,
	}
	s.ownedBy.Store(int32(OwnedByExec))
	return s
}

// Owner returns the current owner of the slot.
func (s *Slot) Owner() Owner { return Owner(s.ownedBy.Load()) }

// Prepare converts one executor segment into DDA parameters and writes
// them into the slot, then flips ownership to the loader. Calling it
// while the loader still owns the slot is a fatal assertion, surfaced as
// a bool return rather than a panic so the caller can latch it.
func (s *Slot) Prepare(seg execstate.Segment) (ok bool, err error) {
	if s.Owner() != OwnedByExec {
		return false, fmt.Errorf("prep: slot owned by loader, not exec")
	}

	durationMicros := seg.DurationMinutes * 60_000_000.0
	ddaTicks := int64(durationMicros * s.sys.DDARate / 1_000_000.0)
	if ddaTicks < 1 {
		ddaTicks = 1
	}
	s.ddaTicks = ddaTicks
	s.isDwell = false

	steps := s.mapper.Steps(seg.Travel)
	for i, st := range steps {
		var mp MotorPrep
		mp.StepSign = kinematics.StepSign(st)
		mp.Direction = kinematics.Direction(st, s.motorCfg[i].Polarity)
		if s.haveLast[i] {
			mp.DirectionChanged = mp.Direction != s.lastDirection[i]
		}
		s.lastDirection[i] = mp.Direction
		s.haveLast[i] = true

		abs := st
		if abs < 0 {
			abs = -abs
		}
		mp.SubstepIncrement = abs * s.sys.DDASubsteps / float64(ddaTicks)
		s.motors[i] = mp
	}

	s.ownedBy.Store(int32(OwnedByLoader))
	return true, nil
}

// PrepareDwell writes a step-free segment: zero substep increment for
// every motor, tick count derived from the dwell duration. The loader
// times it out without pulsing.
func (s *Slot) PrepareDwell(seconds float64) (ok bool, err error) {
	if s.Owner() != OwnedByExec {
		return false, fmt.Errorf("prep: slot owned by loader, not exec")
	}
	ddaTicks := int64(seconds * s.sys.DDARate)
	if ddaTicks < 1 {
		ddaTicks = 1
	}
	s.ddaTicks = ddaTicks
	s.isDwell = true
	for i := range s.motors {
		s.motors[i] = MotorPrep{Direction: s.lastDirection[i]}
	}
	s.ownedBy.Store(int32(OwnedByLoader))
	return true, nil
}

// Take is called by the loader to pick up a prepared segment, flipping
// ownership back to the producer. Returns ok=false if nothing is
// prepared yet — the loader then runs a null segment until the producer
// catches up.
func (s *Slot) Take() (ticks int64, motors []MotorPrep, dwell bool, ok bool) {
	if s.Owner() != OwnedByLoader {
		return 0, nil, false, false
	}
	out := make([]MotorPrep, len(s.motors))
	copy(out, s.motors)
	ticks, dwell = s.ddaTicks, s.isDwell
	s.ownedBy.Store(int32(OwnedByExec))
	return ticks, out, dwell, true
}

// Reset discards any prepared segment and returns ownership to the
// producer, clearing the remembered directions. Used on abort.
func (s *Slot) Reset() {
	s.ddaTicks = 0
	s.isDwell = false
	for i := range s.motors {
		s.motors[i] = MotorPrep{}
		s.lastDirection[i] = false
		s.haveLast[i] = false
	}
	s.ownedBy.Store(int32(OwnedByExec))
}

// NumMotors returns how many motors this slot describes.
func (s *Slot) NumMotors() int { return len(s.motors) }
