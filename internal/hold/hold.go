// Package hold implements the feedhold / cycle-start state machine and
// the hold replan that converts in-flight motion into a controlled brake
// to zero, parking the machine at a resumable hold point.
package hold

import (
	"sync"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/planner"
)

// State is a feedhold state machine position.
type State int

const (
	Off State = iota
	Sync
	Plan
	Decel
	Hold
	EndHold
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Sync:
		return "sync"
	case Plan:
		return "plan"
	case Decel:
		return "decel"
	case Hold:
		return "hold"
	case EndHold:
		return "end_hold"
	default:
		return "unknown"
	}
}

// BrakePlan is the braking instruction the hold replan hands to the
// segment executor: replace the rest of the latched profile with a single
// tail of TailLength ending at ExitVelocity. Final marks the ramp that
// completes the hold, whose end parks the machine instead of freeing the
// block.
type BrakePlan struct {
	TailLength   float64
	ExitVelocity float64
	Final        bool
}

// Machine is the feedhold/cycle-start state machine, shared between the
// background loop (which runs the hold replan) and the executor pump
// (which observes segment boundaries and the hold point).
type Machine struct {
	mu    sync.Mutex
	state State

	holdPointIndex int
	haveHoldPoint  bool
}

// NewMachine constructs an idle (Off) feedhold machine.
func NewMachine() *Machine {
	return &Machine{state: Off}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RequestFeedhold moves Off to Sync. A no-op if a hold is already in
// progress.
func (m *Machine) RequestFeedhold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Off {
		m.state = Sync
	}
}

// ObserveSegmentBoundary is called by the executor pump at every segment
// completion: a pending hold request advances from Sync to Plan once the
// current segment has finished cleanly.
func (m *Machine) ObserveSegmentBoundary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Sync {
		m.state = Plan
	}
}

// ReachedHoldPoint is called by the executor pump once deceleration has
// completed and execution has arrived at the gated block.
func (m *Machine) ReachedHoldPoint() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Decel {
		m.state = Hold
	}
}

// HoldImmediately completes a hold without a deceleration phase, for a
// feedhold requested while no motion is in flight.
func (m *Machine) HoldImmediately() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Plan || m.state == Sync {
		m.state = Hold
	}
}

// CycleStart moves Hold to EndHold.
func (m *Machine) CycleStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Hold {
		m.state = EndHold
	}
}

// Resume clears the hold-point gate, replans the queue for motion
// accelerating away from rest, and returns to Off. Only meaningful in
// EndHold.
func (m *Machine) Resume(p *planner.Planner) {
	m.mu.Lock()
	if m.state != EndHold {
		m.mu.Unlock()
		return
	}
	if m.haveHoldPoint {
		b := p.Ring().At(m.holdPointIndex)
		b.HoldPoint = false
		m.haveHoldPoint = false
	}
	m.state = Off
	m.mu.Unlock()

	p.ReplanResume()
}

// Reset forces the machine back to Off and drops any hold point, for
// abort.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Off
	m.haveHoldPoint = false
}

// NeedsReplan reports whether the background loop should run ReplanHold
// on this tick.
func (m *Machine) NeedsReplan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Plan
}

// ReplanHold converts the queue into a braking chain. currentVelocity is
// the executor's segment velocity, remainingLength the distance from the
// runtime position to the end of the running block.
//
// If the brake-to-zero fits inside the running block, the block is
// rewritten in place as the unexecuted remainder (entering from rest) and
// gated as the hold point; the returned plan brakes the executor to zero
// over the braking length and parks. Otherwise the executor brakes as
// hard as the running block allows and the queued blocks are re-profiled
// to carry the deceleration to zero, with the first block past the stop
// gated.
//
// The second return is false when there was nothing to replan (the
// machine holds immediately).
func (m *Machine) ReplanHold(p *planner.Planner, currentVelocity, remainingLength float64) (BrakePlan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Plan {
		return BrakePlan{}, false
	}

	ring := p.Ring()
	running := ring.Tail()
	if running == nil {
		m.state = Hold
		return BrakePlan{}, false
	}

	brakingLength := planner.TargetLength(currentVelocity, 0, running.Jerk)

	if brakingLength <= remainingLength {
		// The remainder past the braking distance becomes the hold-point
		// block, re-profiled to start from rest, so cycle-start finishes
		// the move to its original target.
		running.Length = remainingLength - brakingLength
		plannedExit := running.ExitVelocity
		p.ResolveBlock(running, 0, running.CruiseVmax, plannedExit)
		running.HoldPoint = true
		running.Replannable = false
		m.holdPointIndex = running.Index
		m.haveHoldPoint = true
		m.state = Decel

		m.rechainAfter(p, running)
		return BrakePlan{TailLength: brakingLength, ExitVelocity: 0, Final: true}, true
	}

	// Not enough room in the running block: brake as hard as its length
	// allows, then carry the deceleration through the queued blocks until
	// it reaches zero.
	exitRun := currentVelocity - planner.DeltaVmax(remainingLength, running.CubeRootJerk)
	if exitRun < 0 {
		exitRun = 0
	}

	vIn := exitRun
	stopIndex := running.Index
	visited := false
	ring.ForwardFrom(running.Nx, func(b *block.Block) bool {
		target := vIn - planner.DeltaVmax(b.Length, b.CubeRootJerk)
		if target < 0 {
			target = 0
		}
		p.ResolveBlock(b, vIn, vIn, target)
		b.Replannable = false
		vIn = b.ExitVelocity
		stopIndex = b.Index
		visited = true
		return vIn > 0
	})
	if vIn > 0 && visited {
		// The whole queue is shorter than the braking distance: force the
		// last block to a stop even though its profile degrades. A feed
		// this far past the jerk budget should have been rejected long
		// before this path.
		last := ring.At(stopIndex)
		p.ResolveBlock(last, last.EntryVelocity, last.EntryVelocity, 0)
	}

	// Gate the first block past the stop, if one is queued.
	gate := ring.At(ring.At(stopIndex).Nx)
	if gate.State == block.Queued || gate.State == block.Pending {
		gate.HoldPoint = true
		gate.Replannable = false
		m.holdPointIndex = gate.Index
		m.haveHoldPoint = true
	} else {
		m.haveHoldPoint = false
	}

	m.state = Decel
	return BrakePlan{TailLength: remainingLength, ExitVelocity: exitRun, Final: false}, true
}

// rechainAfter restores entry/exit continuity for the blocks queued
// behind a re-profiled block, walking forward until the existing plan is
// already consistent.
func (m *Machine) rechainAfter(p *planner.Planner, from *block.Block) {
	vIn := from.ExitVelocity
	p.Ring().ForwardFrom(from.Nx, func(b *block.Block) bool {
		if vIn >= b.EntryVelocity-1e-9 {
			return false
		}
		p.ResolveBlock(b, vIn, b.CruiseVelocity, b.ExitVelocity)
		vIn = b.ExitVelocity
		return true
	})
}

// HoldPointIndex returns the ring index of the block gating resumption,
// valid only while a hold point is set.
func (m *Machine) HoldPointIndex() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdPointIndex, m.haveHoldPoint
}
