package planner

import (
	"math"
	"sync"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/status"
)

// Planner is the background-priority entry point of the motion core: it
// owns the block ring, the planner position cursor, and the look-ahead
// replan that runs on every commit.
type Planner struct {
	mu sync.Mutex

	ring *block.Ring
	axes []config.AxisConfig
	sys  config.SystemConfig

	position [6]float64 // where the planner thinks the tool is, axis-space

	homing        bool
	replanCount   int64
	degradedCount int64
}

// New constructs a Planner over a fresh ring of the given depth.
func New(ringDepth int, axes []config.AxisConfig, sys config.SystemConfig) *Planner {
	return &Planner{
		ring: block.NewRing(ringDepth),
		axes: axes,
		sys:  sys,
	}
}

// Ring exposes the underlying ring for the executor and for invariant
// checks.
func (p *Planner) Ring() *block.Ring { return p.ring }

// SetHoming toggles whether subsequent PlanLine calls use each axis's
// homing jerk instead of its normal max jerk. Homing is a machine cycle,
// not a property of an individual move, so the flag is sticky.
func (p *Planner) SetHoming(homing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.homing = homing
}

// Position returns the current planner position.
func (p *Planner) Position() [6]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SetPosition forces the planner position without queuing a move, for
// homing and coordinate-system offsets.
func (p *Planner) SetPosition(pos [6]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
}

// FlushPlanner drops all queued moves. The planner position is left
// untouched; callers that also want position reset call SetPosition
// separately.
func (p *Planner) FlushPlanner() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring.Flush()
}

// PlanLineOptions carries the optional per-call modifiers of PlanLine.
type PlanLineOptions struct {
	ExactStop bool
	Homing    bool
}

// PlanLine accepts one line from the G-code front-end: reserve a ring
// slot, compute the move's geometry and velocity caps, run the look-ahead
// replan across the still-replannable tail of the queue, and commit.
func (p *Planner) PlanLine(target [6]float64, durationMinutes float64, opts PlanLineOptions) (status.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if math.IsNaN(durationMinutes) {
		return status.MoveTimeNaN, status.Err(status.MoveTimeNaN)
	}
	if math.IsInf(durationMinutes, 0) {
		return status.MoveTimeInfinite, status.Err(status.MoveTimeInfinite)
	}
	if durationMinutes < epsilon {
		return status.ZeroLength, status.Err(status.ZeroLength)
	}

	b, ok := p.ring.Reserve()
	if !ok {
		return status.QueueFull, status.Err(status.QueueFull)
	}

	b.ComputeGeometry(p.position, target)
	if b.Length < epsilon {
		p.ring.Abandon(b)
		return status.ZeroLength, status.Err(status.ZeroLength)
	}

	b.Type = block.TypeJerkLimitedLine
	b.Homing = opts.Homing || p.homing
	b.ExactStop = opts.ExactStop
	b.Replannable = !opts.ExactStop
	b.CruiseVelocityRequested = b.Length / durationMinutes

	b.Jerk, b.RecipJerk, b.CubeRootJerk = CompositeJerk(b.Unit, p.axes, b.Homing)

	// Corner cap against the previous move. A non-motion predecessor
	// (dwell, stop) means the machine comes to rest first, so the corner
	// cap is zero; no predecessor at all leaves the cap open (the forward
	// pass still starts the chain from rest).
	prev := p.ring.At(b.Pv)
	junctionVmax := math.MaxFloat64
	if prev.State != block.Empty {
		if prev.IsMotion() {
			junctionVmax = JunctionVelocity(prev.Unit, b.Unit, p.axes, p.sys.CornerAcceleration)
		} else {
			junctionVmax = 0
		}
	}

	exactStopCap := math.MaxFloat64
	if opts.ExactStop {
		exactStopCap = 0
	}

	b.CruiseVmax = b.CruiseVelocityRequested
	b.EntryVmax = math.Min(b.CruiseVmax, math.Min(junctionVmax, exactStopCap))
	b.DeltaVmax = DeltaVmax(b.Length, b.CubeRootJerk)
	b.ExitVmax = math.Min(b.CruiseVmax, math.Min(b.EntryVmax+b.DeltaVmax, exactStopCap))

	b.EntryVelocity = b.EntryVmax
	b.CruiseVelocity = b.CruiseVmax
	b.ExitVelocity = b.ExitVmax

	p.ring.Commit(b)
	p.position = target

	if opts.ExactStop {
		// Non-replannable from birth, so the look-ahead will never shape
		// it: solve the rest-to-rest profile here.
		p.resolveBlock(b, 0, b.CruiseVmax, 0)
	}
	p.replan(b.Index)

	return status.Ok, nil
}

// PlanDwell queues a dwell block: no motion, just a timed pause.
func (p *Planner) PlanDwell(seconds float64) (status.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seconds < epsilon || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return status.ZeroLength, status.Err(status.ZeroLength)
	}

	b, ok := p.ring.Reserve()
	if !ok {
		return status.QueueFull, status.Err(status.QueueFull)
	}

	b.Type = block.TypeDwell
	b.DwellSeconds = seconds
	b.Replannable = false
	b.Target = p.position
	b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity = 0, 0, 0

	p.ring.Commit(b)
	return status.Ok, nil
}

// PlanStop queues an exact-stop block.
func (p *Planner) PlanStop() (status.Status, error) {
	return p.planControl(block.TypeStop)
}

// PlanEnd queues a program-end block.
func (p *Planner) PlanEnd() (status.Status, error) {
	return p.planControl(block.TypeEnd)
}

func (p *Planner) planControl(t block.Type) (status.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.ring.Reserve()
	if !ok {
		return status.QueueFull, status.Err(status.QueueFull)
	}
	b.Type = t
	b.Target = p.position
	b.ExactStop = true
	b.Replannable = false
	b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity = 0, 0, 0

	p.ring.Commit(b)
	return status.Ok, nil
}

// ResolveBlock recomputes a block's profile for an imposed entry/cruise/
// exit triple, clamping the exit to what the block's length and jerk can
// reach, and reapplies sliver absorption. The feedhold replan uses this
// to force a braking chain onto queued blocks; the normal look-ahead
// derives velocities from the caps instead.
func (p *Planner) ResolveBlock(b *block.Block, entry, cruise, exit float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolveBlock(b, entry, cruise, exit)
}

func (p *Planner) resolveBlock(b *block.Block, entry, cruise, exit float64) {
	maxExit := entry + DeltaVmax(b.Length, b.CubeRootJerk)
	if exit > maxExit {
		exit = maxExit
	}
	if cruise < entry {
		cruise = entry
	}
	if cruise < exit {
		cruise = exit
	}

	result := SolveTrapezoid(entry, cruise, exit, b.Length, b.Jerk, b.CubeRootJerk)
	result = AbsorbSlivers(result, p.sys.MinSegmentLength)

	b.EntryVelocity = entry
	b.CruiseVelocity = result.Cruise
	b.ExitVelocity = result.ExitVelocity
	b.HeadLength = result.HeadLength
	b.BodyLength = result.BodyLength
	b.TailLength = result.TailLength
	if result.Degraded {
		p.degradedCount++
	}
}

// ReplanResume re-arms replanning across the queued blocks and re-runs
// the look-ahead. Used when motion resumes from a feedhold: the hold
// replan froze the queue into a braking profile, and the resume restores
// a normal profile accelerating away from rest.
func (p *Planner) ReplanResume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	head := p.ring.Head()
	if head == nil {
		return
	}
	p.ring.ForwardFrom(p.ring.ReadIndex(), func(b *block.Block) bool {
		if b.State != block.Running && b.IsMotion() && !b.ExactStop {
			b.Replannable = true
		}
		return true
	})
	p.replan(head.Index)
}

// replan runs the two-pass look-ahead starting at the newest block.
func (p *Planner) replan(newest int) {
	p.replanCount++

	// Backward pass: starting at the newest block and walking toward
	// older ones, compute for each block the maximum velocity it may be
	// entered at and still brake to zero by the end of the chain. Stops
	// at the first non-replannable block (running or exact-stop).
	bf := 0.0
	p.ring.ReplannableFromNewest(newest, func(b *block.Block) bool {
		b.BrakingVelocity = math.Min(b.EntryVmax, TargetVelocity(bf, b.Length, b.CubeRootJerk))
		bf = b.BrakingVelocity
		return true
	})

	// Locate the oldest still-replannable block, then replan forward from
	// there.
	start := newest
	p.ring.ReplannableFromNewest(newest, func(b *block.Block) bool {
		start = b.Index
		return true
	})

	p.forwardPlan(start)
}

// forwardPlan is the forward pass: each block's entry velocity is the
// previous block's exit, its cruise is the cruise cap, and its exit is
// bounded by its own exit cap, the next block's braking and entry caps,
// and the velocity reachable over its length. The trapezoid solver then
// shapes the block. A block whose exit reaches its exit cap is optimal
// and drops out of future replans.
func (p *Planner) forwardPlan(start int) {
	// An Empty predecessor means the chain starts from rest; a live
	// non-replannable one (running or exact-stop) has an exit velocity
	// this pass may not revise.
	pv := p.ring.At(p.ring.At(start).Pv)
	prevExit := 0.0
	if pv.State != block.Empty {
		prevExit = pv.ExitVelocity
	}

	p.ring.ForwardFrom(start, func(b *block.Block) bool {
		if !b.Replannable {
			// Fixed blocks (running, exact-stop, dwell) only contribute
			// their committed exit velocity to the chain.
			prevExit = b.ExitVelocity
			return true
		}
		b.EntryVelocity = math.Min(prevExit, b.EntryVmax)
		b.CruiseVelocity = b.CruiseVmax

		// Past the newest block there is nothing planned, so the chain
		// must be able to stop: an empty successor bounds the exit at
		// zero.
		next := p.ring.At(b.Nx)
		nextBound := 0.0
		if next.State != block.Empty && next.State != block.Loading {
			nextBound = math.Min(next.BrakingVelocity, next.EntryVmax)
		}
		exitCandidate := math.Min(b.ExitVmax, nextBound)
		exitCandidate = math.Min(exitCandidate, b.EntryVelocity+b.DeltaVmax)
		b.ExitVelocity = exitCandidate

		result := SolveTrapezoid(b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity, b.Length, b.Jerk, b.CubeRootJerk)
		result = AbsorbSlivers(result, p.sys.MinSegmentLength)

		b.HeadLength = result.HeadLength
		b.BodyLength = result.BodyLength
		b.TailLength = result.TailLength
		b.CruiseVelocity = result.Cruise
		b.ExitVelocity = result.ExitVelocity
		if result.Degraded {
			p.degradedCount++
		}

		if math.Abs(b.ExitVelocity-b.ExitVmax) < velocityTolerance {
			b.Replannable = false
		}

		prevExit = b.ExitVelocity
		return true
	})
}

// Stats returns lifetime replan/degraded counters.
func (p *Planner) Stats() (replans, degraded int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replanCount, p.degradedCount
}
