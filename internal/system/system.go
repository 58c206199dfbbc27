// Package system wires the planner, segment executor, preparer, DDA
// runtime, feedhold machine, and limit-switch dispatcher into a single
// MotionSystem root context: the one place that owns every motion
// singleton as a struct field rather than a package-level global.
package system

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/dda"
	"github.com/tinygo-motion/motioncore/internal/engine"
	"github.com/tinygo-motion/motioncore/internal/execstate"
	"github.com/tinygo-motion/motioncore/internal/hal"
	"github.com/tinygo-motion/motioncore/internal/hold"
	"github.com/tinygo-motion/motioncore/internal/kinematics"
	"github.com/tinygo-motion/motioncore/internal/limit"
	"github.com/tinygo-motion/motioncore/internal/logger"
	"github.com/tinygo-motion/motioncore/internal/planner"
	"github.com/tinygo-motion/motioncore/internal/prep"
	"github.com/tinygo-motion/motioncore/internal/status"
)

// Status is re-exported so callers of MotionSystem's exported methods
// never need to import internal/status directly.
type Status = status.Status

// Metrics is the plain-data counter set exposed through Snapshot.
type Metrics struct {
	SegmentsEmitted int64
	Replans         int64
	DegradedBlocks  int64
	NullSegments    int64
	StepsIssued     int64
}

// Snapshot is the structured status payload: data only, no formatting.
// Rendering it for a serial or network status channel belongs to an
// external layer.
type Snapshot struct {
	SessionID   string
	Position    [6]float64
	Velocity    float64
	HoldState   hold.State
	RingCounts  map[block.State]int
	Busy        bool
	Panicked    bool
	PanicReason string
	Shutdown    bool
	Metrics     Metrics
}

// MotionSystem is the root context tying every motion component together.
type MotionSystem struct {
	sessionID string
	cfg       *config.Config
	log       *zap.Logger

	planner *planner.Planner
	exec    *execstate.Runtime
	slot    *prep.Slot
	ddaRT   *dda.Runtime
	ddaPump *dda.Pump
	holdFSM *hold.Machine
	limitD  *limit.Dispatcher
	mapper  *kinematics.Mapper

	scheduler *engine.Scheduler

	// pendingDecel carries a hold-replan braking instruction from the
	// background level to the executor pump, which applies it at the next
	// segment boundary. That boundary is the only point the executor's
	// latched profile may legally change.
	pendingDecel atomic.Pointer[hold.BrakePlan]

	mu          sync.Mutex
	lastActive  time.Time
	motorsAwake bool

	panicked atomic.Bool
	shutdown atomic.Bool
	panicMu  sync.Mutex
	panicMsg string

	cancel context.CancelFunc
}

// New constructs a MotionSystem from configuration and a GPIO provider
// (a hal.MockHAL in hosted runs and tests, hal.BoardHAL on target
// hardware). fastGPIO optionally carries the direct-register step-pulse
// path and may be nil.
func New(cfg *config.Config, gpio hal.GPIOProvider, fastGPIO hal.GPIOProvider, pins dda.PinMap) *MotionSystem {
	mapper := kinematics.New(cfg.Axes, cfg.Motors)
	nominalSegmentMinutes := cfg.System.NominalSegmentMicroseconds / 1e6 / 60.0
	sessionID := uuid.NewString()

	ringDepth := cfg.System.RingDepth
	if ringDepth < 2 {
		ringDepth = 32
	}

	m := &MotionSystem{
		sessionID:  sessionID,
		cfg:        cfg,
		log:        logger.Get().With(zap.String("session_id", sessionID)),
		planner:    planner.New(ringDepth, cfg.Axes, cfg.System),
		exec:       execstate.NewRuntime(nominalSegmentMinutes),
		mapper:     mapper,
		holdFSM:    hold.NewMachine(),
		limitD:     limit.NewDispatcher(len(cfg.Axes)*2, cfg.System.DebounceLockoutTicks),
		scheduler:  engine.NewScheduler(),
		lastActive: time.Now(),
	}
	m.slot = prep.NewSlot(mapper, cfg.Motors, cfg.System)
	m.ddaRT = dda.NewRuntime(mapper.NumMotors(), cfg.System.DDASubsteps)
	m.ddaPump = dda.NewPump(m.ddaRT, gpio, pins, m.slot, cfg.System.DDARate).WithFastStepGPIO(fastGPIO)
	return m
}

// Start launches the housekeeping schedules and the two pump goroutines
// (ticker-driven DDA, boundary-driven executor), returning the
// errgroup.Group supervising them. Cancelling ctx stops every pump; use
// Close for a full shutdown including the scheduler.
func (m *MotionSystem) Start(ctx context.Context) (*errgroup.Group, error) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.ddaPump.ConfigurePins(); err != nil {
		return nil, err
	}

	housekeeping := time.Duration(m.cfg.System.LimitTickMilliseconds) * time.Millisecond
	if err := m.scheduler.AddInterval("limit-tick", housekeeping, m.limitD.Tick); err != nil {
		return nil, err
	}
	if err := m.scheduler.AddInterval("hold-replan", housekeeping, m.ReplanHold); err != nil {
		return nil, err
	}
	if err := m.scheduler.AddInterval("idle-check", time.Second, m.checkIdle); err != nil {
		return nil, err
	}
	m.scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.ddaPump.Run(gctx)
	})
	g.Go(func() error {
		return m.execPump(gctx)
	})
	return g, nil
}

// Close stops the scheduler and cancels the pump goroutines.
func (m *MotionSystem) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.scheduler.Stop()
}

// execPump is the executor-side pump: it wakes on the DDA pump's
// segment-boundary channel and keeps the prep slot full.
func (m *MotionSystem) execPump(ctx context.Context) error {
	boundary := m.ddaPump.SegmentBoundary()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-boundary:
			m.pumpExecOnce()
		}
	}
}

func (m *MotionSystem) pumpExecOnce() {
	if m.panicked.Load() || m.shutdown.Load() {
		return
	}
	for m.slot.Owner() == prep.OwnedByExec {
		st, _ := m.execStep()
		if st == status.Noop || st == status.StepperAssertion {
			return
		}
		// Ok means a block finished and the next can load; Again means a
		// segment was prepared and the slot-ownership check ends the
		// loop on the next pass.
	}
}

// execStep advances the executor/preparer side of the pipeline by at
// most one segment. The caller guarantees the prep slot is free.
func (m *MotionSystem) execStep() (Status, error) {
	m.holdFSM.ObserveSegmentBoundary()

	if d := m.pendingDecel.Swap(nil); d != nil && !m.exec.Idle() {
		m.exec.BeginHoldDecel(d.TailLength, d.ExitVelocity, d.Final)
	}

	switch m.holdFSM.State() {
	case hold.Hold, hold.EndHold:
		return status.Noop, nil
	}

	if m.exec.Idle() {
		cand := m.planner.Ring().Tail()
		if cand == nil {
			if m.holdFSM.State() == hold.Decel {
				// The braking chain consumed the whole queue.
				m.holdFSM.ReachedHoldPoint()
			}
			return status.Noop, nil
		}
		if cand.HoldPoint && m.holdFSM.State() == hold.Decel {
			m.holdFSM.ReachedHoldPoint()
			return status.Noop, nil
		}
		b := m.planner.Ring().NextToRun()
		if b.Type == block.TypeDwell {
			ok, err := m.slot.PrepareDwell(b.DwellSeconds)
			if !ok {
				m.Panic(err.Error())
				return status.StepperAssertion, status.Errf(status.StepperAssertion, "%v", err)
			}
			m.planner.Ring().Advance()
			m.touchActive()
			return status.Again, nil
		}
		m.exec.Load(b)
	}

	outcome, seg := m.exec.Step()
	switch outcome {
	case execstate.Noop:
		return status.Noop, nil
	case execstate.Done:
		if m.exec.HoldDecelDone() {
			// The block under the run cursor now holds the unexecuted
			// remainder; leaving it in place is what makes the hold
			// resumable.
			m.holdFSM.ReachedHoldPoint()
			return status.Noop, nil
		}
		m.planner.Ring().Advance()
		m.touchActive()
		return status.Ok, nil
	default:
		ok, err := m.slot.Prepare(seg)
		if !ok {
			m.Panic(err.Error())
			return status.StepperAssertion, status.Errf(status.StepperAssertion, "%v", err)
		}
		m.touchActive()
		return status.Again, nil
	}
}

// PlanLine queues a jerk-limited line move. Whether the move uses the
// homing jerk profile is controlled by the sticky flag set through
// SetHoming: homing is a machine cycle, not a per-move option.
func (m *MotionSystem) PlanLine(target [6]float64, durationMinutes float64) (Status, error) {
	if m.panicked.Load() {
		return status.PlannerAssertion, status.Err(status.PlannerAssertion)
	}
	if m.shutdown.Load() {
		return status.PlannerAssertion, status.Errf(status.PlannerAssertion, "emergency shutdown latched; reset required")
	}
	st, err := m.planner.PlanLine(target, durationMinutes, planner.PlanLineOptions{})
	if st == status.Ok {
		m.touchActive()
	}
	return st, err
}

// SetHoming toggles the homing cycle: PlanLine switches to the homing
// jerk profile and the limit dispatcher treats a switch trip as a
// feedhold request instead of an emergency stop.
func (m *MotionSystem) SetHoming(homing bool) {
	m.planner.SetHoming(homing)
	m.limitD.SetHoming(homing)
}

// PlanDwell queues a timed, motion-free pause.
func (m *MotionSystem) PlanDwell(seconds float64) (Status, error) {
	st, err := m.planner.PlanDwell(seconds)
	if st == status.Ok {
		m.touchActive()
	}
	return st, err
}

// PlanStop queues an exact-stop block.
func (m *MotionSystem) PlanStop() (Status, error) { return m.planner.PlanStop() }

// PlanEnd queues a program-end block.
func (m *MotionSystem) PlanEnd() (Status, error) { return m.planner.PlanEnd() }

// SetAxisPosition forces both planner and runtime position without
// queuing a move, for homing and coordinate offsets.
func (m *MotionSystem) SetAxisPosition(position [6]float64) {
	m.planner.SetPosition(position)
	m.exec.SetPosition(position)
}

// ExecMove pumps the pipeline cooperatively for hosts that drive it from
// a main loop instead of the ticker goroutines: any prepared segment is
// first run through the DDA synchronously (standing in for the
// high-priority loader), then the executor advances by one segment.
// Returns Ok when a block completes, Again while one is in flight, Noop
// when there is nothing to do.
func (m *MotionSystem) ExecMove() (Status, error) {
	if m.panicked.Load() {
		return status.StepperAssertion, status.Err(status.StepperAssertion)
	}
	if m.shutdown.Load() {
		return status.Noop, nil
	}
	drained := m.ddaPump.DrainOnce()
	if m.slot.Owner() != prep.OwnedByExec {
		return status.Again, nil
	}
	st, err := m.execStep()
	if st == status.Noop && drained {
		return status.Again, nil
	}
	return st, err
}

// IsBusy reports whether the planner has queued work or the executor is
// mid-block.
func (m *MotionSystem) IsBusy() bool {
	if !m.exec.Idle() {
		return true
	}
	counts := m.planner.Ring().Counts()
	return counts[block.Queued] > 0 || counts[block.Pending] > 0 || counts[block.Running] > 0
}

// FlushPlanner drops all queued moves.
func (m *MotionSystem) FlushPlanner() { m.planner.FlushPlanner() }

// RuntimePosition returns the executor's current position on one axis.
func (m *MotionSystem) RuntimePosition(axis int) float64 {
	if axis < 0 || axis >= len(m.exec.Position()) {
		return math.NaN()
	}
	return m.exec.Position()[axis]
}

// RuntimeVelocity returns the executor's current segment velocity.
func (m *MotionSystem) RuntimeVelocity() float64 { return m.exec.SegmentVelocity() }

// Feedhold requests a graceful, resumable stop.
func (m *MotionSystem) Feedhold() { m.holdFSM.RequestFeedhold() }

// CycleStart resumes motion after a completed hold.
func (m *MotionSystem) CycleStart() {
	m.holdFSM.CycleStart()
	m.holdFSM.Resume(m.planner)
}

// Abort stops motion outright: the queue is flushed and every pipeline
// singleton is reset. The physical position is kept, and the planner's
// position is moved back to it so the next move is planned from where the
// machine actually stopped. Callable from any level.
func (m *MotionSystem) Abort() {
	m.planner.FlushPlanner()
	m.planner.SetPosition(m.exec.Position())
	m.exec.Reset()
	m.slot.Reset()
	m.ddaRT.Reset()
	m.holdFSM.Reset()
	m.pendingDecel.Store(nil)
}

// EmergencyStop aborts and latches the shutdown flag: no planning or
// pulses until Reset.
func (m *MotionSystem) EmergencyStop(reason string) {
	m.shutdown.Store(true)
	m.Abort()
	m.log.Error("emergency stop", zap.String("reason", reason))
}

// Reset clears the emergency-shutdown latch and re-arms the limit
// dispatcher. Assertion panics are not cleared: those require a process
// restart.
func (m *MotionSystem) Reset() {
	m.shutdown.Store(false)
	m.limitD.Reset()
}

// ShutdownLatched reports whether an emergency stop is holding the
// machine down.
func (m *MotionSystem) ShutdownLatched() bool { return m.shutdown.Load() }

// Panic latches the assertion-failure state: once set, planning and
// execution refuse further work and only a process restart recovers.
func (m *MotionSystem) Panic(reason string) {
	m.panicMu.Lock()
	if !m.panicked.Load() {
		m.panicMsg = reason
	}
	m.panicMu.Unlock()
	m.panicked.Store(true)
	m.log.Error("motion core assertion latched", zap.String("reason", reason))
}

// Panicked reports whether an assertion has latched the system.
func (m *MotionSystem) Panicked() (bool, string) {
	m.panicMu.Lock()
	defer m.panicMu.Unlock()
	return m.panicked.Load(), m.panicMsg
}

// ReplanHold drives the feedhold replan from the background level. It is
// a no-op unless the hold machine has reached its planning state, so it
// can run unconditionally on the housekeeping schedule.
func (m *MotionSystem) ReplanHold() {
	if m.exec.Idle() {
		// No segments will arrive to observe the boundary for us.
		m.holdFSM.ObserveSegmentBoundary()
	}
	if !m.holdFSM.NeedsReplan() {
		return
	}

	running := m.planner.Ring().Tail()
	if m.exec.Idle() || running == nil {
		m.holdFSM.HoldImmediately()
		return
	}

	pos := m.exec.Position()
	var sumSq float64
	for i := range pos {
		d := running.Target[i] - pos[i]
		sumSq += d * d
	}
	remaining := math.Sqrt(sumSq)

	if d, ok := m.holdFSM.ReplanHold(m.planner, m.exec.SegmentVelocity(), remaining); ok {
		m.pendingDecel.Store(&d)
	}
}

// HoldState returns the feedhold machine's current state.
func (m *MotionSystem) HoldState() hold.State { return m.holdFSM.State() }

// OnLimitEdge is the limit-switch interrupt entry point: wire a
// hal.GPIOProvider edge-watch callback to this for each switch index.
// During homing a trip requests a feedhold; at any other time it is an
// emergency stop.
func (m *MotionSystem) OnLimitEdge(sw int) {
	switch m.limitD.OnEdge(sw) {
	case limit.ActionFeedhold:
		m.Feedhold()
	case limit.ActionEmergencyStop:
		m.EmergencyStop("limit switch thrown outside homing")
	}
}

// checkIdle de-energizes motors once the system has been idle past the
// configured timeout, honoring each motor's power mode.
func (m *MotionSystem) checkIdle() {
	if m.IsBusy() {
		return
	}
	m.mu.Lock()
	idleFor := time.Since(m.lastActive)
	awake := m.motorsAwake
	m.mu.Unlock()

	if awake && idleFor >= time.Duration(m.cfg.System.IdleTimeoutSeconds*float64(time.Second)) {
		for i, mc := range m.cfg.Motors {
			if mc.PowerMode == config.PowerAlwaysOn {
				continue
			}
			m.ddaRT.SetMotorPower(i, dda.PowerOff)
		}
		m.mu.Lock()
		m.motorsAwake = false
		m.mu.Unlock()
	}
}

func (m *MotionSystem) touchActive() {
	m.mu.Lock()
	wake := !m.motorsAwake
	m.lastActive = time.Now()
	m.motorsAwake = true
	m.mu.Unlock()

	if wake {
		for i, mc := range m.cfg.Motors {
			if mc.PowerMode == config.PowerAlwaysOff {
				continue
			}
			m.ddaRT.SetMotorPower(i, dda.PowerOn)
		}
	}
}

// Snapshot returns the structured status payload.
func (m *MotionSystem) Snapshot() Snapshot {
	panicked, reason := m.Panicked()
	replans, degraded := m.planner.Stats()
	return Snapshot{
		SessionID:   m.sessionID,
		Position:    m.exec.Position(),
		Velocity:    m.exec.SegmentVelocity(),
		HoldState:   m.holdFSM.State(),
		RingCounts:  m.planner.Ring().Counts(),
		Busy:        m.IsBusy(),
		Panicked:    panicked,
		PanicReason: reason,
		Shutdown:    m.shutdown.Load(),
		Metrics: Metrics{
			SegmentsEmitted: m.exec.SegmentsEmitted(),
			Replans:         replans,
			DegradedBlocks:  degraded,
			NullSegments:    m.ddaRT.NullSegments(),
			StepsIssued:     m.ddaRT.StepsIssued(),
		},
	}
}
