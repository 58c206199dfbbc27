package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/dda"
	"github.com/tinygo-motion/motioncore/internal/hold"
	"github.com/tinygo-motion/motioncore/internal/planner"
	"github.com/tinygo-motion/motioncore/internal/status"
)

func testConfig() *config.Config {
	return &config.Config{
		Axes:   config.DefaultAxes(),
		Motors: config.DefaultMotors(),
		System: config.SystemConfig{
			CornerAcceleration:         2_000_000,
			NominalSegmentMicroseconds: 5000,
			DDARate:                    50_000,
			DDASubsteps:                5_000_000,
			IdleTimeoutSeconds:         2,
			MinSegmentLength:           0.08,
			DebounceLockoutTicks:       25,
			LimitTickMilliseconds:      10,
		},
	}
}

func testPins(n int) dda.PinMap {
	pins := dda.PinMap{Step: make([]int, n), Dir: make([]int, n), Enable: make([]int, n)}
	for i := 0; i < n; i++ {
		pins.Step[i], pins.Dir[i], pins.Enable[i] = 2+i*3, 3+i*3, 4+i*3
	}
	return pins
}

func testSystem() *MotionSystem {
	cfg := testConfig()
	return New(cfg, nil, nil, testPins(len(cfg.Motors)))
}

// runToIdle single-steps ExecMove until the system goes idle, draining
// every planned block without a real DDA ticker — the same cooperative
// single-step path a test harness would use (system.go's doc comment on
// ExecMove).
func runToIdle(t *testing.T, m *MotionSystem) {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		st, err := m.ExecMove()
		require.NoError(t, err)
		if st == status.Noop && !m.IsBusy() {
			return
		}
	}
	t.Fatal("system did not reach idle within the iteration budget")
}

func TestMotionSystem_PlanLine_ThenExecMoveDrainsIt(t *testing.T) {
	m := testSystem()

	st, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	assert.True(t, m.IsBusy())

	runToIdle(t, m)

	assert.False(t, m.IsBusy())
	assert.InDelta(t, 10, m.RuntimePosition(0), 1.0)
}

func TestMotionSystem_PlanLine_RejectsZeroLength(t *testing.T) {
	m := testSystem()

	st, err := m.PlanLine([6]float64{}, 1.0)

	assert.Equal(t, status.ZeroLength, st)
	assert.Error(t, err)
}

func TestMotionSystem_PlanDwell_ThenDrains(t *testing.T) {
	m := testSystem()

	st, err := m.PlanDwell(0.01)
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)

	runToIdle(t, m)

	assert.False(t, m.IsBusy())
}

func TestMotionSystem_SetAxisPosition_ForcesPlannerAndRuntime(t *testing.T) {
	m := testSystem()

	m.SetAxisPosition([6]float64{5, 5, 5, 0, 0, 0})

	assert.Equal(t, 5.0, m.RuntimePosition(0))
	assert.Equal(t, 5.0, m.RuntimePosition(1))
	assert.Equal(t, 5.0, m.RuntimePosition(2))
	assert.Equal(t, [6]float64{5, 5, 5, 0, 0, 0}, m.planner.Position())
}

func TestMotionSystem_FlushPlanner_ClearsQueue(t *testing.T) {
	m := testSystem()
	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)

	m.FlushPlanner()

	assert.Equal(t, block.Empty, m.planner.Ring().At(0).State)
}

func TestMotionSystem_Panic_LatchesAndBlocksFurtherPlanning(t *testing.T) {
	m := testSystem()

	m.Panic("stepper assertion: test")

	panicked, reason := m.Panicked()
	assert.True(t, panicked)
	assert.Equal(t, "stepper assertion: test", reason)

	st, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	assert.Equal(t, status.PlannerAssertion, st)
	assert.Error(t, err)

	st, err = m.ExecMove()
	assert.Equal(t, status.StepperAssertion, st)
	assert.Error(t, err)
}

func TestMotionSystem_Feedhold_CycleStart_RoundTrip(t *testing.T) {
	m := testSystem()
	_, err := m.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)

	assert.Equal(t, hold.Off, m.HoldState())

	m.Feedhold()
	assert.Equal(t, hold.Sync, m.HoldState())

	// pumpExecOnce is the production executor-pump path; one pass finishes
	// the current segment and lets the hold machine observe the boundary.
	m.pumpExecOnce()
	assert.Equal(t, hold.Plan, m.HoldState())

	m.ReplanHold()
	assert.Equal(t, hold.Decel, m.HoldState())
}

func TestMotionSystem_OnLimitEdge_NonHomingAborts(t *testing.T) {
	m := testSystem()
	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)

	m.OnLimitEdge(0)

	assert.Equal(t, block.Empty, m.planner.Ring().At(0).State, "an emergency stop must flush the queue")
	assert.True(t, m.ShutdownLatched())

	st, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	assert.Equal(t, status.PlannerAssertion, st, "planning must be refused while shut down")
	assert.Error(t, err)

	m.Reset()
	assert.False(t, m.ShutdownLatched())
	st, err = m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
}

func TestMotionSystem_OnLimitEdge_HomingRequestsFeedhold(t *testing.T) {
	m := testSystem()
	m.SetHoming(true)
	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)

	m.OnLimitEdge(0)

	assert.Equal(t, hold.Sync, m.HoldState())
}

// eightyStepConfig is a single-axis setup at 80 steps/mm (1.8 deg/step,
// 2 microsteps, 5mm/rev).
func eightyStepConfig() *config.Config {
	cfg := testConfig()
	for i := range cfg.Motors {
		cfg.Motors[i].Microsteps = 2
	}
	return cfg
}

func TestMotionSystem_ShortMove_StepCountCloses(t *testing.T) {
	cfg := eightyStepConfig()
	m := New(cfg, nil, nil, testPins(len(cfg.Motors)))

	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 0.05)
	require.NoError(t, err)

	runToIdle(t, m)

	assert.InDelta(t, 10, m.RuntimePosition(0), 0.1)
	steps := m.Snapshot().Metrics.StepsIssued
	assert.InDelta(t, 800, float64(steps), 2, "10mm at 80 steps/mm must issue 800 pulses within accumulator carry")
}

func TestMotionSystem_CollinearMoves_VelocitiesMatchAtJunction(t *testing.T) {
	m := testSystem()

	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 0.05)
	require.NoError(t, err)
	_, err = m.PlanLine([6]float64{20, 0, 0, 0, 0, 0}, 0.05)
	require.NoError(t, err)

	first := m.planner.Ring().At(0)
	second := m.planner.Ring().At(1)

	assert.InDelta(t, first.ExitVelocity, second.EntryVelocity, 1e-9,
		"adjacent blocks must agree on the junction velocity")
	assert.InDelta(t, 200, first.ExitVelocity, 1e-6,
		"collinear moves at the same feed carry the full cruise velocity through the join")
	assert.Zero(t, second.ExitVelocity, "the last block must plan to a stop")
}

func TestMotionSystem_RightAngleCorner_JunctionBoundsExit(t *testing.T) {
	m := testSystem()

	// Fast enough that the corner, not the feed rate, limits the join.
	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 0.001)
	require.NoError(t, err)
	_, err = m.PlanLine([6]float64{10, 10, 0, 0, 0, 0}, 0.001)
	require.NoError(t, err)

	junction := planner.JunctionVelocity(
		[6]float64{1, 0, 0, 0, 0, 0},
		[6]float64{0, 1, 0, 0, 0, 0},
		m.cfg.Axes, m.cfg.System.CornerAcceleration)
	require.Less(t, junction, 10000.0, "test setup: the corner must bind below the cruise velocity")

	first := m.planner.Ring().At(0)
	assert.InDelta(t, junction, first.ExitVelocity, 1e-6)
	assert.InDelta(t, junction, m.planner.Ring().At(1).EntryVelocity, 1e-6)
}

func TestMotionSystem_RoundTrip_ReturnsToOrigin(t *testing.T) {
	m := testSystem()

	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 0.05)
	require.NoError(t, err)
	runToIdle(t, m)
	_, err = m.PlanLine([6]float64{0, 0, 0, 0, 0, 0}, 0.05)
	require.NoError(t, err)
	runToIdle(t, m)

	assert.InDelta(t, 0, m.RuntimePosition(0), 0.1,
		"an out-and-back pair must return the runtime to its origin")
}

func TestMotionSystem_RingSaturation(t *testing.T) {
	m := testSystem()

	target := 0.0
	for i := 0; i < 32; i++ {
		target += 1.0
		st, err := m.PlanLine([6]float64{target, 0, 0, 0, 0, 0}, 0.001)
		require.NoError(t, err, "move %d", i)
		require.Equal(t, status.Ok, st, "the pool must accept as many blocks as it has slots")
	}

	st, err := m.PlanLine([6]float64{target + 1, 0, 0, 0, 0, 0}, 0.001)
	assert.Equal(t, status.QueueFull, st)
	assert.Error(t, err)

	// Drain one block, which must re-open exactly one slot.
	for i := 0; i < 1_000_000; i++ {
		var s Status
		s, err = m.ExecMove()
		require.NoError(t, err)
		if s == status.Ok {
			break
		}
		require.NotEqual(t, status.Noop, s, "the queue cannot drain to empty before one block completes")
	}

	st, err = m.PlanLine([6]float64{target + 1, 0, 0, 0, 0, 0}, 0.001)
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
}

func TestMotionSystem_FeedholdMidMove_DeceleratesAndResumes(t *testing.T) {
	m := testSystem()

	_, err := m.PlanLine([6]float64{100, 0, 0, 0, 0, 0}, 0.01)
	require.NoError(t, err)

	// Run to roughly the middle of the move.
	for i := 0; i < 1_000_000 && m.RuntimePosition(0) < 50; i++ {
		_, err = m.ExecMove()
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, m.RuntimePosition(0), 50.0)

	m.Feedhold()
	assert.Equal(t, hold.Sync, m.HoldState())

	// One pump pass finishes the current segment; the background replan
	// then commits the braking chain.
	_, err = m.ExecMove()
	require.NoError(t, err)
	assert.Equal(t, hold.Plan, m.HoldState())
	m.ReplanHold()
	assert.Equal(t, hold.Decel, m.HoldState())

	for i := 0; i < 1_000_000 && m.HoldState() != hold.Hold; i++ {
		_, err = m.ExecMove()
		require.NoError(t, err)
	}
	require.Equal(t, hold.Hold, m.HoldState())

	heldAt := m.RuntimePosition(0)
	assert.Greater(t, heldAt, 50.0)
	assert.Less(t, heldAt, 100.0, "the hold must park before the original target")

	m.CycleStart()
	assert.Equal(t, hold.Off, m.HoldState())

	runToIdle(t, m)
	assert.InDelta(t, 100, m.RuntimePosition(0), 1.0,
		"cycle start must finish the interrupted move to its original target")
}

func TestMotionSystem_Snapshot_ReflectsState(t *testing.T) {
	m := testSystem()
	_, err := m.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0)
	require.NoError(t, err)

	snap := m.Snapshot()

	assert.NotEmpty(t, snap.SessionID)
	assert.True(t, snap.Busy)
	assert.False(t, snap.Panicked)
	assert.Equal(t, hold.Off, snap.HoldState)
}
