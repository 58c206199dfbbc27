package hold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/planner"
)

func testPlanner() *planner.Planner {
	axes := config.DefaultAxes()
	sys := config.SystemConfig{CornerAcceleration: 2_000_000, MinSegmentLength: 0.08}
	return planner.New(8, axes, sys)
}

func TestMachine_InitialStateIsOff(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, Off, m.State())
}

func TestMachine_RequestFeedhold_OffToSync(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()
	assert.Equal(t, Sync, m.State())
}

func TestMachine_RequestFeedhold_NoopIfAlreadyHolding(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary() // -> Plan
	m.RequestFeedhold()
	assert.Equal(t, Plan, m.State(), "a second feedhold request mid-hold must not reset progress")
}

func TestMachine_ObserveSegmentBoundary_SyncToPlan(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()

	m.ObserveSegmentBoundary()

	assert.Equal(t, Plan, m.State())
}

func TestMachine_ObserveSegmentBoundary_NoopWhenNotSync(t *testing.T) {
	m := NewMachine()
	m.ObserveSegmentBoundary()
	assert.Equal(t, Off, m.State())
}

func TestMachine_NeedsReplan(t *testing.T) {
	m := NewMachine()
	assert.False(t, m.NeedsReplan())

	m.RequestFeedhold()
	m.ObserveSegmentBoundary()

	assert.True(t, m.NeedsReplan())
}

func TestMachine_ReplanHold_ShortensRunningBlockWhenBrakingFits(t *testing.T) {
	p := testPlanner()
	_, err := p.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0, planner.PlanLineOptions{})
	require.NoError(t, err)

	running := p.Ring().At(0)

	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary()

	m.ReplanHold(p, 10.0, running.Length)

	assert.Equal(t, Decel, m.State())
	idx, have := m.HoldPointIndex()
	require.True(t, have)
	assert.Equal(t, running.Index, idx)
	assert.True(t, p.Ring().At(idx).HoldPoint)
	assert.Zero(t, p.Ring().At(idx).ExitVelocity)
}

func TestMachine_ReplanHold_WalksForwardWhenBrakingExceedsRunningBlock(t *testing.T) {
	p := testPlanner()
	for i := 1; i <= 3; i++ {
		_, err := p.PlanLine([6]float64{float64(10 * i), 0, 0, 0, 0, 0}, 0.001, planner.PlanLineOptions{})
		require.NoError(t, err)
	}

	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary()

	// Braking from 5000 takes ~5mm; only 2mm remain in the running block,
	// so the deceleration must spill into the queue.
	decel, ok := m.ReplanHold(p, 5000.0, 2.0)

	require.True(t, ok)
	assert.Equal(t, Decel, m.State())
	assert.False(t, decel.Final, "the running block cannot finish the hold on its own")
	assert.Equal(t, 2.0, decel.TailLength)
	assert.Greater(t, decel.ExitVelocity, 0.0)

	next := p.Ring().At(1)
	assert.False(t, next.Replannable)
	assert.Zero(t, next.ExitVelocity, "the first queued block must carry the brake to zero")

	idx, have := m.HoldPointIndex()
	require.True(t, have)
	assert.Equal(t, 2, idx, "the block past the stop is gated")
	assert.True(t, p.Ring().At(2).HoldPoint)
}

func TestMachine_ReplanHold_NoopUnlessInPlanState(t *testing.T) {
	p := testPlanner()
	_, err := p.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0, planner.PlanLineOptions{})
	require.NoError(t, err)

	m := NewMachine()
	m.ReplanHold(p, 10.0, 1000)

	assert.Equal(t, Off, m.State())
	_, have := m.HoldPointIndex()
	assert.False(t, have)
}

func TestMachine_ReachedHoldPoint_DecelToHold(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary()
	p := testPlanner()
	_, err := p.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0, planner.PlanLineOptions{})
	require.NoError(t, err)
	m.ReplanHold(p, 10.0, 1000)
	require.Equal(t, Decel, m.State())

	m.ReachedHoldPoint()

	assert.Equal(t, Hold, m.State())
}

func TestMachine_CycleStart_HoldToEndHold(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary()
	p := testPlanner()
	_, err := p.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0, planner.PlanLineOptions{})
	require.NoError(t, err)
	m.ReplanHold(p, 10.0, 1000)
	m.ReachedHoldPoint()

	m.CycleStart()

	assert.Equal(t, EndHold, m.State())
}

func TestMachine_Resume_ClearsHoldPointAndReturnsToOff(t *testing.T) {
	m := NewMachine()
	m.RequestFeedhold()
	m.ObserveSegmentBoundary()
	p := testPlanner()
	_, err := p.PlanLine([6]float64{1000, 0, 0, 0, 0, 0}, 1.0, planner.PlanLineOptions{})
	require.NoError(t, err)
	m.ReplanHold(p, 10.0, 1000)
	m.ReachedHoldPoint()
	m.CycleStart()
	idx, _ := m.HoldPointIndex()

	m.Resume(p)

	assert.Equal(t, Off, m.State())
	assert.False(t, p.Ring().At(idx).HoldPoint)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "off", Off.String())
	assert.Equal(t, "sync", Sync.String())
	assert.Equal(t, "plan", Plan.String())
	assert.Equal(t, "decel", Decel.String())
	assert.Equal(t, "hold", Hold.String())
	assert.Equal(t, "end_hold", EndHold.String())
}
