package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygo-motion/motioncore/internal/block"
	"github.com/tinygo-motion/motioncore/internal/config"
	"github.com/tinygo-motion/motioncore/internal/status"
)

func testPlanner() *Planner {
	axes := config.DefaultAxes()
	sys := config.SystemConfig{
		CornerAcceleration: 2_000_000,
		MinSegmentLength:   0.08,
	}
	return New(8, axes, sys)
}

func TestPlanner_PlanLine_Basic(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanLine([6]float64{100, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})

	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	assert.Equal(t, [6]float64{100, 0, 0, 0, 0, 0}, p.Position())

	b := p.Ring().At(0)
	assert.Equal(t, block.Queued, b.State)
	assert.InDelta(t, 100, b.Length, 1e-9)
}

func TestPlanner_PlanLine_ZeroLengthRejected(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanLine([6]float64{}, 1.0, PlanLineOptions{})

	assert.Equal(t, status.ZeroLength, st)
	assert.Error(t, err)
}

func TestPlanner_PlanLine_NaNDuration(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, math.NaN(), PlanLineOptions{})

	assert.Equal(t, status.MoveTimeNaN, st)
	assert.Error(t, err)
}

func TestPlanner_PlanLine_InfiniteDuration(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, math.Inf(1), PlanLineOptions{})

	assert.Equal(t, status.MoveTimeInfinite, st)
	assert.Error(t, err)
}

func TestPlanner_PlanLine_QueueFullReturnsQueueFull(t *testing.T) {
	p := New(2, config.DefaultAxes(), config.SystemConfig{CornerAcceleration: 2_000_000, MinSegmentLength: 0.08})

	st, err := p.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	st, err = p.PlanLine([6]float64{20, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)
	assert.Equal(t, status.Ok, st, "a depth-2 ring holds two blocks")

	st, err = p.PlanLine([6]float64{30, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	assert.Equal(t, status.QueueFull, st)
	assert.Error(t, err)
}

func TestPlanner_PlanLine_SingleBlockPlansToRest(t *testing.T) {
	p := testPlanner()

	_, err := p.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 0.05, PlanLineOptions{})
	require.NoError(t, err)

	b := p.Ring().At(0)
	assert.Zero(t, b.EntryVelocity, "a move from rest enters at zero")
	assert.Zero(t, b.ExitVelocity, "the only queued block must brake to zero")
	assert.InDelta(t, 200, b.CruiseVelocity, 1e-9)
}

func TestPlanner_PlanLine_CollinearChain_CarriesVelocityThrough(t *testing.T) {
	p := testPlanner()

	for i := 1; i <= 4; i++ {
		_, err := p.PlanLine([6]float64{float64(10 * i), 0, 0, 0, 0, 0}, 0.05, PlanLineOptions{})
		require.NoError(t, err)
	}

	// Middle blocks cruise straight through; only the first accelerates
	// and only the last brakes.
	for i := 0; i < 3; i++ {
		a, b := p.Ring().At(i), p.Ring().At(i+1)
		assert.InDelta(t, a.ExitVelocity, b.EntryVelocity, 1e-9, "blocks %d/%d must agree at the join", i, i+1)
	}
	assert.Zero(t, p.Ring().At(0).EntryVelocity)
	assert.InDelta(t, 200, p.Ring().At(1).EntryVelocity, 1e-6)
	assert.InDelta(t, 200, p.Ring().At(2).ExitVelocity, 1e-6)
	assert.Zero(t, p.Ring().At(3).ExitVelocity)
	for i := 1; i < 3; i++ {
		b := p.Ring().At(i)
		assert.InDelta(t, b.Length, b.BodyLength, 1e-6, "middle block %d must be pure body", i)
	}
}

func TestPlanner_PlanDwell(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanDwell(2.5)

	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	b := p.Ring().At(0)
	assert.Equal(t, block.TypeDwell, b.Type)
	assert.Equal(t, 2.5, b.DwellSeconds)
}

func TestPlanner_PlanDwell_RejectsNonPositive(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanDwell(0)

	assert.Equal(t, status.ZeroLength, st)
	assert.Error(t, err)
}

func TestPlanner_PlanStop_IsExactStop(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanStop()

	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	b := p.Ring().At(0)
	assert.Equal(t, block.TypeStop, b.Type)
	assert.True(t, b.ExactStop)
	assert.False(t, b.Replannable)
}

func TestPlanner_PlanEnd(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanEnd()

	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	assert.Equal(t, block.TypeEnd, p.Ring().At(0).Type)
}

func TestPlanner_SetPosition_DoesNotQueueAMove(t *testing.T) {
	p := testPlanner()

	p.SetPosition([6]float64{50, 50, 0, 0, 0, 0})

	assert.Equal(t, [6]float64{50, 50, 0, 0, 0, 0}, p.Position())
	assert.Equal(t, block.Empty, p.Ring().At(0).State)
}

func TestPlanner_FlushPlanner_ClearsRingButNotPosition(t *testing.T) {
	p := testPlanner()
	_, err := p.PlanLine([6]float64{10, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)

	p.FlushPlanner()

	assert.Equal(t, block.Empty, p.Ring().At(0).State)
	assert.Equal(t, [6]float64{10, 0, 0, 0, 0, 0}, p.Position(), "flush must not touch plan_position")
}

func TestPlanner_PlanLine_ExactStopClampsJunctionAndExit(t *testing.T) {
	p := testPlanner()

	st, err := p.PlanLine([6]float64{100, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{ExactStop: true})

	require.NoError(t, err)
	assert.Equal(t, status.Ok, st)
	b := p.Ring().At(0)
	assert.Zero(t, b.EntryVmax)
	assert.Zero(t, b.ExitVmax)
	assert.False(t, b.Replannable)
}

func TestPlanner_PlanLine_BackToBackMovesReplan(t *testing.T) {
	p := testPlanner()

	_, err := p.PlanLine([6]float64{100, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)
	_, err = p.PlanLine([6]float64{100, 100, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)

	replans, _ := p.Stats()
	assert.GreaterOrEqual(t, replans, int64(2))

	first := p.Ring().At(0)
	assert.True(t, first.LengthBalanced(1e-6), "head+body+tail must sum to the block length within tolerance")
}

func TestPlanner_SetHoming_UsesHomingJerk(t *testing.T) {
	p := testPlanner()
	p.SetHoming(true)

	_, err := p.PlanLine([6]float64{100, 0, 0, 0, 0, 0}, 1.0, PlanLineOptions{})
	require.NoError(t, err)

	b := p.Ring().At(0)
	assert.True(t, b.Homing)
}
