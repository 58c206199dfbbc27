package execstate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygo-motion/motioncore/internal/block"
)

func testBlock() *block.Block {
	b := &block.Block{
		Index:          0,
		Unit:           [6]float64{1, 0, 0, 0, 0, 0},
		Length:         100,
		HeadLength:     20,
		BodyLength:     60,
		TailLength:     20,
		EntryVelocity:  0,
		CruiseVelocity: 1000,
		ExitVelocity:   0,
		Jerk:           5_000_000,
	}
	return b
}

func TestRuntime_Idle_BeforeLoad(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	assert.True(t, r.Idle())

	_, seg := r.Step()
	assert.Equal(t, Segment{}, seg)
}

func TestRuntime_Load_SetsHeadState(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()

	r.Load(b)

	assert.False(t, r.Idle())
	assert.Equal(t, block.ExecHeadNew, b.ExecState)
}

func TestRuntime_Step_DrainsFullBlockToDone(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	var lastOutcome Outcome
	segments := 0
	for i := 0; i < 100000; i++ {
		outcome, _ := r.Step()
		lastOutcome = outcome
		if outcome == Again {
			segments++
		}
		if outcome == Done {
			break
		}
	}

	require.Equal(t, Done, lastOutcome)
	assert.Greater(t, segments, 0)
	assert.True(t, r.Idle(), "Step must clear the block once it finishes")
}

func TestRuntime_Step_PositionAdvancesTowardTarget(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	for i := 0; i < 100000; i++ {
		outcome, _ := r.Step()
		if outcome == Done {
			break
		}
	}

	pos := r.Position()
	assert.InDelta(t, 100, pos[0], 1.0, "net travel along the unit vector should approximate the block length")
	assert.Zero(t, pos[1])
}

func TestRuntime_Step_SkipsZeroLengthBody(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	b.BodyLength = 0
	b.HeadLength = 50
	b.TailLength = 50
	b.CruiseVelocity = 1000
	r.Load(b)

	sawBody := false
	for i := 0; i < 100000; i++ {
		outcome, _ := r.Step()
		if b.ExecState == block.ExecBodyRun {
			sawBody = true
		}
		if outcome == Done {
			break
		}
	}

	assert.False(t, sawBody, "a zero-length body section must never be entered")
}

func TestRuntime_SegmentVelocity_TracksLastEmitted(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	_, seg := r.Step()

	assert.Equal(t, seg.Velocity, r.SegmentVelocity())
}

func TestRuntime_SetPosition(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	r.SetPosition([6]float64{1, 2, 3, 0, 0, 0})
	assert.Equal(t, [6]float64{1, 2, 3, 0, 0, 0}, r.Position())
}

func TestRuntime_SegmentsEmitted_Accumulates(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	before := r.SegmentsEmitted()
	r.Step()
	after := r.SegmentsEmitted()

	assert.Equal(t, before+1, after)
}

func TestRuntime_Step_MirrorsExecStateOntoBlock(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	require.Equal(t, block.ExecHeadNew, b.ExecState)

	outcome, _ := r.Step()
	require.Equal(t, Again, outcome)
	assert.NotEqual(t, block.ExecHeadNew, b.ExecState, "stepping must advance the block's visible sub-state")

	for i := 0; i < 100000; i++ {
		if outcome, _ = r.Step(); outcome == Done {
			break
		}
	}
	assert.Equal(t, block.ExecOff, b.ExecState)
}

func TestRuntime_BeginHoldDecel_BrakesToZeroAndParks(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	// Run into the cruise body so the segment velocity is non-zero.
	for i := 0; i < 100000; i++ {
		r.Step()
		if b.ExecState == block.ExecBodyRun {
			break
		}
	}
	v := r.SegmentVelocity()
	require.Greater(t, v, 0.0)

	r.BeginHoldDecel(10, 0, true)

	var last Segment
	var outcome Outcome
	for i := 0; i < 100000; i++ {
		var seg Segment
		outcome, seg = r.Step()
		if outcome == Done {
			break
		}
		last = seg
	}

	require.Equal(t, Done, outcome)
	assert.True(t, r.HoldDecelDone())
	assert.False(t, r.HoldDecelDone(), "the completion flag must clear on read")
	assert.Less(t, last.Velocity, v, "the braking ramp must decelerate")
}

func TestRuntime_Reset_DropsBlockKeepsPosition(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)
	r.Step()
	pos := r.Position()

	r.Reset()

	assert.True(t, r.Idle())
	assert.Equal(t, pos, r.Position(), "an abort must not lose the physical position")
	assert.Zero(t, r.SegmentVelocity())
}

func TestRuntime_Step_NeverEmitsNaNVelocity(t *testing.T) {
	r := NewRuntime(5000.0 / 1e6 / 60.0)
	b := testBlock()
	r.Load(b)

	for i := 0; i < 100000; i++ {
		outcome, seg := r.Step()
		require.False(t, math.IsNaN(seg.Velocity))
		if outcome == Done {
			break
		}
	}
}
