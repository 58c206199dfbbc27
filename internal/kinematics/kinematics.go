// Package kinematics implements the inverse-kinematics hook that maps an
// axis-space travel vector into per-motor step counts, honoring each
// motor's axis map, polarity and microstep configuration, and the rule
// that an inhibited axis contributes no motion.
package kinematics

import (
	"math"

	"github.com/tinygo-motion/motioncore/internal/config"
)

// Mapper holds the per-motor axis mapping and scale factors derived
// from configuration.
type Mapper struct {
	axes   []config.AxisConfig
	motors []config.MotorConfig
}

// New builds a Mapper from the axis and motor configuration.
func New(axes []config.AxisConfig, motors []config.MotorConfig) *Mapper {
	return &Mapper{axes: axes, motors: motors}
}

// NumMotors returns how many motors this mapper drives.
func (m *Mapper) NumMotors() int { return len(m.motors) }

// Steps converts an axis-space travel vector (the segment's target minus
// its start position) into per-motor step counts. Steps are fractional;
// the DDA accumulates the sub-step remainder across segments.
func (m *Mapper) Steps(travel [6]float64) []float64 {
	out := make([]float64, len(m.motors))
	for i, motor := range m.motors {
		a := motor.AxisMap
		if a < 0 || a >= len(m.axes) {
			out[i] = 0
			continue
		}
		if m.axes[a].Mode == config.AxisInhibited {
			out[i] = 0
			continue
		}
		out[i] = travel[a] * motor.StepsPerUnit()
	}
	return out
}

// Direction returns sign(steps) XOR polarity as a bool (true = forward).
func Direction(steps float64, polarity bool) bool {
	forward := steps >= 0
	return forward != polarity
}

// StepSign returns the encoder sign convention for a step count: +1, -1,
// or 0 for no motion. Unlike Direction it is independent of polarity, so
// an encoder reconciliation layer sees the physical direction.
func StepSign(steps float64) int {
	switch {
	case steps > 0:
		return 1
	case steps < 0:
		return -1
	default:
		return 0
	}
}

// RoundedSteps rounds a fractional step count to the nearest whole step,
// used by positional-closure checks.
func RoundedSteps(steps float64) int64 {
	return int64(math.Round(steps))
}
