// Package planner implements the look-ahead trajectory planner: line
// entry, the centripetal junction-velocity bound between consecutive
// moves, the jerk-limited length/velocity relations, the trapezoid solver,
// and the backward/forward replan passes over the block ring.
package planner

import (
	"math"

	"github.com/tinygo-motion/motioncore/internal/config"
)

const epsilon = 1e-10

// CompositeJerk derives the jerk for a move by vector-combining per-axis
// max jerks weighted by the square of the unit-vector components:
//
//	jerk = sqrt(Σ (unit_i * jerk_max_i)²)
//
// Large components on slow axes dominate, which is what bounds cornering
// into those axes. homing selects each axis's homing jerk instead of its
// normal max. The reciprocal and cube root are returned alongside because
// every downstream use wants one of the three.
func CompositeJerk(unit [6]float64, axes []config.AxisConfig, homing bool) (jerk, recipJerk, cubeRootJerk float64) {
	var sumSq float64
	for i := range unit {
		if i >= len(axes) {
			break
		}
		j := axes[i].MaxJerkFor(homing)
		term := unit[i] * j
		sumSq += term * term
	}
	jerk = math.Sqrt(sumSq)
	if jerk < epsilon {
		return 0, 0, 0
	}
	recipJerk = 1.0 / jerk
	cubeRootJerk = math.Cbrt(jerk)
	return
}

// JunctionVelocity computes the corner velocity between two consecutive
// moves: the junction deviation turns the corner into an effective arc
// whose radius bounds the centripetal acceleration.
//
// prevUnit is the outgoing unit vector of the previous move, thisUnit the
// incoming unit vector of the new move. axes supplies each axis's junction
// deviation. cornerAcceleration is the configured centripetal limit.
func JunctionVelocity(prevUnit, thisUnit [6]float64, axes []config.AxisConfig, cornerAcceleration float64) float64 {
	var dot float64
	for i := range prevUnit {
		dot += prevUnit[i] * thisUnit[i]
	}
	cosTheta := -dot

	if cosTheta < -0.99 {
		// Effectively straight: no practical limit.
		return math.MaxFloat64
	}
	if cosTheta > 0.99 {
		// Full reversal: must stop.
		return 0
	}

	delta := junctionDelta(prevUnit, thisUnit, axes)

	sinHalfTheta := math.Sqrt(math.Max(0, (1-cosTheta)/2))
	if sinHalfTheta > 1-epsilon {
		return 0
	}
	r := delta * sinHalfTheta / (1 - sinHalfTheta)
	if r < 0 {
		r = 0
	}
	return math.Sqrt(r * cornerAcceleration)
}

// junctionDelta averages per-axis junction-deviation terms weighted by the
// squared unit-vector components from each side, so axes with slow
// dynamics dominate the corner limit.
func junctionDelta(prevUnit, thisUnit [6]float64, axes []config.AxisConfig) float64 {
	var num, den float64
	for i := range prevUnit {
		if i >= len(axes) {
			break
		}
		w := thisUnit[i]*thisUnit[i] + prevUnit[i]*prevUnit[i]
		num += axes[i].JunctionDeviation * w
		den += w
	}
	if den < epsilon {
		if len(axes) > 0 {
			return axes[0].JunctionDeviation
		}
		return 0
	}
	return num / den
}

// DeltaVmax is the inverted jerk-limited length-to-velocity relation: the
// maximum velocity change achievable over length at the given jerk,
// ΔV = L^(2/3) * cbrt(jerk).
func DeltaVmax(length, cubeRootJerk float64) float64 {
	if length <= 0 || cubeRootJerk <= 0 {
		return 0
	}
	return math.Pow(length, 2.0/3.0) * cubeRootJerk
}

// TargetLength is the forward relation: the length consumed accelerating
// (or decelerating) between v0 and v1, L = |ΔV| * sqrt(|ΔV| / jerk).
func TargetLength(v0, v1, jerk float64) float64 {
	dv := math.Abs(v1 - v0)
	if dv < epsilon || jerk <= 0 {
		return 0
	}
	return dv * math.Sqrt(dv / jerk)
}

// TargetVelocity inverts TargetLength holding v0 and the ramp length
// fixed: the velocity reached after accelerating away from v0 over length.
func TargetVelocity(v0, length, cubeRootJerk float64) float64 {
	return v0 + DeltaVmax(length, cubeRootJerk)
}
