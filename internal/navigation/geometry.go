// Package navigation provides the decision layer that turns pose and
// navigability updates into bounded velocity commands.
//
// Frame convention: +X right, +Y up, forward is -Z. Yaw is the rotation
// about +Y, so a positive yaw faces left and a target on the right has a
// negative bearing. Heading errors are current minus target: positive
// means turn right.
package navigation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// minTurnSpeed is the smallest angular speed that still rotates the base.
const minTurnSpeed = 0.1

// YawFromQuaternion extracts the heading from an orientation quaternion.
// Non-unit quaternions are normalized first; a zero quaternion yields 0.
func YawFromQuaternion(q Quaternion) float64 {
	n := quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
	abs := quat.Abs(n)
	if abs == 0 || math.IsNaN(abs) {
		return 0
	}
	if math.Abs(abs-1) > 1e-9 {
		n = quat.Scale(1/abs, n)
	}
	x, y, z, w := n.Imag, n.Jmag, n.Kmag, n.Real

	sinyCosp := 2 * (w*y + z*x)
	cosyCosp := 1 - 2*(y*y+z*z)
	return NormalizeAngle(math.Atan2(sinyCosp, cosyCosp))
}

// AngleToWaypoint returns the bearing of a target offset measured from the
// forward (-Z) axis.
func AngleToWaypoint(dx, dz float64) float64 {
	return NormalizeAngle(math.Atan2(-dz, dx) - math.Pi/2)
}

// HeadingError returns normalize(currentYaw - targetYaw).
// Positive = turn right, negative = turn left.
func HeadingError(currentYaw, targetYaw float64) float64 {
	return NormalizeAngle(currentYaw - targetYaw)
}

// AngularVelocityForTurn shapes a turn-in-place speed: linear in the error
// up to 90 degrees, at least minTurnSpeed, at most maxTurnSpeed.
func AngularVelocityForTurn(headingError, maxTurnSpeed float64) float64 {
	return turnSpeed(headingError, maxTurnSpeed, maxTurnSpeed, minTurnSpeed)
}

// turnSpeed reaches gain at 90 degrees, is capped at limit and floored at floor
func turnSpeed(headingError, gain, limit, floor float64) float64 {
	deg := Degrees(math.Abs(headingError))

	speed := math.Min(limit, deg/90*gain)
	speed = math.Max(floor, speed)

	if headingError > 0 {
		return speed
	}
	return -speed
}

// CourseCorrection returns a small steering term for drift while moving.
// Errors at or below thresholdDegrees yield 0; above it the strength grows
// linearly to 45 degrees and is capped at maxStrength.
func CourseCorrection(headingError, maxStrength, thresholdDegrees float64) float64 {
	return correctionStrength(headingError, maxStrength, maxStrength, thresholdDegrees)
}

// correctionStrength reaches gain at 45 degrees and is capped at limit
func correctionStrength(headingError, gain, limit, thresholdDegrees float64) float64 {
	deg := Degrees(math.Abs(headingError))
	if deg <= thresholdDegrees {
		return 0
	}

	strength := math.Min(limit, deg/45*gain)
	if headingError > 0 {
		return strength
	}
	return -strength
}

// NormalizeAngle wraps an angle to (-π, π].
func NormalizeAngle(angle float64) float64 {
	if angle > -math.Pi && angle <= math.Pi {
		return angle
	}
	if math.IsInf(angle, 0) || math.IsNaN(angle) {
		return math.NaN()
	}

	angle = math.Mod(angle, 2*math.Pi)
	if angle > math.Pi {
		angle -= 2 * math.Pi
	} else if angle <= -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

// IsAligned reports whether the heading error is strictly inside the threshold.
// The TURNING to MOVING handover also accepts an error equal to the threshold.
func IsAligned(headingError, thresholdDegrees float64) bool {
	return Degrees(math.Abs(headingError)) < thresholdDegrees
}

// TurnIndicator summarizes a heading error for operators:
// "R"/"L" above significantDegrees, "r"/"l" above minorDegrees, else "ok".
func TurnIndicator(headingError, significantDegrees, minorDegrees float64) string {
	deg := Degrees(math.Abs(headingError))

	switch {
	case deg > significantDegrees:
		if headingError > 0 {
			return "R"
		}
		return "L"
	case deg > minorDegrees:
		if headingError > 0 {
			return "r"
		}
		return "l"
	default:
		return "ok"
	}
}

// Degrees converts radians to degrees
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts degrees to radians
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Clamp clamps a value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
