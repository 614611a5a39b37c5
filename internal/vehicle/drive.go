package vehicle

import "math"

// DefaultWheelBase is the distance between the drive wheels in meters
const DefaultWheelBase = 0.15

// ToWheelSpeeds converts a body velocity to differential wheel speeds.
// Positive angular turns right, so the left wheel runs faster. When a
// wheel exceeds 1 both are scaled down to keep the turn ratio.
func ToWheelSpeeds(linear, angular, wheelBase float64) (left, right float64) {
	left = linear + angular*wheelBase/2
	right = linear - angular*wheelBase/2

	if m := math.Max(math.Abs(left), math.Abs(right)); m > 1 {
		left /= m
		right /= m
	}
	return left, right
}

// ToVelocities is the inverse of ToWheelSpeeds for unsaturated speeds
func ToVelocities(left, right, wheelBase float64) (linear, angular float64) {
	linear = (left + right) / 2
	angular = (left - right) / wheelBase
	return linear, angular
}
