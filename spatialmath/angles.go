package spatialmath

import "math"

const twoPi = 2 * math.Pi

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// RemoveMultiplesOfTwoPi truncates whole turns from angle, leaving a value in
// (−2π, 2π) with the sign of the input.
func RemoveMultiplesOfTwoPi(angle float64) float64 {
	return angle - twoPi*math.Trunc(angle/twoPi)
}

// NormalizeAngle maps angle into (−π, π].
func NormalizeAngle(angle float64) float64 {
	return angle - twoPi*math.Ceil((angle-math.Pi)/twoPi)
}

// ComputeAngleLimits normalizes both limits into (−π, π] and orders them so
// min ≤ max.
func ComputeAngleLimits(minAngle, maxAngle float64) (float64, float64) {
	minAngle = NormalizeAngle(minAngle)
	maxAngle = NormalizeAngle(maxAngle)
	if minAngle > maxAngle {
		minAngle, maxAngle = maxAngle, minAngle
	}
	return minAngle, maxAngle
}

// ClampAngleToRange clamps angle to [minAngle, maxAngle], treating the angle
// as periodic: out-of-range values snap to whichever endpoint is nearer along
// the circle. The limits must already be in (−π, π] with min ≤ max.
//
// The forbidden arc between maxAngle and minAngle has a bisector; angles that
// land on the max side of it clamp to maxAngle, the rest to minAngle.
func ClampAngleToRange(angle, minAngle, maxAngle float64) float64 {
	if angle >= minAngle && angle <= maxAngle {
		return angle
	}
	invalidBisector := maxAngle + 0.5*(twoPi-(maxAngle-minAngle))
	angle = RemoveMultiplesOfTwoPi(angle)
	if (angle > maxAngle && angle < invalidBisector) || angle < invalidBisector-twoPi {
		return maxAngle
	}
	if angle < minAngle || angle > invalidBisector {
		return minAngle
	}
	return angle
}

// ClampPitch maps angle into (−2π, 2π) and clamps it to [−π/2, π/2].
func ClampPitch(angle float64) float64 {
	angle = RemoveMultiplesOfTwoPi(angle)
	if angle > math.Pi/2 {
		return math.Pi / 2
	}
	if angle < -math.Pi/2 {
		return -math.Pi / 2
	}
	return angle
}
