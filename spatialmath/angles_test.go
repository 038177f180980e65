package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestNormalizeAngle(t *testing.T) {
	test.That(t, NormalizeAngle(0), test.ShouldAlmostEqual, 0)
	test.That(t, NormalizeAngle(math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, NormalizeAngle(-math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, NormalizeAngle(3*math.Pi/2), test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, NormalizeAngle(-3*math.Pi/2), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, NormalizeAngle(5*math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, NormalizeAngle(0.25), test.ShouldAlmostEqual, 0.25)
}

func TestRemoveMultiplesOfTwoPi(t *testing.T) {
	test.That(t, RemoveMultiplesOfTwoPi(0), test.ShouldAlmostEqual, 0)
	test.That(t, RemoveMultiplesOfTwoPi(5*math.Pi), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RemoveMultiplesOfTwoPi(-5*math.Pi), test.ShouldAlmostEqual, -math.Pi)
	test.That(t, RemoveMultiplesOfTwoPi(1.5), test.ShouldAlmostEqual, 1.5)
}

func TestComputeAngleLimits(t *testing.T) {
	minAngle, maxAngle := ComputeAngleLimits(-math.Pi/4, math.Pi/3)
	test.That(t, minAngle, test.ShouldAlmostEqual, -math.Pi/4)
	test.That(t, maxAngle, test.ShouldAlmostEqual, math.Pi/3)

	// swapped inputs come back ordered
	minAngle, maxAngle = ComputeAngleLimits(math.Pi/3, -math.Pi/4)
	test.That(t, minAngle, test.ShouldAlmostEqual, -math.Pi/4)
	test.That(t, maxAngle, test.ShouldAlmostEqual, math.Pi/3)

	// out-of-range inputs are normalized first
	minAngle, maxAngle = ComputeAngleLimits(0, 3*math.Pi/2)
	test.That(t, minAngle, test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, maxAngle, test.ShouldAlmostEqual, 0)
}

func TestClampAngleToRange(t *testing.T) {
	minAngle, maxAngle := -math.Pi/2, math.Pi/2

	// inside the range: unchanged
	test.That(t, ClampAngleToRange(0.3, minAngle, maxAngle), test.ShouldAlmostEqual, 0.3)
	test.That(t, ClampAngleToRange(minAngle, minAngle, maxAngle), test.ShouldAlmostEqual, minAngle)
	test.That(t, ClampAngleToRange(maxAngle, minAngle, maxAngle), test.ShouldAlmostEqual, maxAngle)

	// just beyond an endpoint clamps to it
	test.That(t, ClampAngleToRange(maxAngle+0.01, minAngle, maxAngle), test.ShouldAlmostEqual, maxAngle)
	test.That(t, ClampAngleToRange(minAngle-0.01, minAngle, maxAngle), test.ShouldAlmostEqual, minAngle)

	// across the discontinuity the nearer endpoint wins: the forbidden arc's
	// bisector for [−π/2, π/2] sits at π
	test.That(t, ClampAngleToRange(math.Pi-0.01, minAngle, maxAngle), test.ShouldAlmostEqual, maxAngle)
	test.That(t, ClampAngleToRange(math.Pi+0.01, minAngle, maxAngle), test.ShouldAlmostEqual, minAngle)

	// whole extra turns reduce away
	test.That(t, ClampAngleToRange(0.3+2*math.Pi, minAngle, maxAngle), test.ShouldAlmostEqual, 0.3)
}

func TestClampAngleToRangeIdempotent(t *testing.T) {
	minAngle, maxAngle := -0.7, 1.1
	for _, angle := range []float64{-3, -1, 0, 0.5, 1.2, 2, 3, 5, -5} {
		once := ClampAngleToRange(angle, minAngle, maxAngle)
		twice := ClampAngleToRange(once, minAngle, maxAngle)
		test.That(t, twice, test.ShouldAlmostEqual, once)
	}
}

func TestClampPitch(t *testing.T) {
	test.That(t, ClampPitch(0.2), test.ShouldAlmostEqual, 0.2)
	test.That(t, ClampPitch(2), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, ClampPitch(-2), test.ShouldAlmostEqual, -math.Pi/2)
}
