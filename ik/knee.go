package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// minKneeTwist is the twist magnitude above which knee enforcement removes
// the twist entirely.
const minKneeTwist = 0.1

// KneeConstraint bends only about its pivot axis, within limits, and allows
// no twist about its forward axis. Suitable for knees and fingers:
//
//	View from the side, with pivot axis out of page:
//
//	      / maxBend
//	     /
//	---(o)--------+
//	     \
//	      \ minBend
type KneeConstraint struct {
	forward       r3.Vector
	pivotAxis     r3.Vector
	pivotXForward r3.Vector
	minBend       float64
	maxBend       float64
}

// NewKneeConstraint builds a KneeConstraint. The pivot axis is orthogonalized
// against forward; bend limits are normalized into (−π, π] and ordered.
func NewKneeConstraint(forward, pivotAxis r3.Vector, minBend, maxBend float64) *KneeConstraint {
	f := forward.Normalize()
	pivot := f.Cross(pivotAxis.Cross(f)).Normalize()
	minBend, maxBend = spatialmath.ComputeAngleLimits(minBend, maxBend)
	return &KneeConstraint{
		forward:       f,
		pivotAxis:     pivot,
		pivotXForward: pivot.Cross(f),
		minBend:       minBend,
		maxBend:       maxBend,
	}
}

// Type implements Constraint.
func (c *KneeConstraint) Type() ConstraintType { return KneeConstraintType }

// ForwardAxis implements Constraint.
func (c *KneeConstraint) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *KneeConstraint) AllowsTwist() bool { return false }

// Project implements Constraint.
func (c *KneeConstraint) Project(localRot quat.Number) quat.Number {
	// remove all twist by rotating the pivot back onto itself
	jointAxis := spatialmath.Rotate(localRot, c.pivotAxis)
	adjusted := quat.Mul(spatialmath.ShortestArc(jointAxis, c.pivotAxis), localRot)

	forward := spatialmath.Rotate(adjusted, c.forward)
	newForward := forward

	bend := math.Atan2(newForward.Dot(c.pivotXForward), newForward.Dot(c.forward))
	newBend := spatialmath.ClampAngleToRange(bend, c.minBend, c.maxBend)
	if newBend != bend {
		newForward = c.forward.Mul(math.Cos(newBend)).Add(c.pivotXForward.Mul(math.Sin(newBend)))
		adjusted = quat.Mul(spatialmath.ShortestArc(forward, newForward), adjusted)
	}
	return spatialmath.Normalize(adjusted)
}

// Enforce implements Constraint. With a parent present it works in world
// space like ElbowConstraint, except any measurable twist of the lower leg
// is removed entirely rather than clamped to a range.
func (c *KneeConstraint) Enforce(knee *Joint) bool {
	hip := knee.parent
	if hip == nil {
		return enforceProjection(c, knee)
	}
	somethingChanged := false

	// vertices of the hip-knee-ankle triangle
	hipPos := hip.worldPos
	kneePos := knee.worldPos
	anklePos := knee.ComputeWorldEndPos()

	kneeRot := knee.worldRot
	lowerPivot := spatialmath.Rotate(kneeRot, c.pivotAxis)
	upperPivot := spatialmath.Rotate(hip.worldRot, c.pivotAxis)

	lowerLeg := anklePos.Sub(kneePos).Normalize()
	upperLeg := kneePos.Sub(hipPos).Normalize()
	bendPivot := upperLeg.Cross(lowerLeg)
	if length := bendPivot.Norm(); length < minPivotLength {
		// leg is nearly straight; fall back to the upper leg's pivot
		bendPivot = upperPivot
	} else {
		bendPivot = bendPivot.Mul(1 / length)
	}

	// measure lower-leg twist relative to the bend pivot
	angle, axis := spatialmath.AngleAxis(spatialmath.ShortestArc(bendPivot, lowerPivot))
	if axis.Dot(lowerLeg) < 0 {
		angle = -angle
	}

	if math.Abs(angle) > minKneeTwist {
		// no twist allowed: remove all of it
		adjustment := spatialmath.QuatFromAngleAxis(-angle, lowerLeg)
		kneeRot = spatialmath.Normalize(quat.Mul(adjustment, kneeRot))
		knee.setWorldRot(kneeRot)
		somethingChanged = true
	}

	hipRot := hip.worldRot
	adjustment := spatialmath.ShortestArc(upperPivot, bendPivot)
	if !quatNearIdentity(adjustment) {
		hipRot = spatialmath.Normalize(quat.Mul(adjustment, hipRot))
		hip.setWorldRot(hipRot)
		if pelvis := hip.parent; pelvis != nil {
			newLocalRot := spatialmath.Normalize(quat.Mul(quat.Conj(pelvis.worldRot), hipRot))
			hip.setLocalRot(newLocalRot)
		} else {
			hip.setLocalRot(hip.worldRot)
		}
		somethingChanged = true
	}
	if somethingChanged {
		newLocalRot := spatialmath.Normalize(quat.Mul(quat.Conj(hipRot), kneeRot))
		knee.setLocalRot(newLocalRot)
	}
	return somethingChanged
}

// Hash implements Constraint.
func (c *KneeConstraint) Hash() uint64 {
	return newConstraintHasher(KneeConstraintType).
		vector(c.forward).
		vector(c.pivotAxis).
		floats(c.minBend, c.maxBend).
		hash()
}

// Marshal implements Constraint.
func (c *KneeConstraint) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(KneeConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"pivot_axis":   vectorToSlice(c.pivotAxis),
		"min_bend":     spatialmath.RadToDeg(c.minBend),
		"max_bend":     spatialmath.RadToDeg(c.maxBend),
	}
}
