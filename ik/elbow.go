package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// minPivotLength guards the bend-pivot cross product in world-space hinge
// enforcement: below it the limb is straight and the pivot is undefined.
const minPivotLength = 1e-6

// ElbowConstraint bends only about its pivot axis, within limits, and allows
// limited twist about its forward (forearm) axis:
//
//	View from the side,             View with forward axis out of page:
//	with pivot axis out of page:
//	                                     up  maxTwist
//	      / maxBend                       | /
//	     /                                |/
//	---(o)--------+  forward         ----(o)----> left
//	     \                               /|
//	      \ minBend                     / |
//	                                 minTwist
type ElbowConstraint struct {
	forward       r3.Vector
	pivotAxis     r3.Vector
	pivotXForward r3.Vector
	minBend       float64
	maxBend       float64
	minTwist      float64
	maxTwist      float64
}

// NewElbowConstraint builds an ElbowConstraint. The pivot axis is
// orthogonalized against forward; bend and twist limits are normalized into
// (−π, π] and ordered.
func NewElbowConstraint(forward, pivotAxis r3.Vector, minBend, maxBend, minTwist, maxTwist float64) *ElbowConstraint {
	f := forward.Normalize()
	pivot := f.Cross(pivotAxis.Cross(f)).Normalize()
	minBend, maxBend = spatialmath.ComputeAngleLimits(minBend, maxBend)
	minTwist, maxTwist = spatialmath.ComputeAngleLimits(minTwist, maxTwist)
	return &ElbowConstraint{
		forward:       f,
		pivotAxis:     pivot,
		pivotXForward: pivot.Cross(f),
		minBend:       minBend,
		maxBend:       maxBend,
		minTwist:      minTwist,
		maxTwist:      maxTwist,
	}
}

// Type implements Constraint.
func (c *ElbowConstraint) Type() ConstraintType { return ElbowConstraintType }

// ForwardAxis implements Constraint.
func (c *ElbowConstraint) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *ElbowConstraint) AllowsTwist() bool { return true }

// Project implements Constraint. It is the fallback used when the joint has
// no parent to push back on.
func (c *ElbowConstraint) Project(localRot quat.Number) quat.Number {
	forward := spatialmath.Rotate(localRot, c.forward)

	// swing forward back into the hinge plane
	projectedForward := forward.Sub(c.pivotAxis.Mul(forward.Dot(c.pivotAxis)))
	adjusted := quat.Mul(spatialmath.ShortestArc(forward, projectedForward), localRot)
	newForward := spatialmath.Rotate(adjusted, c.forward)

	// measure twist about the pivot
	twistedPivot := spatialmath.Rotate(adjusted, c.pivotAxis)
	cosPart := twistedPivot.Dot(c.pivotAxis)
	sinPart := spatialmath.Rotate(adjusted, c.pivotXForward).Dot(c.pivotAxis)
	twist := math.Atan2(sinPart, cosPart)

	newTwist := spatialmath.ClampAngleToRange(twist, c.minTwist, c.maxTwist)
	if newTwist != twist {
		swungLeftAxis := c.pivotAxis.Cross(newForward)
		newTwistedPivot := c.pivotAxis.Mul(math.Cos(newTwist)).Sub(swungLeftAxis.Mul(math.Sin(newTwist)))
		adjusted = quat.Mul(spatialmath.ShortestArc(twistedPivot, newTwistedPivot), adjusted)
		newForward = spatialmath.Rotate(adjusted, c.forward)
	}

	// measure bend about the pivot
	bend := math.Atan2(newForward.Dot(c.pivotXForward), newForward.Dot(c.forward))
	newBend := spatialmath.ClampAngleToRange(bend, c.minBend, c.maxBend)
	if newBend != bend {
		newForward = c.forward.Mul(math.Cos(newBend)).Add(c.pivotXForward.Mul(math.Sin(newBend)))
		adjusted = quat.Mul(spatialmath.ShortestArc(forward, newForward), adjusted)
	}
	return spatialmath.Normalize(adjusted)
}

// Enforce implements Constraint. With a parent present it works in world
// space: it twists the forearm into the twist limits about the bend pivot and
// back-rotates the upper arm to align its pivot with the actual bend pivot.
func (c *ElbowConstraint) Enforce(elbow *Joint) bool {
	shoulder := elbow.parent
	if shoulder == nil {
		return enforceProjection(c, elbow)
	}
	somethingChanged := false

	// vertices of the shoulder-elbow-wrist triangle
	shoulderPos := shoulder.worldPos
	elbowPos := elbow.worldPos
	wristPos := elbow.ComputeWorldEndPos()

	// each joint's notion of the pivot
	elbowRot := elbow.worldRot
	lowerPivot := spatialmath.Rotate(elbowRot, c.pivotAxis)
	upperPivot := spatialmath.Rotate(shoulder.worldRot, c.pivotAxis)

	// the pivot axis implied by the actual bend at the elbow
	lowerArm := wristPos.Sub(elbowPos).Normalize()
	upperArm := elbowPos.Sub(shoulderPos).Normalize()
	bendPivot := upperArm.Cross(lowerArm)
	if length := bendPivot.Norm(); length < minPivotLength {
		// arm is nearly straight; fall back to the upper arm's pivot
		bendPivot = upperPivot
	} else {
		bendPivot = bendPivot.Mul(1 / length)
	}

	// measure forearm twist relative to the bend pivot
	angle, axis := spatialmath.AngleAxis(spatialmath.ShortestArc(bendPivot, lowerPivot))
	if axis.Dot(lowerArm) < 0 {
		angle = -angle
	}

	newTwist := spatialmath.ClampAngleToRange(angle, c.minTwist, c.maxTwist)
	if newTwist != angle {
		adjustment := spatialmath.QuatFromAngleAxis(newTwist-angle, lowerArm)
		elbowRot = spatialmath.Normalize(quat.Mul(adjustment, elbowRot))
		elbow.setWorldRot(elbowRot)
		somethingChanged = true
	}

	// back-rotate the shoulder so its pivot agrees with the bend pivot
	shoulderRot := shoulder.worldRot
	adjustment := spatialmath.ShortestArc(upperPivot, bendPivot)
	if !quatNearIdentity(adjustment) {
		shoulderRot = spatialmath.Normalize(quat.Mul(adjustment, shoulderRot))
		shoulder.setWorldRot(shoulderRot)
		if shoulder.parent != nil {
			shoulder.updateLocalRot(false)
		} else {
			shoulder.setLocalRot(shoulder.worldRot)
		}
		somethingChanged = true
	}

	if somethingChanged {
		elbow.updateLocalRot(false)
	}
	return somethingChanged
}

// Hash implements Constraint.
func (c *ElbowConstraint) Hash() uint64 {
	return newConstraintHasher(ElbowConstraintType).
		vector(c.forward).
		vector(c.pivotAxis).
		floats(c.minBend, c.maxBend, c.minTwist, c.maxTwist).
		hash()
}

// Marshal implements Constraint.
func (c *ElbowConstraint) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(ElbowConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"pivot_axis":   vectorToSlice(c.pivotAxis),
		"min_bend":     spatialmath.RadToDeg(c.minBend),
		"max_bend":     spatialmath.RadToDeg(c.maxBend),
		"min_twist":    spatialmath.RadToDeg(c.minTwist),
		"max_twist":    spatialmath.RadToDeg(c.maxTwist),
	}
}
