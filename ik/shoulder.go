package ik

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// minDropElbowPivotLength is the shortest usable pivot when computing the
// drop-elbow rotation; below it the arm is too straight to define one.
const minDropElbowPivotLength = 0.003

// ShoulderConstraint is experimental. It behaves like a TwistLimitedCone
// about a hard-coded cone axis (forward + x̂ − 1.5ẑ, bend π/3, twist ±π/2),
// but its projection is currently a pass-through: the cone math destabilized
// solutions and is disabled until fixed. The kind is kept distinct so the
// DropElbow helper remains addressable.
type ShoulderConstraint struct {
	forward  r3.Vector
	coneAxis r3.Vector
}

// NewShoulderConstraint builds a ShoulderConstraint about the given forward
// axis. It takes no tunable parameters.
func NewShoulderConstraint(forward r3.Vector) *ShoulderConstraint {
	f := forward.Normalize()
	coneAxis := f.Add(r3.Vector{X: 1}).Sub(r3.Vector{Z: 1.5}).Normalize()
	return &ShoulderConstraint{forward: f, coneAxis: coneAxis}
}

// Type implements Constraint.
func (c *ShoulderConstraint) Type() ConstraintType { return ShoulderConstraintType }

// ForwardAxis implements Constraint.
func (c *ShoulderConstraint) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *ShoulderConstraint) AllowsTwist() bool { return true }

// Project implements Constraint. It currently returns its input unchanged.
// TODO: re-enable the cone+twist clamp once it no longer fights the solver.
func (c *ShoulderConstraint) Project(localRot quat.Number) quat.Number {
	return localRot
}

// Enforce implements Constraint.
func (c *ShoulderConstraint) Enforce(joint *Joint) bool { return enforceProjection(c, joint) }

// DropElbow rotates the shoulder about its reach axis so the elbow hangs
// below the shoulder-to-wrist line, for a more natural humanoid pose. The
// wrist's world transform is preserved; its local rotation is refreshed.
// Returns whether anything changed.
func (c *ShoulderConstraint) DropElbow(shoulder *Joint) bool {
	elbow := shoulder.singleActiveChild()
	if elbow == nil {
		return false
	}
	elbow.updatePosAndRotFromParent()

	shoulderPos := shoulder.worldPos
	elbowPos := elbow.worldPos
	wristPos := elbow.ComputeWorldEndPos()

	reach := wristPos.Sub(shoulderPos).Normalize()
	upperArm := elbowPos.Sub(shoulderPos).Normalize()

	pivot := reach.Cross(upperArm)
	pivotLength := pivot.Norm()
	if pivotLength < minDropElbowPivotLength {
		return false
	}
	pivot = pivot.Mul(1 / pivotLength)

	targetPivot := r3.Vector{Z: 1}.Cross(reach).Normalize()

	adjustment := spatialmath.ShortestArc(pivot, targetPivot)
	if quatNearIdentity(adjustment) {
		return false
	}

	newWorldRot := spatialmath.Normalize(quat.Mul(adjustment, shoulder.worldRot))
	shoulder.setWorldRot(newWorldRot)
	if collar := shoulder.parent; collar != nil {
		shoulder.setLocalRot(spatialmath.Normalize(quat.Mul(quat.Conj(collar.worldRot), newWorldRot)))
	} else {
		shoulder.setLocalRot(shoulder.worldRot)
	}

	elbow.updatePosAndRotFromParent()

	if hand := elbow.singleActiveChild(); hand != nil {
		// the hand keeps its world transform, so refresh its local rotation
		hand.updateLocalRot(false)
	}
	return true
}

// Hash implements Constraint.
func (c *ShoulderConstraint) Hash() uint64 {
	return newConstraintHasher(ShoulderConstraintType).vector(c.forward).hash()
}

// Marshal implements Constraint.
func (c *ShoulderConstraint) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(ShoulderConstraintType),
		"forward_axis": vectorToSlice(c.forward),
	}
}
