package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// DoubleLimitedHinge allows yaw and pitch bends within limits but zero
// twist. Intended for wrists and first finger joints:
//
//	View from above                     View from right
//	with up out of page                 (right-hand-rule)
//
//	  left axis                            up axis
//	     |                                   |
//	     | / maxYaw                          | / minPitch
//	     |/                                  |/
//	 ---(o)--------> forward             ---(x)--------> forward
//	   up \                              left \
//	       \ minYaw                            \ maxPitch
type DoubleLimitedHinge struct {
	forward  r3.Vector
	up       r3.Vector
	left     r3.Vector // up × forward
	minYaw   float64
	maxYaw   float64
	minPitch float64
	maxPitch float64
}

// NewDoubleLimitedHinge builds a DoubleLimitedHinge. The up axis is
// orthogonalized against forward; yaw limits are normalized into (−π, π] and
// pitch limits clamped to [−π/2, π/2], each pair ordered.
func NewDoubleLimitedHinge(forwardAxis, upAxis r3.Vector, minYaw, maxYaw, minPitch, maxPitch float64) *DoubleLimitedHinge {
	f := forwardAxis.Normalize()
	up := f.Cross(upAxis.Cross(f)).Normalize()
	minYaw, maxYaw = spatialmath.ComputeAngleLimits(minYaw, maxYaw)
	minPitch = spatialmath.ClampPitch(minPitch)
	maxPitch = spatialmath.ClampPitch(maxPitch)
	if minPitch > maxPitch {
		minPitch, maxPitch = maxPitch, minPitch
	}
	return &DoubleLimitedHinge{
		forward:  f,
		up:       up,
		left:     up.Cross(f),
		minYaw:   minYaw,
		maxYaw:   maxYaw,
		minPitch: minPitch,
		maxPitch: maxPitch,
	}
}

// Type implements Constraint.
func (c *DoubleLimitedHinge) Type() ConstraintType { return DoubleLimitedHingeConstraintType }

// ForwardAxis implements Constraint.
func (c *DoubleLimitedHinge) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint. It reports true even though Project
// removes all twist, so the CCD twist helper still tries to twist this joint.
func (c *DoubleLimitedHinge) AllowsTwist() bool { return true }

// Project implements Constraint.
func (c *DoubleLimitedHinge) Project(localRot quat.Number) quat.Number {
	// eliminate twist first, by rotating the joint's left axis back into the
	// horizontal plane
	jointLeft := spatialmath.Rotate(localRot, c.left)
	flattenedLeft := jointLeft.Sub(c.up.Mul(jointLeft.Dot(c.up)))
	adjusted := quat.Mul(spatialmath.ShortestArc(jointLeft, flattenedLeft), localRot)

	forward := spatialmath.Rotate(adjusted, c.forward)

	// yaw
	upComponent := forward.Dot(c.up)
	horizontalAxis := forward.Sub(c.up.Mul(upComponent))
	yaw := math.Atan2(horizontalAxis.Dot(c.left), horizontalAxis.Dot(c.forward))
	newYaw := spatialmath.ClampAngleToRange(yaw, c.minYaw, c.maxYaw)
	if newYaw != yaw {
		horizontalAxis = c.forward.Mul(math.Cos(newYaw)).Add(c.left.Mul(math.Sin(newYaw)))
	} else {
		horizontalAxis = horizontalAxis.Normalize()
	}

	// pitch
	// The minus sign on the opposite (sin) term: the pitch axis is left, so
	// by the right-hand-rule positive pitch drops forward down.
	horizontalComponent := math.Sqrt(math.Max(1-upComponent*upComponent, 0))
	pitch := math.Atan2(-upComponent, horizontalComponent)
	newPitch := spatialmath.ClampAngleToRange(pitch, c.minPitch, c.maxPitch)
	if newPitch != pitch {
		upComponent = -math.Sin(newPitch)
		horizontalComponent = math.Sqrt(math.Max(1-upComponent*upComponent, 0))
	}

	newForward := horizontalAxis.Mul(horizontalComponent).Add(c.up.Mul(upComponent)).Normalize()
	if forward.Sub(newForward).Norm() > 1e-3 {
		adjusted = quat.Mul(spatialmath.ShortestArc(forward, newForward), adjusted)
	}
	return spatialmath.Normalize(adjusted)
}

// Enforce implements Constraint.
func (c *DoubleLimitedHinge) Enforce(joint *Joint) bool { return enforceProjection(c, joint) }

// Hash implements Constraint.
func (c *DoubleLimitedHinge) Hash() uint64 {
	return newConstraintHasher(DoubleLimitedHingeConstraintType).
		vector(c.forward).
		vector(c.up).
		floats(c.minYaw, c.maxYaw, c.minPitch, c.maxPitch).
		hash()
}

// Marshal implements Constraint.
func (c *DoubleLimitedHinge) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(DoubleLimitedHingeConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"up_axis":      vectorToSlice(c.up),
		"min_yaw":      spatialmath.RadToDeg(c.minYaw),
		"max_yaw":      spatialmath.RadToDeg(c.maxYaw),
		"min_pitch":    spatialmath.RadToDeg(c.minPitch),
		"max_pitch":    spatialmath.RadToDeg(c.maxPitch),
	}
}
