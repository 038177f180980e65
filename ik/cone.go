package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// SimpleCone allows arbitrary twist about its forward axis but limits the
// bend away from it to a uniform cone:
//
//	      / maxAngle
//	     /
//	 ---@--------> forward
//	     \
//	      \ maxAngle
type SimpleCone struct {
	forward      r3.Vector
	maxAngle     float64
	cosConeAngle float64
	sinConeAngle float64
}

// NewSimpleCone builds a SimpleCone about the given forward axis.
func NewSimpleCone(forward r3.Vector, maxAngle float64) *SimpleCone {
	maxAngle = math.Abs(maxAngle)
	return &SimpleCone{
		forward:      forward.Normalize(),
		maxAngle:     maxAngle,
		cosConeAngle: math.Cos(maxAngle),
		sinConeAngle: math.Sin(maxAngle),
	}
}

// Type implements Constraint.
func (c *SimpleCone) Type() ConstraintType { return SimpleConeConstraintType }

// ForwardAxis implements Constraint.
func (c *SimpleCone) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *SimpleCone) AllowsTwist() bool { return true }

// Project implements Constraint.
func (c *SimpleCone) Project(localRot quat.Number) quat.Number {
	forward := spatialmath.Rotate(localRot, c.forward)
	forwardComponent := forward.Dot(c.forward)
	if forwardComponent >= c.cosConeAngle {
		return localRot
	}
	// the joint's version of forward lies outside the cone:
	// project it onto the surface of the cone...
	perp := forward.Sub(c.forward.Mul(forwardComponent)).Normalize()
	newForward := c.forward.Mul(c.cosConeAngle).Add(perp.Mul(c.sinConeAngle))
	// ... then compute the adjusted rotation
	adjustment := spatialmath.ShortestArc(forward, newForward)
	return spatialmath.Normalize(quat.Mul(adjustment, localRot))
}

// Enforce implements Constraint.
func (c *SimpleCone) Enforce(joint *Joint) bool { return enforceProjection(c, joint) }

// Hash implements Constraint.
func (c *SimpleCone) Hash() uint64 {
	return newConstraintHasher(SimpleConeConstraintType).vector(c.forward).floats(c.maxAngle).hash()
}

// Marshal implements Constraint.
func (c *SimpleCone) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(SimpleConeConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"max_angle":    spatialmath.RadToDeg(c.maxAngle),
	}
}

// TwistLimitedCone is a SimpleCone with the twist about the forward axis
// clamped to [minTwist, maxTwist]:
//
//	View from side:                 View with forward out of page:
//	                                        maxTwist
//	      / coneAngle                    | /
//	     /                               |/
//	 ---@--------> forward          ----(o)----> perp axis
//	     \                              /|
//	      \ coneAngle                  / |
//	                                minTwist
type TwistLimitedCone struct {
	forward      r3.Vector
	coneAngle    float64
	cosConeAngle float64
	sinConeAngle float64
	minTwist     float64
	maxTwist     float64
}

// NewTwistLimitedCone builds a TwistLimitedCone; the twist limits are
// normalized into (−π, π] and ordered.
func NewTwistLimitedCone(forward r3.Vector, coneAngle, minTwist, maxTwist float64) *TwistLimitedCone {
	minTwist, maxTwist = spatialmath.ComputeAngleLimits(minTwist, maxTwist)
	return &TwistLimitedCone{
		forward:      forward.Normalize(),
		coneAngle:    coneAngle,
		cosConeAngle: math.Cos(coneAngle),
		sinConeAngle: math.Sin(coneAngle),
		minTwist:     minTwist,
		maxTwist:     maxTwist,
	}
}

// Type implements Constraint.
func (c *TwistLimitedCone) Type() ConstraintType { return TwistLimitedConeConstraintType }

// ForwardAxis implements Constraint.
func (c *TwistLimitedCone) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *TwistLimitedCone) AllowsTwist() bool { return true }

// Project implements Constraint.
func (c *TwistLimitedCone) Project(localRot quat.Number) quat.Number {
	forward := spatialmath.Rotate(localRot, c.forward)
	adjusted := localRot
	forwardComponent := forward.Dot(c.forward)
	if forwardComponent < c.cosConeAngle {
		// outside the cone: project onto its surface
		perp := forward.Sub(c.forward.Mul(forwardComponent)).Normalize()
		newForward := c.forward.Mul(c.cosConeAngle).Add(perp.Mul(c.sinConeAngle))
		adjustment := spatialmath.ShortestArc(forward, newForward)
		adjusted = spatialmath.Normalize(quat.Mul(adjustment, localRot))
		forward = newForward
		forwardComponent = forward.Dot(c.forward)
	}

	// build two axes perpendicular to forward: perpX parallel to the bend
	// axis, perpY completing the frame
	perpX := c.forward.Cross(forward)
	if perpX.Norm() < minPerpLength {
		perpX = r3.Vector{X: 1}.Cross(forward)
		if perpX.Norm() < minPerpLength {
			perpX = forward.Cross(r3.Vector{Y: 1})
		}
	}
	perpX = perpX.Normalize()
	perpY := forward.Cross(perpX)

	// perpX is already in the bent frame, so only perpY needs the pure bend
	// rotation applied
	bendAngle := math.Acos(clampToUnit(forwardComponent))
	bendRot := spatialmath.QuatFromAngleAxis(bendAngle, perpX)
	bentPerpY := spatialmath.Rotate(bendRot, perpY)

	// rotating perpX into the joint frame is all twist, since it is parallel
	// to the bend axis
	rotatedPerpX := spatialmath.Rotate(adjusted, perpX)
	twist := math.Atan2(rotatedPerpX.Dot(perpX), rotatedPerpX.Dot(bentPerpY))

	newTwist := spatialmath.ClampAngleToRange(twist, c.minTwist, c.maxTwist)
	if newTwist != twist {
		newRotatedPerpX := perpX.Mul(math.Cos(newTwist)).Add(bentPerpY.Mul(math.Sin(newTwist)))
		adjustment := spatialmath.ShortestArc(rotatedPerpX, newRotatedPerpX)
		adjusted = spatialmath.Normalize(quat.Mul(adjustment, adjusted))
	}
	return adjusted
}

// Enforce implements Constraint.
func (c *TwistLimitedCone) Enforce(joint *Joint) bool { return enforceProjection(c, joint) }

// Hash implements Constraint.
func (c *TwistLimitedCone) Hash() uint64 {
	return newConstraintHasher(TwistLimitedConeConstraintType).
		vector(c.forward).
		floats(c.coneAngle, c.minTwist, c.maxTwist).
		hash()
}

// Marshal implements Constraint.
func (c *TwistLimitedCone) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(TwistLimitedConeConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"cone_angle":   spatialmath.RadToDeg(c.coneAngle),
		"min_twist":    spatialmath.RadToDeg(c.minTwist),
		"max_twist":    spatialmath.RadToDeg(c.maxTwist),
	}
}

func clampToUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
