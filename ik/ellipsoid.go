package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// AcuteEllipsoidalCone is a cone with asymmetric radii in the up, left, down,
// and right directions: non-symmetric bend limits for axes perpendicular to
// forward. The boundary is described by a "cross" of radii one unit forward
// of the joint tip; each quadrant of the cross in the left-up plane is bound
// by the elliptical arc between its two radii.
//
//	    up  left            |
//	     | /                | /
//	     |/                 |/
//	  ---@------------------+
//	          forward      /|
//	                        |
type AcuteEllipsoidalCone struct {
	forward r3.Vector
	up      r3.Vector
	left    r3.Vector

	radiusForward float64
	radiusUp      float64
	radiusDown    float64
	radiusLeft    float64
	radiusRight   float64

	// cached per-quadrant projection parameters
	quadrantScales    [4]float64
	quadrantCosAngles [4]float64
	quadrantCotAngles [4]float64
}

// NewAcuteEllipsoidalCone builds the constraint from its five radii. The
// forward axis is orthogonalized against up.
func NewAcuteEllipsoidalCone(forwardAxis, upAxis r3.Vector, forward, up, left, down, right float64) *AcuteEllipsoidalCone {
	c := &AcuteEllipsoidalCone{
		radiusForward: forward,
		radiusUp:      up,
		radiusDown:    down,
		radiusLeft:    left,
		radiusRight:   right,
	}
	c.up = upAxis.Normalize()
	c.forward = c.up.Cross(forwardAxis).Cross(c.up).Normalize()
	c.left = c.up.Cross(c.forward)
	c.cacheQuadrants()
	return c
}

func (c *AcuteEllipsoidalCone) cacheQuadrants() {
	// Normalize the forward component (adjacent side) of every quadrant
	// triangle to length 1 so the trigonometry below holds.
	up := math.Abs(c.radiusUp / c.radiusForward)
	left := math.Abs(c.radiusLeft / c.radiusForward)
	down := math.Abs(c.radiusDown / c.radiusForward)
	right := math.Abs(c.radiusRight / c.radiusForward)

	// Quadrant indices, with forward pointing into the page:
	//             up
	//              |
	//          1   |   0
	//              |
	//  left ------(x)------ right
	//              |
	//          2   |   3
	//              |
	//            down
	//
	// Projections always scale the left axis into the frame where the
	// quadrant's ellipse is a circle.
	c.quadrantScales[0] = up / right
	c.quadrantScales[1] = up / left
	c.quadrantScales[2] = down / left
	c.quadrantScales[3] = down / right

	// cosine = adjacent / hypotenuse, cotangent = adjacent / opposite
	c.quadrantCosAngles[0] = 1 / math.Sqrt(up*up+1)
	c.quadrantCotAngles[0] = 1 / up
	c.quadrantCosAngles[1] = c.quadrantCosAngles[0]
	c.quadrantCotAngles[1] = c.quadrantCotAngles[0]
	c.quadrantCosAngles[2] = 1 / math.Sqrt(down*down+1)
	c.quadrantCotAngles[2] = 1 / down
	c.quadrantCosAngles[3] = c.quadrantCosAngles[2]
	c.quadrantCotAngles[3] = c.quadrantCotAngles[2]
}

// Type implements Constraint.
func (c *AcuteEllipsoidalCone) Type() ConstraintType { return AcuteEllipsoidalConeConstraintType }

// ForwardAxis implements Constraint.
func (c *AcuteEllipsoidalCone) ForwardAxis() r3.Vector { return c.forward }

// AllowsTwist implements Constraint.
func (c *AcuteEllipsoidalCone) AllowsTwist() bool { return true }

// Project implements Constraint.
func (c *AcuteEllipsoidalCone) Project(localRot quat.Number) quat.Number {
	forward := spatialmath.Rotate(localRot, c.forward)

	upComponent := forward.Dot(c.up)
	leftComponent := forward.Dot(c.left)
	q := 1
	switch {
	case upComponent < 0 && leftComponent < 0:
		q = 3
	case upComponent < 0:
		q = 2
	case leftComponent < 0:
		q = 0
	}

	// scale the left axis into the frame where this quadrant's arc is a
	// circle
	scaledLeftComponent := leftComponent * c.quadrantScales[q]
	forwardComponent := forward.Dot(c.forward)
	newForward := c.forward.Mul(forwardComponent).
		Add(c.up.Mul(upComponent)).
		Add(c.left.Mul(scaledLeftComponent))
	// newForward is not normalized, so the forward component must be
	// re-scaled when testing against the cone angle
	if forwardComponent/newForward.Norm() >= c.quadrantCosAngles[q] {
		return localRot
	}

	// outside the cone: keep the orthogonal components and rebuild the
	// forward component from adjacent = opposite · cot(angle)
	orthogonalComponent := math.Sqrt(scaledLeftComponent*scaledLeftComponent + upComponent*upComponent)
	forwardComponent = orthogonalComponent * c.quadrantCotAngles[q]
	newForward = c.forward.Mul(forwardComponent).
		Add(c.up.Mul(upComponent)).
		Add(c.left.Mul(leftComponent))

	adjustment := spatialmath.ShortestArc(forward, newForward)
	return spatialmath.Normalize(quat.Mul(adjustment, localRot))
}

// Enforce implements Constraint.
func (c *AcuteEllipsoidalCone) Enforce(joint *Joint) bool { return enforceProjection(c, joint) }

// Hash implements Constraint.
func (c *AcuteEllipsoidalCone) Hash() uint64 {
	return newConstraintHasher(AcuteEllipsoidalConeConstraintType).
		vector(c.forward).
		vector(c.up).
		floats(c.radiusForward, c.radiusUp, c.radiusDown, c.radiusLeft, c.radiusRight).
		hash()
}

// Marshal implements Constraint.
func (c *AcuteEllipsoidalCone) Marshal() map[string]interface{} {
	return map[string]interface{}{
		"type":         string(AcuteEllipsoidalConeConstraintType),
		"forward_axis": vectorToSlice(c.forward),
		"up_axis":      vectorToSlice(c.up),
		"forward":      c.radiusForward,
		"up":           c.radiusUp,
		"down":         c.radiusDown,
		"left":         c.radiusLeft,
		"right":        c.radiusRight,
	}
}
