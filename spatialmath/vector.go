// Package spatialmath provides the vector, quaternion, and angle math
// underpinning the ik solver: shortest-arc rotations, normalized-linear
// quaternion interpolation, and periodic angle clamping.
package spatialmath

import (
	"github.com/golang/geo/r3"
)

// MinInvertibleScale is the smallest scale component that can be safely
// inverted; anything at or below it inverse-scales to zero instead of
// producing Inf/NaN.
const MinInvertibleScale = 1e-15

// ScaleComponents returns v scaled componentwise by scale.
func ScaleComponents(v, scale r3.Vector) r3.Vector {
	return r3.Vector{X: v.X * scale.X, Y: v.Y * scale.Y, Z: v.Z * scale.Z}
}

// InvertScale returns the componentwise reciprocal of scale. Components at or
// below MinInvertibleScale invert to zero.
func InvertScale(scale r3.Vector) r3.Vector {
	inv := func(s float64) float64 {
		if s <= MinInvertibleScale {
			return 0
		}
		return 1 / s
	}
	return r3.Vector{X: inv(scale.X), Y: inv(scale.Y), Z: inv(scale.Z)}
}

// SafeUnit returns the unit vector of v, or ok=false when v is too short to
// normalize meaningfully.
func SafeUnit(v r3.Vector) (r3.Vector, bool) {
	n := v.Norm()
	if n < MinInvertibleScale {
		return r3.Vector{}, false
	}
	return v.Mul(1 / n), true
}

// VectorAlmostEqual returns whether two vectors are within epsilon of each
// other, by euclidean distance.
func VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return a.Sub(b).Norm() <= epsilon
}

// perpendicularTo returns an arbitrary unit vector perpendicular to v.
// v is assumed non-zero.
func perpendicularTo(v r3.Vector) r3.Vector {
	perp := r3.Vector{X: 1}.Cross(v)
	if perp.Norm2() < minPerpLengthSquared {
		perp = v.Cross(r3.Vector{Y: 1})
	}
	return perp.Normalize()
}

const minPerpLengthSquared = 1e-8
