package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// defaultQuatAlmostEqualTolerance bounds the |dot|-distance from 1 under
// which two unit quaternions are treated as the same rotation.
const defaultQuatAlmostEqualTolerance = 1e-5

// QuatIdentity returns the identity rotation.
func QuatIdentity() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize scales q to unit length. A degenerate (near-zero) quaternion
// normalizes to the identity.
func Normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n < MinInvertibleScale {
		return QuatIdentity()
	}
	return quat.Scale(1/n, q)
}

// QuatNorm returns the euclidean length of q.
func QuatNorm(q quat.Number) float64 {
	return math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// QuatDot returns the 4-dimensional dot product of two quaternions.
func QuatDot(p, q quat.Number) float64 {
	return p.Real*q.Real + p.Imag*q.Imag + p.Jmag*q.Jmag + p.Kmag*q.Kmag
}

// QuaternionAlmostEqual returns whether two unit quaternions represent
// nearly the same orientation: |p·q| > 1 − tol. Note q and −q compare equal,
// as they encode the same rotation.
func QuaternionAlmostEqual(p, q quat.Number, tol float64) bool {
	return math.Abs(QuatDot(p, q)) > 1-tol
}

// QuatAlmostEqual applies QuaternionAlmostEqual at the default tolerance.
func QuatAlmostEqual(p, q quat.Number) bool {
	return QuaternionAlmostEqual(p, q, defaultQuatAlmostEqualTolerance)
}

// Rotate applies the rotation q to the vector v (q v q*).
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	vq := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, vq), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuatFromAngleAxis builds the rotation of the given angle (radians) about
// the given axis. The axis need not be unit length; a degenerate axis yields
// the identity.
func QuatFromAngleAxis(angle float64, axis r3.Vector) quat.Number {
	u, ok := SafeUnit(axis)
	if !ok {
		return QuatIdentity()
	}
	s, c := math.Sincos(0.5 * angle)
	return quat.Number{Real: c, Imag: s * u.X, Jmag: s * u.Y, Kmag: s * u.Z}
}

// AngleAxis decomposes a unit quaternion into its rotation angle in [0, π]
// and unit axis. The identity decomposes to angle 0 about the x axis.
func AngleAxis(q quat.Number) (float64, r3.Vector) {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	im := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := im.Norm()
	if s < MinInvertibleScale {
		return 0, r3.Vector{X: 1}
	}
	return 2 * math.Atan2(s, q.Real), im.Mul(1 / s)
}

// ShortestArc returns the minimal rotation carrying unit vector a onto unit
// vector b. Antiparallel inputs rotate π about an arbitrary perpendicular
// axis; degenerate inputs yield the identity.
func ShortestArc(a, b r3.Vector) quat.Number {
	ua, okA := SafeUnit(a)
	ub, okB := SafeUnit(b)
	if !okA || !okB {
		return QuatIdentity()
	}
	// The thresholds only guard numerical degeneracy: aligned inputs need no
	// rotation, and near-antiparallel inputs make the cross product too short
	// to define an axis.
	dot := ua.Dot(ub)
	if dot >= 1-1e-12 {
		return QuatIdentity()
	}
	if dot <= -1+1e-8 {
		axis := perpendicularTo(ua)
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}
	cross := ua.Cross(ub)
	return Normalize(quat.Number{Real: 1 + dot, Imag: cross.X, Jmag: cross.Y, Kmag: cross.Z})
}

// Lerp interpolates from p toward q by t and renormalizes (nlerp). q is
// flipped onto p's hemisphere first so the blend takes the short way around.
func Lerp(t float64, p, q quat.Number) quat.Number {
	if QuatDot(p, q) < 0 {
		q = quat.Scale(-1, q)
	}
	return Normalize(quat.Add(p, quat.Scale(t, quat.Sub(q, p))))
}

// Slerp spherically interpolates from p toward q by t, taking the short way
// around. It falls back to Lerp when the quaternions are nearly aligned.
func Slerp(t float64, p, q quat.Number) quat.Number {
	dot := QuatDot(p, q)
	if dot < 0 {
		q = quat.Scale(-1, q)
		dot = -dot
	}
	if dot > 1-defaultQuatAlmostEqualTolerance {
		return Lerp(t, p, q)
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wp := math.Sin((1-t)*theta) / sinTheta
	wq := math.Sin(t*theta) / sinTheta
	return Normalize(quat.Add(quat.Scale(wp, p), quat.Scale(wq, q)))
}
