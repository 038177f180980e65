package ik

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// ConstraintType names a concrete constraint kind, matching the uppercase
// type strings used in constraint documents.
type ConstraintType string

// The supported constraint kinds.
const (
	SimpleConeConstraintType           ConstraintType = "SIMPLE_CONE"
	TwistLimitedConeConstraintType     ConstraintType = "TWIST_LIMITED_CONE"
	ShoulderConstraintType             ConstraintType = "SHOULDER"
	ElbowConstraintType                ConstraintType = "ELBOW"
	KneeConstraintType                 ConstraintType = "KNEE"
	AcuteEllipsoidalConeConstraintType ConstraintType = "ACUTE_ELLIPSOIDAL_CONE"
	DoubleLimitedHingeConstraintType   ConstraintType = "DOUBLE_LIMITED_HINGE"
)

// verySmallAngle is the rotation angle below which an adjustment is treated
// as a no-op.
const verySmallAngle = 0.001 * math.Pi

// minPerpLength guards the construction of perpendicular frames against
// nearly parallel inputs.
const minPerpLength = 1e-4

// A Constraint limits the parent-relative orientation of the joint it is
// attached to. Constraints are immutable after construction and may be
// shared across joints and across solvers.
type Constraint interface {
	// Type returns the constraint's kind.
	Type() ConstraintType

	// ForwardAxis is the joint's aim direction in its local frame; it equals
	// the joint's bone direction in the rest pose.
	ForwardAxis() r3.Vector

	// Project snaps a proposed local rotation to the nearest admissible one.
	// Admissible inputs come back almost-equal to themselves.
	Project(localRot quat.Number) quat.Number

	// Enforce applies the constraint to the joint's current local rotation,
	// returning whether anything changed. The base behavior projects the
	// joint's localRot and stores the result without refreshing the world
	// rotation (that responsibility belongs to the caller); some kinds
	// override this to work in world space and push back on the parent.
	Enforce(joint *Joint) bool

	// AllowsTwist reports whether any rotation about the forward axis is
	// admissible.
	AllowsTwist() bool

	// Hash is a stable structural hash: equal parameters hash equal. Used by
	// the factory to share instances.
	Hash() uint64

	// Marshal returns the constraint's self-describing document form, with
	// angles in degrees.
	Marshal() map[string]interface{}
}

// enforceProjection is the default Enforce: project the joint's localRot and
// store it if it moved.
func enforceProjection(c Constraint, joint *Joint) bool {
	localRot := joint.localRot
	adjusted := c.Project(localRot)
	if !spatialmath.QuatAlmostEqual(adjusted, localRot) {
		joint.setLocalRot(adjusted)
		return true
	}
	return false
}

// quatNearIdentity reports whether q rotates by less than verySmallAngle.
func quatNearIdentity(q quat.Number) bool {
	angle, _ := spatialmath.AngleAxis(q)
	return angle < verySmallAngle
}

// constraintHasher accumulates a structural hash over a constraint's type tag
// and parameters.
type constraintHasher struct {
	sum []byte
}

func newConstraintHasher(kind ConstraintType) *constraintHasher {
	h := &constraintHasher{}
	h.sum = append(h.sum, kind...)
	return h
}

func (h *constraintHasher) floats(vals ...float64) *constraintHasher {
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.sum = append(h.sum, buf[:]...)
	}
	return h
}

func (h *constraintHasher) vector(v r3.Vector) *constraintHasher {
	return h.floats(v.X, v.Y, v.Z)
}

func (h *constraintHasher) hash() uint64 {
	f := fnv.New64a()
	f.Write(h.sum)
	return f.Sum64()
}

// vectorToSlice flattens a vector for document serialization.
func vectorToSlice(v r3.Vector) []float64 {
	return []float64{v.X, v.Y, v.Z}
}
