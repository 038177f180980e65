package ik

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// Per-feature config flag bits.
const (
	configFlagLocalPos          uint8 = 1 << 0
	configFlagLocalRot          uint8 = 1 << 1
	configFlagLocalScale        uint8 = 1 << 2
	configFlagDisableConstraint uint8 = 1 << 3
	configFlagTargetPos         uint8 = 1 << 4
	configFlagTargetRot         uint8 = 1 << 5
	configFlagDelegated         uint8 = 1 << 6 // EXPERIMENTAL
)

// IK flag bits.
const (
	ikFlagLocalRot       uint8 = 1 << 1 // IK has adjusted localRot; harvest it afterward
	ikFlagActive         uint8 = 1 << 5
	ikFlagLocalRotLocked uint8 = 1 << 7 // localRot must not change during IK
)

const (
	maskPos   = configFlagTargetPos | configFlagLocalPos
	maskRot   = configFlagTargetRot | configFlagLocalRot
	maskLocal = configFlagLocalPos | configFlagLocalRot | configFlagDisableConstraint
)

// JointConfig is the per-joint input for one Solve call: a set of optional
// settings, each tracked by a flag bit. Local settings are expressed in the
// parent's frame; target settings are in the skeleton's root frame.
type JointConfig struct {
	localPos   r3.Vector
	localRot   quat.Number
	localScale r3.Vector
	targetPos  r3.Vector
	targetRot  quat.Number
	chainLimit uint8
	flags      uint8
}

// SetLocalPos overrides the joint's rest tip position in its parent's frame.
func (c *JointConfig) SetLocalPos(pos r3.Vector) {
	c.localPos = pos
	c.flags |= configFlagLocalPos
}

// SetLocalRot locks the joint's parent-relative orientation for the solve;
// IK will not change it. The rotation is normalized on the way in.
func (c *JointConfig) SetLocalRot(rot quat.Number) {
	c.localRot = spatialmath.Normalize(rot)
	c.flags |= configFlagLocalRot
}

// SetLocalScale overrides the joint's local scale.
func (c *JointConfig) SetLocalScale(scale r3.Vector) {
	c.localScale = scale
	c.flags |= configFlagLocalScale
}

// SetTargetPos sets the desired world-frame position of the joint's end.
func (c *JointConfig) SetTargetPos(pos r3.Vector) {
	c.targetPos = pos
	c.flags |= configFlagTargetPos
}

// SetTargetRot sets the desired world-frame orientation of the joint,
// normalized on the way in.
func (c *JointConfig) SetTargetRot(rot quat.Number) {
	c.targetRot = spatialmath.Normalize(rot)
	c.flags |= configFlagTargetRot
}

// SetChainLimit caps the chain length built from this joint when it is an
// outer end. Zero means unbounded.
func (c *JointConfig) SetChainLimit(limit uint8) {
	c.chainLimit = limit
}

// DisableConstraint skips constraint enforcement on this joint for the solve.
func (c *JointConfig) DisableConstraint() {
	c.flags |= configFlagDisableConstraint
}

// Delegate marks this config's target as relocated to the parent: chain
// construction skips the joint but it stays active. EXPERIMENTAL.
func (c *JointConfig) Delegate() {
	c.flags |= configFlagDelegated
}

// HasLocalPos reports whether a local position override is set.
func (c *JointConfig) HasLocalPos() bool { return c.flags&configFlagLocalPos != 0 }

// HasLocalRot reports whether a locked local rotation is set.
func (c *JointConfig) HasLocalRot() bool { return c.flags&configFlagLocalRot != 0 }

// HasLocalScale reports whether a local scale override is set.
func (c *JointConfig) HasLocalScale() bool { return c.flags&configFlagLocalScale != 0 }

// HasTargetPos reports whether a world position target is set.
func (c *JointConfig) HasTargetPos() bool { return c.flags&configFlagTargetPos != 0 }

// HasTargetRot reports whether a world orientation target is set.
func (c *JointConfig) HasTargetRot() bool { return c.flags&configFlagTargetRot != 0 }

// ConstraintIsDisabled reports whether constraint enforcement is disabled.
func (c *JointConfig) ConstraintIsDisabled() bool { return c.flags&configFlagDisableConstraint != 0 }

// HasDelegated reports whether the target has been delegated to the parent.
func (c *JointConfig) HasDelegated() bool { return c.flags&configFlagDelegated != 0 }

// LocalPos returns the local position override.
func (c *JointConfig) LocalPos() r3.Vector { return c.localPos }

// LocalRot returns the locked local rotation.
func (c *JointConfig) LocalRot() quat.Number { return c.localRot }

// LocalScale returns the local scale override.
func (c *JointConfig) LocalScale() r3.Vector { return c.localScale }

// TargetPos returns the world position target.
func (c *JointConfig) TargetPos() r3.Vector { return c.targetPos }

// TargetRot returns the world orientation target.
func (c *JointConfig) TargetRot() quat.Number { return c.targetRot }

// ChainLimit returns the chain length cap (0 = unbounded).
func (c *JointConfig) ChainLimit() uint8 { return c.chainLimit }

// Flags returns the raw flag bits.
func (c *JointConfig) Flags() uint8 { return c.flags }

// UpdateFrom copies other into c when both carry the same flags. Otherwise it
// merges the local pos/rot/scale, target pos/rot and disabled-constraint
// settings present in other; the chain limit and the delegated flag are not
// merged in that case.
func (c *JointConfig) UpdateFrom(other *JointConfig) {
	if c.flags == other.flags {
		*c = *other
		return
	}
	if other.HasLocalPos() {
		c.SetLocalPos(other.localPos)
	}
	if other.HasLocalRot() {
		c.SetLocalRot(other.localRot)
	}
	if other.HasTargetPos() {
		c.SetTargetPos(other.targetPos)
	}
	if other.HasTargetRot() {
		c.SetTargetRot(other.targetRot)
	}
	if other.HasLocalScale() {
		c.SetLocalScale(other.localScale)
	}
	if other.ConstraintIsDisabled() {
		c.DisableConstraint()
	}
}

// almostEqual reports whether two configs would produce the same solve, to
// within the given positional tolerance.
func (c *JointConfig) almostEqual(other *JointConfig, epsilon float64) bool {
	if c.flags != other.flags {
		return false
	}
	if c.HasTargetPos() && !spatialmath.VectorAlmostEqual(c.targetPos, other.targetPos, epsilon) {
		return false
	}
	if c.HasTargetRot() && !spatialmath.QuatAlmostEqual(c.targetRot, other.targetRot) {
		return false
	}
	if c.HasLocalPos() && !spatialmath.VectorAlmostEqual(c.localPos, other.localPos, epsilon) {
		return false
	}
	if c.HasLocalRot() && !spatialmath.QuatAlmostEqual(c.localRot, other.localRot) {
		return false
	}
	return true
}
