package ik

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// worldRotTargetBackpressureCoef is how far a rotation-targeted joint's world
// rotation is pulled back toward its target each time its local rotation is
// re-applied.
const worldRotTargetBackpressureCoef = 0.5

// Joint is one constrained bone in the skeleton hierarchy. It typically has a
// parent, a fixed localPos (tip position in the parent's frame), and a fixed
// bone to its end position in its own frame. The fundamental formulas are:
//
//	worldPos = parent.worldPos + localPos rotated by parent.worldRot
//	worldRot = parent.worldRot composed with localRot
//
// and the world-frame end of the joint is:
//
//	worldEndPos = worldPos + bone rotated by worldRot
//
// "World" here really means the root frame of the skeleton hierarchy.
type Joint struct {
	id       int16
	parent   *Joint
	children []*Joint

	localPos r3.Vector // current tip position in parent frame
	worldPos r3.Vector

	// There is no default localRot field: the rest local rotation is
	// understood to be identity.
	localRot quat.Number
	worldRot quat.Number

	localScale r3.Vector
	bone       r3.Vector

	constraint     Constraint
	localPosLength float64 // cached |localPos|
	info           JointInfo

	config      *JointConfig // borrowed from the Solver's config map
	configFlags uint8        // cache of config.Flags()
	ikFlags     uint8
}

// NewJoint builds a joint from its id and rest-pose info.
func NewJoint(id int16, info JointInfo) *Joint {
	j := &Joint{id: id, info: info}
	j.resetFromInfo()
	return j
}

func (j *Joint) resetFromInfo() {
	scale := j.info.RestScale()
	j.localPos = spatialmath.ScaleComponents(j.info.RestPosition(), scale)
	j.bone = spatialmath.ScaleComponents(j.info.RestEndOffset(), scale)
	j.localPosLength = j.localPos.Norm()
	// The info's scale is baked into localPos and bone above; localScale only
	// tracks the host's tweak on top of it.
	j.localScale = r3.Vector{X: 1, Y: 1, Z: 1}
}

func (j *Joint) addChild(child *Joint) {
	if child != nil {
		j.children = append(j.children, child)
	}
}

func (j *Joint) setParent(parent *Joint) {
	j.parent = parent
	if j.parent == nil {
		// The root's local orientation is never updated by the IK algorithm;
		// whatever orientation it starts with is final. Flagging it locked
		// also lets the rest of the code assume any non-locked joint has a
		// parent.
		j.ikFlags = ikFlagLocalRotLocked
	}
	j.reset()
}

func (j *Joint) reset() {
	j.resetFromInfo()
	j.localRot = spatialmath.QuatIdentity()
	if j.parent != nil {
		j.worldPos = j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))
		j.worldRot = j.parent.worldRot
	} else {
		j.worldPos = j.localPos
		j.worldRot = j.localRot
	}
}

func (j *Joint) resetRecursively() {
	j.reset()
	for _, child := range j.children {
		child.resetRecursively()
	}
}

func (j *Joint) relaxRot(blendFactor float64) {
	if !j.localRotLocked() {
		j.localRot = spatialmath.Lerp(blendFactor, j.localRot, spatialmath.QuatIdentity())
	}
	// always recompute the world transform: the parent may have relaxed
	if j.parent != nil {
		j.worldRot = spatialmath.Normalize(quat.Mul(j.parent.worldRot, j.localRot))
		j.worldPos = j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))
	} else {
		j.worldRot = j.localRot
		j.worldPos = j.localPos
	}
}

func (j *Joint) relaxRotationsRecursively(blendFactor float64) {
	blendFactor = math.Min(math.Max(blendFactor, 0), 1)
	j.relaxRot(blendFactor)
	for _, child := range j.children {
		if child.isActive() {
			child.relaxRotationsRecursively(blendFactor)
		}
	}
}

// RecursiveComputeLongestChainLength returns the length of the longest
// tip-to-end path through this joint's subtree, starting from the given
// accumulated length.
func (j *Joint) RecursiveComputeLongestChainLength(length float64) float64 {
	length += j.localPosLength
	longest := length
	if len(j.children) == 0 {
		longest += j.bone.Norm()
	} else {
		for _, child := range j.children {
			if childLength := child.RecursiveComputeLongestChainLength(length); childLength > longest {
				longest = childLength
			}
		}
	}
	return longest
}

// ComputeWorldTipOffset returns how far this joint's tip has drifted from
// where its parent's transform says it should be.
func (j *Joint) ComputeWorldTipOffset() r3.Vector {
	offset := j.worldPos
	if j.parent != nil {
		offset = offset.Sub(j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos)))
	}
	return offset
}

// updateEndInward updates this chain outer-end's world transform from its
// targets during the FABRIK inward pass, then refreshes its children's local
// rotations. The joint's own localRot is updated later, once its parent's
// position is known.
func (j *Joint) updateEndInward(enforceConstraints bool) {
	if j.hasRotTarget() {
		j.worldRot = j.config.TargetRot()
		if j.hasPosTarget() {
			j.worldPos = j.config.TargetPos().Sub(spatialmath.Rotate(j.worldRot, j.bone))
		}
	} else {
		localTargets, worldTargets := j.collectTargetPositions()
		if len(localTargets) == 1 {
			// single-target fast path
			boneDir := worldTargets[0].Sub(j.worldPos).Normalize()
			j.worldPos = worldTargets[0].Sub(boneDir.Mul(localTargets[0].Norm()))

			oldBone := spatialmath.Rotate(j.worldRot, localTargets[0])
			adjustment := spatialmath.ShortestArc(oldBone, boneDir)
			j.worldRot = spatialmath.Normalize(quat.Mul(adjustment, j.worldRot))
		} else {
			newPos := r3.Vector{}
			avgAdjustment := quat.Number{} // origin in quaternion space
			for i := range localTargets {
				newBone := worldTargets[i].Sub(j.worldPos).Normalize().Mul(localTargets[i].Norm())
				newPos = newPos.Add(worldTargets[i].Sub(newBone))

				oldBone := spatialmath.Rotate(j.worldRot, localTargets[i])
				adjustment := spatialmath.ShortestArc(oldBone, newBone)
				if adjustment.Real < 0 {
					// negate to keep all arithmetic on the same hypersphere
					avgAdjustment = quat.Sub(avgAdjustment, adjustment)
				} else {
					avgAdjustment = quat.Add(avgAdjustment, adjustment)
				}
			}
			if j.parent != nil && j.parent.isActive() {
				j.worldPos = newPos.Mul(1 / float64(len(localTargets)))
			}
			avgAdjustment = spatialmath.Normalize(avgAdjustment)
			j.worldRot = spatialmath.Normalize(quat.Mul(avgAdjustment, j.worldRot))
		}
	}

	// now that worldRot is known, refresh the children's localRot
	somethingChanged := false
	for _, child := range j.children {
		if child.isActive() {
			somethingChanged = child.updateLocalRot(enforceConstraints) || somethingChanged
		}
	}
	if somethingChanged {
		// a child constraint swung this joint during the inward pass, so
		// recompute worldRot as the average over the children's relations
		avgRot := quat.Number{}
		for _, child := range j.children {
			// child.worldRot = worldRot composed with child.localRot, so
			// worldRot = child.worldRot composed with child.localRot inverse
			rot := quat.Mul(child.worldRot, quat.Conj(child.localRot))
			if rot.Real < 0 {
				avgRot = quat.Sub(avgRot, rot)
			} else {
				avgRot = quat.Add(avgRot, rot)
			}
			avgRot = spatialmath.Normalize(avgRot)
			j.worldRot = avgRot
		}
	}
}

// updateEndOutward updates this chain outer-end's world transform during the
// FABRIK outward pass. The parent must exist.
func (j *Joint) updateEndOutward(enforceConstraints bool) {
	j.worldPos = j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))

	if j.localRotLocked() {
		j.worldRot = quat.Mul(j.parent.worldRot, j.localRot)
		return
	}

	if j.hasRotTarget() {
		j.worldRot = j.config.TargetRot()
		if j.hasPosTarget() {
			j.worldPos = j.config.TargetPos().Sub(spatialmath.Rotate(j.worldRot, j.bone))
		}
	} else {
		localTargets, worldTargets := j.collectTargetPositions()
		if len(localTargets) == 1 {
			newBone := worldTargets[0].Sub(j.worldPos)
			oldBone := spatialmath.Rotate(j.worldRot, localTargets[0])
			adjustment := spatialmath.ShortestArc(oldBone, newBone)
			j.worldRot = quat.Mul(adjustment, j.worldRot)
		} else {
			avgAdjustment := quat.Number{}
			for i := range localTargets {
				newBone := worldTargets[i].Sub(j.worldPos)
				oldBone := spatialmath.Rotate(j.worldRot, localTargets[i])
				adjustment := spatialmath.ShortestArc(oldBone, newBone)
				if adjustment.Real < 0 {
					avgAdjustment = quat.Sub(avgAdjustment, adjustment)
				} else {
					avgAdjustment = quat.Add(avgAdjustment, adjustment)
				}
			}
			avgAdjustment = spatialmath.Normalize(avgAdjustment)
			j.worldRot = quat.Mul(avgAdjustment, j.worldRot)
		}
		j.worldRot = spatialmath.Normalize(j.worldRot)
	}

	if j.updateLocalRot(enforceConstraints) {
		j.applyLocalRot()
	}
}

// updateInward moves this joint toward the given child during the FABRIK
// inward pass. The child argument disambiguates when this joint has several.
// The parent must exist.
func (j *Joint) updateInward(child *Joint, enforceConstraints bool) {
	boneDir := child.worldPos.Sub(j.worldPos).Normalize()
	j.worldPos = child.worldPos.Sub(boneDir.Mul(child.localPosLength))

	oldBone := spatialmath.Rotate(j.worldRot, child.localPos)
	adjustment := spatialmath.ShortestArc(oldBone, boneDir)
	j.worldRot = spatialmath.Normalize(quat.Mul(adjustment, j.worldRot))

	// now that worldRot is known, refresh child.localRot
	if child.updateLocalRot(enforceConstraints) {
		// the child's constraint swung this joint: recompute worldRot from
		// the child's relation, then re-derive worldPos
		j.worldRot = spatialmath.Normalize(quat.Mul(child.worldRot, quat.Conj(child.localRot)))
		j.worldPos = child.worldPos.Sub(spatialmath.Rotate(j.worldRot, child.localPos))
	}
	// this joint's own localRot is updated later, when its parent's worldRot
	// is known
}

func (j *Joint) updatePosAndRotFromParent() {
	if j.parent != nil {
		j.worldPos = j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))
		j.worldRot = spatialmath.Normalize(quat.Mul(j.parent.worldRot, j.localRot))
	}
}

// updateOutward moves this joint's tip to its parent-derived anchor while
// preserving its world-frame end position, during the FABRIK outward pass.
// The parent must exist.
func (j *Joint) updateOutward(enforceConstraints bool) {
	oldEndPos := j.worldPos.Add(spatialmath.Rotate(j.worldRot, j.bone))

	j.worldPos = j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))

	newBone := oldEndPos.Sub(j.worldPos)
	oldBone := spatialmath.Rotate(j.worldRot, j.bone)
	adjustment := spatialmath.ShortestArc(oldBone, newBone)
	j.worldRot = spatialmath.Normalize(quat.Mul(adjustment, j.worldRot))

	if j.updateLocalRot(enforceConstraints) {
		j.applyLocalRot()
	}
}

// applyLocalRot recomputes worldRot from localRot and the parent. A joint
// with a rotation target is pulled partway back toward it instead, and its
// localRot re-derived from the blend.
func (j *Joint) applyLocalRot() {
	if j.parent == nil {
		// for the root, local frame is world frame
		j.worldRot = j.localRot
		return
	}
	if j.hasRotTarget() {
		newRot := quat.Mul(j.parent.worldRot, j.localRot)
		j.worldRot = spatialmath.Lerp(worldRotTargetBackpressureCoef, j.config.TargetRot(), newRot)
		j.localRot = spatialmath.Normalize(quat.Mul(quat.Conj(j.parent.worldRot), j.worldRot))
	} else {
		j.worldRot = spatialmath.Normalize(quat.Mul(j.parent.worldRot, j.localRot))
	}
}

// updateLocalRot re-derives localRot from worldRot and the parent's worldRot,
// optionally enforcing the constraint. Returns whether the constraint kicked
// in (or would have: a locked joint whose transform disagrees also counts).
// The parent must exist.
func (j *Joint) updateLocalRot(enforceConstraints bool) bool {
	newLocalRot := spatialmath.Normalize(quat.Mul(quat.Conj(j.parent.worldRot), j.worldRot))

	constraintWasEnforced := false
	if !spatialmath.QuatAlmostEqual(newLocalRot, j.localRot) {
		if j.localRotLocked() {
			return true
		}
		j.localRot = newLocalRot
	}
	if enforceConstraints {
		constraintWasEnforced = j.enforceConstraint()
	}
	return constraintWasEnforced
}

// updateChildLocalRots refreshes the active children's localRot now that this
// joint's worldRot is known. Child constraints are not enforced here.
func (j *Joint) updateChildLocalRots() {
	for _, child := range j.children {
		if child.isActive() {
			child.updateLocalRot(false)
		}
	}
}

func (j *Joint) computePosFromParent() r3.Vector {
	return j.parent.worldPos.Add(spatialmath.Rotate(j.parent.worldRot, j.localPos))
}

func (j *Joint) shiftPos(shift r3.Vector) {
	j.worldPos = j.worldPos.Add(shift)
}

func (j *Joint) setConfig(config *JointConfig) {
	// only remembered here; applied when the chains are built
	j.config = config
	j.configFlags = config.Flags()
}

func (j *Joint) resetFlags() {
	j.config = nil
	j.configFlags = 0
	// the root always keeps its locked bit
	if j.parent != nil {
		j.ikFlags = 0
	} else {
		j.ikFlags = ikFlagLocalRotLocked
	}
}

func (j *Joint) lockLocalRot(localRot quat.Number) {
	j.localRot = localRot
	j.ikFlags |= ikFlagLocalRotLocked
	j.activate()
	if j.parent == nil {
		j.worldRot = localRot
	}
}

func (j *Joint) enforceConstraint() bool {
	if !j.localRotLocked() && j.constraint != nil && !j.hasDisabledConstraint() {
		// the constraint may reach in and update the local- and world-frame
		// transforms of this joint and its parent
		return j.constraint.Enforce(j)
	}
	return false
}

func (j *Joint) updateWorldTransformsRecursively() {
	j.updatePosAndRotFromParent()
	for _, child := range j.children {
		if child.isActive() {
			child.updateWorldTransformsRecursively()
		}
	}
}

// singleActiveChild returns this joint's only active child, or nil when it
// has none or several.
func (j *Joint) singleActiveChild() *Joint {
	var activeChild *Joint
	for _, child := range j.children {
		if child.isActive() {
			if activeChild != nil {
				return nil
			}
			activeChild = child
		}
	}
	return activeChild
}

// ComputeWorldEndPos returns the joint's end position in the world frame.
func (j *Joint) ComputeWorldEndPos() r3.Vector {
	return j.worldPos.Add(spatialmath.Rotate(j.worldRot, j.bone))
}

func (j *Joint) setWorldPos(pos r3.Vector) {
	j.worldPos = pos
}

// setLocalPos overrides the joint's tip position in its parent's frame. Only
// called before IK iterations start.
func (j *Joint) setLocalPos(pos r3.Vector) {
	j.localPos = spatialmath.ScaleComponents(pos, j.localScale)
	j.localPosLength = j.localPos.Norm()
	if j.parent == nil {
		j.worldPos = j.localPos
	}
}

func (j *Joint) setWorldRot(rot quat.Number) {
	j.worldRot = rot
}

func (j *Joint) setLocalRot(newLocalRot quat.Number) {
	if !j.localRotLocked() {
		j.localRot = newLocalRot
	}
}

// setLocalScale rescales the joint geometry. The scale is relative to
// whatever scale was previously applied: the stored bone and localPos are
// multiplied by new/old componentwise, so the first call scales the rest
// geometry directly and later calls adjust it. Near-zero previous components
// rescale to zero rather than dividing. Only called before IK iterations
// start.
func (j *Joint) setLocalScale(scale r3.Vector) {
	invOld := spatialmath.InvertScale(j.localScale)
	reScale := spatialmath.ScaleComponents(scale, invOld)
	j.localScale = scale
	j.bone = spatialmath.ScaleComponents(j.bone, reScale)
	j.localPos = spatialmath.ScaleComponents(j.localPos, reScale)
	j.localPosLength = j.localPos.Norm()
}

// GetPreScaledLocalPos returns localPos with the info's scale removed, for
// hosts that want the position in the info's pre-scaled frame.
func (j *Joint) GetPreScaledLocalPos() r3.Vector {
	return spatialmath.ScaleComponents(j.localPos, spatialmath.InvertScale(j.info.RestScale()))
}

// collectTargetPositions gathers the joint's target pairs: points in the
// joint's local frame alongside where they should land in the world frame.
// A position-targeted joint yields its bone and target; otherwise each
// active child yields its localPos and current world position. The joint is
// expected to have a target or at least one active child.
func (j *Joint) collectTargetPositions() ([]r3.Vector, []r3.Vector) {
	if j.hasPosTarget() {
		return []r3.Vector{j.bone}, []r3.Vector{j.config.TargetPos()}
	}
	var localTargets, worldTargets []r3.Vector
	for _, child := range j.children {
		if child.isActive() {
			localTargets = append(localTargets, child.localPos)
			worldTargets = append(worldTargets, child.worldPos)
		}
	}
	return localTargets, worldTargets
}

// transformTargetsToParentLocal rewrites the local targets from this joint's
// frame into its parent's frame, in place. Used while walking a chain inward
// during CCD.
func (j *Joint) transformTargetsToParentLocal(localTargets []r3.Vector) {
	if j.parent == nil {
		return
	}
	worldToParent := quat.Conj(j.parent.worldRot)
	for i, target := range localTargets {
		worldTarget := j.worldPos.Add(spatialmath.Rotate(j.worldRot, target)).Sub(j.parent.worldPos)
		localTargets[i] = spatialmath.Rotate(worldToParent, worldTarget)
	}
}

// swingTowardTargets rotates the joint part of the way toward aligning its
// local targets with their world counterparts (the CCD step). Returns false
// when the joint did not move, which ends the chain's inward walk.
func (j *Joint) swingTowardTargets(localTargets, worldTargets []r3.Vector, swingFactor float64) bool {
	if j.localRotLocked() {
		// nothing to do, but assume the targets are not yet reached
		return true
	}

	somethingChanged := false
	if j.hasRotTarget() {
		j.worldRot = j.config.TargetRot()
		somethingChanged = true
	} else {
		var adjustment quat.Number
		if len(localTargets) == 1 {
			oldBone := spatialmath.Rotate(j.worldRot, localTargets[0])
			newBone := worldTargets[0].Sub(j.worldPos)
			adjustment = spatialmath.ShortestArc(oldBone, newBone)
		} else {
			for i := range localTargets {
				oldBone := spatialmath.Rotate(j.worldRot, localTargets[i])
				newBone := worldTargets[i].Sub(j.worldPos)
				adj := spatialmath.ShortestArc(oldBone, newBone)
				if adj.Real < 0 {
					adjustment = quat.Sub(adjustment, adj)
				} else {
					adjustment = quat.Add(adjustment, adj)
				}
			}
			adjustment = spatialmath.Normalize(adjustment)
		}

		if !quatNearIdentity(adjustment) {
			// lerp the adjustment instead of applying the full rotation, so
			// the swing distributes along the length of the chain
			adjustment = spatialmath.Lerp(swingFactor, spatialmath.QuatIdentity(), adjustment)
			j.worldRot = spatialmath.Normalize(quat.Mul(adjustment, j.worldRot))
			somethingChanged = true
		}
	}
	if somethingChanged {
		j.localRot = spatialmath.Normalize(quat.Mul(quat.Conj(j.parent.worldRot), j.worldRot))
		j.enforceConstraint()
		// even if the constraint moved localRot we leave worldRot alone: the
		// outward refresh after the CCD pass recomputes every world transform
	}
	return somethingChanged
}

// twistTowardTargets twists the joint about its constraint's forward axis
// toward its targets. EXPERIMENTAL: part of the CCD family, unused by the
// default FABRIK path.
func (j *Joint) twistTowardTargets(localTargets, worldTargets []r3.Vector) {
	const twistBlend = 0.4
	const minTargetLength = 1e-2
	const minRadiusFraction = 1e-2

	if j.constraint == nil || !j.constraint.AllowsTwist() {
		return
	}
	// always twist about the constraint's forward axis
	axis := spatialmath.Rotate(j.worldRot, j.constraint.ForwardAxis())

	var adjustment quat.Number
	numAdjustments := 0
	for i := range localTargets {
		// transform into the world frame with worldPos as origin
		localTarget := spatialmath.Rotate(j.worldRot, localTargets[i])
		worldTarget := worldTargets[i].Sub(j.worldPos)
		targetLength := localTarget.Norm()
		if targetLength < minTargetLength {
			// bone too short
			return
		}

		// remove components parallel to the twist axis
		localTarget = localTarget.Sub(axis.Mul(localTarget.Dot(axis)))
		worldTarget = worldTarget.Sub(axis.Mul(worldTarget.Dot(axis)))

		if localTarget.Dot(worldTarget) < 0 {
			// this discrepancy is better served by a swing
			return
		}

		minRadius := minRadiusFraction * targetLength
		if localTarget.Norm() < minRadius || worldTarget.Norm() < minRadius {
			// twist movement too small to bother
			return
		}

		adj := spatialmath.ShortestArc(localTarget, worldTarget)
		if numAdjustments == 0 && len(localTargets) == 1 {
			adjustment = adj
		} else if adj.Real < 0 {
			adjustment = quat.Sub(adjustment, adj)
		} else {
			adjustment = quat.Add(adjustment, adj)
		}
		numAdjustments++
	}
	if numAdjustments == 0 {
		return
	}
	if len(localTargets) > 1 {
		adjustment = spatialmath.Normalize(adjustment)
	}

	// lerp the adjustment so the twist distributes along the chain
	adjustment = spatialmath.Lerp(twistBlend, spatialmath.QuatIdentity(), adjustment)
	j.worldRot = spatialmath.Normalize(quat.Mul(adjustment, j.worldRot))

	j.localRot = spatialmath.Normalize(quat.Mul(quat.Conj(j.parent.worldRot), j.worldRot))
	if j.enforceConstraint() {
		j.applyLocalRot()
	}
}

// setTargetPos rewrites the joint's position target in place. Used by the
// sequential end-effector fix-up during chain construction.
func (j *Joint) setTargetPos(pos r3.Vector) {
	if j.hasPosTarget() {
		j.config.SetTargetPos(pos)
	}
}

func (j *Joint) targetPos() r3.Vector { return j.config.TargetPos() }

func (j *Joint) hasPosTarget() bool { return j.configFlags&configFlagTargetPos != 0 }

func (j *Joint) hasRotTarget() bool { return j.configFlags&configFlagTargetRot != 0 }

func (j *Joint) hasDisabledConstraint() bool { return j.configFlags&configFlagDisableConstraint != 0 }

func (j *Joint) activate() { j.ikFlags |= ikFlagActive }

func (j *Joint) isActive() bool { return j.ikFlags&ikFlagActive != 0 }

func (j *Joint) localRotLocked() bool { return j.ikFlags&ikFlagLocalRotLocked != 0 }

// flagForHarvest marks the joint as updated by IK so the host knows to read
// its localRot afterward.
func (j *Joint) flagForHarvest() { j.ikFlags |= ikFlagLocalRot }

// ID returns the joint's id.
func (j *Joint) ID() int16 { return j.id }

// Parent returns the joint's parent, or nil for the root.
func (j *Joint) Parent() *Joint { return j.parent }

// NumChildren returns how many children the joint has.
func (j *Joint) NumChildren() int { return len(j.children) }

// IsActive reports whether the joint participates in the current solve.
func (j *Joint) IsActive() bool { return j.isActive() }

// LocalRotLocked reports whether IK is forbidden from changing localRot.
func (j *Joint) LocalRotLocked() bool { return j.localRotLocked() }

// WorldTipPos returns the joint's tip position in the world frame.
func (j *Joint) WorldTipPos() r3.Vector { return j.worldPos }

// WorldRot returns the joint's orientation in the world frame.
func (j *Joint) WorldRot() quat.Number { return j.worldRot }

// LocalRot returns the joint's parent-relative orientation.
func (j *Joint) LocalRot() quat.Number { return j.localRot }

// LocalPos returns the joint's tip position in its parent's frame.
func (j *Joint) LocalPos() r3.Vector { return j.localPos }

// LocalScale returns the joint's local scale.
func (j *Joint) LocalScale() r3.Vector { return j.localScale }

// Bone returns the joint's end offset in its own frame.
func (j *Joint) Bone() r3.Vector { return j.bone }

// BoneLength returns |Bone|.
func (j *Joint) BoneLength() float64 { return j.bone.Norm() }

// LocalPosLength returns the cached |LocalPos|.
func (j *Joint) LocalPosLength() float64 { return j.localPosLength }

// Constraint returns the joint's constraint, or nil.
func (j *Joint) Constraint() Constraint { return j.constraint }

// Config returns the joint's configuration for the current solve, or nil.
func (j *Joint) Config() *JointConfig { return j.config }

// ConfigFlags returns the cached config flag bits.
func (j *Joint) ConfigFlags() uint8 { return j.configFlags }

// HarvestFlags returns the local-override bits the host should harvest after
// a solve.
func (j *Joint) HarvestFlags() uint8 { return (j.configFlags | j.ikFlags) & maskLocal }

func (j *Joint) setConstraint(constraint Constraint) { j.constraint = constraint }
