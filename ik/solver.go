package ik

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// DefaultAcceptableError is the solve convergence tolerance: half a
// millimeter in meter-scaled skeletons.
const DefaultAcceptableError = 5.0e-4

const (
	minSolverIterations = 4
	maxSolverIterations = 16

	// initialRelaxationFactor is how far active joints are blended back
	// toward the rest pose before each solve. This provides return pressure
	// that removes floating-point drift that would otherwise wander around
	// within the valid zones of the constraints.
	initialRelaxationFactor = 0.25

	// defaultCCDSwingFactor is the per-joint swing blend used by the CCD
	// pass.
	defaultCCDSwingFactor = 0.1
)

// Algorithm selects the iteration style used by Solve.
type Algorithm int

// The available algorithms. FABRIK is the default; CCD converges well but is
// more susceptible to instability while constraints are enforced, so it stays
// behind this flag.
const (
	FABRIK Algorithm = iota
	CCD
)

// Solver maintains a skeleton of connected Joints and computes the
// parent-relative orientations that bring targeted joints to their
// world-frame targets.
//
// Build the skeleton once with SetRootID and AddJoint (in ascending id
// order), then per animation frame feed targets through UpdateJointConfigs
// and call Solve. Solve never fails; it returns the remaining maximum
// positional error for the caller to judge.
type Solver struct {
	skeleton map[int16]*Joint
	configs  map[int16]*JointConfig

	chains       map[int16][]*Joint // keyed by outer-end joint id
	subBaseIDs   map[int16]struct{} // whitelist overriding sub-base topology
	subRootIDs   map[int16]struct{} // chains stop above these
	activeRoots  map[int16]*Joint
	activeJoints []*Joint
	wristJoints  []*Joint

	acceptableError float64
	lastError       float64
	rootID          int16
	algorithm       Algorithm
	configsDirty    bool

	logger golog.Logger
}

// NewSolver returns an empty Solver.
func NewSolver(logger golog.Logger) *Solver {
	return &Solver{
		skeleton:        map[int16]*Joint{},
		configs:         map[int16]*JointConfig{},
		chains:          map[int16][]*Joint{},
		subBaseIDs:      map[int16]struct{}{},
		subRootIDs:      map[int16]struct{}{},
		activeRoots:     map[int16]*Joint{},
		acceptableError: DefaultAcceptableError,
		rootID:          -1,
		logger:          logger,
	}
}

// SetRootID sets the id of the skeleton's root joint.
func (s *Solver) SetRootID(id int16) { s.rootID = id }

// RootID returns the id of the skeleton's root joint.
func (s *Solver) RootID() int16 { return s.rootID }

// SetAcceptableError sets the convergence tolerance.
func (s *Solver) SetAcceptableError(slop float64) { s.acceptableError = slop }

// SetAlgorithm selects FABRIK (the default) or the experimental CCD pass.
func (s *Solver) SetAlgorithm(algorithm Algorithm) { s.algorithm = algorithm }

// AddJoint adds a joint to the skeleton. Parents must be added before their
// children; a negative parentID (below the root id) makes the joint the
// root. Invalid additions log a warning and leave the skeleton unchanged.
func (s *Solver) AddJoint(jointID, parentID int16, info JointInfo, constraint Constraint) {
	if jointID < 0 {
		s.logger.Warnf("failed to add invalid joint_id=%d", jointID)
		return
	}
	if _, ok := s.skeleton[jointID]; ok {
		s.logger.Warnf("failed to add joint_id=%d: already exists", jointID)
		return
	}
	parent, ok := s.skeleton[parentID]
	if !ok && parentID >= s.rootID {
		s.logger.Warnf("failed to add joint_id=%d: could not find parent_id=%d", jointID, parentID)
		return
	}
	joint := NewJoint(jointID, info)
	joint.setParent(parent)
	if parent != nil {
		parent.addChild(joint)
	}
	s.skeleton[jointID] = joint
	joint.setConstraint(constraint)
}

// AddWristID marks a joint as a wrist, to help drop the elbow of the arm
// toward a more natural pose.
func (s *Solver) AddWristID(wristID int16) {
	joint, ok := s.skeleton[wristID]
	if !ok {
		s.logger.Warnf("failed to find wrist_id=%d", wristID)
		return
	}
	s.wristJoints = append(s.wristJoints, joint)
}

// SetSubBaseIds supplies a whitelist of joint ids to treat as sub-bases,
// for skeletons whose topology alone can't determine them (e.g. the chest
// above two collar chains, or wrists fanning into fingers).
func (s *Solver) SetSubBaseIds(ids map[int16]struct{}) {
	s.subBaseIDs = map[int16]struct{}{}
	maps.Copy(s.subBaseIDs, ids)
}

// SetSubRootIds supplies joint ids at which chains stop, excluding everything
// rootward of them from the solve (e.g. removing the spine).
func (s *Solver) SetSubRootIds(ids map[int16]struct{}) {
	s.subRootIDs = map[int16]struct{}{}
	maps.Copy(s.subRootIDs, ids)
}

func (s *Solver) isSubBase(jointID int16) bool {
	_, ok := s.subBaseIDs[jointID]
	return ok
}

func (s *Solver) isSubRoot(jointID int16) bool {
	if len(s.subRootIDs) == 0 {
		return false
	}
	_, ok := s.subRootIDs[jointID]
	return ok
}

// ResetSkeleton puts the skeleton back into its default orientation (e.g.
// T-pose for a humanoid character).
func (s *Solver) ResetSkeleton() {
	if root, ok := s.skeleton[s.smallestJointID()]; ok {
		root.resetRecursively()
	}
}

func (s *Solver) smallestJointID() int16 {
	smallest := int16(math.MaxInt16)
	found := false
	for id := range s.skeleton {
		if !found || id < smallest {
			smallest = id
			found = true
		}
	}
	if !found {
		return -1
	}
	return smallest
}

// ComputeReach returns the offset from the tip of fromID to the end of toID,
// negated when fromID is the deeper of the two.
func (s *Solver) ComputeReach(toID, fromID int16) r3.Vector {
	ancestor, descendent := fromID, toID
	swapped := false
	if ancestor > descendent {
		ancestor, descendent = descendent, ancestor
		swapped = true
	}
	var reach r3.Vector
	if joint, ok := s.skeleton[descendent]; ok {
		chainReach := joint.Bone()
		for joint != nil {
			chainReach = chainReach.Add(joint.LocalPos())
			joint = joint.parent
			if joint != nil && joint.ID() == ancestor {
				reach = chainReach
				break
			}
		}
	}
	if swapped {
		reach = reach.Mul(-1)
	}
	return reach
}

// UpdateJointConfigs applies the configurations for the next Solve and
// returns whether they differ from the previous call's. When it returns
// false the skeleton state is already the solution and the caller may skip
// Solve entirely.
func (s *Solver) UpdateJointConfigs(configs map[int16]*JointConfig) bool {
	somethingChanged := len(configs) != len(s.configs)
	if !somethingChanged {
		for id, oldConfig := range s.configs {
			newConfig, ok := configs[id]
			if !ok || !oldConfig.almostEqual(newConfig, s.acceptableError) {
				somethingChanged = true
				break
			}
		}
	}
	if somethingChanged {
		// copy the configs: the solver owns its view of them (the sequential
		// end-effector fix-up rewrites targets in place)
		s.configs = make(map[int16]*JointConfig, len(configs))
		for id, config := range configs {
			c := *config
			s.configs[id] = &c
		}
		s.configsDirty = true
	}
	return somethingChanged
}

// Solve runs the IK iterations for the configurations supplied via
// UpdateJointConfigs and returns the maximum remaining positional error
// across all position targets.
func (s *Solver) Solve() float64 {
	if s.configsDirty {
		s.rebuildAllChains()
		s.configsDirty = false
	}

	for _, root := range s.activeRoots {
		root.relaxRotationsRecursively(initialRelaxationFactor)
	}

	maxError := math.MaxFloat64
	for loop := 0; loop < minSolverIterations || (loop < maxSolverIterations && maxError > s.acceptableError); loop++ {
		maxError = s.solveOnce()
	}
	s.lastError = maxError
	return s.lastError
}

func (s *Solver) solveOnce() float64 {
	if s.algorithm == CCD {
		s.executeCcdPass()
	} else {
		s.executeFabrikPass(true)
	}
	return s.measureMaxError()
}

// LastError returns the max error measured by the most recent Solve.
func (s *Solver) LastError() float64 { return s.lastError }

// ActiveJoints returns the joints that participated in the most recent chain
// build.
func (s *Solver) ActiveJoints() []*Joint { return s.activeJoints }

// GetJointLocalPos returns the joint's tip position in its parent's frame,
// or the zero vector for unknown ids.
func (s *Solver) GetJointLocalPos(jointID int16) r3.Vector {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.LocalPos()
	}
	return r3.Vector{}
}

// GetJointLocalRot returns the joint's parent-relative orientation, or the
// identity for unknown ids.
func (s *Solver) GetJointLocalRot(jointID int16) quat.Number {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.LocalRot()
	}
	return spatialmath.QuatIdentity()
}

// GetJointLocalTransform returns the joint's local position and rotation;
// ok is false for unknown ids.
func (s *Solver) GetJointLocalTransform(jointID int16) (r3.Vector, quat.Number, bool) {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.LocalPos(), joint.LocalRot(), true
	}
	return r3.Vector{}, quat.Number{}, false
}

// GetJointWorldTipPos returns the joint's tip position in the world frame.
func (s *Solver) GetJointWorldTipPos(jointID int16) r3.Vector {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.WorldTipPos()
	}
	return r3.Vector{}
}

// GetJointWorldEndPos returns the joint's end position in the world frame.
func (s *Solver) GetJointWorldEndPos(jointID int16) r3.Vector {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.ComputeWorldEndPos()
	}
	return r3.Vector{}
}

// GetJointWorldRot returns the joint's world-frame orientation.
func (s *Solver) GetJointWorldRot(jointID int16) quat.Number {
	if joint, ok := s.skeleton[jointID]; ok {
		return joint.WorldRot()
	}
	return spatialmath.QuatIdentity()
}

// ResetJointGeometry re-reads the joint's rest geometry from its info and
// replaces its constraint. Call ComputeReach again afterward if reach values
// are cached.
func (s *Solver) ResetJointGeometry(jointID int16, constraint Constraint) {
	joint, ok := s.skeleton[jointID]
	if !ok {
		s.logger.Warnf("failed to update unknown joint_id=%d", jointID)
		return
	}
	joint.resetFromInfo()
	joint.setConstraint(constraint)
}

// DropElbows applies the experimental drop-elbow adjustment to every arm
// whose wrist was registered with AddWristID and whose shoulder carries a
// ShoulderConstraint. Returns whether any arm changed.
func (s *Solver) DropElbows() bool {
	somethingChanged := false
	for _, wrist := range s.wristJoints {
		elbow := wrist.parent
		if elbow == nil || elbow.parent == nil {
			continue
		}
		shoulder := elbow.parent
		if sc, ok := shoulder.Constraint().(*ShoulderConstraint); ok {
			somethingChanged = sc.DropElbow(shoulder) || somethingChanged
		}
	}
	return somethingChanged
}

// rebuildAllChains partitions the active joint set into chains.
//
// Consider a skeleton where each joint tip has a numerical id and each
// end-effector is denoted with a bracketed [id]:
//
//	                  8             [11]
//	                 /              /
//	                7---14--[15]   10
//	               /              /
//	              6---12---13    9
//	             /              /
//	   0----1---2----3----4---[5]--16---17--[18]
//	             \
//	              19
//	               \
//	               [20]
//
// With targets [5,11,15,18,20], IK must solve all joints except 8, 12, 13.
// The skeleton divides into chain segments that start at a targeted joint
// and continue rootward until: the root, another end-effector, or a sub-base
// (joint with multiple active children). Inward passes run the chains in an
// order that guarantees a sub-base's active children are updated before the
// sub-base itself; outward passes never need to check for targets or
// sub-bases mid-chain. Joints 6 and 7 above have multiple children but only
// one active each: such "false" sub-bases are condensed away by splicing
// their chains together.
func (s *Solver) rebuildAllChains() {
	// clear active status from the previous build
	for _, chain := range s.chains {
		for _, joint := range chain {
			joint.resetFlags()
		}
	}
	for _, joint := range s.activeJoints {
		joint.resetFlags()
	}
	s.chains = map[int16][]*Joint{}
	s.activeRoots = map[int16]*Joint{}
	s.activeJoints = s.activeJoints[:0]

	subBases := map[int16]struct{}{}
	for _, jointID := range sortedIDs(s.configs) {
		joint, ok := s.skeleton[jointID]
		if !ok {
			continue
		}
		config := s.configs[jointID]
		// The joint caches the config pointer. That is safe: both live in
		// this solver and the config stays valid for the whole solve.
		joint.setConfig(config)

		if jointID == s.rootID {
			// for the root, world frame == local frame
			flags := joint.ConfigFlags()
			if flags&maskRot != 0 {
				q := config.TargetRot()
				if flags&configFlagLocalRot != 0 {
					q = config.LocalRot()
				}
				joint.lockLocalRot(q)
				s.activeRoots[jointID] = joint
			}
			if flags&maskPos != 0 {
				p := config.TargetPos()
				if flags&configFlagLocalPos != 0 {
					p = config.LocalPos()
				}
				joint.setLocalPos(p)
				joint.activate()
			}
			if flags&configFlagLocalScale != 0 {
				joint.setLocalScale(config.LocalScale())
			}
			continue
		}

		if config.HasLocalRot() {
			joint.lockLocalRot(config.LocalRot())
		}

		if config.HasDelegated() {
			// no chain for a delegated target, but the joint stays active
			joint.activate()
			continue
		}

		if config.HasTargetPos() {
			s.chains[jointID] = s.buildChain(joint, subBases, config.ChainLimit())

			// Sequential end-effectors: the caller is not guaranteed to send
			// targets that can be solved together. Treat the child's target
			// as higher priority and move the parent's target onto the line
			// between them, at exactly the connecting bone's length.
			// Configs are visited low-to-high, so the parent's target is
			// already registered when the child's chain is built.
			parent := joint.parent
			if parent != nil && parent.hasPosTarget() {
				childTargetPos := config.TargetPos()
				direction := parent.targetPos().Sub(childTargetPos).Normalize().Mul(joint.LocalPosLength())
				parent.setTargetPos(childTargetPos.Add(direction))
			}
		} else if config.HasTargetRot() {
			s.chains[jointID] = s.buildChain(joint, subBases, config.ChainLimit())
		}

		if config.HasLocalPos() {
			joint.setLocalPos(config.LocalPos())
			joint.activate()
		}
		if config.HasLocalScale() {
			joint.setLocalScale(config.LocalScale())
			joint.activate()
		}
	}

	// each sub-base gets a chain of its own, which may uncover further
	// sub-bases closer to the root
	for len(subBases) > 0 {
		newSubBases := map[int16]struct{}{}
		for _, jointID := range sortedIDs(subBases) {
			joint := s.skeleton[jointID]
			s.chains[jointID] = s.buildChain(joint, newSubBases, 0)
		}
		subBases = newSubBases
	}

	// eliminate "false" sub-bases by condensing their chains: an outer end
	// with no target, no whitelist entry, and exactly one active child is an
	// artificial join
	var joins []int16
	for _, chain := range s.chains {
		outerEnd := chain[0]
		if !outerEnd.hasPosTarget() && !s.isSubBase(outerEnd.ID()) && outerEnd.singleActiveChild() != nil {
			joins = append(joins, outerEnd.ID())
		}
	}
	for _, id := range joins {
		for recipientID, recipient := range s.chains {
			innerEnd := recipient[len(recipient)-1]
			if innerEnd.ID() == id {
				donor := s.chains[id]
				s.chains[recipientID] = append(recipient, donor[1:]...)
				delete(s.chains, id)
				break
			}
		}
	}

	// cache the active branch roots: chain inner-ends whose parent is
	// missing or inactive
	for _, chain := range s.chains {
		chainBase := chain[len(chain)-1]
		if chainBase.parent == nil || !chainBase.parent.isActive() {
			s.activeRoots[chainBase.ID()] = chainBase
		}
	}

	// cache the list of all active joints
	for _, id := range sortedIDs(s.skeleton) {
		if joint := s.skeleton[id]; joint.isActive() {
			s.activeJoints = append(s.activeJoints, joint)
			joint.flagForHarvest()
		}
	}
}

// buildChain builds a chain in descending (inward) order starting at an
// end-effector or sub-base, stopping at the next end-effector, sub-base,
// sub-root, or the root. Every visited joint is set active; encountered
// sub-bases are recorded for the caller. chainLimit 0 means unbounded.
func (s *Solver) buildChain(joint *Joint, subBases map[int16]struct{}, chainLimit uint8) []*Joint {
	maxLength := int(chainLimit)
	if maxLength == 0 {
		maxLength = math.MaxInt16
	}
	chain := []*Joint{joint}
	joint.activate()

	// Walk up the ancestors. The terminating joint (root, sub-base, or
	// previously targeted ancestor) is included at the end of the chain
	// before the break checks.
	joint = joint.parent
	for joint != nil && len(chain) < maxLength {
		chain = append(chain, joint)
		joint.activate()
		jointID := joint.ID()
		if s.isSubRoot(jointID) {
			// chains stop above sub-roots (e.g. spine excluded from solving)
			break
		}
		if jointID == s.rootID {
			break
		}
		if joint.hasPosTarget() {
			// truncate at a targeted ancestor
			break
		}
		if (len(s.subBaseIDs) == 0 && joint.NumChildren() > 1) || s.isSubBase(jointID) {
			subBases[jointID] = struct{}{}
			break
		}
		joint = joint.parent
	}
	return chain
}

// executeFabrikPass runs one inward and one outward FABRIK sweep over all
// chains.
func (s *Solver) executeFabrikPass(enforceConstraints bool) {
	// the inward pass visits chains from their outer ends, so traverse the
	// chain map in descending id order
	ids := sortedIDs(s.chains)
	for i := len(ids) - 1; i >= 0; i-- {
		s.executeFabrikInward(s.chains[ids[i]], enforceConstraints)
	}

	// the inward pass leaves each chain inner-end's children's localRot
	// stale, so refresh them at every active root. Root constraints are
	// enforced during the outward pass, not here.
	for _, root := range s.activeRoots {
		root.updateChildLocalRots()
	}

	// the outward pass resolves the combined chains low-to-high
	for _, id := range ids {
		s.executeFabrikOutward(s.chains[id], enforceConstraints)
	}
	// both local- and world-frame transforms are now consistent
}

func (s *Solver) executeFabrikInward(chain []*Joint, enforceConstraints bool) {
	// the outer end either has a target or is a sub-base with active
	// children
	chain[0].updateEndInward(enforceConstraints)

	// Traverse the middle of the chain. The inner end is skipped: it is
	// either the outer end of another chain (updated then) or one of the
	// active roots (handled after all chains).
	lastIndex := len(chain) - 1
	for i := 1; i < lastIndex; i++ {
		chain[i].updateInward(chain[i-1], enforceConstraints)
	}
}

func (s *Solver) executeFabrikOutward(chain []*Joint, enforceConstraints bool) {
	// the inner end doesn't move at this stage; traverse the middle of the
	// chain in reverse
	lastIndex := len(chain) - 1
	for i := lastIndex - 1; i > 0; i-- {
		chain[i].updateOutward(enforceConstraints)
	}
	chain[0].updateEndOutward(enforceConstraints)
}

// executeCcdPass runs one Cyclic Coordinate Descent sweep over all chains.
// It converges well but is more susceptible than FABRIK to instability when
// constraints are enforced, hence the solver flag.
func (s *Solver) executeCcdPass() {
	ids := sortedIDs(s.chains)
	for i := len(ids) - 1; i >= 0; i-- {
		s.executeCcdInward(s.chains[ids[i]])
	}

	// executeCcdInward recomputes the world transforms of every chain joint
	// except the inner end's child; reconnect each chain to its sub-base
	for _, id := range ids {
		s.shiftChainToBase(s.chains[id])
	}
}

func (s *Solver) executeCcdInward(chain []*Joint) {
	outerEnd := chain[0]

	// the outer end's targets are known in both local and world frames; walk
	// inward swinging each joint toward aligning them
	localTargets, worldTargets := outerEnd.collectTargetPositions()

	if !outerEnd.swingTowardTargets(localTargets, worldTargets, defaultCCDSwingFactor) {
		// targets are close enough
		return
	}

	// Swing the middle of the chain, rewriting the local targets into each
	// successive parent's frame, until a joint refuses to move. The inner
	// end is skipped as in the FABRIK passes.
	lastIndex := len(chain) - 1
	lastSwungIndex := 0
	for i := 1; i < lastIndex; i++ {
		chain[i-1].transformTargetsToParentLocal(localTargets)
		if !chain[i].swingTowardTargets(localTargets, worldTargets, defaultCCDSwingFactor) {
			break
		}
		lastSwungIndex = i
	}

	// refresh the world transforms of the swung joints, outward
	for i := lastSwungIndex - 1; i >= 0; i-- {
		chain[i].updatePosAndRotFromParent()
	}

	// constraints are not enforced in this final refresh
	outerEnd.updateChildLocalRots()
}

// shiftChainToBase translates the whole chain so its inner end's child lands
// back on the anchor its parent's transform implies.
func (s *Solver) shiftChainToBase(chain []*Joint) {
	lastIndex := len(chain) - 1
	if lastIndex < 1 {
		return
	}
	innerEndChild := chain[lastIndex-1]
	offset := innerEndChild.ComputeWorldTipOffset()
	if offset.Norm2() > s.acceptableError*s.acceptableError {
		for i := 0; i < lastIndex; i++ {
			chain[i].shiftPos(offset.Mul(-1))
		}
	}
}

// measureMaxError returns the largest distance between a position-targeted
// joint's end and its target. The root is excluded: its error is always
// zero.
func (s *Solver) measureMaxError() float64 {
	maxError := 0.0
	for jointID, config := range s.configs {
		if jointID == s.rootID {
			continue
		}
		if !config.HasTargetPos() || config.HasDelegated() {
			continue
		}
		joint, ok := s.skeleton[jointID]
		if !ok {
			continue
		}
		if dist := joint.ComputeWorldEndPos().Sub(config.TargetPos()).Norm(); dist > maxError {
			maxError = dist
		}
	}
	return maxError
}

// sortedIDs returns the keys of a joint-id-keyed map in ascending order.
func sortedIDs[V any](m map[int16]V) []int16 {
	ids := maps.Keys(m)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
