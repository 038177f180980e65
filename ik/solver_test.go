package ik

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/skelmotion/ikrig/spatialmath"
)

// newTwoBoneArm builds the canonical test skeleton: root 0 at the origin,
// joints 1 and 2 each one unit further along +x with unit bones, so joint 2's
// end rests at (3,0,0).
func newTwoBoneArm(t *testing.T, j1Constraint, j2Constraint Constraint) *Solver {
	t.Helper()
	logger := golog.NewTestLogger(t)
	s := NewSolver(logger)
	s.SetRootID(0)
	s.AddJoint(0, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	s.AddJoint(1, 0, NewStaticJointInfo(xAxis, xAxis), j1Constraint)
	s.AddJoint(2, 1, NewStaticJointInfo(xAxis, xAxis), j2Constraint)
	return s
}

// checkSolverInvariants verifies the post-solve invariants over the active
// joints: unit rotations, local/world transform consistency, and admissible
// constrained rotations.
func checkSolverInvariants(t *testing.T, s *Solver) {
	t.Helper()
	for _, joint := range s.ActiveJoints() {
		test.That(t, spatialmath.QuatNorm(joint.LocalRot()), test.ShouldAlmostEqual, 1, 1e-4)
		test.That(t, spatialmath.QuatNorm(joint.WorldRot()), test.ShouldAlmostEqual, 1, 1e-4)
		if parent := joint.Parent(); parent != nil {
			expectedRot := quat.Mul(parent.WorldRot(), joint.LocalRot())
			test.That(t, spatialmath.QuaternionAlmostEqual(joint.WorldRot(), expectedRot, 1e-4), test.ShouldBeTrue)
			expectedPos := parent.WorldTipPos().Add(spatialmath.Rotate(parent.WorldRot(), joint.LocalPos()))
			test.That(t, joint.WorldTipPos().Sub(expectedPos).Norm(), test.ShouldBeLessThan, 1e-4)
		}
		if c := joint.Constraint(); c != nil && !joint.hasDisabledConstraint() && !joint.LocalRotLocked() {
			projected := c.Project(joint.LocalRot())
			test.That(t, spatialmath.QuaternionAlmostEqual(projected, joint.LocalRot(), 1e-4), test.ShouldBeTrue)
		}
	}
}

func TestSolveNoConfigs(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)
	changed := s.UpdateJointConfigs(map[int16]*JointConfig{})
	test.That(t, changed, test.ShouldBeFalse)

	err := s.Solve()
	test.That(t, err, test.ShouldEqual, 0)
	// everything stays at rest
	test.That(t, s.GetJointWorldEndPos(2).Sub(r3.Vector{X: 3}).Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, spatialmath.QuatAlmostEqual(s.GetJointLocalRot(1), spatialmath.QuatIdentity()), test.ShouldBeTrue)
}

func TestSolveTwoBoneReach(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	target := r3.Vector{X: 0, Y: 1, Z: math.Sqrt2}
	config := &JointConfig{}
	config.SetTargetPos(target)
	changed := s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	test.That(t, changed, test.ShouldBeTrue)

	err := s.Solve()
	test.That(t, err, test.ShouldBeLessThanOrEqualTo, DefaultAcceptableError)
	end := s.GetJointWorldEndPos(2)
	test.That(t, end.Sub(target).Norm(), test.ShouldBeLessThanOrEqualTo, DefaultAcceptableError)
	checkSolverInvariants(t, s)

	// the same configs again require no re-solve
	sameConfig := &JointConfig{}
	sameConfig.SetTargetPos(target)
	test.That(t, s.UpdateJointConfigs(map[int16]*JointConfig{2: sameConfig}), test.ShouldBeFalse)

	// a target nudged within tolerance also counts as unchanged
	nudged := &JointConfig{}
	nudged.SetTargetPos(target.Add(r3.Vector{X: 1e-5}))
	test.That(t, s.UpdateJointConfigs(map[int16]*JointConfig{2: nudged}), test.ShouldBeFalse)

	// a genuinely new target does not
	moved := &JointConfig{}
	moved.SetTargetPos(target.Add(r3.Vector{X: 0.5}))
	test.That(t, s.UpdateJointConfigs(map[int16]*JointConfig{2: moved}), test.ShouldBeTrue)
}

func TestSolveUnreachableTarget(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 10})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})

	err := s.Solve()
	// the arm stretches along +x and stops at full extension
	test.That(t, err, test.ShouldAlmostEqual, 7, 1e-3)
	end := s.GetJointWorldEndPos(2)
	test.That(t, end.Sub(r3.Vector{X: 3}).Norm(), test.ShouldBeLessThan, 1e-3)
	checkSolverInvariants(t, s)
}

func TestSolveConstraintClamp(t *testing.T) {
	cone := NewSimpleCone(xAxis, math.Pi/6)
	s := newTwoBoneArm(t, cone, nil)

	// reaching (1,2,0) needs a 90° bend at joint 1, which the cone forbids
	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 1, Y: 2})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})

	err := s.Solve()
	test.That(t, err, test.ShouldBeGreaterThan, 0.05)

	forward := spatialmath.Rotate(s.GetJointLocalRot(1), xAxis)
	bend := math.Acos(clampToUnit(forward.Dot(xAxis)))
	test.That(t, bend, test.ShouldBeLessThanOrEqualTo, math.Pi/6+1e-3)
	checkSolverInvariants(t, s)
}

func TestSolveDisabledConstraint(t *testing.T) {
	cone := NewSimpleCone(xAxis, math.Pi/6)
	s := newTwoBoneArm(t, cone, nil)

	target := r3.Vector{X: 1, Y: 2}
	targetConfig := &JointConfig{}
	targetConfig.SetTargetPos(target)
	disable := &JointConfig{}
	disable.DisableConstraint()
	s.UpdateJointConfigs(map[int16]*JointConfig{1: disable, 2: targetConfig})

	err := s.Solve()
	// with the cone ignored the target is exactly reachable
	test.That(t, err, test.ShouldBeLessThan, 0.01)
}

func TestSolveLockedRoot(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	rootRot := spatialmath.QuatFromAngleAxis(math.Pi/2, r3.Vector{Z: 1})
	rootConfig := &JointConfig{}
	rootConfig.SetLocalRot(rootRot)
	lockedRot := rootConfig.LocalRot() // post-normalization value
	s.UpdateJointConfigs(map[int16]*JointConfig{0: rootConfig})

	s.Solve()
	test.That(t, s.GetJointLocalRot(0), test.ShouldResemble, lockedRot)
	test.That(t, s.GetJointWorldRot(0), test.ShouldResemble, lockedRot)
}

func TestSolveLockedJointRoundTrip(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	lockConfig := &JointConfig{}
	lockConfig.SetLocalRot(spatialmath.QuatFromAngleAxis(0.5, r3.Vector{Z: 1}))
	lockedRot := lockConfig.LocalRot()
	targetConfig := &JointConfig{}
	targetConfig.SetTargetPos(r3.Vector{X: 1, Y: 1, Z: 0.5})
	s.UpdateJointConfigs(map[int16]*JointConfig{1: lockConfig, 2: targetConfig})

	s.Solve()
	test.That(t, s.GetJointLocalRot(1), test.ShouldResemble, lockedRot)
}

func TestSequentialTargetFixup(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	j1Config := &JointConfig{}
	j1Config.SetTargetPos(r3.Vector{X: 5})
	j2Config := &JointConfig{}
	j2Config.SetTargetPos(r3.Vector{X: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{1: j1Config, 2: j2Config})
	s.rebuildAllChains()

	// the parent's target is relocated onto the child-to-parent line at
	// exactly the connecting bone's length
	dist := s.configs[1].TargetPos().Sub(s.configs[2].TargetPos()).Norm()
	test.That(t, dist, test.ShouldAlmostEqual, s.skeleton[2].LocalPosLength())
}

func TestChainOfLengthTwo(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 1, Y: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{1: config})
	s.rebuildAllChains()

	chain, ok := s.chains[1]
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(chain), test.ShouldEqual, 2)
	test.That(t, chain[0].ID(), test.ShouldEqual, int16(1))
	test.That(t, chain[1].ID(), test.ShouldEqual, int16(0))
	// joint 2 stays out of it
	test.That(t, s.skeleton[2].IsActive(), test.ShouldBeFalse)
}

// newBranchedSkeleton builds:
//
//	0──1──2──3──4
//	       └──5──6
func newBranchedSkeleton(t *testing.T) *Solver {
	t.Helper()
	s := NewSolver(golog.NewTestLogger(t))
	s.SetRootID(0)
	s.AddJoint(0, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	s.AddJoint(1, 0, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddJoint(2, 1, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddJoint(3, 2, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddJoint(4, 3, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddJoint(5, 2, NewStaticJointInfo(r3.Vector{X: 1, Y: 1}.Normalize(), xAxis), nil)
	s.AddJoint(6, 5, NewStaticJointInfo(xAxis, xAxis), nil)
	return s
}

func TestSubBaseChains(t *testing.T) {
	s := newBranchedSkeleton(t)

	c4 := &JointConfig{}
	c4.SetTargetPos(r3.Vector{X: 3, Y: 1})
	c6 := &JointConfig{}
	c6.SetTargetPos(r3.Vector{X: 2, Y: 2})
	s.UpdateJointConfigs(map[int16]*JointConfig{4: c4, 6: c6})
	s.rebuildAllChains()

	// joint 2 branches into two active chains, so it becomes a sub-base with
	// a chain of its own
	test.That(t, len(s.chains), test.ShouldEqual, 3)
	test.That(t, chainIDs(s.chains[4]), test.ShouldResemble, []int16{4, 3, 2})
	test.That(t, chainIDs(s.chains[6]), test.ShouldResemble, []int16{6, 5, 2})
	test.That(t, chainIDs(s.chains[2]), test.ShouldResemble, []int16{2, 1, 0})
	_, rootActive := s.activeRoots[0]
	test.That(t, rootActive, test.ShouldBeTrue)

	err := s.Solve()
	test.That(t, err, test.ShouldBeLessThan, 0.5)
	checkSolverInvariants(t, s)
}

func TestFalseSubBaseCondensation(t *testing.T) {
	s := newBranchedSkeleton(t)

	// only the 4-branch is targeted: joint 2 still has two children but only
	// one is active, so its chain is spliced into 4's
	c4 := &JointConfig{}
	c4.SetTargetPos(r3.Vector{X: 3, Y: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{4: c4})
	s.rebuildAllChains()

	test.That(t, len(s.chains), test.ShouldEqual, 1)
	test.That(t, chainIDs(s.chains[4]), test.ShouldResemble, []int16{4, 3, 2, 1, 0})
}

func TestSubBaseWhitelist(t *testing.T) {
	s := newBranchedSkeleton(t)
	s.SetSubBaseIds(map[int16]struct{}{1: {}})

	c4 := &JointConfig{}
	c4.SetTargetPos(r3.Vector{X: 3, Y: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{4: c4})
	s.rebuildAllChains()

	// with a whitelist present, topology no longer makes joint 2 a sub-base;
	// the chain runs through it and stops at whitelisted joint 1
	test.That(t, chainIDs(s.chains[4]), test.ShouldResemble, []int16{4, 3, 2, 1})
	test.That(t, chainIDs(s.chains[1]), test.ShouldResemble, []int16{1, 0})
}

func TestSubRootStopsChains(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)
	s.SetSubRootIds(map[int16]struct{}{1: {}})

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 2, Y: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	s.rebuildAllChains()

	test.That(t, chainIDs(s.chains[2]), test.ShouldResemble, []int16{2, 1})
	// the chain base's parent (the root) is inactive, so the base is an
	// active root
	_, ok := s.activeRoots[1]
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, s.skeleton[0].IsActive(), test.ShouldBeFalse)
}

func TestChainLimit(t *testing.T) {
	s := newBranchedSkeleton(t)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 3, Y: 1})
	config.SetChainLimit(2)
	s.UpdateJointConfigs(map[int16]*JointConfig{4: config})
	s.rebuildAllChains()

	test.That(t, chainIDs(s.chains[4]), test.ShouldResemble, []int16{4, 3})
	test.That(t, s.skeleton[2].IsActive(), test.ShouldBeFalse)
	_, ok := s.activeRoots[3]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestRotationOnlyTarget(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetRot(spatialmath.QuatFromAngleAxis(math.Pi/4, r3.Vector{Z: 1}))
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})

	err := s.Solve()
	test.That(t, err, test.ShouldEqual, 0) // no position targets to miss
	worldRot := s.GetJointWorldRot(2)
	test.That(t, spatialmath.QuaternionAlmostEqual(worldRot, config.TargetRot(), 1e-3), test.ShouldBeTrue)
}

func TestRelaxationTowardRest(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	// a target at the rest end keeps the solved pose at rest
	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 3})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	s.Solve()

	// knock joint 1 off rest; repeated solves pull it back monotonically
	s.skeleton[1].localRot = spatialmath.QuatFromAngleAxis(0.3, r3.Vector{Z: 1})
	prevAngle := 0.3
	for i := 0; i < 3; i++ {
		s.Solve()
		angle, _ := spatialmath.AngleAxis(s.GetJointLocalRot(1))
		test.That(t, angle, test.ShouldBeLessThan, prevAngle+1e-9)
		prevAngle = angle
	}
	test.That(t, prevAngle, test.ShouldBeLessThan, 1e-2)
}

func TestSolveCCD(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)
	s.SetAlgorithm(CCD)

	target := r3.Vector{X: 0, Y: 1, Z: math.Sqrt2}
	config := &JointConfig{}
	config.SetTargetPos(target)
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})

	initialDist := s.GetJointWorldEndPos(2).Sub(target).Norm()
	err := s.Solve()
	test.That(t, err, test.ShouldBeLessThan, initialDist)
	test.That(t, err, test.ShouldBeLessThan, 1.5)
}

func TestDelegatedTargetSkipsChain(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 0, Y: 2})
	config.Delegate()
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	s.rebuildAllChains()

	// a delegated target builds no chain and contributes no error
	test.That(t, len(s.chains), test.ShouldEqual, 0)
	test.That(t, s.Solve(), test.ShouldEqual, 0)
}

func TestAddJointValidation(t *testing.T) {
	s := NewSolver(golog.NewTestLogger(t))
	s.SetRootID(0)

	s.AddJoint(-2, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	test.That(t, len(s.skeleton), test.ShouldEqual, 0)

	s.AddJoint(0, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	test.That(t, len(s.skeleton), test.ShouldEqual, 1)

	// duplicate id is a no-op
	s.AddJoint(0, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	test.That(t, len(s.skeleton), test.ShouldEqual, 1)

	// orphan joint (parent not yet added) is a no-op
	s.AddJoint(2, 7, NewStaticJointInfo(xAxis, xAxis), nil)
	test.That(t, len(s.skeleton), test.ShouldEqual, 1)

	// unknown wrist id is a no-op
	s.AddWristID(9)
	test.That(t, len(s.wristJoints), test.ShouldEqual, 0)
}

func TestComputeReach(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	reach := s.ComputeReach(2, 0)
	test.That(t, reach, test.ShouldResemble, r3.Vector{X: 3})

	// swapped arguments negate
	reach = s.ComputeReach(0, 2)
	test.That(t, reach, test.ShouldResemble, r3.Vector{X: -3})
}

func TestResetSkeleton(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 0, Y: 1, Z: math.Sqrt2})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	s.Solve()

	s.ResetSkeleton()
	test.That(t, s.GetJointWorldEndPos(2).Sub(r3.Vector{X: 3}).Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, spatialmath.QuatAlmostEqual(s.GetJointLocalRot(1), spatialmath.QuatIdentity()), test.ShouldBeTrue)
}

func TestResetJointGeometry(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	cone := NewSimpleCone(xAxis, math.Pi/4)
	s.ResetJointGeometry(1, cone)
	test.That(t, s.skeleton[1].Constraint(), test.ShouldEqual, cone)

	// unknown ids warn and no-op
	s.ResetJointGeometry(42, cone)
}

func TestDropElbows(t *testing.T) {
	s := NewSolver(golog.NewTestLogger(t))
	s.SetRootID(0)
	shoulderConstraint := NewShoulderConstraint(xAxis)
	s.AddJoint(0, -1, NewStaticJointInfo(r3.Vector{}, xAxis), nil)
	s.AddJoint(1, 0, NewStaticJointInfo(xAxis, xAxis), shoulderConstraint)
	s.AddJoint(2, 1, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddJoint(3, 2, NewStaticJointInfo(xAxis, xAxis), nil)
	s.AddWristID(3)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 2.5, Y: 0.8, Z: 0.3})
	s.UpdateJointConfigs(map[int16]*JointConfig{3: config})
	s.Solve()

	endBefore := s.GetJointWorldEndPos(3)
	s.DropElbows()
	// the wrist keeps its world transform through the adjustment
	test.That(t, s.GetJointWorldEndPos(3).Sub(endBefore).Norm(), test.ShouldBeLessThan, 1e-9)
}

func TestHarvestFlags(t *testing.T) {
	s := newTwoBoneArm(t, nil, nil)

	config := &JointConfig{}
	config.SetTargetPos(r3.Vector{X: 1, Y: 1, Z: 1})
	s.UpdateJointConfigs(map[int16]*JointConfig{2: config})
	s.Solve()

	for _, joint := range s.ActiveJoints() {
		test.That(t, joint.HarvestFlags()&configFlagLocalRot, test.ShouldNotEqual, 0)
	}
}

func chainIDs(chain []*Joint) []int16 {
	ids := make([]int16, 0, len(chain))
	for _, joint := range chain {
		ids = append(ids, joint.ID())
	}
	return ids
}
