// Package ik implements an inverse-kinematics solver for humanoid-style
// articulated skeletons using Forward And Backward Reaching Inverse
// Kinematics (FABRIK):
//
//	http://andreasaristidou.com/FABRIK.html
//
// A Solver owns a tree of Joints. Each call to Solve applies per-joint
// configurations (world-frame position/orientation targets, or locked
// local-frame transforms), partitions the affected joints into chains, and
// iterates FABRIK passes until the targets are reached or the iteration cap
// is hit. Joints may carry Constraints that limit their parent-relative
// orientation; an experimental Cyclic Coordinate Descent (CCD) pass is also
// available behind a solver flag.
package ik
