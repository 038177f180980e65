package ik

import "github.com/golang/geo/r3"

// JointInfo supplies the default, non-animated geometry of a joint: where its
// tip rests in its parent's frame, where its bone ends in its own frame, and
// the scale applied to both. The solver reads it at construction and again
// only on explicit geometry resets.
type JointInfo interface {
	// RestPosition is the joint tip position in its parent's frame.
	RestPosition() r3.Vector

	// RestEndOffset is the bone: the offset from the joint's tip to its end,
	// in the joint's own frame.
	RestEndOffset() r3.Vector

	// RestScale scales both RestPosition and RestEndOffset componentwise.
	RestScale() r3.Vector
}

// StaticJointInfo is a fixed-value JointInfo, convenient for hosts that keep
// their skeleton description in plain data.
type StaticJointInfo struct {
	Position  r3.Vector
	EndOffset r3.Vector
	Scale     r3.Vector
}

// NewStaticJointInfo returns a StaticJointInfo with unit scale.
func NewStaticJointInfo(position, endOffset r3.Vector) *StaticJointInfo {
	return &StaticJointInfo{
		Position:  position,
		EndOffset: endOffset,
		Scale:     r3.Vector{X: 1, Y: 1, Z: 1},
	}
}

// RestPosition implements JointInfo.
func (info *StaticJointInfo) RestPosition() r3.Vector { return info.Position }

// RestEndOffset implements JointInfo.
func (info *StaticJointInfo) RestEndOffset() r3.Vector { return info.EndOffset }

// RestScale implements JointInfo.
func (info *StaticJointInfo) RestScale() r3.Vector { return info.Scale }
