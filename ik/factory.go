package ik

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/skelmotion/ikrig/spatialmath"
)

// constraintSpec is one entry of a constraint document: a self-describing
// constraint definition keyed by its type name, with angles in degrees.
type constraintSpec struct {
	Type        string    `json:"type"`
	ForwardAxis []float64 `json:"forward_axis"`
	PivotAxis   []float64 `json:"pivot_axis,omitempty"`
	UpAxis      []float64 `json:"up_axis,omitempty"`

	MaxAngle  float64 `json:"max_angle,omitempty"`
	ConeAngle float64 `json:"cone_angle,omitempty"`
	MinTwist  float64 `json:"min_twist,omitempty"`
	MaxTwist  float64 `json:"max_twist,omitempty"`
	MinBend   float64 `json:"min_bend,omitempty"`
	MaxBend   float64 `json:"max_bend,omitempty"`
	MinYaw    float64 `json:"min_yaw,omitempty"`
	MaxYaw    float64 `json:"max_yaw,omitempty"`
	MinPitch  float64 `json:"min_pitch,omitempty"`
	MaxPitch  float64 `json:"max_pitch,omitempty"`

	// AcuteEllipsoidalCone radii
	Forward float64 `json:"forward,omitempty"`
	Up      float64 `json:"up,omitempty"`
	Down    float64 `json:"down,omitempty"`
	Left    float64 `json:"left,omitempty"`
	Right   float64 `json:"right,omitempty"`
}

// ConstraintFactory loads a constraint document mapping skeleton joint names
// to constraint specifications. Constraints are stateless, so the factory
// deduplicates them by structural hash: joints with identical specs share a
// single instance.
type ConstraintFactory struct {
	constraints  map[uint64]Constraint // by structural hash
	jointMapping map[string]Constraint // by skeleton joint name
	logger       golog.Logger
}

// NewConstraintFactory returns an empty factory.
func NewConstraintFactory(logger golog.Logger) *ConstraintFactory {
	return &ConstraintFactory{
		constraints:  map[uint64]Constraint{},
		jointMapping: map[string]Constraint{},
		logger:       logger,
	}
}

// LoadFile reads and parses a constraint document from disk. A missing or
// malformed file is logged as a warning and leaves the registry as it was;
// the returned error is informational.
func (f *ConstraintFactory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		f.logger.Warnw("unable to read IK constraint document", "path", path, "error", err)
		return errors.Wrapf(err, "reading constraint document %q", path)
	}
	if err := f.LoadDocument(data); err != nil {
		f.logger.Warnw("unable to parse IK constraint document", "path", path, "error", err)
		return err
	}
	return nil
}

// LoadDocument parses a constraint document. Entries that fail to parse are
// collected into the returned error; valid entries still register.
func (f *ConstraintFactory) LoadDocument(data []byte) error {
	var mappings map[string]constraintSpec
	if err := json.Unmarshal(data, &mappings); err != nil {
		return errors.Wrap(err, "failed to unmarshal constraint document")
	}

	var result error
	for jointName, spec := range mappings {
		constraint, err := f.getConstraint(spec)
		if err != nil {
			result = multierr.Append(result, errors.Wrapf(err, "constraint for joint %q", jointName))
			continue
		}
		f.jointMapping[jointName] = constraint
	}
	return result
}

// ConstraintForJoint returns the shared constraint registered for the given
// skeleton joint name, or nil when none is mapped.
func (f *ConstraintFactory) ConstraintForJoint(jointName string) Constraint {
	return f.jointMapping[jointName]
}

// NumConstraints returns the number of distinct constraint instances held.
func (f *ConstraintFactory) NumConstraints() int {
	return len(f.constraints)
}

// getConstraint builds the constraint described by spec, or returns the
// already-registered instance with the same structural hash.
func (f *ConstraintFactory) getConstraint(spec constraintSpec) (Constraint, error) {
	constraint, err := createConstraint(spec)
	if err != nil {
		return nil, err
	}
	hash := constraint.Hash()
	if existing, ok := f.constraints[hash]; ok {
		return existing, nil
	}
	f.constraints[hash] = constraint
	return constraint, nil
}

func createConstraint(spec constraintSpec) (Constraint, error) {
	forward, err := axisFromSlice(spec.ForwardAxis, "forward_axis")
	if err != nil {
		return nil, err
	}
	switch ConstraintType(strings.ToUpper(spec.Type)) {
	case SimpleConeConstraintType:
		return NewSimpleCone(forward, spatialmath.DegToRad(spec.MaxAngle)), nil
	case TwistLimitedConeConstraintType:
		return NewTwistLimitedCone(
			forward,
			spatialmath.DegToRad(spec.ConeAngle),
			spatialmath.DegToRad(spec.MinTwist),
			spatialmath.DegToRad(spec.MaxTwist),
		), nil
	case ShoulderConstraintType:
		return NewShoulderConstraint(forward), nil
	case ElbowConstraintType:
		pivot, err := axisFromSlice(spec.PivotAxis, "pivot_axis")
		if err != nil {
			return nil, err
		}
		return NewElbowConstraint(
			forward,
			pivot,
			spatialmath.DegToRad(spec.MinBend),
			spatialmath.DegToRad(spec.MaxBend),
			spatialmath.DegToRad(spec.MinTwist),
			spatialmath.DegToRad(spec.MaxTwist),
		), nil
	case KneeConstraintType:
		pivot, err := axisFromSlice(spec.PivotAxis, "pivot_axis")
		if err != nil {
			return nil, err
		}
		return NewKneeConstraint(
			forward,
			pivot,
			spatialmath.DegToRad(spec.MinBend),
			spatialmath.DegToRad(spec.MaxBend),
		), nil
	case AcuteEllipsoidalConeConstraintType:
		up, err := axisFromSlice(spec.UpAxis, "up_axis")
		if err != nil {
			return nil, err
		}
		if spec.Forward == 0 {
			return nil, errors.New("acute ellipsoidal cone requires a nonzero forward radius")
		}
		return NewAcuteEllipsoidalCone(forward, up, spec.Forward, spec.Up, spec.Left, spec.Down, spec.Right), nil
	case DoubleLimitedHingeConstraintType:
		up, err := axisFromSlice(spec.UpAxis, "up_axis")
		if err != nil {
			return nil, err
		}
		return NewDoubleLimitedHinge(
			forward,
			up,
			spatialmath.DegToRad(spec.MinYaw),
			spatialmath.DegToRad(spec.MaxYaw),
			spatialmath.DegToRad(spec.MinPitch),
			spatialmath.DegToRad(spec.MaxPitch),
		), nil
	default:
		return nil, errors.Errorf("unknown constraint type %q", spec.Type)
	}
}

func axisFromSlice(axis []float64, field string) (r3.Vector, error) {
	if len(axis) != 3 {
		return r3.Vector{}, errors.Errorf("%s must have exactly 3 components, got %d", field, len(axis))
	}
	v := r3.Vector{X: axis[0], Y: axis[1], Z: axis[2]}
	if v.Norm() < spatialmath.MinInvertibleScale {
		return r3.Vector{}, errors.Errorf("%s must be a nonzero vector", field)
	}
	return v, nil
}
