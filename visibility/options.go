package visibility

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/golang/geo/s1"
)

// MissPolicy defines how coordinates beyond the last tile corner are
// resolved.
type MissPolicy int

const (
	// Resolves the coordinate to the last tile of the exceeded axis.
	MissClamp MissPolicy = iota

	// Fails the query with an ErrTypeCoordinateOutOfRange error.
	MissError
)

func (p MissPolicy) String() string {
	switch p {
	case MissClamp:
		return "clamp"
	case MissError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseMissPolicy returns the policy with the given name.
func ParseMissPolicy(s string) (MissPolicy, error) {
	switch s {
	case "clamp", "":
		return MissClamp, nil
	case "error":
		return MissError, nil
	default:
		return MissClamp, errors.New("unknown miss policy").
			WithType(ErrTypeInvalidOptions).
			WithTag("policy", s)
	}
}

const (
	DefaultFieldOfView      = 92 * s1.Degree
	DefaultSampleResolution = 8
	DefaultUnitTolerance    = 1e-6
)

// Options configures an estimator.
type Options struct {
	// The monocular fields of view of the viewport. They set the scale of the
	// ray projection.
	FieldOfViewHorizontal s1.Angle
	FieldOfViewVertical   s1.Angle

	// The number of intervals on each side of the sample grid. The grid holds
	// (SampleResolution+1)² points.
	SampleResolution int

	MissPolicy MissPolicy

	// Rejects head rotations whose norm differs from 1 by more than
	// UnitTolerance instead of compensating it.
	StrictRotation bool
	UnitTolerance  float64
}

func DefaultOptions() Options {
	return Options{
		FieldOfViewHorizontal: DefaultFieldOfView,
		FieldOfViewVertical:   DefaultFieldOfView,
		SampleResolution:      DefaultSampleResolution,
		MissPolicy:            MissClamp,
		UnitTolerance:         DefaultUnitTolerance,
	}
}

func (o Options) Validate() error {
	for _, fov := range []s1.Angle{o.FieldOfViewHorizontal, o.FieldOfViewVertical} {
		if fov <= 0 || fov >= s1.Angle(math.Pi) {
			return errors.New("field of view must be in ]0, 180[ degrees").
				WithType(ErrTypeInvalidOptions).
				WithTag("field_of_view", fov.Degrees())
		}
	}

	if o.SampleResolution <= 0 {
		return errors.New("sample resolution must be positive").
			WithType(ErrTypeInvalidOptions).
			WithTag("sample_resolution", o.SampleResolution)
	}

	if o.MissPolicy != MissClamp && o.MissPolicy != MissError {
		return errors.New("unknown miss policy").
			WithType(ErrTypeInvalidOptions).
			WithTag("policy", int(o.MissPolicy))
	}

	if o.StrictRotation && o.UnitTolerance < 0 {
		return errors.New("unit tolerance must not be negative").
			WithType(ErrTypeInvalidOptions).
			WithTag("unit_tolerance", o.UnitTolerance)
	}

	return nil
}

// HeadRotation returns the unit rotation applied for the head rotation q.
// Non unit rotations are normalized, unless StrictRotation is set.
func (o Options) HeadRotation(q geometry.Quaternion) (geometry.UnitQuaternion, error) {
	if o.StrictRotation {
		if n := q.Norm(); math.Abs(n-1) > o.UnitTolerance || math.IsNaN(n) {
			return geometry.UnitQuaternion{}, errors.New("rotation requires unit quaternion").
				WithType(geometry.ErrTypeNotUnitQuaternion).
				WithTag("norm", n).
				WithTag("tolerance", o.UnitTolerance)
		}
	}

	// Normalizing once gives the same rotation as compensating the norm for
	// each sample.
	u, err := q.Normalize()
	if err != nil {
		return geometry.UnitQuaternion{}, errors.New("invalid head rotation").
			WithType(errors.Type(err)).
			Wrap(err)
	}
	return u, nil
}

// Returns the horizontal and vertical projection scales 2·tan(fov/2).
func (o Options) maxDistances() (h, v float64) {
	return 2 * math.Tan(o.FieldOfViewHorizontal.Radians()/2),
		2 * math.Tan(o.FieldOfViewVertical.Radians()/2)
}
