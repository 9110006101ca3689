package geometry

const (
	// Returned when a strict rotation is requested with a quaternion whose
	// norm is not 1.
	ErrTypeNotUnitQuaternion = "not_unit_quaternion"

	// Returned when an operation requires a non null quaternion or vector.
	ErrTypeDegenerate = "degenerate_geometry"

	// Returned when a time interval is not strictly positive.
	ErrTypeInvalidInterval = "invalid_interval"
)
