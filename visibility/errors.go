package visibility

const (
	// Returned when a tiling layout cannot be used to build an estimator.
	ErrTypeInvalidLayout = "invalid_layout"

	// Returned when estimator options are invalid.
	ErrTypeInvalidOptions = "invalid_options"

	// Returned when an equirectangular coordinate lies beyond the registered
	// tile corners and the miss policy is MissError.
	ErrTypeCoordinateOutOfRange = "coordinate_out_of_range"
)
