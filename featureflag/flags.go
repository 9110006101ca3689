package featureflag

type Flag string

const (
	// Rejects head rotations that are not unit quaternions instead of
	// normalizing them.
	FlagStrictRotation Flag = "STRICT_ROTATION"

	// Fails visibility queries whose projected coordinates fall beyond the
	// last tile corner instead of clamping them.
	FlagStrictCoordinates Flag = "STRICT_COORDINATES"

	FlagDisableVisibilityCache Flag = "DISABLE_VISIBILITY_CACHE"
)
