package geometry

import "math"

// Euler holds yaw (z axis), pitch (y axis) and roll (x axis) angles in
// radians.
type Euler struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

func (e Euler) Quaternion() UnitQuaternion {
	return FromEuler(e.Yaw, e.Pitch, e.Roll)
}

func toEuler(w, x, y, z float64) Euler {
	sinr := 2 * (w*x + y*z)
	cosr := 1 - 2*(x*x+y*y)

	// Floating point errors can push the pitch sine out of [-1, 1] at the
	// poles.
	sinp := 2 * (w*y - z*x)
	pitch := math.Copysign(math.Pi/2, sinp)
	if math.Abs(sinp) < 1 {
		pitch = math.Asin(sinp)
	}

	siny := 2 * (w*z + x*y)
	cosy := 1 - 2*(y*y+z*z)

	return Euler{
		Yaw:   math.Atan2(siny, cosy),
		Pitch: pitch,
		Roll:  math.Atan2(sinr, cosr),
	}
}
