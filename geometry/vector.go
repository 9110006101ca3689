package geometry

import "math"

// Vector is a 3D vector in cartesian space.
type Vector struct {
	x float64
	y float64
	z float64
}

func NewVector(x, y, z float64) Vector {
	return Vector{x, y, z}
}

func (v Vector) X() float64 { return v.x }
func (v Vector) Y() float64 { return v.y }
func (v Vector) Z() float64 { return v.z }

func (v Vector) Equal(o Vector) bool {
	return v.x == o.x && v.y == o.y && v.z == o.z
}

func (v Vector) EqualWithEpsilon(o Vector, epsilon float64) bool {
	return math.Abs(v.x-o.x) <= epsilon &&
		math.Abs(v.y-o.y) <= epsilon &&
		math.Abs(v.z-o.z) <= epsilon
}

func (v Vector) Add(o Vector) Vector {
	return Vector{v.x + o.x, v.y + o.y, v.z + o.z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{v.x - o.x, v.y - o.y, v.z - o.z}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{v.x * s, v.y * s, v.z * s}
}

func (v Vector) Div(s float64) Vector {
	return Vector{v.x / s, v.y / s, v.z / s}
}

func (v Vector) Neg() Vector {
	return Vector{-v.x, -v.y, -v.z}
}

func (v Vector) Dot(o Vector) float64 {
	return v.x*o.x + v.y*o.y + v.z*o.z
}

func (v Vector) Cross(o Vector) Vector {
	return Vector{
		v.y*o.z - v.z*o.y,
		v.z*o.x - v.x*o.z,
		v.x*o.y - v.y*o.x,
	}
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v / ||v||. The zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Div(n)
}

// Spherical converts v to spherical coordinates.
func (v Vector) Spherical() Spherical {
	rho := v.Norm()
	if rho == 0 {
		return Spherical{}
	}

	return Spherical{
		rho:   rho,
		theta: math.Atan2(v.y, v.x),
		phi:   math.Acos(clamp(v.z/rho, -1, 1)),
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
