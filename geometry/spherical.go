package geometry

import "math"

// Spherical holds the spherical coordinates of a cartesian vector: the
// radius, the azimuthal angle theta in [-π, π] measured from the x axis in
// the xy plane and the polar angle phi in [0, π] measured from the z axis.
//
// Spherical values are only produced by Vector.Spherical.
type Spherical struct {
	rho   float64
	theta float64
	phi   float64
}

func (s Spherical) Rho() float64   { return s.rho }
func (s Spherical) Theta() float64 { return s.theta }
func (s Spherical) Phi() float64   { return s.phi }

// Cartesian converts s back to a cartesian vector.
func (s Spherical) Cartesian() Vector {
	sinPhi := math.Sin(s.phi)
	return Vector{
		x: s.rho * sinPhi * math.Cos(s.theta),
		y: s.rho * sinPhi * math.Sin(s.theta),
		z: s.rho * math.Cos(s.phi),
	}
}
