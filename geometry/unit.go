package geometry

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// UnitQuaternion is a quaternion of norm 1 used as a rotation operator.
//
// Unit quaternions are created with Identity, FromAngleAxis, FromEuler or
// Quaternion.Normalize. The zero value is the identity rotation.
type UnitQuaternion struct {
	q Quaternion
}

func Identity() UnitQuaternion {
	return UnitQuaternion{q: Quaternion{w: 1}}
}

// FromAngleAxis returns the rotation of theta radians around axis.
func FromAngleAxis(theta float64, axis Vector) (UnitQuaternion, error) {
	n := axis.Norm()
	if n == 0 {
		return UnitQuaternion{}, errors.New("rotation axis is null").
			WithType(ErrTypeDegenerate).
			WithTag("theta", theta)
	}

	return UnitQuaternion{q: Quaternion{
		w: math.Cos(theta / 2),
		v: axis.Scale(math.Sin(theta/2) / n),
	}}, nil
}

// FromEuler returns the rotation described by the given yaw (z axis), pitch
// (y axis) and roll (x axis) angles in radians.
func FromEuler(yaw, pitch, roll float64) UnitQuaternion {
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)
	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)

	return unit(Quaternion{
		w: cy*cr*cp + sy*sr*sp,
		v: Vector{
			x: cy*sr*cp - sy*cr*sp,
			y: cy*cr*sp + sy*sr*cp,
			z: sy*cr*cp - cy*sr*sp,
		},
	})
}

// Returns q normalized, falling back to the identity for degenerate inputs.
func unit(q Quaternion) UnitQuaternion {
	u, err := q.Normalize()
	if err != nil {
		return Identity()
	}
	return u
}

func (u UnitQuaternion) raw() Quaternion {
	if u.q.w == 0 && u.q.v == (Vector{}) {
		return Quaternion{w: 1}
	}
	return u.q
}

// Quaternion returns u as a raw quaternion.
func (u UnitQuaternion) Quaternion() Quaternion {
	return u.raw()
}

func (u UnitQuaternion) W() float64 { return u.raw().w }
func (u UnitQuaternion) V() Vector  { return u.raw().v }

func (u UnitQuaternion) Equal(o UnitQuaternion) bool {
	return u.raw().Equal(o.raw())
}

func (u UnitQuaternion) Dot(o UnitQuaternion) float64 {
	return u.raw().Dot(o.raw())
}

// Normalize returns u. Unit quaternions are already normalized.
func (u UnitQuaternion) Normalize() UnitQuaternion {
	return u
}

func (u UnitQuaternion) Conj() UnitQuaternion {
	return UnitQuaternion{q: u.raw().Conj()}
}

// Inv returns the inverse of u, which is its conjugate.
func (u UnitQuaternion) Inv() UnitQuaternion {
	return u.Conj()
}

func (u UnitQuaternion) Neg() UnitQuaternion {
	return UnitQuaternion{q: u.raw().Neg()}
}

// Mul composes u and o: the result rotates by o first, then by u.
func (u UnitQuaternion) Mul(o UnitQuaternion) UnitQuaternion {
	return unit(u.raw().Mul(o.raw()))
}

// Rotate rotates v with the sandwich product u·v·u*.
func (u UnitQuaternion) Rotate(v Vector) Vector {
	q := u.raw()
	return q.Mul(Pure(v)).Mul(q.Conj()).v
}

// Pow returns u^k, the rotation around the same axis by k times the angle.
func (u UnitQuaternion) Pow(k float64) UnitQuaternion {
	return unit(Pow(u.raw(), k))
}

// Slerp interpolates from u to o along the shortest arc.
func (u UnitQuaternion) Slerp(o UnitQuaternion, k float64) UnitQuaternion {
	q1, q2 := u.raw(), o.raw()
	if q1.Equal(q2) {
		return u
	}
	if q1.Dot(q2) < 0 {
		q2 = q2.Neg()
	}

	return unit(q1.Mul(Pow(q1.Conj().Mul(q2), k)))
}

// Angle returns the rotation angle of u in [0, π].
func (u UnitQuaternion) Angle() float64 {
	return 2 * math.Acos(clamp(math.Abs(u.raw().w), 0, 1))
}

func (u UnitQuaternion) ToEuler() Euler {
	return u.raw().ToEuler()
}

func (u UnitQuaternion) String() string {
	return u.raw().String()
}
