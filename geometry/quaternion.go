package geometry

import (
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// The reference direction rotated by orientations when they are compared
// as directions on the unit sphere.
var xAxis = Vector{1, 0, 0}

// Rotation is implemented by types that rotate vectors.
type Rotation interface {
	Rotate(v Vector) Vector
}

// Quaternion is a quaternion w + xi + yj + zk of unknown norm.
//
// Scalars and vectors are promoted to quaternions with Scalar and Pure.
type Quaternion struct {
	w float64
	v Vector
}

func New(w, x, y, z float64) Quaternion {
	return Quaternion{w: w, v: Vector{x, y, z}}
}

func FromParts(w float64, v Vector) Quaternion {
	return Quaternion{w: w, v: v}
}

// Scalar promotes s to a quaternion with a null vector part.
func Scalar(s float64) Quaternion {
	return Quaternion{w: s}
}

// Pure promotes v to a quaternion with a null scalar part.
func Pure(v Vector) Quaternion {
	return Quaternion{v: v}
}

func (q Quaternion) W() float64 { return q.w }
func (q Quaternion) V() Vector  { return q.v }

func (q Quaternion) Equal(o Quaternion) bool {
	return q.w == o.w && q.v.Equal(o.v)
}

func (q Quaternion) EqualWithEpsilon(o Quaternion, epsilon float64) bool {
	return math.Abs(q.w-o.w) <= epsilon && q.v.EqualWithEpsilon(o.v, epsilon)
}

func (q Quaternion) Add(o Quaternion) Quaternion {
	return Quaternion{q.w + o.w, q.v.Add(o.v)}
}

func (q Quaternion) Sub(o Quaternion) Quaternion {
	return Quaternion{q.w - o.w, q.v.Sub(o.v)}
}

func (q Quaternion) Neg() Quaternion {
	return Quaternion{-q.w, q.v.Neg()}
}

// Mul returns the Hamilton product q·o.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		w: q.w*o.w - q.v.Dot(o.v),
		v: o.v.Scale(q.w).Add(q.v.Scale(o.w)).Add(q.v.Cross(o.v)),
	}
}

func (q Quaternion) Scale(s float64) Quaternion {
	return Quaternion{q.w * s, q.v.Scale(s)}
}

func (q Quaternion) Div(s float64) Quaternion {
	return Quaternion{q.w / s, q.v.Div(s)}
}

func (q Quaternion) Dot(o Quaternion) float64 {
	return q.w*o.w + q.v.Dot(o.v)
}

func (q Quaternion) Norm2() float64 {
	return q.Dot(q)
}

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.Norm2())
}

func (q Quaternion) IsPure() bool {
	return q.w == 0
}

func (q Quaternion) Conj() Quaternion {
	return Quaternion{q.w, q.v.Neg()}
}

// Inv returns the conjugate divided by the squared norm. The null
// quaternion is returned unchanged.
func (q Quaternion) Inv() Quaternion {
	n2 := q.Norm2()
	if n2 == 0 {
		return q
	}
	return q.Conj().Div(n2)
}

// Normalized returns q / ||q|| as a raw quaternion. The null quaternion is
// returned unchanged.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return q.Div(n)
}

// Normalize returns the unit quaternion q / ||q||.
func (q Quaternion) Normalize() (UnitQuaternion, error) {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return UnitQuaternion{}, errors.New("quaternion cannot be normalized").
			WithType(ErrTypeDegenerate).
			WithTag("quaternion", q.String())
	}
	return UnitQuaternion{q: q.Div(n)}, nil
}

// Rotate rotates v with the sandwich product q·v·q⁻¹. The norm of q is
// compensated by a division by its squared norm, which costs more than
// rotating with a UnitQuaternion. A null quaternion leaves v unchanged.
func (q Quaternion) Rotate(v Vector) Vector {
	n2 := q.Norm2()
	if n2 == 0 {
		return v
	}
	return q.Mul(Pure(v)).Mul(q.Conj()).v.Div(n2)
}

// RotateStrict rotates v like Rotate but returns an error when the norm of q
// differs from 1 by more than tolerance.
func (q Quaternion) RotateStrict(v Vector, tolerance float64) (Vector, error) {
	if n := q.Norm(); math.Abs(n-1) > tolerance || math.IsNaN(n) {
		return Vector{}, errors.New("rotation requires unit quaternion").
			WithType(ErrTypeNotUnitQuaternion).
			WithTag("norm", n).
			WithTag("tolerance", tolerance)
	}
	return q.Rotate(v), nil
}

// ToEuler returns the yaw, pitch and roll angles of q.
func (q Quaternion) ToEuler() Euler {
	return toEuler(q.w, q.v.x, q.v.y, q.v.z)
}

func (q Quaternion) String() string {
	return fmt.Sprintf("%g + %g i + %g j + %g k", q.w, q.v.x, q.v.y, q.v.z)
}

// Exp returns the exponential e^w·(cos|v| + sin|v|·v/|v|) of q = w + v.
func Exp(q Quaternion) Quaternion {
	e := math.Exp(q.w)
	n := q.v.Norm()

	v := q.v
	if n != 0 {
		v = q.v.Scale(e * math.Sin(n) / n)
	}

	return Quaternion{
		w: e * math.Cos(n),
		v: v,
	}
}

// Log returns the logarithm (ln|q|, acos(w/|q|)·v/|v|) of q = w + v.
//
// When q is real or null the vector part is returned as is, which is not a
// valid logarithm.
func Log(q Quaternion) Quaternion {
	n := q.Norm()
	vn := q.v.Norm()

	v := q.v
	if vn != 0 && n != 0 {
		v = q.v.Scale(math.Acos(clamp(q.w/n, -1, 1)) / vn)
	}

	return Quaternion{
		w: math.Log(n),
		v: v,
	}
}

// Pow returns q^k computed with the exponential map.
func Pow(q Quaternion, k float64) Quaternion {
	return Exp(Log(q).Scale(k))
}

// Slerp interpolates between q1 and q2 along the shortest arc. k=0 returns
// q1 and k=1 returns q2, or -q2 when q1 and q2 are in opposite hemispheres.
func Slerp(q1, q2 Quaternion, k float64) Quaternion {
	if q1.Equal(q2) {
		return q1
	}
	if q1.Dot(q2) < 0 {
		q2 = q2.Neg()
	}
	return q1.Mul(Pow(q1.Inv().Mul(q2), k))
}

// Distance returns the euclidean distance between q1 and q2 in the 4D space.
func Distance(q1, q2 Quaternion) float64 {
	return q2.Sub(q1).Norm()
}

// OrthodromicDistance returns the great-circle angle between the directions
// of the x axis rotated by r1 and by r2.
func OrthodromicDistance(r1, r2 Rotation) float64 {
	p1 := Pure(r1.Rotate(xAxis))
	p2 := Pure(r2.Rotate(xAxis))

	// The product of two pure quaternions has -(p1·p2) as scalar part and
	// p1×p2 as vector part.
	p := p1.Mul(p2)
	return math.Atan2(p.v.Norm(), -p.w)
}

// AverageAngularVelocity estimates the angular velocity between the
// orientations q1 and q2 separated by dt seconds.
//
// Non pure orientations are reduced to the pure quaternion of the x axis
// they rotate to.
func AverageAngularVelocity(q1, q2 Quaternion, dt float64) (Vector, error) {
	if dt <= 0 || math.IsNaN(dt) {
		return Vector{}, errors.New("angular velocity requires a positive interval").
			WithType(ErrTypeInvalidInterval).
			WithTag("dt", dt)
	}

	if q1.Dot(q2) < 0 {
		q2 = q2.Neg()
	}

	q1 = pointing(q1)
	q2 = pointing(q2)

	w := q2.Sub(q1).Scale(2 / dt).Mul(q1.Inv())
	return w.v, nil
}

func pointing(q Quaternion) Quaternion {
	if q.IsPure() {
		return q
	}

	u, err := q.Normalize()
	if err != nil {
		return q
	}
	return Pure(u.Rotate(xAxis))
}
