package models

import (
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	"github.com/aukilabs/tilesight/geometry"
)

// Orientation is the wire representation of a head rotation quaternion.
type Orientation struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (o Orientation) Quaternion() geometry.Quaternion {
	return geometry.New(o.W, o.X, o.Y, o.Z)
}

func OrientationFromQuaternion(q geometry.Quaternion) Orientation {
	v := q.V()
	return Orientation{
		W: q.W(),
		X: v.X(),
		Y: v.Y(),
		Z: v.Z(),
	}
}

// OrientationFromProtobuf returns the rotation of a posemesh pose. The
// position is ignored.
func OrientationFromProtobuf(p *hagallpb.Pose) Orientation {
	return Orientation{
		W: float64(p.GetRw()),
		X: float64(p.GetRx()),
		Y: float64(p.GetRy()),
		Z: float64(p.GetRz()),
	}
}

// Vector is the wire representation of a 3D vector.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func VectorFromGeometry(v geometry.Vector) Vector {
	return Vector{
		X: v.X(),
		Y: v.Y(),
		Z: v.Z(),
	}
}
