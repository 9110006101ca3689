package models

import (
	"testing"

	"github.com/aukilabs/hagall-common/messages/hagallpb"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestOrientation(t *testing.T) {
	q := geometry.New(0.5, -0.5, 0.25, 1)

	o := OrientationFromQuaternion(q)
	require.Equal(t, Orientation{W: 0.5, X: -0.5, Y: 0.25, Z: 1}, o)
	require.True(t, q.Equal(o.Quaternion()))

	b, err := json.Marshal(o)
	require.NoError(t, err)
	require.JSONEq(t, `{"w":0.5,"x":-0.5,"y":0.25,"z":1}`, string(b))
}

func TestOrientationFromProtobuf(t *testing.T) {
	o := OrientationFromProtobuf(&hagallpb.Pose{
		Px: 1,
		Py: 2,
		Pz: 3,
		Rx: 0.5,
		Ry: 0.25,
		Rz: -0.5,
		Rw: 1,
	})
	require.Equal(t, Orientation{W: 1, X: 0.5, Y: 0.25, Z: -0.5}, o)

	require.Equal(t, Orientation{}, OrientationFromProtobuf(nil))
}

func TestVectorFromGeometry(t *testing.T) {
	require.Equal(t, Vector{X: 1, Y: -2, Z: 3}, VectorFromGeometry(geometry.NewVector(1, -2, 3)))
}
