package websocket

import (
	"math"
	"testing"
	"time"

	"github.com/aukilabs/tilesight/geometry"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/visibility"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestTiling(t *testing.T, l visibility.Layout, o visibility.Options) *models.Tiling {
	tiling, err := models.NewTiling(l, o, 16)
	require.NoError(t, err)
	return tiling
}

func newTestHandler(tiling *models.Tiling, viewers *models.ViewerIDGenerator, idleTimeout time.Duration) func() Handler {
	return func() Handler {
		var h Handler = &StreamHandler{
			ClientIdleTimeout: idleTimeout,
			Tiling:            tiling,
			Viewers:           viewers,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "http://localhost:4000")
		return h
	}
}

func sendAndReceive(t *testing.T, conn *websocket.Conn, msg Msg) Msg {
	t.Helper()

	_, err := Send(conn, msg)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	res, _, err := Receive(conn)
	require.NoError(t, err)
	return res
}

func orientationMsg(requestID uint32, timestampMS int64, q geometry.Quaternion) Msg {
	o := models.OrientationFromQuaternion(q)
	return Msg{
		Type:        MsgTypeOrientation,
		RequestID:   requestID,
		TimestampMS: timestampMS,
		Orientation: &o,
	}
}

func TestHandlerHandlePing(t *testing.T) {
	var viewers models.ViewerIDGenerator
	tiling := newTestTiling(t, visibility.NewGridLayout(1, 1, 100, 100), visibility.DefaultOptions())

	conn, close := NewTestingEnv(t, newTestHandler(tiling, &viewers, time.Minute))
	defer close()

	res := sendAndReceive(t, conn, Msg{Type: MsgTypePing, RequestID: 7})
	require.Equal(t, MsgTypePong, res.Type)
	require.Equal(t, uint32(7), res.RequestID)
	require.Equal(t, uint32(1), res.ViewerID)
	require.NotZero(t, res.TimestampMS)
}

func TestHandlerHandleOrientation(t *testing.T) {
	var viewers models.ViewerIDGenerator
	tiling := newTestTiling(t, visibility.NewGridLayout(2, 1, 100, 100), visibility.DefaultOptions())

	conn, close := NewTestingEnv(t, newTestHandler(tiling, &viewers, time.Minute))
	defer close()

	res := sendAndReceive(t, conn, orientationMsg(1, 1000, geometry.Identity().Quaternion()))
	require.Equal(t, MsgTypeVisibility, res.Type)
	require.Equal(t, uint32(1), res.RequestID)
	require.Equal(t, int64(1000), res.TimestampMS)
	require.Equal(t, visibility.Visibility{0: 81}, res.Tiles)
	require.Equal(t, 81, res.Total)
	require.Nil(t, res.AngularVelocity)
	require.Nil(t, res.OrthodromicDistance)

	res = sendAndReceive(t, conn, orientationMsg(2, 1500, geometry.FromEuler(-math.Pi/2, 0, 0).Quaternion()))
	require.Equal(t, MsgTypeVisibility, res.Type)
	require.Equal(t, 81, res.Total)
	require.NotZero(t, res.Tiles[0])
	require.NotZero(t, res.Tiles[1])

	require.NotNil(t, res.OrthodromicDistance)
	require.InDelta(t, math.Pi/2, *res.OrthodromicDistance, 1e-9)
	require.NotNil(t, res.AngularVelocity)
	require.NotZero(t, res.AngularVelocity.Z)

	t.Run("timestamps not increasing skip velocity", func(t *testing.T) {
		res := sendAndReceive(t, conn, orientationMsg(3, 1500, geometry.Identity().Quaternion()))
		require.Equal(t, MsgTypeVisibility, res.Type)
		require.NotNil(t, res.OrthodromicDistance)
		require.Nil(t, res.AngularVelocity)
	})

	t.Run("non unit orientations are normalized", func(t *testing.T) {
		res := sendAndReceive(t, conn, orientationMsg(4, 2000, geometry.New(3, 0, 0, 0)))
		require.Equal(t, MsgTypeVisibility, res.Type)
		require.Equal(t, visibility.Visibility{0: 81}, res.Tiles)
	})
}

func TestHandlerHandleOrientationErrors(t *testing.T) {
	var viewers models.ViewerIDGenerator

	o := visibility.DefaultOptions()
	o.StrictRotation = true
	tiling := newTestTiling(t, visibility.NewGridLayout(2, 1, 100, 100), o)

	conn, close := NewTestingEnv(t, newTestHandler(tiling, &viewers, time.Minute))
	defer close()

	t.Run("missing orientation", func(t *testing.T) {
		res := sendAndReceive(t, conn, Msg{Type: MsgTypeOrientation, RequestID: 1})
		require.Equal(t, MsgTypeError, res.Type)
		require.Equal(t, uint32(1), res.RequestID)
		require.Equal(t, ErrTypeMsgInvalid, res.ErrorType)
	})

	t.Run("non unit orientation", func(t *testing.T) {
		res := sendAndReceive(t, conn, orientationMsg(2, 0, geometry.New(2, 0, 0, 0)))
		require.Equal(t, MsgTypeError, res.Type)
		require.Equal(t, uint32(2), res.RequestID)
		require.Equal(t, geometry.ErrTypeNotUnitQuaternion, res.ErrorType)
	})

	t.Run("unknown message type", func(t *testing.T) {
		res := sendAndReceive(t, conn, Msg{Type: "teleport", RequestID: 3})
		require.Equal(t, MsgTypeError, res.Type)
		require.Equal(t, ErrTypeMsgUnknown, res.ErrorType)
	})

	t.Run("malformed frame", func(t *testing.T) {
		require.NoError(t, websocket.Message.Send(conn, `{"type": "orientation",`))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		res, _, err := Receive(conn)
		require.NoError(t, err)
		require.Equal(t, MsgTypeError, res.Type)
		require.Equal(t, ErrTypeMsgDecode, res.ErrorType)
		require.NotEmpty(t, res.Error)
	})

	t.Run("connection is still alive", func(t *testing.T) {
		res := sendAndReceive(t, conn, Msg{Type: MsgTypePing, RequestID: 4})
		require.Equal(t, MsgTypePong, res.Type)
	})
}

func TestHandlerIdleTimeout(t *testing.T) {
	var viewers models.ViewerIDGenerator
	tiling := newTestTiling(t, visibility.NewGridLayout(1, 1, 100, 100), visibility.DefaultOptions())

	conn, close := NewTestingEnv(t, newTestHandler(tiling, &viewers, time.Millisecond*50))
	defer close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := Receive(conn)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return viewers.Active() == 0
	}, time.Second, time.Millisecond*10)
}

func TestHandlerReleasesViewerID(t *testing.T) {
	var viewers models.ViewerIDGenerator
	tiling := newTestTiling(t, visibility.NewGridLayout(1, 1, 100, 100), visibility.DefaultOptions())

	conn, close := NewTestingEnv(t, newTestHandler(tiling, &viewers, time.Minute))
	defer close()

	sendAndReceive(t, conn, Msg{Type: MsgTypePing})
	require.Equal(t, 1, viewers.Active())

	conn.Close()
	require.Eventually(t, func() bool {
		return viewers.Active() == 0
	}, time.Second, time.Millisecond*10)
}
