package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/trace"
	"golang.org/x/net/websocket"
)

// StreamHandler answers the head orientations streamed by a viewer with the
// tile visibility of a tiling.
type StreamHandler struct {
	// The time a viewer is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The tiling the visibility is computed for.
	Tiling *models.Tiling

	// The generator that attributes viewer ids.
	Viewers *models.ViewerIDGenerator

	conn     *websocket.Conn
	clientID string
	viewerID uint32
	previous *trace.Sample
}

func (h *StreamHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn
	h.clientID = conn.Request().Header.Get(httpcmn.HeaderPosemeshClientID)

	if h.Viewers != nil {
		h.viewerID = h.Viewers.New()
	}
}

func (h *StreamHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:        MsgTypePong,
		RequestID:   msg.RequestID,
		TimestampMS: time.Now().UnixMilli(),
		ViewerID:    h.viewerID,
	})
	return nil
}

func (h *StreamHandler) HandleOrientation(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Orientation == nil {
		respond.Send(newErrorMsg(msg, errors.New("orientation message without orientation").
			WithType(ErrTypeMsgInvalid).
			WithTag("request_id", msg.RequestID)))
		return nil
	}

	head := msg.Orientation.Quaternion()

	v, err := h.Tiling.Visibility(head)
	if err != nil {
		respond.Send(newErrorMsg(msg, err))
		return nil
	}

	res := Msg{
		Type:        MsgTypeVisibility,
		RequestID:   msg.RequestID,
		TimestampMS: msg.TimestampMS,
		ViewerID:    h.viewerID,
		Tiles:       v,
		Total:       v.Total(),
	}

	// A successful query guarantees a non null rotation.
	u, _ := head.Normalize()
	sample := trace.Sample{
		Timestamp:   time.Duration(msg.TimestampMS) * time.Millisecond,
		Orientation: u,
	}

	if prev := h.previous; prev != nil {
		distance := geometry.OrthodromicDistance(prev.Orientation, sample.Orientation)
		res.OrthodromicDistance = &distance

		// Velocities are skipped when timestamps are not increasing.
		if velocities, err := trace.AngularVelocities([]trace.Sample{*prev, sample}); err == nil {
			w := models.VectorFromGeometry(velocities[0])
			res.AngularVelocity = &w
		}
	}
	h.previous = &sample

	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleDisconnect(_ error) {
	if h.Viewers != nil && h.viewerID != 0 {
		h.Viewers.Release(h.viewerID)
		h.viewerID = 0
	}
}

func (h *StreamHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *StreamHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *StreamHandler) Close() {
}

func (h *StreamHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *StreamHandler) GetClientID() string {
	return h.clientID
}

func (h *StreamHandler) GetViewerID() uint32 {
	return h.viewerID
}

func (h *StreamHandler) GetTilingID() string {
	if h.Tiling == nil {
		return ""
	}
	return h.Tiling.ID
}
