package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/visibility"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	MsgTypePing        = "ping"
	MsgTypePong        = "pong"
	MsgTypeOrientation = "orientation"
	MsgTypeVisibility  = "visibility"
	MsgTypeError       = "error"
)

const (
	// Returned when a received message is not valid JSON.
	ErrTypeMsgDecode = "msg_decode_error"

	// Returned when a message misses a required field.
	ErrTypeMsgInvalid = "msg_invalid"

	ErrTypeMsgUnknown = "msg_unknown"
)

// Msg is a message exchanged with a viewer, encoded as a JSON text frame.
type Msg struct {
	Type        string `json:"type"`
	RequestID   uint32 `json:"request_id,omitempty"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
	ViewerID    uint32 `json:"viewer_id,omitempty"`

	// The head rotation of an orientation message.
	Orientation *models.Orientation `json:"orientation,omitempty"`

	// The result of a visibility message.
	Tiles visibility.Visibility `json:"tiles,omitempty"`
	Total int                   `json:"total,omitempty"`

	// The motion since the previous orientation of the viewer, in radians
	// per second and radians.
	AngularVelocity     *models.Vector `json:"angular_velocity,omitempty"`
	OrthodromicDistance *float64       `json:"orthodromic_distance,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// A function that receives a message. It returns the number of bytes read.
type Receiver func() (Msg, int, error)

// A function that sends a message. It returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender is the interface that queues messages to be sent to the
// connected viewer.
type ResponseSender interface {
	Send(Msg)
}

// Receive reads a message from the given connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeMsgDecode).
			Wrap(err)
	}
	return msg, len(data), nil
}

// Send writes a message to the given connection.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithTag("msg_type", msg.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}

func newErrorMsg(req Msg, err error) Msg {
	return Msg{
		Type:        MsgTypeError,
		RequestID:   req.RequestID,
		TimestampMS: req.TimestampMS,
		Error:       err.Error(),
		ErrorType:   errors.Type(err),
	}
}
