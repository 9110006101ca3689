package websocket

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
	directionLabel      = "direction"

	directionIn  = "in"
	directionOut = "out"
)

var (
	wsConnectedViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_viewers",
		Help: "The number of connected viewers.",
	}, []string{publicEndpointLabel})

	wsMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_msgs",
		Help: "The number of messages exchanged with viewers.",
	}, []string{publicEndpointLabel, directionLabel, msgTypeLabel})

	wsBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_bytes",
		Help: "The number of bytes exchanged with viewers.",
	}, []string{publicEndpointLabel, directionLabel, msgTypeLabel})

	wsErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_errors",
		Help: "The errors that occured while exchanging messages with viewers.",
	}, []string{publicEndpointLabel, directionLabel, errTypeLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_msg_latency",
		Help:    "The time to process a viewer message.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsVisibleTiles = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_visible_tiles",
		Help:    "The number of tiles hit by a streamed viewport.",
		Buckets: prometheus.LinearBuckets(1, 1, 16),
	}, []string{publicEndpointLabel})

	wsHeadSpeed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_head_speed",
		Help:    "The angular speed of viewer heads, in radians per second.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{publicEndpointLabel})

	wsOrthodromicDistance = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_orthodromic_distance",
		Help:    "The great-circle angle travelled by the viewing direction between two orientations, in radians.",
		Buckets: prometheus.LinearBuckets(0, math.Pi/16, 17),
	}, []string{publicEndpointLabel})
)

// HandlerWithMetrics decorates h with Prometheus metrics labelled with the
// given public endpoint.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedViewers.With(h.labels()).Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleOrientation(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleOrientation(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedViewers.With(h.labels()).Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		h.instrumentExchange(directionIn, msg, n, err)
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := send(msg)
		h.instrumentExchange(directionOut, msg, n, err)

		if err == nil && msg.Type == MsgTypeVisibility {
			h.instrumentVisibility(msg)
		}
		return n, err
	}
}

func (h *handlerWithMetrics) instrumentExchange(direction string, msg Msg, n int, err error) {
	if err != nil {
		wsErrors.With(h.labels(
			directionLabel, direction,
			errTypeLabel, errors.Type(err),
		)).Inc()
		return
	}

	labels := h.labels(
		directionLabel, direction,
		msgTypeLabel, msg.Type,
	)
	wsMsgs.With(labels).Inc()
	wsBytes.With(labels).Add(float64(n))
}

func (h *handlerWithMetrics) instrumentVisibility(msg Msg) {
	wsVisibleTiles.With(h.labels()).Observe(float64(len(msg.Tiles)))

	if w := msg.AngularVelocity; w != nil {
		wsHeadSpeed.With(h.labels()).Observe(math.Sqrt(w.X*w.X + w.Y*w.Y + w.Z*w.Z))
	}
	if d := msg.OrthodromicDistance; d != nil {
		wsOrthodromicDistance.With(h.labels()).Observe(*d)
	}
}

func (h *handlerWithMetrics) measureLatency(msg Msg, f func() error) error {
	start := time.Now()
	err := f()

	wsMsgLatency.
		With(h.labels(msgTypeLabel, msg.Type)).
		Observe(time.Since(start).Seconds())
	return err
}

// Returns the metric labels of the handler with the given additional label
// name and value pairs.
func (h *handlerWithMetrics) labels(pairs ...string) prometheus.Labels {
	labels := prometheus.Labels{publicEndpointLabel: h.publicEndpoint}
	for i := 0; i+1 < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}
	return labels
}
