package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/errors"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"golang.org/x/net/websocket"
)

const (
	viewerIDTag = "viewer_id"
	tilingIDTag = "tiling_id"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
	errorResponses     int
	travel             float64

	viewerID uint32
	tilingID string
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	h.originalRequest = conn.Request()
	h.viewerID = h.GetViewerID()
	h.tilingID = h.GetTilingID()

	logs.WithClientID(h.GetClientID()).
		WithTag(viewerIDTag, h.viewerID).
		WithTag(tilingIDTag, h.tilingID).
		WithTag("http_headers", struct {
			UserAgent               string `json:"user_agent,omitempty"`
			XForwardedFor           string `json:"x_forwarded_for,omitempty"`
			CloudFrontCountryName   string `json:"cloudfront_viewer_country,omitempty"`
			CloudFrontViewerAddress string `json:"cloudfront_viewer_address,omitempty"`
		}{
			UserAgent:               h.originalRequest.UserAgent(),
			XForwardedFor:           h.originalRequest.Header.Get(httpcmn.XForwardedForHeaderKey),
			CloudFrontCountryName:   h.originalRequest.Header.Get(httpcmn.CloudFrontCountryNameHeaderKey),
			CloudFrontViewerAddress: h.originalRequest.Header.Get(httpcmn.CloudFrontViewerAddressHeaderKey),
		}).
		Info("new viewer is connected")
}

func (h *handlerWithLogs) HandleOrientation(ctx context.Context, respond ResponseSender, msg Msg) error {
	err := h.Handler.HandleOrientation(ctx, respond, msg)
	if err != nil {
		logs.WithClientID(h.GetClientID()).
			WithTag(viewerIDTag, h.viewerID).
			WithTag(tilingIDTag, h.tilingID).
			WithTag("request_id", msg.RequestID).
			Warn(errors.New("handling orientation failed").Wrap(err))
	}
	return err
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithClientID(h.GetClientID()).
		WithTag(viewerIDTag, h.viewerID).
		WithTag(tilingIDTag, h.tilingID)
	if err != nil {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("viewer disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				WithTag(viewerIDTag, h.viewerID).
				WithTag(tilingIDTag, h.tilingID).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag(viewerIDTag, h.viewerID).
				WithTag(tilingIDTag, h.tilingID).
				WithTag("msg_type", msg.Type).
				Debug("message received")
			h.incCounter(msg.Type)
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				WithTag(viewerIDTag, h.viewerID).
				WithTag(tilingIDTag, h.tilingID).
				WithTag("msg_type", msg.Type).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag(viewerIDTag, h.viewerID).
				WithTag(tilingIDTag, h.tilingID).
				WithTag("msg_type", msg.Type).
				WithTag("total", msg.Total).
				Debug("message sent")
			h.trackResponse(msg)
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

// Accumulates the error responses and the head travel reported to the
// viewer since the last summary.
func (h *handlerWithLogs) trackResponse(msg Msg) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	switch {
	case msg.Type == MsgTypeError:
		h.errorResponses++

	case msg.OrthodromicDistance != nil:
		h.travel += *msg.OrthodromicDistance
	}
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.
		WithClientID(h.GetClientID()).
		WithTag(viewerIDTag, h.viewerID).
		WithTag(tilingIDTag, h.tilingID).
		WithTag("time_interval", h.summaryInterval).
		WithTag("error_responses", h.errorResponses).
		WithTag("orthodromic_travel", h.travel)
	h.errorResponses = 0
	h.travel = 0

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
