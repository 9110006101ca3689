package smoketest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/tilesight/models"
	tswebsocket "github.com/aukilabs/tilesight/websocket"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	defaultTimeout = 5 * time.Second

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request describes the server to smoke test.
type Request struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// Result is the outcome of a smoke test.
type Result struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          string  `json:"status"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Result) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			httpcmn.InternalServerError(w, errors.New("reading body failed").Wrap(err))
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
			return
		}

		go func() {
			defer func() {
				// Signals tests that the smoke test is over.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, req.Endpoint, opts.UserAgent, req.Timeout)
			if err != nil {
				logs.WithTag("to_endpoint", req.Endpoint).Warn(err)
			}
			res.FromEndpoint = opts.Endpoint

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run registers a full frame tiling on the given endpoint, streams a head
// orientation for it and checks that every sample point lands in the tile.
// The tiling is removed once done.
func Run(ctx context.Context, endpoint, userAgent string, timeout time.Duration) (Result, error) {
	res := Result{
		ToEndpoint: endpoint,
		Status:     StatusFailed,
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := client{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		userAgent: userAgent,
	}

	tiling, err := c.createTiling(ctx)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	defer func() {
		if err := c.deleteTiling(context.Background(), tiling.ID); err != nil {
			logs.WithTag("to_endpoint", endpoint).
				WithTag("tiling_id", tiling.ID).
				Warn(err)
		}
	}()

	latency, err := c.stream(ctx, tiling)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Status = StatusSuccess
	res.LatencyMilliSec = float64(latency) / float64(time.Millisecond)
	return res, nil
}

type tiling struct {
	ID          string `json:"id"`
	SampleCount int    `json:"sample_count"`
}

type client struct {
	endpoint  string
	userAgent string
}

func (c client) createTiling(ctx context.Context) (tiling, error) {
	body, err := json.Marshal(map[string]int{
		"columns":     1,
		"rows":        1,
		"tile_width":  960,
		"tile_height": 960,
	})
	if err != nil {
		return tiling{}, errors.New("encoding tiling failed").Wrap(err)
	}

	b, err := c.do(ctx, http.MethodPost, "/tilings", body, http.StatusCreated)
	if err != nil {
		return tiling{}, errors.New("creating tiling failed").Wrap(err)
	}

	var t tiling
	if err := json.Unmarshal(b, &t); err != nil {
		return tiling{}, errors.New("decoding tiling failed").Wrap(err)
	}
	return t, nil
}

func (c client) deleteTiling(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/tilings/"+id, nil, http.StatusNoContent); err != nil {
		return errors.New("deleting tiling failed").Wrap(err)
	}
	return nil
}

func (c client) stream(ctx context.Context, t tiling) (time.Duration, error) {
	url := strings.Replace(c.endpoint, "http", "ws", 1) + "/tilings/" + t.ID + "/stream"

	config, err := websocket.NewConfig(url, c.endpoint)
	if err != nil {
		return 0, errors.New("creating websocket config failed").Wrap(err)
	}
	if c.userAgent != "" {
		config.Header.Set("User-Agent", c.userAgent)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return 0, errors.New("dialing stream failed").
			WithTag("url", url).
			Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	start := time.Now()
	if _, err := tswebsocket.Send(conn, tswebsocket.Msg{
		Type:        tswebsocket.MsgTypeOrientation,
		RequestID:   1,
		TimestampMS: start.UnixMilli(),
		Orientation: &models.Orientation{W: 1},
	}); err != nil {
		return 0, errors.New("sending orientation failed").Wrap(err)
	}

	msg, _, err := tswebsocket.Receive(conn)
	if err != nil {
		return 0, errors.New("receiving visibility failed").Wrap(err)
	}
	latency := time.Since(start)

	if msg.Type != tswebsocket.MsgTypeVisibility {
		return 0, errors.New("unexpected stream message").
			WithTag("type", msg.Type).
			WithTag("error", msg.Error)
	}
	if msg.Total != t.SampleCount {
		return 0, errors.New("visibility does not cover every sample point").
			WithTag("total", msg.Total).
			WithTag("sample_count", t.SampleCount)
	}
	return latency, nil
}

func (c client) do(ctx context.Context, method, path string, body []byte, status int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != status {
		return nil, errors.Newf("unexpected status code %d", resp.StatusCode).
			WithTag("method", method).
			WithTag("path", path).
			WithTag("body", string(b))
	}
	return b, nil
}
