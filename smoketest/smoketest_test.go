package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tshttp "github.com/aukilabs/tilesight/http"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/visibility"
	tswebsocket "github.com/aukilabs/tilesight/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *models.TilingStore) {
	tilings := &models.TilingStore{Options: visibility.DefaultOptions()}

	api := tshttp.API{
		Tilings: tilings,
		Stream: func(tiling *models.Tiling) http.Handler {
			return tswebsocket.Server(context.Background(), func() tswebsocket.Handler {
				return &tswebsocket.StreamHandler{
					ClientIdleTimeout: time.Minute,
					Tiling:            tiling,
				}
			})
		},
	}

	var mux http.ServeMux
	api.Register(&mux)

	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)
	return server, tilings
}

func TestRun(t *testing.T) {
	server, tilings := newTestServer(t)

	res, err := Run(context.Background(), server.URL, "tilesight-test", time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, server.URL, res.ToEndpoint)
	require.Greater(t, res.LatencyMilliSec, float64(0))
	require.Zero(t, tilings.Count())
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		server, _ := newTestServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			Endpoint: "http://localtilesight",
			SendResult: func(_ context.Context, res Result) error {
				require.Equal(t, "http://localtilesight", res.FromEndpoint)
				require.Equal(t, server.URL, res.ToEndpoint)
				require.Equal(t, StatusSuccess, res.Status)
				gotResult = true
				return nil
			},
		})

		body, err := json.Marshal(Request{
			Endpoint: server.URL,
			Timeout:  time.Second,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localtilesight", bytes.NewBuffer(body))

		smokeTest.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		<-ctx.Done()

		require.True(t, gotResult)
	})

	t.Run("smoke test failed - offline", func(t *testing.T) {
		offline := httptest.NewServer(http.NotFoundHandler())
		offline.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			Endpoint: "http://localtilesight",
			SendResult: func(_ context.Context, res Result) error {
				require.Equal(t, offline.URL, res.ToEndpoint)
				require.Equal(t, float64(0), res.LatencyMilliSec)
				require.Equal(t, StatusFailed, res.Status)
				require.NotEmpty(t, res.Error)
				gotResult = true
				return nil
			},
		})

		body, err := json.Marshal(Request{
			Endpoint: offline.URL,
			Timeout:  time.Second,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localtilesight", bytes.NewBuffer(body))

		smokeTest.ServeHTTP(rec, req)

		<-ctx.Done()

		require.True(t, gotResult)
	})

	t.Run("malformed request", func(t *testing.T) {
		smokeTest := HandleSmokeTest(context.Background(), Options{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localtilesight", bytes.NewBufferString("{"))

		smokeTest.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
