package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&StreamHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&StreamHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter(MsgTypeOrientation)
	h.incCounter(MsgTypeOrientation)
	h.incCounter(MsgTypePing)

	distance := 0.5
	h.trackResponse(Msg{Type: MsgTypeVisibility, OrthodromicDistance: &distance})
	h.trackResponse(Msg{Type: MsgTypeVisibility, OrthodromicDistance: &distance})
	h.trackResponse(Msg{Type: MsgTypeError})

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	clientIDTag := fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID)
	require.Contains(t, logString, `"orientation":2`)
	require.Contains(t, logString, `"ping":1`)
	require.Contains(t, logString, `"error_responses":1`)
	require.Contains(t, logString, `"orthodromic_travel":1`)
	require.Zero(t, h.errorResponses)
	require.Zero(t, h.travel)
	require.Contains(t, logString, clientIDTag)
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&StreamHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// No summary is logged until a counter is incremented.
	h.incCounter(MsgTypeOrientation)

	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	require.NotEmpty(t, b.String())
}
