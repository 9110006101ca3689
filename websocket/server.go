package websocket

import (
	"context"

	"golang.org/x/net/websocket"
)

// Server returns a WebSocket server that runs a handler created with
// newHandler for each connection.
func Server(ctx context.Context, newHandler func() Handler) websocket.Server {
	return websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			h := newHandler()
			defer h.Close()

			Handle(ctx, conn, h)
		},
	}
}
