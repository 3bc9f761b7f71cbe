// Command teleterm-web bridges browser WebSocket clients to the TCP relay:
// it accepts a WebSocket connection, dials the backend relay over TCP, and
// pumps one binary WebSocket message per wire frame in each direction, so a
// browser-based streamer or watcher can speak the same framed protocol
// without a raw TCP socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/ehrlich-b/teleterm/internal/wire"
)

func main() {
	addr := flag.String("addr", ":8090", "http listen address")
	relayAddr := flag.String("relay-addr", "127.0.0.1:4144", "backend relay TCP address")
	flag.Parse()

	log := slog.Default()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridgeHandler(*relayAddr, log))

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("web bridge listening", "addr", *addr, "relay", *relayAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func bridgeHandler(relayAddr string, log *slog.Logger) http.HandlerFunc {
	lim := wire.DefaultLimits()

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusInternalError, "unexpected close")

		backend, err := net.Dial("tcp", relayAddr)
		if err != nil {
			ws.Close(websocket.StatusInternalError, "backend unreachable")
			return
		}
		defer backend.Close()

		ctx := r.Context()
		done := make(chan struct{}, 2)

		// backend -> browser: one WS binary message per wire frame.
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				frame, err := wire.ReadFrame(backend, lim)
				if err != nil {
					return
				}
				buf := make([]byte, 1+len(frame.Payload))
				buf[0] = frame.Type
				copy(buf[1:], frame.Payload)
				if err := ws.Write(ctx, websocket.MessageBinary, buf); err != nil {
					return
				}
			}
		}()

		// browser -> backend: one wire frame per WS binary message.
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				typ, data, err := ws.Read(ctx)
				if err != nil {
					return
				}
				if typ != websocket.MessageBinary || len(data) < 1 {
					continue
				}
				frame := wire.Frame{Type: data[0], Payload: data[1:]}
				if err := wire.WriteFrame(backend, frame, lim); err != nil {
					return
				}
			}
		}()

		<-done
		ws.Close(websocket.StatusNormalClosure, "closing")
		log.Info("bridge session ended", "relay", relayAddr)
	}
}
