package broadcast

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler serves listeners over websocket. Each connection gets a writer
// goroutine draining its queue; the handler goroutine reads.
func (h *Hub) WSHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := h.Attach()
		defer h.Detach(id)
		h.log.Printf("listener %s attached from %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		extend := func() { _ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)) }
		extend()
		conn.SetPongHandler(func(string) error {
			extend()
			return nil
		})

		// Writer goroutine. It also pings, so watch-only listeners that never
		// send anything stay attached while their pongs come back.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			ping := time.NewTicker(h.opts.PingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
						_ = conn.Close()
						return
					}
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"), time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						// Unblock the reader; the listener is reaped below.
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			extend()
			h.Handle(id, msg)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer so it doesn't outlive conn.
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
		h.log.Printf("listener %s detached", id)
	}
}
