package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/nudgeme/nudgeme/internal/nudge"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents streams notification events over a websocket. A client
// connecting while a notification is pending first receives it as an
// "emitted" event. Events that do not fit in the client's buffer are
// dropped for that client.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			unavailable(w, "nudge engine")
			return
		}

		// The stream outlives the server's read and write timeouts.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		g.metrics.EventClients(1)
		defer g.metrics.EventClients(-1)

		events := make(chan nudge.Event, g.config.EventBuffer)
		cancel := g.engine.Subscribe(func(ev nudge.Event) {
			select {
			case events <- ev:
			default:
				g.logger.Debug("event stream client lagging, event dropped", "event", ev.Kind, "id", ev.Notification.ID)
			}
		})
		defer cancel()

		// Clients only listen; CloseRead handles control frames and
		// cancels ctx when the peer goes away.
		ctx := conn.CloseRead(r.Context())

		if n, ok := g.engine.Current(); ok {
			if err := writeEvent(ctx, conn, nudge.Event{Kind: nudge.EventEmitted, Notification: n}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.closing:
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case ev := <-events:
				if err := writeEvent(ctx, conn, ev); err != nil {
					g.logger.Debug("event stream write failed", "error", err)
					return
				}
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev nudge.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
