package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/hub"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/types"
)

const (
	readIdle     = 60 * time.Second
	writeTimeout = 3 * time.Second
)

// Handler streams session snapshots to the client and turns its commands
// into mutations. Browsers cannot set headers on the upgrade request, so the
// session token comes in the query string.
func Handler(h *hub.Hub, auth backend.Auth, tables backend.Tables, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		as, err := auth.Current(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "not signed in", http.StatusUnauthorized)
			return
		}
		sess, err := h.Ensure(r.Context(), as.UserID)
		if err != nil {
			log.Warn("ws: ensure session", zap.String("user_id", as.UserID), zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan session.Snapshot, 8)
		watcherID := uuid.NewString()
		if !sess.Send(session.Watch{WatcherID: watcherID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "session ended")
			return
		}
		defer sess.Send(session.Unwatch{WatcherID: watcherID})

		write := func(msg types.ServerMessage) {
			payload, _ := json.Marshal(msg)
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
		}

		// Writer goroutine. The outbox closes when the session drops us,
		// which ends the connection too.
		go func() {
			for snap := range out {
				write(types.Snapshot(snap))
			}
			cancel()
		}()

		for {
			rctx, rcancel := context.WithTimeout(ctx, readIdle)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("ws: read ended", zap.String("user_id", as.UserID), zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				write(types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			m, err := cm.Mutation(ctx, tables)
			if err != nil {
				write(types.ServerMessage{Type: "Error", RequestID: cm.RequestID, Error: errorText(err)})
				continue
			}

			// Do waits for the remote call, so it must not hold up the reader.
			go func(requestID string) {
				res, err := sess.Do(ctx, m)
				if errors.Is(err, context.Canceled) {
					return
				}
				if err != nil {
					write(types.ServerMessage{Type: "Error", RequestID: requestID, Error: backend.UserMessage(err)})
					return
				}
				write(types.ServerMessage{Type: "Result", RequestID: requestID, State: types.NewStateView(res.State)})
			}(cm.RequestID)
		}
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, types.ErrUnknownType):
		return "unknown type"
	case errors.Is(err, backend.ErrNotFound):
		return "tournament not found"
	}
	return err.Error()
}
