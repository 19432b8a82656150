// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rumblerush/server/internal/game"
)

// WSHandler upgrades /ws connections, authenticates the caller, and runs the
// read loop until the socket dies. All game traffic flows through here.
func WSHandler(logger *logrus.Logger, g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		userID, displayName, authErr := authenticateWS(r.Context(), r)
		if authErr != nil {
			if authErr.internal {
				logger.WithError(authErr.cause).Error("ws auth machinery failed")
				c.Close(CloseInternalAuthError, "internal auth error")
			} else {
				logger.WithError(authErr.cause).Warn("ws auth failed")
				c.Close(CloseAuthFailed, "authentication failed")
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		cl := g.newClient(userID, displayName, c, cancel)
		logger.WithFields(logrus.Fields{
			"userId":       userID,
			"connectionId": cl.ConnectionID,
			"remote":       r.RemoteAddr,
		}).Info("ws connected")

		cl.Send(game.Msg{"type": "connected", "connectionId": cl.ConnectionID.String()})

		go wsWritePump(ctx, c, cl, logger)
		wsReadPump(ctx, c, g, cl, logger)

		g.dropClient(cl)
		cancel()
		logger.WithFields(logrus.Fields{
			"userId":       userID,
			"connectionId": cl.ConnectionID,
		}).Info("ws disconnected")
	}
}

// wsReadPump reads frames until the connection closes, feeding each JSON
// message to the dispatcher. Panics in a handler are caught per message so a
// bad frame cannot take the socket down.
func wsReadPump(ctx context.Context, c *websocket.Conn, g *Gateway, cl *Client, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return
			}
			if strings.Contains(err.Error(), "context canceled") {
				return
			}
			logger.WithError(err).WithField("userId", cl.UserID).Debug("ws read error")
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		g.mu.Lock()
		cl.LastSeenMs = time.Now().UnixMilli()
		g.mu.Unlock()

		var packet map[string]interface{}
		if err := json.Unmarshal(data, &packet); err != nil {
			cl.sendError("invalid_json")
			continue
		}

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithFields(logrus.Fields{
						"userId": cl.UserID,
						"panic":  rec,
					}).Error("ws handler panic")
				}
			}()
			g.dispatch(cl, packet)
		}()
	}
}

// wsWritePump drains the client's out channel onto the socket and keeps the
// connection alive with periodic pings.
func wsWritePump(ctx context.Context, c *websocket.Conn, cl *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-cl.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithError(err).WithField("userId", cl.UserID).Warn("failed to marshal outgoing message")
				continue
			}
			writeCtx, cancelFn := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancelFn()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancelFn := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancelFn()
			if err != nil {
				return
			}
		}
	}
}
