// internal/handlers/sweep.go
package handlers

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// StartSweeps runs the 10s housekeeping loop until the context ends:
// idle connections get terminated and abandoned rooms finalized.
func (g *Gateway) StartSweeps(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				g.sweep(now)
			}
		}
	}()
}

func (g *Gateway) sweep(now time.Time) {
	nowMs := now.UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	for id, cl := range g.clients {
		if nowMs-cl.LastSeenMs <= connIdleTimeoutMs {
			continue
		}
		g.log.WithFields(logrus.Fields{
			"userId":       cl.UserID,
			"connectionId": id,
			"idleMs":       nowMs - cl.LastSeenMs,
		}).Info("terminating idle connection")
		g.detachLocked(cl)
		delete(g.clients, id)
		cl.terminate(websocket.StatusPolicyViolation, "idle timeout")
	}

	for code, room := range g.rooms {
		if len(room.Players) > 0 {
			continue
		}
		rejoinable := false
		if m, ok := g.Matches.MatchForRoom(code); ok {
			rejoinable = m.HasRejoinablePlayer(nowMs)
		}
		idleMs := nowMs - room.LastActivityMs
		if rejoinable && idleMs <= roomIdleTimeoutMs {
			continue
		}
		g.log.WithFields(logrus.Fields{
			"roomCode":   code,
			"idleMs":     idleMs,
			"rejoinable": rejoinable,
		}).Info("sweeping abandoned room")
		g.finalizeRoomLocked(code)
	}
}
