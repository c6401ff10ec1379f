// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sagivamit/simon-game-app/internal/auth"
	"github.com/sagivamit/simon-game-app/internal/middleware"
	"github.com/sagivamit/simon-game-app/internal/orchestrator"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

// RoomWSHandler upgrades /rooms/ws/{code} and binds the socket to the
// player identified by the room token. The token travels as a cookie or,
// for clients that cannot set cookies on a ws handshake, a query param.
func RoomWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		code := strings.TrimPrefix(r.URL.Path, "/rooms/ws/")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = extractCookieToken(r.Header.Get("Cookie"), "room_token")
		}
		claims, err := auth.VerifyRoomToken(token)
		if err != nil {
			http.Error(w, "invalid room token", http.StatusForbidden)
			return
		}
		if claims.RoomCode != code {
			http.Error(w, "token is for a different room", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := &wsConn{
			socketID: uuid.New().String(),
			playerID: claims.PlayerID,
			roomCode: code,
			out:      make(chan orchestrator.Event, 16),
		}
		s.register(conn)
		middleware.LogWebSocketConnect(logger, remoteAddr, code)
		logger.Infof("player %v bound to room %v on socket %s", claims.PlayerID, code, conn.socketID)

		go writePump(ctx, c, conn, logger)

		// Attach the socket before entering the read loop so the snapshot
		// reaches the write pump first.
		s.Orch.HandleSocketConnect(code, claims.PlayerID, conn.socketID)

		readPump(ctx, c, s, conn, logger)

		middleware.LogWebSocketDisconnect(logger, remoteAddr, code, nil)
		s.Orch.HandleSocketDisconnect(conn.socketID)
		s.unregister(conn.socketID)
	}
}

// readPump handles incoming messages until the connection closes.
func readPump(ctx context.Context, c *websocket.Conn, s *Server, conn *wsConn, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("room %s: websocket closed normally for player %v", conn.roomCode, conn.playerID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("room %s: read error for player %v: %v", conn.roomCode, conn.playerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("room %s: invalid json from player %v: %v", conn.roomCode, conn.playerID, err)
			continue
		}
		handleRoomMessage(packet, s, conn, logger)
	}
}

// handleRoomMessage interprets the "type" field and routes the action into
// the orchestrator. All validation beyond shape lives there.
func handleRoomMessage(packet map[string]interface{}, s *Server, conn *wsConn, logger *logrus.Logger) {
	action, _ := packet["type"].(string)

	switch action {
	case "leave-room":
		s.Orch.HandleLeave(conn.roomCode, conn.playerID)
	case "start-game":
		gameType, _ := packet["gameType"].(string)
		s.Orch.HandleStartGame(conn.roomCode, conn.playerID, gameType)
	case "restart-game":
		s.Orch.HandleRestartGame(conn.roomCode, conn.playerID)
	case "submit-color-tap":
		colorStr, _ := packet["color"].(string)
		index := intField(packet, "index")
		s.Orch.HandleColorTap(conn.roomCode, conn.playerID, simon.Color(colorStr), index, floatField(packet, "clientFinishMs"))
	case "submit-full-sequence":
		raw, _ := packet["colors"].([]interface{})
		colors := make([]simon.Color, 0, len(raw))
		for _, v := range raw {
			cs, _ := v.(string)
			colors = append(colors, simon.Color(cs))
		}
		s.Orch.HandleSequenceSubmit(conn.roomCode, conn.playerID, colors, floatField(packet, "clientFinishMs"))
	default:
		logger.Warnf("room %s: unknown action %q from player %v", conn.roomCode, action, conn.playerID)
	}
}

func intField(packet map[string]interface{}, key string) int {
	f, _ := packet[key].(float64)
	return int(f)
}

func floatField(packet map[string]interface{}, key string) *float64 {
	f, ok := packet[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

// writePump drains the connection's out channel and keeps the socket alive
// with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *wsConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.out:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal outgoing %s for player %v: %v", ev.Type, conn.playerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for player %v: %v", conn.playerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping player %v: %v, assuming disconnect", conn.playerID, err)
				return
			}
		}
	}
}

// extractCookieToken pulls a named cookie value out of a raw Cookie header.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
