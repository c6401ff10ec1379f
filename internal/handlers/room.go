// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sagivamit/simon-game-app/internal/auth"
	"github.com/sagivamit/simon-game-app/internal/room"
)

type createRoomRequest struct {
	Name   string `json:"name"`
	Avatar int    `json:"avatar"`
}

type joinRoomRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Avatar int    `json:"avatar"`
}

type roomResponse struct {
	Code            string `json:"code"`
	SessionID       string `json:"sessionId"`
	PlayerID        string `json:"playerId"`
	Token           string `json:"token"`
	InviteExpiresAt int64  `json:"inviteExpiresAt"`
}

// CreateRoomHandler mints a room and a host token in one shot. Rooms are
// in-memory only; no DB writes.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}
		if !room.ValidName(req.Name) {
			http.Error(w, "name must be 3-12 characters", http.StatusBadRequest)
			return
		}

		playerID := uuid.New()
		rm := s.Orch.CreateRoom(room.PlayerInfo{ID: playerID, Name: req.Name, Avatar: req.Avatar})

		token, err := auth.CreateRoomToken(auth.RoomClaims{
			PlayerID: playerID,
			RoomCode: rm.Code,
			Name:     req.Name,
			IsHost:   true,
		})
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		writeRoomResponse(w, rm, playerID, token)
	}
}

// JoinRoomHandler adds a player to a waiting room and mints their token.
func JoinRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req joinRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}
		if !room.ValidName(req.Name) {
			http.Error(w, "name must be 3-12 characters", http.StatusBadRequest)
			return
		}

		playerID := uuid.New()
		rm, err := s.Orch.JoinRoom(req.Code, room.PlayerInfo{ID: playerID, Name: req.Name, Avatar: req.Avatar})
		if err != nil {
			switch {
			case errors.Is(err, room.ErrNotFound):
				http.Error(w, "room not found", http.StatusNotFound)
			case errors.Is(err, room.ErrNotJoinable):
				http.Error(w, "game already started", http.StatusConflict)
			case errors.Is(err, room.ErrFull):
				http.Error(w, "room is full", http.StatusConflict)
			default:
				http.Error(w, "failed to join room", http.StatusInternalServerError)
			}
			return
		}

		token, err := auth.CreateRoomToken(auth.RoomClaims{
			PlayerID: playerID,
			RoomCode: rm.Code,
			Name:     req.Name,
		})
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		writeRoomResponse(w, rm, playerID, token)
	}
}

func writeRoomResponse(w http.ResponseWriter, rm *room.Room, playerID uuid.UUID, token string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roomResponse{
		Code:            rm.Code,
		SessionID:       rm.SessionID.String(),
		PlayerID:        playerID.String(),
		Token:           token,
		InviteExpiresAt: rm.InviteExpiresAt.UnixMilli(),
	})
}
