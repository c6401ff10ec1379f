// internal/room/store.go
package room

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrNotFound is returned when no room exists for a code.
	ErrNotFound = errors.New("room not found")
	// ErrNotJoinable is returned when the room is past the waiting phase.
	ErrNotJoinable = errors.New("room is not accepting players")
	// ErrFull is returned when the room is at player capacity.
	ErrFull = errors.New("room is full")
)

// PlayerInfo carries the identity a new member joins with.
type PlayerInfo struct {
	ID     uuid.UUID
	Name   string
	Avatar int
}

// Store is the in-memory directory of live rooms. It is pure bookkeeping:
// no game rules, no timers, no broadcasts. The orchestrator serializes all
// access on its own lock, so the store carries none of its own.
type Store struct {
	clock clockwork.Clock
	rooms map[string]*Room
	codes *rand.Rand
}

// NewStore builds an empty directory. The clock is injected so cleanup and
// invite-expiry rules can be tested without waiting on wall time.
func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock: clock,
		rooms: make(map[string]*Room),
		codes: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom allocates a fresh room with the given host. The host joins
// disconnected; the transport layer binds a socket later.
func (s *Store) CreateRoom(host PlayerInfo) *Room {
	now := s.clock.Now()
	r := &Room{
		Code:      s.newCode(),
		SessionID: uuid.New(),
		Players: []*Player{{
			ID:         host.ID,
			Name:       host.Name,
			Avatar:     host.Avatar,
			IsHost:     true,
			LastActive: now,
		}},
		Status:          StatusWaiting,
		CreatedAt:       now,
		InviteExpiresAt: now.Add(InviteLinkTTL),
	}
	s.rooms[r.Code] = r
	log.Printf("room %s created by %s (session %s)", r.Code, host.ID, r.SessionID)
	return r
}

// JoinRoom appends a non-host player to a waiting room.
func (s *Store) JoinRoom(code string, info PlayerInfo) (*Room, error) {
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusWaiting {
		return nil, ErrNotJoinable
	}
	if len(r.Players) >= MaxPlayers {
		return nil, ErrFull
	}
	r.Players = append(r.Players, &Player{
		ID:         info.ID,
		Name:       info.Name,
		Avatar:     info.Avatar,
		LastActive: s.clock.Now(),
	})
	log.Printf("room %s: player %s joined (%d/%d)", code, info.ID, len(r.Players), MaxPlayers)
	return r, nil
}

// Get returns the room for a code.
func (s *Store) Get(code string) (*Room, bool) {
	r, ok := s.rooms[code]
	return r, ok
}

// FindBySocket returns the room and player bound to a transport connection id.
func (s *Store) FindBySocket(socketID string) (*Room, *Player, bool) {
	if socketID == "" {
		return nil, nil, false
	}
	for _, r := range s.rooms {
		for _, p := range r.Players {
			if p.SocketID == socketID {
				return r, p, true
			}
		}
	}
	return nil, nil, false
}

// MarkConnected binds a socket to a player and stamps activity. A missing
// room or player is a no-op: the caller's state may simply be stale.
func (s *Store) MarkConnected(code string, playerID uuid.UUID, socketID string) {
	if p := s.player(code, playerID); p != nil {
		p.SocketID = socketID
		p.Connected = true
		p.LastActive = s.clock.Now()
	}
}

// MarkDisconnected clears a player's connected flag but keeps the slot.
func (s *Store) MarkDisconnected(code string, playerID uuid.UUID) {
	if p := s.player(code, playerID); p != nil {
		p.Connected = false
		p.SocketID = ""
		p.LastActive = s.clock.Now()
	}
}

// Touch stamps a player's last-activity time.
func (s *Store) Touch(code string, playerID uuid.UUID) {
	if p := s.player(code, playerID); p != nil {
		p.LastActive = s.clock.Now()
	}
}

// RemovePlayer removes a member from a room. An emptied room is deleted.
// If the removed member was host and players remain, the earliest remaining
// player by join order becomes host. Returns whether a removal happened.
func (s *Store) RemovePlayer(code string, playerID uuid.UUID) bool {
	r, ok := s.rooms[code]
	if !ok {
		return false
	}
	idx := -1
	for i, p := range r.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	wasHost := r.Players[idx].IsHost
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	if len(r.Players) == 0 {
		delete(s.rooms, code)
		log.Printf("room %s: last player left, room deleted", code)
		return true
	}
	if wasHost {
		r.Players[0].IsHost = true
		log.Printf("room %s: host left, promoted %s", code, r.Players[0].ID)
	}
	return true
}

// RemoveIfStillDisconnected removes a player only if their connected flag is
// still false, guarding against a reconnect racing the grace-period timer.
func (s *Store) RemoveIfStillDisconnected(code string, playerID uuid.UUID) bool {
	p := s.player(code, playerID)
	if p == nil || p.Connected {
		return false
	}
	return s.RemovePlayer(code, playerID)
}

// DeleteRoom drops a room outright, e.g. on host-disconnect teardown.
func (s *Store) DeleteRoom(code string) {
	delete(s.rooms, code)
}

// Count returns the number of live rooms.
func (s *Store) Count() int {
	return len(s.rooms)
}

// CleanupDeadRooms sweeps the directory once and returns the codes of the
// rooms it deleted. A room dies when it exceeds MaxRoomAge, or when every
// player is disconnected and the least recently active one has been gone
// longer than AbandonedGrace. Safe to run on any schedule; idempotent.
func (s *Store) CleanupDeadRooms() []string {
	now := s.clock.Now()
	var removed []string
	for code, r := range s.rooms {
		if now.Sub(r.CreatedAt) > MaxRoomAge {
			removed = append(removed, code)
			continue
		}
		if r.ConnectedCount() > 0 {
			continue
		}
		stalest := now
		for _, p := range r.Players {
			if p.LastActive.Before(stalest) {
				stalest = p.LastActive
			}
		}
		if now.Sub(stalest) > AbandonedGrace {
			removed = append(removed, code)
		}
	}
	for _, code := range removed {
		delete(s.rooms, code)
		log.Printf("room %s: swept by cleanup", code)
	}
	return removed
}

func (s *Store) player(code string, playerID uuid.UUID) *Player {
	r, ok := s.rooms[code]
	if !ok {
		return nil
	}
	return r.Player(playerID)
}
