// internal/room/room.go
package room

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
)

const (
	// MaxPlayers is the hard cap on players per room.
	MaxPlayers = 4

	// CodeLength is the length of the human-typeable room code.
	CodeLength = 6

	// NameMinLen and NameMaxLen bound display names.
	NameMinLen = 3
	NameMaxLen = 12

	// InviteLinkTTL is how long the invite link stays valid after room creation.
	InviteLinkTTL = 5 * time.Minute

	// MaxRoomAge is the ceiling after which a room is swept regardless of activity.
	MaxRoomAge = 24 * time.Hour

	// AbandonedGrace is how long an all-disconnected room survives before the sweep
	// deletes it, measured from the least recently active player.
	AbandonedGrace = 3 * time.Minute
)

// GameState is the tagged union of game payloads a room can carry.
// Concrete shapes live in internal/simon and internal/colorrush.
type GameState interface {
	GameType() string
}

// Player is one member of a room. Players are created disconnected; the
// orchestrator binds a transport connection when the socket arrives.
type Player struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Avatar     int       `json:"avatar"`
	IsHost     bool      `json:"isHost"`
	SocketID   string    `json:"-"`
	Connected  bool      `json:"connected"`
	LastActive time.Time `json:"-"`
}

// Room is one ephemeral multiplayer session, addressed by Code. Players is
// ordered by join order; the first entry is the host unless the host has been
// transferred. An empty room never exists in the store.
type Room struct {
	Code            string    `json:"code"`
	SessionID       uuid.UUID `json:"sessionId"`
	Players         []*Player `json:"players"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	InviteExpiresAt time.Time `json:"inviteExpiresAt"`

	// Game is nil while the room is waiting; set by the orchestrator on start
	// and cleared on restart.
	Game GameState `json:"-"`
}

// Player returns the member with the given id, or nil.
func (r *Room) Player(id uuid.UUID) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Host returns the current host, or nil for a room mid-teardown.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// ConnectedCount returns how many members currently hold a live connection.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// PlayerIDs returns member ids in join order.
func (r *Room) PlayerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

// ValidName reports whether a display name satisfies the 3-12 char contract.
func ValidName(name string) bool {
	return len(name) >= NameMinLen && len(name) <= NameMaxLen
}
