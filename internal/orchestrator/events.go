// internal/orchestrator/events.go
package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/sagivamit/simon-game-app/internal/colorrush"
	"github.com/sagivamit/simon-game-app/internal/room"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

// EventType names every message the orchestrator emits. These are part of
// the observable contract with clients.
type EventType string

const (
	EventRoomSnapshot       EventType = "room-snapshot"
	EventRoomUpdated        EventType = "room-updated"
	EventPlayerJoined       EventType = "player-joined"
	EventPlayerLeft         EventType = "player-left"
	EventPlayerDisconnected EventType = "player-disconnected"
	EventPlayerReconnected  EventType = "player-reconnected"
	EventHostTransferred    EventType = "host-transferred"
	EventRoomClosed         EventType = "room-closed"
	EventHostDisconnected   EventType = "host-disconnected"

	EventCountdown              EventType = "countdown"
	EventSequenceReveal         EventType = "sequence-reveal"
	EventSequenceRevealComplete EventType = "sequence-reveal-complete"
	EventInputPhaseOpened       EventType = "input-phase-opened"
	EventTapCorrect             EventType = "tap-correct"
	EventTapWrong               EventType = "tap-wrong"
	EventPlayerFinishedSequence EventType = "player-finished-sequence"
	EventPlayerSubmitted        EventType = "player-submitted"
	EventPlayerTimedOut         EventType = "player-timed-out"
	EventPlayerEliminated       EventType = "player-eliminated"
	EventRoundResult            EventType = "round-result"
	EventGameFinished           EventType = "game-finished"

	// Colorrush-specific reveal; everything else reuses the shared vocabulary.
	EventColorReveal EventType = "color-reveal"

	EventError EventType = "error"
)

// Event is one outbound message. The payload keys per type are part of the
// client contract; ids are serialized as strings.
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Payload: map[string]interface{}{"message": msg}}
}

func playerPayload(p *room.Player) map[string]interface{} {
	return map[string]interface{}{
		"id":        p.ID.String(),
		"name":      p.Name,
		"avatar":    p.Avatar,
		"isHost":    p.IsHost,
		"connected": p.Connected,
	}
}

// snapshotEvent builds the full room state replayed to a joining or
// reconnecting client.
func snapshotEvent(r *room.Room) Event {
	players := make([]map[string]interface{}, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, playerPayload(p))
	}
	payload := map[string]interface{}{
		"code":            r.Code,
		"sessionId":       r.SessionID.String(),
		"status":          string(r.Status),
		"createdAt":       r.CreatedAt.UnixMilli(),
		"inviteExpiresAt": r.InviteExpiresAt.UnixMilli(),
		"players":         players,
	}
	switch g := r.Game.(type) {
	case *simon.Game:
		payload["game"] = simonSnapshot(g)
	case *colorrush.Game:
		payload["game"] = colorrushSnapshot(g)
	}
	return Event{Type: EventRoomSnapshot, Payload: payload}
}

func simonSnapshot(g *simon.Game) map[string]interface{} {
	statuses := make(map[string]interface{}, len(g.Players))
	for id, ps := range g.Players {
		statuses[id.String()] = map[string]interface{}{
			"status":          string(ps.Status),
			"progress":        ps.Progress,
			"eliminatedRound": ps.EliminatedRound,
		}
	}
	snap := map[string]interface{}{
		"type":     g.GameType(),
		"phase":    string(g.Phase),
		"round":    g.Round,
		"sequence": g.Sequence,
		"scores":   scoresPayload(g.Scores, g.Order),
		"statuses": statuses,
	}
	if g.TimeoutAt != nil {
		snap["timeoutAt"] = g.TimeoutAt.UnixMilli()
	}
	if g.TimerStartedAt != nil {
		snap["timerStartedAt"] = g.TimerStartedAt.UnixMilli()
	}
	return snap
}

func colorrushSnapshot(g *colorrush.Game) map[string]interface{} {
	snap := map[string]interface{}{
		"type":   g.GameType(),
		"phase":  string(g.Phase),
		"round":  g.Round,
		"target": g.Target,
		"scores": scoresPayload(g.Scores, g.Order),
	}
	if g.TimeoutAt != nil {
		snap["timeoutAt"] = g.TimeoutAt.UnixMilli()
	}
	return snap
}

// statusesPayload is the per-player standing map carried by round-result.
func statusesPayload(g *simon.Game) map[string]interface{} {
	statuses := make(map[string]interface{}, len(g.Players))
	for id, ps := range g.Players {
		statuses[id.String()] = map[string]interface{}{
			"status":          string(ps.Status),
			"eliminatedRound": ps.EliminatedRound,
		}
	}
	return statuses
}

func scoresPayload(scores map[uuid.UUID]int, order []uuid.UUID) map[string]int {
	out := make(map[string]int, len(order))
	for _, id := range order {
		out[id.String()] = scores[id]
	}
	return out
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}
