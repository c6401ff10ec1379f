// internal/orchestrator/presence.go
//
// Connection lifecycle: socket attach, the two-stage disconnect protocol
// (short buffer, long removal grace), explicit leave, and host-loss
// teardown for games in flight.
package orchestrator

import (
	"log"

	"github.com/google/uuid"
	"github.com/sagivamit/simon-game-app/internal/room"
)

// HandleSocketConnect binds a transport connection to a room member. A
// player arriving inside a grace window is a reconnect, not a join; they
// always get a full snapshot either way.
func (o *Orchestrator) HandleSocketConnect(code string, playerID uuid.UUID, socketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.rooms.Get(code)
	if !ok {
		o.sendToSocket(socketID, errorEvent("room not found"))
		return
	}
	p := r.Player(playerID)
	if p == nil {
		o.sendToSocket(socketID, errorEvent("player is not a member of this room"))
		return
	}

	rejoin := p.Connected || o.hasDisconnectTimers(code, playerID)
	o.cancelPlayerTimers(code, playerID)
	o.rooms.MarkConnected(code, playerID, socketID)

	ev := Event{Type: EventPlayerJoined, Payload: playerPayload(p)}
	if rejoin {
		ev.Type = EventPlayerReconnected
	}
	o.broadcastExcept(r, p.ID, ev)
	o.sendToSocket(socketID, snapshotEvent(r))
	log.Printf("room %s: %s %s on socket %s", code, playerID, ev.Type, socketID)
}

// HandleSocketDisconnect reacts to a transport drop. Losing the host of a
// running game tears the room down immediately; everyone else gets the
// two-stage grace protocol.
func (o *Orchestrator) HandleSocketDisconnect(socketID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, p, ok := o.rooms.FindBySocket(socketID)
	if !ok {
		return
	}
	if p.IsHost && (r.Status == room.StatusActive || r.Status == room.StatusCountdown) {
		o.teardownRoom(r, "host disconnected during the game")
		return
	}
	o.schedule(task{code: r.Code, kind: kindDiscBuffer, player: p.ID, socket: socketID}, DisconnectBuffer)
}

// disconnectBufferTask fires after the short buffer. If the player came
// back on a new socket in the meantime the recorded socket id no longer
// matches and the drop was transient.
func (o *Orchestrator) disconnectBufferTask(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok {
		return
	}
	p := r.Player(t.player)
	if p == nil || p.SocketID != t.socket {
		return
	}

	o.rooms.MarkDisconnected(t.code, t.player)
	o.schedule(task{code: t.code, kind: kindDiscRemove, player: t.player}, RemovalGrace)
	o.broadcast(r, Event{Type: EventPlayerDisconnected, Payload: map[string]interface{}{
		"playerId": t.player.String(),
	}})

	// In the lobby the room should not sit hostless for three minutes;
	// hand the role to the next connected member right away.
	if p.IsHost && r.Status == room.StatusWaiting {
		for _, next := range r.Players {
			if next.Connected {
				p.IsHost = false
				next.IsHost = true
				o.broadcast(r, Event{Type: EventHostTransferred, Payload: map[string]interface{}{
					"playerId": next.ID.String(),
				}})
				break
			}
		}
	}
}

// graceExpiredTask removes a player who never came back. The store guards
// against a reconnect that raced the timer.
func (o *Orchestrator) graceExpiredTask(t task) {
	hostBefore := uuid.Nil
	if r, ok := o.rooms.Get(t.code); ok {
		if h := r.Host(); h != nil {
			hostBefore = h.ID
		}
	}
	if !o.rooms.RemoveIfStillDisconnected(t.code, t.player) {
		return
	}

	r, ok := o.rooms.Get(t.code)
	if !ok {
		// Removal emptied the room and the store deleted it.
		o.cancelRoomTimers(t.code)
		return
	}
	o.broadcast(r, Event{Type: EventPlayerLeft, Payload: map[string]interface{}{
		"playerId": t.player.String(),
	}})
	if h := r.Host(); h != nil && h.ID != hostBefore {
		o.broadcast(r, Event{Type: EventHostTransferred, Payload: map[string]interface{}{
			"playerId": h.ID.String(),
		}})
	}
	o.broadcast(r, snapshotUpdate(r))
}

// HandleLeave removes a player who quit on purpose; no grace applies. A
// host leaving a running game ends it for everyone, same as a host drop.
func (o *Orchestrator) HandleLeave(code string, playerID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.rooms.Get(code)
	if !ok {
		return
	}
	p := r.Player(playerID)
	if p == nil {
		return
	}
	if p.IsHost && (r.Status == room.StatusActive || r.Status == room.StatusCountdown) {
		o.teardownRoom(r, "host left during the game")
		return
	}

	hostBefore := uuid.Nil
	if h := r.Host(); h != nil {
		hostBefore = h.ID
	}
	o.cancelPlayerTimers(code, playerID)
	if !o.rooms.RemovePlayer(code, playerID) {
		return
	}

	if _, still := o.rooms.Get(code); !still {
		o.cancelRoomTimers(code)
		return
	}
	o.broadcast(r, Event{Type: EventPlayerLeft, Payload: map[string]interface{}{
		"playerId": playerID.String(),
	}})
	if h := r.Host(); h != nil && h.ID != hostBefore {
		o.broadcast(r, Event{Type: EventHostTransferred, Payload: map[string]interface{}{
			"playerId": h.ID.String(),
		}})
	}
	o.broadcast(r, snapshotUpdate(r))
}

// teardownRoom ends a room outright: notify, drop every timer, delete.
func (o *Orchestrator) teardownRoom(r *room.Room, reason string) {
	o.broadcast(r, Event{Type: EventHostDisconnected, Payload: map[string]interface{}{
		"reason": reason,
	}})
	o.broadcast(r, Event{Type: EventRoomClosed, Payload: map[string]interface{}{
		"code": r.Code,
	}})
	o.cancelRoomTimers(r.Code)
	o.rooms.DeleteRoom(r.Code)
	log.Printf("room %s: torn down (%s)", r.Code, reason)
}

func (o *Orchestrator) hasDisconnectTimers(code string, playerID uuid.UUID) bool {
	for _, kind := range []timerKind{kindDiscBuffer, kindDiscRemove} {
		if _, ok := o.timers[timerKey{code: code, kind: kind, player: playerID}]; ok {
			return true
		}
	}
	return false
}

// broadcastExcept sends to every connected member but one, used so a
// joining player is not told about their own arrival.
func (o *Orchestrator) broadcastExcept(r *room.Room, skip uuid.UUID, ev Event) {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ID != skip && p.Connected && p.SocketID != "" {
			ids = append(ids, p.SocketID)
		}
	}
	o.sendToSockets(ids, ev)
}
