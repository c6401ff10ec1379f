// internal/orchestrator/orchestrator.go
//
// The orchestrator is the real-time control loop: it binds transport events
// to directory and engine calls, owns every room-scoped timer, and is the
// sole writer of outbound broadcasts. All handlers and timer callbacks
// serialize on one mutex and run to completion, so the concurrency hazard
// is logical reentrancy (a stale timer firing into freshly mutated state),
// which the phase/round staleness checks handle.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sagivamit/simon-game-app/internal/colorrush"
	"github.com/sagivamit/simon-game-app/internal/room"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

const (
	// CountdownFrom is the first tick of the pre-game countdown (3..0).
	CountdownFrom = 3
	countdownStep = time.Second

	// firstRevealDelay is the gap between countdown zero and the first
	// sequence reveal; revealSettleDelay pads the end of every reveal before
	// the input window opens; roundPause separates a round result from the
	// next reveal or the final standings.
	firstRevealDelay  = time.Second
	revealSettleDelay = time.Second
	roundPause        = 3 * time.Second

	// DisconnectBuffer is stage one of the disconnect protocol; RemovalGrace
	// is stage two, after which a still-disconnected player is removed.
	DisconnectBuffer = 5 * time.Second
	RemovalGrace     = 180 * time.Second

	// CleanupInterval is the dead-room sweep cadence.
	CleanupInterval = 5 * time.Minute
)

// Game type tags accepted by start-game.
const (
	GameTypeSimon     = "simon"
	GameTypeColorRush = "colorrush"
)

// Orchestrator coordinates every live room. Construct with New, inject a
// SendToSocketsFn, then route transport events into the Handle* methods.
type Orchestrator struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	rooms  *room.Store
	timers map[timerKey]clockwork.Timer

	// SendToSocketsFn delivers an event to a set of transport connections.
	// It must not block; the transport layer writes asynchronously.
	SendToSocketsFn func(socketIDs []string, ev Event)
}

// New builds an orchestrator around an injected clock and directory so
// tests can construct isolated instances per case.
func New(clock clockwork.Clock, rooms *room.Store) *Orchestrator {
	return &Orchestrator{
		clock:  clock,
		rooms:  rooms,
		timers: make(map[timerKey]clockwork.Timer),
	}
}

// --- outbound plumbing -------------------------------------------------

func (o *Orchestrator) sendToSockets(ids []string, ev Event) {
	if o.SendToSocketsFn == nil || len(ids) == 0 {
		return
	}
	o.SendToSocketsFn(ids, ev)
}

// broadcast sends an event to every connected member of a room.
func (o *Orchestrator) broadcast(r *room.Room, ev Event) {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected && p.SocketID != "" {
			ids = append(ids, p.SocketID)
		}
	}
	o.sendToSockets(ids, ev)
}

func (o *Orchestrator) sendToPlayer(p *room.Player, ev Event) {
	if p != nil && p.Connected && p.SocketID != "" {
		o.sendToSockets([]string{p.SocketID}, ev)
	}
}

func (o *Orchestrator) sendToSocket(socketID string, ev Event) {
	o.sendToSockets([]string{socketID}, ev)
}

// --- directory front door ----------------------------------------------

// CreateRoom allocates a room with the given host. Called by the HTTP
// session-issuing layer before the host's socket arrives.
func (o *Orchestrator) CreateRoom(host room.PlayerInfo) *room.Room {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rooms.CreateRoom(host)
}

// JoinRoom appends a player to a waiting room and tells current members.
func (o *Orchestrator) JoinRoom(code string, info room.PlayerInfo) (*room.Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, err := o.rooms.JoinRoom(code, info)
	if err != nil {
		return nil, err
	}
	o.broadcast(r, snapshotUpdate(r))
	return r, nil
}

// RoomInvite exposes the invite-link correlation data for a room.
func (o *Orchestrator) RoomInvite(code string) (sessionID uuid.UUID, expiresAt time.Time, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, found := o.rooms.Get(code)
	if !found {
		return uuid.Nil, time.Time{}, false
	}
	return r.SessionID, r.InviteExpiresAt, true
}

func snapshotUpdate(r *room.Room) Event {
	ev := snapshotEvent(r)
	ev.Type = EventRoomUpdated
	return ev
}

// --- game start / restart ----------------------------------------------

// HandleStartGame begins the countdown. Host-only, waiting rooms only.
func (o *Orchestrator) HandleStartGame(code string, playerID uuid.UUID, gameType string) {
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
	if !p.IsHost {
		o.sendToPlayer(p, errorEvent("only the host can start the game"))
		return
	}
	if r.Status != room.StatusWaiting {
		o.sendToPlayer(p, errorEvent("game already started"))
		return
	}
	if r.ConnectedCount() < 1 {
		o.sendToPlayer(p, errorEvent("no connected players"))
		return
	}
	if gameType == "" {
		gameType = GameTypeSimon
	}
	if gameType != GameTypeSimon && gameType != GameTypeColorRush {
		o.sendToPlayer(p, errorEvent("unknown game type"))
		return
	}

	r.Status = room.StatusCountdown
	log.Printf("room %s: starting %s, countdown from %d", code, gameType, CountdownFrom)
	o.countdownTick(task{code: code, kind: kindCountdown, tick: CountdownFrom, game: gameType})
}

// countdownTick broadcasts one tick and either schedules the next or, at
// zero, initializes the game. Follow-up timers are armed before the tick is
// broadcast so an observer never sees an event with nothing scheduled
// behind it.
func (o *Orchestrator) countdownTick(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok || r.Status != room.StatusCountdown {
		return
	}
	if t.tick > 0 {
		next := t
		next.tick--
		o.schedule(next, countdownStep)
	} else {
		o.beginGame(r, t.game)
	}
	o.broadcast(r, Event{Type: EventCountdown, Payload: map[string]interface{}{"n": t.tick}})
}

// beginGame seeds the engine from the clock, flips the room active and
// schedules the first reveal.
func (o *Orchestrator) beginGame(r *room.Room, gameType string) {
	seed := o.clock.Now().UnixNano()
	switch gameType {
	case GameTypeColorRush:
		r.Game = colorrush.NewGame(r.PlayerIDs(), seed)
	default:
		r.Game = simon.NewGame(r.PlayerIDs(), seed)
	}
	r.Status = room.StatusActive
	log.Printf("room %s: game %s active", r.Code, gameType)
	o.schedule(task{code: r.Code, kind: kindReveal, round: 1}, firstRevealDelay)
}

// HandleRestartGame clears the game payload and returns the room to
// waiting without destroying it. Host-only.
func (o *Orchestrator) HandleRestartGame(code string, playerID uuid.UUID) {
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
	if !p.IsHost {
		o.sendToPlayer(p, errorEvent("only the host can restart the game"))
		return
	}
	if r.Status != room.StatusFinished && r.Status != room.StatusWaiting {
		o.sendToPlayer(p, errorEvent("cannot restart while a game is running"))
		return
	}

	o.cancelGameTimers(code)
	r.Game = nil
	r.Status = room.StatusWaiting
	log.Printf("room %s: restarted by host %s", code, playerID)
	o.broadcast(r, snapshotUpdate(r))
}

// cancelGameTimers drops round-flow timers but leaves disconnect timers
// running; grace periods outlive a restart.
func (o *Orchestrator) cancelGameTimers(code string) {
	for _, kind := range []timerKind{kindCountdown, kindReveal, kindInputOpen, kindInputDeadline, kindFinish} {
		o.cancelTimer(code, kind, uuid.Nil)
	}
}

// RunCleanup periodically sweeps dead rooms until the context ends. Any
// timers belonging to swept rooms are cancelled with them.
func (o *Orchestrator) RunCleanup(ctx context.Context) {
	ticker := o.clock.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			o.mu.Lock()
			removed := o.rooms.CleanupDeadRooms()
			for _, code := range removed {
				o.cancelRoomTimers(code)
			}
			o.mu.Unlock()
			if len(removed) > 0 {
				log.Printf("cleanup: removed %d dead room(s)", len(removed))
			}
		}
	}
}
