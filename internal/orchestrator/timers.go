// internal/orchestrator/timers.go
package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// timerKind discriminates the scheduled actions a room can have pending.
type timerKind string

const (
	kindCountdown     timerKind = "countdown"
	kindReveal        timerKind = "reveal"
	kindInputOpen     timerKind = "input_open"
	kindInputDeadline timerKind = "input_deadline"
	kindFinish        timerKind = "finish"
	kindDiscBuffer    timerKind = "disconnect_buffer"
	kindDiscRemove    timerKind = "disconnect_remove"
)

// task is the data record behind every scheduled callback. Callbacks never
// trust values captured at schedule time: runTask re-validates the task
// against current authoritative state (room status, game phase, round)
// before acting, so a stale timer always degrades to a no-op.
type task struct {
	code   string
	kind   timerKind
	round  int
	tick   int
	game   string
	player uuid.UUID
	socket string
}

type timerKey struct {
	code   string
	kind   timerKind
	player uuid.UUID
}

func (t task) key() timerKey {
	return timerKey{code: t.code, kind: t.kind, player: t.player}
}

// schedule arms a timer for a task, replacing any pending timer with the
// same key, so a room never holds more than one live deadline per kind.
// The callback takes the orchestrator lock, confirms it is still the
// current timer for its key, and only then dispatches.
func (o *Orchestrator) schedule(t task, d time.Duration) {
	key := t.key()
	if old, ok := o.timers[key]; ok {
		old.Stop()
	}
	var tm clockwork.Timer
	tm = o.clock.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.timers[key] != tm {
			return // cancelled or superseded while firing
		}
		delete(o.timers, key)
		o.runTask(t)
	})
	o.timers[key] = tm
}

// cancelTimer stops and forgets one pending timer.
func (o *Orchestrator) cancelTimer(code string, kind timerKind, player uuid.UUID) {
	key := timerKey{code: code, kind: kind, player: player}
	if tm, ok := o.timers[key]; ok {
		tm.Stop()
		delete(o.timers, key)
	}
}

// cancelPlayerTimers drops the disconnect-buffer and removal timers for one
// player, e.g. when they reconnect inside the grace window.
func (o *Orchestrator) cancelPlayerTimers(code string, player uuid.UUID) {
	o.cancelTimer(code, kindDiscBuffer, player)
	o.cancelTimer(code, kindDiscRemove, player)
}

// cancelRoomTimers drops every pending timer for a room. Called on teardown
// so nothing can fire against a deleted room.
func (o *Orchestrator) cancelRoomTimers(code string) {
	for key, tm := range o.timers {
		if key.code == code {
			tm.Stop()
			delete(o.timers, key)
		}
	}
}

// pendingTimers counts live timers for a room; test hook.
func (o *Orchestrator) pendingTimers(code string) int {
	n := 0
	for key := range o.timers {
		if key.code == code {
			n++
		}
	}
	return n
}

// runTask dispatches a fired timer after the staleness checks each handler
// performs against the authoritative room state. Lock is held.
func (o *Orchestrator) runTask(t task) {
	switch t.kind {
	case kindCountdown:
		o.countdownTick(t)
	case kindReveal:
		o.revealTask(t)
	case kindInputOpen:
		o.inputOpenTask(t)
	case kindInputDeadline:
		o.inputDeadlineTask(t)
	case kindFinish:
		o.finishTask(t)
	case kindDiscBuffer:
		o.disconnectBufferTask(t)
	case kindDiscRemove:
		o.graceExpiredTask(t)
	}
}
