package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/sagivamit/simon-game-app/internal/colorrush"
	"github.com/sagivamit/simon-game-app/internal/room"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

const waitTick = 2 * time.Millisecond

// eventRecorder collects every outbound event. Timer callbacks fire on
// goroutines when the fake clock advances, so access is mutex-guarded and
// assertions poll with require.Eventually.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	sockets []string
	ev      Event
}

func (rec *eventRecorder) send(socketIDs []string, ev Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = append(rec.events, recordedEvent{sockets: socketIDs, ev: ev})
}

func (rec *eventRecorder) count(typ EventType) int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := 0
	for _, e := range rec.events {
		if e.ev.Type == typ {
			n++
		}
	}
	return n
}

func (rec *eventRecorder) last(typ EventType) (Event, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := len(rec.events) - 1; i >= 0; i-- {
		if rec.events[i].ev.Type == typ {
			return rec.events[i].ev, true
		}
	}
	return Event{}, false
}

// lastSockets returns the recipients of the newest event of the given type.
func (rec *eventRecorder) lastSockets(typ EventType) []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := len(rec.events) - 1; i >= 0; i-- {
		if rec.events[i].ev.Type == typ {
			return rec.events[i].sockets
		}
	}
	return nil
}

func newTestOrchestrator() (*Orchestrator, *clockwork.FakeClock, *eventRecorder) {
	clk := clockwork.NewFakeClock()
	o := New(clk, room.NewStore(clk))
	rec := &eventRecorder{}
	o.SendToSocketsFn = rec.send
	return o, clk, rec
}

// advanceUntil moves the fake clock and blocks until at least one more
// event of the given type has been observed.
func advanceUntil(t *testing.T, clk *clockwork.FakeClock, rec *eventRecorder, d time.Duration, typ EventType) {
	t.Helper()
	before := rec.count(typ)
	clk.Advance(d)
	require.Eventually(t, func() bool {
		return rec.count(typ) > before
	}, time.Second, waitTick, "expected %s after advancing %v", typ, d)
}

// twoPlayerRoom creates a room with a connected host and one connected
// guest, returning the room code and both player ids.
func twoPlayerRoom(t *testing.T, o *Orchestrator) (code string, host, guest uuid.UUID) {
	t.Helper()
	host, guest = uuid.New(), uuid.New()
	r := o.CreateRoom(room.PlayerInfo{ID: host, Name: "Alice", Avatar: 1})
	_, err := o.JoinRoom(r.Code, room.PlayerInfo{ID: guest, Name: "Bobby", Avatar: 2})
	require.NoError(t, err)
	o.HandleSocketConnect(r.Code, host, "sock-host")
	o.HandleSocketConnect(r.Code, guest, "sock-guest")
	return r.Code, host, guest
}

// startSequenceGame drives a room through countdown and the first reveal
// into the open input window, returning the round-1 sequence.
func startSequenceGame(t *testing.T, o *Orchestrator, clk *clockwork.FakeClock, rec *eventRecorder, code string, host uuid.UUID) []simon.Color {
	t.Helper()
	o.HandleStartGame(code, host, GameTypeSimon)
	require.Equal(t, 1, rec.count(EventCountdown)) // tick 3 fires synchronously

	for i := 0; i < CountdownFrom; i++ {
		advanceUntil(t, clk, rec, time.Second, EventCountdown)
	}
	advanceUntil(t, clk, rec, firstRevealDelay, EventSequenceReveal)

	show, gap := simon.RevealTempo(1)
	advanceUntil(t, clk, rec, show+gap+revealSettleDelay, EventInputPhaseOpened)

	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rooms.Get(code)
	require.True(t, ok)
	g, ok := r.Game.(*simon.Game)
	require.True(t, ok)
	require.Equal(t, simon.PhasePlayerInput, g.Phase)
	return append([]simon.Color(nil), g.Sequence...)
}

func TestStartGameRequiresHost(t *testing.T) {
	o, _, rec := newTestOrchestrator()
	code, _, guest := twoPlayerRoom(t, o)

	o.HandleStartGame(code, guest, GameTypeSimon)

	require.Equal(t, 1, rec.count(EventError))
	require.Equal(t, 0, rec.count(EventCountdown))
	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.Equal(t, room.StatusWaiting, r.Status)
	o.mu.Unlock()
}

func TestCountdownRunsToActive(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, _ := twoPlayerRoom(t, o)

	startSequenceGame(t, o, clk, rec, code, host)

	require.Equal(t, CountdownFrom+1, rec.count(EventCountdown))
	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.Equal(t, room.StatusActive, r.Status)
	o.mu.Unlock()
}

func TestRoundClosesOnceWhenEveryoneFinishes(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	for i, c := range seq {
		o.HandleColorTap(code, host, c, i, nil)
	}
	for i, c := range seq {
		o.HandleColorTap(code, guest, c, i, nil)
	}

	require.Equal(t, 1, rec.count(EventRoundResult))
	ev, _ := rec.last(EventRoundResult)
	require.Equal(t, 1, ev.Payload["round"])
	winner := ev.Payload["winner"].(map[string]interface{})
	require.Equal(t, host.String(), winner["playerId"])

	// The deadline timer was cancelled at closure; the lapse of the old
	// input window must not settle the round a second time.
	clk.Advance(simon.InputTimeout)
	require.Never(t, func() bool {
		return rec.count(EventRoundResult) > 1
	}, 50*time.Millisecond, waitTick)
}

func TestWrongTapEliminatesImmediately(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	var wrong simon.Color
	for _, c := range simon.Palette {
		if c != seq[0] {
			wrong = c
			break
		}
	}
	o.HandleColorTap(code, guest, wrong, 0, nil)

	require.Equal(t, 1, rec.count(EventPlayerEliminated))
	ev, _ := rec.last(EventPlayerEliminated)
	require.Equal(t, guest.String(), ev.Payload["playerId"])
	require.Equal(t, simon.ReasonWrongColor, ev.Payload["reason"])

	// The mistake is announced to the whole room, naming both the tapped
	// color and the one that was owed.
	wrongEv, _ := rec.last(EventTapWrong)
	require.Equal(t, guest.String(), wrongEv.Payload["playerId"])
	require.Equal(t, wrong, wrongEv.Payload["actual"])
	require.Equal(t, seq[0], wrongEv.Payload["expected"])
	require.ElementsMatch(t, []string{"sock-host", "sock-guest"}, rec.lastSockets(EventTapWrong))
}

func TestOutOfOrderTapIsIgnored(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, _ := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	// A tap at an index the player does not owe is replay or jitter.
	o.HandleColorTap(code, host, seq[0], len(seq)+3, nil)

	require.Equal(t, 0, rec.count(EventTapCorrect))
	require.Equal(t, 0, rec.count(EventPlayerEliminated))
}

func TestInputDeadlineTimesOutSilentPlayers(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	for i, c := range seq {
		o.HandleColorTap(code, host, c, i, nil)
	}
	require.Equal(t, 0, rec.count(EventRoundResult))

	advanceUntil(t, clk, rec, simon.InputTimeout, EventRoundResult)

	require.Equal(t, 1, rec.count(EventPlayerTimedOut))
	timeout, _ := rec.last(EventPlayerTimedOut)
	require.Equal(t, guest.String(), timeout.Payload["playerId"])
	require.Equal(t, seq, timeout.Payload["correctSequence"])
	elim, _ := rec.last(EventPlayerEliminated)
	require.Equal(t, guest.String(), elim.Payload["playerId"])
	require.Equal(t, simon.ReasonTimeout, elim.Payload["reason"])

	result, _ := rec.last(EventRoundResult)
	elims := result.Payload["eliminations"].([]map[string]interface{})
	require.Len(t, elims, 1)
	require.Equal(t, guest.String(), elims[0]["playerId"])
	require.Equal(t, simon.ReasonTimeout, elims[0]["reason"])
	statuses := result.Payload["statuses"].(map[string]interface{})
	guestStatus := statuses[guest.String()].(map[string]interface{})
	require.Equal(t, string(simon.StatusEliminated), guestStatus["status"])
	hostStatus := statuses[host.String()].(map[string]interface{})
	require.Equal(t, string(simon.StatusPlaying), hostStatus["status"])
}

func TestHostDisconnectDuringGameTearsDownRoom(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, _ := twoPlayerRoom(t, o)
	startSequenceGame(t, o, clk, rec, code, host)

	o.HandleSocketDisconnect("sock-host")

	require.Equal(t, 1, rec.count(EventHostDisconnected))
	require.Equal(t, 1, rec.count(EventRoomClosed))
	o.mu.Lock()
	_, ok := o.rooms.Get(code)
	require.False(t, ok)
	require.Zero(t, o.pendingTimers(code))
	o.mu.Unlock()
}

func TestGuestDisconnectBufferThenReconnect(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, _, guest := twoPlayerRoom(t, o)

	o.HandleSocketDisconnect("sock-guest")
	advanceUntil(t, clk, rec, DisconnectBuffer, EventPlayerDisconnected)

	o.HandleSocketConnect(code, guest, "sock-guest-2")
	require.Equal(t, 1, rec.count(EventPlayerReconnected))

	// Reconnecting cancels the removal grace; its old deadline must not
	// remove the player.
	clk.Advance(RemovalGrace)
	require.Never(t, func() bool {
		return rec.count(EventPlayerLeft) > 0
	}, 50*time.Millisecond, waitTick)
	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.NotNil(t, r.Player(guest))
	require.True(t, r.Player(guest).Connected)
	o.mu.Unlock()
}

func TestGraceExpiryRemovesPlayer(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, _, guest := twoPlayerRoom(t, o)

	o.HandleSocketDisconnect("sock-guest")
	advanceUntil(t, clk, rec, DisconnectBuffer, EventPlayerDisconnected)
	advanceUntil(t, clk, rec, RemovalGrace, EventPlayerLeft)

	ev, _ := rec.last(EventPlayerLeft)
	require.Equal(t, guest.String(), ev.Payload["playerId"])
	o.mu.Lock()
	r, ok := o.rooms.Get(code)
	require.True(t, ok)
	require.Nil(t, r.Player(guest))
	o.mu.Unlock()
}

func TestHostDisconnectInLobbyTransfersHost(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)

	o.HandleSocketDisconnect("sock-host")
	advanceUntil(t, clk, rec, DisconnectBuffer, EventHostTransferred)

	ev, _ := rec.last(EventHostTransferred)
	require.Equal(t, guest.String(), ev.Payload["playerId"])
	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.Equal(t, guest, r.Host().ID)
	require.False(t, r.Player(host).IsHost)
	o.mu.Unlock()
}

func TestExplicitLeavePromotesNextHost(t *testing.T) {
	o, _, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)

	o.HandleLeave(code, host)

	require.Equal(t, 1, rec.count(EventPlayerLeft))
	require.Equal(t, 1, rec.count(EventHostTransferred))
	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.Equal(t, guest, r.Host().ID)
	o.mu.Unlock()
}

func TestLastLeaveDeletesRoomAndTimers(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	host := uuid.New()
	r := o.CreateRoom(room.PlayerInfo{ID: host, Name: "Alice"})
	o.HandleSocketConnect(r.Code, host, "s1")

	o.HandleLeave(r.Code, host)

	o.mu.Lock()
	_, ok := o.rooms.Get(r.Code)
	require.False(t, ok)
	require.Zero(t, o.pendingTimers(r.Code))
	o.mu.Unlock()
}

func TestRestartReturnsRoomToWaiting(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	// Eliminate the guest and let the host finish; one survivor ends the
	// game immediately.
	var wrong simon.Color
	for _, c := range simon.Palette {
		if c != seq[0] {
			wrong = c
			break
		}
	}
	o.HandleColorTap(code, guest, wrong, 0, nil)
	for i, c := range seq {
		o.HandleColorTap(code, host, c, i, nil)
	}
	advanceUntil(t, clk, rec, roundPause, EventGameFinished)

	o.HandleRestartGame(code, host)

	o.mu.Lock()
	r, _ := o.rooms.Get(code)
	require.Equal(t, room.StatusWaiting, r.Status)
	require.Nil(t, r.Game)
	o.mu.Unlock()
}

func TestColorRushRoundFastestCorrectWins(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)

	o.HandleStartGame(code, host, GameTypeColorRush)
	for i := 0; i < CountdownFrom; i++ {
		advanceUntil(t, clk, rec, time.Second, EventCountdown)
	}
	advanceUntil(t, clk, rec, firstRevealDelay, EventColorReveal)
	advanceUntil(t, clk, rec, revealSettleDelay, EventInputPhaseOpened)

	ev, _ := rec.last(EventColorReveal)
	target := ev.Payload["target"].(simon.Color)

	o.HandleColorTap(code, guest, target, 0, nil)
	o.HandleColorTap(code, host, target, 0, nil)

	require.Equal(t, 1, rec.count(EventRoundResult))
	result, _ := rec.last(EventRoundResult)
	winner := result.Payload["winner"].(map[string]interface{})
	require.Equal(t, guest.String(), winner["playerId"])
}

func TestStrayTapAfterGameEndingRoundIsDropped(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	var wrong simon.Color
	for _, c := range simon.Palette {
		if c != seq[0] {
			wrong = c
			break
		}
	}
	o.HandleColorTap(code, guest, wrong, 0, nil)
	for i, c := range seq {
		o.HandleColorTap(code, host, c, i, nil)
	}
	require.Equal(t, 1, rec.count(EventRoundResult))

	// A duplicate tap from the survivor lands in the pause before
	// game-finished, at the index just past the completed sequence.
	o.HandleColorTap(code, host, seq[0], len(seq), nil)

	require.Equal(t, 1, rec.count(EventRoundResult))
	require.Equal(t, 1, rec.count(EventTapWrong))
	require.Equal(t, 1, rec.count(EventPlayerEliminated))

	advanceUntil(t, clk, rec, roundPause, EventGameFinished)
	ev, _ := rec.last(EventGameFinished)
	require.Equal(t, host.String(), ev.Payload["winnerId"])
}

func TestColorRushRetapAfterFinalRoundCannotScore(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)

	o.HandleStartGame(code, host, GameTypeColorRush)
	for i := 0; i < CountdownFrom; i++ {
		advanceUntil(t, clk, rec, time.Second, EventCountdown)
	}

	var target simon.Color
	for round := 1; round <= colorrush.MaxRounds; round++ {
		delay := roundPause
		if round == 1 {
			delay = firstRevealDelay
		}
		advanceUntil(t, clk, rec, delay, EventColorReveal)
		advanceUntil(t, clk, rec, revealSettleDelay, EventInputPhaseOpened)
		ev, _ := rec.last(EventColorReveal)
		target = ev.Payload["target"].(simon.Color)
		o.HandleColorTap(code, host, target, 0, nil)
		o.HandleColorTap(code, guest, target, 0, nil)
	}
	require.Equal(t, colorrush.MaxRounds, rec.count(EventRoundResult))

	// Every round has settled; a tap landing in the closing pause must not
	// run round settlement again.
	o.HandleColorTap(code, guest, target, 0, nil)

	require.Equal(t, colorrush.MaxRounds, rec.count(EventRoundResult))
	result, _ := rec.last(EventRoundResult)
	scores := result.Payload["scores"].(map[string]int)
	require.Equal(t, colorrush.MaxRounds, scores[host.String()])

	advanceUntil(t, clk, rec, roundPause, EventGameFinished)
	fin, _ := rec.last(EventGameFinished)
	require.Equal(t, host.String(), fin.Payload["winnerId"])
}

func TestFinalTapRacingDeadlineSettlesRoundOnce(t *testing.T) {
	o, clk, rec := newTestOrchestrator()
	code, host, guest := twoPlayerRoom(t, o)
	seq := startSequenceGame(t, o, clk, rec, code, host)

	for i, c := range seq {
		o.HandleColorTap(code, host, c, i, nil)
	}

	// Fire the deadline and deliver the guest's answer at the same instant.
	// Whichever path wins the lock closes the round; the loser must stay
	// silent, either via the phase check or the superseded-timer check.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		clk.Advance(simon.InputTimeout)
	}()
	for i, c := range seq {
		o.HandleColorTap(code, guest, c, i, nil)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return rec.count(EventRoundResult) >= 1
	}, time.Second, waitTick)
	require.Never(t, func() bool {
		return rec.count(EventRoundResult) > 1
	}, 50*time.Millisecond, waitTick)
	ev, _ := rec.last(EventRoundResult)
	require.Equal(t, 1, ev.Payload["round"])
}

func TestCleanupSweepsAbandonedRoom(t *testing.T) {
	o, clk, _ := newTestOrchestrator()
	code, _, _ := twoPlayerRoom(t, o)

	o.mu.Lock()
	for _, p := range mustRoom(t, o, code).Players {
		o.rooms.MarkDisconnected(code, p.ID)
	}
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.RunCleanup(ctx)

	clk.BlockUntilContext(ctx, 1)
	clk.Advance(CleanupInterval)

	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		_, ok := o.rooms.Get(code)
		return !ok
	}, time.Second, waitTick)
}

func mustRoom(t *testing.T, o *Orchestrator, code string) *room.Room {
	t.Helper()
	r, ok := o.rooms.Get(code)
	require.True(t, ok)
	return r
}
