// internal/orchestrator/rounds.go
//
// Round flow for the sequence game: reveal -> input window -> closure.
// Closure happens exactly once per round; the tap path cancels the deadline
// timer and every timer path re-checks {status, phase, round} before acting.
package orchestrator

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sagivamit/simon-game-app/internal/colorrush"
	"github.com/sagivamit/simon-game-app/internal/room"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

// revealTask starts showing the current round to the room. Lock held.
func (o *Orchestrator) revealTask(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	switch g := r.Game.(type) {
	case *simon.Game:
		if g.Round != t.round || g.Phase != simon.PhaseShowingSequence {
			return
		}
		show, gap := simon.RevealTempo(g.Round)
		revealSpan := time.Duration(len(g.Sequence)) * (show + gap)
		o.schedule(task{code: t.code, kind: kindInputOpen, round: g.Round}, revealSpan+revealSettleDelay)
		o.broadcast(r, Event{Type: EventSequenceReveal, Payload: map[string]interface{}{
			"round":    g.Round,
			"sequence": g.Sequence,
			"showMs":   millis(show),
			"gapMs":    millis(gap),
		}})
	case *colorrush.Game:
		if g.Round != t.round || g.Phase != colorrush.PhaseShowingColor {
			return
		}
		o.schedule(task{code: t.code, kind: kindInputOpen, round: g.Round}, revealSettleDelay)
		o.broadcast(r, Event{Type: EventColorReveal, Payload: map[string]interface{}{
			"round":  g.Round,
			"target": g.Target,
		}})
	}
}

// inputOpenTask flips the round into its input phase and arms the deadline.
func (o *Orchestrator) inputOpenTask(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	switch g := r.Game.(type) {
	case *simon.Game:
		if g.Round != t.round || g.Phase != simon.PhaseShowingSequence {
			return
		}
		g.OpenInputWindow(o.clock.Now())
		o.schedule(task{code: t.code, kind: kindInputDeadline, round: g.Round}, g.InputTimeout)
		o.broadcast(r, Event{Type: EventSequenceRevealComplete, Payload: map[string]interface{}{"round": g.Round}})
		o.broadcast(r, Event{Type: EventInputPhaseOpened, Payload: map[string]interface{}{
			"round":     g.Round,
			"timeoutMs": millis(g.InputTimeout),
			"timeoutAt": g.TimeoutAt.UnixMilli(),
		}})
	case *colorrush.Game:
		if g.Round != t.round || g.Phase != colorrush.PhaseShowingColor {
			return
		}
		g.OpenInputWindow(o.clock.Now())
		o.schedule(task{code: t.code, kind: kindInputDeadline, round: g.Round}, g.InputTimeout)
		o.broadcast(r, Event{Type: EventInputPhaseOpened, Payload: map[string]interface{}{
			"round":     g.Round,
			"timeoutMs": millis(g.InputTimeout),
			"timeoutAt": g.TimeoutAt.UnixMilli(),
		}})
	}
}

// inputDeadlineTask fires when the input window lapses with players still
// owing an answer. Every such player gets a sentinel timeout submission so
// round processing treats them uniformly.
func (o *Orchestrator) inputDeadlineTask(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	switch g := r.Game.(type) {
	case *simon.Game:
		if g.Round != t.round || g.Phase != simon.PhasePlayerInput {
			return
		}
		now := o.clock.Now()
		for _, id := range g.Order {
			if g.Players[id].Status != simon.StatusPlaying || g.HasSubmitted(id) {
				continue
			}
			g.RecordSubmission(&simon.Submission{PlayerID: id, ReceivedAt: now})
			o.broadcast(r, Event{Type: EventPlayerTimedOut, Payload: map[string]interface{}{
				"playerId":        id.String(),
				"round":           g.Round,
				"correctSequence": g.Sequence,
			}})
		}
		o.closeSimonRound(r, g)
	case *colorrush.Game:
		if g.Round != t.round || g.Phase != colorrush.PhasePlayerInput {
			return
		}
		o.closeRushRound(r, g)
	}
}

// HandleColorTap processes a single pad press from a player. For the
// sequence game a tap at the wrong index is dropped as replay or jitter; a
// wrong color at the owed index eliminates on the spot. For colorrush the
// tap is the player's whole answer for the round.
func (o *Orchestrator) HandleColorTap(code string, playerID uuid.UUID, color simon.Color, index int, clientFinishMS *float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.rooms.Get(code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	o.rooms.Touch(code, playerID)

	switch g := r.Game.(type) {
	case *simon.Game:
		o.simonTap(r, g, playerID, color, index, clientFinishMS)
	case *colorrush.Game:
		o.rushTap(r, g, playerID, color, clientFinishMS)
	}
}

func (o *Orchestrator) simonTap(r *room.Room, g *simon.Game, playerID uuid.UUID, color simon.Color, index int, clientFinishMS *float64) {
	if g.Phase != simon.PhasePlayerInput {
		return
	}
	ps, ok := g.Players[playerID]
	if !ok || ps.Status != simon.StatusPlaying || g.HasSubmitted(playerID) {
		return
	}
	if index != ps.Progress {
		return // replayed or out-of-order tap, ignore
	}

	if !g.ValidateInput(playerID, color, index) {
		g.EliminatePlayer(playerID, g.Round)
		g.RecordSubmission(&simon.Submission{PlayerID: playerID, ReceivedAt: o.clock.Now()})
		wrong := map[string]interface{}{
			"playerId": playerID.String(),
			"index":    index,
			"actual":   color,
		}
		if index < len(g.Sequence) {
			wrong["expected"] = g.Sequence[index]
		}
		o.broadcast(r, Event{Type: EventTapWrong, Payload: wrong})
		o.broadcast(r, Event{Type: EventPlayerEliminated, Payload: map[string]interface{}{
			"playerId": playerID.String(),
			"round":    g.Round,
			"reason":   simon.ReasonWrongColor,
		}})
		o.maybeCloseSimonRound(r, g)
		return
	}

	progress := g.AdvanceProgress(playerID)
	o.broadcast(r, Event{Type: EventTapCorrect, Payload: map[string]interface{}{
		"playerId": playerID.String(),
		"index":    index,
		"progress": progress,
	}})
	if progress < len(g.Sequence) {
		return
	}

	sub := &simon.Submission{
		PlayerID:       playerID,
		Colors:         append([]simon.Color(nil), g.Sequence...),
		ReceivedAt:     o.clock.Now(),
		ClientFinishMS: clientFinishMS,
		Correct:        true,
	}
	g.RecordSubmission(sub)
	o.broadcast(r, Event{Type: EventPlayerFinishedSequence, Payload: map[string]interface{}{
		"playerId": playerID.String(),
		"round":    g.Round,
	}})
	o.maybeCloseSimonRound(r, g)
}

// HandleSequenceSubmit accepts the whole-array submission path: the client
// sends its entire answer at once instead of tap by tap.
func (o *Orchestrator) HandleSequenceSubmit(code string, playerID uuid.UUID, colors []simon.Color, clientFinishMS *float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.rooms.Get(code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	g, ok := r.Game.(*simon.Game)
	if !ok || g.Phase != simon.PhasePlayerInput {
		return
	}
	ps, ok := g.Players[playerID]
	if !ok || ps.Status != simon.StatusPlaying || g.HasSubmitted(playerID) {
		return
	}
	o.rooms.Touch(code, playerID)

	sub := &simon.Submission{
		PlayerID:       playerID,
		Colors:         append([]simon.Color(nil), colors...),
		ReceivedAt:     o.clock.Now(),
		ClientFinishMS: clientFinishMS,
		Correct:        g.ValidateSequence(colors),
	}
	g.RecordSubmission(sub)
	o.broadcast(r, Event{Type: EventPlayerSubmitted, Payload: map[string]interface{}{
		"playerId": playerID.String(),
		"round":    g.Round,
	}})
	o.maybeCloseSimonRound(r, g)
}

// maybeCloseSimonRound closes the round early once nobody is left to wait
// for: every playing player has answered, or nobody is playing at all.
func (o *Orchestrator) maybeCloseSimonRound(r *room.Room, g *simon.Game) {
	if g.HaveAllPlayersSubmitted() || g.ActivePlayerCount() == 0 {
		o.closeSimonRound(r, g)
	}
}

// closeSimonRound settles the round and arms either the next reveal or the
// finish. The pending deadline timer is cancelled first so it cannot fire
// into the next round.
func (o *Orchestrator) closeSimonRound(r *room.Room, g *simon.Game) {
	o.cancelTimer(r.Code, kindInputDeadline, uuid.Nil)

	closedRound := g.Round
	winner, eliminations := g.ProcessRoundSubmissions()
	if g.ShouldGameEnd() {
		// Leave the input phase right away so a stray tap in the pause
		// window cannot re-enter closure; finishTask settles the rest.
		g.Phase = simon.PhaseFinished
		o.schedule(task{code: r.Code, kind: kindFinish, round: closedRound}, roundPause)
	} else {
		g.AdvanceToNextRound()
		o.schedule(task{code: r.Code, kind: kindReveal, round: g.Round}, roundPause)
	}

	for _, e := range eliminations {
		o.broadcast(r, Event{Type: EventPlayerEliminated, Payload: map[string]interface{}{
			"playerId": e.PlayerID.String(),
			"round":    closedRound,
			"reason":   e.Reason,
		}})
	}

	elims := make([]map[string]interface{}, 0, len(eliminations))
	for _, e := range eliminations {
		elims = append(elims, map[string]interface{}{
			"playerId": e.PlayerID.String(),
			"reason":   e.Reason,
		})
	}
	payload := map[string]interface{}{
		"round":        closedRound,
		"scores":       scoresPayload(g.Scores, g.Order),
		"eliminations": elims,
		"statuses":     statusesPayload(g),
	}
	if winner != nil {
		payload["winner"] = map[string]interface{}{
			"playerId": winner.PlayerID.String(),
			"score":    winner.Score,
		}
	}
	o.broadcast(r, Event{Type: EventRoundResult, Payload: payload})
	log.Printf("room %s: round %d closed", r.Code, closedRound)
}

// finishTask ends the game after the post-round pause.
func (o *Orchestrator) finishTask(t task) {
	r, ok := o.rooms.Get(t.code)
	if !ok || r.Status != room.StatusActive {
		return
	}
	switch g := r.Game.(type) {
	case *simon.Game:
		g.Finish()
		r.Status = room.StatusFinished
		standings := make([]map[string]interface{}, 0, len(g.Order))
		for _, st := range g.FinalStandings() {
			standings = append(standings, map[string]interface{}{
				"playerId":  st.PlayerID.String(),
				"score":     st.Score,
				"avgTimeMs": st.AvgTimeMS,
			})
		}
		payload := map[string]interface{}{
			"scores":    scoresPayload(g.Scores, g.Order),
			"standings": standings,
		}
		if g.WinnerID != nil {
			payload["winnerId"] = g.WinnerID.String()
		}
		o.broadcast(r, Event{Type: EventGameFinished, Payload: payload})
		log.Printf("room %s: game finished", r.Code)
	case *colorrush.Game:
		o.finishRush(r, g)
	}
}
