// internal/orchestrator/colorrush.go
//
// Colorrush-specific halves of the shared round flow. Reveal, input-open
// and deadline dispatch live in rounds.go; this file holds the tap path
// and the round/game settlement for the race variant.
package orchestrator

import (
	"log"

	"github.com/google/uuid"
	"github.com/sagivamit/simon-game-app/internal/colorrush"
	"github.com/sagivamit/simon-game-app/internal/room"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

func (o *Orchestrator) rushTap(r *room.Room, g *colorrush.Game, playerID uuid.UUID, color simon.Color, clientFinishMS *float64) {
	if g.Phase != colorrush.PhasePlayerInput {
		return
	}
	tap := g.RecordTap(playerID, color, o.clock.Now(), clientFinishMS)
	if tap == nil {
		return // already answered this round
	}

	kind := EventTapCorrect
	if !tap.Correct {
		kind = EventTapWrong
	}
	o.broadcast(r, Event{Type: kind, Payload: map[string]interface{}{
		"playerId": playerID.String(),
		"round":    g.Round,
		"actual":   color,
	}})

	if g.HaveAllPlayersTapped() {
		o.closeRushRound(r, g)
	}
}

func (o *Orchestrator) closeRushRound(r *room.Room, g *colorrush.Game) {
	o.cancelTimer(r.Code, kindInputDeadline, uuid.Nil)

	closedRound := g.Round
	winner := g.ProcessRound()
	if g.ShouldGameEnd() {
		// Leave the input phase right away so a re-tap in the pause window
		// cannot score a second time through another ProcessRound.
		g.Phase = colorrush.PhaseFinished
		o.schedule(task{code: r.Code, kind: kindFinish, round: closedRound}, roundPause)
	} else {
		g.AdvanceToNextRound()
		o.schedule(task{code: r.Code, kind: kindReveal, round: g.Round}, roundPause)
	}

	payload := map[string]interface{}{
		"round":  closedRound,
		"scores": scoresPayload(g.Scores, g.Order),
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

func (o *Orchestrator) finishRush(r *room.Room, g *colorrush.Game) {
	g.Finish()
	r.Status = room.StatusFinished
	payload := map[string]interface{}{
		"scores": scoresPayload(g.Scores, g.Order),
	}
	if g.WinnerID != nil {
		payload["winnerId"] = g.WinnerID.String()
	}
	o.broadcast(r, Event{Type: EventGameFinished, Payload: payload})
	log.Printf("room %s: game finished", r.Code)
}
