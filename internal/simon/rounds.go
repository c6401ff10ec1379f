// internal/simon/rounds.go
package simon

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Reveal tempo thresholds. The pair accelerates with the round number so
// difficulty rises without growing the input window.
const (
	baseShowDuration = 600 * time.Millisecond
	baseGap          = 200 * time.Millisecond
	fastShowDuration = 450 * time.Millisecond
	fastGap          = 150 * time.Millisecond
	maxShowDuration  = 300 * time.Millisecond
	maxGap           = 100 * time.Millisecond
)

// RevealTempo returns the per-color show duration and inter-color gap for a
// round: 600/200ms base, 450/150ms from round 3, 300/100ms from round 5.
func RevealTempo(round int) (show, gap time.Duration) {
	switch {
	case round >= 5:
		return maxShowDuration, maxGap
	case round >= 3:
		return fastShowDuration, fastGap
	default:
		return baseShowDuration, baseGap
	}
}

// effectiveTime is the ranking key for correct submissions: the client's
// high-resolution completion time when reported, else the server receive
// time, both in epoch milliseconds.
func (s *Submission) effectiveTime() float64 {
	if s.ClientFinishMS != nil {
		return *s.ClientFinishMS
	}
	return float64(s.ReceivedAt.UnixNano()) / float64(time.Millisecond)
}

// ProcessRoundSubmissions settles the current round. Every incorrect
// submission (sentinel timeouts included) eliminates its player if still
// playing. Among correct submissions exactly one winner scores: the stable
// sort keeps insertion order for identical times, so the comparison is a
// total order over (effective time, insertion index). Submissions are
// cleared before returning.
func (g *Game) ProcessRoundSubmissions() (*RoundWinner, []Elimination) {
	var correct []*Submission
	var eliminations []Elimination

	for _, sub := range g.Submissions {
		if sub.Correct {
			correct = append(correct, sub)
			continue
		}
		if g.EliminatePlayer(sub.PlayerID, g.Round) {
			reason := ReasonWrongSequence
			if len(sub.Colors) == 0 {
				reason = ReasonTimeout
			}
			eliminations = append(eliminations, Elimination{PlayerID: sub.PlayerID, Reason: reason})
		}
	}

	var winner *RoundWinner
	if len(correct) > 0 {
		sort.SliceStable(correct, func(i, j int) bool {
			return correct[i].effectiveTime() < correct[j].effectiveTime()
		})
		id := correct[0].PlayerID
		g.Scores[id]++
		winner = &RoundWinner{PlayerID: id, Score: g.Scores[id]}
	}

	g.Submissions = nil
	g.RoundWinner = winner
	return winner, eliminations
}

// AdvanceToNextRound extends the sequence by one, resets every player's
// progress, clears round-local state and re-enters the showing phase.
func (g *Game) AdvanceToNextRound() {
	g.ExtendSequence()
	for _, p := range g.Players {
		p.Progress = 0
	}
	g.Round++
	g.Submissions = nil
	g.RoundWinner = nil
	g.TimerStartedAt = nil
	g.TimeoutAt = nil
	g.Phase = PhaseShowingSequence
}

// Standing is one row of the final scoreboard. AvgTimeMS is a placeholder
// tiebreak the round flow never populates; it stays zero.
type Standing struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Score     int       `json:"score"`
	AvgTimeMS float64   `json:"avgTimeMs"`
}

// FinalStandings returns players sorted by score descending, then by the
// placeholder average-time ascending, then join order for stability.
func (g *Game) FinalStandings() []Standing {
	standings := make([]Standing, 0, len(g.Order))
	for _, id := range g.Order {
		standings = append(standings, Standing{PlayerID: id, Score: g.Scores[id]})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].AvgTimeMS < standings[j].AvgTimeMS
	})
	return standings
}

// Finish marks the game over and records the overall winner.
func (g *Game) Finish() {
	g.Phase = PhaseFinished
	g.TimerStartedAt = nil
	g.TimeoutAt = nil
	if id, ok := g.DecideWinner(); ok {
		g.WinnerID = &id
	}
}
