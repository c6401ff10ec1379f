// internal/colorrush/game.go
//
// colorrush is the simpler sibling of the sequence game: each round the
// server reveals a single target color and every player races to tap it.
// The fastest correct tap scores; nobody is eliminated. It follows the same
// room-lifecycle contract as the sequence game so the orchestrator can drive
// it with the identical timer machinery.
package colorrush

import (
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sagivamit/simon-game-app/internal/simon"
)

// Phase is the round-level state of a colorrush game.
type Phase string

const (
	PhaseShowingColor Phase = "showing_color"
	PhasePlayerInput  Phase = "player_input"
	PhaseFinished     Phase = "finished"
)

const (
	// MaxRounds matches the sequence game's cycle cap.
	MaxRounds = 5

	// InputTimeout is the fixed per-round tap window.
	InputTimeout = 10 * time.Second
)

// Tap is one player's answer for the current round.
type Tap struct {
	PlayerID       uuid.UUID   `json:"playerId"`
	Color          simon.Color `json:"color"`
	ReceivedAt     time.Time   `json:"receivedAt"`
	ClientFinishMS *float64    `json:"clientFinishMs,omitempty"`
	Correct        bool        `json:"correct"`
}

// Game holds the full race state. Like the sequence engine it is pure: no
// timers, no I/O, transitions only.
type Game struct {
	Phase  Phase
	Round  int
	Target simon.Color

	Order  []uuid.UUID
	Scores map[uuid.UUID]int

	// Taps is insertion-ordered for the same total-order tie-break the
	// sequence game uses.
	Taps []*Tap

	InputTimeout   time.Duration
	TimerStartedAt *time.Time
	TimeoutAt      *time.Time

	WinnerID *uuid.UUID

	rng *rand.Rand
}

// GameType tags the room payload union.
func (g *Game) GameType() string { return "colorrush" }

// NewGame builds round-1 state with a target drawn from the seeded stream.
func NewGame(players []uuid.UUID, seed int64) *Game {
	g := &Game{
		Phase:        PhaseShowingColor,
		Round:        1,
		Order:        append([]uuid.UUID(nil), players...),
		Scores:       make(map[uuid.UUID]int, len(players)),
		InputTimeout: InputTimeout,
		rng:          rand.New(rand.NewSource(seed)),
	}
	for _, id := range players {
		g.Scores[id] = 0
	}
	g.Target = g.nextTarget()
	return g
}

func (g *Game) nextTarget() simon.Color {
	return simon.Palette[g.rng.Intn(len(simon.Palette))]
}

// HasTapped reports whether a player already answered this round.
func (g *Game) HasTapped(playerID uuid.UUID) bool {
	for _, tap := range g.Taps {
		if tap.PlayerID == playerID {
			return true
		}
	}
	return false
}

// RecordTap stores a player's answer, at most one per round. Correctness is
// fixed here and never recomputed.
func (g *Game) RecordTap(playerID uuid.UUID, color simon.Color, receivedAt time.Time, clientFinishMS *float64) *Tap {
	if g.HasTapped(playerID) {
		return nil
	}
	tap := &Tap{
		PlayerID:       playerID,
		Color:          color,
		ReceivedAt:     receivedAt,
		ClientFinishMS: clientFinishMS,
		Correct:        color == g.Target,
	}
	g.Taps = append(g.Taps, tap)
	return tap
}

// HaveAllPlayersTapped reports whether every player has answered. False for
// a game with no players.
func (g *Game) HaveAllPlayersTapped() bool {
	if len(g.Order) == 0 {
		return false
	}
	for _, id := range g.Order {
		if !g.HasTapped(id) {
			return false
		}
	}
	return true
}

// OpenInputWindow enters the tap phase and stamps the deadline pair.
func (g *Game) OpenInputWindow(now time.Time) {
	g.Phase = PhasePlayerInput
	deadline := now.Add(g.InputTimeout)
	g.TimerStartedAt = &now
	g.TimeoutAt = &deadline
}

func (t *Tap) effectiveTime() float64 {
	if t.ClientFinishMS != nil {
		return *t.ClientFinishMS
	}
	return float64(t.ReceivedAt.UnixNano()) / float64(time.Millisecond)
}

// ProcessRound settles the race: the fastest correct tap scores one point.
// Taps are cleared before returning.
func (g *Game) ProcessRound() *simon.RoundWinner {
	var correct []*Tap
	for _, tap := range g.Taps {
		if tap.Correct {
			correct = append(correct, tap)
		}
	}
	var winner *simon.RoundWinner
	if len(correct) > 0 {
		sort.SliceStable(correct, func(i, j int) bool {
			return correct[i].effectiveTime() < correct[j].effectiveTime()
		})
		id := correct[0].PlayerID
		g.Scores[id]++
		winner = &simon.RoundWinner{PlayerID: id, Score: g.Scores[id]}
	}
	g.Taps = nil
	return winner
}

// AdvanceToNextRound draws the next target from the same stream.
func (g *Game) AdvanceToNextRound() {
	g.Round++
	g.Target = g.nextTarget()
	g.Taps = nil
	g.TimerStartedAt = nil
	g.TimeoutAt = nil
	g.Phase = PhaseShowingColor
}

// ShouldGameEnd reports whether the round cap is reached.
func (g *Game) ShouldGameEnd() bool {
	return g.Round >= MaxRounds
}

// Finish marks the game over and records the winner: best score, earliest
// join order breaking ties.
func (g *Game) Finish() {
	g.Phase = PhaseFinished
	g.TimerStartedAt = nil
	g.TimeoutAt = nil
	if len(g.Order) == 0 {
		return
	}
	best := g.Order[0]
	for _, id := range g.Order[1:] {
		if g.Scores[id] > g.Scores[best] {
			best = id
		}
	}
	g.WinnerID = &best
}
