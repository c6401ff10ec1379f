// internal/simon/game.go
package simon

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Color is one pad of the memory game.
type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Blue   Color = "blue"
	Yellow Color = "yellow"
)

// Palette lists every color the sequence generator draws from.
var Palette = []Color{Red, Green, Blue, Yellow}

// Phase is the round-level state of the game.
type Phase string

const (
	PhaseShowingSequence Phase = "showing_sequence"
	PhasePlayerInput     Phase = "player_input"
	PhaseFinished        Phase = "finished"
)

// PlayerStatus marks whether a player is still in the game.
type PlayerStatus string

const (
	StatusPlaying    PlayerStatus = "playing"
	StatusEliminated PlayerStatus = "eliminated"
)

const (
	// MaxRounds is the cycle cap; the game ends once this many rounds complete.
	MaxRounds = 5

	// InputTimeout is the fixed per-round input window. It does not decay.
	InputTimeout = 20 * time.Second
)

// Elimination reasons carried on submissions and broadcasts.
const (
	ReasonWrongColor    = "wrong_color"
	ReasonWrongSequence = "wrong_sequence"
	ReasonTimeout       = "timeout"
)

// PlayerState is the per-player sub-state inside a game.
type PlayerState struct {
	Status PlayerStatus `json:"status"`
	// Progress is the index of the next sequence element this player must tap.
	Progress int `json:"progress"`
	// EliminatedRound is the round the player went out, 0 if still in.
	EliminatedRound int `json:"eliminatedRound,omitempty"`
}

// Submission is one player's answer for the current round. An empty Colors
// slice is the sentinel for "wrong tap" or "timed out". Correct is fixed at
// submission time and never recomputed.
type Submission struct {
	PlayerID   uuid.UUID `json:"playerId"`
	Colors     []Color   `json:"colors"`
	ReceivedAt time.Time `json:"receivedAt"`
	// ClientFinishMS is the client-reported high-resolution completion time in
	// epoch milliseconds; used only to rank correct submissions by speed.
	ClientFinishMS *float64 `json:"clientFinishMs,omitempty"`
	Correct        bool     `json:"correct"`
}

// RoundWinner identifies the single scorer of a round.
type RoundWinner struct {
	PlayerID uuid.UUID `json:"playerId"`
	Score    int       `json:"score"`
}

// Elimination records a player knocked out during round processing.
type Elimination struct {
	PlayerID uuid.UUID `json:"playerId"`
	Reason   string    `json:"reason"`
}

// Game is the full sequence-game state. All transitions are methods with no
// I/O and no timers; the orchestrator owns scheduling and broadcasting.
//
// Invariants: len(Sequence) == Round; Submissions holds at most one entry per
// player and is fully cleared at every round boundary.
type Game struct {
	Phase    Phase
	Sequence []Color
	Round    int

	Players map[uuid.UUID]*PlayerState
	// Order preserves join order for deterministic fallbacks.
	Order []uuid.UUID

	Scores map[uuid.UUID]int

	// Submissions is insertion-ordered so the winner tie-break is a total
	// order over (effective time, insertion index).
	Submissions []*Submission

	InputTimeout   time.Duration
	TimerStartedAt *time.Time
	TimeoutAt      *time.Time

	RoundWinner *RoundWinner
	WinnerID    *uuid.UUID

	rng *rand.Rand
}

// GameType tags the room payload union.
func (g *Game) GameType() string { return "simon" }

// NewGame builds round-1 state for the given players. The generator is
// seeded exactly once; every later sequence element continues the same
// stream, which is what makes sequences reproducible and prefix-stable.
func NewGame(players []uuid.UUID, seed int64) *Game {
	g := &Game{
		Phase:        PhaseShowingSequence,
		Round:        1,
		Players:      make(map[uuid.UUID]*PlayerState, len(players)),
		Order:        append([]uuid.UUID(nil), players...),
		Scores:       make(map[uuid.UUID]int, len(players)),
		InputTimeout: InputTimeout,
		rng:          rand.New(rand.NewSource(seed)),
	}
	for _, id := range players {
		g.Players[id] = &PlayerState{Status: StatusPlaying}
		g.Scores[id] = 0
	}
	g.ExtendSequence()
	return g
}

// ExtendSequence appends exactly one pseudo-random color from the seeded
// stream. Never reseeds mid-game.
func (g *Game) ExtendSequence() {
	g.Sequence = append(g.Sequence, Palette[g.rng.Intn(len(Palette))])
}

// ValidateInput reports whether a single tap is the one the player owes next:
// the index must equal their recorded progress and the color must match the
// sequence at that index. Replayed or out-of-order taps fail.
func (g *Game) ValidateInput(playerID uuid.UUID, color Color, index int) bool {
	p, ok := g.Players[playerID]
	if !ok {
		return false
	}
	if index != p.Progress || index >= len(g.Sequence) {
		return false
	}
	return g.Sequence[index] == color
}

// ValidateSequence is the legacy whole-array check.
func (g *Game) ValidateSequence(colors []Color) bool {
	if len(colors) != len(g.Sequence) {
		return false
	}
	for i, c := range colors {
		if g.Sequence[i] != c {
			return false
		}
	}
	return true
}

// AdvanceProgress bumps a player's progress index and returns the new value.
func (g *Game) AdvanceProgress(playerID uuid.UUID) int {
	p, ok := g.Players[playerID]
	if !ok {
		return 0
	}
	p.Progress++
	return p.Progress
}

// HasSubmitted reports whether a player already has a submission this round.
func (g *Game) HasSubmitted(playerID uuid.UUID) bool {
	for _, s := range g.Submissions {
		if s.PlayerID == playerID {
			return true
		}
	}
	return false
}

// RecordSubmission appends a submission, at most one per player per round.
func (g *Game) RecordSubmission(sub *Submission) {
	if g.HasSubmitted(sub.PlayerID) {
		return
	}
	g.Submissions = append(g.Submissions, sub)
}

// HaveAllPlayersSubmitted reports whether every still-playing player has
// submitted. Vacuously false with zero playing players so that an empty
// field can never trigger round closure by itself.
func (g *Game) HaveAllPlayersSubmitted() bool {
	playing := 0
	for id, p := range g.Players {
		if p.Status != StatusPlaying {
			continue
		}
		playing++
		if !g.HasSubmitted(id) {
			return false
		}
	}
	return playing > 0
}

// EliminatePlayer is the idempotent transition to eliminated, recording the
// round. Used both for instant wrong-tap feedback and end-of-round batches.
func (g *Game) EliminatePlayer(playerID uuid.UUID, round int) bool {
	p, ok := g.Players[playerID]
	if !ok || p.Status == StatusEliminated {
		return false
	}
	p.Status = StatusEliminated
	p.EliminatedRound = round
	return true
}

// ActivePlayerCount returns how many players are still playing.
func (g *Game) ActivePlayerCount() int {
	n := 0
	for _, p := range g.Players {
		if p.Status == StatusPlaying {
			n++
		}
	}
	return n
}

// OpenInputWindow enters the input phase and stamps the deadline pair.
func (g *Game) OpenInputWindow(now time.Time) {
	g.Phase = PhasePlayerInput
	deadline := now.Add(g.InputTimeout)
	g.TimerStartedAt = &now
	g.TimeoutAt = &deadline
}

// ShouldGameEnd reports whether a terminal condition holds after the current
// round's processing. The cycle cap always ends the game. Below the cap, a
// multi-player game ends when at most one player is left playing; a
// single-player game ends only once that lone player is actually out, since
// active==1 is the expected state of every solo round.
func (g *Game) ShouldGameEnd() bool {
	if g.Round >= MaxRounds {
		return true
	}
	if len(g.Players) == 1 {
		return g.ActivePlayerCount() == 0
	}
	return g.ActivePlayerCount() <= 1
}

// DecideWinner picks the overall winner: the sole survivor when there is
// one, otherwise the highest score (earliest join order breaking ties) as
// the fallback for simultaneous eliminations or a multi-survivor cap-out.
func (g *Game) DecideWinner() (uuid.UUID, bool) {
	if len(g.Order) == 0 {
		return uuid.Nil, false
	}
	if g.ActivePlayerCount() == 1 {
		for _, id := range g.Order {
			if g.Players[id].Status == StatusPlaying {
				return id, true
			}
		}
	}
	best := g.Order[0]
	for _, id := range g.Order[1:] {
		if g.Scores[id] > g.Scores[best] {
			best = id
		}
	}
	return best, true
}
