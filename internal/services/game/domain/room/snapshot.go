// Package room holds the authoritative per-room state and its pure
// transition functions.
//
// Transitions never mutate their receiver. Each returns a fresh Snapshot so
// callers can present the snapshot they read as the precondition of a
// conditional write. Human handlers, the bot engine, and the timeout sweep
// all commit through the same transitions.
package room

import (
	"fmt"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/rules"
)

// Mode selects the rotation table and win condition of a room.
type Mode string

const (
	// ModeSolo seats one human against bot fillers.
	ModeSolo Mode = "solo"
	// ModeFriends seats invited humans only.
	ModeFriends Mode = "friends"
	// ModeTeamUp plays two teams of two on a fixed four-seat board.
	ModeTeamUp Mode = "teamup"
	// ModeTournamentLeg is a single leg of a bracket, individual rules.
	ModeTournamentLeg Mode = "tournament-leg"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSolo, ModeFriends, ModeTeamUp, ModeTournamentLeg:
		return true
	}
	return false
}

// Team reports whether the mode plays in teams of two.
func (m Mode) Team() bool { return m == ModeTeamUp }

// DiceState is the per-turn dice sub-state.
type DiceState string

const (
	// DiceWaiting means the turn owner has not rolled yet.
	DiceWaiting DiceState = "waiting"
	// DiceRolling means a die value was drawn but not yet resolved.
	DiceRolling DiceState = "rolling"
	// DiceComplete means a die value is banked and a move is due.
	DiceComplete DiceState = "complete"
)

// GameState is the room lifecycle state. It only moves forward.
type GameState string

const (
	// StateWaiting means seats are still being filled.
	StateWaiting GameState = "waiting"
	// StatePlaying means the match is underway.
	StatePlaying GameState = "playing"
	// StateFinished is terminal for all gameplay fields.
	StateFinished GameState = "finished"
)

// teamSeatCount is the fixed board size for team play.
const teamSeatCount = 4

// Snapshot is one room's complete state as read from or written to the
// store. It is the single record the conditional-write chain protects.
type Snapshot struct {
	RoomID    string
	Mode      Mode
	SeatCount int

	// SeatColors binds each seated player to a color for the room's life.
	SeatColors map[string]board.Color
	// Positions holds every seated color's token track indexes.
	Positions map[board.Color]rules.Tokens

	Turn       string
	DiceState  DiceState
	DiceResult int
	// PendingSteps banks the current owner's die value between the
	// rolling and complete sub-states. At most one live entry.
	PendingSteps map[string]int

	// Winners lists players in finishing order.
	Winners []string
	// Escaped players forfeited permanently; their tokens are zeroed.
	Escaped map[string]bool
	// Kicked players were removed for repeated timeouts. Kicked implies
	// escaped.
	Kicked map[string]bool
	// Disconnected players are temporarily absent; a bot covers their
	// seat until they reconnect or the grace window converts them to
	// escaped.
	Disconnected map[string]bool
	// Departed players left the room after it finished. The room is
	// deleted once every human has departed or escaped.
	Departed map[string]bool

	TimeoutMisses map[string]int

	GameState GameState
	// Processed guards the one-shot settlement call after finishing.
	Processed bool

	UpdatedAt time.Time
}

// New creates an empty room in the waiting state.
func New(roomID string, mode Mode, seatCount int, now time.Time) (Snapshot, error) {
	if !mode.Valid() {
		return Snapshot{}, apperrors.New(apperrors.CodeModeInvalid, fmt.Sprintf("unknown mode %q", mode))
	}
	if mode.Team() && seatCount != teamSeatCount {
		return Snapshot{}, apperrors.New(apperrors.CodeSeatCountInvalid, "team play requires exactly four seats")
	}
	if seatCount < 2 || seatCount > 6 {
		return Snapshot{}, apperrors.New(apperrors.CodeSeatCountInvalid, fmt.Sprintf("seat count %d out of range", seatCount))
	}
	return Snapshot{
		RoomID:        roomID,
		Mode:          mode,
		SeatCount:     seatCount,
		SeatColors:    map[string]board.Color{},
		Positions:     map[board.Color]rules.Tokens{},
		DiceState:     DiceWaiting,
		PendingSteps:  map[string]int{},
		Escaped:       map[string]bool{},
		Kicked:        map[string]bool{},
		Disconnected:  map[string]bool{},
		Departed:      map[string]bool{},
		TimeoutMisses: map[string]int{},
		GameState:     StateWaiting,
		UpdatedAt:     now,
	}, nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	next := s
	next.SeatColors = make(map[string]board.Color, len(s.SeatColors))
	for k, v := range s.SeatColors {
		next.SeatColors[k] = v
	}
	next.Positions = make(map[board.Color]rules.Tokens, len(s.Positions))
	for k, v := range s.Positions {
		next.Positions[k] = v
	}
	next.PendingSteps = make(map[string]int, len(s.PendingSteps))
	for k, v := range s.PendingSteps {
		next.PendingSteps[k] = v
	}
	next.Winners = append([]string(nil), s.Winners...)
	next.Escaped = cloneSet(s.Escaped)
	next.Kicked = cloneSet(s.Kicked)
	next.Disconnected = cloneSet(s.Disconnected)
	next.Departed = cloneSet(s.Departed)
	next.TimeoutMisses = make(map[string]int, len(s.TimeoutMisses))
	for k, v := range s.TimeoutMisses {
		next.TimeoutMisses[k] = v
	}
	return next
}

func cloneSet(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out
}

// Layout returns the board layout for this room's seat count.
func (s Snapshot) Layout() board.Layout {
	layout, err := board.NewLayout(s.SeatCount)
	if err != nil {
		// Seat count was validated at creation.
		panic(err)
	}
	return layout
}

// Rotation returns this room's turn rotation table.
func (s Snapshot) Rotation() rules.Rotation {
	return rules.RotationFor(s.Layout(), s.Mode.Team())
}

// ColorOf returns the seated color of a player.
func (s Snapshot) ColorOf(player string) (board.Color, bool) {
	color, ok := s.SeatColors[player]
	return color, ok
}

// SkipSet returns the players excluded from turn rotation: winners, escaped,
// and kicked.
func (s Snapshot) SkipSet() map[string]bool {
	skip := make(map[string]bool, len(s.Winners)+len(s.Escaped)+len(s.Kicked))
	for _, w := range s.Winners {
		skip[w] = true
	}
	for p := range s.Escaped {
		skip[p] = true
	}
	for p := range s.Kicked {
		skip[p] = true
	}
	return skip
}

// ActivePlayers returns the seated players still in rotation.
func (s Snapshot) ActivePlayers() []string {
	skip := s.SkipSet()
	var active []string
	for _, color := range s.Rotation() {
		for player, c := range s.SeatColors {
			if c == color && !skip[player] {
				active = append(active, player)
			}
		}
	}
	return active
}

// IsWinner reports whether the player already appears in Winners.
func (s Snapshot) IsWinner(player string) bool {
	for _, w := range s.Winners {
		if w == player {
			return true
		}
	}
	return false
}

// LegalMoves returns the token indexes a player could legally move with the
// given die value.
func (s Snapshot) LegalMoves(player string, die int) []int {
	color, ok := s.SeatColors[player]
	if !ok {
		return nil
	}
	tokens, ok := s.Positions[color]
	if !ok {
		return nil
	}
	layout := s.Layout()
	var legal []int
	for i, pos := range tokens {
		if _, err := rules.ValidateMove(layout, pos, die); err == nil {
			legal = append(legal, i)
		}
	}
	return legal
}

func (s Snapshot) requirePlaying() error {
	switch s.GameState {
	case StatePlaying:
		return nil
	case StateFinished:
		return apperrors.New(apperrors.CodeInvalidGameState, "room already finished")
	default:
		return apperrors.New(apperrors.CodeInvalidGameState, "room has not started")
	}
}

func (s Snapshot) requireOwner(player string) error {
	if player != s.Turn {
		return apperrors.WithMetadata(apperrors.CodeNotYourTurn, "it is not this player's turn",
			map[string]string{"turn": s.Turn})
	}
	return nil
}
