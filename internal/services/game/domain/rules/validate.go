package rules

import (
	"fmt"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
)

// DieMin and DieMax bound a single die value.
const (
	DieMin = 1
	DieMax = 6
)

// exitDie is the die value required to move a token out of the home yard.
const exitDie = 6

// Tokens holds the track indexes of one color's tokens.
type Tokens [board.TokensPerColor]int

// Capture identifies an opponent token sent back to its home yard.
type Capture struct {
	Color board.Color
	Token int
}

// MoveResult describes the outcome of a resolved legal move.
type MoveResult struct {
	// NewIndex is the mover's resulting track index.
	NewIndex int
	// Captures lists opponent tokens zeroed by the move.
	Captures []Capture
	// ExactFinish reports the mover reached the final index.
	ExactFinish bool
}

// BonusTurn reports whether the move alone earns the mover another turn.
// The die value is judged separately by the caller.
func (r MoveResult) BonusTurn() bool {
	return len(r.Captures) > 0 || r.ExactFinish
}

// ValidateMove checks a single token move and returns the resulting index.
//
// A home token (index 0) may leave only on a six, landing on index 1. An
// in-play token advances by the die value and must finish on an exact count:
// overshooting the final index is illegal.
func ValidateMove(layout board.Layout, position, die int) (int, error) {
	if die < DieMin || die > DieMax {
		return 0, apperrors.New(apperrors.CodeDiceOutOfRange, fmt.Sprintf("die value %d out of range", die))
	}
	final := layout.FinalIndex()
	switch {
	case position == 0:
		if die != exitDie {
			return 0, apperrors.New(apperrors.CodeIllegalMove, "a token leaves home only on a six")
		}
		return 1, nil
	case position >= final:
		return 0, apperrors.New(apperrors.CodeIllegalMove, "token already finished")
	case position+die > final:
		return 0, apperrors.New(apperrors.CodeIllegalMove, "move overshoots the final index")
	default:
		return position + die, nil
	}
}

// ResolveMove validates a move and computes its captures.
//
// Capture check: the destination's ring coordinate is compared against every
// non-teammate token that is on the ring and not on a safe cell; each
// coincidence zeroes that token. Tokens in their home stretch or yard are
// untouchable.
func ResolveMove(
	layout board.Layout,
	positions map[board.Color]Tokens,
	color board.Color,
	token int,
	die int,
	team bool,
) (MoveResult, error) {
	if token < 0 || token >= board.TokensPerColor {
		return MoveResult{}, apperrors.New(apperrors.CodeIllegalMove, fmt.Sprintf("token %d out of range", token))
	}
	tokens, ok := positions[color]
	if !ok {
		return MoveResult{}, apperrors.New(apperrors.CodeIllegalMove, fmt.Sprintf("color %s has no tokens in this room", color))
	}

	newIndex, err := ValidateMove(layout, tokens[token], die)
	if err != nil {
		return MoveResult{}, err
	}

	result := MoveResult{
		NewIndex:    newIndex,
		ExactFinish: newIndex == layout.FinalIndex(),
	}

	dest, err := layout.CoordOf(color, newIndex)
	if err != nil {
		return MoveResult{}, err
	}
	if !dest.OnRing || layout.Safe(dest.Cell) {
		return result, nil
	}

	for otherColor, otherTokens := range positions {
		if otherColor == color {
			continue
		}
		if team && Teammates(color, otherColor) {
			continue
		}
		for i, pos := range otherTokens {
			if pos == 0 {
				continue
			}
			coord, err := layout.CoordOf(otherColor, pos)
			if err != nil {
				continue
			}
			if coord.OnRing && coord.Cell == dest.Cell {
				result.Captures = append(result.Captures, Capture{Color: otherColor, Token: i})
			}
		}
	}
	return result, nil
}

// Finished reports whether every token of a color has reached the final index.
func Finished(layout board.Layout, tokens Tokens) bool {
	for _, pos := range tokens {
		if pos != layout.FinalIndex() {
			return false
		}
	}
	return true
}
