// Package rules implements the shared gameplay rule set: turn rotation,
// move legality, and capture resolution.
//
// Human requests, the bot engine, and the timeout sweep all go through the
// same functions here, so the actors cannot drift apart on rule behavior.
package rules

import (
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
)

// Rotation is a fixed seat-color rotation table.
type Rotation []board.Color

// rotation tables are data, not code: mode differences live entirely in the
// ordering below.
var (
	// teamRotation alternates teams (red+yellow vs green+blue) on the
	// fixed four-seat team board.
	teamRotation = Rotation{board.Red, board.Green, board.Yellow, board.Blue}
)

// RotationFor returns the rotation table for a board and play style.
// Individual play rotates in ring order; team play alternates teams.
func RotationFor(layout board.Layout, team bool) Rotation {
	if team {
		return teamRotation
	}
	return Rotation(layout.Colors())
}

// NextTurn returns the player occupying the next eligible seat after the
// current player's seat, scanning the rotation with wraparound and skipping
// seats whose occupant is in the skip set or empty.
//
// The boolean return is false only when every seat is excluded, which means
// the room should already be finished.
func NextTurn(rot Rotation, seatColors map[string]board.Color, current string, skip map[string]bool) (string, bool) {
	if len(rot) == 0 {
		return "", false
	}

	occupants := make(map[board.Color]string, len(seatColors))
	for player, color := range seatColors {
		occupants[color] = player
	}

	start := 0
	if color, ok := seatColors[current]; ok {
		for i, c := range rot {
			if c == color {
				start = i
				break
			}
		}
	}

	for step := 1; step <= len(rot); step++ {
		color := rot[(start+step)%len(rot)]
		player, ok := occupants[color]
		if !ok || skip[player] {
			continue
		}
		return player, true
	}
	return "", false
}

// Teammates reports whether two colors share a team in team play.
// Teams pair opposite seats: red+yellow and green+blue.
func Teammates(a, b board.Color) bool {
	if a == b {
		return true
	}
	switch {
	case a == board.Red && b == board.Yellow, a == board.Yellow && b == board.Red:
		return true
	case a == board.Green && b == board.Blue, a == board.Blue && b == board.Green:
		return true
	}
	return false
}
