package room

import (
	"fmt"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/rules"
)

// maxTimeoutMisses is the number of accumulated turn timeouts after which a
// player is kicked from the room.
const maxTimeoutMisses = 6

// Join seats a player on the next free color.
func (s Snapshot) Join(player string, now time.Time) (Snapshot, error) {
	if s.GameState != StateWaiting {
		return Snapshot{}, apperrors.New(apperrors.CodeRoomNotJoinable, "room already started")
	}
	if _, ok := s.SeatColors[player]; ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerAlreadySeated, "player already holds a seat")
	}
	if len(s.SeatColors) >= s.SeatCount {
		return Snapshot{}, apperrors.New(apperrors.CodeRoomFull, "all seats are taken")
	}

	taken := make(map[board.Color]bool, len(s.SeatColors))
	for _, color := range s.SeatColors {
		taken[color] = true
	}
	next := s.Clone()
	for _, color := range s.Layout().Colors() {
		if taken[color] {
			continue
		}
		next.SeatColors[player] = color
		next.Positions[color] = rules.Tokens{}
		break
	}
	next.UpdatedAt = now
	return next, nil
}

// Start moves a fully seated room into play and assigns the first turn to
// the first seat in rotation order.
func (s Snapshot) Start(now time.Time) (Snapshot, error) {
	if s.GameState != StateWaiting {
		return Snapshot{}, apperrors.New(apperrors.CodeRoomAlreadyStarted, "room already started")
	}
	if len(s.SeatColors) < s.SeatCount {
		return Snapshot{}, apperrors.New(apperrors.CodeRoomQuotaNotMet,
			fmt.Sprintf("room has %d of %d seats filled", len(s.SeatColors), s.SeatCount))
	}

	next := s.Clone()
	next.GameState = StatePlaying
	next.DiceState = DiceWaiting
	for _, color := range next.Rotation() {
		if player, ok := occupant(next.SeatColors, color); ok {
			next.Turn = player
			break
		}
	}
	next.UpdatedAt = now
	return next, nil
}

// Roll records a drawn die value for the turn owner and advances the dice
// sub-state to rolling. The caller draws the value; the transition only
// validates and records it.
func (s Snapshot) Roll(player string, die int, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireOwner(player); err != nil {
		return Snapshot{}, err
	}
	if s.DiceState != DiceWaiting {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState,
			fmt.Sprintf("cannot roll in dice state %q", s.DiceState))
	}
	if die < rules.DieMin || die > rules.DieMax {
		return Snapshot{}, apperrors.New(apperrors.CodeDiceOutOfRange, fmt.Sprintf("die value %d out of range", die))
	}

	next := s.Clone()
	next.DiceResult = die
	next.DiceState = DiceRolling
	next.UpdatedAt = now
	return next, nil
}

// ResolveRoll settles a drawn die: if the owner has no legal move the dice
// are cleared and the turn passes; otherwise the value is banked and a move
// becomes due.
func (s Snapshot) ResolveRoll(player string, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireOwner(player); err != nil {
		return Snapshot{}, err
	}
	if s.DiceState != DiceRolling {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState,
			fmt.Sprintf("cannot resolve a roll in dice state %q", s.DiceState))
	}

	next := s.Clone()
	if len(next.LegalMoves(player, next.DiceResult)) == 0 {
		next.clearDice()
		next.passTurn()
		next.UpdatedAt = now
		return next, nil
	}
	next.PendingSteps = map[string]int{player: next.DiceResult}
	next.DiceState = DiceComplete
	next.UpdatedAt = now
	return next, nil
}

// Move plays the banked die value on one of the owner's tokens, applies
// captures and win bookkeeping, and either retains or passes the turn.
//
// The turn stays with the mover on a six, a capture, or an exact finish,
// unless the move completed their last token.
func (s Snapshot) Move(player string, token int, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireOwner(player); err != nil {
		return Snapshot{}, err
	}
	if s.DiceState != DiceComplete {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState,
			fmt.Sprintf("cannot move in dice state %q", s.DiceState))
	}
	die, ok := s.PendingSteps[player]
	if !ok {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState, "no banked die value for this player")
	}
	color, ok := s.SeatColors[player]
	if !ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}

	layout := s.Layout()
	result, err := rules.ResolveMove(layout, s.Positions, color, token, die, s.Mode.Team())
	if err != nil {
		return Snapshot{}, err
	}

	next := s.Clone()
	tokens := next.Positions[color]
	tokens[token] = result.NewIndex
	next.Positions[color] = tokens
	for _, cap := range result.Captures {
		victim := next.Positions[cap.Color]
		victim[cap.Token] = 0
		next.Positions[cap.Color] = victim
	}
	next.clearDice()

	fullyFinished := rules.Finished(layout, next.Positions[color])
	if fullyFinished && !next.IsWinner(player) {
		next.Winners = append(next.Winners, player)
	}
	next.settleOutcome()

	bonus := (die == rules.DieMax || result.BonusTurn()) && !fullyFinished
	if next.GameState == StateFinished {
		next.Turn = ""
	} else if !bonus {
		next.passTurn()
	}
	next.UpdatedAt = now
	return next, nil
}

// Pass hands the turn to the next eligible seat, discarding any banked die.
// Used by the no-move path and the timeout sweep.
func (s Snapshot) Pass(player string, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	if err := s.requireOwner(player); err != nil {
		return Snapshot{}, err
	}

	next := s.Clone()
	next.clearDice()
	next.passTurn()
	next.UpdatedAt = now
	return next, nil
}

// RecordTimeoutMiss increments the player's timeout counter. Reaching the
// kick threshold removes the player from the room as if they escaped.
func (s Snapshot) RecordTimeoutMiss(player string, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	next := s.Clone()
	next.TimeoutMisses[player]++
	if next.TimeoutMisses[player] >= maxTimeoutMisses {
		next.Kicked[player] = true
		next.escape(player)
	}
	next.UpdatedAt = now
	return next, nil
}

// Escape removes a player permanently: tokens zeroed, excluded from
// rotation, turn reassigned if they held it.
func (s Snapshot) Escape(player string, now time.Time) (Snapshot, error) {
	if err := s.requirePlaying(); err != nil {
		return Snapshot{}, err
	}
	if _, ok := s.SeatColors[player]; !ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}
	if s.Escaped[player] {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerEscaped, "player already escaped")
	}
	next := s.Clone()
	next.escape(player)
	next.UpdatedAt = now
	return next, nil
}

// Disconnect marks a seated human as absent. Their seat plays on under bot
// control until they reconnect or the grace window expires.
func (s Snapshot) Disconnect(player string, now time.Time) (Snapshot, error) {
	if _, ok := s.SeatColors[player]; !ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}
	next := s.Clone()
	next.Disconnected[player] = true
	next.UpdatedAt = now
	return next, nil
}

// Reconnect clears a player's absence. A player who already escaped cannot
// return.
func (s Snapshot) Reconnect(player string, now time.Time) (Snapshot, error) {
	if _, ok := s.SeatColors[player]; !ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}
	if s.Escaped[player] || s.Kicked[player] {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerEscaped, "player already escaped this room")
	}
	next := s.Clone()
	delete(next.Disconnected, player)
	next.UpdatedAt = now
	return next, nil
}

// Depart records that a player left a finished room. Gameplay fields are
// terminal at this point; departures only drive room deletion, which
// happens once every human has left.
func (s Snapshot) Depart(player string, now time.Time) (Snapshot, error) {
	if s.GameState != StateFinished {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState, "room is not finished")
	}
	if _, ok := s.SeatColors[player]; !ok {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}
	next := s.Clone()
	next.Departed[player] = true
	next.UpdatedAt = now
	return next, nil
}

// MarkProcessed records that post-game settlement ran. It is valid exactly
// once, on a finished room.
func (s Snapshot) MarkProcessed(now time.Time) (Snapshot, error) {
	if s.GameState != StateFinished {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState, "room is not finished")
	}
	if s.Processed {
		return Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState, "room already processed")
	}
	next := s.Clone()
	next.Processed = true
	next.UpdatedAt = now
	return next, nil
}

// escape zeroes the player's tokens, excludes them from rotation, and
// reassigns the turn if they held it. Mutates the receiver; callers pass a
// clone.
func (next *Snapshot) escape(player string) {
	next.Escaped[player] = true
	delete(next.Disconnected, player)
	if color, ok := next.SeatColors[player]; ok {
		next.Positions[color] = rules.Tokens{}
	}
	if next.Turn == player {
		next.clearDice()
		next.passTurn()
	}
	next.settleOutcome()
	if next.GameState == StateFinished {
		next.Turn = ""
	}
}

// clearDice resets the dice sub-state to waiting and drops any banked value.
func (next *Snapshot) clearDice() {
	next.DiceResult = 0
	next.DiceState = DiceWaiting
	next.PendingSteps = map[string]int{}
}

// passTurn advances the turn to the next eligible seat. When no seat is
// eligible the room is finished and the turn cleared.
func (next *Snapshot) passTurn() {
	player, ok := rules.NextTurn(next.Rotation(), next.SeatColors, next.Turn, next.SkipSet())
	if !ok {
		next.Turn = ""
		next.GameState = StateFinished
		return
	}
	next.Turn = player
}

// settleOutcome checks the mode's win condition and finishes the room when
// it holds, ordering Winners accordingly.
func (next *Snapshot) settleOutcome() {
	if next.GameState != StatePlaying {
		return
	}
	if next.Mode.Team() {
		next.settleTeamOutcome()
		return
	}

	// Individual play ends when at most one active player remains. The
	// last player standing is appended to Winners so finishing order is
	// complete.
	if len(next.Winners) >= len(next.SeatColors)-1 {
		next.finishIndividual()
		return
	}
	if active := next.ActivePlayers(); len(active) <= 1 {
		next.finishIndividual()
	}
}

func (next *Snapshot) finishIndividual() {
	for _, player := range next.ActivePlayers() {
		if !next.IsWinner(player) {
			next.Winners = append(next.Winners, player)
		}
	}
	next.GameState = StateFinished
}

// settleTeamOutcome finishes the room when one team has every token home or
// when the whole opposing team escaped.
func (next *Snapshot) settleTeamOutcome() {
	layout := next.Layout()
	teams := [][2]string{}
	rot := next.Rotation()
	// Teams pair rotation seats 0+2 and 1+3.
	for i := 0; i < 2; i++ {
		a, _ := occupant(next.SeatColors, rot[i])
		b, _ := occupant(next.SeatColors, rot[i+2])
		teams = append(teams, [2]string{a, b})
	}
	for _, team := range teams {
		finished := true
		escaped := true
		for _, player := range team {
			color := next.SeatColors[player]
			if !rules.Finished(layout, next.Positions[color]) {
				finished = false
			}
			if !next.Escaped[player] {
				escaped = false
			}
		}
		if finished {
			next.declareTeamWinners(team)
			return
		}
		if escaped {
			next.declareTeamWinners(otherTeam(teams, team))
			return
		}
	}
}

func (next *Snapshot) declareTeamWinners(team [2]string) {
	for _, player := range team {
		if player != "" && !next.IsWinner(player) {
			next.Winners = append(next.Winners, player)
		}
	}
	next.GameState = StateFinished
}

func otherTeam(teams [][2]string, team [2]string) [2]string {
	for _, t := range teams {
		if t != team {
			return t
		}
	}
	return [2]string{}
}

func occupant(seatColors map[string]board.Color, color board.Color) (string, bool) {
	for player, c := range seatColors {
		if c == color {
			return player, true
		}
	}
	return "", false
}
