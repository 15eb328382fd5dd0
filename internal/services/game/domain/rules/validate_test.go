package rules

import (
	"errors"
	"testing"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
)

func TestValidateMove_HomeTokenLeavesOnlyOnSix(t *testing.T) {
	l := fourSeatLayout(t)
	for die := DieMin; die <= DieMax; die++ {
		idx, err := ValidateMove(l, 0, die)
		if die == 6 {
			if err != nil {
				t.Fatalf("die 6: %v", err)
			}
			if idx != 1 {
				t.Fatalf("die 6: new index = %d, want 1", idx)
			}
			continue
		}
		if err == nil {
			t.Fatalf("die %d: expected illegal move", die)
		}
		if apperrors.CodeOf(err) != apperrors.CodeIllegalMove {
			t.Fatalf("die %d: code = %s, want %s", die, apperrors.CodeOf(err), apperrors.CodeIllegalMove)
		}
	}
}

func TestValidateMove_OvershootIsIllegal(t *testing.T) {
	l := fourSeatLayout(t)
	final := l.FinalIndex()
	for die := DieMin; die <= DieMax; die++ {
		for pos := final - die + 1; pos < final; pos++ {
			if _, err := ValidateMove(l, pos, die); err == nil {
				t.Fatalf("position %d + die %d should overshoot", pos, die)
			}
		}
	}
}

func TestValidateMove_ExactFinish(t *testing.T) {
	l := fourSeatLayout(t)
	idx, err := ValidateMove(l, l.FinalIndex()-3, 3)
	if err != nil {
		t.Fatalf("ValidateMove: %v", err)
	}
	if idx != l.FinalIndex() {
		t.Fatalf("new index = %d, want final %d", idx, l.FinalIndex())
	}
}

func TestValidateMove_DieOutOfRange(t *testing.T) {
	l := fourSeatLayout(t)
	for _, die := range []int{0, 7, -1} {
		if _, err := ValidateMove(l, 5, die); err == nil {
			t.Fatalf("die %d: expected error", die)
		}
	}
}

func TestResolveMove_CaptureOnSharedCell(t *testing.T) {
	l := fourSeatLayout(t)
	// Red moving from index 2 by 3 lands on ring cell 4.
	// Blue's token at index 44 sits on cell (13+44-1)%52 = 4 as well.
	positions := map[board.Color]Tokens{
		board.Red:  {2, 0, 0, 0},
		board.Blue: {44, 0, 0, 0},
	}
	res, err := ResolveMove(l, positions, board.Red, 0, 3, false)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if len(res.Captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(res.Captures))
	}
	if res.Captures[0].Color != board.Blue || res.Captures[0].Token != 0 {
		t.Fatalf("capture = %+v, want blue token 0", res.Captures[0])
	}
	if !res.BonusTurn() {
		t.Fatal("capture should earn a bonus turn")
	}
}

func TestResolveMove_NoCaptureOnSafeCell(t *testing.T) {
	l := fourSeatLayout(t)
	// Red lands on its entry cell 0 via a wraparound? Simplest safe cell is 8:
	// red index 9 sits on cell 8. Move red from 6 by 3 onto it while blue
	// also occupies cell 8 (blue index 48 -> cell (13+48-1)%52 = 8).
	positions := map[board.Color]Tokens{
		board.Red:  {6, 0, 0, 0},
		board.Blue: {48, 0, 0, 0},
	}
	res, err := ResolveMove(l, positions, board.Red, 0, 3, false)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("captures on safe cell = %d, want 0", len(res.Captures))
	}
}

func TestResolveMove_HomeStretchIsUntouchable(t *testing.T) {
	l := fourSeatLayout(t)
	// Blue token deep in its home stretch shares no ring cell with anyone.
	positions := map[board.Color]Tokens{
		board.Red:  {10, 0, 0, 0},
		board.Blue: {53, 0, 0, 0},
	}
	res, err := ResolveMove(l, positions, board.Red, 0, 3, false)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("captures = %d, want 0", len(res.Captures))
	}
}

func TestResolveMove_TeammateNotCaptured(t *testing.T) {
	l := fourSeatLayout(t)
	// Yellow's token at index 31 sits on cell (26+31-1)%52 = 4.
	positions := map[board.Color]Tokens{
		board.Red:    {2, 0, 0, 0},
		board.Yellow: {31, 0, 0, 0},
	}
	res, err := ResolveMove(l, positions, board.Red, 0, 3, true)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("teammate captured: %+v", res.Captures)
	}

	// Same landing in individual play captures.
	res, err = ResolveMove(l, positions, board.Red, 0, 3, false)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if len(res.Captures) != 1 {
		t.Fatalf("captures = %d, want 1 in individual play", len(res.Captures))
	}
}

func TestResolveMove_ExactFinishSetsBonus(t *testing.T) {
	l := fourSeatLayout(t)
	positions := map[board.Color]Tokens{
		board.Red: {l.FinalIndex() - 2, 0, 0, 0},
	}
	res, err := ResolveMove(l, positions, board.Red, 0, 2, false)
	if err != nil {
		t.Fatalf("ResolveMove: %v", err)
	}
	if !res.ExactFinish || !res.BonusTurn() {
		t.Fatalf("result = %+v, want exact finish bonus", res)
	}
}

func TestResolveMove_TokenOutOfRange(t *testing.T) {
	l := fourSeatLayout(t)
	positions := map[board.Color]Tokens{board.Red: {0, 0, 0, 0}}
	if _, err := ResolveMove(l, positions, board.Red, 4, 6, false); err == nil {
		t.Fatal("expected error for token index 4")
	}
}

func TestFinished(t *testing.T) {
	l := fourSeatLayout(t)
	final := l.FinalIndex()
	if !Finished(l, Tokens{final, final, final, final}) {
		t.Fatal("all tokens at final index should be finished")
	}
	if Finished(l, Tokens{final, final, final, 1}) {
		t.Fatal("one token in play should not be finished")
	}
}

func TestCodeOfUnknownError(t *testing.T) {
	if apperrors.CodeOf(errors.New("plain")) != apperrors.CodeUnknown {
		t.Fatal("plain errors should report CodeUnknown")
	}
}
