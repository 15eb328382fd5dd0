package board

import "testing"

func TestNewLayout_SmallRoomsShareFourSeatBoard(t *testing.T) {
	for _, seats := range []int{2, 3, 4} {
		l, err := NewLayout(seats)
		if err != nil {
			t.Fatalf("NewLayout(%d): %v", seats, err)
		}
		if l.RingSize() != 52 {
			t.Fatalf("ring size = %d, want %d", l.RingSize(), 52)
		}
		if l.FinalIndex() != 57 {
			t.Fatalf("final index = %d, want %d", l.FinalIndex(), 57)
		}
	}
}

func TestNewLayout_LargerBoards(t *testing.T) {
	cases := []struct {
		seats int
		ring  int
		final int
	}{
		{5, 65, 70},
		{6, 78, 83},
	}
	for _, tc := range cases {
		l, err := NewLayout(tc.seats)
		if err != nil {
			t.Fatalf("NewLayout(%d): %v", tc.seats, err)
		}
		if l.RingSize() != tc.ring {
			t.Fatalf("%d seats: ring size = %d, want %d", tc.seats, l.RingSize(), tc.ring)
		}
		if l.FinalIndex() != tc.final {
			t.Fatalf("%d seats: final index = %d, want %d", tc.seats, l.FinalIndex(), tc.final)
		}
	}
}

func TestNewLayout_UnsupportedSeatCount(t *testing.T) {
	if _, err := NewLayout(7); err == nil {
		t.Fatal("expected error for 7 seats")
	}
}

func TestCoordOf_EntryCellMatchesSeatOffset(t *testing.T) {
	l, err := NewLayout(4)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	cases := []struct {
		color Color
		cell  int
	}{
		{Red, 0},
		{Blue, 13},
		{Yellow, 26},
		{Green, 39},
	}
	for _, tc := range cases {
		c, err := l.CoordOf(tc.color, 1)
		if err != nil {
			t.Fatalf("CoordOf(%s, 1): %v", tc.color, err)
		}
		if !c.OnRing || c.Cell != tc.cell {
			t.Fatalf("CoordOf(%s, 1) = %+v, want ring cell %d", tc.color, c, tc.cell)
		}
	}
}

func TestCoordOf_RingWrapsAround(t *testing.T) {
	l, _ := NewLayout(4)
	// Green enters at 39; 14 steps in lands on cell (39+13)%52 = 0.
	c, err := l.CoordOf(Green, 14)
	if err != nil {
		t.Fatalf("CoordOf: %v", err)
	}
	if !c.OnRing || c.Cell != 0 {
		t.Fatalf("CoordOf(green, 14) = %+v, want ring cell 0", c)
	}
}

func TestCoordOf_HomeStretchLeavesRing(t *testing.T) {
	l, _ := NewLayout(4)
	c, err := l.CoordOf(Red, 52)
	if err != nil {
		t.Fatalf("CoordOf: %v", err)
	}
	if c.OnRing || c.Finished {
		t.Fatalf("CoordOf(red, 52) = %+v, want home-stretch coordinate", c)
	}
}

func TestCoordOf_FinalIndexFinishes(t *testing.T) {
	l, _ := NewLayout(4)
	c, err := l.CoordOf(Red, 57)
	if err != nil {
		t.Fatalf("CoordOf: %v", err)
	}
	if !c.Finished {
		t.Fatalf("CoordOf(red, 57) = %+v, want finished", c)
	}
}

func TestCoordOf_OutOfRange(t *testing.T) {
	l, _ := NewLayout(4)
	if _, err := l.CoordOf(Red, 0); err == nil {
		t.Fatal("expected error for home yard index")
	}
	if _, err := l.CoordOf(Red, 58); err == nil {
		t.Fatal("expected error past final index")
	}
	if _, err := l.CoordOf(Purple, 1); err == nil {
		t.Fatal("expected error for color without a seat")
	}
}

func TestSafe_ClassicFourSeatCells(t *testing.T) {
	l, _ := NewLayout(4)
	want := []int{0, 8, 13, 21, 26, 34, 39, 47}
	for _, cell := range want {
		if !l.Safe(cell) {
			t.Fatalf("cell %d should be safe", cell)
		}
	}
	for _, cell := range []int{1, 7, 12, 20, 51} {
		if l.Safe(cell) {
			t.Fatalf("cell %d should not be safe", cell)
		}
	}
}
