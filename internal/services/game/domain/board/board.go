// Package board maps linear token track indexes to board coordinates.
//
// Every token's progress is a single integer: 0 is the home yard, the final
// index is the finished position, and everything in between is either a
// shared ring cell or a color-private home-stretch cell. The board package
// owns that mapping so the move validator and capture engine never reason
// about raw cell arithmetic.
package board

import (
	"fmt"
)

// Color identifies a seat color on the board.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Yellow Color = "yellow"
	Green  Color = "green"
	Purple Color = "purple"
	Orange Color = "orange"
)

const (
	// TokensPerColor is the number of tokens each seat races to the finish.
	TokensPerColor = 4

	// cellsPerSeat is the ring span owned by one seat: its entry cell plus
	// the twelve cells before the next seat's entry.
	cellsPerSeat = 13

	// stretchLen is the number of color-private cells between the ring exit
	// and the finished position.
	stretchLen = 5

	// safeOffset is the distance from a seat's entry cell to the second
	// safe cell in its span.
	safeOffset = 8
)

// ringOrder lists seat colors in ring order per board size.
var ringOrder = map[int][]Color{
	4: {Red, Blue, Yellow, Green},
	5: {Red, Blue, Purple, Yellow, Green},
	6: {Red, Blue, Purple, Yellow, Orange, Green},
}

// Layout describes the board geometry for a given number of seats.
//
// Rooms with fewer than four players still play on the four-seat board;
// five- and six-seat rooms get proportionally longer rings.
type Layout struct {
	seats int
	ring  int
	safe  map[int]bool
	entry map[Color]int
	order []Color
}

// NewLayout returns the layout for the given seat count.
// Seat counts below four share the four-seat board.
func NewLayout(seatCount int) (Layout, error) {
	boardSeats := seatCount
	if boardSeats < 4 {
		boardSeats = 4
	}
	order, ok := ringOrder[boardSeats]
	if !ok {
		return Layout{}, fmt.Errorf("unsupported seat count %d", seatCount)
	}

	l := Layout{
		seats: boardSeats,
		ring:  boardSeats * cellsPerSeat,
		safe:  make(map[int]bool, boardSeats*2),
		entry: make(map[Color]int, boardSeats),
		order: order,
	}
	for i, color := range order {
		entry := i * cellsPerSeat
		l.entry[color] = entry
		l.safe[entry] = true
		l.safe[entry+safeOffset] = true
	}
	return l, nil
}

// Colors returns the seat colors in ring order.
func (l Layout) Colors() []Color {
	out := make([]Color, len(l.order))
	copy(out, l.order)
	return out
}

// RingSize returns the number of shared ring cells.
func (l Layout) RingSize() int {
	return l.ring
}

// FinalIndex is the track index of the finished position.
// A token travels the ring minus one cell, then the home stretch, then home.
func (l Layout) FinalIndex() int {
	return (l.ring - 1) + stretchLen + 1
}

// ringTravel is the highest track index still on the shared ring.
func (l Layout) ringTravel() int {
	return l.ring - 1
}

// Coord is a resolved board coordinate for a track index.
type Coord struct {
	// Cell is the shared ring cell, meaningful only when OnRing is true.
	Cell int
	// OnRing reports whether the coordinate is on the shared ring where
	// captures can happen.
	OnRing bool
	// Finished reports whether the token has reached the final index.
	Finished bool
}

// CoordOf resolves a color's track index to a board coordinate.
// Index 0 (home yard) and out-of-range indexes report an error.
func (l Layout) CoordOf(color Color, index int) (Coord, error) {
	entry, ok := l.entry[color]
	if !ok {
		return Coord{}, fmt.Errorf("color %s has no seat on a %d-seat board", color, l.seats)
	}
	switch {
	case index <= 0 || index > l.FinalIndex():
		return Coord{}, fmt.Errorf("track index %d out of range for %d-seat board", index, l.seats)
	case index <= l.ringTravel():
		return Coord{Cell: (entry + index - 1) % l.ring, OnRing: true}, nil
	case index == l.FinalIndex():
		return Coord{Finished: true}, nil
	default:
		// Home stretch: color-private, never collides with another color.
		return Coord{}, nil
	}
}

// Safe reports whether a ring cell is a safe coordinate where tokens cannot
// be captured.
func (l Layout) Safe(cell int) bool {
	return l.safe[cell]
}

// Entry returns the ring cell a color's tokens enter on.
func (l Layout) Entry(color Color) (int, bool) {
	cell, ok := l.entry[color]
	return cell, ok
}
