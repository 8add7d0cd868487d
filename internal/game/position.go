// Package game models the 3×3 two-player board used by the match stage and
// the exact solver that plays it.
package game

import (
	"fmt"
	"strings"
)

// Cell is the content of one board square.
type Cell uint8

const (
	Empty Cell = iota
	SideA
	SideB
)

// Side identifies a player. Only SideA and SideB are valid sides.
type Side = Cell

// Opponent returns the other side.
func Opponent(s Side) Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Mark renders a cell the way the board is drawn (X for A, O for B).
func (c Cell) Mark() string {
	switch c {
	case SideA:
		return "X"
	case SideB:
		return "O"
	default:
		return "."
	}
}

func (c Cell) String() string {
	switch c {
	case SideA:
		return "side-a"
	case SideB:
		return "side-b"
	default:
		return "empty"
	}
}

// Move is a cell index in [0, 8].
type Move int

// NoMove is returned when no move can be made.
const NoMove Move = -1

// Outcome classifies a position.
type Outcome uint8

const (
	InProgress Outcome = iota
	SideAWins
	SideBWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case SideAWins:
		return "side-a-wins"
	case SideBWins:
		return "side-b-wins"
	case Draw:
		return "draw"
	default:
		return "in-progress"
	}
}

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool {
	return o != InProgress
}

// Position is the full board, indexed row-major from the top-left corner.
type Position [9]Cell

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the side holding a complete line, or Empty.
func (p Position) Winner() Cell {
	for _, l := range lines {
		c := p[l[0]]
		if c != Empty && c == p[l[1]] && c == p[l[2]] {
			return c
		}
	}
	return Empty
}

// Full reports whether every cell is taken.
func (p Position) Full() bool {
	for _, c := range p {
		if c == Empty {
			return false
		}
	}
	return true
}

// Outcome derives the game status from the board.
func (p Position) Outcome() Outcome {
	switch p.Winner() {
	case SideA:
		return SideAWins
	case SideB:
		return SideBWins
	}
	if p.Full() {
		return Draw
	}
	return InProgress
}

// Legal reports whether m targets an empty cell on the board.
func (p Position) Legal(m Move) bool {
	return m >= 0 && int(m) < len(p) && p[m] == Empty
}

// Apply returns a copy of p with side placed at m. The caller checks Legal.
func (p Position) Apply(m Move, side Side) Position {
	p[m] = side
	return p
}

// EmptyCells lists the open cells in index order.
func (p Position) EmptyCells() []Move {
	moves := make([]Move, 0, len(p))
	for i, c := range p {
		if c == Empty {
			moves = append(moves, Move(i))
		}
	}
	return moves
}

// Count returns how many cells hold side.
func (p Position) Count(side Cell) int {
	n := 0
	for _, c := range p {
		if c == side {
			n++
		}
	}
	return n
}

// ToMove infers the side to move assuming SideA opened the game.
func (p Position) ToMove() Side {
	if p.Count(SideA) > p.Count(SideB) {
		return SideB
	}
	return SideA
}

// Reachable reports whether the piece counts fit alternating play with SideA
// moving first.
func (p Position) Reachable() bool {
	d := p.Count(SideA) - p.Count(SideB)
	return d == 0 || d == 1
}

// String renders the board as nine marks, e.g. "XX.OO....".
func (p Position) String() string {
	var b strings.Builder
	for _, c := range p {
		b.WriteString(c.Mark())
	}
	return b.String()
}

// ParsePosition reads the nine-mark form produced by String. X/A map to
// SideA, O/B to SideB and '.', '_', '-' or ' ' to Empty.
func ParsePosition(s string) (Position, error) {
	var p Position
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "")
	if len([]rune(s)) != len(p) {
		return p, fmt.Errorf("game: position needs 9 cells, got %d", len([]rune(s)))
	}
	for i, r := range []rune(s) {
		switch r {
		case 'X', 'x', 'A', 'a':
			p[i] = SideA
		case 'O', 'o', 'B', 'b':
			p[i] = SideB
		case '.', '_', '-', ' ':
			p[i] = Empty
		default:
			return p, fmt.Errorf("game: invalid cell %q at %d", r, i)
		}
	}
	return p, nil
}
