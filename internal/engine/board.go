// Package engine picks tic-tac-toe moves. It is pure: no I/O, no shared state.
package engine

import (
	"errors"
	"strings"

	"github.com/samber/lo"
)

// Mark is the content of a cell.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

// NoMove is returned when there is nothing to play.
const NoMove = -1

var (
	ErrInvalidBoard = errors.New("invalid board")
	ErrInvalidMark  = errors.New("invalid mark")
	ErrNoEmptyCells = errors.New("board has no empty cells")
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return "_"
	}
}

// ParseMark accepts "X" or "O" in either case.
func ParseMark(s string) (Mark, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return X, nil
	case "O":
		return O, nil
	}
	return Empty, ErrInvalidMark
}

// Opponent returns the other player's mark. Empty has no opponent.
func Opponent(m Mark) Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

// Board is a 3x3 grid in row-major order.
type Board [9]Mark

// lines is the enumeration order used everywhere: rows, then columns, then diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// ParseBoard reads the compact 9 character form, e.g. "OO_XX____".
// '_', '.', '-' and ' ' are empty cells.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != len(b) {
		return b, ErrInvalidBoard
	}
	for i, r := range strings.ToUpper(s) {
		switch r {
		case 'X':
			b[i] = X
		case 'O':
			b[i] = O
		case '_', '.', '-', ' ':
			b[i] = Empty
		default:
			return Board{}, ErrInvalidBoard
		}
	}
	return b, nil
}

func (b Board) String() string {
	var sb strings.Builder
	for _, m := range b {
		sb.WriteString(m.String())
	}
	return sb.String()
}

// Winner returns the mark holding a complete line, or Empty.
func Winner(b Board) Mark {
	for _, l := range lines {
		if m := b[l[0]]; m != Empty && m == b[l[1]] && m == b[l[2]] {
			return m
		}
	}
	return Empty
}

// EmptyCells lists the free cell indexes in ascending order.
func EmptyCells(b Board) []int {
	return lo.Filter(lo.Range(len(b)), func(i int, _ int) bool {
		return b[i] == Empty
	})
}

// IsFull reports whether no cell is Empty.
func IsFull(b Board) bool {
	return !lo.Contains(b[:], Empty)
}

func IsTerminal(b Board) bool {
	return Winner(b) != Empty || IsFull(b)
}

// Count returns how many cells hold m.
func Count(b Board, m Mark) int {
	return lo.Count(b[:], m)
}
