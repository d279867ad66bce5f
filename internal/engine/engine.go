package engine

import (
	"math"
	"math/rand"
	"time"
)

const winScore = 10

// SelectMove returns the cell toMove should play on b.
//
// Easy picks uniformly among empty cells. Medium wins if it can, blocks if it
// must, and otherwise plays like Easy; the first two tiers take the first
// qualifying line in row, column, diagonal order. Hard runs a full minimax and
// returns the lowest index among the best scoring cells.
//
// rng drives Easy and the Medium fallback. A nil rng uses a time seeded source.
func SelectMove(b Board, d Difficulty, toMove Mark, rng *rand.Rand) (int, error) {
	if toMove != X && toMove != O {
		return NoMove, ErrInvalidMark
	}
	if IsFull(b) {
		return NoMove, ErrNoEmptyCells
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	switch d {
	case Easy:
		return randomCell(b, rng), nil
	case Medium:
		if i := completingCell(b, toMove); i != NoMove {
			return i, nil
		}
		if i := completingCell(b, Opponent(toMove)); i != NoMove {
			return i, nil
		}
		return randomCell(b, rng), nil
	default:
		return bestMove(b, toMove), nil
	}
}

// Hint recommends a move for the human. It always searches at full strength.
// ok is false when it is not the human's turn or the game is already over.
func Hint(b Board, human, turn Mark) (move int, ok bool) {
	if human != X && human != O {
		return NoMove, false
	}
	if turn != human || IsTerminal(b) {
		return NoMove, false
	}
	return bestMove(b, human), true
}

func randomCell(b Board, rng *rand.Rand) int {
	cells := EmptyCells(b)
	return cells[rng.Intn(len(cells))]
}

// completingCell finds a line where m holds two cells and the third is empty.
func completingCell(b Board, m Mark) int {
	for _, l := range lines {
		owned, free := 0, NoMove
		for _, i := range l {
			switch b[i] {
			case m:
				owned++
			case Empty:
				free = i
			}
		}
		if owned == 2 && free != NoMove {
			return free
		}
	}
	return NoMove
}

func bestMove(b Board, me Mark) int {
	best, move := math.MinInt, NoMove
	for i := range b {
		if b[i] != Empty {
			continue
		}
		b[i] = me
		score := minimax(&b, 0, false, me)
		b[i] = Empty
		// strict comparison keeps the lowest index on ties
		if score > best {
			best, move = score, i
		}
	}
	return move
}

// minimax scores b from me's point of view. A win scores winScore-depth, a loss
// depth-winScore, so quick wins and slow losses are preferred.
func minimax(b *Board, depth int, maximizing bool, me Mark) int {
	switch w := Winner(*b); {
	case w == me:
		return winScore - depth
	case w != Empty:
		return depth - winScore
	case IsFull(*b):
		return 0
	}

	mark := me
	best := math.MinInt
	if !maximizing {
		mark = Opponent(me)
		best = math.MaxInt
	}
	for i := range b {
		if b[i] != Empty {
			continue
		}
		b[i] = mark
		score := minimax(b, depth+1, !maximizing, me)
		b[i] = Empty
		if maximizing {
			best = max(best, score)
		} else {
			best = min(best, score)
		}
	}
	return best
}
