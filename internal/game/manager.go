package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/gridmind/internal/engine"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrCellTaken     = errors.New("cell already taken")
	ErrGameOver      = errors.New("game is over")
	ErrInvalidCell   = errors.New("cell out of range")
)

type Match struct {
	ID         string
	Token      string
	CreatedAt  time.Time
	Difficulty engine.Difficulty
	Human      engine.Mark
	Engine     engine.Mark

	board     engine.Board
	turn      engine.Mark
	moves     []Move
	status    Status
	updatedAt time.Time
	rng       *rand.Rand
	onFinish  func(State)

	mu sync.Mutex
}

type Manager struct {
	mu       sync.RWMutex
	matches  map[string]*Match
	onFinish func(State)
}

func NewManager() *Manager {
	return &Manager{matches: make(map[string]*Match)}
}

// OnFinish registers fn to run once for every match that ends.
func (m *Manager) OnFinish(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = fn
}

func (m *Manager) CreateMatch(cfg MatchConfig) (*Match, error) {
	d, err := engine.ParseDifficulty(cfg.Difficulty)
	if err != nil {
		return nil, err
	}
	human := engine.X
	if cfg.Human != "" {
		if human, err = engine.ParseMark(cfg.Human); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	id := randomCode(6)
	for m.matches[id] != nil {
		id = randomCode(6)
	}
	now := time.Now().UTC()
	mt := &Match{
		ID:         id,
		Token:      uuid.NewString(),
		CreatedAt:  now,
		Difficulty: d,
		Human:      human,
		Engine:     engine.Opponent(human),
		turn:       human,
		status:     StatusPlaying,
		updatedAt:  now,
		rng:        rand.New(rand.NewSource(now.UnixNano())),
		onFinish:   m.onFinish,
	}
	m.matches[id] = mt
	m.mu.Unlock()

	if cfg.EngineFirst {
		mt.mu.Lock()
		mt.turn = mt.Engine
		err := mt.engineMoveLocked()
		mt.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return mt, nil
}

func (m *Manager) Get(id string) (*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt := m.matches[id]
	if mt == nil {
		return nil, ErrMatchNotFound
	}
	return mt, nil
}

// Resume returns the match only if token belongs to it.
func (m *Manager) Resume(id, token string) (*Match, error) {
	mt, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if mt.Token != token {
		return nil, ErrUnauthorized
	}
	return mt, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches)
}

// Prune drops matches untouched for longer than maxAge and returns how many
// were removed.
func (m *Manager) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, mt := range m.matches {
		mt.mu.Lock()
		stale := mt.updatedAt.Before(cutoff)
		mt.mu.Unlock()
		if stale {
			delete(m.matches, id)
			removed++
		}
	}
	return removed
}

// Play applies the human's move and, if the game goes on, the engine's reply.
func (mt *Match) Play(token string, cell int) (State, error) {
	mt.mu.Lock()
	if token != mt.Token {
		mt.mu.Unlock()
		return State{}, ErrUnauthorized
	}
	if mt.status != StatusPlaying {
		mt.mu.Unlock()
		return State{}, ErrGameOver
	}
	if mt.turn != mt.Human {
		mt.mu.Unlock()
		return State{}, ErrNotYourTurn
	}
	if cell < 0 || cell > 8 {
		mt.mu.Unlock()
		return State{}, ErrInvalidCell
	}
	if mt.board[cell] != engine.Empty {
		mt.mu.Unlock()
		return State{}, ErrCellTaken
	}

	mt.applyLocked(cell, false)
	var err error
	if mt.status == StatusPlaying {
		err = mt.engineMoveLocked()
	}
	st := mt.stateLocked()
	mt.mu.Unlock()

	if err != nil {
		return st, err
	}
	if st.Finished() && mt.onFinish != nil {
		mt.onFinish(st)
	}
	return st, nil
}

// Hint suggests the best cell for the human's next move.
func (mt *Match) Hint(token string) (int, bool, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if token != mt.Token {
		return engine.NoMove, false, ErrUnauthorized
	}
	cell, ok := engine.Hint(mt.board, mt.Human, mt.turn)
	return cell, ok, nil
}

func (mt *Match) State() State {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.stateLocked()
}

func (mt *Match) engineMoveLocked() error {
	cell, err := engine.SelectMove(mt.board, mt.Difficulty, mt.Engine, mt.rng)
	if err != nil {
		return fmt.Errorf("engine move: %w", err)
	}
	mt.applyLocked(cell, true)
	return nil
}

func (mt *Match) applyLocked(cell int, byEngine bool) {
	mark := mt.turn
	mt.board[cell] = mark
	now := time.Now().UTC()
	mt.moves = append(mt.moves, Move{Cell: cell, Mark: mark.String(), ByEngine: byEngine, At: now})
	mt.updatedAt = now

	switch w := engine.Winner(mt.board); {
	case w == mt.Human:
		mt.status = StatusWon
	case w == mt.Engine:
		mt.status = StatusLost
	case engine.IsFull(mt.board):
		mt.status = StatusDraw
	default:
		mt.turn = engine.Opponent(mark)
		return
	}
	mt.turn = engine.Empty
}

func (mt *Match) stateLocked() State {
	st := State{
		ID:         mt.ID,
		Board:      mt.board.String(),
		Human:      mt.Human.String(),
		Engine:     mt.Engine.String(),
		Difficulty: mt.Difficulty.String(),
		Status:     mt.status,
		Moves:      append([]Move(nil), mt.moves...),
		CreatedAt:  mt.CreatedAt,
	}
	if st.Moves == nil {
		st.Moves = []Move{}
	}
	if mt.turn != engine.Empty {
		st.Turn = mt.turn.String()
	}
	if w := engine.Winner(mt.board); w != engine.Empty {
		st.Winner = w.String()
	}
	return st
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
