package game

import (
	"time"
)

// Status is the outcome from the human's point of view.
type Status string

const (
	StatusPlaying Status = "Playing"
	StatusWon     Status = "Won"
	StatusLost    Status = "Lost"
	StatusDraw    Status = "Draw"
)

type MatchConfig struct {
	Difficulty  string `json:"difficulty"`  // easy, medium, hard
	Human       string `json:"human"`       // X or O, defaults to X
	EngineFirst bool   `json:"engineFirst"` // engine makes the opening move
}

type Move struct {
	Cell     int       `json:"cell"`
	Mark     string    `json:"mark"`
	ByEngine bool      `json:"byEngine"`
	At       time.Time `json:"at"`
}

// State is a snapshot safe to hand to clients.
type State struct {
	ID         string    `json:"matchId"`
	Board      string    `json:"board"`
	Human      string    `json:"human"`
	Engine     string    `json:"engine"`
	Turn       string    `json:"turn,omitempty"`
	Difficulty string    `json:"difficulty"`
	Status     Status    `json:"status"`
	Winner     string    `json:"winner,omitempty"`
	Moves      []Move    `json:"moves"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s State) Finished() bool { return s.Status != StatusPlaying }
