package engine

import (
	"errors"
	"strings"
)

// Difficulty selects the move policy.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

var ErrInvalidDifficulty = errors.New("invalid difficulty")

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	}
	return "unknown"
}

func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard", "":
		return Hard, nil
	}
	return Hard, ErrInvalidDifficulty
}
