package governor

import (
	"context"
	"strings"
	"time"
)

var fallbackGreetings = []string{
	"Welcome! Pull up a chair and challenge the grid.",
	"Hello there, care for a quick game?",
	"Good to see you. The board is ready when you are.",
	"Hi! Think you can beat the machine today?",
	"Welcome back to the grid. Your move.",
}

// Greeting never fails: any backend error yields a canned line.
func (g *Governor) Greeting(ctx context.Context) string {
	text, err := g.Text(ctx, g.cfg.GreetingPrompt)
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if err != nil {
		g.log.Info().Err(err).Msg("using fallback greeting")
	}
	return FallbackGreeting(g.clock.Now())
}

func FallbackGreeting(t time.Time) string {
	return fallbackGreetings[t.Hour()%len(fallbackGreetings)]
}
