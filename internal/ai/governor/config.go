package governor

import (
	"time"

	"github.com/kiliankoe/gridmind/internal/store"
	"github.com/rs/zerolog"
)

type Config struct {
	MinInterval    time.Duration `mapstructure:"min_interval"`
	LockDuration   time.Duration `mapstructure:"lock_duration"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	VideoTimeout   time.Duration `mapstructure:"video_timeout"`

	TextModel      string `mapstructure:"-"`
	ImageModel     string `mapstructure:"-"`
	VideoModel     string `mapstructure:"-"`
	SystemPrompt   string `mapstructure:"-"`
	GreetingPrompt string `mapstructure:"greeting_prompt"`
}

func DefaultConfig() Config {
	return Config{
		MinInterval:    5 * time.Second,
		LockDuration:   120 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		PollInterval:   10 * time.Second,
		VideoTimeout:   10 * time.Minute,
		GreetingPrompt: "Greet a visitor to a developer portfolio in one short, friendly sentence.",
	}
}

type Option func(*Governor)

// WithConfig replaces the defaults. Zero durations keep their default, except
// MinInterval where zero disables throttling.
func WithConfig(cfg Config) Option {
	return func(g *Governor) {
		def := DefaultConfig()
		if cfg.LockDuration <= 0 {
			cfg.LockDuration = def.LockDuration
		}
		if cfg.InitialBackoff <= 0 {
			cfg.InitialBackoff = def.InitialBackoff
		}
		if cfg.PollInterval <= 0 {
			cfg.PollInterval = def.PollInterval
		}
		if cfg.VideoTimeout <= 0 {
			cfg.VideoTimeout = def.VideoTimeout
		}
		if cfg.MinInterval < 0 {
			cfg.MinInterval = 0
		}
		if cfg.MaxRetries < 0 {
			cfg.MaxRetries = 0
		}
		if cfg.GreetingPrompt == "" {
			cfg.GreetingPrompt = def.GreetingPrompt
		}
		g.cfg = cfg
	}
}

func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Governor) { g.log = l }
}

// WithSessionStore sets the tier for text results.
func WithSessionStore(s store.Store) Option {
	return func(g *Governor) { g.session = s }
}

// WithPersistentStore sets the tier for media results and the quota lock.
func WithPersistentStore(s store.Store) Option {
	return func(g *Governor) { g.persistent = s }
}
