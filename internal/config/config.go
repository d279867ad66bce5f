package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/store"
	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Governor  governor.Config `mapstructure:"governor"`
	Storage   store.Config    `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Export    ExportConfig    `mapstructure:"export"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type AIConfig struct {
	Provider      string `mapstructure:"provider"`
	OpenAIKey     string `mapstructure:"openai_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OllamaHost    string `mapstructure:"ollama_host"`
	TextModel     string `mapstructure:"text_model"`
	ImageModel    string `mapstructure:"image_model"`
	VideoModel    string `mapstructure:"video_model"`
	SystemPrompt  string `mapstructure:"system_prompt"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type ExportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// GovernorConfig merges the model settings into the governor section.
func (c Config) GovernorConfig() governor.Config {
	g := c.Governor
	g.TextModel = c.AI.TextModel
	g.ImageModel = c.AI.ImageModel
	g.VideoModel = c.AI.VideoModel
	g.SystemPrompt = c.AI.SystemPrompt
	return g
}

// legacy env names still honoured next to the GRIDMIND_ prefixed ones
var aliases = map[string]string{
	"server.port":        "PORT",
	"ai.provider":        "DEFAULT_PROVIDER",
	"ai.text_model":      "DEFAULT_MODEL",
	"ai.system_prompt":   "SYSTEM_PROMPT",
	"ai.openai_key":      "OPENAI_API_KEY",
	"ai.openai_base_url": "OPENAI_BASE_URL",
	"ai.ollama_host":     "OLLAMA_HOST",
	"export.enabled":     "EXPORT_ENABLED",
	"export.file":        "EXPORT_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ai.provider", ProviderOpenAI)
	v.SetDefault("ai.openai_key", "")
	v.SetDefault("ai.openai_base_url", "")
	v.SetDefault("ai.ollama_host", "http://localhost:11434")
	v.SetDefault("ai.text_model", "gpt-4o-mini")
	v.SetDefault("ai.image_model", "gpt-image-1")
	v.SetDefault("ai.video_model", "sora-2")
	v.SetDefault("ai.system_prompt", "You are the witty host of a tic-tac-toe arena. Answer in one or two short sentences.")

	g := governor.DefaultConfig()
	v.SetDefault("governor.min_interval", g.MinInterval)
	v.SetDefault("governor.lock_duration", g.LockDuration)
	v.SetDefault("governor.max_retries", g.MaxRetries)
	v.SetDefault("governor.initial_backoff", g.InitialBackoff)
	v.SetDefault("governor.poll_interval", g.PollInterval)
	v.SetDefault("governor.video_timeout", g.VideoTimeout)
	v.SetDefault("governor.greeting_prompt", g.GreetingPrompt)

	v.SetDefault("storage.driver", store.DriverBolt)
	v.SetDefault("storage.path", filepath.Join("data", "gridmind.db"))
	v.SetDefault("storage.dsn", "")

	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("export.enabled", true)
	v.SetDefault("export.file", "./gridmind-results.txt")
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gridmind")
}

// Load reads .env, an optional config.yaml and the environment, in that
// order of increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(configDir())
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("GRIDMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range aliases {
		env := "GRIDMIND_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, legacy); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server.mode %q", c.Server.Mode)
	}
	if c.Governor.MaxRetries < 0 {
		return fmt.Errorf("governor.max_retries must not be negative")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}
