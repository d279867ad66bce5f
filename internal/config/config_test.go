package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Server.Port)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Errorf("expected openai provider, got %q", cfg.AI.Provider)
	}
	if cfg.Governor.MinInterval != 5*time.Second || cfg.Governor.LockDuration != 120*time.Second {
		t.Errorf("unexpected governor defaults %+v", cfg.Governor)
	}
	if cfg.Governor.MaxRetries != 3 || cfg.Governor.VideoTimeout != 10*time.Minute {
		t.Errorf("unexpected governor defaults %+v", cfg.Governor)
	}
	if cfg.Storage.Driver != "bolt" {
		t.Errorf("expected bolt storage, got %q", cfg.Storage.Driver)
	}
	if !cfg.Export.Enabled {
		t.Error("expected export to be enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GRIDMIND_GOVERNOR_MIN_INTERVAL", "2s")
	t.Setenv("GRIDMIND_STORAGE_DRIVER", "sqlite")
	t.Setenv("GRIDMIND_AI_PROVIDER", "ollama")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Errorf("expected legacy PORT to apply, got %q", cfg.Server.Port)
	}
	if cfg.AI.OpenAIKey != "sk-test" {
		t.Errorf("expected OPENAI_API_KEY to apply, got %q", cfg.AI.OpenAIKey)
	}
	if cfg.Governor.MinInterval != 2*time.Second {
		t.Errorf("expected 2s min interval, got %v", cfg.Governor.MinInterval)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.Storage.Driver)
	}
	if cfg.AI.Provider != ProviderOllama {
		t.Errorf("expected ollama, got %q", cfg.AI.Provider)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("GRIDMIND_SERVER_PORT", "4000")
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "4000" {
		t.Errorf("expected prefixed variable to win, got %q", cfg.Server.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  port: \"9090\"\ngovernor:\n  lock_duration: 5m\nratelimit:\n  rps: 2\n  burst: 4\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected 9090, got %q", cfg.Server.Port)
	}
	if cfg.Governor.LockDuration != 5*time.Minute {
		t.Errorf("expected 5m lock, got %v", cfg.Governor.LockDuration)
	}
	if cfg.RateLimit.RPS != 2 || cfg.RateLimit.Burst != 4 {
		t.Errorf("unexpected rate limit %+v", cfg.RateLimit)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("GRIDMIND_AI_PROVIDER", "gemini")
	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestGovernorConfigCarriesModels(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	g := cfg.GovernorConfig()
	if g.TextModel != cfg.AI.TextModel || g.VideoModel != cfg.AI.VideoModel || g.SystemPrompt != cfg.AI.SystemPrompt {
		t.Fatalf("models not carried over: %+v", g)
	}
}
