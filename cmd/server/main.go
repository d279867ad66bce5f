package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/ai/ollama"
	"github.com/kiliankoe/gridmind/internal/ai/openai"
	"github.com/kiliankoe/gridmind/internal/api"
	"github.com/kiliankoe/gridmind/internal/config"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/kiliankoe/gridmind/internal/store"
	"github.com/kiliankoe/gridmind/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "v0.3.0-dev"

const (
	cleanupEvery = 10 * time.Minute
	matchTTL     = 6 * time.Hour
	limiterTTL   = time.Hour
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides config and PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Gridmind - tic-tac-toe engine with a rate-governed AI host

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Configuration is read from .env, ./config.yaml or ~/.config/gridmind/config.yaml,
and GRIDMIND_* environment variables (e.g. GRIDMIND_AI_PROVIDER, GRIDMIND_STORAGE_DRIVER).

Environment Variables:
  PORT                Port to listen on (default: 8080)
  DEFAULT_PROVIDER    AI provider: "openai" or "ollama" (default: openai)
  DEFAULT_MODEL       Text model to use (default: gpt-4o-mini)
  OPENAI_API_KEY      OpenAI API key (required for OpenAI provider)
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)
  OLLAMA_HOST         Ollama host URL (default: http://localhost:11434)
  EXPORT_ENABLED      Export finished matches to file (default: true)
  EXPORT_FILE         Path to export match results (default: ./gridmind-results.txt)
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Gridmind %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Server.Port = *portFlag
	}
	setupLogger(cfg.Log)

	session := store.NewMemory()
	persistent, err := store.Open(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open store")
	}
	defer persistent.Close()

	gov := governor.New(newBackend(cfg.AI),
		governor.WithConfig(cfg.GovernorConfig()),
		governor.WithLogger(log.With().Str("component", "governor").Logger()),
		governor.WithSessionStore(session),
		governor.WithPersistentStore(persistent),
	)

	matches := game.NewManager()
	if cfg.Export.Enabled {
		matches.OnFinish(func(st game.State) {
			if err := game.ExportMatch(st, cfg.Export.File); err != nil {
				log.Error().Err(err).Str("match", st.ID).Msg("failed to export match")
				return
			}
			log.Info().Str("match", st.ID).Str("file", cfg.Export.File).Msg("exported match")
		})
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	httpAPI := api.New(matches, gov, api.Options{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Logger:         log.Logger,
	})
	httpAPI.Register(r)

	sock := ws.New(matches, gov, log.With().Str("component", "ws").Logger())
	io := sock.Mount(r)
	defer io.Close()

	stop := make(chan struct{})
	go cleanup(matches, httpAPI, stop)
	defer close(stop)

	serve(r, cfg.Server.Port)
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)
}

func newBackend(cfg config.AIConfig) ai.Backend {
	switch cfg.Provider {
	case config.ProviderOllama:
		log.Info().Str("host", cfg.OllamaHost).Msg("using ollama backend")
		return ollama.New(cfg.OllamaHost)
	default:
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set; AI requests will fail and greetings fall back")
		}
		return openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	}
}

func cleanup(matches *game.Manager, httpAPI *api.Server, stop <-chan struct{}) {
	t := time.NewTicker(cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n := matches.Prune(matchTTL); n > 0 {
				log.Info().Int("removed", n).Msg("pruned idle matches")
			}
			if n := httpAPI.CleanupLimiters(limiterTTL); n > 0 {
				log.Debug().Int("removed", n).Msg("cleaned up stale rate limiters")
			}
		case <-stop:
			return
		}
	}
}

func serve(handler http.Handler, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		close(idleConnsClosed)
	}()

	log.Info().Str("port", port).Msg("listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	<-idleConnsClosed
}
