// Package api exposes the engine, matches and the governed AI client over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	gzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/rs/zerolog"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

// AIClient is the governed AI surface the handlers need.
type AIClient interface {
	Text(ctx context.Context, prompt string) (string, error)
	Image(ctx context.Context, req governor.ImageRequest) (ai.Media, error)
	Video(ctx context.Context, req governor.VideoRequest) (ai.Media, error)
	Greeting(ctx context.Context) string
	Status() governor.Status
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         zerolog.Logger
}

type Server struct {
	matches *game.Manager
	ai      AIClient
	limiter *clientLimiter
	log     zerolog.Logger
}

func New(matches *game.Manager, client AIClient, opts Options) *Server {
	return &Server{
		matches: matches,
		ai:      client,
		limiter: newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		log:     opts.Logger,
	}
}

// Register installs the middleware and routes on r.
func (s *Server) Register(r *gin.Engine) {
	r.Use(requestID(s.log))
	r.Use(accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))
	limit := s.limiter.middleware()

	api.POST("/engine/move", limit, s.engineMove)
	api.POST("/engine/hint", limit, s.engineHint)

	api.POST("/matches", limit, s.createMatch)
	api.GET("/matches/:id", s.getMatch)
	api.POST("/matches/:id/move", limit, s.playMatch)
	api.POST("/matches/:id/hint", limit, s.hintMatch)

	api.POST("/ai/text", limit, s.aiText)
	api.POST("/ai/image", limit, s.aiImage)
	api.POST("/ai/video", limit, s.aiVideo)
	api.GET("/ai/greeting", s.aiGreeting)
	api.GET("/ai/status", s.aiStatus)
}

// CleanupLimiters drops per-client limiters idle for longer than ttl.
func (s *Server) CleanupLimiters(ttl time.Duration) int {
	return s.limiter.cleanup(ttl)
}
