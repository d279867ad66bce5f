package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/engine"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/samber/lo"
)

var errBadRequest = errors.New("bad request")

func badRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

// sideToMove infers whose turn it is when the client leaves it out.
func sideToMove(b engine.Board, s string) (engine.Mark, error) {
	if s != "" {
		return engine.ParseMark(s)
	}
	return lo.Ternary(engine.Count(b, engine.X) > engine.Count(b, engine.O), engine.O, engine.X), nil
}

type engineMoveRequest struct {
	Board      string `json:"board" binding:"required"`
	Difficulty string `json:"difficulty"`
	Mark       string `json:"mark"`
}

func (s *Server) engineMove(c *gin.Context) {
	var req engineMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	b, err := engine.ParseBoard(req.Board)
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := engine.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(c, err)
		return
	}
	mark, err := sideToMove(b, req.Mark)
	if err != nil {
		writeError(c, err)
		return
	}
	move, err := engine.SelectMove(b, d, mark, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"move": move, "mark": mark.String()})
}

type engineHintRequest struct {
	Board string `json:"board" binding:"required"`
	Human string `json:"human" binding:"required"`
	Turn  string `json:"turn"`
}

func (s *Server) engineHint(c *gin.Context) {
	var req engineHintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	b, err := engine.ParseBoard(req.Board)
	if err != nil {
		writeError(c, err)
		return
	}
	human, err := engine.ParseMark(req.Human)
	if err != nil {
		writeError(c, err)
		return
	}
	turn, err := sideToMove(b, req.Turn)
	if err != nil {
		writeError(c, err)
		return
	}
	move, ok := engine.Hint(b, human, turn)
	c.JSON(http.StatusOK, gin.H{"move": move, "ok": ok})
}

func (s *Server) createMatch(c *gin.Context) {
	var cfg game.MatchConfig
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			badRequest(c, "invalid_request")
			return
		}
	}
	mt, err := s.matches.CreateMatch(cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"matchId": mt.ID, "token": mt.Token, "state": mt.State()})
}

func (s *Server) getMatch(c *gin.Context) {
	mt, err := s.matches.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mt.State())
}

type playRequest struct {
	Token string `json:"token" binding:"required"`
	Cell  *int   `json:"cell" binding:"required"`
}

func (s *Server) playMatch(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	mt, err := s.matches.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := mt.Play(req.Token, *req.Cell)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) hintMatch(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request")
		return
	}
	mt, err := s.matches.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	move, ok, err := mt.Hint(req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"move": move, "ok": ok})
}

type textRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) aiText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "prompt_required")
		return
	}
	text, err := s.ai.Text(c.Request.Context(), req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

type mediaRequest struct {
	Prompt      string    `json:"prompt"`
	BaseImage   *ai.Media `json:"baseImage"`
	AspectRatio string    `json:"aspectRatio"`
}

func (r mediaRequest) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errBadRequest
	}
	if r.BaseImage != nil && len(r.BaseImage.Data) == 0 {
		return errBadRequest
	}
	return nil
}

func (s *Server) aiImage(c *gin.Context) {
	var req mediaRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.validate() != nil {
		badRequest(c, "prompt_required")
		return
	}
	media, err := s.ai.Image(c.Request.Context(), governor.ImageRequest{
		Prompt:      req.Prompt,
		BaseImage:   req.BaseImage,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, media)
}

func (s *Server) aiVideo(c *gin.Context) {
	var req mediaRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.validate() != nil {
		badRequest(c, "prompt_required")
		return
	}
	media, err := s.ai.Video(c.Request.Context(), governor.VideoRequest{Prompt: req.Prompt, BaseImage: req.BaseImage})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, media)
}

func (s *Server) aiGreeting(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"greeting": s.ai.Greeting(c.Request.Context())})
}

func (s *Server) aiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ai.Status())
}
