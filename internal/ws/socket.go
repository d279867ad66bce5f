package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/engine"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/rs/zerolog"
)

type ConnCtx struct {
	MatchID string
	Token   string
}

// AIClient is the part of the governor the socket surface uses.
type AIClient interface {
	Text(ctx context.Context, prompt string) (string, error)
	Greeting(ctx context.Context) string
}

type broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

type Server struct {
	matches *game.Manager
	ai      AIClient
	log     zerolog.Logger
	rooms   broadcaster
}

func New(matches *game.Manager, client AIClient, log zerolog.Logger) *Server {
	return &Server{matches: matches, ai: client, log: log}
}

type createPayload struct {
	Config game.MatchConfig `json:"config"`
}

type resumePayload struct {
	MatchID string `json:"matchId"`
	Token   string `json:"token"`
}

type movePayload struct {
	Cell int `json:"cell"`
}

type textPayload struct {
	Prompt string `json:"prompt"`
}

// Mount attaches the Socket.IO server with its handlers to r.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)
	srv.rooms = io

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		srv.log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})
	io.OnEvent("/", "match:create", srv.onCreate)
	io.OnEvent("/", "match:resume", srv.onResume)
	io.OnEvent("/", "match:move", srv.onMove)
	io.OnEvent("/", "match:hint", srv.onHint)
	io.OnEvent("/", "ai:greeting", srv.onGreeting)
	io.OnEvent("/", "ai:text", srv.onText)

	io.OnError("/", func(s socketio.Conn, e error) {
		srv.log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			srv.log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) onCreate(s socketio.Conn, payload createPayload) map[string]any {
	mt, err := srv.matches.CreateMatch(payload.Config)
	if err != nil {
		return srv.err(s, err)
	}
	s.SetContext(&ConnCtx{MatchID: mt.ID, Token: mt.Token})
	s.Join(mt.ID)
	st := mt.State()
	srv.log.Info().Str("sid", s.ID()).Str("match", mt.ID).Str("difficulty", st.Difficulty).Msg("match:create")
	srv.broadcast(mt.ID, st)
	return map[string]any{"matchId": mt.ID, "token": mt.Token, "state": st}
}

func (srv *Server) onResume(s socketio.Conn, payload resumePayload) map[string]any {
	mt, err := srv.matches.Resume(payload.MatchID, payload.Token)
	if err != nil {
		return srv.err(s, err)
	}
	s.SetContext(&ConnCtx{MatchID: mt.ID, Token: mt.Token})
	s.Join(mt.ID)
	srv.log.Info().Str("sid", s.ID()).Str("match", mt.ID).Msg("match:resume")
	// send state to only this connection
	s.Emit("match:state", mt.State())
	return map[string]any{"ok": true}
}

func (srv *Server) onMove(s socketio.Conn, payload movePayload) map[string]any {
	ctx, _ := s.Context().(*ConnCtx)
	if ctx == nil || ctx.MatchID == "" {
		return srv.err(s, game.ErrMatchNotFound)
	}
	mt, err := srv.matches.Get(ctx.MatchID)
	if err != nil {
		return srv.err(s, err)
	}
	st, err := mt.Play(ctx.Token, payload.Cell)
	if err != nil {
		return srv.err(s, err)
	}
	srv.log.Info().Str("match", mt.ID).Int("cell", payload.Cell).Str("status", string(st.Status)).Msg("match:move")
	srv.broadcast(mt.ID, st)
	return map[string]any{"ok": true}
}

func (srv *Server) onHint(s socketio.Conn) map[string]any {
	ctx, _ := s.Context().(*ConnCtx)
	if ctx == nil || ctx.MatchID == "" {
		return srv.err(s, game.ErrMatchNotFound)
	}
	mt, err := srv.matches.Get(ctx.MatchID)
	if err != nil {
		return srv.err(s, err)
	}
	move, ok, err := mt.Hint(ctx.Token)
	if err != nil {
		return srv.err(s, err)
	}
	return map[string]any{"move": move, "ok": ok}
}

// onGreeting replies asynchronously; the greeting may wait on the throttle.
func (srv *Server) onGreeting(s socketio.Conn) map[string]any {
	go func() {
		s.Emit("ai:greeting", map[string]any{"greeting": srv.ai.Greeting(context.Background())})
	}()
	return map[string]any{"ok": true}
}

func (srv *Server) onText(s socketio.Conn, payload textPayload) map[string]any {
	if payload.Prompt == "" {
		return srv.err(s, errPromptRequired)
	}
	go func() {
		text, err := srv.ai.Text(context.Background(), payload.Prompt)
		if err != nil {
			s.Emit("ai:text", errorPayload(err))
			return
		}
		s.Emit("ai:text", map[string]any{"text": text})
	}()
	return map[string]any{"ok": true}
}

func (srv *Server) broadcast(matchID string, st game.State) {
	if srv.rooms != nil {
		srv.rooms.BroadcastToRoom("/", matchID, "match:state", st)
	}
}

var errPromptRequired = errors.New("prompt required")

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	p := errorPayload(err)
	s.Emit("error", p)
	return p
}

func errorPayload(err error) map[string]any {
	p := map[string]any{"error": errorCode(err), "message": err.Error()}
	var qe *governor.QuotaError
	if errors.As(err, &qe) {
		p["retryAfterSeconds"] = qe.RetryAfterSeconds()
	}
	return p
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, governor.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ai.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, governor.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, governor.ErrTransientFailure):
		return "unavailable"
	case errors.Is(err, game.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, game.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, game.ErrNotYourTurn), errors.Is(err, game.ErrCellTaken),
		errors.Is(err, game.ErrGameOver), errors.Is(err, game.ErrInvalidCell),
		errors.Is(err, engine.ErrInvalidMark), errors.Is(err, engine.ErrInvalidDifficulty),
		errors.Is(err, errPromptRequired):
		return "bad_request"
	}
	return "try_again"
}
