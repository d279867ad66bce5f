package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/gridmind/internal/ai"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/engine"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/rs/zerolog"
)

// statusClientClosed is logged when the caller went away mid-request.
const statusClientClosed = 499

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	log := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	if status == statusClientClosed {
		c.AbortWithStatus(status)
		return
	}
	body := gin.H{"error": code}
	var qe *governor.QuotaError
	if errors.As(err, &qe) {
		secs := qe.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retryAfterSeconds"] = secs
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, governor.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, ai.ErrUnsupported):
		return http.StatusNotImplemented, "unsupported"
	case errors.Is(err, governor.ErrInvalidResponse):
		return http.StatusBadGateway, "invalid_response"
	case errors.Is(err, governor.ErrTransientFailure):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled):
		return statusClientClosed, "canceled"

	case errors.Is(err, game.ErrMatchNotFound):
		return http.StatusNotFound, "match_not_found"
	case errors.Is(err, game.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, game.ErrNotYourTurn):
		return http.StatusConflict, "not_your_turn"
	case errors.Is(err, game.ErrCellTaken):
		return http.StatusConflict, "cell_taken"
	case errors.Is(err, game.ErrGameOver):
		return http.StatusConflict, "game_over"
	case errors.Is(err, game.ErrInvalidCell):
		return http.StatusBadRequest, "invalid_cell"

	case errors.Is(err, engine.ErrNoEmptyCells):
		return http.StatusUnprocessableEntity, "board_full"
	case errors.Is(err, engine.ErrInvalidBoard):
		return http.StatusBadRequest, "invalid_board"
	case errors.Is(err, engine.ErrInvalidMark):
		return http.StatusBadRequest, "invalid_mark"
	case errors.Is(err, engine.ErrInvalidDifficulty):
		return http.StatusBadRequest, "invalid_difficulty"
	}
	return http.StatusInternalServerError, "try_again"
}
