package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ReadStatusError turns a non-2xx response into a *StatusError. It reads at
// most 4KiB of the body and understands both the OpenAI and Google error shapes.
func ReadStatusError(provider string, resp *http.Response) *StatusError {
	e := &StatusError{Provider: provider, Code: resp.StatusCode}
	e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Status  string `json:"status"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err == nil && out.Error.Message != "" {
		e.Message = out.Error.Message
		e.Status = out.Error.Status
		if e.Status == "" {
			e.Status = out.Error.Type
		}
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	return e
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
