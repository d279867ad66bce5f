package governor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kiliankoe/gridmind/internal/ai"
)

var (
	// ErrQuotaExceeded matches every *QuotaError.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTransientFailure is returned once retries are exhausted.
	ErrTransientFailure = errors.New("backend unavailable after retries")

	// ErrInvalidResponse means the backend succeeded but sent nothing usable.
	ErrInvalidResponse = errors.New("backend returned no usable payload")

	ErrUnexpected = errors.New("unexpected backend failure")
)

// QuotaError is returned while the cool-down lock is active.
type QuotaError struct {
	Remaining time.Duration
	Err       error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded, retry in %ds", e.RetryAfterSeconds())
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

func (e *QuotaError) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds the remaining lock up to whole seconds.
func (e *QuotaError) RetryAfterSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// Class is the retry policy bucket of a backend error.
type Class int

const (
	ClassUnexpected Class = iota
	ClassTransient
	ClassQuota
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassQuota:
		return "quota"
	case ClassCanceled:
		return "canceled"
	}
	return "unexpected"
}

// Classify decides how the governor reacts to a backend error.
func Classify(err error) Class {
	if err == nil {
		return ClassUnexpected
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return ClassQuota
	}

	var se *ai.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests || isQuotaMessage(se.Status) || isQuotaMessage(se.Message) {
			return ClassQuota
		}
		switch se.Code {
		case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return ClassTransient
		}
		return ClassUnexpected
	}

	if msg := err.Error(); isQuotaMessage(msg) || quotaStatus.MatchString(msg) {
		return ClassQuota
	}
	if errors.Is(err, ai.ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	// Only timeouts and socket-level failures; a *url.Error for a bad
	// scheme or URL is permanent.
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return ClassTransient
	}
	return ClassUnexpected
}

// quotaStatus matches a flattened "status 429" style message.
var quotaStatus = regexp.MustCompile(`(?i)\b(status|http|code)[ :=]*429\b`)

func isQuotaMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "resource_exhausted") ||
		strings.Contains(s, "quota") ||
		strings.Contains(s, "rate limit")
}

// retryAfter extracts a backend-suggested cool-down, if any.
func retryAfter(err error) time.Duration {
	var se *ai.StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
