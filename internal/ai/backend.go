package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend is a remote generative-AI service.
type Backend interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	GenerateImage(ctx context.Context, req ImageRequest) (Media, error)
	// StartVideo submits a long-running generation and returns its handle.
	StartVideo(ctx context.Context, req VideoRequest) (Operation, error)
	PollVideo(ctx context.Context, op Operation) (Operation, error)
	FetchVideo(ctx context.Context, op Operation) (Media, error)
}

var (
	// ErrUnsupported is returned by backends that lack an operation.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrTransient marks failures worth retrying (timeouts, dropped connections).
	ErrTransient = errors.New("transient backend failure")

	ErrMissingKey = errors.New("missing api key")
)

type TextRequest struct {
	Model  string
	System string
	Prompt string
}

type ImageRequest struct {
	Model       string
	Prompt      string
	BaseImage   *Media
	AspectRatio string // e.g. "1:1", "16:9"
}

type VideoRequest struct {
	Model     string
	Prompt    string
	BaseImage *Media
}

// Media is generated (or reference) binary content.
type Media struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Operation is a handle on a long-running generation.
type Operation struct {
	ID   string `json:"id"`
	Done bool   `json:"done"`
	Err  string `json:"error,omitempty"`
}

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider   string
	Code       int
	Status     string // provider status string, e.g. RESOURCE_EXHAUSTED
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s status %d", e.Provider, e.Code)
	if e.Status != "" {
		msg += " " + e.Status
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}
