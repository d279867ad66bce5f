package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiliankoe/gridmind/internal/ai"
)

// Client talks to a local Ollama server. Ollama only generates text.
type Client struct {
	Host string
	http *http.Client
}

func New(host string) *Client {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &Client{Host: strings.TrimRight(host, "/"), http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Client) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "llama3.2"
	}
	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
	payload := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}
	b, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, "POST", c.Host+"/api/chat", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", ai.ReadStatusError("ollama", resp)
	}
	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

func (c *Client) GenerateImage(context.Context, ai.ImageRequest) (ai.Media, error) {
	return ai.Media{}, fmt.Errorf("ollama image: %w", ai.ErrUnsupported)
}

func (c *Client) StartVideo(context.Context, ai.VideoRequest) (ai.Operation, error) {
	return ai.Operation{}, fmt.Errorf("ollama video: %w", ai.ErrUnsupported)
}

func (c *Client) PollVideo(_ context.Context, op ai.Operation) (ai.Operation, error) {
	return op, fmt.Errorf("ollama video: %w", ai.ErrUnsupported)
}

func (c *Client) FetchVideo(context.Context, ai.Operation) (ai.Media, error) {
	return ai.Media{}, fmt.Errorf("ollama video: %w", ai.ErrUnsupported)
}
