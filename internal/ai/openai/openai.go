package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kiliankoe/gridmind/internal/ai"
)

const provider = "openai"

type Client struct {
	APIKey  string
	BaseURL string
	http    *http.Client
}

func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 120 * time.Second}}
}

func (c *Client) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY", ai.ErrMissingKey)
	}
	if strings.Contains(req.Model, "gpt") || req.Model == "" {
		return c.chatComplete(ctx, req)
	}
	return c.textComplete(ctx, req)
}

func (c *Client) chatComplete(ctx context.Context, req ai.TextRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": 0.8,
		"max_tokens":  200,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/v1/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) textComplete(ctx context.Context, req ai.TextRequest) (string, error) {
	payload := map[string]any{
		"model":       req.Model,
		"prompt":      req.Prompt,
		"temperature": 0.8,
		"max_tokens":  200,
	}
	var out struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/v1/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Text), nil
}

func (c *Client) GenerateImage(ctx context.Context, req ai.ImageRequest) (ai.Media, error) {
	if c.APIKey == "" {
		return ai.Media{}, fmt.Errorf("%w: OPENAI_API_KEY", ai.ErrMissingKey)
	}
	model := req.Model
	if model == "" {
		model = "gpt-image-1"
	}
	var out struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}

	if req.BaseImage != nil {
		fields := map[string]string{"model": model, "prompt": req.Prompt, "size": imageSize(req.AspectRatio)}
		body, contentType, err := multipartBody(fields, "image", req.BaseImage)
		if err != nil {
			return ai.Media{}, err
		}
		if err := c.do(ctx, http.MethodPost, "/v1/images/edits", body, contentType, &out); err != nil {
			return ai.Media{}, err
		}
	} else {
		payload := map[string]any{
			"model":  model,
			"prompt": req.Prompt,
			"size":   imageSize(req.AspectRatio),
			"n":      1,
		}
		if strings.HasPrefix(model, "dall-e") {
			payload["response_format"] = "b64_json"
		}
		if err := c.postJSON(ctx, "/v1/images/generations", payload, &out); err != nil {
			return ai.Media{}, err
		}
	}

	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return ai.Media{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return ai.Media{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return ai.Media{MIMEType: "image/png", Data: data}, nil
}

type videoJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (j videoJob) operation() ai.Operation {
	op := ai.Operation{ID: j.ID, Done: j.Status == "completed" || j.Status == "failed"}
	if j.Status == "failed" {
		op.Err = "video generation failed"
		if j.Error != nil && j.Error.Message != "" {
			op.Err = j.Error.Message
		}
	}
	return op
}

func (c *Client) StartVideo(ctx context.Context, req ai.VideoRequest) (ai.Operation, error) {
	if c.APIKey == "" {
		return ai.Operation{}, fmt.Errorf("%w: OPENAI_API_KEY", ai.ErrMissingKey)
	}
	model := req.Model
	if model == "" {
		model = "sora-2"
	}
	var job videoJob
	if req.BaseImage != nil {
		body, contentType, err := multipartBody(map[string]string{"model": model, "prompt": req.Prompt}, "input_reference", req.BaseImage)
		if err != nil {
			return ai.Operation{}, err
		}
		if err := c.do(ctx, http.MethodPost, "/v1/videos", body, contentType, &job); err != nil {
			return ai.Operation{}, err
		}
	} else if err := c.postJSON(ctx, "/v1/videos", map[string]any{"model": model, "prompt": req.Prompt}, &job); err != nil {
		return ai.Operation{}, err
	}
	return job.operation(), nil
}

func (c *Client) PollVideo(ctx context.Context, op ai.Operation) (ai.Operation, error) {
	var job videoJob
	if err := c.do(ctx, http.MethodGet, "/v1/videos/"+op.ID, nil, "", &job); err != nil {
		return op, err
	}
	return job.operation(), nil
}

func (c *Client) FetchVideo(ctx context.Context, op ai.Operation) (ai.Media, error) {
	var data []byte
	if err := c.do(ctx, http.MethodGet, "/v1/videos/"+op.ID+"/content", nil, "", &data); err != nil {
		return ai.Media{}, err
	}
	return ai.Media{MIMEType: "video/mp4", Data: data}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
}

// do sends the request and decodes a 2xx body into out. A *[]byte out
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return ai.ReadStatusError(provider, resp)
	}
	if raw, ok := out.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: %v", ai.ErrTransient, err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", ai.ErrTransient, err)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func imageSize(aspect string) string {
	switch aspect {
	case "16:9", "3:2", "4:3", "landscape":
		return "1536x1024"
	case "9:16", "2:3", "3:4", "portrait":
		return "1024x1536"
	}
	return "1024x1024"
}

func multipartBody(fields map[string]string, fileField string, media *ai.Media) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	mimeType := media.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(media.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, "reference"+extension(mimeType)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(media.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
