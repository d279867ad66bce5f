package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiliankoe/gridmind/internal/ai"
)

func TestGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "llama3.2" || body.Stream {
			t.Errorf("unexpected payload %+v", body)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":" hi! "}}`))
	}))
	defer srv.Close()

	text, err := New(srv.URL+"/").GenerateText(context.Background(), ai.TextRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if text != "hi!" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GenerateText(context.Background(), ai.TextRequest{Prompt: "hello"})
	var se *ai.StatusError
	if !errors.As(err, &se) || se.Code != 503 || se.Message != "model loading" {
		t.Fatalf("expected 503 status error, got %v", err)
	}
}

func TestMediaUnsupported(t *testing.T) {
	c := New("")
	if _, err := c.GenerateImage(context.Background(), ai.ImageRequest{Prompt: "x"}); !errors.Is(err, ai.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := c.StartVideo(context.Background(), ai.VideoRequest{Prompt: "x"}); !errors.Is(err, ai.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
