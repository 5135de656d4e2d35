package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func textResponse(w http.ResponseWriter, text string) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key test-key, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version 2023-06-01, got %q", r.Header.Get("anthropic-version"))
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if req.System != "you are a test" {
			t.Errorf("expected system prompt, got %q", req.System)
		}
		if len(req.Messages) != 2 || req.Messages[1].Role != "assistant" || req.Messages[0].Content[0].Text != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 100 {
			t.Errorf("expected max_tokens 100, got %d", req.MaxTokens)
		}
		if req.Temperature != nil {
			t.Errorf("expected no temperature, got %v", *req.Temperature)
		}
		textResponse(w, "world")
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	result, err := c.Complete(context.Background(), "you are a test", []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "world" {
		t.Errorf("expected 'world', got %q", result)
	}
}

func TestWithTemperature(t *testing.T) {
	var got *float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		json.NewDecoder(r.Body).Decode(&req)
		got = req.Temperature
		textResponse(w, "ok")
	}))
	defer server.Close()

	base := NewClient("k", "")
	base.SetTestTransport(server.URL)
	warm := base.WithTemperature(0.3)

	if _, err := warm.Complete(context.Background(), "", []Message{{Role: "user", Content: "x"}}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", got)
	}
	if base.temperature != nil {
		t.Error("WithTemperature must not modify the original client")
	}
	if base.model != DefaultModel {
		t.Errorf("expected default model, got %q", base.model)
	}
}

func TestExtractText_SendsImagesThenPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 1 {
			t.Fatalf("expected one message, got %d", len(req.Messages))
		}
		blocks := req.Messages[0].Content
		if len(blocks) != 3 {
			t.Fatalf("expected 3 content blocks, got %d", len(blocks))
		}
		for i, want := range []string{"page-1", "page-2"} {
			if blocks[i].Type != "image" || blocks[i].Source.MediaType != "image/jpeg" {
				t.Errorf("block %d: unexpected %+v", i, blocks[i])
			}
			data, _ := base64.StdEncoding.DecodeString(blocks[i].Source.Data)
			if string(data) != want {
				t.Errorf("block %d: expected %q, got %q", i, want, data)
			}
		}
		if blocks[2].Type != "text" || blocks[2].Text != "transcribe" {
			t.Errorf("unexpected prompt block %+v", blocks[2])
		}
		if req.MaxTokens != ExtractMaxTokens {
			t.Errorf("expected max_tokens %d, got %d", ExtractMaxTokens, req.MaxTokens)
		}
		textResponse(w, "extracted")
	}))
	defer server.Close()

	c := NewClient("k", "m")
	c.SetTestTransport(server.URL)

	got, err := c.ExtractText(context.Background(), [][]byte{[]byte("page-1"), []byte("page-2")}, "sys", "transcribe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "extracted" {
		t.Errorf("expected 'extracted', got %q", got)
	}

	if _, err := c.ExtractText(context.Background(), nil, "sys", "x"); err == nil {
		t.Error("expected error for empty image set")
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": "max_tokens is too large",
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100)
	if err == nil {
		t.Fatal("expected error for empty content response")
	}
}
