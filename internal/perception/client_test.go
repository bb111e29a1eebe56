package perception

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
	return client, server
}

func TestGeminiCompleteReturnsText(t *testing.T) {
	var gotPath string
	var gotBody geminiRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{
					{"text": "part one "},
					{"text": "part two"},
				}}},
			},
		})
	})

	got, err := client.Complete(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "part one part two" {
		t.Fatalf("completion = %q", got)
	}
	if !strings.Contains(gotPath, "/models/test-model:generateContent") {
		t.Fatalf("request path = %q", gotPath)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "the prompt" {
		t.Fatalf("request contents = %+v", gotBody.Contents)
	}
	if gotBody.SystemInstruction != nil {
		t.Fatal("plain Complete must not carry a system instruction")
	}
}

func TestGeminiCompleteWithSystemSendsInstruction(t *testing.T) {
	var gotBody geminiRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "ok"}}}},
			},
		})
	})

	if _, err := client.CompleteWithSystem(context.Background(), "be terse", "question"); err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("system instruction = %+v", gotBody.SystemInstruction)
	}
}

func TestGeminiCompleteAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "bad request", "status": "INVALID_ARGUMENT"},
		})
	})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "bad request") {
		t.Fatalf("error = %v, want API error message", err)
	}
}

func TestGeminiCompleteNoCandidates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("empty candidate list did not error")
	}
}

func TestGeminiCompleteRequiresAPIKey(t *testing.T) {
	client := NewGeminiClient("")
	if _, err := client.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("missing API key did not error")
	}
}
