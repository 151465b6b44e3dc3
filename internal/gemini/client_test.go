package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

func TestChat_TextAndFunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.SystemInstruction == nil {
			t.Error("expected system instruction")
		}
		if len(req.Tools) != 1 || len(req.Tools[0].FunctionDeclarations) != 5 {
			t.Errorf("expected 5 function declarations, got %+v", req.Tools)
		}
		if len(req.Contents) != 2 {
			t.Fatalf("expected 2 contents, got %d", len(req.Contents))
		}
		if req.Contents[1].Role != "model" {
			t.Errorf("expected assistant turn mapped to model role, got %q", req.Contents[1].Role)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"functionCall": map[string]any{
							"name": "update_event_details",
							"args": map[string]any{"title": "Bolletta luce", "amount": 75.50},
						}},
						{"text": "Ok! Bolletta luce da 75.50€. Per quando?"},
					},
				},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	turns := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "inserisci bolletta luce 75.50 euro"},
		{Role: domain.RoleAssistant, Content: "Ok"},
	}
	result, err := c.Chat(context.Background(), turns, nil, domain.NewDraft(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(result.Calls))
	}
	if result.Calls[0].Name != "update_event_details" {
		t.Errorf("expected update_event_details, got %q", result.Calls[0].Name)
	}
	if result.Calls[0].Args["title"] != "Bolletta luce" {
		t.Errorf("unexpected args: %+v", result.Calls[0].Args)
	}
	if !strings.Contains(result.Text, "Bolletta luce") {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestChat_RateLimited(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	_, err := c.Chat(context.Background(), []domain.ConversationTurn{{Role: domain.RoleUser, Content: "ciao"}}, nil, domain.NewDraft(), nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestChat_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediate refusal

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	_, err := c.Chat(context.Background(), []domain.ConversationTurn{{Role: domain.RoleUser, Content: "ciao"}}, nil, domain.NewDraft(), nil)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestChat_RetriesThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "ciao"}}},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	result, err := c.Chat(context.Background(), []domain.ConversationTurn{{Role: domain.RoleUser, Content: "ciao"}}, nil, domain.NewDraft(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ciao" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestAnalyzeDocument_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Error("expected JSON response mime type")
		}
		parts := req.Contents[0].Parts
		if len(parts) != 2 || parts[1].InlineData == nil {
			t.Fatalf("expected prompt + inline data, got %+v", parts)
		}
		if parts[1].InlineData.MimeType != "application/pdf" {
			t.Errorf("expected mime application/pdf, got %q", parts[1].InlineData.MimeType)
		}

		analysis, _ := json.Marshal(map[string]any{
			"document_type": "bolletta",
			"reason":        "Bolletta Enel Energia",
			"due_date":      "2025-10-30",
			"amount":        75.50,
		})
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": string(analysis)}}},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	analysis, err := c.AnalyzeDocument(context.Background(), []byte("%PDF-fake"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.DocumentType != "bolletta" {
		t.Errorf("expected bolletta, got %q", analysis.DocumentType)
	}
	if analysis.DueDate != "2025-10-30" {
		t.Errorf("expected due date, got %q", analysis.DueDate)
	}
	if analysis.Amount == nil || *analysis.Amount != 75.50 {
		t.Errorf("expected amount 75.50, got %v", analysis.Amount)
	}
}

func TestAnalyzeDocument_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "not json at all"}}},
			}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)

	_, err := c.AnalyzeDocument(context.Background(), []byte("data"), "image/png")
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
}

func TestChat_ContextCancelledDuringRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient("test-key", "gemini-test")
	c.SetTestTransport(server.URL)
	c.pause = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, []domain.ConversationTurn{{Role: domain.RoleUser, Content: "ciao"}}, nil, domain.NewDraft(), nil)
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
