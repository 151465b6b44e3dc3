package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Transient error kinds surfaced to the session as conversational messages.
// Both are recoverable; neither terminates a capture session.
var (
	ErrServiceUnavailable = errors.New("understanding service unavailable")
	ErrRateLimited        = errors.New("understanding service rate limited")
	ErrAnalysisFailed     = errors.New("document analysis failed")
)

const (
	maxAttempts = 3
	retryPause  = 2 * time.Second
)

type Client struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
	pause   time.Duration
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		pause:   retryPause,
	}
}

// SetTestTransport points the client at a local test server and removes the
// retry pause so tests run fast.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = baseURL
	c.pause = 0
}

type part struct {
	Text         string           `json:"text,omitempty"`
	InlineData   *inlineData      `json:"inline_data,omitempty"`
	FunctionCall *rawFunctionCall `json:"functionCall,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type rawFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"function_declarations"`
}

type generationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Chat sends the conversation to the understanding backend and returns the
// assistant text plus any structured calls. The current draft snapshot, the
// available categories and a summary of the user's upcoming events are
// injected into the system instruction so the model can fill fields and
// answer questions.
func (c *Client) Chat(ctx context.Context, turns []domain.ConversationTurn, categories []domain.Category, snapshot domain.DraftEvent, events []domain.PersistedEvent) (*domain.ExtractionResult, error) {
	contents := make([]content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: t.Content}}})
	}

	req := request{
		Contents: contents,
		SystemInstruction: &content{
			Parts: []part{{Text: chatSystemInstruction(categories, snapshot, events)}},
		},
		Tools: []tool{{FunctionDeclarations: chatFunctions()}},
	}

	body, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &domain.ExtractionResult{}
	for _, p := range body.Parts {
		if p.FunctionCall != nil {
			result.Calls = append(result.Calls, domain.FunctionCall{
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			})
			continue
		}
		if p.Text != "" && result.Text == "" {
			result.Text = p.Text
		}
	}
	return result, nil
}

// AnalyzeDocument submits a file for field extraction. The backend returns a
// document type, a short reason, and optionally a due date and an amount.
func (c *Client) AnalyzeDocument(ctx context.Context, data []byte, mimeType string) (*domain.DocumentAnalysis, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req := request{
		Contents: []content{{
			Parts: []part{
				{Text: documentPrompt},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}

	body, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var text string
	for _, p := range body.Parts {
		if p.Text != "" {
			text = p.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty analysis response", ErrAnalysisFailed)
	}

	var analysis domain.DocumentAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("%w: parse analysis: %v", ErrAnalysisFailed, err)
	}
	return &analysis, nil
}

// generate performs one generateContent call with retry on transient faults.
func (c *Client) generate(ctx context.Context, reqBody request) (*content, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
			case <-time.After(c.pause):
			}
		}

		body, status, err := c.post(ctx, url, payload)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
			continue
		}
		if status == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("%w: api error %d: %s", ErrServiceUnavailable, status, truncate(body, 200))
			continue
		}

		var apiResp response
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if len(apiResp.Candidates) == 0 {
			return nil, fmt.Errorf("%w: no candidates in response", ErrServiceUnavailable)
		}
		cand := apiResp.Candidates[0].Content
		return &cand, nil
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
