package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/smartlife/capture/internal/domain"
	"github.com/smartlife/capture/internal/gemini"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChat struct {
	gotTurns []domain.ConversationTurn
	result   *domain.ExtractionResult
	err      error
}

func (f *fakeChat) Chat(_ context.Context, turns []domain.ConversationTurn, _ []domain.Category, _ domain.DraftEvent, _ []domain.PersistedEvent) (*domain.ExtractionResult, error) {
	f.gotTurns = turns
	return f.result, f.err
}

func TestTextSubmit_AppendsUtterance(t *testing.T) {
	fake := &fakeChat{result: &domain.ExtractionResult{Text: "Ok!"}}
	adapter := NewText(fake, discardLogger())

	prior := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "ciao"},
		{Role: domain.RoleAssistant, Content: "Ciao! Come posso aiutarti?"},
	}
	result, err := adapter.Submit(context.Background(), "inserisci bolletta", prior, nil, domain.NewDraft(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Ok!" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if len(fake.gotTurns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(fake.gotTurns))
	}
	last := fake.gotTurns[2]
	if last.Role != domain.RoleUser || last.Content != "inserisci bolletta" {
		t.Errorf("expected utterance appended as user turn, got %+v", last)
	}
}

func TestTextSubmit_TransientErrorPassesThrough(t *testing.T) {
	fake := &fakeChat{err: gemini.ErrRateLimited}
	adapter := NewText(fake, discardLogger())

	_, err := adapter.Submit(context.Background(), "ciao", nil, nil, domain.NewDraft(), nil)
	if !errors.Is(err, gemini.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

type fakeAnalyzer struct {
	analysis *domain.DocumentAnalysis
	err      error
	gotMime  string
}

func (f *fakeAnalyzer) AnalyzeDocument(_ context.Context, _ []byte, mimeType string) (*domain.DocumentAnalysis, error) {
	f.gotMime = mimeType
	return f.analysis, f.err
}

func TestDocumentAnalyze_Success(t *testing.T) {
	amount := 75.50
	fake := &fakeAnalyzer{analysis: &domain.DocumentAnalysis{
		DocumentType: "bolletta",
		Reason:       "Bolletta Enel",
		Amount:       &amount,
	}}
	adapter := NewDocument(fake, discardLogger())

	analysis, err := adapter.Analyze(context.Background(), []byte("data"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.DocumentType != "bolletta" {
		t.Errorf("unexpected type %q", analysis.DocumentType)
	}
	if fake.gotMime != "application/pdf" {
		t.Errorf("mime type not forwarded, got %q", fake.gotMime)
	}
}

func TestDocumentAnalyze_FailurePassesThrough(t *testing.T) {
	fake := &fakeAnalyzer{err: gemini.ErrAnalysisFailed}
	adapter := NewDocument(fake, discardLogger())

	_, err := adapter.Analyze(context.Background(), []byte("data"), "image/png")
	if !errors.Is(err, gemini.ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
}
