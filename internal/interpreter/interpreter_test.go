package interpreter

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInterpret_FieldUpdates(t *testing.T) {
	catID := uuid.New()
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{
				"title":          "Bolletta luce",
				"start_datetime": "2025-10-30T11:00:00",
				"amount":         75.50,
				"category_id":    catID.String(),
				"description":    "pagare online",
			},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Updates.Title == nil || *intent.Updates.Title != "Bolletta luce" {
		t.Errorf("expected title update, got %v", intent.Updates.Title)
	}
	if intent.Updates.Start == nil {
		t.Fatal("expected start update")
	}
	want := time.Date(2025, 10, 30, 11, 0, 0, 0, time.Local)
	if !intent.Updates.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, intent.Updates.Start)
	}
	if intent.Updates.Amount == nil || *intent.Updates.Amount != 75.50 {
		t.Errorf("expected amount 75.50, got %v", intent.Updates.Amount)
	}
	if intent.Updates.CategoryID == nil || *intent.Updates.CategoryID != catID {
		t.Errorf("expected category update, got %v", intent.Updates.CategoryID)
	}
	if len(intent.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", intent.Warnings)
	}
}

func TestInterpret_SynthesizesEnd(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{"start_datetime": "2025-10-30T11:00:00"},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Updates.End == nil {
		t.Fatal("expected synthesized end")
	}
	if got := intent.Updates.End.Sub(*intent.Updates.Start); got != time.Hour {
		t.Errorf("expected end = start + 1h, got %v", got)
	}
}

func TestInterpret_NoSynthesisWhenDraftHasEnd(t *testing.T) {
	snapshot := domain.NewDraft()
	end := time.Date(2025, 10, 30, 15, 0, 0, 0, time.Local)
	snapshot.End = &end

	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{"start_datetime": "2025-10-30T11:00:00"},
		}},
	}

	intent := New(discardLogger()).Interpret(res, snapshot)

	if intent.Updates.End != nil {
		t.Errorf("expected no end synthesis when draft already has one, got %v", intent.Updates.End)
	}
}

func TestInterpret_EndWithoutStartLeavesStartUntouched(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{"end_datetime": "2025-10-30T15:00:00"},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Updates.Start != nil {
		t.Errorf("start must not be guessed, got %v", intent.Updates.Start)
	}
	if intent.Updates.End == nil {
		t.Error("expected end update")
	}
}

func TestInterpret_DropsMalformedFieldsKeepsRest(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{
				"title":          "Palestra",
				"amount":         "not-a-number",
				"start_datetime": "when I feel like it",
				"category_id":    "not-a-uuid",
			},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Updates.Title == nil || *intent.Updates.Title != "Palestra" {
		t.Error("good field must survive bad siblings")
	}
	if intent.Updates.Amount != nil {
		t.Error("non-numeric amount must be dropped")
	}
	if intent.Updates.Start != nil {
		t.Error("unparseable start must be dropped")
	}
	if intent.Updates.CategoryID != nil {
		t.Error("invalid category must be dropped")
	}
	if len(intent.Warnings) != 3 {
		t.Errorf("expected 3 warnings, got %v", intent.Warnings)
	}
}

func TestInterpret_AmountFromString(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "update_event_details",
			Args: map[string]any{"amount": "75.50"},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Updates.Amount == nil || *intent.Updates.Amount != 75.50 {
		t.Errorf("expected amount parsed from string, got %v", intent.Updates.Amount)
	}
}

func TestInterpret_Directives(t *testing.T) {
	tests := []struct {
		name string
		call domain.FunctionCall
		want domain.DirectiveKind
	}{
		{"save", domain.FunctionCall{Name: "request_save"}, domain.DirectiveSave},
		{"upload", domain.FunctionCall{Name: "highlight_upload"}, domain.DirectiveHighlightUpload},
		{"search", domain.FunctionCall{Name: "search_events", Args: map[string]any{"query": "palestra"}}, domain.DirectiveSearch},
		{"open", domain.FunctionCall{Name: "open_event", Args: map[string]any{"reference": "1"}}, domain.DirectiveOpenRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := New(discardLogger()).Interpret(domain.ExtractionResult{Calls: []domain.FunctionCall{tt.call}}, domain.NewDraft())
			if intent.Directive.Kind != tt.want {
				t.Errorf("expected %q, got %q", tt.want, intent.Directive.Kind)
			}
		})
	}
}

func TestInterpret_SearchDirectiveArgs(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{
			Name: "search_events",
			Args: map[string]any{
				"query":        "colesterolo",
				"source_types": []any{"document", "event"},
				"top_k":        float64(3),
			},
		}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	d := intent.Directive
	if d.Query != "colesterolo" {
		t.Errorf("expected query, got %q", d.Query)
	}
	if len(d.SourceTypes) != 2 {
		t.Errorf("expected 2 source types, got %v", d.SourceTypes)
	}
	if d.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", d.TopK)
	}
}

func TestInterpret_AtMostOneDirective(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{
			{Name: "request_save"},
			{Name: "highlight_upload"},
		},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if intent.Directive.Kind != domain.DirectiveSave {
		t.Errorf("expected first directive to win, got %q", intent.Directive.Kind)
	}
	if len(intent.Warnings) != 1 {
		t.Errorf("expected warning for dropped directive, got %v", intent.Warnings)
	}
}

func TestInterpret_UnknownFunctionIgnored(t *testing.T) {
	res := domain.ExtractionResult{
		Calls: []domain.FunctionCall{{Name: "delete_everything"}},
	}

	intent := New(discardLogger()).Interpret(res, domain.NewDraft())

	if !intent.Updates.Empty() || intent.Directive.Kind != domain.DirectiveNone {
		t.Error("unknown functions must be no-ops")
	}
}

func TestFromAnalysis_FullDocument(t *testing.T) {
	amount := 75.50
	a := domain.DocumentAnalysis{
		DocumentType: "bolletta",
		Reason:       "Bolletta Enel Energia",
		DueDate:      "2025-10-30",
		Amount:       &amount,
	}

	intent := New(discardLogger()).FromAnalysis(a, domain.NewDraft())

	if intent.Updates.Title == nil || *intent.Updates.Title != "Bolletta Enel Energia" {
		t.Errorf("expected title from reason, got %v", intent.Updates.Title)
	}
	if intent.Updates.Start == nil {
		t.Fatal("expected start from due date")
	}
	if intent.Updates.Amount == nil || *intent.Updates.Amount != 75.50 {
		t.Errorf("expected amount, got %v", intent.Updates.Amount)
	}
	if intent.Updates.Attachment == nil || !*intent.Updates.Attachment {
		t.Error("expected attachment flag set")
	}
}

func TestFromAnalysis_AbsentFieldsNotOverwritten(t *testing.T) {
	amount := 75.50
	a := domain.DocumentAnalysis{
		DocumentType: "bolletta",
		DueDate:      "2025-10-30",
		Amount:       &amount,
	}

	intent := New(discardLogger()).FromAnalysis(a, domain.NewDraft())

	if intent.Updates.Title != nil {
		t.Errorf("absent reason must not produce a title update, got %v", intent.Updates.Title)
	}
	if intent.Updates.Start == nil || intent.Updates.Amount == nil {
		t.Error("expected start and amount updates")
	}
	if intent.Updates.Attachment == nil || !*intent.Updates.Attachment {
		t.Error("expected attachment flag set")
	}
}
