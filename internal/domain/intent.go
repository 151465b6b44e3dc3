package domain

import (
	"time"

	"github.com/google/uuid"
)

// FunctionCall is a raw structured call emitted by the understanding backend.
// Arguments are untyped until the interpreter normalizes them.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ExtractionResult is the channel-agnostic payload produced by an adapter:
// assistant text plus zero or more structured calls. It is transient and
// consumed immediately by the interpreter.
type ExtractionResult struct {
	Text  string
	Calls []FunctionCall
}

// DocumentAnalysis is the structured result of analyzing an uploaded file.
type DocumentAnalysis struct {
	DocumentType string   `json:"document_type"`
	Reason       string   `json:"reason"`
	DueDate      string   `json:"due_date,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
}

// FieldUpdates is a partial set of draft field values. Nil pointers mean
// "leave untouched"; reminder changes are expressed as explicit add/remove
// sets so that merges stay union-based.
type FieldUpdates struct {
	Title           *string
	Start           *time.Time
	End             *time.Time
	Amount          *float64
	CategoryID      *uuid.UUID
	Description     *string
	Recurrence      *Recurrence
	Color           *string
	AddReminders    []int
	RemoveReminders []int
	Attachment      *bool
	Status          *Status
}

// Empty reports whether the update carries no field changes at all.
func (u FieldUpdates) Empty() bool {
	return u.Title == nil && u.Start == nil && u.End == nil && u.Amount == nil &&
		u.CategoryID == nil && u.Description == nil && u.Recurrence == nil &&
		u.Color == nil && len(u.AddReminders) == 0 && len(u.RemoveReminders) == 0 &&
		u.Attachment == nil && u.Status == nil
}

// DirectiveKind identifies a non-field-update instruction.
type DirectiveKind string

const (
	DirectiveNone            DirectiveKind = ""
	DirectiveSave            DirectiveKind = "save"
	DirectiveHighlightUpload DirectiveKind = "highlight_upload"
	DirectiveSearch          DirectiveKind = "search"
	DirectiveOpenRecord      DirectiveKind = "open_record"
)

// Directive is at most one instruction extracted from a conversational turn.
type Directive struct {
	Kind        DirectiveKind
	Query       string   // search
	SourceTypes []string // search
	TopK        int      // search
	RecordRef   string   // open_record: event id or 1-based index into the last search results
}
