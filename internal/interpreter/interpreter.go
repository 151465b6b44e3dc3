// Package interpreter validates and normalizes raw extraction payloads into
// field-update operations plus at most one directive. It never persists
// anything and never closes the session.
package interpreter

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/domain"
)

// Intent is the normalized instruction set for the form state machine.
type Intent struct {
	Updates   domain.FieldUpdates
	Directive domain.Directive
	Warnings  []string
}

type Interpreter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Interpreter {
	return &Interpreter{logger: logger}
}

// Accepted timestamp layouts, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Interpret maps a raw extraction result into an intent. Malformed values
// are dropped per-field with a warning; one bad field never aborts the
// batch. Unknown function names are forward-compatible no-ops.
func (i *Interpreter) Interpret(res domain.ExtractionResult, snapshot domain.DraftEvent) Intent {
	var intent Intent
	for _, call := range res.Calls {
		switch call.Name {
		case "update_event_details":
			i.applyFieldArgs(&intent, call.Args)
		case "request_save":
			i.setDirective(&intent, domain.Directive{Kind: domain.DirectiveSave})
		case "highlight_upload":
			i.setDirective(&intent, domain.Directive{Kind: domain.DirectiveHighlightUpload})
		case "search_events":
			i.setDirective(&intent, searchDirective(call.Args))
		case "open_event":
			ref, _ := call.Args["reference"].(string)
			i.setDirective(&intent, domain.Directive{Kind: domain.DirectiveOpenRecord, RecordRef: ref})
		default:
			i.logger.Debug("ignoring unknown function call", "name", call.Name)
		}
	}
	i.synthesizeEnd(&intent, snapshot)
	return intent
}

// FromAnalysis maps a document analysis into an intent: the due date becomes
// the start instant, the amount carries over, the reason becomes the title.
// Absent values never overwrite existing draft fields. The attachment flag is
// always set once a document has been analyzed into the draft.
func (i *Interpreter) FromAnalysis(a domain.DocumentAnalysis, snapshot domain.DraftEvent) Intent {
	var intent Intent
	if a.Reason != "" {
		reason := a.Reason
		intent.Updates.Title = &reason
	}
	if a.DueDate != "" {
		if ts, err := parseTime(a.DueDate); err == nil {
			intent.Updates.Start = &ts
		} else {
			intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped unparseable due_date %q", a.DueDate))
		}
	}
	if a.Amount != nil {
		amount := *a.Amount
		intent.Updates.Amount = &amount
	}
	attached := true
	intent.Updates.Attachment = &attached
	i.synthesizeEnd(&intent, snapshot)
	return intent
}

// setDirective keeps the first directive; later ones in the same batch are
// dropped with a warning.
func (i *Interpreter) setDirective(intent *Intent, d domain.Directive) {
	if intent.Directive.Kind != domain.DirectiveNone {
		intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped extra directive %q", d.Kind))
		return
	}
	intent.Directive = d
}

func (i *Interpreter) applyFieldArgs(intent *Intent, args map[string]any) {
	for key, raw := range args {
		switch key {
		case "title":
			if s, ok := asString(raw); ok && s != "" {
				intent.Updates.Title = &s
			}
		case "start_datetime":
			i.parseInstant(intent, raw, key, &intent.Updates.Start)
		case "end_datetime":
			i.parseInstant(intent, raw, key, &intent.Updates.End)
		case "amount":
			if f, ok := asFloat(raw); ok {
				intent.Updates.Amount = &f
			} else {
				intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped non-numeric amount %v", raw))
			}
		case "category_id":
			if s, ok := asString(raw); ok {
				if id, err := uuid.Parse(s); err == nil {
					intent.Updates.CategoryID = &id
				} else {
					intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped invalid category_id %q", s))
				}
			}
		case "description":
			if s, ok := asString(raw); ok {
				intent.Updates.Description = &s
			}
		case "recurrence":
			if s, ok := asString(raw); ok {
				if r, ok := parseRecurrence(s); ok {
					intent.Updates.Recurrence = &r
				} else {
					intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped unknown recurrence %q", s))
				}
			}
		case "color":
			if s, ok := asString(raw); ok {
				intent.Updates.Color = &s
			}
		case "reminders":
			if mins, ok := asIntSlice(raw); ok {
				intent.Updates.AddReminders = append(intent.Updates.AddReminders, mins...)
			} else {
				intent.Warnings = append(intent.Warnings, "dropped non-numeric reminders")
			}
		default:
			i.logger.Debug("ignoring unknown field", "field", key)
		}
	}
}

func (i *Interpreter) parseInstant(intent *Intent, raw any, field string, dst **time.Time) {
	s, ok := asString(raw)
	if !ok || s == "" {
		intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped non-string %s", field))
		return
	}
	ts, err := parseTime(s)
	if err != nil {
		intent.Warnings = append(intent.Warnings, fmt.Sprintf("dropped unparseable %s %q", field, s))
		return
	}
	*dst = &ts
}

// synthesizeEnd fills in end = start + 1h when the batch supplies a start,
// no end, and the draft has no end yet. An end supplied with no prior start
// is left alone; the start is never guessed.
func (i *Interpreter) synthesizeEnd(intent *Intent, snapshot domain.DraftEvent) {
	if intent.Updates.Start != nil && intent.Updates.End == nil && snapshot.End == nil {
		end := intent.Updates.Start.Add(time.Hour)
		intent.Updates.End = &end
	}
}

func searchDirective(args map[string]any) domain.Directive {
	d := domain.Directive{Kind: domain.DirectiveSearch, TopK: 5}
	if q, ok := asString(args["query"]); ok {
		d.Query = q
	}
	if raw, ok := args["source_types"].([]any); ok {
		for _, v := range raw {
			if s, ok := asString(v); ok {
				d.SourceTypes = append(d.SourceTypes, s)
			}
		}
	}
	if k, ok := asFloat(args["top_k"]); ok && k > 0 {
		d.TopK = int(k)
	}
	return d
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseRecurrence(s string) (domain.Recurrence, bool) {
	switch domain.Recurrence(strings.ToLower(s)) {
	case domain.RecurrenceNone, domain.RecurrenceDaily, domain.RecurrenceWeekly,
		domain.RecurrenceMonthly, domain.RecurrenceYearly:
		return domain.Recurrence(strings.ToLower(s)), true
	}
	return "", false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(n, "€")), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asIntSlice(v any) ([]int, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		f, ok := asFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, int(f))
	}
	return out, true
}
