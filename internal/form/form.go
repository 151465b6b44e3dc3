// Package form owns the single mutable draft-event record for one capture
// session. All field-update applications go through Apply, which is the
// serialization point for every extraction channel.
package form

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

type State string

const (
	StateEmpty       State = "empty"
	StateEditing     State = "editing"
	StateValidatable State = "validatable"
	StateSaving      State = "saving"
	StateSaved       State = "saved"
	StateSaveFailed  State = "save-failed"
	StateDiscarded   State = "discarded"
)

// MissingFieldsError names exactly which required fields are absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Form is the state machine around a draft event. It is safe for concurrent
// use; a single mutex serializes applies so per-field last-writer-wins holds
// even when multiple channels complete at once.
type Form struct {
	state  State
	draft  domain.DraftEvent
	queued []domain.FieldUpdates // updates that arrived while a save was in flight
}

func New() *Form {
	return &Form{state: StateEmpty, draft: domain.NewDraft()}
}

// NewFromEvent pre-seeds the form from an existing event being edited.
func NewFromEvent(ev domain.PersistedEvent) *Form {
	f := &Form{draft: ev.Draft()}
	f.recompute()
	return f
}

func (f *Form) State() State {
	return f.state
}

// Draft returns a copy of the current draft. Callers never see or mutate the
// owned record directly.
func (f *Form) Draft() domain.DraftEvent {
	return f.draft.Clone()
}

// Apply merges updates into the draft. Later updates win per field; reminder
// offsets merge by set union unless explicitly removed. While a save is in
// flight updates are queued, not discarded, and applied after the save
// resolves. Returns per-field warnings for values that had to be dropped or
// corrected.
func (f *Form) Apply(u domain.FieldUpdates) []string {
	switch f.state {
	case StateSaved, StateDiscarded:
		return []string{"session closed, update discarded"}
	case StateSaving:
		f.queued = append(f.queued, u)
		return nil
	}
	warnings := f.apply(u)
	f.recompute()
	return warnings
}

func (f *Form) apply(u domain.FieldUpdates) []string {
	var warnings []string

	if u.Title != nil {
		f.draft.Title = *u.Title
	}
	if u.Description != nil {
		f.draft.Description = *u.Description
	}
	if u.Amount != nil {
		f.draft.Amount = u.Amount
	}
	if u.CategoryID != nil {
		f.draft.CategoryID = u.CategoryID
	}
	if u.Recurrence != nil {
		f.draft.Recurrence = *u.Recurrence
	}
	if u.Color != nil {
		f.draft.Color = *u.Color
	}
	if u.Attachment != nil {
		f.draft.Attachment = *u.Attachment
	}
	if u.Status != nil {
		f.draft.Status = *u.Status
	}

	if u.Start != nil {
		start := *u.Start
		f.draft.Start = &start
	}
	if u.End != nil {
		// An end that precedes the effective start is rejected, not clamped.
		if f.draft.Start != nil && u.End.Before(*f.draft.Start) {
			warnings = append(warnings, fmt.Sprintf("end %s precedes start, dropped", u.End.Format(time.RFC3339)))
		} else {
			end := *u.End
			f.draft.End = &end
		}
	}
	// Moving the start past an existing end auto-extends the end, matching
	// the one-hour default used when no end was ever supplied.
	if u.Start != nil && f.draft.End != nil && f.draft.End.Before(*f.draft.Start) {
		end := f.draft.Start.Add(time.Hour)
		f.draft.End = &end
		warnings = append(warnings, "end moved to start + 1h")
	}

	if len(u.AddReminders) > 0 || len(u.RemoveReminders) > 0 {
		f.draft.Reminders = mergeReminders(f.draft.Reminders, u.AddReminders, u.RemoveReminders)
	}

	return warnings
}

// MissingFields returns the required fields still absent, in a fixed order.
func (f *Form) MissingFields() []string {
	var missing []string
	if f.draft.Title == "" {
		missing = append(missing, "title")
	}
	if f.draft.Start == nil {
		missing = append(missing, "start_datetime")
	}
	if f.draft.CategoryID == nil {
		missing = append(missing, "category_id")
	}
	return missing
}

// BeginSave transitions to saving and hands out the draft to persist. Save is
// refused locally when required fields are missing; no remote call may be
// attempted in that case.
func (f *Form) BeginSave() (domain.DraftEvent, error) {
	if f.state == StateSaving {
		return domain.DraftEvent{}, fmt.Errorf("save already in flight")
	}
	if f.state == StateSaved || f.state == StateDiscarded {
		return domain.DraftEvent{}, fmt.Errorf("form is closed")
	}
	if missing := f.MissingFields(); len(missing) > 0 {
		return domain.DraftEvent{}, &MissingFieldsError{Fields: missing}
	}
	f.state = StateSaving
	return f.draft.Clone(), nil
}

// ResolveSave finishes a save. On success the form is terminal; on failure
// the draft is preserved exactly and the form returns to editing. Updates
// queued during the save are applied now; their warnings are returned.
func (f *Form) ResolveSave(ok bool) []string {
	if f.state != StateSaving {
		return nil
	}
	if ok {
		f.state = StateSaved
		f.queued = nil
		return nil
	}
	f.state = StateSaveFailed
	var warnings []string
	for _, u := range f.queued {
		warnings = append(warnings, f.apply(u)...)
	}
	f.queued = nil
	f.recompute()
	return warnings
}

// Discard tears the form down. Legal from any state.
func (f *Form) Discard() {
	f.state = StateDiscarded
	f.queued = nil
}

func (f *Form) recompute() {
	switch f.state {
	case StateSaving, StateSaved, StateDiscarded:
		return
	}
	if f.empty() {
		f.state = StateEmpty
		return
	}
	if len(f.MissingFields()) == 0 {
		f.state = StateValidatable
		return
	}
	f.state = StateEditing
}

func (f *Form) empty() bool {
	d := f.draft
	return d.Title == "" && d.Start == nil && d.End == nil && d.Amount == nil &&
		d.CategoryID == nil && d.Description == "" && d.Color == "" &&
		len(d.Reminders) == 0 && !d.Attachment
}

func mergeReminders(current, add, remove []int) []int {
	set := make(map[int]struct{}, len(current)+len(add))
	for _, m := range current {
		set[m] = struct{}{}
	}
	for _, m := range add {
		set[m] = struct{}{}
	}
	for _, m := range remove {
		delete(set, m)
	}
	out := make([]int, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}
