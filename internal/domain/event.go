package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence is the repeat rule for an event.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// Status is the completion state of an event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Category is a read-only entry from the category-management collaborator.
// The capture engine never creates or deletes categories.
type Category struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
	Icon  string    `json:"icon"`
}

// DraftEvent is the mutable event record under construction during a capture
// session. It lives only in session memory until a single atomic save.
// Optional fields are pointers; nil means "not yet supplied".
type DraftEvent struct {
	Title       string     `json:"title"`
	Start       *time.Time `json:"start_datetime,omitempty"`
	End         *time.Time `json:"end_datetime,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Description string     `json:"description"`
	Recurrence  Recurrence `json:"recurrence"`
	Color       string     `json:"color,omitempty"`
	Reminders   []int      `json:"reminders"` // minutes before start, sorted, deduplicated
	Attachment  bool       `json:"has_attachment"`
	Status      Status     `json:"status"`
}

// NewDraft returns an empty draft with defaults applied.
func NewDraft() DraftEvent {
	return DraftEvent{
		Recurrence: RecurrenceNone,
		Status:     StatusPending,
	}
}

// Clone returns a deep copy of the draft.
func (d DraftEvent) Clone() DraftEvent {
	out := d
	if d.Start != nil {
		s := *d.Start
		out.Start = &s
	}
	if d.End != nil {
		e := *d.End
		out.End = &e
	}
	if d.Amount != nil {
		a := *d.Amount
		out.Amount = &a
	}
	if d.CategoryID != nil {
		c := *d.CategoryID
		out.CategoryID = &c
	}
	if d.Reminders != nil {
		out.Reminders = append([]int(nil), d.Reminders...)
	}
	return out
}

// PersistedEvent is an event as returned by the persistence collaborator.
type PersistedEvent struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Start       time.Time  `json:"start_datetime"`
	End         *time.Time `json:"end_datetime,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Description string     `json:"description"`
	Recurrence  Recurrence `json:"recurrence"`
	Color       string     `json:"color,omitempty"`
	Reminders   []int      `json:"reminders"`
	Attachment  bool       `json:"has_attachment"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Draft converts a persisted event back into a draft for editing.
func (e PersistedEvent) Draft() DraftEvent {
	d := DraftEvent{
		Title:       e.Title,
		Description: e.Description,
		Recurrence:  e.Recurrence,
		Color:       e.Color,
		Attachment:  e.Attachment,
		Status:      e.Status,
	}
	s := e.Start
	d.Start = &s
	if e.End != nil {
		end := *e.End
		d.End = &end
	}
	if e.Amount != nil {
		a := *e.Amount
		d.Amount = &a
	}
	if e.CategoryID != nil {
		c := *e.CategoryID
		d.CategoryID = &c
	}
	if e.Reminders != nil {
		d.Reminders = append([]int(nil), e.Reminders...)
	}
	if d.Recurrence == "" {
		d.Recurrence = RecurrenceNone
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	return d
}
