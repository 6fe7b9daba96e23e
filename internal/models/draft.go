package models

import (
	"strings"

	"github.com/google/uuid"

	"github.com/congregate/backend/pkg/validation"
)

// ServiceFields are the scalar fields of a service, already trimmed and validated.
type ServiceFields struct {
	Name             string  `json:"name"`
	DefaultStartTime *string `json:"default_start_time,omitempty"`
	DefaultEndTime   *string `json:"default_end_time,omitempty"`
}

type serviceFieldsForm struct {
	Name  string `json:"name" validate:"nonblank"`
	Start string `json:"default_start_time" validate:"omitempty,clocktime"`
	End   string `json:"default_end_time" validate:"omitempty,clocktime"`
}

// NewServiceFields validates raw input: name is required after trimming, times are HH:MM or empty.
func NewServiceFields(name string, start, end *string) (ServiceFields, error) {
	start, end = validation.OptionalTrimmed(start), validation.OptionalTrimmed(end)
	form := serviceFieldsForm{Name: strings.TrimSpace(name), Start: deref(start), End: deref(end)}
	if err := validation.Struct(form); err != nil {
		return ServiceFields{}, err
	}
	return ServiceFields{Name: form.Name, DefaultStartTime: start, DefaultEndTime: end}, nil
}

// NoteDraft is a note that has passed validation but may not be stored yet.
// The ID is assigned on construction and becomes the row key once persisted.
type NoteDraft struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Link *string   `json:"link,omitempty"`
}

type noteForm struct {
	Text string `json:"text" validate:"nonblank"`
	Link string `json:"link" validate:"omitempty,link"`
}

// NewNoteDraft validates a note. A nil id gets a fresh one.
func NewNoteDraft(id uuid.UUID, text string, link *string) (NoteDraft, error) {
	link = validation.OptionalTrimmed(link)
	form := noteForm{Text: strings.TrimSpace(text), Link: deref(link)}
	if err := validation.Struct(form); err != nil {
		return NoteDraft{}, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	return NoteDraft{ID: id, Text: form.Text, Link: link}, nil
}

// Draft returns the editable form of a stored note.
func (n ServiceNote) Draft() NoteDraft {
	return NoteDraft{ID: n.ID, Text: n.Text, Link: n.Link}
}

// RoleDraft is a role that has passed validation but may not be stored yet.
type RoleDraft struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

type roleForm struct {
	Name string `json:"name" validate:"nonblank"`
}

// NewRoleDraft validates a role. A nil id gets a fresh one.
func NewRoleDraft(id uuid.UUID, name string, description *string) (RoleDraft, error) {
	form := roleForm{Name: strings.TrimSpace(name)}
	if err := validation.Struct(form); err != nil {
		return RoleDraft{}, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	return RoleDraft{ID: id, Name: form.Name, Description: validation.OptionalTrimmed(description)}, nil
}

// Draft returns the editable form of a stored role.
func (r ServiceRole) Draft() RoleDraft {
	return RoleDraft{ID: r.ID, Name: r.Name, Description: r.Description}
}

// EventFields are the scalar fields of a service event, validated.
type EventFields struct {
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Subtitle  *string `json:"subtitle,omitempty"`
}

type eventForm struct {
	Date      string `json:"date" validate:"required,calendardate"`
	StartTime string `json:"start_time" validate:"required,clocktime"`
	EndTime   string `json:"end_time" validate:"required,clocktime"`
}

// NewEventFields validates raw event input. The subtitle is trimmed and an empty one becomes nil.
func NewEventFields(date, start, end string, subtitle *string) (EventFields, error) {
	form := eventForm{
		Date:      strings.TrimSpace(date),
		StartTime: strings.TrimSpace(start),
		EndTime:   strings.TrimSpace(end),
	}
	if err := validation.Struct(form); err != nil {
		return EventFields{}, err
	}
	return EventFields{
		Date:      form.Date,
		StartTime: form.StartTime,
		EndTime:   form.EndTime,
		Subtitle:  validation.OptionalTrimmed(subtitle),
	}, nil
}

// UniqueOwners drops incomplete assignments and repeats of a (user, role) pair,
// keeping the first occurrence of each.
func UniqueOwners(owners []OwnerAssignment) []OwnerAssignment {
	seen := make(map[OwnerAssignment]struct{}, len(owners))
	out := make([]OwnerAssignment, 0, len(owners))
	for _, o := range owners {
		if o.UserID == uuid.Nil || o.RoleID == uuid.Nil {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
