package record

import (
	"time"
)

// Patch - частичное обновление записи. nil-поле означает "не менять".
type Patch struct {
	Title         *string
	Description   *string
	ReminderTime  *time.Time
	ClearReminder bool
	DueTime       *time.Time
	Subject       *string
	Completed     *bool
}

type PatchOption func(*Patch)

func NewPatch(options ...PatchOption) Patch {
	p := Patch{}
	for _, opt := range options {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

func WithTitle(title string) PatchOption {
	return func(p *Patch) {
		p.Title = &title
	}
}

func WithDescription(description string) PatchOption {
	return func(p *Patch) {
		p.Description = &description
	}
}

// WithReminderTime задаёт напоминание. Нулевое время сохраняется как есть, как и при создании,
// и планировщик уводит его в запасное напоминание.
func WithReminderTime(reminder time.Time) PatchOption {
	return func(p *Patch) {
		p.ReminderTime = &reminder
		p.ClearReminder = false
	}
}

func WithoutReminder() PatchOption {
	return func(p *Patch) {
		p.ReminderTime = nil
		p.ClearReminder = true
	}
}

func WithDueTime(dueTime time.Time) PatchOption {
	if dueTime.IsZero() {
		return nil
	}
	return func(p *Patch) {
		p.DueTime = &dueTime
	}
}

func WithSubject(subject string) PatchOption {
	return func(p *Patch) {
		p.Subject = &subject
	}
}

func WithCompleted(completed bool) PatchOption {
	return func(p *Patch) {
		p.Completed = &completed
	}
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.ReminderTime == nil && !p.ClearReminder &&
		p.DueTime == nil && p.Subject == nil && p.Completed == nil
}

// Apply применяет обновление к записи. Поля, не относящиеся к типу записи, игнорируются,
// владелец и идентификатор не меняются никогда.
func (p Patch) Apply(r *Record) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.ClearReminder {
		r.ReminderTime = nil
	} else if p.ReminderTime != nil {
		r.ReminderTime = copyTime(p.ReminderTime)
	}
	switch r.Kind {
	case KindAssessment:
		if p.DueTime != nil {
			r.DueTime = copyTime(p.DueTime)
		}
		if p.Subject != nil {
			r.Subject = *p.Subject
		}
	case KindTask:
		if p.Completed != nil {
			r.Completed = *p.Completed
		}
	}
}
