package record

import "time"

// Draft - редактируемая копия полей записи, живёт только пока открыта форма
type Draft struct {
	Kind         Kind
	Title        string
	Description  string
	ReminderTime *time.Time
	DueTime      *time.Time
	Subject      string
}

func NewDraft(kind Kind) Draft {
	return Draft{Kind: kind}
}

func DraftFrom(r *Record) Draft {
	return Draft{
		Kind:         r.Kind,
		Title:        r.Title,
		Description:  r.Description,
		ReminderTime: copyTime(r.ReminderTime),
		DueTime:      copyTime(r.DueTime),
		Subject:      r.Subject,
	}
}

func (d Draft) Validate() error {
	r := d.ToRecord("")
	return r.Validate()
}

// ToRecord собирает новую запись для создания. Новая задача всегда не выполнена.
func (d Draft) ToRecord(ownerID string) *Record {
	r := &Record{
		Kind:         d.Kind,
		OwnerID:      ownerID,
		Title:        d.Title,
		Description:  d.Description,
		ReminderTime: copyTime(d.ReminderTime),
		Completed:    false,
	}
	if d.Kind == KindAssessment {
		r.DueTime = copyTime(d.DueTime)
		r.Subject = d.Subject
	}
	return r
}

// Patch переносит все поля черновика в обновление, пустое напоминание сбрасывается
func (d Draft) Patch() Patch {
	opts := []PatchOption{
		WithTitle(d.Title),
		WithDescription(d.Description),
	}
	if d.ReminderTime != nil {
		opts = append(opts, WithReminderTime(*d.ReminderTime))
	} else {
		opts = append(opts, WithoutReminder())
	}
	if d.Kind == KindAssessment {
		if d.DueTime != nil {
			opts = append(opts, WithDueTime(*d.DueTime))
		}
		opts = append(opts, WithSubject(d.Subject))
	}
	return NewPatch(opts...)
}
