package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("record: invalid field")

// MaxTextLength - предел длины для владельца, заголовка и предмета, совпадает с VARCHAR(255) в postgres
const MaxTextLength = 255

// FieldError - незаполненное или неверное поле, errors.Is(err, ErrInvalid) для него истинно
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

type Kind string

const KindTask Kind = "task"
const KindAssessment Kind = "assessment"

func (k Kind) IsValid() bool {
	switch k {
	case KindTask, KindAssessment:
		return true
	default:
		return false
	}
}

// Field - имя поля с отметкой времени, по которому идёт сортировка и группировка
type Field string

const FieldReminderTime Field = "reminder_time"
const FieldDueTime Field = "due_time"
const FieldCreatedAt Field = "created_at"

func (f Field) IsValid() bool {
	switch f {
	case FieldReminderTime, FieldDueTime, FieldCreatedAt:
		return true
	default:
		return false
	}
}

// Record - задача или оценивание. Поля DueTime и Subject есть только у оценивания,
// Completed - только у задачи.
type Record struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Kind         Kind       `json:"kind" db:"kind"`
	OwnerID      string     `json:"owner_id" db:"owner_id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	ReminderTime *time.Time `json:"reminder_time,omitempty" db:"reminder_time"`
	DueTime      *time.Time `json:"due_time,omitempty" db:"due_time"`
	Subject      string     `json:"subject,omitempty" db:"subject"`
	Completed    bool       `json:"completed" db:"completed"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Instant возвращает значение временного поля и false, если оно не задано
func (r *Record) Instant(field Field) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	switch field {
	case FieldReminderTime:
		if r.ReminderTime == nil {
			return time.Time{}, false
		}
		return *r.ReminderTime, true
	case FieldDueTime:
		if r.DueTime == nil {
			return time.Time{}, false
		}
		return *r.DueTime, true
	case FieldCreatedAt:
		if r.CreatedAt.IsZero() {
			return time.Time{}, false
		}
		return r.CreatedAt, true
	default:
		return time.Time{}, false
	}
}

// Validate проверяет обязательные поля перед сохранением
func (r *Record) Validate() error {
	if !r.Kind.IsValid() {
		return &FieldError{Field: "kind", Reason: fmt.Sprintf("неизвестный тип %q", r.Kind)}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &FieldError{Field: "title", Reason: "обязательное поле"}
	}
	if err := checkLength("title", r.Title); err != nil {
		return err
	}
	if err := checkLength("owner_id", r.OwnerID); err != nil {
		return err
	}
	if r.Kind == KindAssessment {
		if r.DueTime == nil || r.DueTime.IsZero() {
			return &FieldError{Field: "due_time", Reason: "обязательное поле"}
		}
		if strings.TrimSpace(r.Subject) == "" {
			return &FieldError{Field: "subject", Reason: "обязательное поле"}
		}
		if err := checkLength("subject", r.Subject); err != nil {
			return err
		}
	}
	return nil
}

func checkLength(field, value string) error {
	if utf8.RuneCountInString(value) > MaxTextLength {
		return &FieldError{Field: field, Reason: fmt.Sprintf("длиннее %d символов", MaxTextLength)}
	}
	return nil
}

// Clone возвращает независимую копию, указатели на время тоже копируются
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ReminderTime = copyTime(r.ReminderTime)
	out.DueTime = copyTime(r.DueTime)
	out.UpdatedAt = copyTime(r.UpdatedAt)
	return &out
}

// DefaultOrder - поле сортировки списка для каждого типа записей
func DefaultOrder(kind Kind) Field {
	if kind == KindAssessment {
		return FieldDueTime
	}
	return FieldReminderTime
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
