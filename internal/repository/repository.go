package repository

import (
	"errors"
	"fmt"

	"readiculous/internal/models/record"
)

var ErrNotFound = errors.New("запись не найдена")

// ErrInvalid - запись не прошла проверку обязательных полей
var ErrInvalid = record.ErrInvalid

// ListFilter - выборка записей владельца. OrderBy сортирует по возрастанию, пустые значения в конце.
type ListFilter struct {
	OwnerID   string
	Kind      record.Kind
	Completed *bool
	OrderBy   record.Field
}

func (f ListFilter) Validate() error {
	if !f.Kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalid, f.Kind)
	}
	if f.OrderBy != "" && !f.OrderBy.IsValid() {
		return fmt.Errorf("%w: order_by %q", ErrInvalid, f.OrderBy)
	}
	return nil
}

func (f ListFilter) Order() record.Field {
	if f.OrderBy == "" {
		return record.DefaultOrder(f.Kind)
	}
	return f.OrderBy
}

// Matches используется хранилищами, которые фильтруют в памяти
func (f ListFilter) Matches(r *record.Record) bool {
	if r.OwnerID != f.OwnerID || r.Kind != f.Kind {
		return false
	}
	if f.Completed != nil && r.Kind == record.KindTask && r.Completed != *f.Completed {
		return false
	}
	return true
}
