package service

import (
	"context"
	"errors"
	"fmt"

	"readiculous/internal/models/record"
	rep "readiculous/internal/repository"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeStore                = "STORE_ERROR"
	CodeStoreTimeout         = "STORE_TIMEOUT"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeInvalidMode          = "INVALID_MODE"
	CodeForbidden            = "FORBIDDEN"
	CodeUnauthenticated      = "UNAUTHENTICATED"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(kind record.Kind, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найден(а)", kind, id),
		Details: map[string]any{
			"resource": kind,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewStoreError различает истёкший таймаут хранилища и прочие сбои
func NewStoreError(op string, err error) *BusinessError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &BusinessError{
			Code:    CodeStoreTimeout,
			Message: fmt.Sprintf("хранилище не ответило вовремя: %s", op),
			Details: map[string]any{"operation": op},
			Err:     err,
		}
	}
	return &BusinessError{
		Code:    CodeStore,
		Message: fmt.Sprintf("ошибка хранилища: %s", op),
		Details: map[string]any{"operation": op},
		Err:     err,
	}
}

func NewInvalidMode(message string) *BusinessError {
	return NewBusinessError(CodeInvalidMode, message)
}

func NewConfirmationRequired(id string) *BusinessError {
	return NewBusinessError(CodeConfirmationRequired, "удаление нужно подтвердить", ToDetail("id", id))
}

func NewForbidden(id string) *BusinessError {
	return NewBusinessError(CodeForbidden, "запись принадлежит другому пользователю", ToDetail("id", id))
}

func NewUnauthenticated() *BusinessError {
	return NewBusinessError(CodeUnauthenticated, "не указан пользователь")
}

// CodeOf возвращает код бизнес-ошибки или пустую строку
func CodeOf(err error) string {
	var busErr *BusinessError
	if errors.As(err, &busErr) {
		return busErr.Code
	}
	return ""
}

func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

func IsStore(err error) bool {
	code := CodeOf(err)
	return code == CodeStore || code == CodeStoreTimeout
}

// fromRepo переводит ошибку хранилища в бизнес-ошибку
func fromRepo(op string, kind record.Kind, id string, err error) *BusinessError {
	var busErr *BusinessError
	if errors.As(err, &busErr) {
		return busErr
	}

	if errors.Is(err, rep.ErrNotFound) {
		notFound := NewNotFound(kind, id)
		notFound.Err = err
		return notFound
	}

	var fieldErr *record.FieldError
	if errors.As(err, &fieldErr) {
		validation := NewValidationError(fieldErr.Field, fieldErr.Reason)
		validation.Err = err
		return validation
	}
	if errors.Is(err, rep.ErrInvalid) {
		validation := NewValidationError("", err.Error())
		validation.Err = err
		return validation
	}

	return NewStoreError(op, err)
}
