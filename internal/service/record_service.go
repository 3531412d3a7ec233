package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"readiculous/internal/events"
	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	rep "readiculous/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// здесь происходит проверка ошибок бизнес-логики, все изменения идут через Session

type RecordService struct {
	repo         RecordRepository
	scheduler    ReminderScheduler
	publisher    events.Publisher
	storeTimeout time.Duration
}

type Option func(*RecordService)

func WithScheduler(scheduler ReminderScheduler) Option {
	return func(s *RecordService) {
		s.scheduler = scheduler
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *RecordService) {
		s.publisher = publisher
	}
}

func WithStoreTimeout(timeout time.Duration) Option {
	return func(s *RecordService) {
		s.storeTimeout = timeout
	}
}

func NewRecordService(repo RecordRepository, options ...Option) *RecordService {
	s := &RecordService{repo: repo}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *RecordService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		logger.Error("Service: Хранилище недоступно", err)
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

// NewSession открывает редактор записей для владельца
func (s *RecordService) NewSession(owner string, kind record.Kind) *Session {
	return NewSession(owner, kind, SessionDeps{
		Repo:         s.repo,
		Scheduler:    s.scheduler,
		Publisher:    s.publisher,
		StoreTimeout: s.storeTimeout,
	})
}

type ListOptions struct {
	Completed *bool
}

// List возвращает записи владельца в порядке поля по умолчанию для типа.
// Без владельца возвращается пустой список.
func (s *RecordService) List(ctx context.Context, owner string, kind record.Kind, opts ListOptions) ([]*record.Record, error) {
	if !kind.IsValid() {
		return nil, NewValidationError("kind", fmt.Sprintf("неизвестный тип %q", kind))
	}
	if owner == "" {
		return []*record.Record{}, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	records, err := s.repo.List(storeCtx, rep.ListFilter{
		OwnerID:   owner,
		Kind:      kind,
		Completed: opts.Completed,
		OrderBy:   record.DefaultOrder(kind),
	})
	if err != nil {
		logger.Error("Service: Не удалось получить записи", err, zap.String("owner_id", owner), zap.String("kind", string(kind)))
		return nil, fromRepo("получение записей", kind, "", err)
	}
	return records, nil
}

// Get возвращает запись владельца. Запись другого типа считается отсутствующей.
func (s *RecordService) Get(ctx context.Context, owner string, kind record.Kind, id uuid.UUID) (*record.Record, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	found, err := s.repo.GetByID(storeCtx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			logger.Info("Service: Запись не найдена", zap.String("target_id", id.String()))
		}
		return nil, fromRepo("получение записи", kind, id.String(), err)
	}
	if found.Kind != kind {
		return nil, NewNotFound(kind, id.String())
	}
	if found.OwnerID != owner {
		logger.Warn("Service: Попытка доступа к чужой записи", zap.String("target_id", id.String()), zap.String("owner_id", owner))
		return nil, NewForbidden(id.String())
	}
	return found, nil
}

func (s *RecordService) Create(ctx context.Context, owner string, draft record.Draft) (SubmitResult, error) {
	if owner == "" {
		return SubmitResult{}, NewUnauthenticated()
	}
	if !draft.Kind.IsValid() {
		return SubmitResult{}, NewValidationError("kind", fmt.Sprintf("неизвестный тип %q", draft.Kind))
	}

	session := s.NewSession(owner, draft.Kind)
	session.Open(nil)
	if err := session.Edit(func(d *record.Draft) { *d = draft }); err != nil {
		return SubmitResult{}, err
	}
	return session.Submit(ctx)
}

func (s *RecordService) Update(ctx context.Context, owner string, kind record.Kind, id uuid.UUID, edit func(*record.Draft)) (SubmitResult, error) {
	if owner == "" {
		return SubmitResult{}, NewUnauthenticated()
	}
	existing, err := s.Get(ctx, owner, kind, id)
	if err != nil {
		return SubmitResult{}, err
	}

	session := s.NewSession(owner, kind)
	session.Open(existing)
	if err := session.Edit(edit); err != nil {
		return SubmitResult{}, err
	}
	return session.Submit(ctx)
}

// Delete удаляет запись только с подтверждением, повторяя двухшаговое удаление формы
func (s *RecordService) Delete(ctx context.Context, owner string, kind record.Kind, id uuid.UUID, confirmed bool) error {
	if owner == "" {
		return NewUnauthenticated()
	}
	if !confirmed {
		return NewConfirmationRequired(id.String())
	}
	existing, err := s.Get(ctx, owner, kind, id)
	if err != nil {
		return err
	}

	session := s.NewSession(owner, kind)
	session.Open(existing)
	if err := session.RequestDelete(); err != nil {
		return err
	}
	return session.ConfirmDelete(ctx)
}

func (s *RecordService) ToggleCompleted(ctx context.Context, owner string, id uuid.UUID) (*record.Record, error) {
	if owner == "" {
		return nil, NewUnauthenticated()
	}
	existing, err := s.Get(ctx, owner, record.KindTask, id)
	if err != nil {
		return nil, err
	}
	return s.NewSession(owner, record.KindTask).ToggleCompleted(ctx, existing)
}

func (s *RecordService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}
