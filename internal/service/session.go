package service

import (
	"context"
	"sync"
	"time"

	"readiculous/internal/events"
	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	"readiculous/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeClosed Mode = "closed"
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// SessionDeps - внешние зависимости редактора. Scheduler и Publisher могут быть nil.
type SessionDeps struct {
	Repo         RecordRepository
	Scheduler    ReminderScheduler
	Publisher    events.Publisher
	StoreTimeout time.Duration
}

type SubmitResult struct {
	Record   *record.Record  `json:"record"`
	Reminder *notify.Outcome `json:"reminder,omitempty"`
	// Stale - форму закрыли или открыли заново, пока шло сохранение
	Stale bool `json:"-"`
}

// Session - одна открытая форма создания или редактирования. Черновик меняется только через
// Session, на время обращения к хранилищу блокировка снимается. Ответ, пришедший после
// Cancel или повторного Open, не трогает новое состояние формы.
type Session struct {
	mu              sync.Mutex
	owner           string
	kind            record.Kind
	mode            Mode
	original        *record.Record
	draft           record.Draft
	generation      uint64
	deleteRequested bool
	inflight        uint64
	deps            SessionDeps
}

func NewSession(owner string, kind record.Kind, deps SessionDeps) *Session {
	return &Session{
		owner: owner,
		kind:  kind,
		mode:  ModeClosed,
		deps:  deps,
	}
}

// Open открывает форму: с записью - редактирование, без - создание. Прежний черновик теряется.
func (s *Session) Open(existing *record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.deleteRequested = false
	if existing != nil {
		s.mode = ModeEdit
		s.kind = existing.Kind
		s.original = existing.Clone()
		s.draft = record.DraftFrom(existing)
		return
	}
	s.mode = ModeCreate
	s.original = nil
	s.draft = record.NewDraft(s.kind)
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) DeleteRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRequested
}

// Original - запись, открытая на редактирование, nil в режиме создания
func (s *Session) Original() *record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original.Clone()
}

// Draft возвращает копию черновика
func (s *Session) Draft() record.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDraft(s.draft)
}

// Edit меняет черновик. Тип записи формой не меняется.
func (s *Session) Edit(fn func(*record.Draft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeClosed {
		return NewInvalidMode("форма закрыта")
	}
	if fn == nil {
		return nil
	}
	kind := s.draft.Kind
	fn(&s.draft)
	s.draft.Kind = kind
	return nil
}

func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeClosed {
		logger.Info("Service: Форма закрыта без сохранения", zap.String("owner_id", s.owner), zap.String("mode", string(s.mode)))
	}
	s.close()
}

// Submit проверяет черновик, сохраняет его и после сохранения ставит напоминание.
// При ошибке хранилища форма остаётся открытой, кроме случая, когда записи уже нет.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()
	if s.mode == ModeClosed {
		s.mu.Unlock()
		return SubmitResult{}, NewInvalidMode("форма закрыта")
	}
	if s.busyLocked() {
		s.mu.Unlock()
		return SubmitResult{}, NewInvalidMode("сохранение уже выполняется")
	}
	draft := copyDraft(s.draft)
	if err := draft.Validate(); err != nil {
		s.mu.Unlock()
		return SubmitResult{}, fromRepo("проверка черновика", draft.Kind, "", err)
	}
	gen := s.generation
	mode := s.mode
	original := s.original
	owner := s.owner
	s.inflight = gen
	s.mu.Unlock()

	defer s.release(gen)

	var (
		saved  *record.Record
		err    error
		reason events.Reason
		target uuid.UUID
	)

	storeCtx, cancel := s.storeContext(ctx)
	if mode == ModeEdit {
		reason, target = events.ReasonUpdated, original.ID
		saved, err = s.deps.Repo.Update(storeCtx, original.ID, draft.Patch())
	} else {
		reason = events.ReasonCreated
		saved, err = s.deps.Repo.Create(storeCtx, draft.ToRecord(owner))
	}
	cancel()

	if err != nil {
		busErr := fromRepo("сохранение записи", draft.Kind, target.String(), err)
		logger.Error("Service: Не удалось сохранить запись", err,
			zap.String("owner_id", owner),
			zap.String("code", busErr.Code))

		s.mu.Lock()
		if busErr.Code == CodeNotFound && gen == s.generation {
			s.close()
		}
		s.mu.Unlock()

		s.publish(events.Event{OwnerID: owner, Reason: events.ReasonFailed, Kind: draft.Kind, RecordID: target})
		return SubmitResult{}, busErr
	}

	result := SubmitResult{Record: saved}
	if req, ok := notify.ForRecord(saved); ok && s.deps.Scheduler != nil {
		outcome := s.deps.Scheduler.Schedule(ctx, req)
		result.Reminder = &outcome
	}

	s.mu.Lock()
	if gen == s.generation {
		s.close()
	} else {
		result.Stale = true
	}
	s.mu.Unlock()

	logger.Info("Service: Запись сохранена",
		zap.String("owner_id", owner),
		zap.String("record_id", saved.ID.String()),
		zap.String("reason", string(reason)),
		zap.Bool("stale", result.Stale))

	s.publish(events.Event{OwnerID: owner, Reason: reason, Kind: saved.Kind, RecordID: saved.ID})
	return result, nil
}

// RequestDelete - первый шаг удаления, запись ещё не трогается
func (s *Session) RequestDelete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEdit {
		return NewInvalidMode("удалить можно только открытую на редактирование запись")
	}
	s.deleteRequested = true
	return nil
}

func (s *Session) CancelDelete() {
	s.mu.Lock()
	s.deleteRequested = false
	s.mu.Unlock()
}

// ConfirmDelete - второй шаг удаления. Без RequestDelete ничего не удаляет.
func (s *Session) ConfirmDelete(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeEdit {
		s.mu.Unlock()
		return NewInvalidMode("удалить можно только открытую на редактирование запись")
	}
	if !s.deleteRequested {
		s.mu.Unlock()
		return NewConfirmationRequired(s.original.ID.String())
	}
	if s.busyLocked() {
		s.mu.Unlock()
		return NewInvalidMode("сохранение уже выполняется")
	}
	gen := s.generation
	target := s.original.Clone()
	owner := s.owner
	s.inflight = gen
	s.mu.Unlock()

	defer s.release(gen)

	storeCtx, cancel := s.storeContext(ctx)
	err := s.deps.Repo.Delete(storeCtx, target.ID)
	cancel()

	if err != nil {
		busErr := fromRepo("удаление записи", target.Kind, target.ID.String(), err)
		logger.Error("Service: Не удалось удалить запись", err,
			zap.String("record_id", target.ID.String()),
			zap.String("code", busErr.Code))

		s.mu.Lock()
		if gen == s.generation {
			if busErr.Code == CodeNotFound {
				s.close()
			} else {
				s.deleteRequested = false
			}
		}
		s.mu.Unlock()

		s.publish(events.Event{OwnerID: owner, Reason: events.ReasonFailed, Kind: target.Kind, RecordID: target.ID})
		return busErr
	}

	s.mu.Lock()
	if gen == s.generation {
		s.close()
	}
	s.mu.Unlock()

	logger.Info("Service: Запись удалена", zap.String("record_id", target.ID.String()))
	s.publish(events.Event{OwnerID: owner, Reason: events.ReasonDeleted, Kind: target.Kind, RecordID: target.ID})
	return nil
}

// ToggleCompleted переключает выполнение задачи. Локальная копия не меняется, возвращается
// запись из хранилища.
func (s *Session) ToggleCompleted(ctx context.Context, r *record.Record) (*record.Record, error) {
	if r == nil || r.Kind != record.KindTask {
		return nil, NewValidationError("completed", "переключать можно только задачу")
	}
	if r.OwnerID != s.owner {
		return nil, NewForbidden(r.ID.String())
	}

	storeCtx, cancel := s.storeContext(ctx)
	updated, err := s.deps.Repo.Update(storeCtx, r.ID, record.NewPatch(record.WithCompleted(!r.Completed)))
	cancel()

	if err != nil {
		busErr := fromRepo("переключение выполнения", r.Kind, r.ID.String(), err)
		logger.Error("Service: Не удалось переключить выполнение", err, zap.String("record_id", r.ID.String()))
		s.publish(events.Event{OwnerID: s.owner, Reason: events.ReasonFailed, Kind: r.Kind, RecordID: r.ID})
		return nil, busErr
	}

	s.publish(events.Event{OwnerID: s.owner, Reason: events.ReasonToggled, Kind: r.Kind, RecordID: r.ID})
	return updated, nil
}

// busyLocked - по текущей форме уже идёт запрос к хранилищу
func (s *Session) busyLocked() bool {
	return s.inflight != 0 && s.inflight == s.generation
}

func (s *Session) release(gen uint64) {
	s.mu.Lock()
	if s.inflight == gen {
		s.inflight = 0
	}
	s.mu.Unlock()
}

// close вызывается под s.mu
func (s *Session) close() {
	s.generation++
	s.mode = ModeClosed
	s.original = nil
	s.draft = record.Draft{}
	s.deleteRequested = false
}

func (s *Session) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.StoreTimeout > 0 {
		return context.WithTimeout(ctx, s.deps.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) publish(e events.Event) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(e)
	}
}

func copyDraft(d record.Draft) record.Draft {
	out := d
	if d.ReminderTime != nil {
		t := *d.ReminderTime
		out.ReminderTime = &t
	}
	if d.DueTime != nil {
		t := *d.DueTime
		out.DueTime = &t
	}
	return out
}
