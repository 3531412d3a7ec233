package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"readiculous/internal/clock"
	"readiculous/internal/logger"
	"readiculous/internal/models/record"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultFallbackDelay - через сколько срабатывает напоминание, время которого уже прошло
const DefaultFallbackDelay = 10 * time.Second

const FallbackMarker = "(Fallback)"

// пробное уведомление с экрана настроек
const (
	TestTitle = "Test Notification"
	TestBody  = "This is a test push"
	TestDelay = 10 * time.Second
)

var ErrPermissionDenied = errors.New("notify: permission not granted")

type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

func (p Permission) IsValid() bool {
	switch p {
	case PermissionGranted, PermissionDenied, PermissionUndetermined:
		return true
	default:
		return false
	}
}

type State string

const (
	StateRequested         State = "requested"
	StatePermissionChecked State = "permission_checked"
	StateScheduled         State = "scheduled"
	StateDenied            State = "denied"
	StateFallbackScheduled State = "fallback_scheduled"
	StateFailed            State = "failed"
)

// Notification - одноразовое уведомление, которое capability должна показать через Delay
type Notification struct {
	Title    string
	Body     string
	Delay    time.Duration
	RecordID uuid.UUID
	Kind     record.Kind
}

// Capability - внешняя служба уведомлений: проверка разрешения и постановка одноразового уведомления
type Capability interface {
	CheckPermission(ctx context.Context) (Permission, error)
	Schedule(ctx context.Context, n Notification) (string, error)
}

type Request struct {
	Label    string
	Kind     record.Kind
	Title    string
	RecordID uuid.UUID
	Target   time.Time
}

// ForRecord собирает запрос на напоминание для записи. ok=false, если напоминание не задано.
func ForRecord(r *record.Record) (Request, bool) {
	if r == nil || r.ReminderTime == nil {
		return Request{}, false
	}
	return Request{
		Label:    LabelFor(r.Kind),
		Kind:     r.Kind,
		Title:    r.Title,
		RecordID: r.ID,
		Target:   *r.ReminderTime,
	}, true
}

func LabelFor(kind record.Kind) string {
	if kind == record.KindAssessment {
		return "Assessment Reminder"
	}
	return "Task Reminder"
}

// Outcome - итог одного запроса. Err заполнен только для StateFailed и StateDenied.
type Outcome struct {
	State          State         `json:"state"`
	NotificationID string        `json:"notification_id,omitempty"`
	Delay          time.Duration `json:"-"`
	DelaySeconds   int64         `json:"delay_seconds,omitempty"`
	Title          string        `json:"title,omitempty"`
	Body           string        `json:"body,omitempty"`
	Path           []State       `json:"path"`
	Err            error         `json:"-"`
}

func (o Outcome) Fallback() bool {
	return o.State == StateFallbackScheduled
}

type Scheduler struct {
	capability    Capability
	clock         clock.Clock
	fallbackDelay time.Duration
}

type Option func(*Scheduler)

// WithFallbackDelay нужен только тестам, в приложении задержка всегда DefaultFallbackDelay
func WithFallbackDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.fallbackDelay = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewScheduler(capability Capability, opts ...Option) *Scheduler {
	s := &Scheduler{
		capability:    capability,
		clock:         clock.System(),
		fallbackDelay: DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule проводит запрос через проверку разрешения и ставит одно уведомление:
// на целевое время, если оно в будущем, иначе через fallbackDelay с пометкой (Fallback).
// Ошибки capability не повторяются и возвращаются в Outcome.
func (s *Scheduler) Schedule(ctx context.Context, req Request) Outcome {
	out, ok := s.checkPermission(ctx, req.RecordID)
	if !ok {
		return out
	}

	notification := Notification{
		Title:    req.Label,
		Body:     fmt.Sprintf("Reminder for %s: %s", req.Kind, req.Title),
		RecordID: req.RecordID,
		Kind:     req.Kind,
	}
	final := StateScheduled

	delaySeconds := DelaySeconds(req.Target, s.clock.Now())
	if !req.Target.IsZero() && delaySeconds > 0 {
		notification.Delay = time.Duration(delaySeconds) * time.Second
	} else {
		final = StateFallbackScheduled
		notification.Delay = s.fallbackDelay
		notification.Title = notification.Title + " " + FallbackMarker
		notification.Body = notification.Body + " " + FallbackMarker
	}

	return s.send(ctx, out, notification, final)
}

// ScheduleTest ставит пробное уведомление через TestDelay, если уведомления разрешены
func (s *Scheduler) ScheduleTest(ctx context.Context) Outcome {
	out, ok := s.checkPermission(ctx, uuid.Nil)
	if !ok {
		return out
	}
	return s.send(ctx, out, Notification{
		Title: TestTitle,
		Body:  TestBody,
		Delay: TestDelay,
	}, StateScheduled)
}

func (s *Scheduler) checkPermission(ctx context.Context, recordID uuid.UUID) (Outcome, bool) {
	out := Outcome{State: StateRequested, Path: []State{StateRequested}}

	permission, err := s.capability.CheckPermission(ctx)
	if err != nil {
		logger.Warn("Scheduler: Не удалось проверить разрешение", zap.Error(err), zap.String("record_id", recordID.String()))
		return out.to(StateFailed, fmt.Errorf("проверка разрешения: %w", err)), false
	}
	out = out.to(StatePermissionChecked, nil)

	if permission != PermissionGranted {
		logger.Info("Scheduler: Уведомления не разрешены",
			zap.String("permission", string(permission)),
			zap.String("record_id", recordID.String()))
		return out.to(StateDenied, ErrPermissionDenied), false
	}
	return out, true
}

func (s *Scheduler) send(ctx context.Context, out Outcome, notification Notification, final State) Outcome {
	id, err := s.capability.Schedule(ctx, notification)
	if err != nil {
		logger.Warn("Scheduler: Не удалось запланировать уведомление", zap.Error(err), zap.String("record_id", notification.RecordID.String()))
		out.Title, out.Body = notification.Title, notification.Body
		return out.to(StateFailed, fmt.Errorf("планирование уведомления: %w", err))
	}

	out.NotificationID = id
	out.Delay = notification.Delay
	out.DelaySeconds = int64(notification.Delay / time.Second)
	out.Title = notification.Title
	out.Body = notification.Body

	logger.Info("Scheduler: Уведомление запланировано",
		zap.String("state", string(final)),
		zap.String("notification_id", id),
		zap.Int64("delay_seconds", out.DelaySeconds))
	return out.to(final, nil)
}

// DelaySeconds - целое число секунд до target с округлением вниз
func DelaySeconds(target, now time.Time) int64 {
	diff := target.Sub(now)
	seconds := int64(diff / time.Second)
	if diff < 0 && diff%time.Second != 0 {
		seconds--
	}
	return seconds
}

func (o Outcome) to(state State, err error) Outcome {
	o.State = state
	o.Path = append(o.Path, state)
	o.Err = err
	return o
}
