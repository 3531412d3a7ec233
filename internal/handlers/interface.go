package handlers

import (
	"context"

	"readiculous/internal/dashboard"
	"readiculous/internal/models/record"
	"readiculous/internal/notify"
	"readiculous/internal/service"

	"github.com/google/uuid"
)

type Service interface {
	HealthCheck(ctx context.Context) error
	List(ctx context.Context, owner string, kind record.Kind, opts service.ListOptions) ([]*record.Record, error)
	Get(ctx context.Context, owner string, kind record.Kind, id uuid.UUID) (*record.Record, error)
	Create(ctx context.Context, owner string, draft record.Draft) (service.SubmitResult, error)
	Update(ctx context.Context, owner string, kind record.Kind, id uuid.UUID, edit func(*record.Draft)) (service.SubmitResult, error)
	Delete(ctx context.Context, owner string, kind record.Kind, id uuid.UUID, confirmed bool) error
	ToggleCompleted(ctx context.Context, owner string, id uuid.UUID) (*record.Record, error)
}

type Dashboard interface {
	Current(ctx context.Context, owner string) (*dashboard.Snapshot, error)
}

// Permissions - разрешение локальной службы уведомлений
type Permissions interface {
	Permission() notify.Permission
	SetPermission(p notify.Permission) error
}

type TestNotifier interface {
	ScheduleTest(ctx context.Context) notify.Outcome
}

var _ Service = (*service.RecordService)(nil)
var _ Dashboard = (*dashboard.Aggregator)(nil)
var _ TestNotifier = (*notify.Scheduler)(nil)
