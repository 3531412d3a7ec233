package service

import (
	"context"

	"readiculous/internal/models/record"
	rep "readiculous/internal/repository"
	"readiculous/internal/notify"

	"github.com/google/uuid"
)

type RecordRepository interface {
	HealthCheck(context.Context) error
	Create(context.Context, *record.Record) (*record.Record, error)
	GetByID(context.Context, uuid.UUID) (*record.Record, error)
	Update(context.Context, uuid.UUID, record.Patch) (*record.Record, error)
	Delete(context.Context, uuid.UUID) error
	List(context.Context, rep.ListFilter) ([]*record.Record, error)
}

type ReminderScheduler interface {
	Schedule(context.Context, notify.Request) notify.Outcome
}
