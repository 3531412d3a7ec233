package service_test

import (
	"context"
	"sync"

	"readiculous/internal/events"
	"readiculous/internal/models/record"
	"readiculous/internal/notify"
	rep "readiculous/internal/repository"
	"readiculous/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRecordRepository - мок репозитория
type MockRecordRepository struct {
	mock.Mock
}

var _ service.RecordRepository = (*MockRecordRepository)(nil)

func (m *MockRecordRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRecordRepository) Create(ctx context.Context, r *record.Record) (*record.Record, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*record.Record), args.Error(1)
}

func (m *MockRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*record.Record), args.Error(1)
}

func (m *MockRecordRepository) Update(ctx context.Context, id uuid.UUID, patch record.Patch) (*record.Record, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*record.Record), args.Error(1)
}

func (m *MockRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRecordRepository) List(ctx context.Context, filter rep.ListFilter) ([]*record.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*record.Record), args.Error(1)
}

// MockCapability - мок системы уведомлений
type MockCapability struct {
	mock.Mock
}

var _ notify.Capability = (*MockCapability)(nil)

func (m *MockCapability) CheckPermission(ctx context.Context) (notify.Permission, error) {
	args := m.Called(ctx)
	return args.Get(0).(notify.Permission), args.Error(1)
}

func (m *MockCapability) Schedule(ctx context.Context, n notify.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Publisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Reasons() []events.Reason {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Reason, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Reason)
	}
	return out
}
