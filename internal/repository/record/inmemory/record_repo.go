package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	repo "readiculous/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordStorage хранит копии записей, наружу тоже отдаются только копии
type RecordStorage struct {
	storage map[uuid.UUID]*record.Record
	mtx     *sync.RWMutex
	ids     []uuid.UUID
	now     func() time.Time
}

func NewRecordStorage() *RecordStorage {
	return &RecordStorage{
		storage: make(map[uuid.UUID]*record.Record),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
		now:     time.Now,
	}
}

func (s *RecordStorage) HealthCheck(ctx context.Context) error {
	logger.Info("Repository: Соединение стабильно", zap.String("type", "inmemory"))
	return nil
}

func (s *RecordStorage) Create(ctx context.Context, toCreate *record.Record) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := toCreate.Validate(); err != nil {
		return nil, fmt.Errorf("добавление записи: %w", err)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	stored := toCreate.Clone()
	stored.ID = uuid.New()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = nil
	if stored.Kind == record.KindTask {
		stored.Completed = false
	}

	s.storage[stored.ID] = stored
	s.ids = append(s.ids, stored.ID)
	return stored.Clone(), nil
}

func (s *RecordStorage) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	stored, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return stored.Clone(), nil
}

func (s *RecordStorage) Update(ctx context.Context, id uuid.UUID, patch record.Patch) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	stored, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	updated := stored.Clone()
	patch.Apply(updated)
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	now := s.now()
	updated.UpdatedAt = &now
	s.storage[id] = updated
	return updated.Clone(), nil
}

func (s *RecordStorage) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[id]; !ok {
		return repo.ErrNotFound
	}

	delete(s.storage, id)
	for ind, val := range s.ids {
		if val == id {
			s.ids = append(s.ids[:ind], s.ids[ind+1:]...)
			break
		}
	}
	return nil
}

// List отдаёт записи владельца в порядке возрастания поля сортировки,
// записи без значения поля идут в конце в порядке добавления
func (s *RecordStorage) List(ctx context.Context, filter repo.ListFilter) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("получение записей: %w", err)
	}

	s.mtx.RLock()
	res := []*record.Record{}
	for _, id := range s.ids {
		stored := s.storage[id]
		if !filter.Matches(stored) {
			continue
		}
		res = append(res, stored.Clone())
	}
	s.mtx.RUnlock()

	order := filter.Order()
	sort.SliceStable(res, func(i, j int) bool {
		ti, okI := res[i].Instant(order)
		tj, okJ := res[j].Instant(order)
		switch {
		case okI && okJ:
			if ti.Equal(tj) {
				return res[i].CreatedAt.Before(res[j].CreatedAt)
			}
			return ti.Before(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return res, nil
}
