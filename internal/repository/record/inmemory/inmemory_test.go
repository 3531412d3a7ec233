package inmemory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"readiculous/internal/models/record"
	"readiculous/internal/repository"
	"readiculous/internal/repository/record/inmemory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t time.Time) *time.Time { return &t }

// TestRecordStorage_New тестирует создание хранилища
func TestRecordStorage_New(t *testing.T) {
	storage := inmemory.NewRecordStorage()
	assert.NotNil(t, storage)
	assert.NoError(t, storage.HealthCheck(context.Background()))
}

// TestRecordStorage_Create тестирует создание задачи
func TestRecordStorage_Create(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	toCreate := &record.Record{
		Kind:        record.KindTask,
		OwnerID:     "user-1",
		Title:       "Review notes",
		Description: "chapter 3",
		Completed:   true,
	}

	created, err := storage.Create(ctx, toCreate)
	require.NoError(t, err)

	// Проверяем, что поля заполнены хранилищем
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.Completed)
	assert.Equal(t, uuid.Nil, toCreate.ID, "вход не должен меняться")

	retrieved, err := storage.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review notes", retrieved.Title)
	assert.Equal(t, "user-1", retrieved.OwnerID)
}

// TestRecordStorage_Create_Invalid тестирует отказ без обязательных полей
func TestRecordStorage_Create_Invalid(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	_, err := storage.Create(ctx, &record.Record{Kind: record.KindAssessment, OwnerID: "u", Title: "Exam"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrInvalid))

	list, err := storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: record.KindAssessment})
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestRecordStorage_Update тестирует частичное обновление
func TestRecordStorage_Update(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	created, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "Original"})
	require.NoError(t, err)

	reminder := time.Now().Add(time.Hour)
	updated, err := storage.Update(ctx, created.ID, record.NewPatch(
		record.WithTitle("Updated"),
		record.WithReminderTime(reminder),
		record.WithCompleted(true),
	))
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.ReminderTime)
	assert.True(t, reminder.Equal(*updated.ReminderTime))
	assert.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "u", updated.OwnerID)

	t.Run("validation keeps stored version", func(t *testing.T) {
		_, err := storage.Update(ctx, created.ID, record.NewPatch(record.WithTitle("")))
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrInvalid))

		stored, err := storage.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Updated", stored.Title)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := storage.Update(ctx, uuid.New(), record.NewPatch(record.WithTitle("x")))
		assert.Equal(t, repository.ErrNotFound, err)
	})
}

// TestRecordStorage_Delete тестирует удаление и повторное удаление
func TestRecordStorage_Delete(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	created, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "To delete"})
	require.NoError(t, err)

	require.NoError(t, storage.Delete(ctx, created.ID))

	_, err = storage.GetByID(ctx, created.ID)
	assert.Equal(t, repository.ErrNotFound, err)

	err = storage.Delete(ctx, created.ID)
	assert.Equal(t, repository.ErrNotFound, err)
}

// TestRecordStorage_List тестирует фильтр по владельцу, типу и сортировку
func TestRecordStorage_List(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()
	base := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)

	mk := func(owner, title string, reminder *time.Time) {
		_, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: owner, Title: title, ReminderTime: reminder})
		require.NoError(t, err)
	}
	mk("u", "no reminder", nil)
	mk("u", "late", at(base.Add(48*time.Hour)))
	mk("u", "early", at(base))
	mk("other", "foreign", at(base))
	mk("u", "middle", at(base.Add(time.Hour)))

	due := base
	_, err := storage.Create(ctx, &record.Record{Kind: record.KindAssessment, OwnerID: "u", Title: "exam", Subject: "Math", DueTime: &due})
	require.NoError(t, err)

	tasks, err := storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: record.KindTask, OrderBy: record.FieldReminderTime})
	require.NoError(t, err)

	titles := []string{}
	for _, r := range tasks {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"early", "middle", "late", "no reminder"}, titles)

	assessments, err := storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: record.KindAssessment})
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	assert.Equal(t, "exam", assessments[0].Title)

	_, err = storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: "note"})
	assert.True(t, errors.Is(err, repository.ErrInvalid))
}

func TestRecordStorage_List_Completed(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	a, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "a"})
	require.NoError(t, err)
	_, err = storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "b"})
	require.NoError(t, err)
	_, err = storage.Update(ctx, a.ID, record.NewPatch(record.WithCompleted(true)))
	require.NoError(t, err)

	done := true
	list, err := storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: record.KindTask, Completed: &done})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Title)
}

// TestRecordStorage_ReturnsCopies тестирует, что изменения снаружи не попадают в хранилище
func TestRecordStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()

	created, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "a"})
	require.NoError(t, err)
	created.Title = "changed outside"

	stored, err := storage.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", stored.Title)
}

// TestRecordStorage_ConcurrentAccess тестирует конкурентный доступ
func TestRecordStorage_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewRecordStorage()
	count := 100
	goroutines := 10

	var wg sync.WaitGroup
	errs := make(chan error, count)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < count/goroutines; j++ {
				_, err := storage.Create(ctx, &record.Record{
					Kind:    record.KindTask,
					OwnerID: "u",
					Title:   fmt.Sprintf("Task %d-%d", workerID, j),
				})
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	list, err := storage.List(ctx, repository.ListFilter{OwnerID: "u", Kind: record.KindTask})
	require.NoError(t, err)
	assert.Len(t, list, count)
}

func TestRecordStorage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	storage := inmemory.NewRecordStorage()

	_, err := storage.Create(ctx, &record.Record{Kind: record.KindTask, OwnerID: "u", Title: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
