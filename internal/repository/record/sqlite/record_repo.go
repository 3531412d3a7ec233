package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	repo "readiculous/internal/repository"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const timeLayout = time.RFC3339Nano

const selectColumns = `SELECT id, kind, owner_id, title, description, reminder_time, due_time, subject, completed, created_at, updated_at FROM records`

type Storage struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) (*Storage, error) {
	if db == nil {
		return nil, errors.New("sqlite: nil db")
	}
	// sqlite не любит конкурентных писателей
	db.SetMaxOpenConns(1)
	return &Storage{db: db, now: time.Now}, nil
}

func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logger.Error("Repository: Не удалось открыть sqlite", err, zap.String("path", path))
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	storage, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("Repository: Открыта база SQLite", zap.String("path", path))
	return storage, nil
}

func (s *Storage) Close() error {
	logger.Info("Repository: Закрытие базы SQLite")
	return s.db.Close()
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Info("Repository: Соединение стабильно", zap.String("type", "sqlite"))
	return nil
}

func (s *Storage) Create(ctx context.Context, toCreate *record.Record) (*record.Record, error) {
	if err := toCreate.Validate(); err != nil {
		return nil, fmt.Errorf("добавление записи: %w", err)
	}

	created := toCreate.Clone()
	created.ID = uuid.New()
	created.CreatedAt = s.now().UTC()
	created.UpdatedAt = nil
	if created.Kind == record.KindTask {
		created.Completed = false
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, owner_id, title, description, reminder_time, due_time, subject, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID.String(), string(created.Kind), created.OwnerID, created.Title, created.Description,
		nullTime(created.ReminderTime), nullTime(created.DueTime), created.Subject,
		boolInt(created.Completed), mustTime(created.CreatedAt),
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить запись", err)
		return nil, fmt.Errorf("добавление записи: %w", err)
	}
	return created, nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	found, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить запись", err)
		return nil, fmt.Errorf("получение записи: %w", err)
	}
	return found, nil
}

func (s *Storage) Update(ctx context.Context, id uuid.UUID, patch record.Patch) (*record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("начало транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	patch.Apply(current)
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	now := s.now().UTC()
	current.UpdatedAt = &now

	res, err := tx.ExecContext(ctx, `
		UPDATE records
		SET title = ?, description = ?, reminder_time = ?, due_time = ?, subject = ?, completed = ?, updated_at = ?
		WHERE id = ?`,
		current.Title, current.Description, nullTime(current.ReminderTime), nullTime(current.DueTime),
		current.Subject, boolInt(current.Completed), mustTime(now), id.String(),
	)
	if err != nil {
		logger.Error("Repository: Не удалось обновить запись", err, zap.String("record_id", id.String()))
		return nil, fmt.Errorf("обновление записи: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("фиксация транзакции: %w", err)
	}
	return current, nil
}

func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id.String())
	if err != nil {
		logger.Error("Repository: Удаление записи", err)
		return fmt.Errorf("удаление записи: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Storage) List(ctx context.Context, filter repo.ListFilter) ([]*record.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("получение записей: %w", err)
	}

	query := selectColumns + ` WHERE owner_id = ? AND kind = ?`
	args := []any{filter.OwnerID, string(filter.Kind)}
	if filter.Completed != nil && filter.Kind == record.KindTask {
		query += ` AND completed = ?`
		args = append(args, boolInt(*filter.Completed))
	}
	// время хранится в UTC фиксированной ширины, поэтому строки сортируются как время
	order := string(filter.Order())
	query += fmt.Sprintf(` ORDER BY %s IS NULL, %s ASC, created_at ASC`, order, order)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить записи", err)
		return nil, fmt.Errorf("получение записей: %w", err)
	}
	defer rows.Close()

	out := []*record.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование записи: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*record.Record, error) {
	var (
		out       record.Record
		id        string
		kind      string
		reminder  sql.NullString
		due       sql.NullString
		completed int
		created   string
		updated   sql.NullString
	)
	if err := s.Scan(&id, &kind, &out.OwnerID, &out.Title, &out.Description, &reminder, &due, &out.Subject, &completed, &created, &updated); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	out.ID = parsedID
	out.Kind = record.Kind(kind)
	out.Completed = completed != 0

	if out.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	if out.ReminderTime, err = parseNullableTime(reminder); err != nil {
		return nil, err
	}
	if out.DueTime, err = parseNullableTime(due); err != nil {
		return nil, err
	}
	if out.UpdatedAt, err = parseNullableTime(updated); err != nil {
		return nil, err
	}
	return &out, nil
}

// fixed-width наносекунды, чтобы строки сравнивались как время
const sortableLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sortableLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sortableLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
