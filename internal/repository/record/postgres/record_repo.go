package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	repo "readiculous/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const selectColumns = `SELECT
				id,
				kind,
				owner_id,
				title,
				description,
				reminder_time,
				due_time,
				subject,
				completed,
				created_at,
				updated_at
				FROM records`

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Info("Repository: Соединение стабильно", zap.String("type", "postgres"))
	return nil
}

func (s *Storage) Create(ctx context.Context, toCreate *record.Record) (*record.Record, error) {
	start := time.Now()

	if err := toCreate.Validate(); err != nil {
		return nil, fmt.Errorf("добавление записи: %w", err)
	}

	created := toCreate.Clone()
	created.ID = uuid.New()
	created.UpdatedAt = nil
	if created.Kind == record.KindTask {
		created.Completed = false
	}

	query := `INSERT INTO records
				(id, kind, owner_id, title, description, reminder_time, due_time, subject, completed, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
				RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		created.ID,
		created.Kind,
		created.OwnerID,
		created.Title,
		created.Description,
		created.ReminderTime,
		created.DueTime,
		created.Subject,
		created.Completed,
	).Scan(&created.CreatedAt)

	if err != nil {
		logger.Error("Repository: Не удалось добавить запись", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("добавление записи: %w", err)
	}

	warnSlow(start, time.Millisecond*50)
	return created, nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	start := time.Now()

	found, err := scanRecord(s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить запись", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение записи: %w", err)
	}

	warnSlow(start, time.Millisecond*100)
	return found, nil
}

// Update читает строку под блокировкой, применяет patch и записывает результат в одной транзакции
func (s *Storage) Update(ctx context.Context, id uuid.UUID, patch record.Patch) (*record.Record, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось начать транзакцию", err)
		return nil, fmt.Errorf("начало транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanRecord(tx.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить запись для обновления", err)
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	patch.Apply(current)
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	query := `UPDATE records
			SET title = $1,
				description = $2,
				reminder_time = $3,
				due_time = $4,
				subject = $5,
				completed = $6,
				updated_at = NOW()
			WHERE id = $7
			RETURNING updated_at`

	err = tx.QueryRow(ctx, query,
		current.Title,
		current.Description,
		current.ReminderTime,
		current.DueTime,
		current.Subject,
		current.Completed,
		current.ID,
	).Scan(&current.UpdatedAt)
	if err != nil {
		logger.Error("Repository: Не удалось обновить запись", err, zap.String("record_id", id.String()))
		return nil, fmt.Errorf("обновление записи: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return nil, fmt.Errorf("фиксация транзакции: %w", err)
	}

	warnSlow(start, time.Millisecond*100)
	return current, nil
}

func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: Удаление записи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("удаление записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	warnSlow(start, time.Millisecond*100)
	return nil
}

func (s *Storage) List(ctx context.Context, filter repo.ListFilter) ([]*record.Record, error) {
	start := time.Now()

	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("получение записей: %w", err)
	}

	// имя колонки берётся только из проверенного record.Field
	query := selectColumns + ` WHERE owner_id = $1 AND kind = $2`
	args := []any{filter.OwnerID, filter.Kind}
	if filter.Completed != nil && filter.Kind == record.KindTask {
		query += ` AND completed = $3`
		args = append(args, *filter.Completed)
	}
	query += fmt.Sprintf(` ORDER BY %s ASC NULLS LAST, created_at ASC`, filter.Order())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить записи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение записей: %w", err)
	}
	defer rows.Close()

	records := []*record.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования записи", err)
			return nil, fmt.Errorf("сканирование записи: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	warnSlow(start, time.Millisecond*50+time.Millisecond*time.Duration(len(records)))
	return records, nil
}

func scanRecord(row pgx.Row) (*record.Record, error) {
	r := &record.Record{}
	err := row.Scan(
		&r.ID,
		&r.Kind,
		&r.OwnerID,
		&r.Title,
		&r.Description,
		&r.ReminderTime,
		&r.DueTime,
		&r.Subject,
		&r.Completed,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func warnSlow(start time.Time, threshold time.Duration) {
	if elapsed := time.Since(start); elapsed > threshold {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", elapsed))
	}
}
