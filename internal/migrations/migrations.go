package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"readiculous/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) IsValid() bool {
	return d == Postgres || d == SQLite
}

// Up применяет все миграции. Повторный вызов без новых файлов не считается ошибкой.
func Up(dialect Dialect, dsn string) error {
	m, err := open(dialect, dsn)
	if err != nil {
		return err
	}

	logger.Info("Migrations: Применение миграций", zap.String("dialect", string(dialect)))
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("Migrations: Схема актуальна")
		err = nil
	} else if err != nil {
		err = fmt.Errorf("применение миграций: %w", err)
	}
	return multierr.Append(err, closeMigrate(m))
}

// Down откатывает все миграции
func Down(dialect Dialect, dsn string) error {
	m, err := open(dialect, dsn)
	if err != nil {
		return err
	}

	logger.Info("Migrations: Откат миграций", zap.String("dialect", string(dialect)))
	err = m.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	} else if err != nil {
		err = fmt.Errorf("откат миграций: %w", err)
	}
	return multierr.Append(err, closeMigrate(m))
}

// Version возвращает текущую версию схемы, 0 если миграции не применялись
func Version(dialect Dialect, dsn string) (uint, bool, error) {
	m, err := open(dialect, dsn)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	} else if err != nil {
		err = fmt.Errorf("версия схемы: %w", err)
	}
	return version, dirty, multierr.Append(err, closeMigrate(m))
}

func open(dialect Dialect, dsn string) (*migrate.Migrate, error) {
	if !dialect.IsValid() {
		return nil, fmt.Errorf("неизвестный диалект миграций %q", dialect)
	}

	source, err := iofs.New(files, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("чтение встроенных миграций: %w", err)
	}

	var (
		db     *sql.DB
		driver database.Driver
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			driver, err = postgres.WithInstance(db, &postgres.Config{})
		}
	case SQLite:
		db, err = sql.Open("sqlite3", dsn)
		if err == nil {
			driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
		}
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		logger.Error("Migrations: Не удалось подключиться к базе", err, zap.String("dialect", string(dialect)))
		return nil, fmt.Errorf("подключение для миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("создание мигратора: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) error {
	srcErr, dbErr := m.Close()
	return multierr.Combine(srcErr, dbErr)
}
