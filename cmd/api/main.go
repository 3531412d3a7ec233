package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"readiculous/internal/app"
	"readiculous/internal/config"
	"readiculous/internal/logger"
	"readiculous/internal/migrations"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "readiculous",
		Short:         "Readiculous - напоминания о задачах и оцениваниях",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "путь к config.yml")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и фоновые воркеры",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg).Init(ctx)
			if err != nil {
				return fmt.Errorf("инициализация приложения: %w", err)
			}

			runErr := a.Run(ctx)
			return multierr.Combine(runErr, a.Shutdown())
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Управление схемой хранилища записей",
	}

	run := func(apply func(migrations.Dialect, string) error, action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging.Development); err != nil {
				return err
			}
			defer logger.Sync()

			dialect, dsn, err := target(cfg)
			if err != nil {
				return err
			}
			if err := apply(dialect, dsn); err != nil {
				return fmt.Errorf("миграции %s: %w", action, err)
			}

			version, dirty, err := migrations.Version(dialect, dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: версия схемы %d (dirty=%t)\n", dialect, version, dirty)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		RunE:  run(migrations.Up, "up"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Откатить все миграции",
		RunE:  run(migrations.Down, "down"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Показать версию схемы",
		RunE:  run(func(migrations.Dialect, string) error { return nil }, "version"),
	})
	return cmd
}

func target(cfg *config.Config) (migrations.Dialect, string, error) {
	switch cfg.Repository.Type {
	case config.RepositoryPostgres:
		return migrations.Postgres, cfg.Database.URL, nil
	case config.RepositorySQLite:
		return migrations.SQLite, cfg.SQLite.Path, nil
	default:
		return "", "", fmt.Errorf("у репозитория %q нет схемы", cfg.Repository.Type)
	}
}
