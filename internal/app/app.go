package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"readiculous/internal/clock"
	"readiculous/internal/config"
	"readiculous/internal/dashboard"
	"readiculous/internal/events"
	"readiculous/internal/handlers"
	"readiculous/internal/logger"
	"readiculous/internal/middleware"
	"readiculous/internal/migrations"
	"readiculous/internal/notify"
	"readiculous/internal/notify/local"
	"readiculous/internal/repository/record/inmemory"
	"readiculous/internal/repository/record/postgres"
	"readiculous/internal/repository/record/sqlite"
	"readiculous/internal/service"
	"readiculous/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.RecordRepository // интерфейс!
	service    *service.RecordService
	notifier   *local.Notifier
	bus        *events.Bus
	dashboard  *dashboard.Aggregator
	delivery   *worker.DeliveryWorker
	rollover   *worker.RolloverWorker
	shutdowns  []func() error // функции для graceful shutdown, выполняются в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func() error, 0),
	}
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() error {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
		return nil
	})

	loc, err := a.config.Location()
	if err != nil {
		return nil, err
	}

	if err := a.initRepository(ctx); err != nil {
		return nil, err
	}

	a.notifier = local.New(notify.Permission(a.config.Notifications.Permission), a.config.Notifications.Buffer)
	scheduler := notify.NewScheduler(a.notifier)

	a.bus = events.NewBus()
	a.shutdowns = append(a.shutdowns, func() error {
		a.bus.Close()
		return nil
	})

	// главный экран помечается изменённым до доставки события по шине
	invalidate := events.PublisherFunc(func(e events.Event) {
		a.dashboard.Invalidate(e.OwnerID)
	})
	a.service = service.NewRecordService(a.repository,
		service.WithScheduler(scheduler),
		service.WithPublisher(events.Fanout(invalidate, a.bus)),
		service.WithStoreTimeout(a.config.Coordinator.StoreTimeout),
	)
	a.dashboard = dashboard.New(a.service, clock.System(), loc)

	a.delivery = worker.NewDeliveryWorker(a.notifier.C(), nil)
	interval := a.config.Worker.RolloverInterval
	batch := a.config.Worker.BatchSize
	a.rollover = worker.NewRolloverWorker(a.dashboard, &interval, &batch)

	a.router = chi.NewRouter()
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Identity)
	a.router.Use(middleware.Logging)
	a.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", middleware.UserIDHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if a.config.Server.RequestTimeout > 0 {
		a.router.Use(middleware.Timeout(a.config.Server.RequestTimeout))
	}
	if a.config.RateLimit.RPM > 0 {
		a.router.Use(middleware.RateLimit(a.config.RateLimit.RPM))
	}

	h := handlers.NewHandler(a.service, a.dashboard, a.notifier, scheduler)
	h.SetLocation(loc)
	h.Routes(a.router)

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      otelhttp.NewHandler(a.router, "readiculous"),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	logger.Info("App: Инициализация завершена",
		zap.String("repository", a.config.Repository.Type),
		zap.String("addr", a.server.Addr),
		zap.String("timezone", loc.String()))
	return a, nil
}

func (a *App) initRepository(ctx context.Context) error {
	switch a.config.Repository.Type {
	case config.RepositoryPostgres:
		if a.config.Database.AutoMigrate {
			if err := migrations.Up(migrations.Postgres, a.config.Database.URL); err != nil {
				return fmt.Errorf("миграции postgres: %w", err)
			}
		}
		store, err := postgres.New(ctx, a.config.Database.URL, postgres.PoolConfig{
			MaxConns:        int32(a.config.Database.MaxConnections),
			MinConns:        int32(a.config.Database.MinConnections),
			MaxConnIdleTime: a.config.Database.IdleTimeout,
		})
		if err != nil {
			return fmt.Errorf("подключение к postgres: %w", err)
		}
		a.repository = store
		a.shutdowns = append(a.shutdowns, func() error {
			store.Close()
			return nil
		})

	case config.RepositorySQLite:
		if err := migrations.Up(migrations.SQLite, a.config.SQLite.Path); err != nil {
			return fmt.Errorf("миграции sqlite: %w", err)
		}
		store, err := sqlite.Open(a.config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("открытие sqlite: %w", err)
		}
		a.repository = store
		a.shutdowns = append(a.shutdowns, store.Close)

	default:
		a.repository = inmemory.NewRecordStorage()
	}
	return nil
}

// Run запускает сервер и фоновые циклы, возвращается после отмены ctx или первой ошибки
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	signals, unsubscribe := a.bus.Subscribe(64)
	defer unsubscribe()

	g.Go(func() error {
		logger.Info("Server started", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.notifier.Run(gctx) })
	g.Go(func() error { return a.delivery.Start(gctx) })
	g.Go(func() error { return a.dashboard.Run(gctx, signals) })
	g.Go(func() error { return a.rollover.Start(gctx) })

	return g.Wait()
}

func (a *App) Shutdown() error {
	var err error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.shutdowns[i]())
	}
	return err
}

// Router нужен тестам и внешнему монтированию
func (a *App) Router() http.Handler {
	return a.router
}
