package entitlements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/premium-entitlements/internal/cache"
	"github.com/magabrotheeeer/premium-entitlements/internal/config"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/migrations"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	entitlementservice "github.com/magabrotheeeer/premium-entitlements/internal/services/entitlement"
	paymentservice "github.com/magabrotheeeer/premium-entitlements/internal/services/payment"
	"github.com/magabrotheeeer/premium-entitlements/internal/services/scheduler"
	usersservice "github.com/magabrotheeeer/premium-entitlements/internal/services/users"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage/memory"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// Store операции хранилища, которые использует приложение.
type Store interface {
	UpsertUser(ctx context.Context, user models.User) error
	RecordPurchase(ctx context.Context, p models.Purchase, now time.Time) (*models.Subscription, error)
	FetchActiveEntitlement(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	CountUsers(ctx context.Context) (int, error)
	CountActiveEntitlements(ctx context.Context, now time.Time) (int, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.Subscription, error)
	Ping(ctx context.Context) error
}

type App struct {
	server    *http.Server
	logger    *slog.Logger
	cfg       *config.Config
	flow      *paymentservice.Flow
	scheduler *scheduler.SchedulerService
	channel   *amqp.Channel
	closers   []func() error
}

// New подключает хранилище, кэш и брокер согласно конфигу и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.entitlements.New"
	app := &App{logger: logger, cfg: cfg}

	store, err := app.openStore(ctx)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := []entitlementservice.Option{}
	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, cacheRedis.Close)
		opts = append(opts, entitlementservice.WithCache(cacheRedis))
		logger.Info("entitlement cache enabled", slog.String("addr", cfg.AddressRedis))
	}

	var publisher *rabbitmq.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.Retries, cfg.Delay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, conn.Close)

		ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.EntitlementQueues(cfg.ConfirmationsQueue))
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, ch.Close)
		app.channel = ch

		publisher = rabbitmq.NewPublisher(ch, cfg.Exchange)
		opts = append(opts, entitlementservice.WithPublisher(publisher))
		logger.Info("rabbitmq connected", slog.String("exchange", cfg.Exchange))
	}

	engine := entitlementservice.New(store, catalog, logger, opts...)
	app.flow = paymentservice.New(catalog, engine, logger)
	users := usersservice.New(store, logger)

	if publisher != nil {
		app.scheduler = scheduler.NewSchedulerService(store, publisher, cfg.Scheduler.Interval, cfg.Window, logger)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Services{
		Engine: engine,
		Flow:   app.flow,
		Users:  users,
		Store:  store,
		Tokens: NewTokenParser(cfg.Admin),
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	if a.cfg.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	db, err := repository.New(ctx, a.cfg.ConnectionString, repository.Options{
		MaxOpenConns:    a.cfg.MaxOpenConns,
		MaxIdleConns:    a.cfg.MaxIdleConns,
		ConnMaxLifetime: a.cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	if err := migrations.Run(db.DB, a.cfg.MigrationsPath); err != nil {
		return nil, err
	}
	return db, nil
}

// Run запускает HTTP-сервер, потребителя подтверждений и планировщик
// и ждёт отмены ctx. Ресурсы закрываются после того, как завершились
// начатые обработчики очереди и планировщик.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var background sync.WaitGroup
	defer func() {
		cancel()
		background.Wait()
		a.close()
	}()

	if a.channel != nil {
		consumed, err := rabbitmq.ConsumerMessage(ctx, a.logger, a.channel, a.cfg.ConfirmationsQueue, a.flow.HandleConfirmationMessage)
		if err != nil {
			return err
		}
		background.Add(1)
		go func() {
			defer background.Done()
			<-consumed
			a.logger.Info("confirmation consumer stopped")
		}()
		a.logger.Info("confirmation consumer started", slog.String("queue", a.cfg.ConfirmationsQueue))
	}
	if a.scheduler != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			a.scheduler.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	}
}

// close освобождает ресурсы в обратном порядке открытия.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
