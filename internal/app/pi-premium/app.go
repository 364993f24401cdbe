package pipremium

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/mirfateev/pi-premium/internal/cache"
	"github.com/mirfateev/pi-premium/internal/config"
	applibjwt "github.com/mirfateev/pi-premium/internal/lib/jwt"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
	"github.com/mirfateev/pi-premium/internal/migrations"
	"github.com/mirfateev/pi-premium/internal/piclient"
	"github.com/mirfateev/pi-premium/internal/rabbitmq"
	identityservice "github.com/mirfateev/pi-premium/internal/services/identity"
	paymentservice "github.com/mirfateev/pi-premium/internal/services/payment"
	"github.com/mirfateev/pi-premium/internal/storage/repository"
)

// App собирает зависимости и HTTP-сервер приложения.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	rabbitConn *amqp.Connection
}

// New инициализирует хранилище, кеш, брокер событий, клиента платёжной
// сети и сервисы, затем собирает маршруты и HTTP-сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err = repository.CheckDatabaseReady(db); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	// Брокер необязателен: без него события начислений и сверки
	// остаются только в логах.
	var rabbitConn *amqp.Connection
	var events *rabbitmq.EventBus
	if cfg.AddressRabbit != "" {
		conn, ch, err := rabbitmq.Connect(cfg.AddressRabbit)
		if err != nil {
			return nil, err
		}
		if err = rabbitmq.SetupQueues(ch, cfg.Exchange); err != nil {
			return nil, err
		}
		rabbitConn = conn
		events = rabbitmq.NewEventBus(ch, cfg.Exchange)
	} else {
		logger.Warn("rabbitmq address is empty, payment events disabled")
	}

	providerClient := piclient.NewClient(cfg.PiNetwork.APIKey, cfg.PiNetwork.BaseURL, cfg.PiNetwork.Timeout)
	jwtMaker := applibjwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	identityService := identityservice.New(db, providerClient, cacheRedis, jwtMaker, logger)

	var eventsIface paymentservice.Events
	if events != nil {
		eventsIface = events
	}
	paymentService := paymentservice.New(db, providerClient, cacheRedis, eventsIface, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, identityService, paymentService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		rabbitConn: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
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
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Warn("failed to close database", sl.Err(closeErr))
		}
		if a.rabbitConn != nil {
			if closeErr := a.rabbitConn.Close(); closeErr != nil {
				a.logger.Warn("failed to close rabbitmq connection", sl.Err(closeErr))
			}
		}
		return err
	}
}
