package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/exchange"
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/infra/database"
	kafkainfra "github.com/arklim/iam-exchange/internal/infra/kafka"
	"github.com/arklim/iam-exchange/internal/infra/logger"
	redisinfra "github.com/arklim/iam-exchange/internal/infra/redis"
	"github.com/arklim/iam-exchange/internal/infra/security"
	"github.com/arklim/iam-exchange/internal/infra/telemetry"
	memoryrepo "github.com/arklim/iam-exchange/internal/repository/memory"
	postgresrepo "github.com/arklim/iam-exchange/internal/repository/postgres"
	redisrepo "github.com/arklim/iam-exchange/internal/repository/redis"
	"github.com/arklim/iam-exchange/internal/transport/http/middleware"
	"github.com/arklim/iam-exchange/internal/transport/http/routes"
	"github.com/arklim/iam-exchange/internal/usecase"
)

type Application struct {
	cfg         *config.AppConfig
	engine      *gin.Engine
	logger      *zap.Logger
	pool        *pgxpool.Pool
	redis       *redisinfra.Client
	producer    *kafkainfra.Producer
	tracer      *telemetry.TracerProvider
	idempotency *usecase.IdempotencyService
}

// storage holds the repositories selected by storage.driver.
type storage struct {
	attempts      port.ExchangeAttemptRepository
	records       port.IdempotentRecordRepository
	locks         port.AccountLockRepository
	otps          port.OTPRepository
	accounts      port.AccountRepository
	credentials   port.CredentialsRepository
	refreshTokens port.RefreshTokenRepository
	revocations   port.RevocationStore
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	repos, err := a.openStorage(ctx)
	if err != nil {
		a.shutdown(ctx)
		return nil, err
	}

	hasher, err := security.NewArgon2Hasher(cfg.Argon2)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	var bus port.MessageBus
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using log bus", zap.Error(err))
			bus = kafkainfra.NewLogBus(log)
		} else {
			a.producer = producer
			bus = kafkainfra.NewMessageBus(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka brokers not configured, using log bus")
		bus = kafkainfra.NewLogBus(log)
	}

	exchangeMetrics, err := telemetry.NewExchangeMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("init exchange metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	registry, err := exchange.NewRegistry(exchange.Dependencies{
		JWT:           cfg.JWT,
		Accounts:      repos.accounts,
		Credentials:   repos.credentials,
		RefreshTokens: repos.refreshTokens,
		Revocations:   repos.revocations,
		Hasher:        hasher,
		OTPs:          repos.otps,
		OTP:           cfg.OTP,
		Bus:           bus,
	})
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("init exchange registry: %w", err)
	}

	attemptService := usecase.NewExchangeAttemptService(repos.attempts)
	exchangeService, err := usecase.NewExchangeService(registry.Exchanges, registry.Providers, attemptService, bus, log)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("init exchange service: %w", err)
	}
	exchangeService.WithMetrics(exchangeMetrics)

	lockService := usecase.NewAccountLockService(repos.locks, log)
	authService, err := usecase.NewAuthenticationService(exchangeService, lockService, cfg.Authentication, log)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("init authentication service: %w", err)
	}

	a.idempotency = usecase.NewIdempotencyService(repos.records, cfg.Idempotency, log).WithMetrics(exchangeMetrics)
	accountService := usecase.NewAccountService(repos.accounts, repos.credentials, hasher, a.idempotency, bus, log).
		WithPasswordPolicy(security.NewPasswordPolicy(cfg.Password))

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  httpMetrics,
		Verifier: registry.AccessToken,
		Services: routes.ServiceSet{
			Authentication: authService,
			Exchanges:      exchangeService,
			Attempts:       attemptService,
			Accounts:       accountService,
		},
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return a, nil
}

func (a *Application) openStorage(ctx context.Context) (storage, error) {
	if a.cfg.Storage.Driver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory storage, state is lost on restart")
		repos := memoryrepo.NewRepositories()
		return storage{
			attempts:      repos.ExchangeAttempts,
			records:       repos.IdempotentRecords,
			locks:         repos.AccountLocks.WithRetention(a.cfg.Authentication.LockRetention),
			otps:          repos.OTPs,
			accounts:      repos.Accounts,
			credentials:   repos.Credentials,
			refreshTokens: repos.RefreshTokens,
			revocations:   repos.Revocations,
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return storage{}, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return storage{}, fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	repos := postgresrepo.NewRepositories(pool)
	locks := redisrepo.NewAccountLockRepository(redisClient.Redis(), a.cfg.Redis.AccountLockPrefix).
		WithRetention(a.cfg.Authentication.LockRetention).
		WithLogger(a.logger)
	return storage{
		attempts:      repos.ExchangeAttempts,
		records:       repos.IdempotentRecords,
		locks:         locks,
		otps:          redisrepo.NewOTPRepository(redisClient.Redis(), a.cfg.Redis.OTPPrefix),
		accounts:      repos.Accounts,
		credentials:   repos.Credentials,
		refreshTokens: repos.RefreshTokens,
		revocations:   redisrepo.NewRevocationRepository(redisClient.Redis(), a.cfg.Redis.RevocationPrefix),
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM exchange API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	}

	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	a.shutdown(shutdownCtx)

	return runErr
}

// shutdown drains in-flight idempotent writes before releasing the stores they write to.
func (a *Application) shutdown(ctx context.Context) {
	if a.idempotency != nil {
		a.idempotency.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shutdown tracer provider", zap.Error(err))
	}
}
