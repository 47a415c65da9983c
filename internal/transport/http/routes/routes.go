package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/transport/http/handlers"
	"github.com/arklim/iam-exchange/internal/transport/http/middleware"
	"github.com/arklim/iam-exchange/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Authentication *usecase.AuthenticationService
	Exchanges      *usecase.ExchangeService
	Attempts       *usecase.ExchangeAttemptService
	Accounts       *usecase.AccountService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	Services ServiceSet
	Verifier middleware.AccessTokenVerifier
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if name := deps.Config.Telemetry.ServiceName; name != "" {
		r.Use(otelgin.Middleware(name))
	}
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	{
		if deps.Services.Authentication != nil {
			authHandler := handlers.NewAuthHandler(deps.Services.Authentication, deps.Verifier,
				handlers.WithExchangeService(deps.Services.Exchanges))
			authHandler.RegisterRoutes(api.Group("/auth"))
		}

		if deps.Services.Accounts != nil {
			accountHandler := handlers.NewAccountHandler(deps.Services.Accounts, deps.Verifier)
			accountHandler.RegisterRoutes(api.Group("/accounts"))
		}

		if deps.Services.Attempts != nil {
			attemptHandler := handlers.NewExchangeAttemptHandler(deps.Services.Attempts, deps.Verifier)
			attemptHandler.RegisterRoutes(api.Group("/exchange-attempts"))
		}
	}

	return r
}
