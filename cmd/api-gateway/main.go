package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/batch-enrollment-api/api/swagger"
	"github.com/noah-isme/batch-enrollment-api/internal/handler"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	"github.com/noah-isme/batch-enrollment-api/internal/router"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
	"github.com/noah-isme/batch-enrollment-api/pkg/cache"
	"github.com/noah-isme/batch-enrollment-api/pkg/config"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
	"github.com/noah-isme/batch-enrollment-api/pkg/jobs"
	"github.com/noah-isme/batch-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/batch-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/batch-enrollment-api/pkg/middleware/requestid"
)

// @title Batch Enrollment API
// @version 1.0.0
// @description Batch-capacity-bounded enrollment and payment verification
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type ledgerStore interface {
	repository.Ledger
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, error)
	FindBatchByID(ctx context.Context, id string) (*models.BatchDetail, error)
}

// postgresStore pairs the transactional ledger with the catalog reader.
type postgresStore struct {
	*repository.PostgresLedger
	*repository.CatalogRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	checks := map[string]handler.Pinger{}

	store, closeStore, err := openStore(cfg, metrics, logr, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		repo := repository.NewCacheRepository(redisClient, "enrollment", logr)
		cacheRepo = repo
		checks["redis"] = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()
	dashboard := service.NewDashboardService(store, store, cacheSvc, service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL}, logr)
	capacity := service.NewCapacityService(models.SeatPolicy(cfg.Enrollment.SeatPolicy), metrics, logr)
	enrollments := service.NewEnrollmentService(store, capacity, dashboard, validate, logr)
	payments := service.NewPaymentVerificationService(store, enrollments, dashboard, metrics, validate, logr)
	reviews := service.NewReviewSLAService(store, service.NewReviewSLAPolicy(cfg.Enrollment.ReviewSLA), metrics, logr)
	exports := service.NewExportService(store, service.ExportConfig{Enabled: cfg.Exports.Enabled, MaxRows: cfg.Exports.MaxRows}, logr)
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handlers := router.Handlers{
		Auth:        auth,
		Catalog:     handler.NewCatalogHandler(service.NewCatalogService(store, logr)),
		Enrollments: handler.NewEnrollmentHandler(enrollments, payments, capacity, reviews, exports),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	}
	if cfg.Dashboard.Enabled {
		handlers.Dashboard = handler.NewDashboardHandler(dashboard)
	}
	router.Register(r, cfg.APIPrefix, handlers, metrics)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if window := reviews.Policy().Window(); window > 0 {
		sweeps := jobs.NewQueue("review-sla", reviews.SweepHandler(), jobs.QueueConfig{
			Workers:    cfg.Enrollment.SweepWorkers,
			MaxRetries: 2,
			RetryDelay: 30 * time.Second,
			Logger:     logr,
		})
		sweeps.Start(gctx)
		g.Go(func() error {
			sweeps.Every(gctx, cfg.Enrollment.ReviewSweepInterval, jobs.Job{Type: service.ReviewSweepJobType})
			sweeps.Stop()
			return nil
		})
		logr.Info("review sla sweep scheduled",
			zap.Duration("window", window),
			zap.Duration("interval", cfg.Enrollment.ReviewSweepInterval))
	}

	g.Go(func() error {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("seat_policy", string(capacity.Policy())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger, checks map[string]handler.Pinger) (ledgerStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		ledger := repository.NewMemoryLedger()
		if cfg.Storage.SeedFile != "" {
			f, err := os.Open(cfg.Storage.SeedFile)
			if err != nil {
				return nil, nil, fmt.Errorf("open memory seed: %w", err)
			}
			defer f.Close() //nolint:errcheck
			if err := ledger.LoadSeed(f); err != nil {
				return nil, nil, err
			}
		}
		logr.Warn("using in-memory ledger; state is lost on restart")
		return ledger, func() {}, nil
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		checks["postgres"] = handler.PingFunc(db.PingContext)
		ledger := repository.NewPostgresLedger(db, database.TxOptions{
			MaxRetries: cfg.Database.TxMaxRetries,
			RetryDelay: cfg.Database.TxRetryDelay,
			Timeout:    cfg.Database.TxTimeout,
			OnRetry: func(attempt int, err error) {
				metrics.RecordTxRetry()
				logr.Warn("ledger transaction retry", zap.Int("attempt", attempt), zap.Error(err))
			},
		}, logr)
		return postgresStore{PostgresLedger: ledger, CatalogRepository: repository.NewCatalogRepository(db)}, closeDB(db), nil
	}
}

func closeDB(db *sqlx.DB) func() {
	return func() { _ = db.Close() }
}
