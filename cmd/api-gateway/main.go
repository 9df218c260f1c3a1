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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/reelhub/review-api/api/swagger"
	"github.com/reelhub/review-api/internal/handler"
	"github.com/reelhub/review-api/internal/middleware"
	"github.com/reelhub/review-api/internal/repository"
	"github.com/reelhub/review-api/internal/service"
	"github.com/reelhub/review-api/pkg/analyzer"
	"github.com/reelhub/review-api/pkg/cache"
	"github.com/reelhub/review-api/pkg/config"
	"github.com/reelhub/review-api/pkg/database"
	"github.com/reelhub/review-api/pkg/jobs"
	"github.com/reelhub/review-api/pkg/logger"
	corsmiddleware "github.com/reelhub/review-api/pkg/middleware/cors"
	reqidmiddleware "github.com/reelhub/review-api/pkg/middleware/requestid"
	"github.com/reelhub/review-api/pkg/storage"
)

// @title ReelHub Review API
// @version 1.0.0
// @description Submission review, video analysis and monthly creator settlements
// @BasePath /api/v1
// @schemes http https

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.ApplySchema(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	pingers := map[string]handler.Pinger{"postgres": db}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			pingers["redis"] = cache.Pinger{Client: redisClient}
			cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Cache.TTL, logr, true)
		}
	}

	media, err := storage.NewMediaStore(cfg.Media)
	if err != nil {
		logr.Fatal("failed to init media store", zap.Error(err))
	}
	if err := media.EnsureBucket(ctx); err != nil {
		logr.Fatal("failed to prepare media bucket", zap.Error(err))
	}

	tx := repository.NewTransactor(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)

	analysisDeps := service.AnalysisServiceDeps{
		Results:     analysisRepo,
		Submissions: submissionRepo,
		Videos:      videoRepo,
		Media:       media,
		Metrics:     metricsSvc,
		Logger:      logr,
		Config: service.AnalysisServiceConfig{
			MaxRetries:  cfg.Analysis.MaxRetries,
			BackoffBase: cfg.Analysis.BackoffBase,
			StaleAfter:  cfg.Analysis.StaleAfter,
		},
	}

	var (
		queue  *jobs.Queue
		worker *service.AnalysisWorker
	)
	if cfg.Analysis.Enabled {
		gemini, err := analyzer.NewGemini(ctx, cfg.Analysis)
		if err != nil {
			logr.Fatal("failed to init analyzer", zap.Error(err))
		}
		defer gemini.Close() //nolint:errcheck

		queue = jobs.NewQueue("analysis", func(ctx context.Context, job jobs.Job) error {
			return worker.Handle(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Analysis.Workers,
			BufferSize: cfg.Analysis.QueueBuffer,
			MaxRetries: cfg.Analysis.QueueRetries,
			RetryDelay: cfg.Analysis.BackoffBase,
			Logger:     logr,
		})
		analysisDeps.Analyzer = gemini
		analysisDeps.Queue = queue
	}
	analysisSvc := service.NewAnalysisService(analysisDeps)

	submissionDeps := service.SubmissionServiceDeps{
		Tx:          tx,
		Submissions: submissionRepo,
		Videos:      videoRepo,
		Feedbacks:   feedbackRepo,
		Assignments: assignmentRepo,
		Settlements: settlementRepo,
		Media:       media,
		Cache:       cacheSvc,
		Logger:      logr,
	}
	if queue != nil {
		worker = service.NewAnalysisWorker(analysisSvc, logr)
		submissionDeps.Analysis = analysisSvc
		queue.Start(ctx)
		go analysisSvc.RecoverPending(ctx)
	}
	submissionSvc := service.NewSubmissionService(submissionDeps)

	tax := service.TaxPolicy{IncomeBps: cfg.Settlement.IncomeTaxBps, LocalBps: cfg.Settlement.LocalTaxBps}
	settlementSvc := service.NewSettlementService(service.SettlementServiceDeps{
		Tx:          tx,
		Settlements: settlementRepo,
		Work:        submissionRepo,
		Workers:     userRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Tax:         tax,
		Logger:      logr,
	})
	if cfg.Settlement.SchedulerEnabled {
		settlementSvc.StartScheduler(ctx, cfg.Settlement.SchedulerInterval)
	}
	statementSvc := service.NewStatementService(settlementSvc, service.StatementConfig{
		CompanyName: cfg.Settlement.CompanyName,
		Currency:    cfg.Settlement.Currency,
		Tax:         tax,
	}, nil, nil)
	pricingSvc := service.NewPricingService(videoRepo, userRepo, nil, logr)
	authSvc := service.NewAuthService(cfg.JWT)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Routes{
		Health:      handler.NewMetricsHandler(metricsSvc, pingers),
		Submissions: handler.NewSubmissionHandler(submissionSvc),
		Feedback:    handler.NewFeedbackHandler(submissionSvc),
		Analysis:    handler.NewAnalysisHandler(analysisSvc),
		Pricing:     handler.NewPricingHandler(pricingSvc),
		Settlements: handler.NewSettlementHandler(settlementSvc, statementSvc),
	}, middleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if queue != nil {
		queue.Stop()
	}
}

