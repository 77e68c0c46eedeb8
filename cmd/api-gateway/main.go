package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-materials-api/api/swagger"
	"github.com/noah-isme/tutor-materials-api/internal/handler"
	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/repository"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	"github.com/noah-isme/tutor-materials-api/migrations"
	"github.com/noah-isme/tutor-materials-api/pkg/cache"
	"github.com/noah-isme/tutor-materials-api/pkg/config"
	"github.com/noah-isme/tutor-materials-api/pkg/database"
	"github.com/noah-isme/tutor-materials-api/pkg/jobs"
	"github.com/noah-isme/tutor-materials-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-materials-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-materials-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutor-materials-api/pkg/storage"
)

// @title Tutor Materials API
// @version 1.0.0
// @description Program materials, assignment submissions, grading and attendance for tutoring programs.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, migrations.FS, "up"); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Summary.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Summary.CacheTTL, logr, redisClient != nil)

	local, err := storage.NewLocalStorage(cfg.Storage.BaseDir)
	if err != nil {
		logr.Fatal("failed to prepare blob storage", zap.Error(err))
	}
	blobs := storage.NewQueuedStore(local, jobs.QueueConfig{
		Workers:    cfg.Storage.ReleaseWorkers,
		MaxRetries: cfg.Storage.ReleaseRetries,
		RetryDelay: time.Second,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			metricsSvc.BlobReleaseFailed()
			logr.Error("blob release abandoned", zap.String("blob_id", job.ID), zap.Error(err))
		},
	})
	blobs.Start()
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	scale, err := service.NewGradeScale(cfg.Grading)
	if err != nil {
		logr.Fatal("invalid grade thresholds", zap.Error(err))
	}

	programRepo := repository.NewProgramRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	catalog := service.NewMaterialCatalog(materialRepo, blobs, logr)
	tracker := service.NewSubmissionTracker(submissionRepo, gradeRepo, materialRepo, programRepo, blobs, cacheSvc, logr)
	grading := service.NewGradingEngine(gradeRepo, submissionRepo, materialRepo, scale, cacheSvc, logr)
	register := service.NewAttendanceRegister(attendanceRepo, programRepo, logr)
	materialSvc := service.NewMaterialService(programRepo, catalog, tracker, grading, register, blobs, signer, auditRepo, cacheSvc, metricsSvc, logr, service.MaterialServiceConfig{
		MaxFileSize:  cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	tokenSvc := service.NewTokenService(cfg.JWT)

	validate := validator.New()
	materialHandler := handler.NewMaterialHandler(materialSvc, validate)
	submissionHandler := handler.NewSubmissionHandler(materialSvc, validate)
	attendanceHandler := handler.NewAttendanceHandler(materialSvc, validate)
	fileHandler := handler.NewFileHandler(signer, materialRepo, local, logr)
	opsHandler := handler.NewOpsHandler(metricsSvc, db)

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/metrics"))

	r.GET("/health", opsHandler.Health)
	r.GET("/metrics", opsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.GET("/files/:blobId", middleware.Audit(auditRepo, models.AuditActionFileDownload, "blob", "blobId"), fileHandler.Serve)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokenSvc))

	anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor, models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTutor)
	students := middleware.RequireRoles(models.RoleStudent)

	programs := secured.Group("/programs/:programId")
	programs.GET("/materials", anyone, materialHandler.List)
	programs.POST("/materials", staff, materialHandler.Upload)
	programs.POST("/sessions", staff, attendanceHandler.CreateSession)

	materials := secured.Group("/materials/:id")
	materials.GET("", anyone, materialHandler.Get)
	materials.PATCH("", staff, materialHandler.Update)
	materials.DELETE("", staff, materialHandler.Delete)
	materials.GET("/download", anyone, materialHandler.Download)
	materials.POST("/submissions", students, submissionHandler.Submit)
	materials.GET("/submissions/me", students, submissionHandler.Mine)
	materials.GET("/submissions", staff, submissionHandler.List)
	materials.GET("/submissions/summary", staff, submissionHandler.Summary)

	submissions := secured.Group("/submissions/:id")
	submissions.GET("/download", anyone, submissionHandler.Download)
	submissions.PUT("/grade", staff, submissionHandler.Grade)
	submissions.POST("/quick-grade", staff, submissionHandler.QuickGrade)
	submissions.GET("/grade", anyone, submissionHandler.GetGrade)

	sessions := secured.Group("/sessions/:id", staff)
	sessions.PUT("/entries/:studentId", attendanceHandler.SetStatus)
	sessions.POST("/mark-all-present", attendanceHandler.MarkAllPresent)
	sessions.GET("/summary", attendanceHandler.Summary)
	sessions.GET("/entries", attendanceHandler.Entries)
	sessions.GET("/report", middleware.Audit(auditRepo, models.AuditActionReportExport, "attendance_session", "id"), attendanceHandler.Report)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	blobs.Stop()
}
