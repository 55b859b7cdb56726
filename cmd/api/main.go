package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/arabesque/studio-api/api/swagger"
	"github.com/arabesque/studio-api/internal/handler"
	internalmiddleware "github.com/arabesque/studio-api/internal/middleware"
	"github.com/arabesque/studio-api/internal/repository"
	"github.com/arabesque/studio-api/internal/service"
	"github.com/arabesque/studio-api/pkg/cache"
	"github.com/arabesque/studio-api/pkg/config"
	"github.com/arabesque/studio-api/pkg/database"
	"github.com/arabesque/studio-api/pkg/logger"
	corsmiddleware "github.com/arabesque/studio-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arabesque/studio-api/pkg/middleware/requestid"
)

// @title Arabesque Studio API
// @version 1.0.0
// @description Back-office and self-service portal for a dance studio
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	cacheEnabled := false
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		cacheEnabled = true
		defer cacheRepo.Close() //nolint:errcheck
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	personRepo := repository.NewPersonRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	termRepo := repository.NewTermRepository(db)
	classRepo := repository.NewClassRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Catalog.CacheTTL, logr, cacheEnabled)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "studio-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	personService := service.NewPersonService(personRepo, roleRepo, validate, logr)
	accountService := service.NewAccountService(accountRepo, roleRepo, personRepo, validate, logr)
	catalogService := service.NewCatalogService(catalogRepo, cacheService, validate, logr)
	termService := service.NewTermService(termRepo, validate, logr)
	classService := service.NewClassService(classRepo, catalogRepo, termRepo, roleRepo, validate, logr)
	evaluationService := service.NewEvaluationService(evaluationRepo, roleRepo, catalogRepo, enrollmentRepo, classRepo, cfg.Evaluations.DefaultValidityMonths, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, accountRepo, classRepo, evaluationRepo, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, enrollmentRepo, classRepo, roleRepo, validate, logr)
	invoiceService := service.NewInvoiceService(invoiceRepo, accountRepo, personRepo, termRepo, cfg.Billing, validate, logr)
	exportService := service.NewExportService(classService, enrollmentService, attendanceService, invoiceService, cfg.Exports, logr)

	handlers := handler.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		User:       handler.NewUserHandler(userService),
		Person:     handler.NewPersonHandler(personService),
		Account:    handler.NewAccountHandler(accountService),
		Catalog:    handler.NewCatalogHandler(catalogService),
		Term:       handler.NewTermHandler(termService),
		Class:      handler.NewClassHandler(classService),
		Evaluation: handler.NewEvaluationHandler(evaluationService),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService),
		Attendance: handler.NewAttendanceHandler(attendanceService),
		Invoice:    handler.NewInvoiceHandler(invoiceService),
		Export:     handler.NewExportHandler(exportService),
		Metrics:    handler.NewMetricsHandler(metricsService),
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsService))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", handlers.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", handlers.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, authService, userRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
