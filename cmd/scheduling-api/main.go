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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/clinicore/scheduling-api/api/swagger"
	"github.com/clinicore/scheduling-api/internal/gateway"
	"github.com/clinicore/scheduling-api/internal/handler"
	"github.com/clinicore/scheduling-api/internal/middleware"
	"github.com/clinicore/scheduling-api/internal/repository"
	"github.com/clinicore/scheduling-api/internal/service"
	"github.com/clinicore/scheduling-api/pkg/cache"
	"github.com/clinicore/scheduling-api/pkg/config"
	"github.com/clinicore/scheduling-api/pkg/database"
	"github.com/clinicore/scheduling-api/pkg/jobs"
	"github.com/clinicore/scheduling-api/pkg/logger"
	corsmiddleware "github.com/clinicore/scheduling-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinicore/scheduling-api/pkg/middleware/requestid"
)

// @title Clinicore Scheduling API
// @version 1.0.0
// @description Appointment scheduling and conflict resolution for the EHR platform
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

	location, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid scheduling timezone", "timezone", cfg.Scheduling.Timezone, "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, slot cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	appointmentRepo := repository.NewAppointmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	// External collaborators. Empty URLs yield no-op clients so the service
	// still runs in isolated environments.
	patientDir, err := gateway.NewDirectoryClient(cfg.Gateways.PatientDirectoryURL, cfg.Gateways.Timeout, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid patient directory url", "error", err)
	}
	providerDir, err := gateway.NewDirectoryClient(cfg.Gateways.ProviderDirectoryURL, cfg.Gateways.Timeout, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid provider directory url", "error", err)
	}
	notifier, err := gateway.NewNotificationClient(cfg.Gateways.NotificationURL, cfg.Gateways.Timeout, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid notification gateway url", "error", err)
	}
	calendar, err := gateway.NewCalendarClient(cfg.Gateways.CalendarURL, cfg.Gateways.Timeout, logr)
	if err != nil {
		logr.Sugar().Fatalw("invalid calendar gateway url", "error", err)
	}

	// Services.
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Scheduling.SlotCacheTTL, logr, cfg.Scheduling.SlotCacheEnabled)
	}

	lifecycle := service.NewLifecycle(location)
	validate := validator.New()

	reminderService := service.NewReminderService(reminderRepo, notifier, cfg.Reminders.Offsets, logr)

	eventService := service.NewEventService(calendar, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	}, logr)
	eventService.Start(ctx)
	defer eventService.Stop()

	appointmentService := service.NewAppointmentService(
		appointmentRepo,
		availabilityRepo,
		lifecycle,
		reminderService,
		eventService,
		patientDir,
		providerDir,
		cacheService,
		metricsService,
		validate,
		location,
		logr,
	)

	slotService := service.NewSlotService(availabilityRepo, appointmentRepo, cacheService, location, cfg.Scheduling.SlotCacheTTL, logr)
	authService := service.NewAuthService(cfg.JWT.Secret, logr)

	if cfg.Reminders.Enabled {
		dispatcher := service.NewReminderDispatcher(reminderRepo, notifier, metricsService, service.DispatcherConfig{
			PollInterval: cfg.Reminders.PollInterval,
			Lookahead:    cfg.Reminders.Lookahead,
			BatchSize:    cfg.Reminders.BatchSize,
			MaxAttempts:  cfg.Reminders.MaxAttempts,
			RetryBackoff: cfg.Reminders.RetryBackoff,
		}, logr)
		go dispatcher.Run(ctx)
	}

	// Handlers.
	appointmentHandler := handler.NewAppointmentHandler(appointmentService, reminderService)
	slotHandler := handler.NewSlotHandler(slotService, int(cfg.Scheduling.DefaultSlotDuration.Minutes()))
	metricsHandler := handler.NewMetricsHandler(metricsService, db.Ping)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))

	appointments := api.Group("/appointments")
	{
		appointments.GET("", middleware.RBAC("STAFF", "PROVIDER", "PATIENT"), appointmentHandler.List)
		appointments.POST("", middleware.RBAC("STAFF", "PATIENT"), appointmentHandler.Create)
		appointments.GET("/export", middleware.RBAC("STAFF"), appointmentHandler.Export)
		appointments.GET("/:id", middleware.RBAC("STAFF", "PROVIDER", "PATIENT"), appointmentHandler.Get)
		appointments.PATCH("/:id", middleware.RBAC("STAFF", "PATIENT"), appointmentHandler.Update)
		appointments.POST("/:id/cancel", middleware.RBAC("STAFF", "PATIENT"), appointmentHandler.Cancel)
		appointments.POST("/:id/confirm", middleware.RBAC("STAFF", "PATIENT"), appointmentHandler.Confirm)
		appointments.POST("/:id/check-in", middleware.RBAC("STAFF"), appointmentHandler.CheckIn)
		appointments.POST("/:id/start", middleware.RBAC("STAFF", "PROVIDER"), appointmentHandler.Start)
		appointments.POST("/:id/complete", middleware.RBAC("STAFF", "PROVIDER"), appointmentHandler.Complete)
		appointments.POST("/:id/no-show", middleware.RBAC("STAFF", "PROVIDER"), appointmentHandler.NoShow)
		appointments.GET("/:id/reminders", middleware.RBAC("STAFF", "SERVICE"), appointmentHandler.Reminders)
	}

	providers := api.Group("/providers")
	{
		providers.GET("/:id/slots", middleware.RBAC("STAFF", "PROVIDER", "PATIENT"), slotHandler.Slots)
		providers.GET("/:id/availability", middleware.RBAC("STAFF", "PROVIDER", "PATIENT"), slotHandler.Availability)
		providers.GET("/:id/day-sheet", middleware.RBAC("STAFF", "PROVIDER", "SELF"), slotHandler.DaySheet)
	}

	api.GET("/metrics/summary", middleware.RBAC("STAFF", "SERVICE"), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
