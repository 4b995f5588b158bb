package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citas-backend/internal/admin"
	"citas-backend/internal/appointments"
	"citas-backend/internal/auth"
	"citas-backend/internal/availability"
	"citas-backend/internal/cache"
	"citas-backend/internal/calendar"
	"citas-backend/internal/config"
	"citas-backend/internal/db"
	"citas-backend/internal/jobs"
	"citas-backend/internal/middleware"
	"citas-backend/internal/notifications"
	"citas-backend/internal/patients"
	"citas-backend/internal/settings"
	"citas-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected", slog.String("db", cfg.MongoDB))
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Redis carries the availability cache, the per-date booking lock and
	// the integration job queue; the service does not start without it.
	redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))

	queueOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
	queueClient := asynq.NewClient(queueOpt)
	defer queueClient.Close()

	var jwtManager *auth.Manager
	if cfg.JWTSecret != "" {
		jwtManager = &auth.Manager{
			Secret:     []byte(cfg.JWTSecret),
			AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
			RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
			Issuer:     "citas-backend",
		}
	}

	var mailer jobs.Mailer
	if brevo := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox); brevo != nil {
		mailer = brevo
		logger.Info("brevo mailer enabled", slog.String("sender", cfg.BrevoSenderEmail), slog.Bool("sandbox", cfg.BrevoSandbox))
	} else {
		logger.Info("brevo mailer disabled")
	}

	var calendarAPI jobs.CalendarAPI
	if cfg.CalendarBaseURL != "" {
		calendarAPI = calendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey)
		logger.Info("calendar integration enabled", slog.String("baseUrl", cfg.CalendarBaseURL))
	} else {
		logger.Info("calendar integration disabled")
	}

	val := validation.New()

	patientsRepo := patients.NewMongoRepository(cols.Patients)
	patientsService := patients.NewService(patientsRepo)
	patientsHandler := patients.NewHandler(patientsService, val, logger)

	settingsRepo := settings.NewMongoRepository(cols.Settings)
	settingsService := settings.NewService(settingsRepo, logger)
	settingsHandler := settings.NewHandler(settingsService, val, logger)

	appointmentsRepo := appointments.NewMongoRepository(cols.Appointments)

	availabilityRepo := availability.NewRepository(cols.AvailabilityTemplates, cols.AvailabilityOverrides)
	availabilityService := availability.NewService(availabilityRepo, appointments.NewBookedSource(appointmentsRepo), cfg.Timezone)
	availabilityHandler := availability.NewHandler(availabilityService, settingsService, val, logger, redisCache,
		cfg.Timezone, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	dispatcher := jobs.NewAsynqDispatcher(queueClient, logger)
	locker := appointments.NewRedisLocker(redisCache.Client())
	appointmentsService := appointments.NewService(appointmentsRepo, patientsService, availabilityService,
		locker, dispatcher, logger, cfg.Timezone)
	appointmentsHandler := appointments.NewHandler(appointmentsService, availabilityService, settingsService,
		val, logger, redisCache)

	adminHandler := admin.NewHandler(cols.Users, jwtManager, val, logger, cfg)

	worker := jobs.NewWorker(queueOpt, calendarAPI, mailer, patientsService, appointmentsRepo, logger,
		cfg.Timezone, jobs.WorkerConfig{
			PractitionerEmail: cfg.PractitionerEmail,
			PractitionerName:  cfg.PractitionerName,
		})
	if err := worker.Start(); err != nil {
		logger.Error("job worker failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("job worker started", slog.Int("queueDb", cfg.RedisQueueDB))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	rateWindow := time.Duration(cfg.RateLimitWindowSec) * time.Second
	bookingLimiter := httprate.LimitByIP(cfg.RateLimitAppointments, rateWindow)
	patientLimiter := httprate.LimitByIP(cfg.RateLimitPatients, rateWindow)

	adminAuth := middleware.AdminAuth(cfg.AdminAPIKey, jwtManager)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/availability", availabilityHandler.GetAvailability)
		api.Get("/availability/next", availabilityHandler.GetNextAvailability)
		api.Get("/settings/booking", settingsHandler.Get)

		api.With(patientLimiter).Post("/patients", patientsHandler.Create)
		api.With(bookingLimiter).Post("/appointments", appointmentsHandler.Create)
		api.Get("/appointments/{id}", appointmentsHandler.Get)
		api.With(bookingLimiter).Post("/appointments/{id}/cancel", appointmentsHandler.Cancel)

		api.Route("/admin", func(adminRoutes chi.Router) {
			adminRoutes.Post("/register", adminHandler.Register)
			adminRoutes.Post("/login", adminHandler.Login)
			adminRoutes.Post("/refresh", adminHandler.Refresh)
			adminRoutes.Post("/logout", adminHandler.Logout)

			adminRoutes.Group(func(protected chi.Router) {
				protected.Use(adminAuth)

				protected.Get("/appointments", appointmentsHandler.AdminList)
				protected.Post("/appointments", appointmentsHandler.AdminCreate)
				protected.Post("/appointments/{id}/confirm", appointmentsHandler.Confirm)
				protected.Post("/appointments/{id}/cancel", appointmentsHandler.AdminCancel)
				protected.Post("/appointments/{id}/complete", appointmentsHandler.Complete)
				protected.Post("/appointments/{id}/reschedule", appointmentsHandler.Reschedule)

				protected.Get("/availability/templates", availabilityHandler.AdminListTemplates)
				protected.Put("/availability/templates", availabilityHandler.AdminReplaceTemplates)
				protected.Put("/availability/overrides/{date}", availabilityHandler.AdminUpsertOverride)
				protected.Delete("/availability/overrides/{date}", availabilityHandler.AdminDeleteOverride)
				protected.Post("/availability/block", availabilityHandler.AdminBlockRange)
				protected.Post("/availability/unblock", availabilityHandler.AdminUnblockRange)

				protected.Get("/patients", patientsHandler.AdminList)
				protected.Get("/patients/{id}", patientsHandler.Get)
				protected.Patch("/patients/{id}", patientsHandler.Update)

				protected.Put("/settings/booking", settingsHandler.AdminUpdate)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	worker.Shutdown()
	logger.Info("shutdown complete")
}
