package main

import (
	"context"
	"fmt"
	"log"
	nethttp "net/http"
	"time"

	"medisync-backend/internal/auth"
	"medisync-backend/internal/broadcast"
	"medisync-backend/internal/cache"
	"medisync-backend/internal/config"
	"medisync-backend/internal/database"
	"medisync-backend/internal/db"
	"medisync-backend/internal/handlers"
	"medisync-backend/internal/health"
	"medisync-backend/internal/http"
	"medisync-backend/internal/middleware"
	"medisync-backend/internal/monitoring"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/services"
	"medisync-backend/migrations"
)

func main() {
	cfg := config.Load()

	pool := db.Connect(cfg)
	defer pool.Close()
	log.Printf("Connected to database: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// Redis cache is optional; stats queries fall through to Postgres
	if err := cache.Init(); err != nil {
		log.Printf("[Redis] Cache unavailable: %v (stats will hit Postgres directly)", err)
	} else {
		log.Println("[Redis] Cache connected successfully")
	}

	// Run embedded migrations so a fresh database is usable immediately
	log.Println("Running database migrations...")
	migrator := database.NewMigratorWithFS(pool, migrations.FS, ".")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrator.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	healthChecker := health.NewHealthChecker(pool)

	// Monitoring dashboard API on its own port
	if cfg.Monitoring.Enabled {
		go monitoring.NewMonitoringServer(pool, cfg.Monitoring.Port).Start()
	}

	jwtManager := auth.NewJWTManager(cfg)

	// Repositories
	queueRepo := repositories.NewQueueRepository(pool)
	queueRepo.SetRetryPolicy(cfg.Queue.ConflictRetries, time.Duration(cfg.Queue.RetryBackoffMs)*time.Millisecond)
	patientRepo := repositories.NewPatientRepository(pool)
	notificationRepo := repositories.NewNotificationRepository(pool)

	// One broadcaster per process, injected everywhere events are produced
	broadcaster := broadcast.New(cfg.Queue.EventBufferSize)
	defer broadcaster.Close()

	// Services
	serviceTime := time.Duration(cfg.Queue.ServiceTimeMinutes) * time.Minute
	queueService := services.NewQueueService(queueRepo, patientRepo, broadcaster, serviceTime)
	queueService.SetNotificationStore(notificationRepo)
	notificationService := services.NewNotificationService(notificationRepo)
	archiveService := services.NewArchiveService(cfg, queueRepo)
	if archiveService == nil {
		log.Println("[Archive] Disabled")
	}

	// Handlers
	statsTTL := time.Duration(cfg.Queue.StatsCacheSeconds) * time.Second
	queueHandler := handlers.NewQueueHandler(queueService, archiveService, statsTTL)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	streamHandler := handlers.NewStreamHandler(broadcaster)
	healthHandler := handlers.NewHealthHandler(healthChecker)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	corsMiddleware := middleware.NewCORS(cfg)

	router := http.NewRouter(queueHandler, notificationHandler, streamHandler, healthHandler, authMiddleware)

	// Wrap with panic recovery and metrics middleware
	handler := middleware.PanicRecovery(middleware.MetricsMiddleware(corsMiddleware(router)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server running on %s", addr)
	if err := nethttp.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
