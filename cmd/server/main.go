package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examdesk-backend/internal/config"
	"examdesk-backend/internal/coordinator"
	"examdesk-backend/internal/database"
	"examdesk-backend/internal/handlers"
	"examdesk-backend/internal/middleware"
	"examdesk-backend/internal/repository"
	"examdesk-backend/internal/roster"
	"examdesk-backend/internal/router"
	"examdesk-backend/internal/services"
	"examdesk-backend/internal/worker"
	"examdesk-backend/internal/ws"
)

func main() {
	log.Println("🚀 Starting ExamDesk Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	machineRepo := repository.NewMachineRepo(pool)
	structureRepo := repository.NewStructureRepo(pool)
	employeeRepo := repository.NewEmployeeRepo(pool)
	examTypeRepo := repository.NewExamTypeRepo(pool)
	questionRepo := repository.NewQuestionRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	resultRepo := repository.NewResultRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClient, jwtAuth)
	repairQueue := worker.NewQueue(redisClient)
	deskService := services.NewDeskService(machineRepo, repairQueue, cfg.DeskLabelPrefix)
	sessionService := services.NewSessionService(sessionRepo, machineRepo, examTypeRepo, questionRepo, structureRepo)
	resultService := services.NewResultService(resultRepo, sessionRepo, employeeRepo, structureRepo, examTypeRepo, questionRepo)

	// ──── Step 5: Start Repair Worker Pool ────
	workerPool := worker.NewPool(redisClient, deskService, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// One repair pass at boot catches placeholders stranded by a crash.
	if err := repairQueue.Enqueue(context.Background()); err != nil {
		log.Printf("✗ Failed to enqueue boot repair job: %v", err)
	}

	// ──── Step 6: Wire WebSocket Hub and Coordinator ────
	wsHub := ws.NewHub(jwtAuth)
	liveRoster := roster.New()
	coord := coordinator.New(wsHub, liveRoster, deskService, sessionService, resultService, employeeRepo, structureRepo)
	wsHub.SetHandler(coord)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	examTypeHandler := handlers.NewExamTypeHandler(examTypeRepo)
	questionHandler := handlers.NewQuestionHandler(questionRepo)
	structureHandler := handlers.NewStructureHandler(structureRepo)
	employeeHandler := handlers.NewEmployeeHandler(employeeRepo)
	resultHandler := handlers.NewResultHandler(resultService)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		examTypeHandler,
		questionHandler,
		structureHandler,
		employeeHandler,
		resultHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ExamDesk Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API:        http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  Station WS: ws://localhost:%s/api/v1/ws/station", cfg.Port)
	log.Printf("  Admin WS:   ws://localhost:%s/api/v1/ws/admin", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
