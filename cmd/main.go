package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"reviewforge/internal/config"
	"reviewforge/internal/core/job"
	"reviewforge/internal/core/product"
	"reviewforge/internal/core/review"
	"reviewforge/internal/core/reviews"
	"reviewforge/internal/logger"
	"reviewforge/internal/platform/apify"
	"reviewforge/internal/platform/eino"
	rds "reviewforge/internal/platform/redis"
	tasks "reviewforge/internal/platform/tasks"
	"reviewforge/internal/server"
	"reviewforge/internal/worker"
)

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg := config.Load()
	log.Printf("[reviewforge] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1},
	})

	// Scrape provider client plus the direct-page fallback source
	apifyClient := apify.New(apify.Options{
		Token:   cfg.ApifyToken,
		BaseURL: cfg.ApifyBaseURL,
		Timeout: cfg.FetchTimeout,
	})
	pageSource := product.NewPageSource(product.PageSourceOptions{Timeout: cfg.FetchTimeout})

	// Core services
	jobSvc := job.NewService(redisSvc)
	productSvc := product.NewService(apifyClient, cfg.ProductActor, pageSource)
	reviewsSvc := reviews.NewService(apifyClient, cfg.ReviewActor)

	// Eino (LLM) service initialized from environment variables
	einoSvc, err := eino.NewService(eino.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.DefaultLLMModel,
	})
	if err != nil {
		log.Fatalf("failed to initialize Eino service: %v", err)
	}

	reviewSvc := review.NewService(productSvc, reviewsSvc, einoSvc, redisSvc, cfg.SessionTTL)
	reviewHandler := review.NewHandler(reviewSvc, jobSvc, taskClient, cfg.TaskMaxRetries)

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeCompose, reviewHandler.HandleComposeTask)

	// Start worker
	_, workerCancel := context.WithCancel(context.Background())
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Reviewforge",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	deps := server.Dependencies{
		Review: reviewHandler,
		Redis:  redisSvc,
		Apify:  apifyClient,
	}
	healthHandler := server.RegisterRoutes(app, deps)

	// Mark application as ready after all services are initialized
	go func() {
		time.Sleep(5 * time.Second) // Allow services to fully initialize
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		workerCancel()
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
