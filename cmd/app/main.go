package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task_reminders/internal/config"
	"task_reminders/internal/db"
	"task_reminders/internal/dispatcher"
	httpServer "task_reminders/internal/http"
	"task_reminders/internal/http/middleware"
	"task_reminders/internal/logger"
	"task_reminders/internal/queue"
	"task_reminders/internal/registry"
	"task_reminders/internal/repository"
	"task_reminders/internal/scanner"
	"task_reminders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	// pipeline context: scanner and dispatcher stop between iterations on
	// shutdown, in-flight message handling finishes first
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())

	q := queue.New(pipelineCtx, queue.Options{
		Addr:           cfg.RedisAddr,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		Stream:         cfg.QueueName,
		RequeueMinIdle: cfg.RequeueMinIdle,
	})
	defer q.Close()

	taskRepo := repository.NewTaskRepository(dbPool)
	reg := registry.New()

	sc := scanner.New(taskRepo, q, cfg.ScanInterval, cfg.NotifyPolicy)
	disp := dispatcher.New(q, reg, taskRepo)

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		disp.Run(pipelineCtx)
	}()
	go sc.Run(pipelineCtx)

	r := gin.Default()

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer.RegisterRoutes(r, dbPool, q, reg, cfg, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	stopPipeline()
	select {
	case <-pipelineDone:
	case <-time.After(10 * time.Second):
		logger.Warn("dispatcher did not stop in time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
