package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/liveview-io/liveview/services/builder/internal/service"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/config"
	"github.com/liveview-io/liveview/shared/pkg/database"
	"github.com/liveview-io/liveview/shared/pkg/logger"
)

const startupMaxAttempts = 10
const startupBaseBackoff = 2 * time.Second
const startupMaxBackoff = 60 * time.Second

// minSyntheticConfidence floors the confidence assigned to multi-goal
// synthetic inferences, matching the teacher's SyntheticTimelineGenerator default.
const minSyntheticConfidence = 0.3

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New("builder", "", cfg.IsDevelopment())
	log.Base().WithFields(map[string]interface{}{"env": cfg.Env, "port": cfg.Port}).Info("starting builder service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := connectDBWithRetry(cfg.DatabaseURL, cfg.IsDevelopment(), log)
	if err != nil {
		log.Base().Fatalf("failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	redisClient, err := connectRedisWithRetry(cfg.RedisURL, log)
	if err != nil {
		log.Base().Fatalf("failed to connect to redis after retries: %v", err)
	}
	defer redisClient.Close()

	b := bus.New(redisClient)
	svc := service.New(db.DB, b, log, minSyntheticConfidence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/ready", func(c *gin.Context) {
		if err := db.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port), Handler: router}
	go func() {
		log.Base().WithField("port", cfg.Port).Info("builder service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Base().Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Base().Info("shutting down builder service")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Base().Fatalf("builder service forced to shutdown: %v", err)
	}
	log.Base().Info("builder service exited")
}

func connectDBWithRetry(databaseURL string, isDevelopment bool, log *logger.Logger) (*database.DB, error) {
	var lastErr error
	for attempt := 0; attempt < startupMaxAttempts; attempt++ {
		db, err := database.NewBuilderConnection(databaseURL, isDevelopment)
		if err == nil {
			return db, nil
		}
		lastErr = err
		backoff := bus.JitteredBackoff(attempt, startupBaseBackoff, startupMaxBackoff)
		log.Base().WithFields(map[string]interface{}{"attempt": attempt + 1, "retry_in": backoff, "error": err}).Warn("database unavailable, retrying")
		time.Sleep(backoff)
	}
	return nil, lastErr
}

func connectRedisWithRetry(redisURL string, log *logger.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	var lastErr error
	for attempt := 0; attempt < startupMaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		lastErr = err
		backoff := bus.JitteredBackoff(attempt, startupBaseBackoff, startupMaxBackoff)
		log.Base().WithFields(map[string]interface{}{"attempt": attempt + 1, "retry_in": backoff, "error": err}).Warn("redis unavailable, retrying")
		time.Sleep(backoff)
	}
	return nil, lastErr
}
