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

	"github.com/liveview-io/liveview/services/scheduler/internal/discovery"
	"github.com/liveview-io/liveview/services/scheduler/internal/leader"
	"github.com/liveview-io/liveview/services/scheduler/internal/polling"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/config"
	"github.com/liveview-io/liveview/shared/pkg/database"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/pkg/providerhealth"
	"github.com/liveview-io/liveview/shared/types"
)

const startupMaxAttempts = 10
const startupBaseBackoff = 2 * time.Second
const startupMaxBackoff = 60 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New("scheduler", "", cfg.IsDevelopment())
	log.Base().WithFields(map[string]interface{}{"env": cfg.Env, "port": cfg.Port}).Info("starting scheduler service")

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
	if err := db.AutoMigrate(); err != nil {
		log.Base().Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := connectRedisWithRetry(cfg.RedisURL, log)
	if err != nil {
		log.Base().Fatalf("failed to connect to redis after retries: %v", err)
	}
	defer redisClient.Close()

	b := bus.New(redisClient)

	elector := leader.New(b, log, time.Duration(cfg.SchedulerLeaderTTLS)*time.Second, time.Duration(cfg.SchedulerLeaderRenewS)*time.Second)

	scorer := providerhealth.NewScorer(b, cfg.ProviderHealthWindowS)
	engine := polling.NewEngine(b, cfg.SchedulerMinPollIntervalS, cfg.SchedulerMaxPollIntervalS, cfg.SchedulerJitterFactor)

	quotaLimits := make(map[types.ProviderName]int64, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		quotaLimits[types.ProviderName(name)] = int64(cfg.ProviderRPMLimit)
	}

	disco := discovery.New(db.DB, b, engine, scorer, cfg.ProviderOrder, quotaLimits, log)
	scheduleSync := discovery.NewScheduleSyncService(db.DB, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go elector.Run(ctx)
	go runTickLoop(ctx, cfg, disco, elector, log)

	if err := scheduleSync.Start(ctx); err != nil {
		log.Base().WithField("error", err).Warn("schedule sync failed to start")
	}
	defer scheduleSync.Stop()

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
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"is_leader":  elector.IsLeader(),
			"task_count": disco.TaskCount(),
		})
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port), Handler: router}
	go func() {
		log.Base().WithField("port", cfg.Port).Info("scheduler service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Base().Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Base().Info("shutting down scheduler service")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Base().Fatalf("scheduler service forced to shutdown: %v", err)
	}
	log.Base().Info("scheduler service exited")
}

// runTickLoop drives reconciliation and poll dispatch while this instance
// holds leadership. Reconciliation only runs every N ticks since it queries
// the full active-match set; poll dispatch runs every tick since tasks
// track their own next-due time.
func runTickLoop(ctx context.Context, cfg *config.Config, disco *discovery.Service, elector *leader.Elector, log *logger.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.SchedulerTickIntervalS * float64(time.Second)))
	defer ticker.Stop()

	everyN := cfg.SchedulerDiscoveryEveryN
	if everyN <= 0 {
		everyN = 1
	}
	tick := 0
	wasLeader := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			isLeader := elector.IsLeader()
			if wasLeader && !isLeader {
				log.Base().Info("lost leadership, clearing poll tasks")
				disco.Clear()
			}
			wasLeader = isLeader
			if !isLeader {
				continue
			}

			tick++
			if tick%everyN == 0 {
				disco.ReconcileTasks(ctx)
			}
			disco.ExecutePollCycle(ctx)
		}
	}
}

func connectDBWithRetry(databaseURL string, isDevelopment bool, log *logger.Logger) (*database.DB, error) {
	var lastErr error
	for attempt := 0; attempt < startupMaxAttempts; attempt++ {
		db, err := database.NewSchedulerConnection(databaseURL, isDevelopment)
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
