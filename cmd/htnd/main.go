package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"postpartum-htn-backend/config"
	"postpartum-htn-backend/internal/api"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/db"
	"postpartum-htn-backend/internal/logging"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/timer"
	"postpartum-htn-backend/internal/workflow"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "htnd")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn("VAPID keys are not configured; notifications are stored but not pushed")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin := uuid.NewString()
	broker := changefeed.NewBroker(32)
	feed, closeFeed := buildChangeFeed(ctx, cfg.ChangeFeed, origin, broker, logger)
	defer closeFeed()

	appStore := store.NewGormStore(gormDB, feed, logger)
	logger.Info("data store initialized", zap.String("instance", origin))

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions, logger)
	pool.Start(ctx)

	engine := workflow.NewEngine(appStore, pool, broker, logger, workflow.Options{
		MinConfirmationGap: cfg.Protocol.MinConfirmationGap,
		PollInterval:       cfg.Protocol.TimerPollInterval,
		AckRetention:       time.Duration(cfg.Protocol.AckRetentionMinutes) * time.Minute,
	})

	// Announce expired timers in the background
	acks := timer.NewAckSet(time.Duration(cfg.Protocol.AckRetentionMinutes) * time.Minute)
	watcher := timer.NewWatcher(cfg.Protocol.TimerPollInterval, appStore, pool, acks, nil, logger)
	go watcher.Run(ctx)

	// Initialize router
	handler := api.NewHandler(engine, appStore, webpushOptions, cfg.Server.RequestTimeout, logger)
	router := api.NewRouter(handler, cfg.Server, cfg.Auth)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info("shutdown signal received, stopping services")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server gracefully stopped")
}

// buildChangeFeed wires the configured cross-instance backend next to the local broker.
// Remote changes read from Redis are re-published to the broker only, never back out.
func buildChangeFeed(ctx context.Context, cfg config.ChangeFeedConfig, origin string, broker *changefeed.Broker, logger *zap.Logger) (changefeed.Publisher, func()) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		consumer := changefeed.NewRedisConsumer(client, cfg.Redis.Stream, origin, broker, logger)
		go consumer.Run(ctx)

		logger.Info("change feed: redis streams", zap.String("stream", cfg.Redis.Stream))
		pub := changefeed.NewRedisPublisher(client, cfg.Redis.Stream, origin)
		return changefeed.Multi{broker, pub}, func() { client.Close() }

	case "kafka":
		writer := changefeed.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		pub := changefeed.NewKafkaPublisher(writer, origin)

		logger.Info("change feed: kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		return changefeed.Multi{broker, pub}, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("failed to close kafka writer", zap.Error(err))
			}
		}

	default:
		return broker, func() {}
	}
}
