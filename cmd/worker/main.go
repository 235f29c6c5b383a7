package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bulksender/internal/bootstrap"
	"bulksender/internal/config"
	"bulksender/internal/dispatch"
	"bulksender/internal/events"
	"bulksender/internal/logging"
	"bulksender/internal/metrics"
	"bulksender/internal/queue"
	"bulksender/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log)

	store, db, err := bootstrap.OpenStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open progress store")
	}
	if db != nil {
		defer db.Close()
	}

	hostname, _ := os.Hostname()
	conn, err := queue.NewConnection(cfg.GetRabbitMQURL(), "bulksender-worker-"+hostname)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer conn.Close()
	logging.Info().Msg("connected to RabbitMQ")

	publisher, err := queue.NewPublisher(conn, queue.EventQueue)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create event publisher")
	}
	bus := events.NewBus(events.NewQueueSink(publisher))

	campaignDeps := service.CampaignDeps{
		Provider: bootstrap.NewProvider(cfg),
		Store:    store,
		Events:   bus,
		Observer: metrics.NewRecorder(),
	}

	redisClient, err := bootstrap.NewRedisClient(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		redisSink := events.NewRedisSink(redisClient)
		bus.Add(redisSink)
		campaignDeps.History = redisSink
	}

	campaignSvc := service.NewCampaignService(campaignDeps, dispatch.Options{
		Governor:    cfg.GovernorConfig(),
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	consumer, err := queue.NewConsumer(conn, queue.CommandQueue, campaignSvc.HandleCommand)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create consumer")
	}
	if err := consumer.Start(); err != nil {
		logging.Fatal().Err(err).Msg("failed to start consumer")
	}
	logging.Info().Str("queue", queue.CommandQueue).Msg("worker started")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Info().Msg("shutting down gracefully")

	if err := consumer.Stop(); err != nil {
		logging.Error().Err(err).Msg("failed to stop consumer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := campaignSvc.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("failed to stop campaigns")
	}

	logging.Info().Msg("worker stopped")
}
