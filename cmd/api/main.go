package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bulksender/internal/bootstrap"
	"bulksender/internal/config"
	"bulksender/internal/dispatch"
	"bulksender/internal/events"
	"bulksender/internal/handler"
	"bulksender/internal/logging"
	"bulksender/internal/metrics"
	"bulksender/internal/middleware"
	"bulksender/internal/queue"
	"bulksender/internal/service"
)

const version = "1.0.0"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := events.NewHub()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("websocket hub stopped")
		}
	}()
	bus := events.NewBus(hub)

	healthDeps := service.HealthDeps{DB: db}
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
		healthDeps.Redis = redisSink
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := queue.NewConnection(cfg.GetRabbitMQURL(), "bulksender-api")
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer conn.Close()

		publisher, err := queue.NewPublisher(conn, queue.EventQueue)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to create event publisher")
		}
		bus.Add(events.NewQueueSink(publisher))
		healthDeps.Queue = conn
	}

	campaignSvc := service.NewCampaignService(campaignDeps, dispatch.Options{
		Governor:    cfg.GovernorConfig(),
		SendTimeout: cfg.Dispatch.SendTimeout,
	})
	healthDeps.Campaigns = campaignSvc

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.RequestLogger)
	handler.NewCampaignHandler(campaignSvc).Register(router)
	router.HandleFunc("/health", handler.NewHealthHandler(service.NewHealthService(healthDeps, version)).HandleHealth)
	router.HandleFunc("/ws", handler.NewWebSocketHandler(hub, cfg.Server.AllowedOrigins).HandleEvents).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().
			Str("addr", server.Addr).
			Str("env", cfg.Env).
			Str("storage", cfg.Storage.Backend).
			Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("failed to shut down HTTP server")
	}
	if err := campaignSvc.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("failed to stop campaigns")
	}
	// after the campaigns so websocket clients receive the final events
	stopHub()

	logging.Info().Msg("API server stopped")
}
