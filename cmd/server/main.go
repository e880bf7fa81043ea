package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"net/http"

	"github.com/rs/zerolog/log"

	"callcrm/internal/api"
	"callcrm/internal/api/handlers"
	"callcrm/internal/api/middleware"
	"callcrm/internal/engine/events"
	"callcrm/internal/engine/metrics"
	"callcrm/internal/engine/notify"
	"callcrm/internal/pkg/logger"
	"callcrm/internal/pkg/phone"
	"callcrm/internal/platform/auth"
	"callcrm/internal/platform/config"
	"callcrm/internal/platform/database"
	"callcrm/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// Repositories
	callRepo := repositories.NewCallRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)

	// Engine
	phoneValidator := phone.NewValidator("US")
	processor := events.NewProcessor(db, callRepo, phoneValidator)

	var publisher *notify.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = notify.NewPublisher(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MQTT broker")
		}
		defer publisher.Close()
	}
	notifier := notify.NewNotifier(deliveryRepo, cfg.Outbound, publisher)

	metricsRepo := metrics.NewRepository(db)
	aggregator := metrics.NewAggregator(metricsRepo, cfg.Metrics.CacheTTL)

	// Services
	tokenSvc := auth.NewTokenService(cfg.Auth.JWT)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(processor, notifier)
	callHandler := handlers.NewCallHandler(callRepo)
	customerHandler := handlers.NewCustomerHandler(callRepo)
	dashboardHandler := handlers.NewDashboardHandler(aggregator, callRepo)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryRepo)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc, cfg.Auth)

	// Router
	deps := &api.Dependencies{
		WebhookHandler:   webhookHandler,
		CallHandler:      callHandler,
		CustomerHandler:  customerHandler,
		DashboardHandler: dashboardHandler,
		DeliveryHandler:  deliveryHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Info().Str("addr", addr).Msg("server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
