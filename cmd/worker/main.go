package main

import (
	"flag"
	stdlog "log"
	"time"

	"github.com/rs/zerolog/log"

	"callcrm/internal/engine/metrics"
	"callcrm/internal/engine/notify"
	"callcrm/internal/pkg/logger"
	"callcrm/internal/platform/config"
	"callcrm/internal/platform/database"
	"callcrm/internal/platform/repositories"
	"callcrm/internal/workers"
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

	deliveryRepo := repositories.NewDeliveryRepository(db)
	metricsRepo := metrics.NewRepository(db)

	var publisher *notify.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = notify.NewPublisher(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MQTT broker")
		}
		defer publisher.Close()
	}
	notifier := notify.NewNotifier(deliveryRepo, cfg.Outbound, publisher)

	log.Info().Msg("background workers starting")

	go runDeliveryRetryWorker(cfg.Workers.RetryInterval, deliveryRepo, notifier)
	go runMetricsSnapshotWorker(cfg.Workers.MetricsInterval, metricsRepo)

	// Keep process alive
	select {}
}

func runDeliveryRetryWorker(interval time.Duration, deliveries *repositories.DeliveryRepository, notifier *notify.Notifier) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		workers.RetryPendingDeliveries(deliveries, notifier)
	}
}

func runMetricsSnapshotWorker(interval time.Duration, repo *metrics.Repository) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := workers.SnapshotDailyMetrics(repo); err != nil {
			log.Error().Err(err).Msg("failed to snapshot daily metrics")
		}
	}
}
