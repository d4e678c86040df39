package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staybook/internal/notifications/handler"
	"staybook/internal/notifications/mailer"
	"staybook/pkg/config"
	"staybook/pkg/kafka"
	kafka_config "staybook/pkg/kafka/config"
	kafka_middleware "staybook/pkg/kafka/middleware"
)

const (
	ServiceName     = "notifier"
	metricsInterval = time.Minute
)

func main() {
	cfg := config.Load(ServiceName)
	defer cfg.GracefulShutdown()

	if err := cfg.RequireSMTP(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	events := handler.NewBookingEventHandler(mailer.NewSMTPSender(cfg), cfg.Log)
	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.BookingEventsTopic,
		cfg.NotifierGroupID,
		cfg.BookingEventsDLQTopic,
		events.Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if kafkaCfg.EnableMiddleware {
		go logMetrics(ctx, cfg)
	}

	cfg.Log.Info("Starting notifier",
		"topic", cfg.BookingEventsTopic,
		"group_id", cfg.NotifierGroupID,
		"dlq_topic", cfg.BookingEventsDLQTopic,
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped", "error", err)
	}

	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close Kafka consumer", "error", err)
	}
	cfg.Log.Info("Notifier stopped")
}

func logMetrics(ctx context.Context, cfg *config.Config) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kafka_middleware.GetMetrics().LogMetrics(cfg.Log)
		}
	}
}
