package main

import (
	bookinghandler "staybook/internal/bookings/handler"
	bookingrepo "staybook/internal/bookings/repository"
	bookingservice "staybook/internal/bookings/service"
	"staybook/internal/bookings/sweeper"
	"staybook/internal/bookings/validator"
	outboxrepo "staybook/internal/outbox/repository"
	"staybook/internal/outbox/relay"
	propertyhandler "staybook/internal/properties/handler"
	propertyrepo "staybook/internal/properties/repository"
	propertyservice "staybook/internal/properties/service"
	userrepo "staybook/internal/users/repository"
	"staybook/pkg/app"
	"staybook/pkg/config"
	"staybook/pkg/kafka"
	kafka_config "staybook/pkg/kafka/config"
	kafka_middleware "staybook/pkg/kafka/middleware"
)

const ServiceName = "bookings"

type services struct {
	bookings   bookingservice.BookingService
	properties propertyservice.PropertyService
	outbox     outboxrepo.OutboxRepository
}

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.RequireJWTSecret(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}

	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting Bookings service")
	svc := initServices(cfg)
	producer := initProducer(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		bookinghandler.NewBookingHandler(svc.bookings, cfg.Log),
		propertyhandler.NewPropertyHandler(svc.properties, cfg.Log),
	)
	serverApp.AddWorker("outbox-relay", relay.New(svc.outbox, producer, relay.OptionsFromConfig(cfg), cfg.Log))
	serverApp.AddWorker("completion-sweeper", sweeper.New(svc.bookings, cfg.CompletionSweepInterval, cfg.Log))
	serverApp.AddCloser("kafka-producer", producer)
	serverApp.Run()
}

func initServices(cfg *config.Config) services {
	bookingRepo := bookingrepo.NewMongoBookingRepository(cfg)
	lockRepo := bookingrepo.NewBookingLockRepository(cfg)
	propertyRepo := propertyrepo.NewMongoPropertyRepository(cfg)
	userRepo := userrepo.NewMongoUserRepository(cfg)
	outboxRepo := outboxrepo.NewMongoOutboxRepository(cfg)

	bookingService := bookingservice.NewBookingService(
		bookingRepo,
		lockRepo,
		propertyRepo,
		userRepo,
		outboxRepo,
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)
	propertyService := propertyservice.NewPropertyService(propertyRepo, cfg)

	cfg.Log.Info("Booking services initialized", "database", cfg.MongoDatabaseName)
	return services{
		bookings:   bookingService,
		properties: propertyService,
		outbox:     outboxRepo,
	}
}

func initProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafka_middleware.MetricsProducerMiddleware())
	}
	return producer
}
