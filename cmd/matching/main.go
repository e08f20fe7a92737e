package main

import (
	"context"

	availabilityservice "saubio/internal/availability/service"
	bookinghandler "saubio/internal/bookings/handler"
	bookingrepo "saubio/internal/bookings/repository"
	bookingservice "saubio/internal/bookings/service"
	bookingvalidator "saubio/internal/bookings/validator"
	fallbackservice "saubio/internal/fallback/service"
	lockhandler "saubio/internal/locks/handler"
	lockrepo "saubio/internal/locks/repository"
	lockservice "saubio/internal/locks/service"
	matchingservice "saubio/internal/matching/service"
	providerrepo "saubio/internal/providers/repository"
	teamhandler "saubio/internal/teams/handler"
	teamrepo "saubio/internal/teams/repository"
	teamservice "saubio/internal/teams/service"
	"saubio/pkg/app"
	"saubio/pkg/client"
	"saubio/pkg/config"
	"saubio/pkg/events"
	"saubio/pkg/kafka"
	kafkaconfig "saubio/pkg/kafka/config"
	kafkamiddleware "saubio/pkg/kafka/middleware"
	"saubio/pkg/keymutex"
)

const ServiceName = "matching"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg := kafkaconfig.Load()
	if err := kafkaCfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	cfg.Log.Info("Starting matching service")

	publisher, producers := initPublisher(cfg, kafkaCfg)
	defer func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		}
	}()

	services := initServices(cfg, publisher)

	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		kafkaCfg.MatchingRequestsTopic,
		kafkaCfg.ConsumerGroup,
		kafkaCfg.DLQTopic,
		matchingservice.MatchRequestHandler(services.matcher, cfg.Log),
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create match request consumer", "error", err)
	}
	consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(cfg.Log))
	defer func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
	}()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		bookinghandler.NewBookingHandler(services.bookings, services.escalator, cfg),
		lockhandler.NewLockHandler(services.locks, cfg),
		teamhandler.NewTeamHandler(services.teams, cfg),
	)
	serverApp.AddWorker(services.locks.RunSweeper)
	serverApp.AddWorker(func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Match request consumer stopped", "error", err)
		}
	})
	serverApp.Run()
}

type serviceSet struct {
	bookings  bookingservice.BookingService
	locks     lockservice.LockService
	teams     teamservice.TeamService
	matcher   matchingservice.MatchingService
	escalator fallbackservice.EscalatorService
}

func initPublisher(cfg *config.Config, kafkaCfg *kafkaconfig.Config) (events.Publisher, []*kafka.Producer) {
	matchingProducer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.MatchingRequestsTopic, kafkaCfg.DLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create matching producer", "error", err)
	}
	eventsProducer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.BookingEventsTopic, kafkaCfg.DLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create events producer", "error", err)
	}
	matchingProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
	eventsProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))

	publisher := events.NewKafkaPublisher(matchingProducer, eventsProducer, ServiceName)
	return publisher, []*kafka.Producer{matchingProducer, eventsProducer}
}

func initServices(cfg *config.Config, publisher events.Publisher) *serviceSet {
	bookingRepo := bookingrepo.NewMongoBookingRepository(cfg)
	auditRepo := bookingrepo.NewMongoAuditRepository(cfg)
	lockRepository := lockrepo.NewMongoLockRepository(cfg)
	guardRepo := lockrepo.NewTargetGuardRepository(cfg)
	teamRepository := teamrepo.NewMongoTeamRepository(cfg)
	planRepo := teamrepo.NewMongoPlanRepository(cfg)
	providerRepo := providerrepo.NewMongoProviderRepository(cfg)

	teamSvc := teamservice.NewTeamService(teamRepository, planRepo, cfg)

	lockSvc := lockservice.NewLockService(
		lockRepository,
		guardRepo,
		bookingRepo,
		teamSvc,
		auditRepo,
		publisher,
		cfg,
	)

	bookingValidator, err := bookingvalidator.NewBookingValidator()
	if err != nil {
		cfg.Log.Fatal("Failed to initialize booking validator", "error", err)
	}
	bookingSvc := bookingservice.NewBookingService(
		bookingRepo,
		auditRepo,
		bookingValidator,
		lockSvc,
		teamRepository,
		teamSvc,
		publisher,
		cfg,
	)

	scheduleClient := client.NewScheduleClient(cfg.ScheduleServiceURL)
	availabilitySvc := availabilityservice.NewAvailabilityService(
		providerRepo,
		teamRepository,
		lockRepository,
		scheduleClient,
		cfg,
	)

	// Matching passes and fallback assignment share one per-booking mutex
	// so they never run concurrently for the same booking.
	bookingMu := keymutex.New()

	escalatorSvc := fallbackservice.NewEscalatorService(
		bookingRepo,
		auditRepo,
		teamRepository,
		teamSvc,
		lockSvc,
		publisher,
		bookingMu,
		cfg,
	)

	matcherSvc := matchingservice.NewMatchingService(
		bookingRepo,
		auditRepo,
		availabilitySvc,
		lockSvc,
		escalatorSvc,
		publisher,
		bookingMu,
		cfg,
	)

	cfg.Log.Info("Matching core initialized", "database", cfg.MongoDatabaseName)
	return &serviceSet{
		bookings:  bookingSvc,
		locks:     lockSvc,
		teams:     teamSvc,
		matcher:   matcherSvc,
		escalator: escalatorSvc,
	}
}
