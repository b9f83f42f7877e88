package cmd

import (
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/cache"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/database"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/search"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/sirupsen/logrus"
)

// components holds everything a long-running command needs
type components struct {
	db      database.DB
	svc     *service.FleetService
	closers []func() error
}

// Close releases components in reverse order of creation
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.WithError(err).Warn("Error releasing component")
		}
	}
}

// connectDatabase retries with exponential backoff
func connectDatabase(cfg config.DatabaseConfig) database.DB {
	var (
		db  database.DB
		err error
	)
	maxRetries := 5
	retryInterval := time.Second

	for i := 0; i < maxRetries; i++ {
		log.WithField("attempt", i+1).Info("Connecting to database...")
		db, err = database.Connect(cfg)
		if err == nil {
			break
		}

		log.WithFields(logrus.Fields{
			"error":         err.Error(),
			"retry_attempt": i + 1,
			"max_retries":   maxRetries,
		}).Error("Failed to connect to database, retrying...")

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	if err != nil {
		log.Fatalf("Failed to connect to database after %d attempts: %v", maxRetries, err)
	}

	log.Info("Successfully connected to database")
	return db
}

// buildComponents wires the store, cache, event publisher and search
// projection into the fleet service
func buildComponents(cfg *config.Config) *components {
	c := &components{}

	c.db = connectDatabase(cfg.Database)
	c.closers = append(c.closers, c.db.Close)

	log.Info("Connecting to Redis...")
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warnf("Failed to connect to Redis, continuing without device cache: %v", err)
		redisClient = cache.NewNoopClient()
	}
	c.closers = append(c.closers, redisClient.Close)

	log.WithField("driver", cfg.Messaging.Driver).Info("Connecting to message broker...")
	publisher, err := messaging.NewPublisher(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to message broker: %v", err)
	}

	indexer, err := search.NewTelemetryIndexer(cfg.Elasticsearch)
	if err != nil {
		log.Warnf("Failed to initialize Elasticsearch, continuing without telemetry search: %v", err)
		indexer = search.NoopIndexer{}
	}

	log.Info("Initializing service layer...")
	svc, err := service.NewService(service.ServiceConfig{
		Repository: repository.NewRepository(c.db),
		Cache:      redisClient,
		Publisher:  publisher,
		Indexer:    indexer,
		Logger:     log,
		Protocol:   cfg.Protocol,
		CacheTTL:   cfg.Redis.DeviceTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	c.svc = svc
	// Shutdown closes the publisher
	c.closers = append(c.closers, svc.Shutdown)

	return c
}
