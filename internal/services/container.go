package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/portal"
	"github.com/nexconsult/quote-harvester/internal/storage"
	"github.com/nexconsult/quote-harvester/internal/vault"
)

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	db          *storage.DB
	stopCleanup context.CancelFunc

	Vault          *vault.Cipher
	Credentials    *storage.CredentialRepository
	Events         *storage.EventRepository
	Links          *storage.TenantEventRepository
	Items          *storage.ItemRepository
	CacheService   CacheServiceInterface
	BrowserService BrowserServiceInterface
	Notifier       Notifier
	Metrics        *Metrics
	Harvest        *HarvestService
}

// NewContainer creates a new service container. The database is migrated
// before any service starts.
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	if err := container.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize Redis client
	if err := container.initRedis(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Initialize services
	if err := container.initServices(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

func (c *Container) initStorage() error {
	db, err := storage.Open(c.config.Database)
	if err != nil {
		return err
	}
	c.db = db

	if err := storage.RunMigrations(db); err != nil {
		_ = db.Close()
		c.db = nil
		return err
	}
	c.logger.WithField("driver", db.Driver()).Info("Database ready")

	c.Credentials = storage.NewCredentialRepository(db)
	c.Events = storage.NewEventRepository(db)
	c.Links = storage.NewTenantEventRepository(db)
	c.Items = storage.NewItemRepository(db)
	return nil
}

// initRedis initializes Redis client. The cache falls back to memory when
// Redis cannot be reached.
func (c *Container) initRedis() error {
	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Redis.DialTimeout+time.Second)
	defer cancel()

	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, running without cache")
		_ = c.redisClient.Close()
		c.redisClient = nil
	} else {
		c.logger.Info("Redis connection established")
	}

	return nil
}

// initServices initializes all services
func (c *Container) initServices() error {
	cipher, err := vault.New(c.config.Crypto.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}
	c.Vault = cipher

	cache := NewCacheService(c.redisClient, c.config.Redis.CacheTTL, logger.Component(c.logger, "cache"))
	cleanupCtx, stop := context.WithCancel(context.Background())
	cache.StartCleanupRoutine(cleanupCtx, time.Minute)
	c.stopCleanup = stop
	c.CacheService = cache

	c.BrowserService = NewBrowserService(c.config.Browser, c.config.Portal.NavPerMinute, logger.Component(c.logger, "browser"))

	if c.config.Notify.Enabled() {
		c.Notifier = NewTelegramNotifier(c.config.Notify, logger.Component(c.logger, "notifier"))
	} else {
		c.Notifier = NewNoopNotifier(logger.Component(c.logger, "notifier"))
	}

	c.Metrics = NewMetrics()

	selectors := portal.DefaultSelectors()
	c.Harvest = NewHarvestService(HarvestDeps{
		Config:      c.config,
		Events:      c.Events,
		Links:       c.Links,
		Items:       c.Items,
		Credentials: c.Credentials,
		Vault:       c.Vault,
		Browser:     c.BrowserService,
		Gateway:     portal.NewGateway(c.config.Portal.LoginURL(), selectors, c.config.Timeouts.Login, c.logger),
		Notifier:    c.Notifier,
		Cache:       c.CacheService,
		Metrics:     c.Metrics,
		Selectors:   selectors,
		Logger:      c.logger,
	})

	return nil
}

// Close stops background runs and closes all service connections
func (c *Container) Close() error {
	var errors []error

	if c.Harvest != nil {
		c.Harvest.Close()
	}

	if c.stopCleanup != nil {
		c.stopCleanup()
	}

	// Close Browser Service
	if c.BrowserService != nil {
		if err := c.BrowserService.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close browser service: %w", err))
		}
	}

	// Close Redis connection
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close database: %w", err))
		}
	}

	// Return combined errors if any
	if len(errors) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errors)
	}

	return nil
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.db != nil {
		if err := c.db.Ping(context.Background()); err != nil {
			health["database"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["database"] = map[string]interface{}{
				"status": "healthy",
				"driver": c.db.Driver(),
			}
		}
	}

	if c.CacheService != nil {
		health["cache"] = c.CacheService.Health()
	}

	// Check Browser Service health
	if c.BrowserService != nil {
		health["browser"] = c.BrowserService.Health()
	}

	return health
}
