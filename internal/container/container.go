package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"podcast-be/internal/config"
	"podcast-be/internal/metrics"
	"podcast-be/internal/middleware"
	"podcast-be/internal/repository"
	"podcast-be/internal/service"
	"podcast-be/internal/service/auth"
	"podcast-be/internal/service/inference"
	"podcast-be/internal/service/linkedin"
	"podcast-be/pkg/database"
	"podcast-be/pkg/logger"
	"podcast-be/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// DB is nil when running on the in-memory user store
	DB          *database.PostgresDB
	// RedisClient is nil when Redis is not configured or unreachable
	RedisClient *redis.Client

	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	Taxonomy     *inference.Taxonomy
	Provider     *linkedin.Client
	Sessions     *auth.SessionIssuer
	Users        service.UserService
	Logins       *auth.Service
	LoginLimiter *middleware.RateLimiter
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)

	keys, err := auth.DeriveKeys(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}

	taxonomy, err := inference.LoadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	c.Taxonomy = taxonomy

	// Initialize Redis client if Redis URL is configured
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching or state fallback")
		} else {
			c.RedisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching or state fallback")
	}

	repo, err := c.userRepository(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	providerCfg := linkedin.Config{
		ClientID:       cfg.LinkedInClientID,
		ClientSecret:   cfg.LinkedInClientSecret,
		RedirectURL:    cfg.LinkedInCallbackURL,
		UserInfoURL:    cfg.LinkedInUserInfoURL,
		RequestTimeout: cfg.ProfileFetchTimeout,
		MaxRetries:     linkedin.DefaultMaxRetries,
		RetryDelay:     cfg.ProfileFetchRetryDelay,
	}
	if cfg.LinkedInOIDCIssuer != "" {
		v, err := linkedin.NewVerifier(ctx, cfg.LinkedInOIDCIssuer, cfg.LinkedInClientID)
		if err != nil {
			log.WithError(err).Warn("OIDC discovery failed, ID token fallback will not verify signatures")
		} else {
			providerCfg.Verifier = v
		}
	}
	c.Provider = linkedin.NewClient(providerCfg, log.WithField("component", "linkedin"), c.Metrics)

	guard := inference.NewGuard(
		inference.NewKeywordInferrer(taxonomy),
		taxonomy,
		cfg.InferenceTimeout,
		log.WithField("component", "inference"),
		c.Metrics,
	)

	c.Sessions = auth.NewSessionIssuer(keys.Session, nil)
	c.Users = service.NewUserService(
		repo,
		service.NewUserCache(c.RedisClient, log.Logger),
		c.Provider,
		guard,
		taxonomy,
		log.WithField("component", "users"),
		c.Metrics,
	)

	var stateStore repository.LoginStateStore
	if c.RedisClient != nil {
		stateStore = repository.NewLoginStateStore(c.RedisClient)
	}

	c.Logins = auth.NewService(auth.Options{
		Provider:     c.Provider,
		Users:        c.Users,
		Inferrer:     guard,
		States:       auth.NewStateCodec(keys.State),
		Sessions:     c.Sessions,
		StateStore:   stateStore,
		FrontendURL:  cfg.FrontendURL,
		RequireEmail: cfg.RequireEmail,
		Logger:       log.WithField("component", "login"),
		Metrics:      c.Metrics,
	})

	c.LoginLimiter = middleware.NewRateLimiter(middleware.PerMinute(cfg.LoginRatePerMinute), log)

	return c, nil
}

// userRepository connects to Postgres, or falls back to the in-memory store
// outside production when no database is configured
func (c *Container) userRepository(ctx context.Context) (repository.UserRepository, error) {
	if c.Config.DatabaseURL == "" {
		if c.Config.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		c.Logger.Warn("DATABASE_URL not configured, using in-memory user store")
		return repository.NewMemoryUserRepository(), nil
	}

	if c.Config.AutoMigrate {
		if err := database.RunMigrations(c.Config.DatabaseURL); err != nil {
			return nil, err
		}
		c.Logger.Info("Database migrations applied")
	}

	db, err := database.NewPostgresDB(ctx, c.Config.DatabaseURL, c.Config.DatabaseReadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db
	c.Logger.Info("Database connection established")

	return repository.NewUserRepository(db), nil
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Close releases every connection the container opened
func (c *Container) Close() {
	if c.LoginLimiter != nil {
		c.LoginLimiter.Stop()
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
