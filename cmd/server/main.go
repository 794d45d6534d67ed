package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltanReisoglu/UCP-AGENT/internal/binding"
	"github.com/AltanReisoglu/UCP-AGENT/internal/catalog"
	"github.com/AltanReisoglu/UCP-AGENT/internal/engine"
	"github.com/AltanReisoglu/UCP-AGENT/internal/events"
	"github.com/AltanReisoglu/UCP-AGENT/internal/mandate"
	"github.com/AltanReisoglu/UCP-AGENT/internal/pipeline"
	"github.com/AltanReisoglu/UCP-AGENT/internal/server"
	"github.com/AltanReisoglu/UCP-AGENT/internal/store"
)

type Config struct {
	HTTPPort            string
	BaseURL             string
	Currency            string
	ConsentRequired     bool
	FulfillmentRequired bool

	SessionStore string // memory, redis or mongo
	TerminalTTL  time.Duration
	RedisAddr    string
	MongoURI     string
	MongoDB      string

	CatalogDBPath  string
	MigrationsPath string

	MandateKeyPath string
	MandateKeyID   string

	KafkaBrokers string
	KafkaTopic   string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		BaseURL:             getEnv("BASE_URL", "http://localhost:8080"),
		Currency:            getEnv("CURRENCY", "USD"),
		ConsentRequired:     getEnvBool("CONSENT_REQUIRED", true),
		FulfillmentRequired: getEnvBool("FULFILLMENT_REQUIRED", false),

		SessionStore: getEnv("SESSION_STORE", "memory"),
		TerminalTTL:  getEnvDuration("TERMINAL_TTL", store.DefaultTerminalTTL),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "checkout"),

		CatalogDBPath:  getEnv("CATALOG_DB_PATH", "./catalog.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/catalog/migrations"),

		MandateKeyPath: getEnv("MANDATE_KEY_PATH", ""),
		MandateKeyID:   getEnv("MANDATE_KEY_ID", "merchant-key-1"),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-completed"),

		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Fatalf("Invalid %s: %v", key, err)
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			log.Fatalf("Invalid %s: %v", key, err)
		}
		return parsed
	}
	return defaultValue
}

func loadSigningKey(cfg *Config) *ecdsa.PrivateKey {
	if cfg.MandateKeyPath != "" {
		key, err := mandate.LoadPrivateKeyPEM(cfg.MandateKeyPath)
		if err != nil {
			log.Fatalf("Failed to load mandate key: %v", err)
		}
		return key
	}

	log.Println("MANDATE_KEY_PATH not set, generating ephemeral signing key")
	key, err := mandate.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate signing key: %v", err)
	}
	return key
}

func buildSessionStore(ctx context.Context, cfg *Config) store.SessionStore {
	switch cfg.SessionStore {
	case "memory":
		return store.NewMemoryStore(cfg.TerminalTTL)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		return store.NewRedisStore(client, cfg.TerminalTTL)
	case "mongo":
		db, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("Failed to connect to mongo: %v", err)
		}
		s, err := store.NewMongoStore(ctx, db, cfg.TerminalTTL)
		if err != nil {
			log.Fatalf("Failed to initialize mongo store: %v", err)
		}
		return s
	default:
		log.Fatalf("Unknown SESSION_STORE %q (want memory, redis or mongo)", cfg.SessionStore)
		return nil
	}
}

func main() {
	log.Println("checkout server starting...")
	cfg := loadConfig()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Catalog from SQLite, read through an in-process cache
	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatalf("Failed to open catalog database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}
	log.Println("Catalog migrations completed")

	cat := catalog.NewCachedCatalog(repo)

	sessions := buildSessionStore(startupCtx, cfg)
	defer sessions.Close()

	signer := mandate.NewSigner(loadSigningKey(cfg), cfg.MandateKeyID)

	pipe := pipeline.New(
		pipeline.NewConsentStage(),
		pipeline.NewDiscountStage(pipeline.DefaultDiscounts()),
		pipeline.NewFulfillmentStage(pipeline.DefaultOptions),
		pipeline.NewMandateStage(signer),
	)

	eng := engine.New(cat, sessions, pipe, engine.Config{
		Currency:            cfg.Currency,
		ConsentRequired:     cfg.ConsentRequired,
		FulfillmentRequired: cfg.FulfillmentRequired,
		OrderPermalinkBase:  cfg.BaseURL,
	})

	bnd := binding.New(eng)
	eng.AddListener(bnd)

	if cfg.KafkaBrokers != "" {
		publisher := events.NewPublisher(cfg.KafkaTopic, cfg.KafkaBrokers)
		defer publisher.Close()
		eng.AddListener(publisher)
		log.Printf("Kafka publishing enabled, topic=%s", cfg.KafkaTopic)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.New(eng, cat, bnd, cfg.BaseURL).Handler(cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Checkout server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
