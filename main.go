package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/postfeed/cmd/admin"
	"example.com/postfeed/cmd/server"
	"example.com/postfeed/cmd/worker"
	appkafka "example.com/postfeed/internal/broker"
	"example.com/postfeed/internal/cache"
	config "example.com/postfeed/internal/init"
	"example.com/postfeed/internal/journal"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/media"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/store"
)

var logg = logger.New()

func main() {
	// Initialize application configuration
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)
	mode := cfg.Mode

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// The worker only needs the journal and the event stream
	if mode == "worker" {
		j, err := journal.New()
		if err != nil {
			log.Fatalf("Cassandra connection failed: %v", err)
		}
		w := worker.New(j, appkafka.NewKafkaReader(kafkaCfg), cfg.WorkerCount, 0)
		w.Run(ctx)
		if err := w.Close(); err != nil {
			logg.Warn("main", "Worker close failed", err)
		}
		log.Println("Shutdown completed")
		return
	}

	// Initialize relational store connection
	st, err := store.New()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer st.Close()

	pages, closeCache := openPageCache(ctx, cfg)
	defer closeCache()

	switch mode {
	case "admin":
		if err := admin.Run(ctx, st, pages, os.Args[1:], os.Stdout); err != nil {
			if errors.Is(err, admin.ErrUsage) {
				os.Exit(2)
			}
			log.Fatalf("admin: %v", err)
		}
	case "server":
		runServer(ctx, cfg, st, pages, kafkaCfg)
	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}

func runServer(ctx context.Context, cfg *config.Config, st store.StoreInterface, pages *cache.PageCache, kafkaCfg appkafka.KafkaConfig) {
	images, err := media.NewMinioStore(ctx, media.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		BaseURL:   cfg.MediaBaseURL,
	})
	if err != nil {
		log.Fatalf("MinIO init failed: %v", err)
	}

	// Events are best effort: without a broker the site still works
	var events appkafka.Publisher = appkafka.NopPublisher{}
	if kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg); err != nil {
		logg.Warn("main", "Kafka writer init failed, events disabled", err)
	} else {
		publisher := appkafka.NewEventPublisher(kafkaWriter)
		defer publisher.Close()
		events = publisher
	}

	opts := server.Options{
		Store:         st,
		Images:        images,
		Pages:         pages,
		Auth:          middleware.NewAuthenticator(cfg.JWTSecret, cfg.SessionTTL),
		Events:        events,
		MaxUploadSize: cfg.MaxUploadSize,
	}
	// The activity API answers 503 when Cassandra is unreachable
	if j, err := journal.New(); err != nil {
		logg.Warn("main", "Cassandra unavailable, activity API disabled", err)
	} else {
		defer j.Close()
		opts.Journal = j
	}

	s, err := server.New(opts)
	if err != nil {
		log.Fatalf("Server init failed: %v", err)
	}
	server.Run(ctx, s, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
}

// openPageCache prefers Redis and falls back to process memory when it is
// not configured or unreachable.
func openPageCache(ctx context.Context, cfg *config.Config) (*cache.PageCache, func()) {
	if cfg.CacheBackend == "redis" {
		rs := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "postfeed:",
		})
		err := rs.Ping(ctx)
		if err == nil {
			return cache.NewPageCache(rs, cfg.CacheTTL), func() { rs.Close() }
		}
		logg.Warn("main", "Redis unavailable, using in-memory page cache", err)
		rs.Close()
	}
	return cache.NewPageCache(cache.NewMemoryStore(), cfg.CacheTTL), func() {}
}
