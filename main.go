package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"tenantcrm/config"
	"tenantcrm/consumer"
	"tenantcrm/events"
	"tenantcrm/handlers"
	"tenantcrm/models"
	"tenantcrm/monitoring"
	"tenantcrm/service"
	"tenantcrm/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	utils.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if err := utils.InitSentry(cfg.Sentry.DSN, cfg.App.Env, cfg.App.Version, cfg.Sentry.TracesSampleRate); err != nil {
		log.Warn().Err(err).Msg("sentry disabled")
	}
	defer sentry.Flush(2 * time.Second)

	repo, err := models.NewPostgresRepository(cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer repo.Close()

	monitoring.Init()
	if err := monitoring.InstrumentDB(repo.DB(context.Background())); err != nil {
		log.Fatal().Err(err).Msg("failed to instrument database")
	}

	var cache utils.RedisClient
	if cfg.Redis.Host != "" {
		cache, err = utils.ConnectRedis(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB, 5, 3*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer cache.Close()
	}

	var publisher events.Publisher
	if cfg.Kafka.Broker != "" {
		producer, err := utils.NewKafkaProducer(cfg.Kafka.Broker)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer producer.Close()
		queue := events.NewQueue(events.NewKafkaPublisher(producer, cfg.Kafka.Topic), 1024)
		defer queue.Close()
		publisher = queue
	}

	var es utils.ElasticsearchClient
	if cfg.Elasticsearch.URL != "" {
		es, err = utils.NewElasticsearchClient(cfg.Elasticsearch.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create elasticsearch client")
		}
		defer es.Close()
		if err := es.EnsureIndex(context.Background(), service.SearchIndex, service.SearchIndexSettings); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare search index")
		}
	}

	files, err := utils.NewFileStorage(cfg.Storage.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare document storage")
	}

	deps := service.Deps{Repo: repo, Publisher: publisher, Cache: cache, CacheTTL: cfg.Redis.CacheTTL.Duration()}
	auth := service.NewAuthService(repo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration())
	tenants := service.NewTenantService(repo, cache)
	projects := service.NewProjectService(deps)

	ctx := log.Logger.WithContext(context.Background())
	if _, err := tenants.Bootstrap(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap super-admin")
	}

	router := handlers.NewRouter(handlers.Handlers{
		Auth:     auth,
		Admin:    handlers.NewAdminHandler(auth, service.NewUserService(repo), tenants),
		Clients:  handlers.NewClientHandler(service.NewClientService(deps), service.NewContactService(deps), projects),
		Projects: handlers.NewProjectHandler(projects),
		Pitches:  handlers.NewPitchHandler(service.NewPitchService(deps)),
		Leads:    handlers.NewLeadHandler(service.NewLeadService(deps)),
		Records: handlers.NewRecordHandler(
			service.NewAttachmentService(repo, files, cfg.Storage.MaxUploadBytes),
			service.NewNavigator(repo),
			service.NewSearchService(es),
			cfg.Storage.MaxUploadBytes,
		),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{"database": repo, "redis": cache, "elasticsearch": es}),
	}, cfg.App.CORSOrigins)

	var indexer *consumer.EntityConsumer
	if cfg.Kafka.Broker != "" {
		indexer = consumer.NewEntityConsumer(utils.NewKafkaReader(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID), cache, es)
		indexer.Start(ctx)
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server is running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if indexer != nil {
		indexer.Stop()
	}
}
