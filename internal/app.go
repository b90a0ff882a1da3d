package internal

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"property-feed-service/internal/adapters/events"
	"property-feed-service/internal/adapters/feedfetcher"
	"property-feed-service/internal/adapters/feedparser"
	"property-feed-service/internal/adapters/localcache"
	"property-feed-service/internal/adapters/localstore"
	logger_adapter "property-feed-service/internal/adapters/logger"
	"property-feed-service/internal/adapters/notifier"
	postgres_adapter "property-feed-service/internal/adapters/postgres"
	rabbitmq_adapter "property-feed-service/internal/adapters/rabbitmq"
	"property-feed-service/internal/adapters/rest"
	"property-feed-service/internal/adapters/tracker"
	"property-feed-service/internal/configs"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/port"
	"property-feed-service/internal/core/usecase"
	fluentlogger "property-feed-service/pkg/fluent_logger"
	"property-feed-service/pkg/postgres"
	"property-feed-service/pkg/rabbitmq/rabbitmq_common"
	"property-feed-service/pkg/rabbitmq/rabbitmq_consumer"
	"property-feed-service/pkg/rabbitmq/rabbitmq_producer"
	"sync"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 15 * time.Second

// App - корень композиции: владеет всеми ресурсами и их порядком остановки
type App struct {
	config *configs.AppConfig
	logger port.LoggerPort

	fluentClient *fluent.Fluent
	sqliteStore  *localstore.SQLiteStore
	dbPool       *pgxpool.Pool
	connManager  *rabbitmq_common.ConnectionManager
	producer     *rabbitmq_producer.Publisher

	notifier     *notifier.SSENotifier
	importUC     *usecase.ImportFeedUseCase
	synchronizer *usecase.RemoteSynchronizer
	server       *rest.Server

	importTasksListener port.EventListenerPort
}

func NewApp() (*App, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	a := &App{config: appConfig}
	if err := a.initLoggers(); err != nil {
		return nil, err
	}
	if err := a.initComponents(); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) initLoggers() error {
	cfg := a.config

	stdoutLevel, ok := logger_adapter.ParseLevel(cfg.StdoutLogger.Level)
	if !ok {
		log.Printf("Warning: Unknown log level '%s'. Defaulting to 'info'.", cfg.StdoutLogger.Level)
	}
	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{Level: stdoutLevel, UseColor: true})
	activeLoggers := []port.LoggerPort{stdoutLogger}

	if cfg.FluentBit.Enabled {
		client, err := fluentlogger.NewClient(fluentlogger.Config{
			Host:      cfg.FluentBit.Host,
			Port:      cfg.FluentBit.Port,
			TagPrefix: cfg.AppName,
			Async:     true,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return fmt.Errorf("failed to create fluentbit client: %w", err)
		}
		fluentLevel, _ := logger_adapter.ParseLevel(cfg.FluentBit.Level)
		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(client, fluentLevel)
		if err != nil {
			client.Close()
			return err
		}
		a.fluentClient = client
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return fmt.Errorf("failed to create multi-logger: %w", err)
	}
	a.logger = multiLogger.WithFields(port.Fields{"service_name": cfg.AppName})
	a.logger.Info("Logger system initialized", port.Fields{
		"active_loggers": len(activeLoggers),
		"fluent_enabled": cfg.FluentBit.Enabled,
	})
	return nil
}

func (a *App) initComponents() error {
	cfg := a.config
	baseLogger := a.logger
	appLogger := baseLogger.WithFields(port.Fields{"component": "app"})
	ctx := contextkeys.ContextWithLogger(context.Background(), baseLogger)

	// --- локальный кэш ---
	var kvStore port.KeyValueStoragePort
	if cfg.LocalStore.Path != "" {
		sqliteStore, err := localstore.NewSQLiteStore(cfg.LocalStore.Path, cfg.LocalStore.QuotaBytes)
		if err != nil {
			appLogger.Error("Failed to open local store", err, port.Fields{"path": cfg.LocalStore.Path})
			return fmt.Errorf("failed to open local store: %w", err)
		}
		a.sqliteStore = sqliteStore
		kvStore = sqliteStore
	} else {
		appLogger.Warn("LOCAL_STORE_PATH is empty, cache will not survive restarts", nil)
		kvStore = localstore.NewMemoryStore(cfg.LocalStore.QuotaBytes)
	}

	cache := localcache.NewPropertyCache(kvStore, localcache.Config{
		PersistLimit:         cfg.Cache.PersistLimit,
		PersistFallbackLimit: cfg.Cache.PersistFallbackLimit,
	})
	cache.Load(ctx)

	a.notifier = notifier.NewSSENotifier(baseLogger)
	cache.Subscribe(a.notifier.NotifyCacheChange)
	importTracker := tracker.NewImportTracker(cfg.Import.TrackerMaxRuns)

	// --- удаленное хранилище ---
	dbPool, err := postgres.NewClient(ctx, postgres.Config{DatabaseURL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", err, nil)
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	a.dbPool = dbPool
	appLogger.Info("Successfully connected to PostgreSQL pool!", nil)

	remoteStore, err := postgres_adapter.NewPostgresPropertyStore(dbPool)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := remoteStore.EnsureSchema(ctx); err != nil {
			appLogger.Error("Failed to ensure properties schema", err, nil)
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	a.synchronizer = usecase.NewRemoteSynchronizer(remoteStore, cfg.Import.SyncTimeout)

	// --- события импорта ---
	sinks := []port.ImportEventsPort{importTracker, a.notifier}
	if cfg.RabbitMQ.Enabled {
		publisher, err := a.initRabbitMQ()
		if err != nil {
			appLogger.Error("Failed to initialize RabbitMQ", err, nil)
			return err
		}
		sinks = append(sinks, publisher)
	}
	importEvents := events.NewMultiImportEventsAdapter(sinks...)

	fetcher, err := feedfetcher.NewFeedFetcherAdapter(feedfetcher.Config{
		Timeout:     cfg.Import.FetchTimeout,
		MaxBodySize: int(cfg.HTTP.MaxUploadBytes),
	})
	if err != nil {
		return err
	}

	// --- use cases ---
	a.importUC = usecase.NewImportFeedUseCase(
		feedparser.NewFeedParser(feedparser.Config{StableSyntheticIDs: cfg.Import.StableSyntheticIDs}),
		feedparser.NewTextNormalizer(),
		cache,
		a.synchronizer,
		importEvents,
		fetcher,
		cfg.Import.ChunkSize,
	)
	getImportsUC := usecase.NewGetImportsUseCase(importTracker)
	getPropertiesUC := usecase.NewGetPropertiesUseCase(cache)
	reloadUC := usecase.NewReloadFromRemoteUseCase(remoteStore, cache, cfg.Import.RemoteReloadLimit)
	appLogger.Info("All use cases initialized.", nil)

	// --- входящие адаптеры ---
	if cfg.RabbitMQ.Enabled {
		listener, err := rabbitmq_adapter.NewImportTasksConsumerAdapter(a.importTasksConsumerConfig(), a.importUC, baseLogger, a.connManager)
		if err != nil {
			appLogger.Error("Failed to initialize Import Tasks Listener", err, nil)
			return err
		}
		a.importTasksListener = listener
	}

	handler := rest.NewFeedHandler(a.importUC, getImportsUC, getPropertiesUC, reloadUC, a.notifier, cache, cfg.HTTP.MaxUploadBytes)
	a.server = rest.NewServer(cfg.HTTP.Port, rest.NewRouter(handler, cfg.HTTP.CORSAllowedOrigins, baseLogger), baseLogger)

	return nil
}

func (a *App) initRabbitMQ() (*rabbitmq_adapter.ImportEventsPublisherAdapter, error) {
	connManager, err := rabbitmq_common.NewConnectionManager(
		rabbitmq_common.Config{URL: a.config.RabbitMQ.URL},
		rabbitmq_adapter.NewPkgLoggerBridge(a.logger.WithFields(port.Fields{"component": "rabbitmq_conn_manager"})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	a.connManager = connManager

	producer, err := rabbitmq_producer.NewPublisher(rabbitmq_producer.PublisherConfig{
		ExchangeName:             constants.PropertyFeedExchange,
		ExchangeType:             "topic",
		DurableExchange:          true,
		DeclareExchangeIfMissing: true,
		Logger:                   rabbitmq_adapter.NewPkgLoggerBridge(a.logger.WithFields(port.Fields{"component": "rabbitmq_producer"})),
	}, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create event producer: %w", err)
	}
	a.producer = producer

	return rabbitmq_adapter.NewImportEventsPublisherAdapter(producer)
}

func (a *App) importTasksConsumerConfig() rabbitmq_consumer.ConsumerConfig {
	return rabbitmq_consumer.ConsumerConfig{
		QueueName:           constants.QueueImportTasks,
		DeclareQueue:        true,
		DurableQueue:        true,
		ExchangeNameForBind: constants.PropertyFeedExchange,
		RoutingKeyForBind:   constants.RoutingKeyImportTasks,
		// импорт тяжелый: по одной задаче за раз
		PrefetchCount: 1,
		ConsumerTag:   "import-tasks-consumer",

		EnableRetryMechanism: true,
		RetryExchange:        constants.QueueImportTasks + "_retry_ex",
		RetryQueue:           constants.QueueImportTasks + "_retry_wait_30s",
		RetryTTL:             30000,
		FinalDLXExchange:     constants.FinalDLXExchange,
		FinalDLQ:             constants.FinalDLQ,
		FinalDLQRoutingKey:   constants.FinalDLQRoutingKey,
		MaxRetries:           3,
	}
}

// Run блокируется до сигнала остановки или падения компонента
func (a *App) Run() error {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	var wg sync.WaitGroup
	componentErrors := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.server.Start(); err != nil {
			componentErrors <- err
		}
	}()

	if a.importTasksListener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listenerLogger := a.logger.WithFields(port.Fields{"listener_name": "Import Tasks Listener"})
			listenerLogger.Info("Starting listener...", nil)
			if err := a.importTasksListener.Start(appCtx); err != nil {
				listenerLogger.Error("Listener stopped with an unexpected error", err, nil)
				componentErrors <- fmt.Errorf("import tasks listener error: %w", err)
				return
			}
			listenerLogger.Info("Listener stopped gracefully due to context cancellation.", nil)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	a.logger.Info("Application running. Waiting for signals...", nil)
	var runErr error
	select {
	case sig := <-quit:
		a.logger.Warn("Received signal, shutting down", port.Fields{"signal": sig.String()})
	case runErr = <-componentErrors:
		a.logger.Error("A critical component failed, shutting down", runErr, nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("Shutdown sequence initiated...", nil)
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error("Error stopping REST server", err, nil)
	}
	cancelApp()
	wg.Wait()

	a.closeResources(shutdownCtx)
	return runErr
}

// closeResources: сначала дожидаемся импортов и синхронизаций, потом закрываем транспорт и хранилища
func (a *App) closeResources(ctx context.Context) {
	if a.importUC != nil {
		a.logger.Info("Waiting for background imports to stop...", nil)
		a.importUC.Shutdown()
	}
	if a.synchronizer != nil {
		a.synchronizer.Wait()
	}
	if a.importTasksListener != nil {
		if err := a.importTasksListener.Close(); err != nil {
			a.logger.Error("Error closing import tasks listener", err, nil)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("Error closing event producer", err, nil)
		}
	}
	if a.connManager != nil {
		if err := a.connManager.Close(ctx); err != nil {
			a.logger.Error("Error closing RabbitMQ connection manager", err, nil)
		}
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.logger.Info("PostgreSQL pool closed.", nil)
	}
	if a.sqliteStore != nil {
		if err := a.sqliteStore.Close(); err != nil {
			a.logger.Error("Error closing local store", err, nil)
		}
	}

	a.logger.Info("Application shut down gracefully.", nil)
	if a.fluentClient != nil {
		if err := a.fluentClient.Close(); err != nil {
			log.Printf("App: Error closing fluent client: %v\n", err)
		}
	}
}
