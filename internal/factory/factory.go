package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"monitor-engine/internal/alerting"
	"monitor-engine/internal/audit"
	"monitor-engine/internal/bucketing"
	"monitor-engine/internal/client"
	"monitor-engine/internal/config"
	"monitor-engine/internal/encryption"
	"monitor-engine/internal/hub"
	"monitor-engine/internal/ingest"
	chrepo "monitor-engine/internal/repository/clickhouse"
	redisrepo "monitor-engine/internal/repository/redis"
	"monitor-engine/internal/repository/scylla"
	"monitor-engine/internal/security"
	"monitor-engine/internal/tls"
	"monitor-engine/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	payloadEncryptor *encryption.PayloadEncryptor
	bucketingManager *bucketing.Manager

	// Repositories
	alertRepository     scylla.AlertRepository
	eventRepository     scylla.EventRepository
	blocklistRepository scylla.BlocklistRepository
	metricRepository    scylla.MetricRepository
	auditRepository     chrepo.AuditRepository
	blocklistCache      *redisrepo.BlocklistCache
	rejectionCounter    *redisrepo.RejectionCounter
	statsCache          *redisrepo.StatsCache

	// Engine
	streamHub      *hub.Hub
	auditService   *audit.Service
	alertService   *alerting.AlertService
	eventService   *security.EventService
	metricsService *ingest.MetricsService
	pipeline       *ingest.Pipeline

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()
	factory.initializeRepositories()
	factory.initializeEngine()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka producer and sample consumer
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.SamplesTopic,
		f.config.Kafka.ConsumerGroup, util.Get()); err != nil {
		util.Warn("Kafka consumer initialization failed - ingestion disabled", util.ErrorField(err))
	} else {
		f.kafkaConsumer = consumer
		util.Info("Kafka consumer initialized")
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes encryption and bucketing managers
func (f *Factory) initializeManagers() {
	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config - falling back to local encryption keys",
				util.ErrorField(err))
			f.config.KMS.Enabled = false
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.payloadEncryptor = encryption.NewPayloadEncryptor(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("encryption_initialized", f.payloadEncryptor != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

func (f *Factory) initializeRepositories() {
	if f.scyllaClient != nil {
		f.alertRepository = scylla.NewAlertRepository(f.scyllaClient)
		f.eventRepository = scylla.NewEventRepository(f.scyllaClient, f.payloadEncryptor)
		f.blocklistRepository = scylla.NewBlocklistRepository(f.scyllaClient)
		f.metricRepository = scylla.NewMetricRepository(f.scyllaClient)
	}
	if f.clickhouseClient != nil {
		f.auditRepository = chrepo.NewAuditRepository(f.clickhouseClient)
	}
	if f.redisClient != nil {
		f.blocklistCache = redisrepo.NewBlocklistCache(f.redisClient)
		f.rejectionCounter = redisrepo.NewRejectionCounter(f.redisClient)
		f.statsCache = redisrepo.NewStatsCache(f.redisClient, f.config.Engine.StatsCacheTTL)
	}
}

func (f *Factory) initializeEngine() {
	f.streamHub = hub.NewHub(f.config.Engine.HubQueueSize)

	f.auditService = audit.NewService(f.auditRepository, f.esClient,
		f.config.Elasticsearch.AuditIndex, f.statsCache)

	f.alertService = alerting.NewAlertService(f.alertRepository, f.streamHub,
		f.kafkaProducer, f.bucketingManager, f.config.Kafka.EventsTopic)

	f.eventService = security.NewEventService(f.eventRepository, f.blocklistRepository,
		f.blocklistCache, f.auditService, f.streamHub, f.bucketingManager)

	f.metricsService = ingest.NewMetricsService(f.metricRepository)

	if f.kafkaConsumer != nil {
		validator := ingest.NewValidator(f.config.Engine.MaxFutureSkew)
		f.pipeline = ingest.NewPipeline(f.kafkaConsumer, validator, f.metricRepository,
			f.alertService, f.streamHub, f.rejectionCounter,
			f.config.Engine.IngestWorkers, f.config.Engine.MetricsInterval)
	}
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.streamHub != nil {
			f.streamHub.Close()
		}

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.payloadEncryptor != nil {
			f.payloadEncryptor.ClearCache()
			util.Info("Encryption key cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Hub() *hub.Hub {
	return f.streamHub
}

func (f *Factory) AlertService() *alerting.AlertService {
	return f.alertService
}

func (f *Factory) EventService() *security.EventService {
	return f.eventService
}

func (f *Factory) AuditService() *audit.Service {
	return f.auditService
}

func (f *Factory) MetricsService() *ingest.MetricsService {
	return f.metricsService
}

// Pipeline returns the ingestion pipeline, or nil when Kafka is unavailable.
func (f *Factory) Pipeline() *ingest.Pipeline {
	return f.pipeline
}
