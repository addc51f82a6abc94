package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"monitor-engine/internal/util"
)

// Config holds all runtime configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Engine        EngineConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers       []string
	SamplesTopic  string
	EventsTopic   string
	ConsumerGroup string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type KMSConfig struct {
	Enabled bool
	Region  string
	KeyID   string
}

type BucketingConfig struct {
	EventBuckets int
	LockStripes  int
}

// EngineConfig tunes the monitoring pipeline itself.
type EngineConfig struct {
	MaxFutureSkew   time.Duration
	HubQueueSize    int
	IngestWorkers   int
	MetricsInterval time.Duration
	StatsCacheTTL   time.Duration
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// LoadConfig reads configuration from the environment, with .env support for
// local development. Safe to call more than once; the first call wins.
func LoadConfig() *Config {
	cfgOnce.Do(func() {
		// Missing .env is fine; real deployments set the environment directly.
		_ = godotenv.Load()

		cfg = &Config{
			Environment: util.GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         util.GetEnvInt("SERVER_PORT", 8080),
				TLSPort:      util.GetEnvInt("SERVER_TLS_PORT", 8443),
				ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 0),
				IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
				EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     util.GetEnvBool("SERVER_AUTO_CERT", false),
				AutoCertDir:  util.GetEnv("SERVER_AUTO_CERT_DIR", "/var/lib/monitor-engine/certs"),
				Domain:       util.GetEnv("SERVER_DOMAIN", "localhost"),
				Email:        util.GetEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
			},
			Logging: LoggingConfig{
				Level:  util.GetEnv("LOG_LEVEL", "info"),
				Format: util.GetEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      util.GetEnv("REDIS_URL", "redis://localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD", ""),
				DB:       util.GetEnvInt("REDIS_DB", 0),
				PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
				Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "monitoring"),
				Username: util.GetEnv("SCYLLA_USERNAME", ""),
				Password: util.GetEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:       util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				SamplesTopic:  util.GetEnv("KAFKA_SAMPLES_TOPIC", "metric-samples"),
				EventsTopic:   util.GetEnv("KAFKA_EVENTS_TOPIC", "engine-events"),
				ConsumerGroup: util.GetEnv("KAFKA_CONSUMER_GROUP", "monitor-engine"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      util.GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: util.GetEnv("CLICKHOUSE_DATABASE", "audit"),
				Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:        util.GetEnv("ELASTICSEARCH_URL", "https://localhost:9200"),
				Username:   util.GetEnv("ELASTICSEARCH_USERNAME", "elastic"),
				Password:   util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
				AuditIndex: util.GetEnv("ELASTICSEARCH_AUDIT_INDEX", "audit-trail"),
			},
			KMS: KMSConfig{
				Enabled: util.GetEnvBool("KMS_ENABLED", false),
				Region:  util.GetEnv("KMS_REGION", "us-east-1"),
				KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			},
			Bucketing: BucketingConfig{
				EventBuckets: util.GetEnvInt("EVENT_BUCKETS", 64),
				LockStripes:  util.GetEnvInt("LOCK_STRIPES", 128),
			},
			Engine: EngineConfig{
				MaxFutureSkew:   util.GetEnvDuration("ENGINE_MAX_FUTURE_SKEW", 5*time.Minute),
				HubQueueSize:    util.GetEnvInt("ENGINE_HUB_QUEUE_SIZE", 64),
				IngestWorkers:   util.GetEnvInt("ENGINE_INGEST_WORKERS", 4),
				MetricsInterval: util.GetEnvDuration("ENGINE_METRICS_INTERVAL", 10*time.Second),
				StatsCacheTTL:   util.GetEnvDuration("ENGINE_STATS_CACHE_TTL", 30*time.Second),
			},
		}
	})
	return cfg
}

// Get returns the loaded configuration, loading defaults if needed.
func Get() *Config {
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetServerAddress returns the plain-HTTP listen address.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
