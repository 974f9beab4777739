package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrMissingDatabaseURL is returned when no connection string is configured
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is not set")

// MaxInsertChunkSize keeps a 15-column sales_data chunk within PostgreSQL's
// 65535 bind parameters
const MaxInsertChunkSize = 4369

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Observ    ObservabilityConfig
	Pipeline  PipelineConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicRuns     string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// PipelineConfig drives the batch run
type PipelineConfig struct {
	ArchivePath     string
	OutputDir       string
	ReportDir       string
	InsertChunkSize int
	LockTTL         time.Duration
	TopN            int
	NonProductCodes []string
}

// DashboardConfig drives the interactive API
type DashboardConfig struct {
	CacheTTL time.Duration
	// CompletenessThreshold is the share of days (percent) a previous period
	// must cover before its growth figure is shown without a warning
	CompletenessThreshold float64
}

// env names for each key; keys double as config file paths
var envBindings = map[string]string{
	"server.port":                      "PORT",
	"server.env":                       "ENV",
	"server.log_level":                 "LOG_LEVEL",
	"database.url":                     "DATABASE_URL",
	"database.max_open_conns":          "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":          "DATABASE_MAX_IDLE_CONNS",
	"redis.addr":                       "REDIS_ADDR",
	"redis.password":                   "REDIS_PASSWORD",
	"redis.db":                         "REDIS_DB",
	"kafka.brokers":                    "KAFKA_BROKERS",
	"kafka.topic_runs":                 "KAFKA_TOPIC_PIPELINE_RUNS",
	"kafka.consumer_group":             "KAFKA_CONSUMER_GROUP",
	"observability.jaeger_endpoint":    "JAEGER_ENDPOINT",
	"pipeline.archive_path":            "PIPELINE_ARCHIVE_PATH",
	"pipeline.output_dir":              "PIPELINE_OUTPUT_DIR",
	"pipeline.report_dir":              "PIPELINE_REPORT_DIR",
	"pipeline.insert_chunk_size":       "PIPELINE_INSERT_CHUNK_SIZE",
	"pipeline.lock_ttl":                "PIPELINE_LOCK_TTL",
	"pipeline.top_n":                   "PIPELINE_TOP_N",
	"pipeline.non_product_codes":       "PIPELINE_NON_PRODUCT_CODES",
	"dashboard.cache_ttl":              "DASHBOARD_CACHE_TTL",
	"dashboard.completeness_threshold": "DASHBOARD_COMPLETENESS_THRESHOLD",
}

var defaults = map[string]interface{}{
	"server.port":                      "8080",
	"server.env":                       "development",
	"database.max_open_conns":          10,
	"database.max_idle_conns":          5,
	"redis.addr":                       "localhost:6379",
	"redis.db":                         0,
	"kafka.brokers":                    "localhost:9092",
	"kafka.topic_runs":                 "pipeline-runs",
	"kafka.consumer_group":             "retail-dashboard-group",
	"observability.jaeger_endpoint":    "",
	"pipeline.archive_path":            "data/online+retail.zip",
	"pipeline.output_dir":              "output",
	"pipeline.report_dir":              "reports",
	"pipeline.insert_chunk_size":       1000,
	"pipeline.lock_ttl":                "30m",
	"pipeline.top_n":                   10,
	"pipeline.non_product_codes":       "S,D,BANK CHARGES,CRUK,M,AMAZONFEE",
	"dashboard.cache_ttl":              "5m",
	"dashboard.completeness_threshold": 80.0,
}

// Load reads .env, the environment and an optional config file named by
// CONFIG_FILE (default config.yaml). Environment values win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("database.url"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:       stringList(v, "kafka.brokers"),
			TopicRuns:     v.GetString("kafka.topic_runs"),
			ConsumerGroup: v.GetString("kafka.consumer_group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: v.GetString("observability.jaeger_endpoint"),
		},
		Pipeline: PipelineConfig{
			ArchivePath:     v.GetString("pipeline.archive_path"),
			OutputDir:       v.GetString("pipeline.output_dir"),
			ReportDir:       v.GetString("pipeline.report_dir"),
			InsertChunkSize: v.GetInt("pipeline.insert_chunk_size"),
			LockTTL:         v.GetDuration("pipeline.lock_ttl"),
			TopN:            v.GetInt("pipeline.top_n"),
			NonProductCodes: stringList(v, "pipeline.non_product_codes"),
		},
		Dashboard: DashboardConfig{
			CacheTTL:              v.GetDuration("dashboard.cache_ttl"),
			CompletenessThreshold: v.GetFloat64("dashboard.completeness_threshold"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Pipeline.InsertChunkSize <= 0 || c.Pipeline.InsertChunkSize > MaxInsertChunkSize {
		return fmt.Errorf("insert chunk size must be within 1..%d, got %d", MaxInsertChunkSize, c.Pipeline.InsertChunkSize)
	}
	if c.Dashboard.CompletenessThreshold < 0 || c.Dashboard.CompletenessThreshold > 100 {
		return fmt.Errorf("completeness threshold must be within 0..100, got %v", c.Dashboard.CompletenessThreshold)
	}
	return nil
}

// stringList accepts either a comma separated string (env) or a list (file)
func stringList(v *viper.Viper, key string) []string {
	var items []string
	switch raw := v.Get(key).(type) {
	case string:
		items = strings.Split(raw, ",")
	default:
		items = cast.ToStringSlice(raw)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
