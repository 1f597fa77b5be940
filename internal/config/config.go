// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package config loads and validates the coordinator's process-wide
// configuration. Constructed once at startup and passed by injection —
// nothing in this module mutates it afterward.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// RedisConfig describes the connection to the shared queue/cache/pubsub store.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig describes the connection to the durable DLQ store.
type PostgresConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required"`
	DBName             string `mapstructure:"db_name" validate:"required"`
	User               string `mapstructure:"auth__user" validate:"required"`
	Password           string `mapstructure:"auth__password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connection"`
	MaxIdleConnections int    `mapstructure:"max_ideal_connection"`
}

// QueueConfig is the set of recognized options from spec.md §6.5.
type QueueConfig struct {
	QueueKeyPrefix            string `mapstructure:"queue_key_prefix" validate:"required"`
	ResultsStreamKey          string `mapstructure:"results_stream_key" validate:"required"`
	MaxRetries                int    `mapstructure:"max_retries" validate:"required"`
	VisibilityTimeoutSeconds  int    `mapstructure:"visibility_timeout_s" validate:"required"`
	OverflowThresholdSeconds  int    `mapstructure:"overflow_threshold_s" validate:"required"`
	OverflowScanIntervalSecs  int    `mapstructure:"overflow_scan_interval_s" validate:"required"`
	VisibilityScanIntervalSec int    `mapstructure:"visibility_scan_interval_s" validate:"required"`
	ServerlessEndpoint        string `mapstructure:"serverless_endpoint"`
	ServerlessRequestTimeoutS int    `mapstructure:"serverless_request_timeout_s"`
	ServerlessAPIToken        string `mapstructure:"serverless_api_token"`
	ServerlessModelVersion    string `mapstructure:"serverless_model_version"`
	CacheMaxSizeBytes         int64  `mapstructure:"cache_max_size_bytes" validate:"required"`
	DLQAlertThreshold         int    `mapstructure:"dlq_alert_threshold"`
}

// AppConfig is the complete coordinator configuration.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Secret   string `mapstructure:"secret" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	RedisConfig    RedisConfig    `mapstructure:"redis" validate:"required"`
	PostgresConfig PostgresConfig `mapstructure:"postgres" validate:"required"`
	Queue          QueueConfig    `mapstructure:"queue" validate:"required"`

	JWTSigningSecret string `mapstructure:"jwt_signing_secret" validate:"required"`
	SendgridAPIKey   string `mapstructure:"sendgrid_api_key"`
	AlertFromEmail   string `mapstructure:"alert_from_email"`
	AlertToEmail     string `mapstructure:"alert_to_email"`
}

// AdapterConfig carries every vendor credential a worker process might
// need. Only the fields matching WorkerAdapter's chosen vendor are read;
// the rest sit unused, the same way the teacher's integration-api config
// carries every provider's API key in one flat struct regardless of which
// providers a given deployment actually enables.
type AdapterConfig struct {
	AzureSubscriptionKey string `mapstructure:"azure_subscription_key"`
	AzureRegion          string `mapstructure:"azure_region"`

	CartesiaAPIKey    string `mapstructure:"cartesia_api_key"`
	CartesiaModelName string `mapstructure:"cartesia_model_name"`

	DeepgramAPIKey string `mapstructure:"deepgram_api_key"`
	DeepgramModel  string `mapstructure:"deepgram_model"`

	ElevenLabsAPIKey  string `mapstructure:"elevenlabs_api_key"`
	ElevenLabsModelID string `mapstructure:"elevenlabs_model_id"`

	GoogleAPIKey            string `mapstructure:"google_api_key"`
	GoogleServiceAccountKey string `mapstructure:"google_service_account_key"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	PollyRegion          string `mapstructure:"polly_region"`
	PollyAccessKeyID     string `mapstructure:"polly_access_key_id"`
	PollySecretAccessKey string `mapstructure:"polly_secret_access_key"`

	SarvamAPIKey string `mapstructure:"sarvam_api_key"`
}

// WorkerConfig is a worker process's configuration: the store it pulls
// jobs from, logging, and the credentials for whichever single vendor
// adapter WORKER_ADAPTER selects it to run.
type WorkerConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	RedisConfig RedisConfig `mapstructure:"redis" validate:"required"`
	Queue       QueueConfig `mapstructure:"queue" validate:"required"`

	WorkerAdapter  string `mapstructure:"worker_adapter" validate:"required"`
	WorkerID       string `mapstructure:"worker_id"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms" validate:"required"`

	Adapter AdapterConfig `mapstructure:"adapter"`
}

// GetWorkerConfig unmarshals and validates a WorkerConfig from the same
// viper instance InitConfig produces.
func GetWorkerConfig(v *viper.Viper) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: worker unmarshal failed: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: worker validation failed: %w", err)
	}
	return &cfg, nil
}

// InitConfig wires viper the same way the teacher's integration-api config
// does: a `.env`-shaped config file, optional ENV_PATH override, automatic
// environment variables, and a `__` key delimiter for nested sections.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("config: reading env file at %s", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefaults(vConfig)

	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no env file found, relying on environment variables (%v)", err)
	}

	return vConfig, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "synthbridge-gateway")
	v.SetDefault("VERSION", "0.1.0")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "synthbridge")
	v.SetDefault("POSTGRES__AUTH__USER", "synthbridge")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "")
	v.SetDefault("POSTGRES__SSL_MODE", "disable")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)

	v.SetDefault("QUEUE__QUEUE_KEY_PREFIX", "queue")
	v.SetDefault("QUEUE__RESULTS_STREAM_KEY", "results:stream")
	v.SetDefault("QUEUE__MAX_RETRIES", 3)
	v.SetDefault("QUEUE__VISIBILITY_TIMEOUT_S", 30)
	v.SetDefault("QUEUE__OVERFLOW_THRESHOLD_S", 8)
	v.SetDefault("QUEUE__OVERFLOW_SCAN_INTERVAL_S", 2)
	v.SetDefault("QUEUE__VISIBILITY_SCAN_INTERVAL_S", 5)
	v.SetDefault("QUEUE__SERVERLESS_ENDPOINT", "")
	v.SetDefault("QUEUE__SERVERLESS_REQUEST_TIMEOUT_S", 60)
	v.SetDefault("QUEUE__SERVERLESS_API_TOKEN", "")
	v.SetDefault("QUEUE__SERVERLESS_MODEL_VERSION", "")
	v.SetDefault("QUEUE__CACHE_MAX_SIZE_BYTES", int64(2)<<30) // 2 GiB
	v.SetDefault("QUEUE__DLQ_ALERT_THRESHOLD", 50)

	v.SetDefault("JWT_SIGNING_SECRET", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("ALERT_FROM_EMAIL", "")
	v.SetDefault("ALERT_TO_EMAIL", "")
	v.SetDefault("SECRET", "")

	v.SetDefault("WORKER_ADAPTER", "cartesia")
	v.SetDefault("WORKER_ID", "")
	v.SetDefault("POLL_INTERVAL_MS", 250)

	v.SetDefault("ADAPTER__AZURE_SUBSCRIPTION_KEY", "")
	v.SetDefault("ADAPTER__AZURE_REGION", "")
	v.SetDefault("ADAPTER__CARTESIA_API_KEY", "")
	v.SetDefault("ADAPTER__CARTESIA_MODEL_NAME", "sonic-2")
	v.SetDefault("ADAPTER__DEEPGRAM_API_KEY", "")
	v.SetDefault("ADAPTER__DEEPGRAM_MODEL", "aura-asteria-en")
	v.SetDefault("ADAPTER__ELEVENLABS_API_KEY", "")
	v.SetDefault("ADAPTER__ELEVENLABS_MODEL_ID", "eleven_multilingual_v2")
	v.SetDefault("ADAPTER__GOOGLE_API_KEY", "")
	v.SetDefault("ADAPTER__GOOGLE_SERVICE_ACCOUNT_KEY", "")
	v.SetDefault("ADAPTER__OPENAI_API_KEY", "")
	v.SetDefault("ADAPTER__OPENAI_MODEL", "tts-1")
	v.SetDefault("ADAPTER__POLLY_REGION", "us-east-1")
	v.SetDefault("ADAPTER__POLLY_ACCESS_KEY_ID", "")
	v.SetDefault("ADAPTER__POLLY_SECRET_ACCESS_KEY", "")
	v.SetDefault("ADAPTER__SARVAM_API_KEY", "")
}

// GetApplicationConfig unmarshals and validates the final AppConfig.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// OverflowEnabled reports whether the overflow scanner has a serverless
// fallback configured. Per spec §4.7: "When the serverless endpoint is not
// configured, the scanner is disabled."
func (c *AppConfig) OverflowEnabled() bool {
	return c.Queue.ServerlessEndpoint != ""
}
