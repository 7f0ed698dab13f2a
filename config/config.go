package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database     DatabaseConfig      `yaml:"database"`
	Kafka        KafkaConfig         `yaml:"kafka"`
	Redis        RedisConfig         `yaml:"redis"`
	ScanDock     ScanDockConfig      `yaml:"scandock"`
	Marketplaces []MarketplaceConfig `yaml:"marketplaces"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                       string `yaml:"host"`
	Port                       int    `yaml:"port"`
	OrdersImportedTopicName    string `yaml:"orders_imported_topic_name"`
	FeedSyncCompletedTopicName string `yaml:"feed_sync_completed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScanDockConfig struct {
	HTTPAddr              string `yaml:"http_addr"`
	KafkaConsumerGroup    string `yaml:"kafka_consumer_group"`
	LookupCacheTTLSeconds int    `yaml:"lookup_cache_ttl_seconds"`

	WorkerHTTPAddr            string   `yaml:"worker_http_addr"`
	WorkerAllowedOrigins      []string `yaml:"worker_allowed_origins"`
	WorkerSyncIntervalSeconds int      `yaml:"worker_sync_interval_seconds"`
	WorkerLookbackDays        int      `yaml:"worker_lookback_days"`
	WorkerLimitPerPage        int      `yaml:"worker_limit_per_page"`
	WorkerMaxPages            int      `yaml:"worker_max_pages"`
	WorkerRateLimitPerMinute  int      `yaml:"worker_rate_limit_per_minute"`
}

// MarketplaceConfig — один маркетплейс и аккаунты продавца на нём.
// name: "backmarket" | "refurbed" | "fake" (без внешних вызовов, для стендов).
type MarketplaceConfig struct {
	Name     string          `yaml:"name"`
	BaseURL  string          `yaml:"base_url"`
	Accounts []AccountConfig `yaml:"accounts"`
}

type AccountConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
