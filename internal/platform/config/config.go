package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Outbound OutboundConfig `mapstructure:"outbound"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	// Bcrypt hashes of accepted API keys, checked against X-API-Key.
	APIKeyHashes []string  `mapstructure:"api_key_hashes"`
	JWT          JWTConfig `mapstructure:"jwt"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type OutboundConfig struct {
	Targets        []string      `mapstructure:"targets"`
	Secret         string        `mapstructure:"secret"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

type MetricsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type WorkersConfig struct {
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("database.path", "callcrm.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("outbound.max_retries", 3)
	viper.SetDefault("outbound.base_retry_delay", time.Minute)
	viper.SetDefault("outbound.request_timeout", 30*time.Second)
	viper.SetDefault("metrics.cache_ttl", 5*time.Minute)
	viper.SetDefault("workers.retry_interval", time.Minute)
	viper.SetDefault("workers.metrics_interval", time.Hour)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
