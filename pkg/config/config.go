package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the client and the exchange simulator
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Output  OutputConfig  `mapstructure:"output"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // e.g., "local", "prod"
}

// FeedConfig describes how to reach the ABX exchange.
type FeedConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	RecoveryWorkers int           `mapstructure:"recovery_workers"`
	MaxGapSpan      int64         `mapstructure:"max_gap_span"`
}

type OutputConfig struct {
	Path  string `mapstructure:"path"`
	Kafka bool   `mapstructure:"kafka"`
	Redis bool   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // "json" or "console"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type MetricsConfig struct {
	Textfile   string `mapstructure:"textfile"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ServerConfig drives the exchange simulator.
type ServerConfig struct {
	ListenAddr  string  `mapstructure:"listen_addr"`
	Packets     int     `mapstructure:"packets"`
	Withhold    []int32 `mapstructure:"withhold"`
	Unavailable []int32 `mapstructure:"unavailable"`
	Seed        int64   `mapstructure:"seed"`
}

// Addr returns the host:port of the exchange.
func (f FeedConfig) Addr() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
// Flags, when given, take precedence over everything else.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.env")
	bindEnv(v, "feed.host", "feed.port", "feed.dial_timeout", "feed.read_timeout", "feed.recovery_workers", "feed.max_gap_span")
	bindEnv(v, "output.path", "output.kafka", "output.redis")
	bindEnv(v, "redis.addr", "redis.password", "redis.db", "redis.ttl")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.partitions")
	bindEnv(v, "logger.level", "logger.encoding", "logger.file", "logger.max_size_mb", "logger.max_backups", "logger.max_age_days")
	bindEnv(v, "metrics.textfile", "metrics.listen_addr")
	bindEnv(v, "server.listen_addr", "server.packets", "server.seed")

	if flags != nil {
		if path, err := flags.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("unable to read config file %s: %w", path, err)
			}
		}
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	v.SetDefault("app.env", "local")

	v.SetDefault("feed.host", host)
	v.SetDefault("feed.port", 3000)
	v.SetDefault("feed.dial_timeout", 5*time.Second)
	v.SetDefault("feed.read_timeout", 10*time.Second)
	v.SetDefault("feed.recovery_workers", 1)
	v.SetDefault("feed.max_gap_span", 1<<16)

	v.SetDefault("output.path", "abx_output.json")
	v.SetDefault("output.kafka", false)
	v.SetDefault("output.redis", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "abx_packets")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("server.listen_addr", ":3000")
	v.SetDefault("server.packets", 14)
	v.SetDefault("server.seed", 1)
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.Feed.Host == "" {
		return fmt.Errorf("feed host cannot be empty")
	}
	if c.Feed.Port <= 0 || c.Feed.Port > 65535 {
		return fmt.Errorf("feed port %d out of range", c.Feed.Port)
	}
	if c.Feed.DialTimeout <= 0 || c.Feed.ReadTimeout <= 0 {
		return fmt.Errorf("feed timeouts must be positive")
	}
	if c.Feed.RecoveryWorkers < 1 {
		return fmt.Errorf("recovery workers must be at least 1, got %d", c.Feed.RecoveryWorkers)
	}
	if c.Feed.MaxGapSpan < 1 {
		return fmt.Errorf("max gap span must be positive")
	}
	if c.Output.Kafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"host":      "feed.host",
	"port":      "feed.port",
	"workers":   "feed.recovery_workers",
	"output":    "output.path",
	"log-level": "logger.level",
	"listen":    "server.listen_addr",
	"packets":   "server.packets",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			log.Printf("Could not bind flag %s: %v", name, err)
		}
	}
}
