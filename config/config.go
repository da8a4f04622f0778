package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Room      RoomConfig      `mapstructure:"room"`
	Generator GeneratorConfig `mapstructure:"generator"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress string        `mapstructure:"http_address"`
	RPCAddress  string        `mapstructure:"rpc_address"`
	StaticPath  string        `mapstructure:"static_path"`
	Mode        string        `mapstructure:"mode"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
}

type RoomConfig struct {
	MaxPlayers        int           `mapstructure:"max_players"`
	DecisionDuration  time.Duration `mapstructure:"decision_duration"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
}

type GeneratorConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

type RateLimitConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3000")
	v.SetDefault("server.rpc_address", ":3001")
	v.SetDefault("server.static_path", "./public")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")

	v.SetDefault("room.max_players", 8)
	v.SetDefault("room.decision_duration", "60s")
	v.SetDefault("room.generation_timeout", "90s")

	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.base_url", "https://api.openai.com/v1")
	v.SetDefault("generator.model", "gpt-4")
	v.SetDefault("generator.temperature", 0.8)

	v.SetDefault("ratelimit.events_per_second", 5)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "trailparty")

	v.SetDefault("metrics.namespace", "trailparty")
}

// LoadConfig reads config.yaml from path when present. Every key can be
// overridden from the environment (server.http_address -> SERVER_HTTP_ADDRESS);
// the generator credential is also read from OPENAI_API_KEY.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("generator.api_key", "GENERATOR_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
