package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Timezone   string `mapstructure:"TIMEZONE"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		DSN            string `mapstructure:"DSN"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
		Metrics struct {
			Enable          bool   `mapstructure:"ENABLE"`
			PushAddr        string `mapstructure:"PUSH_ADDR"`
			HTTPServerPort  uint32 `mapstructure:"HTTP_SERVER_PORT"`
			RefreshInterval uint32 `mapstructure:"REFRESH_INTERVAL"`
		} `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	Tenant struct {
		AutoCode         bool          `mapstructure:"AUTO_CODE"`
		AutoCreateSchema bool          `mapstructure:"AUTO_CREATE_SCHEMA"`
		PublicSchema     string        `mapstructure:"PUBLIC_SCHEMA"`
		PublicName       string        `mapstructure:"PUBLIC_NAME"`
		PublicDomain     string        `mapstructure:"PUBLIC_DOMAIN"`
		DomainCacheTTL   time.Duration `mapstructure:"DOMAIN_CACHE_TTL"`
	} `mapstructure:"TENANT"`
	Lifecycle struct {
		SweepHour   int `mapstructure:"SWEEP_HOUR"`
		SweepMinute int `mapstructure:"SWEEP_MINUTE"`
	} `mapstructure:"LIFECYCLE"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
	} `mapstructure:"WORKER"`
	DNS struct {
		Resolvers []string      `mapstructure:"RESOLVERS"`
		Timeout   time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"DNS"`
}

// Location returns the configured business timezone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "tenancy")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("DATABASE.METRICS.HTTP_SERVER_PORT", 9100)
	v.SetDefault("DATABASE.METRICS.REFRESH_INTERVAL", 15)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("TENANT.AUTO_CREATE_SCHEMA", true)
	v.SetDefault("TENANT.PUBLIC_SCHEMA", "public")
	v.SetDefault("TENANT.PUBLIC_NAME", "Public")
	v.SetDefault("LIFECYCLE.SWEEP_HOUR", 1)
	v.SetDefault("LIFECYCLE.SWEEP_MINUTE", 0)
	v.SetDefault("TENANT.DOMAIN_CACHE_TTL", 5*time.Minute)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("DNS.RESOLVERS", []string{"1.1.1.1:53", "8.8.8.8:53"})
	v.SetDefault("DNS.TIMEOUT", 5*time.Second)
}

// LoadConfig reads config.yaml from the working directory (optional) and
// applies environment overrides, e.g. DATABASE_HOST for DATABASE.HOST.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.TLS.Enable && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return nil, fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	if cfg.Lifecycle.SweepHour < 0 || cfg.Lifecycle.SweepHour > 23 || cfg.Lifecycle.SweepMinute < 0 || cfg.Lifecycle.SweepMinute > 59 {
		return nil, fmt.Errorf("invalid lifecycle sweep time %02d:%02d", cfg.Lifecycle.SweepHour, cfg.Lifecycle.SweepMinute)
	}

	return &cfg, nil
}
