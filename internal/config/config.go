package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	App struct {
		Name string `yaml:"name" validate:"required"`
		Env  string `yaml:"env" validate:"oneof=dev prod test"`
	} `yaml:"app"`

	Logging struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"oneof=console json"`
	} `yaml:"logging"`

	HTTP struct {
		Addr                string   `yaml:"addr" validate:"required"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds" validate:"gte=0"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds" validate:"gte=0"`
		CORSOrigins         []string `yaml:"cors_origins"`
		RateLimit           struct {
			RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
			Burst             int     `yaml:"burst" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"http"`

	Database struct {
		Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
		Path   string `yaml:"path" validate:"required_if=Driver sqlite"`
		DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db" validate:"gte=0"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds" validate:"gte=0"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string   `yaml:"jwt_secret" validate:"required,min=16"`
		TokenTTLMinutes int      `yaml:"token_ttl_minutes" validate:"gt=0"`
		AdminEmails     []string `yaml:"admin_emails" validate:"dive,email"`
	} `yaml:"auth"`

	Backup BackupConfig `yaml:"backup"`

	Export struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours" validate:"gte=0"`
		Dir           string `yaml:"dir"`
		S3            struct {
			Bucket string `yaml:"bucket"`
			Region string `yaml:"region"`
			Prefix string `yaml:"prefix"`
		} `yaml:"s3"`
	} `yaml:"export"`

	Broker struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"broker"`

	Tracing struct {
		Endpoint    string `yaml:"endpoint"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"tracing"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port" validate:"gte=0,lte=65535"`
		GRPCHealthPort    int  `yaml:"grpc_health_port" validate:"gte=0,lte=65535"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
	} `yaml:"monitoring"`

	Consistency struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"gte=0"`
	} `yaml:"consistency"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours" validate:"gte=0"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

// Interval returns the time between backups.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

// envOverrides are applied on top of the YAML file when set.
type envOverrides struct {
	Env          string   `envconfig:"ENV"`
	HTTPAddr     string   `envconfig:"HTTP_ADDR"`
	DBDriver     string   `envconfig:"DB_DRIVER"`
	DBPath       string   `envconfig:"DB_PATH"`
	DBDSN        string   `envconfig:"DB_DSN"`
	RedisAddr    string   `envconfig:"REDIS_ADDR"`
	JWTSecret    string   `envconfig:"JWT_SECRET"`
	AdminEmails  []string `envconfig:"ADMIN_EMAILS"`
	BrokerURL    string   `envconfig:"BROKER_URL"`
	OTLPEndpoint string   `envconfig:"OTLP_ENDPOINT"`
	LogLevel     string   `envconfig:"LOG_LEVEL"`
}

// EnvPrefix prefixes every environment override, e.g. AUDITORIUM_JWT_SECRET.
const EnvPrefix = "AUDITORIUM"

// Load reads the YAML config at path, expands ${ENV} placeholders, applies
// AUDITORIUM_* overrides, fills defaults and validates the result.
// A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.apply(env)
	cfg.setDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) apply(env envOverrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.App.Env, env.Env)
	set(&c.HTTP.Addr, env.HTTPAddr)
	set(&c.Database.Driver, env.DBDriver)
	set(&c.Database.Path, env.DBPath)
	set(&c.Database.DSN, env.DBDSN)
	set(&c.Redis.Address, env.RedisAddr)
	set(&c.Auth.JWTSecret, env.JWTSecret)
	set(&c.Broker.URL, env.BrokerURL)
	set(&c.Tracing.Endpoint, env.OTLPEndpoint)
	set(&c.Logging.Level, env.LogLevel)
	if len(env.AdminEmails) > 0 {
		c.Auth.AdminEmails = env.AdminEmails
	}
}

func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "auditorium"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
		if c.App.Env == "prod" {
			c.Logging.Format = "json"
		}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeoutSeconds == 0 {
		c.HTTP.ReadTimeoutSeconds = 10
	}
	if c.HTTP.WriteTimeoutSeconds == 0 {
		c.HTTP.WriteTimeoutSeconds = 30
	}
	if c.HTTP.RateLimit.RequestsPerSecond == 0 {
		c.HTTP.RateLimit.RequestsPerSecond = 5
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/auditorium.db"
	}
	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 24 * 60
	}
	for i, e := range c.Auth.AdminEmails {
		c.Auth.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Export.IntervalHours == 0 {
		c.Export.IntervalHours = 24
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "auditorium.bookings"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Consistency.IntervalMinutes == 0 {
		c.Consistency.IntervalMinutes = 15
	}
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) ExportInterval() time.Duration {
	return time.Duration(c.Export.IntervalHours) * time.Hour
}

func (c *Config) ConsistencyInterval() time.Duration {
	return time.Duration(c.Consistency.IntervalMinutes) * time.Minute
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}
