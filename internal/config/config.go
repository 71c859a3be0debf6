// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	TrustProxy      bool          `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AppName         string        `env:"APP_NAME" envDefault:"Pitchfork"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"service-auth"`
	SnowflakeNode   int64         `env:"SNOWFLAKE_NODE" envDefault:"1"`

	Database Database
	JWT      JWT
	Password Password
	Google   Google
	Notify   Notify
	Redis    Redis
	Limits   Limits
	Tracing  Tracing
	Log      Log
	Janitor  Janitor
}

type Database struct {
	URL            string `env:"DATABASE_URL"`
	TimeZone       string `env:"DATABASE_TIMEZONE" envDefault:"UTC"`
	ClientEncoding string `env:"DATABASE_CLIENT_ENCODING" envDefault:"UTF8"`
	MaxConns       int    `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`
}

type JWT struct {
	Issuer        string `env:"JWT_ISSUER" envDefault:"service-auth"`
	KeyID         string `env:"JWT_KEY_ID"`
	AccessSecret  string `env:"JWT_ACCESS_SECRET"`
	RefreshSecret string `env:"JWT_REFRESH_SECRET"`
}

type Password struct {
	BcryptCost int `env:"PASSWORD_BCRYPT_COST" envDefault:"10"`
}

type Google struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	TokenInfoURL string `env:"GOOGLE_TOKENINFO_URL"`
}

type Notify struct {
	// Driver is "log" or "smtp".
	Driver       string        `env:"NOTIFY_DRIVER" envDefault:"log"`
	Verbose      bool          `env:"NOTIFY_LOG_VERBOSE" envDefault:"false"`
	Timeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPFrom     string        `env:"SMTP_FROM"`
	SMTPStartTLS bool          `env:"SMTP_STARTTLS" envDefault:"true"`
	SMSURL       string        `env:"SMS_GATEWAY_URL"`
	SMSToken     string        `env:"SMS_GATEWAY_TOKEN"`
	SMSSender    string        `env:"SMS_SENDER"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Limits struct {
	// PerMinute is the request budget per client IP on the public
	// credential endpoints.
	PerMinute int `env:"RATE_LIMIT_RPM" envDefault:"30"`
	Burst     int `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

type Tracing struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Dev   bool   `env:"LOG_DEV" envDefault:"false"`
	File  string `env:"LOG_FILE"`
}

type Janitor struct {
	Interval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"1h"`
	Retention time.Duration `env:"JANITOR_RETENTION" envDefault:"24h"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required"))
	} else if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	switch c.Notify.Driver {
	case "log":
	case "smtp":
		if c.Notify.SMTPHost == "" || c.Notify.SMTPFrom == "" {
			errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required with NOTIFY_DRIVER=smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_DRIVER %q", c.Notify.Driver))
	}
	if c.Janitor.Interval <= 0 {
		errs = append(errs, errors.New("JANITOR_INTERVAL must be positive"))
	}
	if c.Janitor.Retention < 0 {
		errs = append(errs, errors.New("JANITOR_RETENTION must not be negative"))
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		errs = append(errs, errors.New("SNOWFLAKE_NODE must be between 0 and 1023"))
	}
	return errors.Join(errs...)
}
