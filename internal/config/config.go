package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Token    TokenConfig
	Email    EmailConfig
	Sweep    SweepConfig
	Log      LogConfig
}

type AppConfig struct {
	Name            string
	Env             string
	Port            string
	CORSOrigins     []string
	FrontendBaseURL string // confirmation links point here
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LedgerConfig holds anchoring gateway settings.
type LedgerConfig struct {
	Endpoint       string
	APIKey         string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	PollAttempts   int
}

// TokenConfig holds the deferred-confirmation token settings.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type EmailConfig struct {
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	FromName   string
	AdminEmail string
}

// SweepConfig holds reconciliation sweep settings.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Workers  int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Load reads configuration from config.toml and environment variables
// with the INVOICE_ prefix (e.g. INVOICE_DATABASE_PASSWORD).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:            v.GetString("app.name"),
			Env:             v.GetString("app.env"),
			Port:            v.GetString("app.port"),
			CORSOrigins:     v.GetStringSlice("app.cors_origins"),
			FrontendBaseURL: v.GetString("app.frontend_base_url"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Ledger: LedgerConfig{
			Endpoint:       v.GetString("ledger.endpoint"),
			APIKey:         v.GetString("ledger.api_key"),
			RequestTimeout: v.GetDuration("ledger.request_timeout"),
			PollInterval:   v.GetDuration("ledger.poll_interval"),
			PollAttempts:   v.GetInt("ledger.poll_attempts"),
		},
		Token: TokenConfig{
			Secret: v.GetString("token.secret"),
			Issuer: v.GetString("token.issuer"),
			TTL:    v.GetDuration("token.ttl"),
		},
		Email: EmailConfig{
			SMTPHost:   v.GetString("email.smtp_host"),
			SMTPPort:   v.GetInt("email.smtp_port"),
			SMTPUser:   v.GetString("email.smtp_user"),
			SMTPPass:   v.GetString("email.smtp_pass"),
			FromEmail:  v.GetString("email.from_email"),
			FromName:   v.GetString("email.from_name"),
			AdminEmail: v.GetString("email.admin_email"),
		},
		Sweep: SweepConfig{
			Enabled:  v.GetBool("sweep.enabled"),
			Interval: v.GetDuration("sweep.interval"),
			Workers:  v.GetInt("sweep.workers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoice-integrity-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.FrontendBaseURL == "" {
		cfg.App.FrontendBaseURL = "http://localhost:5175/confirm-invoice"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invoices"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Ledger.RequestTimeout == 0 {
		cfg.Ledger.RequestTimeout = 10 * time.Second
	}
	if cfg.Ledger.PollInterval == 0 {
		cfg.Ledger.PollInterval = 500 * time.Millisecond
	}
	if cfg.Ledger.PollAttempts == 0 {
		cfg.Ledger.PollAttempts = 20
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = cfg.App.Name
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = 30 * time.Minute
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Invoice Service"
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = 5 * time.Minute
	}
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func (c *Config) validate() error {
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("sweep.workers must be positive")
	}
	if c.Ledger.PollAttempts < 1 {
		return fmt.Errorf("ledger.poll_attempts must be positive")
	}
	if c.App.Env == "production" {
		if c.Token.Secret == "" {
			return fmt.Errorf("token.secret is required in production")
		}
		if len(c.Token.Secret) < 32 {
			return fmt.Errorf("token.secret must be at least 32 characters in production")
		}
		if c.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger.endpoint is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
	}
	return nil
}

// DSN returns the database connection string with escaped values.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
