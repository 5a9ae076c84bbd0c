// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	JWT        JWTConfig        `koanf:"jwt"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	CORS       CORSConfig       `koanf:"cors"`
	Log        LogConfig        `koanf:"log"`
	Otel       OtelConfig       `koanf:"otel"`
	Tickets    TicketsConfig    `koanf:"tickets"`
	Membership MembershipConfig `koanf:"membership"`
	Credential CredentialConfig `koanf:"credential"`
	Outbox     OutboxConfig     `koanf:"outbox"`
	Report     ReportConfig     `koanf:"report"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
}

// DatabaseConfig selects between PostgreSQL (driver "pgx") and an embedded
// single-node sqlite file (driver "sqlite3").
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// JWTConfig configures the ES256 keys used for API client tokens.
type JWTConfig struct {
	PrivateKeyPath    string        `koanf:"private_key_path"`
	PublicKeyPath     string        `koanf:"public_key_path"`
	ClientTokenExpire time.Duration `koanf:"client_token_expire"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests     int           `koanf:"requests"`
	Window       time.Duration `koanf:"window"`
	Burst        int           `koanf:"burst"`
	ScanRequests int           `koanf:"scan_requests"`
	ScanBurst    int           `koanf:"scan_burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// TicketsConfig holds the ticket class table. A class without its own
// secret derives one from MasterSecret.
type TicketsConfig struct {
	MasterSecret string              `koanf:"master_secret"`
	IssueClass   string              `koanf:"issue_class"`
	Classes      []TicketClassConfig `koanf:"classes"`
}

type TicketClassConfig struct {
	Name   string `koanf:"name"`
	Secret string `koanf:"secret"`
}

type MembershipConfig struct {
	Provider string        `koanf:"provider"`
	BotToken string        `koanf:"bot_token"`
	BotName  string        `koanf:"bot_name"`
	Channel  string        `koanf:"channel"`
	APIBase  string        `koanf:"api_base"`
	Timeout  time.Duration `koanf:"timeout"`
	Members  []string      `koanf:"members"`
}

type CredentialConfig struct {
	QRSize        int    `koanf:"qr_size"`
	TemplatePath  string `koanf:"template_path"`
	FontPath      string `koanf:"font_path"`
	FontSize      int    `koanf:"font_size"`
	CanvasWidth   int    `koanf:"canvas_width"`
	CanvasHeight  int    `koanf:"canvas_height"`
	BoxX          int    `koanf:"box_x"`
	BoxY          int    `koanf:"box_y"`
	BoxWidth      int    `koanf:"box_width"`
	BoxHeight     int    `koanf:"box_height"`
	TextBaseline  int    `koanf:"text_baseline"`
	MaxImageBytes int64  `koanf:"max_image_bytes"`
}

type OutboxConfig struct {
	Enabled bool   `koanf:"enabled"`
	Stream  string `koanf:"stream"`
	MaxLen  int64  `koanf:"max_len"`
}

type ReportConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath, validate)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

// LoadTooling reads configuration for operator commands, which only need
// the database and the ticket class table.
func LoadTooling(configPath string) (*Config, error) {
	return load(configPath, validateTooling)
}

// LoadSigning reads configuration for minting client tokens offline.
func LoadSigning(configPath string) (*Config, error) {
	return load(configPath, validateSigning)
}

func load(configPath string, check func(*Config) error) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := check(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "gatepass",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             1612,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",
		"server.max_body_bytes":   12 << 20,

		"database.driver":             "pgx",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.client_token_expire": "8760h",
		"jwt.issuer":              "gatepass",
		"jwt.audience":            "gatepass-api",
		"jwt.private_key_path":    "keys/private.pem",
		"jwt.public_key_path":     "keys/public.pem",

		"rate_limit.requests":      600,
		"rate_limit.window":        "1m",
		"rate_limit.burst":         100,
		"rate_limit.scan_requests": 120,
		"rate_limit.scan_burst":    30,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{"GET", "POST", "OPTIONS"},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": false,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "gatepass",

		"tickets.issue_class": "free",
		"tickets.classes": []map[string]any{
			{"name": "free"},
		},

		"membership.provider": "telegram",
		"membership.api_base": "https://api.telegram.org",
		"membership.timeout":  "5s",

		"credential.qr_size":         512,
		"credential.font_size":       42,
		"credential.canvas_width":    1080,
		"credential.canvas_height":   1350,
		"credential.box_x":           290,
		"credential.box_y":           420,
		"credential.box_width":       500,
		"credential.box_height":      500,
		"credential.text_baseline":   1010,
		"credential.max_image_bytes": 10 << 20,

		"outbox.enabled": false,
		"outbox.stream":  "gatepass:deliveries",
		"outbox.max_len": 100000,

		"report.enabled":  true,
		"report.schedule": "@every 1m",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_DRIVER":             "database.driver",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_CLIENT_TOKEN_EXPIRE":     "jwt.client_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"TICKET_MASTER_SECRET":        "tickets.master_secret",
	"TICKET_ISSUE_CLASS":          "tickets.issue_class",
	"MEMBERSHIP_PROVIDER":         "membership.provider",
	"TELEGRAM_TOKEN":              "membership.bot_token",
	"CHANNEL_NAME":                "membership.channel",
	"TELEGRAM_BOT_NAME":           "membership.bot_name",
	"MEMBERSHIP_TIMEOUT":          "membership.timeout",
	"CREDENTIAL_TEMPLATE_PATH":    "credential.template_path",
	"CREDENTIAL_FONT_PATH":        "credential.font_path",
	"OUTBOX_ENABLED":              "outbox.enabled",
	"OUTBOX_STREAM":               "outbox.stream",
	"REPORT_SCHEDULE":             "report.schedule",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validateTooling(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return fmt.Errorf(
			"database.driver must be %q or %q",
			DriverPostgres,
			DriverSQLite,
		)
	}

	return validateTickets(c.Tickets)
}

func validateSigning(c *Config) error {
	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("jwt.issuer and jwt.audience are required")
	}
	return nil
}

func validate(c *Config) error {
	if err := validateTooling(c); err != nil {
		return err
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}

	switch c.Membership.Provider {
	case MembershipTelegram:
		if c.Membership.BotToken == "" || c.Membership.Channel == "" {
			return fmt.Errorf(
				"TELEGRAM_TOKEN and CHANNEL_NAME are required for the telegram membership provider",
			)
		}
	case MembershipStatic:
	default:
		return fmt.Errorf(
			"membership.provider must be %q or %q",
			MembershipTelegram,
			MembershipStatic,
		)
	}

	if c.Membership.Timeout <= 0 {
		return fmt.Errorf("membership.timeout must be positive")
	}

	if c.Credential.QRSize < 64 {
		return fmt.Errorf("credential.qr_size must be at least 64")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateTickets(t TicketsConfig) error {
	if len(t.Classes) == 0 {
		return fmt.Errorf("tickets.classes must list at least one class")
	}

	seen := make(map[string]struct{}, len(t.Classes))
	issuable := false
	for _, class := range t.Classes {
		if class.Name == "" {
			return fmt.Errorf("tickets.classes: class name is required")
		}
		if _, dup := seen[class.Name]; dup {
			return fmt.Errorf("tickets.classes: duplicate class %q", class.Name)
		}
		seen[class.Name] = struct{}{}

		if class.Secret == "" && t.MasterSecret == "" {
			return fmt.Errorf(
				"tickets.classes: class %q has no secret and TICKET_MASTER_SECRET is empty",
				class.Name,
			)
		}
		if class.Name == t.IssueClass {
			issuable = true
		}
	}

	if !issuable {
		return fmt.Errorf(
			"tickets.issue_class %q is not a configured class",
			t.IssueClass,
		)
	}

	return nil
}

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"

	MembershipTelegram = "telegram"
	MembershipStatic   = "static"
)

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
