package config

import (
	"alcyxob/plan-delivery/internal/httpx"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the delivery service.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Render   RenderConfig   `mapstructure:"render"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	PublicURL    string        `mapstructure:"public_url"` // base of URLs served by this process, e.g. local files
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // "prod" or "dev"
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines bearer token configuration.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// RedisConfig configures the shared key/value store. An empty Addr selects
// the in-process store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WhatsAppConfig points at a WPPConnect server session.
type WhatsAppConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	SecretKey   string        `mapstructure:"secret_key"`
	SessionName string        `mapstructure:"session_name"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type TwilioConfig struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type SendGridConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	FromEmail  string        `mapstructure:"from_email"`
	FromName   string        `mapstructure:"from_name"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// PortalConfig is the public client portal the delivered link points to.
type PortalConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type DeliveryConfig struct {
	LeaseTTL             time.Duration `mapstructure:"lease_ttl"`
	CheckInInterval      time.Duration `mapstructure:"checkin_interval"`
	DefaultDurationWeeks int           `mapstructure:"default_duration_weeks"`
	BatchConcurrency     int           `mapstructure:"batch_concurrency"`
	IdempotencyTTL       time.Duration `mapstructure:"idempotency_ttl"`
}

type RenderConfig struct {
	URLExpiry time.Duration `mapstructure:"url_expiry"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type OTelConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Endpoint    string            `mapstructure:"endpoint"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
	Environment string            `mapstructure:"environment"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, delivery.lease_ttl -> DELIVERY_LEASE_TTL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// Env vars and defaults are enough to boot.
		err = nil
	} else if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}
	if err = config.Validate(); err != nil {
		return
	}
	return config, nil
}

// Validate checks that the timeouts fit together: every configured
// provider's worst-case send must finish inside the delivery lease, and the
// HTTP write deadline must outlast the lease.
func (c Config) Validate() error {
	lease := c.Delivery.LeaseTTL
	if lease <= 0 {
		return errors.New("delivery.lease_ttl must be positive")
	}
	type provider struct {
		name       string
		configured bool
		timeout    time.Duration
		fallback   time.Duration
		maxRetries int
	}
	providers := []provider{
		{"whatsapp", strings.TrimSpace(c.WhatsApp.APIURL) != "", c.WhatsApp.Timeout, 30 * time.Second, c.WhatsApp.MaxRetries},
		{"twilio", c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != "", c.Twilio.Timeout, 20 * time.Second, c.Twilio.MaxRetries},
		{"sendgrid", c.SendGrid.APIKey != "" && c.SendGrid.FromEmail != "", c.SendGrid.Timeout, 20 * time.Second, c.SendGrid.MaxRetries},
	}
	for _, p := range providers {
		if !p.configured {
			continue
		}
		timeout := p.timeout
		if timeout <= 0 {
			timeout = p.fallback
		}
		if budget := httpx.SendBudget(timeout, p.maxRetries); budget >= lease {
			return fmt.Errorf("delivery.lease_ttl (%s) must exceed the %s send budget (%s = timeout %s x %d attempts + backoff)",
				lease, p.name, budget, timeout, p.maxRetries+1)
		}
	}
	if w := c.Server.WriteTimeout; w > 0 && w <= lease {
		return fmt.Errorf("server.write_timeout (%s) must exceed delivery.lease_ttl (%s)", w, lease)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal even when no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "4m")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.mode", "prod")

	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "plan_delivery")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "plans")
	v.SetDefault("s3.use_ssl", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("whatsapp.api_url", "http://localhost:21465")
	v.SetDefault("whatsapp.secret_key", "")
	v.SetDefault("whatsapp.session_name", "fitcoach")
	v.SetDefault("whatsapp.timeout", "30s")
	v.SetDefault("whatsapp.max_retries", 2)

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.base_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("twilio.timeout", "30s")
	v.SetDefault("twilio.max_retries", 2)

	v.SetDefault("sendgrid.api_key", "")
	v.SetDefault("sendgrid.from_email", "")
	v.SetDefault("sendgrid.from_name", "FitCoach Pro")
	v.SetDefault("sendgrid.base_url", "https://api.sendgrid.com")
	v.SetDefault("sendgrid.timeout", "30s")
	v.SetDefault("sendgrid.max_retries", 2)

	v.SetDefault("portal.base_url", "http://localhost:3000")

	v.SetDefault("delivery.lease_ttl", "2m")
	v.SetDefault("delivery.checkin_interval", "168h")
	v.SetDefault("delivery.default_duration_weeks", 12)
	v.SetDefault("delivery.batch_concurrency", 2)
	v.SetDefault("delivery.idempotency_ttl", "24h")

	v.SetDefault("render.url_expiry", "168h")
	v.SetDefault("render.cache_ttl", "24h")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.service_name", "plan-delivery")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.sample_ratio", 0.1)
}
