package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Minio     MinioConfig     `yaml:"minio"`
	Mail      MailConfig      `yaml:"mail"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port    int    `yaml:"port" env:"PORT"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty means client addresses come from the TCP peer only.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" env:"STORAGE_BACKEND"` // local, minio
	DataDir     string `yaml:"data_dir" env:"DATA_DIR"`
	UploadDir   string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MaxUploadMB int    `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	Region    string `yaml:"region" env:"MINIO_REGION"`
}

// MailConfig describes the outbound relay used for decision notifications
type MailConfig struct {
	Host           string `yaml:"host" env:"SMTP_HOST"`
	Port           int    `yaml:"port" env:"SMTP_PORT"`
	Username       string `yaml:"username" env:"SMTP_USER"`
	Password       string `yaml:"password" env:"SMTP_PASS"`
	SSL            bool   `yaml:"ssl" env:"SMTP_SSL"`                     // implicit TLS instead of STARTTLS
	InsecureAuth   bool   `yaml:"insecure_auth" env:"SMTP_INSECURE_AUTH"` // PLAIN auth even without TLS
	From           string `yaml:"from" env:"FROM_EMAIL"`
	To             string `yaml:"to" env:"TO_EMAIL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"SMTP_TIMEOUT"`
	Mode           string `yaml:"mode" env:"EMAIL_MODE"` // off, sync, async
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json, text
}

type RateLimitConfig struct {
	Requests      int `yaml:"requests" env:"RATE_LIMIT_REQUESTS"`
	WindowSeconds int `yaml:"window_seconds" env:"RATE_LIMIT_WINDOW"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    5000,
			BaseURL: "http://127.0.0.1:5000",
		},
		Storage: StorageConfig{
			Backend:     BackendLocal,
			DataDir:     "data",
			UploadDir:   "uploads",
			MaxUploadMB: 50,
		},
		Minio: MinioConfig{
			Bucket: "proofs",
			Region: "us-east-1",
		},
		Mail: MailConfig{
			Host:           "localhost",
			Port:           587,
			From:           "proofs@localhost",
			To:             "orders@localhost",
			TimeoutSeconds: 10,
			Mode:           "async",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Requests:      60,
			WindowSeconds: 60,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional),
// a .env file in the working directory and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Mail.Mode = strings.ToLower(strings.TrimSpace(cfg.Mail.Mode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late at request time
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return errors.New("server base_url is required")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", proxy)
			}
		}
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.UploadDir == "" {
			return errors.New("storage upload_dir is required")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return errors.New("minio endpoint and bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage data_dir is required")
	}
	if c.Mail.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid mail timeout %d", c.Mail.TimeoutSeconds)
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("invalid mail port %d", c.Mail.Port)
	}
	return nil
}

// MailTimeout returns the relay timeout as a duration
func (c *MailConfig) MailTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Addr returns host:port of the relay
func (c *MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateWindow returns the rate limit window as a duration
func (c *RateLimitConfig) RateWindow() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// MaxUploadBytes returns the multipart memory/size limit for uploads
func (c *StorageConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
