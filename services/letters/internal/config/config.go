package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when neither the caller nor LETTERBOX_CONFIG
	// names a file.
	DefaultConfigPath        = "config.yaml"
	defaultMailboxClampHours = 8760
	defaultMaxBodyBytes      = 4 << 20
	defaultRenderStream      = "letterbox:render"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	DatabaseURL       string   `yaml:"databaseURL"`
	LogLevel          string   `yaml:"logLevel"`
	LogDir            string   `yaml:"logDir"`
	TrustedProxies    []string `yaml:"trustedProxies"`
	MailboxClampHours int      `yaml:"mailboxClampHours"`
	MaxBodyBytes      int64    `yaml:"maxBodyBytes"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	RenderStream      string   `yaml:"renderStream"`
	MinioEndpoint     string   `yaml:"minioEndpoint"`
	MinioAccessKey    string   `yaml:"minioAccessKey"`
	MinioSecretKey    string   `yaml:"minioSecretKey"`
	MinioBucket       string   `yaml:"minioBucket"`
	MinioUseSSL       bool     `yaml:"minioUseSSL"`
}

// Load reads config from path. A .env file in the working directory is
// applied to the environment first when present, so an empty path resolves
// LETTERBOX_CONFIG after it and falls back to DefaultConfigPath.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}
	if path == "" {
		path = resolvePath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func resolvePath() string {
	if v := strings.TrimSpace(os.Getenv("LETTERBOX_CONFIG")); v != "" {
		return v
	}
	return DefaultConfigPath
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("LETTERBOX_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LETTERBOX_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("LETTERBOX_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("LETTERBOX_MAILBOX_CLAMP_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MailboxClampHours = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MailboxClampHours == 0 {
		cfg.MailboxClampHours = defaultMailboxClampHours
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RenderStream == "" {
		cfg.RenderStream = defaultRenderStream
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or LETTERBOX_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MailboxClampHours < 0 {
		return errors.New("config: mailboxClampHours must be positive")
	}
	if cfg.MaxBodyBytes < 0 {
		return errors.New("config: maxBodyBytes must be positive")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required when minioEndpoint is set")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required when minioEndpoint is set")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when minioEndpoint is set")
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
