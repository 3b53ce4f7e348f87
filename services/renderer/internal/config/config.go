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

// DefaultConfigPath is used when neither the caller nor
// LETTERBOX_RENDERER_CONFIG names a file.
const DefaultConfigPath = "renderer.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	DatabaseURL       string `yaml:"databaseURL"`
	LogLevel          string `yaml:"logLevel"`
	LogDir            string `yaml:"logDir"`
	MetricsAddr       string `yaml:"metricsAddr"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	RenderStream      string `yaml:"renderStream"`
	RenderGroup       string `yaml:"renderGroup"`
	Concurrency       int    `yaml:"concurrency"`
	MaxRetries        int    `yaml:"maxRetries"`
	RetryDelaySeconds int    `yaml:"retryDelaySeconds"`
	MinioEndpoint     string `yaml:"minioEndpoint"`
	MinioAccessKey    string `yaml:"minioAccessKey"`
	MinioSecretKey    string `yaml:"minioSecretKey"`
	MinioBucket       string `yaml:"minioBucket"`
	MinioUseSSL       bool   `yaml:"minioUseSSL"`
}

func resolvePath() string {
	if v := strings.TrimSpace(os.Getenv("LETTERBOX_RENDERER_CONFIG")); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads config from path. An empty path is resolved after .env is
// applied, from LETTERBOX_RENDERER_CONFIG or DefaultConfigPath.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return cfg, fmt.Errorf("load .env: %w", err)
		}
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
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("RENDERER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
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
	if cfg.RenderStream == "" {
		cfg.RenderStream = "letterbox:render"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySeconds == 0 {
		cfg.RetryDelaySeconds = 2
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in renderer.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in renderer.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in renderer.yaml)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: minioAccessKey and minioSecretKey are required")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in renderer.yaml)")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be at least 1")
	}
	if cfg.MaxRetries < 1 {
		return errors.New("config: maxRetries must be at least 1")
	}
	return nil
}
