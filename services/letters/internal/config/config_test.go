package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "sqlite::memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MailboxClampHours != 8760 {
		t.Fatalf("mailboxClampHours = %d, want 8760", cfg.MailboxClampHours)
	}
	if cfg.LogLevel != "info" || cfg.RenderStream != "letterbox:render" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://letterbox@localhost:5432/letterbox")
	t.Setenv("LETTERBOX_PORT", "9090")
	t.Setenv("LETTERBOX_TRUSTED_PROXIES", "10.0.0.0/8, ,127.0.0.1")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MINIO_USE_SSL", "true")

	path := writeConfig(t, `
port: "8080"
databaseURL: "sqlite::memory:"
logLevel: "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://letterbox@localhost:5432/letterbox" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("trustedProxies = %v", cfg.TrustedProxies)
	}
	if cfg.RedisAddr != "localhost:6379" || !cfg.MinioUseSSL {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("logLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := FileConfig{Port: "8080", DatabaseURL: "sqlite::memory:"}
	if err := validateConfig(base); err != nil {
		t.Fatalf("validateConfig() unexpected error: %v", err)
	}

	cases := map[string]func(*FileConfig){
		"missing port":       func(c *FileConfig) { c.Port = "" },
		"missing database":   func(c *FileConfig) { c.DatabaseURL = "" },
		"negative clamp":     func(c *FileConfig) { c.MailboxClampHours = -1 },
		"minio without keys": func(c *FileConfig) { c.MinioEndpoint = "localhost:9000" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("validateConfig() expected error")
			}
		})
	}
}

func TestLoadResolvesPathFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "letters.yaml")
	if err := os.WriteFile(cfgPath, []byte("port: \"7070\"\ndatabaseURL: \"sqlite::memory:\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LETTERBOX_CONFIG="+cfgPath+"\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("LETTERBOX_CONFIG") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("port = %q, want 7070 from the file named in .env", cfg.Port)
	}
}
