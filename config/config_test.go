package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Dictionary.Debounce != 500*time.Millisecond {
		t.Errorf("expected default debounce 500ms, got %v", cfg.Dictionary.Debounce)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected no NATS by default")
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid pattern",
			modify:  func(c *Config) { c.Dictionary.Patterns = []string{"[yaml"} },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Dictionary.Debounce = -time.Second },
			wantErr: true,
		},
		{
			name:    "watch without models dir",
			modify:  func(c *Config) { c.Dictionary.Watch = true },
			wantErr: true,
		},
		{
			name: "watch with models dir",
			modify: func(c *Config) {
				c.Dictionary.Watch = true
				c.Dictionary.ModelsDir = "/models"
			},
			wantErr: false,
		},
		{
			name: "nats without buckets",
			modify: func(c *Config) {
				c.NATS.URL = "nats://localhost:4222"
				c.NATS.CacheBucket = ""
			},
			wantErr: true,
		},
		{
			name:    "missing addr",
			modify:  func(c *Config) { c.HTTP.Addr = "" },
			wantErr: true,
		},
		{
			name:    "prefix without trailing slash",
			modify:  func(c *Config) { c.HTTP.Prefix = "/api" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "unknown tracing exporter",
			modify:  func(c *Config) { c.Tracing.Exporter = "zipkin" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := LogConfig{Level: tt.level}.SlogLevel()
		if err != nil {
			t.Fatalf("SlogLevel(%q) error = %v", tt.level, err)
		}
		if got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
dictionary:
  models_dir: models
  patterns:
    - "**/*.model.yaml"
  watch: true
  debounce: 2s
nats:
  url: "nats://test:4222"
  model_bucket: TEST_MODELS
http:
  addr: ":9090"
tracing:
  enabled: true
  exporter: stdout
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Dictionary.ModelsDir != filepath.Join(tmpDir, "models") {
		t.Errorf("expected models dir resolved against config dir, got %s", cfg.Dictionary.ModelsDir)
	}
	if len(cfg.Dictionary.Patterns) != 1 || cfg.Dictionary.Patterns[0] != "**/*.model.yaml" {
		t.Errorf("unexpected patterns %v", cfg.Dictionary.Patterns)
	}
	if !cfg.Dictionary.Watch {
		t.Error("expected watch enabled")
	}
	if cfg.Dictionary.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Dictionary.Debounce)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.NATS.ModelBucket != "TEST_MODELS" {
		t.Errorf("expected model bucket TEST_MODELS, got %s", cfg.NATS.ModelBucket)
	}
	if cfg.NATS.CacheBucket != "SEMDICT_CACHE" {
		t.Errorf("expected default cache bucket to survive, got %s", cfg.NATS.CacheBucket)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("unexpected tracing config %+v", cfg.Tracing)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Dictionary: DictionaryConfig{
			ModelsDir: "/override/models",
			Watch:     true,
		},
		NATS: NATSConfig{
			URL: "nats://override:4222",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}

	base.Merge(override)

	if base.Dictionary.ModelsDir != "/override/models" {
		t.Errorf("expected models dir /override/models, got %s", base.Dictionary.ModelsDir)
	}
	if !base.Dictionary.Watch {
		t.Error("expected watch enabled")
	}
	// Debounce should remain from base since override didn't set it
	if base.Dictionary.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce to remain default, got %v", base.Dictionary.Debounce)
	}
	if base.NATS.URL != "nats://override:4222" {
		t.Errorf("expected NATS URL override, got %s", base.NATS.URL)
	}
	if base.NATS.CacheBucket != "SEMDICT_CACHE" {
		t.Errorf("expected cache bucket to remain default, got %s", base.NATS.CacheBucket)
	}
	if base.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %s", base.Log.Level)
	}
	if base.Log.Format != "text" {
		t.Errorf("expected log format to remain text, got %s", base.Log.Format)
	}

	base.Merge(nil)
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Dictionary.ModelsDir = "/srv/models"
	cfg.Dictionary.Debounce = 3 * time.Second

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Dictionary.ModelsDir != "/srv/models" {
		t.Errorf("expected models dir /srv/models, got %s", loaded.Dictionary.ModelsDir)
	}
	if loaded.Dictionary.Debounce != 3*time.Second {
		t.Errorf("expected debounce 3s, got %v", loaded.Dictionary.Debounce)
	}
}

func TestLoader_Layers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	workDir := filepath.Join(project, "nested", "deeper")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatal(err)
	}

	user := DefaultConfig()
	user.HTTP.Addr = ":7000"
	user.Log.Level = "debug"
	if err := user.SaveToFile(filepath.Join(home, UserConfigDir, UserConfigFile)); err != nil {
		t.Fatal(err)
	}

	projectYAML := `
dictionary:
  models_dir: models
http:
  addr: ":7100"
`
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(projectYAML), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	l.home = home
	l.workDir = workDir

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr != ":7100" {
		t.Errorf("expected project addr to win, got %s", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected user log level, got %s", cfg.Log.Level)
	}
	if cfg.Dictionary.ModelsDir != filepath.Join(project, "models") {
		t.Errorf("expected models dir next to project config, got %s", cfg.Dictionary.ModelsDir)
	}
}

func TestLoader_NoFiles(t *testing.T) {
	l := NewLoader(nil)
	l.home = t.TempDir()
	l.workDir = t.TempDir()

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected defaults, got addr %s", cfg.HTTP.Addr)
	}
}

func TestLoader_LoadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: nope\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(nil).LoadPath(path); err == nil {
		t.Error("expected validation error for bad log level")
	}
}

func TestLoader_EnsureUserConfig(t *testing.T) {
	l := NewLoader(nil)
	l.home = t.TempDir()

	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	if _, err := os.Stat(l.userConfigPath()); err != nil {
		t.Errorf("user config not created: %v", err)
	}
	// Second call leaves the file alone.
	if err := l.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() second call error = %v", err)
	}
}
