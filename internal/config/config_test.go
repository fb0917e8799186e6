package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Network.MaxRetries != 10 {
		t.Errorf("Network.MaxRetries = %d, want 10", cfg.Network.MaxRetries)
	}
	if cfg.Network.Driver != DriverHost {
		t.Errorf("Network.Driver = %q, want %q", cfg.Network.Driver, DriverHost)
	}
	if !cfg.Network.HaltOnFailure {
		t.Error("Network.HaltOnFailure should be true by default")
	}

	if cfg.Pool.DeviceTag != "ESP" {
		t.Errorf("Pool.DeviceTag = %q, want %q", cfg.Pool.DeviceTag, "ESP")
	}
	if cfg.Pool.MaxRecordBytes != 512 {
		t.Errorf("Pool.MaxRecordBytes = %d, want 512", cfg.Pool.MaxRecordBytes)
	}
	if cfg.Pool.BackoffInitialMs != 500 || cfg.Pool.BackoffMaxMs != 30000 {
		t.Errorf("Pool backoff = %d..%d, want 500..30000", cfg.Pool.BackoffInitialMs, cfg.Pool.BackoffMaxMs)
	}

	if cfg.Miner.Difficulty != 7501 {
		t.Errorf("Miner.Difficulty = %d, want 7501", cfg.Miner.Difficulty)
	}
	if cfg.Miner.Evaluator != "sha1-prefix" {
		t.Errorf("Miner.Evaluator = %q, want %q", cfg.Miner.Evaluator, "sha1-prefix")
	}

	if cfg.Reporter.IntervalSeconds != 60 {
		t.Errorf("Reporter.IntervalSeconds = %d, want 60", cfg.Reporter.IntervalSeconds)
	}
	if !cfg.Storage.Enabled {
		t.Error("Storage.Enabled should be true by default")
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", ValidationErrors(errs))
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	cfg.Network.ConnectTimeoutSeconds = 45

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ConnectTimeout", cfg.Network.ConnectTimeout(), 45 * time.Second},
		{"DialTimeout", cfg.Pool.DialTimeout(), 5 * time.Second},
		{"IOTimeout", cfg.Pool.IOTimeout(), 30 * time.Second},
		{"BackoffInitial", cfg.Pool.BackoffInitial(), 500 * time.Millisecond},
		{"BackoffMax", cfg.Pool.BackoffMax(), 30 * time.Second},
		{"PulseInterval", cfg.Indicator.PulseInterval(), time.Second},
		{"ReportInterval", cfg.Reporter.Interval(), time.Minute},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestPoolConfig_Endpoint(t *testing.T) {
	tests := []struct {
		address string
		port    int
		want    string
	}{
		{"pool.example.com", 3333, "pool.example.com:3333"},
		{"10.0.0.1", 80, "10.0.0.1:80"},
		{"::1", 4000, "[::1]:4000"},
	}

	for _, tt := range tests {
		p := PoolConfig{Address: tt.address, Port: tt.port}
		if got := p.Endpoint(); got != tt.want {
			t.Errorf("Endpoint() = %q, want %q", got, tt.want)
		}
	}
}

func TestStorageConfig_ResolvePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	home, _ := os.UserHomeDir()

	tests := []struct {
		path string
		want string
	}{
		{"", "/custom/config/poolminer/poolminer.db"},
		{"/data/ledger.db", "/data/ledger.db"},
		{"~/ledger.db", filepath.Join(home, "ledger.db")},
		{"relative.db", "relative.db"},
	}

	for _, tt := range tests {
		s := StorageConfig{Path: tt.path}
		if got := s.ResolvePath(); got != tt.want {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Network.Passphrase = "hunter2"
	cfg.Network.AssociateCommand = []string{"wpa_cli", "reconnect"}

	red := cfg.Redacted()
	if red.Network.Passphrase == "hunter2" {
		t.Error("Redacted() kept the passphrase")
	}
	if cfg.Network.Passphrase != "hunter2" {
		t.Error("Redacted() modified the original")
	}
	red.Network.AssociateCommand[0] = "changed"
	if cfg.Network.AssociateCommand[0] != "wpa_cli" {
		t.Error("Redacted() shares the associate command slice")
	}

	cfg.Network.Passphrase = ""
	if cfg.Redacted().Network.Passphrase != "" {
		t.Error("empty passphrase should stay empty")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := ConfigDir(), "/custom/config/poolminer"; got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "poolminer"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigFile(), "/custom/config/poolminer/config.yaml"; got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Miner.Difficulty != 7501 {
			t.Errorf("Miner.Difficulty = %d, want 7501", cfg.Miner.Difficulty)
		}
		if len(cfg.Network.AssociateCommand) != 0 {
			t.Errorf("Network.AssociateCommand = %v, want empty", cfg.Network.AssociateCommand)
		}
	})

	t.Run("from file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `network:
  ssid: lab
  max_retries: 3
pool:
  address: pool.local
  port: 3333
  identity: rig-7
  backoff_initial_ms: 0
miner:
  difficulty: 1
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig() = %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Network.SSID != "lab" || cfg.Network.MaxRetries != 3 {
			t.Errorf("Network = %+v", cfg.Network)
		}
		if cfg.Pool.Endpoint() != "pool.local:3333" {
			t.Errorf("Endpoint() = %q", cfg.Pool.Endpoint())
		}
		if cfg.Pool.BackoffInitial() != 0 {
			t.Errorf("BackoffInitial() = %v, want 0", cfg.Pool.BackoffInitial())
		}
		if cfg.Pool.DeviceTag != "ESP" {
			t.Errorf("DeviceTag = %q, default should survive a partial file", cfg.Pool.DeviceTag)
		}
		if errs := cfg.RequirePool(); len(errs) != 0 {
			t.Errorf("RequirePool() = %v, want none", errs)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		SetDefaults()
		viper.Set("miner.evaluator", "md5")

		_, err := Load()
		if err == nil {
			t.Fatal("Load() should fail for an unknown evaluator")
		}
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("Load() error type = %T, want ValidationErrors", err)
		}
		if verrs[0].Field != "miner.evaluator" {
			t.Errorf("Field = %q, want miner.evaluator", verrs[0].Field)
		}
	})
}
