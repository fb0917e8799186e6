package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete poolminer configuration
type Config struct {
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Miner     MinerConfig     `mapstructure:"miner" yaml:"miner"`
	Indicator IndicatorConfig `mapstructure:"indicator" yaml:"indicator"`
	Reporter  ReporterConfig  `mapstructure:"reporter" yaml:"reporter"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// NetworkConfig controls wireless link establishment
type NetworkConfig struct {
	SSID       string `mapstructure:"ssid" yaml:"ssid"`
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
	// MaxRetries is how many disconnect notifications are answered with a new
	// association attempt before the link is declared failed (default: 10)
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// Driver selects the radio backend: "host" or "watch" (default: "host")
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Interface restricts the host driver to one network interface ("" = any)
	Interface string `mapstructure:"interface" yaml:"interface"`
	// StatusFile is the file the watch driver observes for link notifications
	StatusFile string `mapstructure:"status_file" yaml:"status_file"`
	// AssociateCommand is run by the watch driver on every association request.
	// POOLMINER_SSID and POOLMINER_PASSPHRASE are set in its environment.
	AssociateCommand []string `mapstructure:"associate_command" yaml:"associate_command"`
	// ConnectTimeoutSeconds bounds the whole link negotiation (0 = unbounded)
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	// HaltOnFailure stops the boot sequence when the link fails (default: true)
	HaltOnFailure bool `mapstructure:"halt_on_failure" yaml:"halt_on_failure"`
}

// PoolConfig controls the work-distribution server session
type PoolConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
	// Identity is the client identity string sent with every request
	Identity string `mapstructure:"identity" yaml:"identity"`
	// DeviceTag is the device-type tag sent with job requests (default: "ESP")
	DeviceTag        string `mapstructure:"device_tag" yaml:"device_tag"`
	DialTimeoutMs    int    `mapstructure:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	IOTimeoutMs      int    `mapstructure:"io_timeout_ms" yaml:"io_timeout_ms"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms"`
	// MaxRecordBytes bounds every line read from the pool, newline included
	MaxRecordBytes int `mapstructure:"max_record_bytes" yaml:"max_record_bytes"`
}

// MinerConfig controls the nonce search
type MinerConfig struct {
	// Difficulty sets the search range to [0, Difficulty*100) (default: 7501)
	Difficulty int `mapstructure:"difficulty" yaml:"difficulty"`
	// Evaluator names the proof evaluator (default: "sha1-prefix")
	Evaluator string `mapstructure:"evaluator" yaml:"evaluator"`
	// MaxSeedLength sizes the candidate scratch buffer (default: 128)
	MaxSeedLength int `mapstructure:"max_seed_length" yaml:"max_seed_length"`
}

// IndicatorConfig controls the status indicator
type IndicatorConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// PulseMs is the on and off duration of one pulse (default: 1000)
	PulseMs int `mapstructure:"pulse_ms" yaml:"pulse_ms"`
	// Path is a brightness file (e.g. /sys/class/leds/<name>/brightness)
	// written "1" and "0". Empty logs transitions instead.
	Path string `mapstructure:"path" yaml:"path"`
}

// ReporterConfig controls the periodic share report
type ReporterConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// StorageConfig controls the boot record and share ledger
type StorageConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path is the ledger database file. Empty means <config dir>/poolminer.db.
	// Supports ~ for home directory expansion.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			MaxRetries:       10,
			Driver:           DriverHost,
			AssociateCommand: []string{},
			HaltOnFailure:    true,
		},
		Pool: PoolConfig{
			DeviceTag:        "ESP",
			DialTimeoutMs:    5000,
			IOTimeoutMs:      30000,
			BackoffInitialMs: 500,
			BackoffMaxMs:     30000,
			MaxRecordBytes:   512,
		},
		Miner: MinerConfig{
			Difficulty:    7501,
			Evaluator:     "sha1-prefix",
			MaxSeedLength: 128,
		},
		Indicator: IndicatorConfig{
			Enabled: true,
			PulseMs: 1000,
		},
		Reporter: ReporterConfig{
			IntervalSeconds: 60,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Radio driver names
const (
	DriverHost  = "host"
	DriverWatch = "watch"
)

// ConnectTimeout returns the link negotiation bound (0 means unbounded)
func (n *NetworkConfig) ConnectTimeout() time.Duration {
	return time.Duration(n.ConnectTimeoutSeconds) * time.Second
}

// Endpoint returns the host:port dial string for the pool
func (p *PoolConfig) Endpoint() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// DialTimeout returns the pool connect timeout
func (p *PoolConfig) DialTimeout() time.Duration {
	return time.Duration(p.DialTimeoutMs) * time.Millisecond
}

// IOTimeout returns the per-operation read/write deadline (0 means none)
func (p *PoolConfig) IOTimeout() time.Duration {
	return time.Duration(p.IOTimeoutMs) * time.Millisecond
}

// BackoffInitial returns the first reconnect delay (0 means immediate)
func (p *PoolConfig) BackoffInitial() time.Duration {
	return time.Duration(p.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the reconnect delay cap
func (p *PoolConfig) BackoffMax() time.Duration {
	return time.Duration(p.BackoffMaxMs) * time.Millisecond
}

// PulseInterval returns the indicator pulse half-period
func (i *IndicatorConfig) PulseInterval() time.Duration {
	return time.Duration(i.PulseMs) * time.Millisecond
}

// Interval returns the share report period
func (r *ReporterConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// ResolvePath returns the ledger path.
// If Path is empty, it returns poolminer.db inside ConfigDir.
// If Path starts with ~, it expands to the user's home directory.
func (s *StorageConfig) ResolvePath() string {
	if s.Path == "" {
		return filepath.Join(ConfigDir(), "poolminer.db")
	}
	return expandHome(s.Path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Redacted returns a copy with secrets masked, suitable for display
func (c *Config) Redacted() *Config {
	out := *c
	out.Network.AssociateCommand = append([]string(nil), c.Network.AssociateCommand...)
	if out.Network.Passphrase != "" {
		out.Network.Passphrase = "********"
	}
	return &out
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Network defaults
	viper.SetDefault("network.ssid", defaults.Network.SSID)
	viper.SetDefault("network.passphrase", defaults.Network.Passphrase)
	viper.SetDefault("network.max_retries", defaults.Network.MaxRetries)
	viper.SetDefault("network.driver", defaults.Network.Driver)
	viper.SetDefault("network.interface", defaults.Network.Interface)
	viper.SetDefault("network.status_file", defaults.Network.StatusFile)
	viper.SetDefault("network.associate_command", defaults.Network.AssociateCommand)
	viper.SetDefault("network.connect_timeout_seconds", defaults.Network.ConnectTimeoutSeconds)
	viper.SetDefault("network.halt_on_failure", defaults.Network.HaltOnFailure)

	// Pool defaults
	viper.SetDefault("pool.address", defaults.Pool.Address)
	viper.SetDefault("pool.port", defaults.Pool.Port)
	viper.SetDefault("pool.identity", defaults.Pool.Identity)
	viper.SetDefault("pool.device_tag", defaults.Pool.DeviceTag)
	viper.SetDefault("pool.dial_timeout_ms", defaults.Pool.DialTimeoutMs)
	viper.SetDefault("pool.io_timeout_ms", defaults.Pool.IOTimeoutMs)
	viper.SetDefault("pool.backoff_initial_ms", defaults.Pool.BackoffInitialMs)
	viper.SetDefault("pool.backoff_max_ms", defaults.Pool.BackoffMaxMs)
	viper.SetDefault("pool.max_record_bytes", defaults.Pool.MaxRecordBytes)

	// Miner defaults
	viper.SetDefault("miner.difficulty", defaults.Miner.Difficulty)
	viper.SetDefault("miner.evaluator", defaults.Miner.Evaluator)
	viper.SetDefault("miner.max_seed_length", defaults.Miner.MaxSeedLength)

	// Indicator defaults
	viper.SetDefault("indicator.enabled", defaults.Indicator.Enabled)
	viper.SetDefault("indicator.pulse_ms", defaults.Indicator.PulseMs)
	viper.SetDefault("indicator.path", defaults.Indicator.Path)

	// Reporter defaults
	viper.SetDefault("reporter.interval_seconds", defaults.Reporter.IntervalSeconds)

	// Storage defaults
	viper.SetDefault("storage.enabled", defaults.Storage.Enabled)
	viper.SetDefault("storage.path", defaults.Storage.Path)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Unmarshal reads the configuration from viper without validating it
func Unmarshal() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	cfg, err := Unmarshal()
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "poolminer")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".poolminer"
	}
	return filepath.Join(home, ".config", "poolminer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidDrivers returns the list of valid radio driver names
func ValidDrivers() []string {
	return []string{DriverHost, DriverWatch}
}

// ValidEvaluators returns the list of proof evaluators shipped with poolminer.
// Must match the registry in internal/miner (defined separately to avoid a
// circular import).
func ValidEvaluators() []string {
	return []string{"sha1-prefix", "sha256-prefix"}
}
