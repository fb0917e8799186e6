package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/poolminer/internal/pool"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_record_bytes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Wire framing overhead, mirrored from internal/pool.
const (
	jobRequestOverhead = len("JOB,") + len(",") + len("\n")
	// Shortest job record a pool may send for a given seed: "<seed>,<t>\n".
	jobRecordOverhead = len(",") + 1 + len("\n")
	maxPort           = 65535
)

// MaxDifficulty is the largest difficulty whose nonce range still fits in
// the platform's int.
const MaxDifficulty = math.MaxInt / pool.NonceSpan

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateNetwork()...)
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateMiner()...)
	errors = append(errors, c.validateIndicator()...)
	errors = append(errors, c.validateReporter()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// RequirePool reports the settings that must be present before a mining
// session can start. They are not part of Validate so that commands which
// never dial the pool work with an incomplete file.
func (c *Config) RequirePool() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Pool.Address) == "" {
		errors = append(errors, ValidationError{
			Field:   "pool.address",
			Value:   c.Pool.Address,
			Message: "is required",
		})
	}
	if c.Pool.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.port",
			Value:   c.Pool.Port,
			Message: "is required",
		})
	}
	if c.Pool.Identity == "" {
		errors = append(errors, ValidationError{
			Field:   "pool.identity",
			Value:   c.Pool.Identity,
			Message: "is required",
		})
	}

	return errors
}

// validateNetwork validates the NetworkConfig
func (c *Config) validateNetwork() []ValidationError {
	var errors []ValidationError

	if c.Network.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.max_retries",
			Value:   c.Network.MaxRetries,
			Message: "must be non-negative",
		})
	}

	if !slices.Contains(ValidDrivers(), c.Network.Driver) {
		errors = append(errors, ValidationError{
			Field:   "network.driver",
			Value:   c.Network.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}

	if c.Network.Driver == DriverWatch {
		if c.Network.StatusFile == "" {
			errors = append(errors, ValidationError{
				Field:   "network.status_file",
				Value:   c.Network.StatusFile,
				Message: "is required by the watch driver",
			})
		}
		if len(c.Network.AssociateCommand) == 0 {
			errors = append(errors, ValidationError{
				Field:   "network.associate_command",
				Value:   c.Network.AssociateCommand,
				Message: "is required by the watch driver",
			})
		}
	}

	if c.Network.ConnectTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.connect_timeout_seconds",
			Value:   c.Network.ConnectTimeoutSeconds,
			Message: "must be non-negative (0 = unbounded)",
		})
	}

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.Port < 0 || c.Pool.Port > maxPort {
		errors = append(errors, ValidationError{
			Field:   "pool.port",
			Value:   c.Pool.Port,
			Message: fmt.Sprintf("must be between 1 and %d", maxPort),
		})
	}

	fields := []struct {
		field string
		value string
	}{
		{"pool.identity", c.Pool.Identity},
		{"pool.device_tag", c.Pool.DeviceTag},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, ",\r\n") {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "must not contain commas or line breaks",
			})
		}
	}
	if c.Pool.DeviceTag == "" {
		errors = append(errors, ValidationError{
			Field:   "pool.device_tag",
			Value:   c.Pool.DeviceTag,
			Message: "must not be empty",
		})
	}

	if c.Pool.DialTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.dial_timeout_ms",
			Value:   c.Pool.DialTimeoutMs,
			Message: "must be positive",
		})
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"pool.io_timeout_ms", c.Pool.IOTimeoutMs},
		{"pool.backoff_initial_ms", c.Pool.BackoffInitialMs},
		{"pool.backoff_max_ms", c.Pool.BackoffMaxMs},
	}
	for _, nn := range nonNegative {
		if nn.value < 0 {
			errors = append(errors, ValidationError{
				Field:   nn.field,
				Value:   nn.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Pool.BackoffMaxMs < c.Pool.BackoffInitialMs {
		errors = append(errors, ValidationError{
			Field:   "pool.backoff_max_ms",
			Value:   c.Pool.BackoffMaxMs,
			Message: fmt.Sprintf("must be at least pool.backoff_initial_ms (%d)", c.Pool.BackoffInitialMs),
		})
	}

	// The job request must fit in one record
	if need := jobRequestOverhead + len(c.Pool.Identity) + len(c.Pool.DeviceTag); need > c.Pool.MaxRecordBytes {
		errors = append(errors, ValidationError{
			Field:   "pool.max_record_bytes",
			Value:   c.Pool.MaxRecordBytes,
			Message: fmt.Sprintf("too small for the job request (need %d bytes)", need),
		})
	}

	return errors
}

// validateMiner validates the MinerConfig, including the scratch buffer
// headroom against the pool record limit.
func (c *Config) validateMiner() []ValidationError {
	var errors []ValidationError

	if c.Miner.Difficulty <= 0 {
		errors = append(errors, ValidationError{
			Field:   "miner.difficulty",
			Value:   c.Miner.Difficulty,
			Message: "must be positive",
		})
	} else if c.Miner.Difficulty > MaxDifficulty {
		errors = append(errors, ValidationError{
			Field:   "miner.difficulty",
			Value:   c.Miner.Difficulty,
			Message: "nonce range difficulty*" + strconv.Itoa(pool.NonceSpan) + " overflows; maximum is " + strconv.Itoa(MaxDifficulty),
		})
	}

	if !slices.Contains(ValidEvaluators(), c.Miner.Evaluator) {
		errors = append(errors, ValidationError{
			Field:   "miner.evaluator",
			Value:   c.Miner.Evaluator,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidEvaluators(), ", ")),
		})
	}

	if c.Miner.MaxSeedLength <= 0 {
		errors = append(errors, ValidationError{
			Field:   "miner.max_seed_length",
			Value:   c.Miner.MaxSeedLength,
			Message: "must be positive",
		})
	} else if need := c.Miner.MaxSeedLength + jobRecordOverhead; need > c.Pool.MaxRecordBytes {
		errors = append(errors, ValidationError{
			Field:   "miner.max_seed_length",
			Value:   c.Miner.MaxSeedLength,
			Message: fmt.Sprintf("a job record with a seed this long needs %d bytes but pool.max_record_bytes is %d", need, c.Pool.MaxRecordBytes),
		})
	}

	return errors
}

// validateIndicator validates the IndicatorConfig
func (c *Config) validateIndicator() []ValidationError {
	var errors []ValidationError

	if c.Indicator.Enabled && c.Indicator.PulseMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "indicator.pulse_ms",
			Value:   c.Indicator.PulseMs,
			Message: "must be positive when the indicator is enabled",
		})
	}

	return errors
}

// validateReporter validates the ReporterConfig
func (c *Config) validateReporter() []ValidationError {
	var errors []ValidationError

	if c.Reporter.IntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "reporter.interval_seconds",
			Value:   c.Reporter.IntervalSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
