package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// PollInterval bounds how long a backend may take to notice writes made
	// by other processes. Zero selects DefaultPollInterval.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// MaxKeys caps the number of distinct keys. Zero means unlimited.
	MaxKeys int `json:"max_keys" yaml:"max_keys" mapstructure:"max_keys"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 2 * time.Second

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrPollIntervalInvalid = errors.New("poll interval must not be negative")
	ErrMaxKeysInvalid      = errors.New("max keys must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.PollInterval < 0 {
		return ErrPollIntervalInvalid
	}
	if c.MaxKeys < 0 {
		return ErrMaxKeysInvalid
	}
	return nil
}

// GetPollInterval returns the effective poll interval.
func (c Config) GetPollInterval() time.Duration {
	if c.PollInterval == 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}
