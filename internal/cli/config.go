// Config loading for the kvsync CLI.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/kvsync/internal/paths"
	"github.com/mesh-intelligence/kvsync/pkg/kvsync"
	"github.com/mesh-intelligence/kvsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend      = "backend"
	cfgKeyDataDir      = "data_dir"
	cfgKeyPollInterval = "poll_interval"
	cfgKeyMaxKeys      = "max_keys"

	envPrefix = "KVSYNC"
)

// configFile holds the structure written to config.yaml on first run.
type configFile struct {
	Backend      string `yaml:"backend"`
	DataDir      string `yaml:"data_dir,omitempty"`
	PollInterval string `yaml:"poll_interval"`
	MaxKeys      int    `yaml:"max_keys"`
}

// resolveConfigDir returns the config directory: --config-dir flag >
// KVSYNC_CONFIG_DIR env > platform default.
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flags.configDir)
}

// loadConfig reads config.yaml from configDir with Viper, writing a default
// file on first run. The data directory resolves as --data-dir flag >
// config.yaml data_dir > KVSYNC_DATA_DIR env > platform default.
func loadConfig(configDir string) (types.Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return types.Config{}, fmt.Errorf("create config directory: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, paths.ConfigFile)); err != nil {
		return types.Config{}, fmt.Errorf("write default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyPollInterval, types.DefaultPollInterval)
	v.SetDefault(cfgKeyMaxKeys, 0)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	// data_dir is left out: its env override ranks below config.yaml.
	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{cfgKeyBackend, cfgKeyPollInterval, cfgKeyMaxKeys} {
		if err := v.BindEnv(key); err != nil {
			return types.Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. If it already exists, the function returns nil.
func writeConfigIfMissing(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&configFile{
		Backend:      types.BackendSQLite,
		PollInterval: types.DefaultPollInterval.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// openStore loads the configuration and attaches the configured backend.
// The caller must Detach the returned backend.
func openStore() (types.Backend, types.Config, error) {
	configDir, err := resolveConfigDir()
	if err != nil {
		return nil, types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, types.Config{}, err
	}

	logger.Debug("opening store", "backend", cfg.Backend, "data_dir", cfg.DataDir)
	store, err := kvsync.Open(cfg, kvsync.WithLogger(logger))
	if err != nil {
		return nil, types.Config{}, err
	}
	return store, cfg, nil
}
