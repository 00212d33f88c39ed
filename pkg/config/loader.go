package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rubiojr/pathfinder/pkg/logger"
)

// FileName is the name of the config file inside the config directory.
const FileName = "config.yaml"

// Environment overrides, applied after every file.
const (
	EnvBackendURL      = "PATHFINDER_BACKEND_URL"
	EnvBackendTimeout  = "PATHFINDER_BACKEND_TIMEOUT"
	EnvGeocoder        = "PATHFINDER_GEOCODER"
	EnvNominatimServer = "PATHFINDER_NOMINATIM_SERVER"
	EnvNominatimRetry  = "PATHFINDER_NOMINATIM_RETRIES"
	EnvListen          = "PATHFINDER_LISTEN"
	EnvDebug           = "PATHFINDER_DEBUG"
)

// Loader loads configuration with layered precedence:
// 1. Defaults
// 2. User config (<config dir>/config.yaml), if present
// 3. Explicit config file (--config), which must exist
// 4. PATHFINDER_* environment variables
type Loader struct {
	configDir string
	getenv    func(string) string
}

func NewLoader(configDir string) *Loader {
	return &Loader{configDir: configDir, getenv: os.Getenv}
}

// Load builds and validates the configuration.
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	if l.configDir != "" {
		userPath := filepath.Join(l.configDir, FileName)
		if err := loadInto(cfg, userPath); err == nil {
			logger.Debug("loaded user config %s", userPath)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if explicit != "" {
		if err := loadInto(cfg, explicit); err != nil {
			return nil, err
		}
		logger.Debug("loaded config %s", explicit)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadInto decodes path over cfg, so keys absent from the file keep their
// current value.
func loadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// UserConfigPath returns the path of the user config file.
func (l *Loader) UserConfigPath() string {
	return filepath.Join(l.configDir, FileName)
}

// EnsureUserConfig writes the default config to the user config path unless
// a file already exists there. It reports whether it wrote one.
func (l *Loader) EnsureUserConfig() (bool, error) {
	path := l.UserConfigPath()
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return false, err
	}
	logger.Info("created default config %s", path)
	return true, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := l.getenv(EnvBackendTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackendTimeout, err)
		}
		cfg.Backend.Timeout = d
	}
	if v := l.getenv(EnvGeocoder); v != "" {
		cfg.Geocoder.Provider = strings.ToLower(v)
	}
	if v := l.getenv(EnvNominatimServer); strings.TrimSpace(v) != "" {
		cfg.Geocoder.NominatimServer = v
	}
	if v := l.getenv(EnvNominatimRetry); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 5 {
			cfg.Geocoder.Retries = n
		} else {
			logger.Error("ignoring %s=%q: want 0-5", EnvNominatimRetry, v)
		}
	}
	if v := l.getenv(EnvListen); v != "" {
		cfg.API.Listen = v
	}
	if v := l.getenv(EnvDebug); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}
