// Package config provides configuration loading for pathfinder.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Geocoder providers.
const (
	GeocoderBackend   = "backend"
	GeocoderNominatim = "nominatim"
)

// Config is the complete pathfinder configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	UI       UIConfig       `yaml:"ui"`
	API      APIConfig      `yaml:"api"`
	Location LocationConfig `yaml:"location"`
	Debug    bool           `yaml:"debug"`
}

// BackendConfig points at the route-planning backend.
type BackendConfig struct {
	// URL is the base URL of the backend API
	URL string `yaml:"url"`
	// Timeout bounds every backend request (0 = none)
	Timeout time.Duration `yaml:"timeout"`
}

// GeocoderConfig selects who resolves places.
type GeocoderConfig struct {
	// Provider is "backend" or "nominatim"
	Provider string `yaml:"provider"`
	// NominatimServer is the Nominatim base URL
	NominatimServer string `yaml:"nominatim_server"`
	// Retries is the number of retries on transient Nominatim errors (0-5)
	Retries int `yaml:"retries"`
	// Limit is the number of autocomplete suggestions
	Limit int `yaml:"limit"`
	// Cache enables the on-disk geocode cache
	Cache bool `yaml:"cache"`
}

// UIConfig tunes interaction timing and styling.
type UIConfig struct {
	Debounce  time.Duration `yaml:"debounce"`
	BlurGrace time.Duration `yaml:"blur_grace"`
	// StartHue is the hue of the first route color, in degrees
	StartHue float64 `yaml:"start_hue"`
}

// APIConfig configures the local HTTP API served to the map frontend.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LocationConfig configures the device location source.
type LocationConfig struct {
	// GeoClue enables the GeoClue2 D-Bus location source
	GeoClue bool `yaml:"geoclue"`
	// DesktopID identifies the app to GeoClue
	DesktopID string `yaml:"desktop_id"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:5000",
			Timeout: 60 * time.Second,
		},
		Geocoder: GeocoderConfig{
			Provider:        GeocoderBackend,
			NominatimServer: "https://nominatim.openstreetmap.org",
			Retries:         1,
			Limit:           5,
			Cache:           true,
		},
		UI: UIConfig{
			Debounce:  500 * time.Millisecond,
			BlurGrace: 200 * time.Millisecond,
		},
		API: APIConfig{
			Listen: "127.0.0.1:43099",
		},
		Location: LocationConfig{
			GeoClue:   true,
			DesktopID: "pathfinder",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url %q is not an absolute URL", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	switch c.Geocoder.Provider {
	case GeocoderBackend:
	case GeocoderNominatim:
		if c.Geocoder.NominatimServer == "" {
			return fmt.Errorf("geocoder.nominatim_server is required for the nominatim provider")
		}
	default:
		return fmt.Errorf("geocoder.provider must be %q or %q, got %q", GeocoderBackend, GeocoderNominatim, c.Geocoder.Provider)
	}
	if c.Geocoder.Retries < 0 || c.Geocoder.Retries > 5 {
		return fmt.Errorf("geocoder.retries must be between 0 and 5")
	}
	if c.Geocoder.Limit < 1 {
		return fmt.Errorf("geocoder.limit must be at least 1")
	}
	if c.UI.Debounce <= 0 || c.UI.BlurGrace <= 0 {
		return fmt.Errorf("ui.debounce and ui.blur_grace must be positive")
	}
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
