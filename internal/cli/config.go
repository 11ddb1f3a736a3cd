package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the config file read from the working directory when
// no --config flag is given.
const ConfigFileName = ".reportctl.json"

// ErrConfigInvalid wraps every config validation failure.
var ErrConfigInvalid = errors.New("invalid config")

// Config holds the client settings. Files may contain comments and
// trailing commas.
//
//	{
//	  // reports server
//	  "server": "http://localhost:8080",
//	  "export_dir": "exports",
//	  "search_delay": "300ms",
//	}
type Config struct {
	Server      string `json:"server"`
	APIKey      string `json:"api_key,omitempty"`
	ExportDir   string `json:"export_dir"`
	SearchDelay string `json:"search_delay"`
	Limit       int    `json:"limit"`
	HistoryFile string `json:"history_file,omitempty"`

	// Source is the file the config was read from, if any.
	Source string `json:"-"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Server:      "http://localhost:8080",
		ExportDir:   ".",
		SearchDelay: "300ms",
		Limit:       20,
	}
}

// Delay returns SearchDelay parsed. Validate guarantees it parses.
func (c Config) Delay() time.Duration {
	d, _ := time.ParseDuration(c.SearchDelay)
	return d
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Server); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server %q must be an http(s) URL", c.Server))
	}
	if c.ExportDir == "" {
		errs = append(errs, errors.New("export_dir cannot be empty"))
	}
	if d, err := time.ParseDuration(c.SearchDelay); err != nil || d < 0 {
		errs = append(errs, fmt.Errorf("search_delay %q must be a non-negative duration", c.SearchDelay))
	}
	if c.Limit < 1 {
		errs = append(errs, fmt.Errorf("limit must be positive, got %d", c.Limit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// LoadConfigFile merges the file at path over cfg. A missing file is only
// an error when required is set.
func LoadConfigFile(cfg Config, path string, required bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	file, err := parseConfig(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	merged := mergeConfig(cfg, file)
	merged.Source = path
	return merged, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// mergeConfig overlays the non-zero settings of over onto base.
func mergeConfig(base, over Config) Config {
	if over.Server != "" {
		base.Server = over.Server
	}
	if over.APIKey != "" {
		base.APIKey = over.APIKey
	}
	if over.ExportDir != "" {
		base.ExportDir = over.ExportDir
	}
	if over.SearchDelay != "" {
		base.SearchDelay = over.SearchDelay
	}
	if over.Limit != 0 {
		base.Limit = over.Limit
	}
	if over.HistoryFile != "" {
		base.HistoryFile = over.HistoryFile
	}
	return base
}
