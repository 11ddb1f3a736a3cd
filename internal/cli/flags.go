package cli

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// ParseArgs resolves the configuration from, in increasing precedence,
// defaults, the config file and command line flags. The API key may also
// come from REPORTS_API_KEY in env.
func ParseArgs(args []string, env map[string]string, usage io.Writer) (Config, error) {
	fs := flag.NewFlagSet("reportctl", flag.ContinueOnError)
	fs.SetOutput(usage)

	configPath := fs.StringP("config", "c", "", "config file (default "+ConfigFileName+" if present)")
	server := fs.StringP("server", "s", "", "reports server base URL")
	apiKey := fs.String("api-key", "", "API key sent as X-API-Key")
	exportDir := fs.StringP("export-dir", "o", "", "directory CSV exports are written to")
	delay := fs.Duration("search-delay", 0, "quiet period before a search is applied")
	limit := fs.IntP("limit", "n", 0, "maximum reports listed per submit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	path, required := ConfigFileName, false
	if *configPath != "" {
		path, required = *configPath, true
	}
	cfg, err := LoadConfigFile(DefaultConfig(), path, required)
	if err != nil {
		return Config{}, err
	}

	if key := env["REPORTS_API_KEY"]; key != "" {
		cfg.APIKey = key
	}

	cfg = mergeConfig(cfg, Config{
		Server:    *server,
		APIKey:    *apiKey,
		ExportDir: *exportDir,
		Limit:     *limit,
	})
	if fs.Changed("search-delay") {
		cfg.SearchDelay = delay.String()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
