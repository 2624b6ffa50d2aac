package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genrelay/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// serveFlags holds command-line overrides. Empty values leave the file/env
// configuration untouched.
type serveFlags struct {
	configPath  string
	addr        string
	upstreamURL string
	logLevel    string
	logFormat   string
}

// buildRootCmd constructs the command tree. lookup resolves environment
// variables (os.LookupEnv in production).
func buildRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:           "genrelay",
		Short:         "Text-generation gateway for OpenAI-compatible providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var fl serveFlags
	serve := &cobra.Command{
		Use:     "serve",
		Short:   "Start the HTTP gateway",
		Example: "  GROQ_API_KEY=... genrelay serve --addr :8000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(fl, lookup, cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}
	serve.Flags().StringVarP(&fl.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml); defaults GENRELAY_CONFIG or ./genrelay.yaml")
	serve.Flags().StringVar(&fl.addr, "addr", "", "HTTP listen address, e.g. :8000 (defaults GENRELAY_ADDR or :8000)")
	serve.Flags().StringVar(&fl.upstreamURL, "upstream-url", "", "Provider chat completions URL (defaults GENRELAY_UPSTREAM_URL or Groq)")
	serve.Flags().StringVar(&fl.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults GENRELAY_LOG_LEVEL or info)")
	serve.Flags().StringVar(&fl.logFormat, "log-format", "", "Log format: json|console (defaults GENRELAY_LOG_FORMAT or json)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "genrelay %s\n", version)
		},
	}

	root.AddCommand(serve, versionCmd)
	return root
}

// loadConfig layers defaults, the config file, environment, and explicitly set
// flags, then validates the result. The file is --config, else GENRELAY_CONFIG,
// else the first of config.DefaultPaths that exists.
func loadConfig(fl serveFlags, lookup func(string) (string, bool), cmd *cobra.Command) (config.Config, error) {
	cfg := config.Defaults()
	path := fl.configPath
	if path == "" {
		if v, ok := lookup("GENRELAY_CONFIG"); ok {
			path = v
		} else {
			path = config.FindDefault()
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv(lookup)

	changed := func(name string) bool { return cmd != nil && cmd.Flags().Changed(name) }
	if changed("addr") {
		cfg.Addr = fl.addr
	}
	if changed("upstream-url") {
		cfg.UpstreamURL = fl.upstreamURL
	}
	if changed("log-level") {
		cfg.LogLevel = fl.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = fl.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
