package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/c360studio/semdict/config"
)

// cli carries the state shared by every command.
type cli struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	logOut     io.Writer
}

func rootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logOut: os.Stderr}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Multi-tenant content model dictionary",
		Long: `Semdict compiles content models (types, aspects, properties,
associations and constraints) into a queryable dictionary.

It provides:
- Per-tenant dictionaries overlaying a shared default tenant
- Validation of model updates against the published version
- An HTTP API for model administration and class queries

Settings come from semdict.yaml, SEMDICT_* environment variables and flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("models-dir", "", "Directory of model files")
	flags.String("nats-url", "", "NATS server URL")
	c.bindFlags(flags, map[string]string{
		"log.level":             "log-level",
		"dictionary.models_dir": "models-dir",
		"nats.url":              "nats-url",
	})

	configureEnv(c.v)

	cmd.AddCommand(c.serveCmd(), c.validateCmd(), c.diffCmd(), versionCmd())
	return cmd
}

// configureEnv maps viper keys to SEMDICT_* variables, e.g. http.addr to
// SEMDICT_HTTP_ADDR.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("SEMDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Printing the version never needs a config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func (c *cli) bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}
}

// stringSettings and boolSettings are the config fields that flags and
// SEMDICT_* variables override, by viper key.
var stringSettings = map[string]func(*config.Config) *string{
	"log.level":              func(c *config.Config) *string { return &c.Log.Level },
	"log.format":             func(c *config.Config) *string { return &c.Log.Format },
	"dictionary.models_dir":  func(c *config.Config) *string { return &c.Dictionary.ModelsDir },
	"nats.url":               func(c *config.Config) *string { return &c.NATS.URL },
	"nats.cache_bucket":      func(c *config.Config) *string { return &c.NATS.CacheBucket },
	"nats.model_bucket":      func(c *config.Config) *string { return &c.NATS.ModelBucket },
	"nats.event_prefix":      func(c *config.Config) *string { return &c.NATS.EventPrefix },
	"http.addr":              func(c *config.Config) *string { return &c.HTTP.Addr },
	"tracing.exporter":       func(c *config.Config) *string { return &c.Tracing.Exporter },
	"tracing.otlp_endpoint":  func(c *config.Config) *string { return &c.Tracing.OTLPEndpoint },
	"tracing.file_path":      func(c *config.Config) *string { return &c.Tracing.FilePath },
}

var boolSettings = map[string]func(*config.Config) *bool{
	"dictionary.watch":        func(c *config.Config) *bool { return &c.Dictionary.Watch },
	"dictionary.skip_builtin": func(c *config.Config) *bool { return &c.Dictionary.SkipBuiltin },
	"tracing.enabled":         func(c *config.Config) *bool { return &c.Tracing.Enabled },
}

// load reads the layered config files, applies flag and environment
// overrides and sets up logging.
func (c *cli) load() error {
	loader := config.NewLoader(slog.Default())
	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = loader.LoadPath(c.configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.cfg = cfg
	c.logger = newLogger(cfg.Log, c.logOut)
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) applyOverrides(cfg *config.Config) {
	for key, field := range stringSettings {
		if c.v.IsSet(key) {
			if s := c.v.GetString(key); s != "" {
				*field(cfg) = s
			}
		}
	}
	for key, field := range boolSettings {
		if c.v.IsSet(key) {
			*field(cfg) = c.v.GetBool(key)
		}
	}
	if c.v.IsSet("dictionary.debounce") {
		cfg.Dictionary.Debounce = c.v.GetDuration("dictionary.debounce")
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
