package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/workwise/aikor"
)

// app carries the settings shared by every subcommand.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "aikor",
		Short:         "Check PDF and DOCX documents against GOST formatting rules",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.setupLogging(cmd)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (YAML or JSON)")
	pf.String("db", "", "database path (default ~/.aikor/aikor.db)")
	pf.String("cache-dir", "", "parse cache directory")
	pf.Bool("no-cache", false, "disable the parse caches")
	pf.Int("workers", 0, "parallel parses for batch (default: number of CPUs)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"config", "db", "cache-dir", "no-cache", "workers", "log-level"} {
		a.v.BindPFlag(name, pf.Lookup(name))
	}
	a.v.SetEnvPrefix("AIKOR")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.parseCmd(),
		a.checkCmd(),
		a.exportCmd(),
		a.batchCmd(),
		a.renderCmd(),
		a.reportCmd(),
		a.cacheCmd(),
	)
	return root
}

func (a *app) setupLogging(cmd *cobra.Command) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
}

// config loads the config file, if any, then applies flag and AIKOR_*
// environment overrides.
func (a *app) config() (aikor.Config, error) {
	cfg := aikor.DefaultConfig()
	if path := a.v.GetString("config"); path != "" {
		var err error
		if cfg, err = aikor.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if v := a.v.GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v := a.v.GetString("cache-dir"); v != "" {
		cfg.Cache.Dir = v
	}
	if a.v.GetBool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if n := a.v.GetInt("workers"); n > 0 {
		cfg.Batch.MaxWorkers = n
	}
	if v := os.Getenv("AIKOR_VISION_PROVIDER"); v != "" {
		cfg.Vision.Provider = v
		cfg.Vision.Model = os.Getenv("AIKOR_VISION_MODEL")
		cfg.Vision.BaseURL = os.Getenv("AIKOR_VISION_BASE_URL")
		cfg.Vision.APIKey = os.Getenv("AIKOR_VISION_API_KEY")
	}
	return cfg, cfg.Validate()
}

func (a *app) engine() (aikor.Engine, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return aikor.New(cfg)
}
