package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/ivan3bx/hamlaunch"
	"github.com/ivan3bx/hamlaunch/internal/config"
	"github.com/ivan3bx/hamlaunch/supervisor"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "hamlaunch",
		Short:        "Launch a HamClock web build and follow its output",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to an additional config.toml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newListCommand(opts),
	)

	return root
}

// load reads configuration and applies the logging settings.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)

	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = strings.ToLower(o.logLevel)
	}

	if err := configureLogging(level); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configureLogging(level string) error {
	lvl, err := log.ParseLevel(level)

	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	log.SetLevel(lvl)
	log.SetHandler(cli.Default)
	return nil
}

// newSupervisor builds the supervisor described by cfg.
func newSupervisor(cfg *config.Config, sinks ...hamlaunch.Sink) *supervisor.Supervisor {
	s := supervisor.New(supervisor.Config{
		Catalog:     catalogFor(cfg),
		Args:        cfg.Args,
		StopTimeout: cfg.StopTimeout,
		MaxLines:    cfg.MaxLines,
	})

	for _, sink := range sinks {
		s.AddSink(sink)
	}

	return s
}

func catalogFor(cfg *config.Config) supervisor.Catalog {
	return supervisor.Catalog{Dir: cfg.BinDir, Names: cfg.Binaries}
}
