package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/sourcehost/internal/config"
	"github.com/woxQAQ/sourcehost/internal/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sourcehost",
		Short: "WASM host for manga source plugins",
		Long: `sourcehost - Run manga source plugins compiled to WebAssembly.

Plugins are loaded from the configured plugin paths. Each one runs in its
own sandbox and can only import the host namespaces (std, json, html, net,
defaults, aidoku) its manifest declares.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the configuration")

	root.AddCommand(newPluginsCmd())
	root.AddCommand(newSourceCmds()...)
	root.AddCommand(newSettingsCmd())
	root.AddCommand(newABICmd())

	return root
}

// Execute runs the CLI.
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger writes to stderr so command output stays machine readable.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// withHost runs fn against a host built from the command's configuration,
// cancelled on SIGINT or SIGTERM.
func withHost(cmd *cobra.Command, fn func(ctx context.Context, host *service.Host) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := service.NewHost(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer host.Close(context.Background())

	return fn(ctx, host)
}

// withSource opens one instance of plugin id for the duration of fn.
func withSource(cmd *cobra.Command, id string, fn func(ctx context.Context, src *service.Source) error) error {
	return withHost(cmd, func(ctx context.Context, host *service.Host) error {
		src, err := host.Open(ctx, id)
		if err != nil {
			return err
		}
		defer src.Close(ctx)
		return fn(ctx, src)
	})
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
