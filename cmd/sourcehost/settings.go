package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/sourcehost/internal/settings"
	"github.com/woxQAQ/sourcehost/internal/value"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change persisted plugin settings",
		Long: `Read and change the settings plugins see through the defaults namespace.

Values are written as YAML, so "settings set en.example pageSize 20" stores
an integer and "settings set en.example tags '[a, b]'" stores an array.`,
	}

	get := &cobra.Command{
		Use:   "get <plugin> <key>",
		Short: "Print a stored setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store settings.Store) error {
				v, ok, err := store.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no setting %q for plugin '%s'", args[1], args[0])
				}
				return printYAML(cmd.OutOrStdout(), v.Interface())
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <plugin> <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw any
			if err := yaml.Unmarshal([]byte(args[2]), &raw); err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			v, err := value.FromInterface(raw)
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			return withStore(cmd, func(ctx context.Context, store settings.Store) error {
				return store.Set(ctx, args[0], args[1], v)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <plugin> <key>",
		Short: "Remove a setting so the plugin's default applies again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store settings.Store) error {
				return store.Delete(ctx, args[0], args[1])
			})
		},
	}

	cmd.AddCommand(get, set, del)
	return cmd
}

// withStore opens only the settings store; plugins are not loaded.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store settings.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := settings.Open(cfg.Settings.Driver, cfg.Settings.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cmd.Context(), store)
}
