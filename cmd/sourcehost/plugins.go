package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/plugin"
	"github.com/woxQAQ/sourcehost/internal/service"
	"github.com/woxQAQ/sourcehost/internal/wasm"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List plugins found under the configured paths",
		Args:  cobra.NoArgs,
		RunE:  runPluginsList,
	}

	validate := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a plugin's manifest, module and imports",
		Long: `Validate a plugin directory without installing it.

The manifest is parsed and validated, the module is compiled, and an
instance is started with the manifest's capabilities so that imports
outside them are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: runPluginsValidate,
	}

	cmd.AddCommand(list, validate)
	return cmd
}

func runPluginsList(cmd *cobra.Command, _ []string) error {
	return withHost(cmd, func(_ context.Context, host *service.Host) error {
		out := cmd.OutOrStdout()
		plugins := host.Plugins().Registry().List()
		if len(plugins) == 0 {
			fmt.Fprintln(out, "No plugins found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tLANGUAGE\tRATING\tCAPABILITIES")
		for _, p := range plugins {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				p.ID(), p.Name(), p.Version(), p.Language(), p.ContentRating(),
				strings.Join(p.Capabilities(), ","))
		}
		return w.Flush()
	})
}

func runPluginsValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		ExecutionTimeout: cfg.Wasm.Timeout(),
		HeapBase:         cfg.Wasm.HeapBase,
	})
	if err != nil {
		return err
	}
	defer runtime.Close(ctx)

	p, err := plugin.NewLoader(runtime, logger).LoadPlugin(ctx, args[0])
	if err != nil {
		return err
	}

	// Start functions run here too, so a plugin that traps while starting
	// fails validation.
	instance, err := wasm.NewInstanceManager(runtime, logger).Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: p.ID(),
		Namespaces: p.Capabilities(),
	})
	if err != nil {
		return err
	}
	if err := instance.Close(ctx); err != nil {
		logger.Warn("Failed to close validation instance", zap.Error(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s v%d (%d imports, %d exports)\n",
		p.ID(), p.Version(), len(p.Compiled.Imports), len(p.Compiled.Exports))
	return nil
}
