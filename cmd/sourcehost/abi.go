package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/sourcehost/internal/hostfn"
	"github.com/woxQAQ/sourcehost/pkg/abi"
)

func newABICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abi [namespace]",
		Short: "List the host functions plugins can import",
		Long: `List every host function by namespace, with parameter names and wasm
types, followed by the exports a source plugin may provide.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			found := false
			for _, ns := range hostfn.Namespaces() {
				if len(args) == 1 && ns.Name != args[0] {
					continue
				}
				found = true
				fmt.Fprintf(out, "%s:\n", ns.Name)
				for _, fn := range ns.Functions {
					fmt.Fprintf(out, "  %s\n", fn.Signature())
				}
			}
			if !found {
				return fmt.Errorf("unknown namespace %q", args[0])
			}

			if len(args) == 0 {
				fmt.Fprintln(out, "exports:")
				for _, name := range []string{
					abi.ExportInitialize,
					abi.ExportGetMangaList,
					abi.ExportGetMangaListing,
					abi.ExportGetMangaDetails,
					abi.ExportGetChapterList,
					abi.ExportGetPageList,
					abi.ExportModifyImageRequest,
					abi.ExportHandleURL,
					abi.ExportHandleNotification,
				} {
					fmt.Fprintf(out, "  %s\n", name)
				}
			}
			return nil
		},
	}
}
