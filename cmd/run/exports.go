package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/wasm"
)

func newExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports <file.wasm>",
		Short: "List a module's exports without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runExports,
	}
	cmd.Flags().Bool("json", false, "Print export descriptors as JSON")
	return cmd
}

func runExports(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	mod, err := rt.CompileFromPath(ctx, args[0])
	if err != nil {
		return fmt.Errorf("compile %s: %w", args[0], err)
	}
	exports, err := rt.ModuleExports(mod)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(exports)
	}

	fmt.Fprintf(out, "Module: %s\n", args[0])
	fmt.Fprintf(out, "Exports: %d\n\n", len(exports))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range exports {
		desc := e.Name
		if e.Kind == engine.ExportFunction {
			desc = formatSignature(e)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", e.Kind, desc)
	}
	return tw.Flush()
}

// describePages renders a page count with its byte size.
func describePages(pages uint32) string {
	return fmt.Sprintf("%d pages (%s)", pages, humanize.IBytes(uint64(pages)*wasm.PageSize))
}
