package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/runtime"
	"github.com/wippyai/wasm-sandbox/wasm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "run",
		Short: "Run WebAssembly modules in a capability sandbox",
		Long: `run - compile, inspect and invoke WebAssembly modules.

Modules get no filesystem, environment or arguments unless granted with
--preopen, --env, --arg or a --caps file. Calls are bounded by --timeout.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "Log runtime events to stderr")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "Execution budget per call (0 disables)")
	root.PersistentFlags().String("max-memory", "", "Linear memory cap per instance, e.g. 64MiB")
	root.PersistentFlags().String("cache-dir", "", "Persist compiled code in this directory")

	root.AddCommand(newExportsCmd(), newCallCmd(), newInteractiveCmd())
	return root
}

// openRuntime builds a runtime from the persistent flags.
func openRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	maxMemory, _ := cmd.Flags().GetString("max-memory")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")

	opts := []runtime.Option{runtime.WithCallTimeout(timeout)}
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		opts = append(opts, runtime.WithLogger(logger))
	}
	if maxMemory != "" {
		pages, err := parseMemoryLimit(maxMemory)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runtime.WithMemoryLimitPages(pages))
	}
	if cacheDir != "" {
		opts = append(opts, runtime.WithCacheDir(cacheDir))
	}
	return runtime.New(cmd.Context(), opts...)
}

// parseMemoryLimit converts a human size into whole pages, rounding down.
func parseMemoryLimit(s string) (uint32, error) {
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --max-memory %q: %w", s, err)
	}
	pages := size / wasm.PageSize
	if pages < 1 {
		return 0, fmt.Errorf("--max-memory %q is smaller than one %s page", s, units.BytesSize(wasm.PageSize))
	}
	if pages > wasm.MaxPages {
		return 0, fmt.Errorf("--max-memory %q exceeds the 4GiB address space", s)
	}
	return uint32(pages), nil
}

// loadModule compiles the module at path and instantiates it with the
// capability flags of cmd.
func loadModule(ctx context.Context, cmd *cobra.Command, rt *runtime.Runtime, path string) (runtime.InstanceHandle, error) {
	mod, err := rt.CompileFromPath(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("compile %s: %w", path, err)
	}
	caps, err := capabilitiesFromFlags(cmd)
	if err != nil {
		return 0, err
	}
	inst, err := rt.Instantiate(ctx, mod, caps, stdioOptions(cmd)...)
	if err != nil {
		return 0, fmt.Errorf("instantiate %s: %w", path, err)
	}
	return inst, nil
}

func formatSignature(d runtime.ExportDescriptor) string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	sig := d.Name + "(" + strings.Join(params, ", ") + ")"
	switch len(d.Results) {
	case 0:
	case 1:
		sig += " -> " + d.Results[0].String()
	default:
		results := make([]string, len(d.Results))
		for i, r := range d.Results {
			results[i] = r.String()
		}
		sig += " -> (" + strings.Join(results, ", ") + ")"
	}
	return sig
}
