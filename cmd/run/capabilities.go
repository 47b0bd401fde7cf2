package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-sandbox/wasi"
)

func addCapabilityFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("preopen", nil, "Grant a directory as guest:host, prefix host with ro: for read-only (repeatable)")
	cmd.Flags().StringSlice("env", nil, "Set a guest environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringArray("arg", nil, "Append a guest argv entry (repeatable)")
	cmd.Flags().String("caps", "", "YAML capability file; flags are merged on top")
	cmd.Flags().Bool("stdio", false, "Connect the guest to this process's stdin, stdout and stderr")
}

// capabilitiesFromFlags assembles the capability grant. Without any
// capability flag the result is nil and the guest gets nothing.
func capabilitiesFromFlags(cmd *cobra.Command) (*wasi.Config, error) {
	capsFile, _ := cmd.Flags().GetString("caps")
	preopens, _ := cmd.Flags().GetStringSlice("preopen")
	env, _ := cmd.Flags().GetStringSlice("env")
	argv, _ := cmd.Flags().GetStringArray("arg")

	var cfg *wasi.Config
	if capsFile != "" {
		f, err := os.Open(capsFile)
		if err != nil {
			return nil, fmt.Errorf("open capability file: %w", err)
		}
		defer f.Close()
		if cfg, err = wasi.LoadConfig(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", capsFile, err)
		}
	}
	if len(preopens) == 0 && len(env) == 0 && len(argv) == 0 {
		return cfg, nil
	}
	if cfg == nil {
		cfg = wasi.NewConfig()
	}

	for _, entry := range preopens {
		guest, host, readOnly, err := parsePreopen(entry)
		if err != nil {
			return nil, err
		}
		if readOnly {
			cfg.WithReadOnlyPreopen(guest, host)
		} else {
			cfg.WithPreopen(guest, host)
		}
	}
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env %q (expected KEY=VALUE)", kv)
		}
		cfg.WithEnv(key, value)
	}
	if len(argv) > 0 {
		cfg.WithArgs(append(cfg.Args, argv...)...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parsePreopen splits "guest:host" or "guest:ro:host".
func parsePreopen(entry string) (guest, host string, readOnly bool, err error) {
	guest, host, ok := strings.Cut(entry, ":")
	if !ok || guest == "" || host == "" {
		return "", "", false, fmt.Errorf("invalid --preopen %q (expected guest:host or guest:ro:host)", entry)
	}
	if rest, found := strings.CutPrefix(host, "ro:"); found {
		host, readOnly = rest, true
	}
	if host == "" {
		return "", "", false, fmt.Errorf("invalid --preopen %q: empty host directory", entry)
	}
	return guest, host, readOnly, nil
}

// stdioOptions connects the guest to the terminal when --stdio is set.
func stdioOptions(cmd *cobra.Command) []wasi.Option {
	stdio, _ := cmd.Flags().GetBool("stdio")
	if !stdio {
		return nil
	}
	return []wasi.Option{
		wasi.WithStdin(cmd.InOrStdin()),
		wasi.WithStdout(cmd.OutOrStdout()),
		wasi.WithStderr(cmd.ErrOrStderr()),
	}
}
