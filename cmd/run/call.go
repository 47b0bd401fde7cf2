package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/transcoder"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <file.wasm> <export> [args...]",
		Short: "Instantiate a module and call one export",
		Long: `Instantiate a module and call one export.

Arguments are numbers, optionally tagged with their wasm type:
  run call math.wasm add 1 2
  run call math.wasm add64 i64:9007199254740993 1
  run call math.wasm scale f32:1.5 --args-json '[2]'`,
		Args: cobra.MinimumNArgs(2),
		RunE: runCall,
	}
	addCapabilityFlags(cmd)
	cmd.Flags().String("args-json", "", "Append arguments from a JSON array, e.g. '[1, {\"type\":\"i64\",\"value\":\"5\"}]'")
	cmd.Flags().Bool("json", false, "Print results as JSON")
	cmd.Flags().String("dump", "", "Hex dump memory range offset:length after the call")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path, export := args[0], args[1]
	argsJSON, _ := cmd.Flags().GetString("args-json")
	asJSON, _ := cmd.Flags().GetBool("json")
	dump, _ := cmd.Flags().GetString("dump")

	callArgs, err := parseCallArgs(args[2:], argsJSON)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	inst, err := loadModule(ctx, cmd, rt, path)
	if err != nil {
		return err
	}
	defer rt.Drop(ctx, inst)

	results, err := rt.Call(ctx, inst, export, callArgs...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if results == nil {
			results = []transcoder.Value{}
		}
		if err := json.NewEncoder(out).Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintln(out, r)
		}
	}

	if dump != "" {
		offset, length, err := parseRange(dump)
		if err != nil {
			return err
		}
		data, err := rt.ReadMemory(ctx, inst, offset, length)
		if err != nil {
			return err
		}
		pages, err := rt.MemorySize(ctx, inst)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "memory: %s\n", describePages(pages))
		fmt.Fprint(out, hex.Dump(data))
	}
	return nil
}

func parseCallArgs(positional []string, argsJSON string) ([]any, error) {
	out := make([]any, 0, len(positional))
	for i, s := range positional {
		v, err := transcoder.ParseArg(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, v)
	}
	if argsJSON != "" {
		extra, err := transcoder.DecodeArgs([]byte(argsJSON))
		if err != nil {
			return nil, err
		}
		out = append(out, extra...)
	}
	return out, nil
}

// parseRange parses "offset:length" with decimal or 0x-prefixed numbers.
func parseRange(s string) (uint32, uint32, error) {
	off, length, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errors.Memory("invalid range %q (expected offset:length)", s)
	}
	o, err := strconv.ParseUint(off, 0, 32)
	if err != nil {
		return 0, 0, errors.Memory("invalid offset %q", off)
	}
	n, err := strconv.ParseUint(length, 0, 32)
	if err != nil {
		return 0, 0, errors.Memory("invalid length %q", length)
	}
	return uint32(o), uint32(n), nil
}
