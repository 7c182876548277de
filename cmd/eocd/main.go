// Command eocd supervises an on-chip-debug daemon for ARM Cortex-M
// targets behind a USB debug adapter, detecting and configuring the
// daemon automatically before handing control to gdb.
package main

import (
	"flag"
	"fmt"
	"os"

	"eocd/internal/cmdregistry"
	"eocd/internal/daemonrpc"
	"eocd/internal/options"
	"eocd/internal/orchestrator"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	registry := cmdregistry.New()
	registry.Register("setup", cmdFunc(orchestrator.Setup))
	registry.Register("gdb", cmdFunc(orchestrator.RunGDB))
	registry.Register("program", cmdFunc(orchestrator.Program))
	registry.Register("stop", cmdFunc(orchestrator.StopAll))
	registry.Register("list", cmdFunc(orchestrator.List))

	if len(args) == 0 {
		usage(registry)
		return 2
	}

	name := args[0]
	fn, ok := registry.Lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "eocd: unknown subcommand %q\n", name)
		usage(registry)
		return 2
	}
	return fn(args[1:])
}

// cmdFunc adapts an orchestrator entry point taking parsed Options into
// a cmdregistry.Func that parses its own flags from the subcommand's
// argument slice.
func cmdFunc(impl func(options.Options) int) cmdregistry.Func {
	return func(args []string) int {
		fs := flag.NewFlagSet("eocd", flag.ContinueOnError)
		opt, err := options.Parse(fs, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "eocd: %v\n", err)
			return 2
		}
		daemonrpc.SetVerbose(opt.Verbose)
		return impl(opt)
	}
}

func usage(registry *cmdregistry.Registry) {
	fmt.Fprintln(os.Stderr, "usage: eocd <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "subcommands:")
	for _, n := range registry.Names() {
		fmt.Fprintf(os.Stderr, "  %s\n", n)
	}
}
