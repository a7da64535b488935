// Command cargo-supply-chain installs the tool as a cargo subcommand:
//
//	cargo supply-chain publishers -- --features foo
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matzehuels/supplychain/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Main(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
