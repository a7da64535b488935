package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	apperrors "github.com/matzehuels/supplychain/pkg/errors"
)

// cargoSubcommand is the first argument cargo passes to the binary when it
// runs as `cargo supply-chain`.
const cargoSubcommand = "supply-chain"

// Exit codes returned by [Main].
const (
	ExitOK       = 0
	ExitError    = 1
	ExitCanceled = 130 // Standard shell convention for SIGINT
)

// cargoArgs drops the leading subcommand name cargo inserts.
func cargoArgs(args []string) []string {
	if len(args) > 0 && args[0] == cargoSubcommand {
		return args[1:]
	}
	return args
}

// Main runs the command line and returns the process exit code. It serves
// both the standalone binary and the cargo subcommand.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := execute(ctx, args, stdout, stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			return ExitCanceled
		}
		fmt.Fprintln(stderr, "error:", apperrors.UserMessage(err))
		if cause := errors.Unwrap(err); cause != nil && apperrors.GetCode(err) != "" {
			fmt.Fprintln(stderr, "  caused by:", cause)
		}
		return ExitError
	}
	return ExitOK
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var verbose bool

	c := New(stderr, LogInfo)
	defer c.Close()
	root := c.RootCommand()
	root.SetArgs(cargoArgs(args))
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	// Set the log level before the CLI loads its configuration.
	setup := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := LogInfo
		if verbose {
			level = LogDebug
		}
		c.SetLogLevel(level)
		return setup(cmd, args)
	}

	return root.ExecuteContext(ctx)
}
