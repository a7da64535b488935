package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/supplychain/pkg/deps/cargo"
	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	reportio "github.com/matzehuels/supplychain/pkg/io"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// reportFlags are shared by the publishers and crates commands.
type reportFlags struct {
	diffable bool
	from     string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.diffable, "diffable", "d", false, "plain, unnumbered output suitable for diffing")
	cmd.Flags().StringVar(&f.from, "from", "", "render a report saved by 'supplychain json' instead of resolving")
}

// publishersCommand creates the "publishers" command.
func (c *CLI) publishersCommand() *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "publishers [-- <cargo metadata args>]",
		Short: "List the users and teams who can publish your dependencies",
		Example: `  supplychain publishers
  supplychain publishers --diffable -- --manifest-path ../app/Cargo.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.document(cmd.Context(), flags.from, args)
			if err != nil {
				return err
			}
			renderPublishers(cmd.OutOrStdout(), doc, renderOptions{Diffable: flags.diffable})
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// cratesCommand creates the "crates" command.
func (c *CLI) cratesCommand() *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "crates [-- <cargo metadata args>]",
		Short: "List your dependencies with the users and teams who can publish them",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.document(cmd.Context(), flags.from, args)
			if err != nil {
				return err
			}
			renderCrates(cmd.OutOrStdout(), doc, renderOptions{Diffable: flags.diffable})
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// jsonCommand creates the "json" command.
func (c *CLI) jsonCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "json [-- <cargo metadata args>]",
		Short: "Print the full report in a machine-readable format",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := reportio.ParseFormat(format)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "--format")
			}
			doc, err := c.document(cmd.Context(), "", args)
			if err != nil {
				return err
			}
			return writeDocument(cmd, doc, f, output)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// lookupCommand creates the "lookup" command.
func (c *CLI) lookupCommand() *cobra.Command {
	var (
		format   string
		diffable bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <crate>...",
		Short: "Show who can publish the named crates",
		Long:  "Show who can publish the named crates, without running cargo metadata.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs, err := parsePackages(args)
			if err != nil {
				return err
			}
			doc, err := c.resolve(cmd.Context(), pkgs)
			if err != nil {
				return err
			}
			if format == "text" {
				renderCrates(cmd.OutOrStdout(), doc, renderOptions{Diffable: diffable})
				return nil
			}
			f, err := reportio.ParseFormat(format)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "--format")
			}
			return writeDocument(cmd, doc, f, "")
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().BoolVarP(&diffable, "diffable", "d", false, "plain, unnumbered text output")
	return cmd
}

// parsePackages accepts "name" and "name@version" arguments.
func parsePackages(args []string) ([]publishers.Package, error) {
	pkgs := make([]publishers.Package, 0, len(args))
	for _, arg := range args {
		name, version, _ := strings.Cut(arg, "@")
		p := publishers.Package{Name: name, Version: version}
		if err := apperrors.ValidateCratesPackageName(p.Name); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// document resolves the dependencies of the current cargo project, or reads
// a saved report when from is set.
func (c *CLI) document(ctx context.Context, from string, cargoArgs []string) (*reportio.Document, error) {
	if from != "" {
		f, err := os.Open(from)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "open report")
		}
		defer f.Close()
		doc, err := reportio.ReadJSON(f)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, err, "read report %s", from)
		}
		return doc, nil
	}

	prog := newProgress(c.Logger)
	pkgs, err := cargo.NewRunner(cargo.WithLogger(c.Logger)).Packages(ctx, cargoArgs)
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Found %d crates.io dependencies", len(pkgs)))
	return c.resolve(ctx, pkgs)
}

func writeDocument(cmd *cobra.Command, doc *reportio.Document, f reportio.Format, output string) error {
	if output == "" {
		return reportio.Write(doc, f, cmd.OutOrStdout())
	}
	if err := reportio.Export(doc, f, output); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "write report")
	}
	printSuccess("Report written")
	printFile(output)
	return nil
}
