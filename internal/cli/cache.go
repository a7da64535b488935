package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry snapshot and API response cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheInfoCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var apiOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the snapshot and cached API responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.settings()

			apiDir := cfg.APICacheDir()
			count, err := clearDir(apiDir)
			if err != nil {
				return fmt.Errorf("clear api cache: %w", err)
			}
			printSuccess("Cleared %d cached API responses", count)
			printDetail("Directory: %s", apiDir)

			if apiOnly {
				return nil
			}
			store := c.newStore()
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear snapshot: %w", err)
			}
			printSuccess("Removed registry snapshot")
			printDetail("Directory: %s", store.Dir())
			return nil
		},
	}
	cmd.Flags().BoolVar(&apiOnly, "api-only", false, "keep the registry snapshot")
	return cmd
}

// clearDir removes every file below dir and then the emptied directories.
// A missing dir counts as empty.
func clearDir(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !d.IsDir() {
			if err := os.Remove(path); err == nil {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.IsDir() {
			_ = os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
	return count, nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.settings().CacheDir)
			return nil
		},
	}
}

// cacheInfoCommand creates the "cache info" subcommand.
func (c *CLI) cacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the current snapshot and cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.settings()
			store := c.newStore()
			w := cmd.OutOrStdout()

			printKeyValue(w, "Directory", cfg.CacheDir)
			snap := store.CurrentSnapshot()
			if snap == nil {
				printKeyValue(w, "Snapshot", "none")
				printNextStep("Download one with", appName+" update")
			} else {
				state := StyleSuccess.Render("fresh")
				if !store.IsFresh(snap, cfg.CacheMaxAge.Std()) {
					state = StyleWarning.Render("stale")
				}
				printKeyValue(w, "Snapshot", snap.Generation)
				printKeyValue(w, "Acquired", fmt.Sprintf("%s (%s, %s)",
					snap.AcquiredAt.Local().Format(time.RFC1123), humanize.Time(snap.AcquiredAt), state))
				printKeyValue(w, "Source", snap.Source)
				printKeyValue(w, "Download", humanize.IBytes(uint64(snap.Size)))
			}
			printKeyValue(w, "Max age", cfg.CacheMaxAge.String())
			printKeyValue(w, "Disk usage", humanize.IBytes(uint64(dirSize(cfg.CacheDir))))
			printKeyValue(w, "API cache", cfg.APICache)
			return nil
		},
	}
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
