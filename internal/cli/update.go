package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/snapshot"
)

// updateCommand creates the "update" command.
func (c *CLI) updateCommand() *cobra.Command {
	var ifStale bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the latest crates.io database dump",
		Long: `Download the latest crates.io database dump and make it the local snapshot.

The dump is several hundred megabytes. Only the ownership tables are kept.
A failed download leaves the previous snapshot in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.settings()
			store := c.newStore()

			if cur := store.CurrentSnapshot(); ifStale && store.IsFresh(cur, cfg.CacheMaxAge.Std()) {
				printInfo("Snapshot is fresh (downloaded %s)", humanize.Time(cur.AcquiredAt))
				return nil
			}

			fetcher := c.newFetcher(store)
			prog := newProgress(c.Logger)
			spinner := newSpinner(ctx, "Downloading "+fetcher.URL()+"...")
			spinner.Start()
			snap, err := snapshot.Refresh(ctx, fetcher, store, cfg.Retry.Policy())
			if err != nil {
				spinner.StopWithError("Snapshot update failed")
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return updateError(err)
			}
			spinner.Stop()
			prog.done("Snapshot updated")

			printSuccess("Snapshot %s installed", snap.Generation)
			printDetail("%s downloaded, acquired %s", humanize.IBytes(uint64(snap.Size)), snap.AcquiredAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ifStale, "if-stale", false, "only download when the snapshot is older than --cache-max-age")
	return cmd
}

// updateError attaches a user-facing code to refresh failures.
func updateError(err error) error {
	var (
		fetchErr *snapshot.FetchError
		storeErr *snapshot.StoreError
	)
	switch {
	case errors.As(err, &fetchErr):
		return apperrors.Wrap(apperrors.ErrCodeFetchFailed, err, "download registry dump")
	case errors.As(err, &storeErr):
		return apperrors.Wrap(apperrors.ErrCodeStoreFailed, err, "install snapshot")
	}
	return fmt.Errorf("update snapshot: %w", err)
}
