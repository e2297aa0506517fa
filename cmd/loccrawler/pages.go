package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/collection"
)

func newPagesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <collection>...",
		Short: "List the listing pages of collections",
		Long: `Follows the "next" cursors of each collection and prints the relative
path of every listing page visited, one per line. Nothing is written to the
record document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := opts.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			client, err := newHTTPClient(cfg, logger)
			if err != nil {
				return err
			}
			walker := collection.New(client, logger.Named("walker"))
			out := cmd.OutOrStdout()
			for _, id := range args {
				paths, err := walker.Pages(cmd.Context(), id)
				for _, p := range paths {
					if _, werr := fmt.Fprintln(out, p); werr != nil {
						return fmt.Errorf("write page list: %w", werr)
					}
				}
				if err != nil {
					return fmt.Errorf("list pages of %q: %w", id, err)
				}
				logger.Info("collection pages listed", zap.String("collection", id), zap.Int("pages", len(paths)))
			}
			return nil
		},
	}
}
