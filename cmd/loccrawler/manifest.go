package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/record"
)

func newManifestCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write a CSV of captured images for the downloader",
		Long: `Reads the record document and writes one CSV row per captured page:
collection, item, page, image_key, url, mimetype. image_key is the file
name the image downloader caches the image under.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := opts.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			backend, closeBackend, err := openBackend(cmd.Context(), cfg.Record, logger)
			if err != nil {
				return err
			}
			defer closeBackend()

			store, err := record.Load(cmd.Context(), backend)
			if err != nil {
				return err
			}

			rows, err := writeManifest(store, output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger.Info("manifest written",
				zap.String("record", backend.URI()),
				zap.String("rows", humanize.Comma(int64(rows))),
				zap.String("output", output),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// writeManifest writes to path, or to stdout when path is empty or "-".
func writeManifest(store *record.Store, path string, stdout io.Writer) (int, error) {
	if path == "" || path == "-" {
		return store.WriteManifest(stdout)
	}
	f, err := os.Create(path) // #nosec G304 -- operator-supplied output path
	if err != nil {
		return 0, fmt.Errorf("create manifest: %w", err)
	}
	rows, err := store.WriteManifest(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close manifest: %w", cerr)
	}
	return rows, err
}
