package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/config"
	"github.com/JakeFAU/loc-crawler/internal/logging"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "loccrawler",
		Short: "Incremental crawler for archival image catalogs.",
		Long: `loccrawler walks paginated catalog collections, captures a minimized
record (date, largest image, citations) for every item page and merges it
into a resumable record document. Pages captured by an earlier run are never
fetched again.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newCrawlCmd(opts), newManifestCmd(opts), newPagesCmd(opts))
	return cmd
}

// setup loads the configuration and builds the logger for a subcommand. The
// returned cleanup flushes the logger.
func (o *options) setup() (config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	cleanup := func() { _ = logging.Sync(logger) }
	return cfg, logger, cleanup, nil
}
