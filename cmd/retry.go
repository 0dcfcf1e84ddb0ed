package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/crawl"
)

func retryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "retry",
		Short: "Reprocess failed pages still under the attempt bound",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("viper config is nil")
			}
			return config.GenerateCrawlConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := crawl.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return c.RetryFailedPages(ctx)
		},
	}

	addHarvestFlags(c)
	return c
}
