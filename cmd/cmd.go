package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/internetarchive/Talos/internal/pkg/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "talos",
	Short: "Resumable photo archive harvester 📷",
	Long: `Talos walks a photo site's search pages sequentially, pipes every
discovered image through a metadata/download/persist pipeline, and keeps
enough durable state to resume exactly where it stopped.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Bind this command's flags, then initialize config: cobra has
		// parsed the command line by now.
		config.BindFlags(cmd.Flags())
		if err := config.InitConfig(); err != nil {
			return fmt.Errorf("error initializing config: %w", err)
		}

		cfg = config.Get()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Run the root command
func Run() error {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("config-file", "", "config file (default is $HOME/talos-config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "stdout log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd.Execute()
}
