package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/crawl"
	"github.com/internetarchive/Talos/internal/pkg/fetcher"
	"github.com/internetarchive/Talos/internal/pkg/log"
	"github.com/internetarchive/Talos/internal/pkg/stats"
	"github.com/internetarchive/Talos/internal/pkg/supervisor"
)

func crawlCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "crawl",
		Short: "Run the sequential page harvest loop",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("viper config is nil")
			}
			return config.GenerateCrawlConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl()
		},
	}

	addHarvestFlags(c)
	return c
}

// addHarvestFlags defines the flags shared by the crawl and retry commands.
func addHarvestFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("search-url-template", "", "search page URL with a %d placeholder for the page number")
	cmd.PersistentFlags().Int("start-page", 1, "First page to process.")
	cmd.PersistentFlags().Int("end-page", 0, "Last page to process, 0 means until an empty page.")
	cmd.PersistentFlags().Int("page-delay", 0, "Seconds to sleep between pages.")
	cmd.PersistentFlags().Int("page-cooldown", 300, "Seconds to sleep after a transient page failure.")
	cmd.PersistentFlags().String("job", "", "Job name to use, will determine the path for the state database, seencheck database and log files.")
	cmd.PersistentFlags().IntP("workers", "w", 4, "Number of concurrent metadata workers; also the download worker ceiling.")
	cmd.PersistentFlags().Int("sessions", 0, "Size of the HTTP session pool, 0 derives it from the worker count.")
	cmd.PersistentFlags().Int("files-per-subdir", 1000, "Files per numbered archive subdirectory.")
	cmd.PersistentFlags().String("user-agent", "", "User agent to use when requesting URLs.")
	cmd.PersistentFlags().String("cookies", "", "Cookies to send with every request, as 'name=value; name2=value2'.")
	cmd.PersistentFlags().Int("http-timeout", 60, "Number of seconds to wait before timing out a request.")
	cmd.PersistentFlags().Int("max-retry", 3, "Number of retries on transient HTTP errors.")
	cmd.PersistentFlags().String("archive-dir", "", "Directory to store downloaded files in.")
	cmd.PersistentFlags().String("db-file", "", "Path of the SQLite state database.")
	cmd.PersistentFlags().Int("min-space-required", 2, "Minimum free disk space in GB below which the crawl refuses to run.")
	cmd.PersistentFlags().Bool("disable-seencheck", false, "Disable the persistent duplicate filter.")
	cmd.PersistentFlags().Int("restart-interval", 0, "Seconds after which the process replaces itself, 0 disables scheduled restarts.")
	cmd.PersistentFlags().Int("max-page-attempts", 3, "Attempts before a failed page becomes terminal.")

	// Logging flags
	cmd.PersistentFlags().Bool("no-stdout-log", false, "Disable stdout logging.")
	cmd.PersistentFlags().Bool("no-log-file", false, "Disable file logging.")
	cmd.PersistentFlags().String("log-file-level", "info", "File log level (debug, info, warn, error).")
	cmd.PersistentFlags().String("log-file-output-dir", "", "Directory to write log files to, defaults to <job>/logs.")
	cmd.PersistentFlags().String("log-file-prefix", "talos", "Prefix for log file names.")
	cmd.PersistentFlags().String("log-file-rotation", "", "Log file rotation period as a duration, e.g. 1h.")

	// Metrics flags
	cmd.PersistentFlags().Bool("prometheus", false, "Expose Prometheus metrics over HTTP.")
	cmd.PersistentFlags().String("prometheus-prefix", "talos_", "Prefix for the exported Prometheus metrics.")
	cmd.PersistentFlags().Int("metrics-port", 9443, "Port for the metrics endpoint.")
}

func runCrawl() error {
	c, err := crawl.New(cfg)
	if err != nil {
		return err
	}

	if cfg.Prometheus {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", stats.PrometheusHandler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("metrics endpoint failed", "err", err.Error())
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// after the first signal, restore default handling so a second one
	// kills the process instead of waiting on the graceful stop
	go func() {
		<-ctx.Done()
		cancel()
	}()

	fatalTrigger := &supervisor.FatalErrTrigger{}
	sup := supervisor.New(
		supervisor.ExecAction{},
		c.CurrentPage,
		30*time.Second,
		&supervisor.AgeTrigger{Started: time.Now(), MaxAge: time.Duration(cfg.RestartInterval) * time.Second},
		fatalTrigger,
	)
	sup.Start()

	runErr := c.Run(ctx)
	sup.Stop()

	log.Info("run summary", "stats", stats.GetMap())

	// Close flushes the state database before any process replacement.
	c.Close()

	if runErr != nil && errors.Is(runErr, fetcher.ErrFatalHTTP) {
		fatalTrigger.Fire(runErr)
		sup.Evaluate()
		// only reached when the exec itself failed
		return runErr
	}

	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return nil
	}

	return runErr
}
