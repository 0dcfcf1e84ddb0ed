package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for our program, parsed from various sources
// The `mapstructure` tags are used to map the fields to the viper configuration
type Config struct {
	Job     string `mapstructure:"job"`
	JobPath string

	// Crawl range and pacing
	SearchURLTemplate string `mapstructure:"search-url-template"`
	StartPage         int    `mapstructure:"start-page"`
	EndPage           int    `mapstructure:"end-page"`
	PageDelay         int    `mapstructure:"page-delay"`
	PageCooldown      int    `mapstructure:"page-cooldown"`

	// Pipeline sizing
	WorkersCount   int `mapstructure:"workers"`
	SessionsCount  int `mapstructure:"sessions"`
	FilesPerSubdir int `mapstructure:"files-per-subdir"`

	// HTTP behavior
	UserAgent   string `mapstructure:"user-agent"`
	Cookies     string `mapstructure:"cookies"`
	HTTPTimeout int    `mapstructure:"http-timeout"`
	MaxRetry    int    `mapstructure:"max-retry"`

	// Storage
	ArchiveDir       string `mapstructure:"archive-dir"`
	DBFile           string `mapstructure:"db-file"`
	MinSpaceRequired int    `mapstructure:"min-space-required"`

	// UseSeencheck exists just for convenience of not checking
	// !DisableSeencheck in the rest of the code, to make the code clearer
	DisableSeencheck bool `mapstructure:"disable-seencheck"`
	UseSeencheck     bool

	// Supervisor
	RestartInterval int `mapstructure:"restart-interval"`

	// Retry pass
	MaxPageAttempts int `mapstructure:"max-page-attempts"`

	// Logging
	NoStdoutLogging  bool   `mapstructure:"no-stdout-log"`
	NoFileLogging    bool   `mapstructure:"no-log-file"`
	NoColorLogging   bool   `mapstructure:"no-color"`
	StdoutLogLevel   string `mapstructure:"log-level"`
	LogFileLevel     string `mapstructure:"log-file-level"`
	LogFileOutputDir string `mapstructure:"log-file-output-dir"`
	LogFilePrefix    string `mapstructure:"log-file-prefix"`
	LogFileRotation  string `mapstructure:"log-file-rotation"`

	// Prometheus and metrics
	Prometheus       bool   `mapstructure:"prometheus"`
	PrometheusPrefix string `mapstructure:"prometheus-prefix"`
	MetricsPort      int    `mapstructure:"metrics-port"`
}

var (
	config *Config
	once   sync.Once
)

// InitConfig initializes the configuration
// Flags -> Env -> Config file
// Latest has precedence over the rest
func InitConfig() error {
	var err error
	once.Do(func() {
		config = &Config{}

		// Check if a config file is provided via flag
		if configFile := viper.GetString("config-file"); configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			home, homeErr := os.UserHomeDir()
			if homeErr != nil {
				fmt.Println(homeErr)
				os.Exit(1)
			}

			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName("talos-config")
		}

		viper.SetEnvPrefix("TALOS")
		replacer := strings.NewReplacer("-", "_", ".", "_")
		viper.SetEnvKeyReplacer(replacer)
		viper.AutomaticEnv()

		if err = viper.ReadInConfig(); err == nil {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
		err = nil

		handleFlagsAliases()

		// Unmarshal the config into the Config struct
		err = viper.Unmarshal(config)
	})
	return err
}

// BindFlags binds the flags to the viper configuration
// This is needed because viper doesn't support same flag name accross multiple commands
// Details here: https://github.com/spf13/viper/issues/375#issuecomment-794668149
func BindFlags(flagSet *pflag.FlagSet) {
	flagSet.VisitAll(func(flag *pflag.Flag) {
		viper.BindPFlag(flag.Name, flag)
	})
}

// Get returns the config struct
func Get() *Config {
	return config
}

// GenerateCrawlConfig derives the job paths and fills the defaults that
// depend on other fields.
func GenerateCrawlConfig() error {
	// If the job name isn't specified, we generate a random name
	if config.Job == "" {
		UUID, err := uuid.NewUUID()
		if err != nil {
			slog.Error("unable to generate job UUID", "error", err)
			return err
		}

		config.Job = UUID.String()
	}

	config.JobPath = path.Join("jobs", config.Job)
	config.UseSeencheck = !config.DisableSeencheck

	if config.ArchiveDir == "" {
		config.ArchiveDir = path.Join(config.JobPath, "archive")
	}

	if config.DBFile == "" {
		config.DBFile = path.Join(config.JobPath, "talos.db")
	}

	// The session pool serves three concurrent stages, so it has to be
	// larger than a single stage's worker count to avoid starvation.
	if config.SessionsCount == 0 {
		config.SessionsCount = config.WorkersCount*3 + 2
	}

	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; archive.org_bot +http://archive.org/details/archive.org_bot) Talos"
	}

	if config.EndPage > 0 && config.EndPage < config.StartPage {
		return fmt.Errorf("end-page %d is below start-page %d", config.EndPage, config.StartPage)
	}

	return nil
}

// ParseCookies turns the configured "name=value; name2=value2" string into
// cookies usable on a jar.
func (c *Config) ParseCookies() []*http.Cookie {
	var cookies []*http.Cookie

	for _, pair := range strings.Split(c.Cookies, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		cookies = append(cookies, &http.Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}

	return cookies
}

func handleFlagsAliases() {
	// For each flag we want to alias, we check if the original flag is at default and if the alias is not
	// If so, we set the original flag to the value of the alias
	if viper.GetInt("w") != 0 && viper.GetInt("workers") == 0 {
		viper.Set("workers", viper.GetInt("w"))
	}

	if viper.GetInt("msr") != 0 && viper.GetInt("min-space-required") == 0 {
		viper.Set("min-space-required", viper.GetInt("msr"))
	}
}
