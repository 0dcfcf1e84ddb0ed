package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/fatih/color"
	"github.com/internetarchive/Talos/internal/pkg/config"
	slogmulti "github.com/samber/slog-multi"
)

var rotatedLogFile *rotatedFile

type logConfig struct {
	FileConfig    *logfileConfig
	StdoutEnabled bool
	StdoutLevel   slog.Level
	StderrEnabled bool
	StderrLevel   slog.Level
	NoColor       bool
}

type logfileConfig struct {
	Dir          string
	Prefix       string
	Level        slog.Level
	Rotate       bool
	RotatePeriod time.Duration
}

// makeConfig builds the logging configuration, falling back to sane
// defaults when the global config is not initialized yet (tests).
func makeConfig() *logConfig {
	if config.Get() == nil {
		return &logConfig{
			FileConfig:    nil,
			StdoutEnabled: true,
			StdoutLevel:   slog.LevelInfo,
			StderrEnabled: true,
			StderrLevel:   slog.LevelError,
		}
	}

	fileRotatePeriod, err := time.ParseDuration(config.Get().LogFileRotation)
	if err != nil && config.Get().LogFileRotation != "" {
		fileRotatePeriod = 1 * time.Hour
	}

	var logFileOutputDir string
	if logFileOutputDir = config.Get().LogFileOutputDir; logFileOutputDir == "" {
		logFileOutputDir = fmt.Sprintf("%s/logs", config.Get().JobPath)
	}

	var logFileConfig *logfileConfig
	if !config.Get().NoFileLogging {
		prefix := config.Get().LogFilePrefix
		if prefix == "" {
			prefix = "talos"
		}
		logFileConfig = &logfileConfig{
			Dir:          logFileOutputDir,
			Prefix:       prefix,
			Level:        parseLevel(config.Get().LogFileLevel),
			Rotate:       config.Get().LogFileRotation != "",
			RotatePeriod: fileRotatePeriod,
		}
	}

	return &logConfig{
		FileConfig:    logFileConfig,
		StdoutEnabled: !config.Get().NoStdoutLogging,
		StdoutLevel:   parseLevel(config.Get().StdoutLogLevel),
		StderrEnabled: true,
		StderrLevel:   slog.LevelError,
		NoColor:       config.Get().NoColorLogging,
	}
}

func parseLevel(level string) slog.Level {
	lowercaseLevel := strings.ToLower(level)
	switch lowercaseLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newColorOptions(level slog.Level) *slogcolor.Options {
	return &slogcolor.Options{
		Level:         level,
		TimeFormat:    time.RFC3339,
		SrcFileMode:   slogcolor.ShortFile,
		SrcFileLength: 20,
		MsgPrefix:     color.HiWhiteString("| "),
		MsgColor:      color.New().Add(color.FgYellow),
		LevelTags:     slogcolor.DefaultLevelTags,
	}
}

func (c *logConfig) newHandler(out io.Writer, level slog.Level) slog.Handler {
	if c.NoColor {
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
	return slogcolor.NewHandler(out, newColorOptions(level))
}

func (c *logConfig) makeMultiLogger() *slog.Logger {
	baseRouter := slogmulti.Router()

	// If Stdout and Stderr are both enabled we log every level below stderr
	// level to stdout and the rest (above) to stderr
	if c.StdoutEnabled && c.StderrEnabled {
		stderrHandler := c.newHandler(os.Stderr, c.StderrLevel)
		baseRouter = baseRouter.Add(stderrHandler, func(_ context.Context, r slog.Record) bool {
			return r.Level >= c.StderrLevel
		})

		stdoutHandler := c.newHandler(os.Stdout, c.StdoutLevel)
		baseRouter = baseRouter.Add(stdoutHandler, func(_ context.Context, r slog.Record) bool {
			return r.Level >= c.StdoutLevel && r.Level < c.StderrLevel
		})
	} else if c.StdoutEnabled {
		stdoutHandler := c.newHandler(os.Stdout, c.StdoutLevel)
		baseRouter = baseRouter.Add(stdoutHandler, func(_ context.Context, r slog.Record) bool {
			return r.Level >= c.StdoutLevel
		})
	}

	if c.FileConfig != nil {
		rotatedLogFile = newRotatedFile(c.FileConfig)
		fileHandler := slog.NewTextHandler(rotatedLogFile, &slog.HandlerOptions{Level: c.FileConfig.Level})
		baseRouter = baseRouter.Add(fileHandler, func(_ context.Context, r slog.Record) bool {
			return r.Level >= c.FileConfig.Level
		})
	}

	return slog.New(baseRouter.Handler())
}
