// Package cmd provides CLI commands for the canvass binary.
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canvass/cli/config"
	"github.com/justapithecus/canvass/log"
	"github.com/justapithecus/canvass/runtime"
)

// Shared flags for commands that run analysis.
var (
	// ConfigFlag points at a canvass.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"C"},
		Usage:   "Path to canvass.yaml config file",
	}

	// CaptureFlag names the candump log to load.
	CaptureFlag = &cli.StringFlag{
		Name:     "capture",
		Aliases:  []string{"f"},
		Usage:    "Path to candump log capture",
		Required: true,
	}

	// AnalyzerFlag names the external analysis routine.
	AnalyzerFlag = &cli.StringFlag{
		Name:  "analyzer",
		Usage: "Path to the analysis worker binary",
		Value: "canvass-analyzer",
	}

	// LogLevelFlag sets the zap log level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}
)

// AnalysisFlags returns the flags shared by commands that spawn workers.
func AnalysisFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		CaptureFlag,
		AnalyzerFlag,
		LogLevelFlag,
		&cli.StringSliceFlag{
			Name:  "analyzer-arg",
			Usage: "Extra argument passed to the analysis worker (repeatable)",
		},
		&cli.StringFlag{
			Name:  "scratch-dir",
			Usage: "Parent directory for per-job scratch space",
		},
	}
}

// loadConfig resolves the effective config: file values first, then flag
// overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	if c.IsSet("analyzer") || cfg.Analyzer == "" {
		cfg.Analyzer = c.String("analyzer")
	}
	if args := c.StringSlice("analyzer-arg"); len(args) > 0 {
		cfg.AnalyzerArgs = args
	}
	if v := c.String("scratch-dir"); v != "" {
		cfg.ScratchDir = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// buildLogger constructs the zap logger for the effective log level.
func buildLogger(cfg *config.Config) (*log.Logger, error) {
	logger, err := log.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return logger, nil
}

// buildAnalyzerFactory assembles the worker command line from config.
func buildAnalyzerFactory(cfg *config.Config) runtime.AnalyzerFactory {
	command := append([]string{cfg.Analyzer}, cfg.AnalyzerArgs...)
	return runtime.NewProcessAnalyzerFactory(&runtime.AnalyzerConfig{
		Command:    command,
		ScratchDir: cfg.ScratchDir,
	})
}

// parseIdentifier accepts hex (0x1F3) or decimal (499) arbitration
// identifiers.
func parseIdentifier(s string) (uint32, error) {
	text := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
		base = 16
	}
	id, err := strconv.ParseUint(text, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: expected hex (0x1F3) or decimal", s)
	}
	return uint32(id), nil
}
