package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canvass/cli/reader"
	"github.com/justapithecus/canvass/dbc"
	"github.com/justapithecus/canvass/layout"
	"github.com/justapithecus/canvass/runtime"
)

// Exit codes for headless analysis.
const (
	exitSuccess       = 0
	exitAnalysisError = 1
	exitUsageError    = 2
)

// AnalyzeCommand returns the headless analysis command. It runs one
// identifier through the external analysis routine and prints the
// recovered schema.
func AnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze one identifier and print the recovered schema",
		Flags: append(AnalysisFlags(),
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Arbitration identifier, hex (0x1F3) or decimal",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "save",
				Usage: "Write the recovered schema to this path (never overwrites)",
			},
			&cli.BoolFlag{
				Name:  "layout",
				Usage: "Print the bit layout alongside the schema",
			},
		),
		Action: analyzeAction,
	}
}

func analyzeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	identifier, err := parseIdentifier(c.String("id"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	capture, err := reader.ParseFile(c.String("capture"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	frames := capture.FramesFor(identifier)
	if len(frames) == 0 {
		return cli.Exit(fmt.Sprintf("identifier 0x%X not present in capture", identifier), exitUsageError)
	}

	coordinator := runtime.NewCoordinator(runtime.Config{
		Factory: buildAnalyzerFactory(cfg),
		Logger:  logger,
	})

	// Ctrl+C kills the worker instead of orphaning it.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		coordinator.Cancel()
		os.Exit(exitUsageError)
	}()

	coordinator.Focus(identifier, frames)
	notification := <-coordinator.Notifications()

	if !notification.Outcome.OK() {
		return cli.Exit(fmt.Sprintf("analysis failed: %s", notification.Outcome.Reason), exitAnalysisError)
	}

	schema := notification.Outcome.Schema
	text, err := dbc.Dump(schema)
	if err != nil {
		return cli.Exit(err.Error(), exitAnalysisError)
	}
	fmt.Print(text)

	if c.Bool("layout") {
		art, err := layout.Render(schema, 0)
		if err != nil {
			return cli.Exit(err.Error(), exitAnalysisError)
		}
		fmt.Println()
		fmt.Println(art)
	}

	if path := c.String("save"); path != "" {
		if err := dbc.Save(schema, path); err != nil {
			return cli.Exit(err.Error(), exitAnalysisError)
		}
		fmt.Fprintf(os.Stderr, "saved schema to %s\n", path)
	}

	return cli.Exit("", exitSuccess)
}
