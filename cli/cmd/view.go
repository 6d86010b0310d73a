package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canvass/cli/reader"
	"github.com/justapithecus/canvass/cli/tui"
	"github.com/justapithecus/canvass/runtime"
	"github.com/justapithecus/canvass/types"
)

// ViewCommand returns the interactive capture viewer.
func ViewCommand() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "Browse a capture and analyze identifiers interactively",
		Flags: append(AnalysisFlags(),
			&cli.StringFlag{
				Name:  "save",
				Usage: "Target path for saved schemas (never overwrites)",
			},
		),
		Action: viewAction,
	}
}

func viewAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if v := c.String("save"); v != "" {
		cfg.SavePath = v
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	capture, err := reader.ParseFile(c.String("capture"))
	if err != nil {
		return err
	}

	coordinator := runtime.NewCoordinator(runtime.Config{
		Factory: buildAnalyzerFactory(cfg),
		Logger:  logger,
	})

	identifiers := capture.Identifiers()
	frames := make(map[uint32][]types.Frame, len(identifiers))
	for _, id := range identifiers {
		frames[id] = capture.FramesFor(id)
	}

	return tui.RunAnalyzeTUI(coordinator, identifiers, frames, cfg.SavePath)
}
