package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canvass/dbc"
	"github.com/justapithecus/canvass/layout"
)

// LayoutCommand returns the layout rendering command. It reads an existing
// DBC file and prints the ASCII bit layout of its first message.
func LayoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "layout",
		Usage:     "Render the bit layout of a DBC message",
		ArgsUsage: "<schema.dbc>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "highlight",
				Usage: "Signal letter to highlight (a-z)",
			},
		},
		Action: layoutAction,
	}
}

func layoutAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one DBC file argument", exitUsageError)
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	message, err := dbc.Parse(string(data))
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	highlight := byte(0)
	if h := c.String("highlight"); h != "" {
		if len(h) != 1 || h[0] < 'a' || h[0] > 'z' {
			return cli.Exit("highlight must be a single letter a-z", exitUsageError)
		}
		highlight = h[0]
	}

	art, err := layout.Render(message, highlight)
	if err != nil {
		return cli.Exit(err.Error(), exitAnalysisError)
	}

	fmt.Println(art)
	return nil
}
