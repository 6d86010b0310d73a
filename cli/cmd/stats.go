package cmd

import (
	"fmt"
	"math"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canvass/bitstats"
	"github.com/justapithecus/canvass/cli/reader"
)

// StatsCommand returns the bit statistics command. It computes flip counts
// and adjacent-bit correlations for one identifier directly from the
// capture, without spawning the analysis worker.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show bit flip counts and correlations for an identifier",
		Flags: []cli.Flag{
			CaptureFlag,
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Arbitration identifier, hex (0x1F3) or decimal",
				Required: true,
			},
		},
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	identifier, err := parseIdentifier(c.String("id"))
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
	size := frames[0].Length
	for _, f := range frames {
		if f.Length != size {
			return cli.Exit(fmt.Sprintf("can't process identifier 0x%X, whose frame sizes differ", identifier), exitAnalysisError)
		}
	}
	if size == 0 {
		return cli.Exit(fmt.Sprintf("identifier 0x%X carries no payload", identifier), exitAnalysisError)
	}

	bodies := capture.Bodies(identifier)
	bitWidth := int(size) * 8

	flips, err := bitstats.CountBitFlips(bodies, bitWidth)
	if err != nil {
		return cli.Exit(err.Error(), exitAnalysisError)
	}
	correlations, err := bitstats.BitFlipCorrelation(bodies, bitWidth)
	if err != nil {
		return cli.Exit(err.Error(), exitAnalysisError)
	}

	fmt.Printf("identifier 0x%X: %d frames, %d bits\n\n", identifier, len(frames), bitWidth)
	fmt.Println(formatFlips(flips))
	fmt.Println(formatCorrelations(correlations))
	return nil
}

// formatFlips renders flip counts eight bits per row, most significant
// first, matching the layout art's bit order.
func formatFlips(flips []uint64) string {
	var b strings.Builder
	b.WriteString("bit flips (MSB first):\n")
	for row := 0; row*8 < len(flips); row++ {
		b.WriteString(fmt.Sprintf("  byte %d:", row))
		for col := 0; col < 8; col++ {
			bit := row*8 + (7 - col)
			if bit >= len(flips) {
				continue
			}
			b.WriteString(fmt.Sprintf(" %6d", flips[bit]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatCorrelations lists the Pearson coefficient between each adjacent
// bit pair. NaN means one of the bits never changed.
func formatCorrelations(correlations []float64) string {
	var b strings.Builder
	b.WriteString("adjacent bit correlations:\n")
	for i, r := range correlations {
		label := fmt.Sprintf("bit %d ~ bit %d", i, i+1)
		if math.IsNaN(r) {
			b.WriteString(fmt.Sprintf("  %-16s    n/a\n", label))
		} else {
			b.WriteString(fmt.Sprintf("  %-16s %+.4f\n", label, r))
		}
	}
	return b.String()
}
