// Package dbc reads and writes the subset of the DBC textual database
// format needed to persist recovered message schemas: one BO_ message
// definition with its SG_ signal lines.
package dbc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/justapithecus/canvass/types"
)

// ErrNoMessage is returned when the input contains no BO_ definition.
var ErrNoMessage = errors.New("no message definition found")

var (
	messagePattern = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+(\w+)\s*$`)
	signalPattern  = regexp.MustCompile(
		`^\s*SG_\s+(\w+)\s*(m\d+|M)?\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*` +
			`\(([^,]+),([^)]+)\)\s*\[([^|]+)\|([^\]]+)\]\s*"([^"]*)"\s+(.+)$`)
)

// Parse loads the first message definition from DBC text. Signal order
// follows the file, and the resulting message is validated before return.
func Parse(text string) (*types.Message, error) {
	var message *types.Message

	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")

		if m := messagePattern.FindStringSubmatch(line); m != nil {
			if message != nil {
				// Only the first message is loaded; a recovered database
				// holds exactly one.
				break
			}
			identifier, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid message identifier %q: %w", lineNo+1, m[1], err)
			}
			length, err := strconv.ParseUint(m[3], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid message length %q: %w", lineNo+1, m[3], err)
			}
			message = &types.Message{
				Identifier:  uint32(identifier),
				Name:        m[2],
				LengthBytes: uint(length),
			}
			continue
		}

		if message == nil || !strings.HasPrefix(strings.TrimSpace(line), "SG_") {
			continue
		}
		sig, err := parseSignal(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		message.Signals = append(message.Signals, sig)
	}

	if message == nil {
		return nil, ErrNoMessage
	}
	if err := message.Validate(); err != nil {
		return nil, err
	}
	return message, nil
}

func parseSignal(line string) (types.Signal, error) {
	m := signalPattern.FindStringSubmatch(line)
	if m == nil {
		return types.Signal{}, fmt.Errorf("malformed signal line %q", strings.TrimSpace(line))
	}

	start, err := strconv.ParseUint(m[3], 10, 16)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid start bit %q: %w", m[3], err)
	}
	length, err := strconv.ParseUint(m[4], 10, 16)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid bit length %q: %w", m[4], err)
	}
	scale, err := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid scale %q: %w", m[7], err)
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(m[8]), 64)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid offset %q: %w", m[8], err)
	}
	minimum, err := strconv.ParseFloat(strings.TrimSpace(m[9]), 64)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid minimum %q: %w", m[9], err)
	}
	maximum, err := strconv.ParseFloat(strings.TrimSpace(m[10]), 64)
	if err != nil {
		return types.Signal{}, fmt.Errorf("invalid maximum %q: %w", m[10], err)
	}

	byteOrder := types.BigEndian
	if m[5] == "1" {
		byteOrder = types.LittleEndian
	}

	sig := types.Signal{
		Name:      m[1],
		Start:     uint(start),
		Length:    uint(length),
		ByteOrder: byteOrder,
		Signed:    m[6] == "-",
		Scale:     scale,
		Offset:    offset,
		Unit:      m[11],
	}
	// [0|0] means no range in DBC.
	if minimum != 0 || maximum != 0 {
		sig.Minimum = &minimum
		sig.Maximum = &maximum
	}
	return sig, nil
}

// Dump serializes a message to DBC text. The output parses back via Parse
// into an equivalent message.
func Dump(m *types.Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	name := m.Name
	if name == "" {
		name = fmt.Sprintf("MSG_%d", m.Identifier)
	}

	var b strings.Builder
	b.WriteString("VERSION \"\"\n\n\nNS_ :\n\nBS_:\n\nBU_: Vector__XXX\n\n\n")
	fmt.Fprintf(&b, "BO_ %d %s: %d Vector__XXX\n", m.Identifier, name, m.LengthBytes)

	for i := range m.Signals {
		sig := &m.Signals[i]

		order := "0"
		if sig.ByteOrder == types.LittleEndian {
			order = "1"
		}
		sign := "+"
		if sig.Signed {
			sign = "-"
		}
		var minimum, maximum float64
		if sig.Minimum != nil {
			minimum = *sig.Minimum
		}
		if sig.Maximum != nil {
			maximum = *sig.Maximum
		}

		fmt.Fprintf(&b, " SG_ %s : %d|%d@%s%s (%s,%s) [%s|%s] \"%s\" Vector__XXX\n",
			sig.Name, sig.Start, sig.Length, order, sign,
			formatNumber(sig.Scale), formatNumber(sig.Offset),
			formatNumber(minimum), formatNumber(maximum), sig.Unit)
	}

	return b.String(), nil
}

// formatNumber renders a float the way DBC files conventionally do:
// integral values without a decimal point.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
