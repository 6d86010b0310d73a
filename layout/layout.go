// Package layout renders a message's signal bit fields as an ASCII bit
// diagram. Rendering is a pure function: identical schema and highlight
// input produces byte-identical output.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/justapithecus/canvass/types"
)

// Each bit occupies three characters in a signal marker row; one byte is
// therefore a 24-character chunk.
const (
	cellWidth = 3
	byteWidth = 8 * cellWidth
)

// ErrTooManySignals is returned when a message has more signals than the
// 26 lowercase letters available for labelling.
var ErrTooManySignals = errors.New("cannot label more than 26 signals")

// Letters assigns one lowercase letter per signal, in declared order: the
// i-th byte of the result labels m.Signals[i]. The assignment is
// deterministic for a given message.
func Letters(m *types.Message) (string, error) {
	if len(m.Signals) > 26 {
		return "", fmt.Errorf("%w: message 0x%X has %d signals", ErrTooManySignals, m.Identifier, len(m.Signals))
	}
	var b strings.Builder
	for i := range m.Signals {
		b.WriteByte(byte('a' + i))
	}
	return b.String(), nil
}

// Render formats the message as an ASCII bit diagram. Each signal is drawn
// as a head marker '<', a run of fill characters, and its letter at the
// tail; the fill is '=' for the signal whose letter equals highlight and
// '-' otherwise. Pass 0 for no highlight. Overlapping signal cells are
// marked 'X'.
func Render(m *types.Message, highlight byte) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	letters, err := Letters(m)
	if err != nil {
		return "", err
	}

	rows := signalRows(m, letters, highlight)
	union := unionRow(rows, letters)
	byteLines := splitByteLines(union, m.LengthBytes)
	lines, numberWidth := numberByteLines(separateBits(byteLines, letters))
	lines = addHorizontalLines(lines, numberWidth)
	lines = addHeaderLines(lines, numberWidth)
	lines = addByteAxis(lines)

	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Join(lines, "\n"), nil
}

// signalRows builds one marker row per signal: big-endian signals first,
// then little-endian ones, each in declared order.
func signalRows(m *types.Message, letters string, highlight byte) []string {
	var rows []string

	for i := range m.Signals {
		sig := &m.Signals[i]
		if sig.ByteOrder != types.BigEndian {
			continue
		}
		letter := letters[i]
		fill := fillChar(letter, highlight)

		var b strings.Builder
		b.WriteString(strings.Repeat("   ", int(sig.StartBit())))
		b.WriteByte('<')
		b.WriteString(strings.Repeat(string(fill), cellWidth*int(sig.Length)-2))
		b.WriteByte(letter)
		rows = append(rows, b.String())
	}

	for i := range m.Signals {
		sig := &m.Signals[i]
		if sig.ByteOrder != types.LittleEndian {
			continue
		}
		letter := letters[i]
		fill := fillChar(letter, highlight)

		// Little-endian signals are built start-to-end, padded out to the
		// byte boundary, then reversed per 24-character byte chunk so the
		// row matches the physical bit ordering within each byte.
		var b strings.Builder
		b.WriteString(strings.Repeat("   ", int(sig.Start)))
		b.WriteByte(letter)
		b.WriteString(strings.Repeat(string(fill), cellWidth*int(sig.Length)-2))
		b.WriteByte('<')
		if end := sig.Start + sig.Length; end%8 != 0 {
			b.WriteString(strings.Repeat("   ", int(8-end%8)))
		}
		rows = append(rows, reverseByteChunks(b.String()))
	}

	return rows
}

func fillChar(letter, highlight byte) byte {
	if letter == highlight {
		return '='
	}
	return '-'
}

// reverseByteChunks reverses each consecutive 24-character chunk of s.
func reverseByteChunks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i += byteWidth {
		end := i + byteWidth
		if end > len(s) {
			end = len(s)
		}
		chunk := []byte(s[i:end])
		for l, r := 0, len(chunk)-1; l < r; l, r = l+1, r-1 {
			chunk[l], chunk[r] = chunk[r], chunk[l]
		}
		b.Write(chunk)
	}
	return b.String()
}

// unionRow overlays all signal rows into a single line. A column covered by
// more than one marker becomes 'X'; a column covered by exactly one copies
// that marker through; an uncovered column stays blank.
func unionRow(rows []string, letters string) string {
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width%byteWidth != 0 {
		width += byteWidth - width%byteWidth
	}

	var union strings.Builder
	union.Grow(width)
	for col := 0; col < width; col++ {
		covered := 0
		nonSpace := byte(' ')
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			c := row[col]
			if c == ' ' {
				continue
			}
			if nonSpace == ' ' {
				nonSpace = c
			}
			if c == '<' || c == '-' || c == '=' || strings.IndexByte(letters, c) >= 0 {
				covered++
			}
		}
		if covered > 1 {
			union.WriteByte('X')
		} else {
			union.WriteByte(nonSpace)
		}
	}
	return union.String()
}

// splitByteLines splits the union row into 24-character byte rows and pads
// with blank rows up to the message length.
func splitByteLines(union string, lengthBytes uint) []string {
	var byteLines []string
	for i := 0; i < len(union); i += byteWidth {
		byteLines = append(byteLines, union[i:i+byteWidth])
	}
	for uint(len(byteLines)) < lengthBytes {
		byteLines = append(byteLines, strings.Repeat(" ", byteWidth))
	}
	return byteLines
}

// separateBits inserts the '|' bit separators into each byte row. A
// separator column between two filled cells continues the fill: 'X'
// between overlap cells, '-' or '=' between fill cells, '|' elsewhere.
func separateBits(byteLines []string, letters string) []string {
	lines := make([]string, 0, len(byteLines))

	for _, byteLine := range byteLines {
		var line strings.Builder
		var prev byte

		for i := 0; i < byteWidth; i += cellWidth {
			cell := byteLine[i : i+cellWidth]

			switch {
			case i == 0:
				line.WriteByte('|')
			case cell[0] == ' ' || cell[0] == '<' || cell[0] == '>' || strings.IndexByte(letters, cell[0]) >= 0:
				line.WriteByte('|')
			case cell[0] == 'X':
				switch prev {
				case 'X':
					line.WriteByte('X')
				case '-':
					line.WriteByte('-')
				case '=':
					line.WriteByte('=')
				default:
					line.WriteByte('|')
				}
			case cell[0] == '=':
				line.WriteByte('=')
			default:
				line.WriteByte('-')
			}

			line.WriteString(cell)
			prev = cell[2]
		}

		line.WriteByte('|')
		lines = append(lines, line.String())
	}

	return lines
}

// numberByteLines prefixes each byte row with its zero-padded row index.
func numberByteLines(lines []string) ([]string, int) {
	numberWidth := len(strconv.Itoa(len(lines))) + 4
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%*d %s", numberWidth-1, i, line)
	}
	return numbered, numberWidth
}

func addHorizontalLines(byteLines []string, numberWidth int) []string {
	padding := strings.Repeat(" ", numberWidth)
	lines := make([]string, 0, 2*len(byteLines))
	for _, byteLine := range byteLines {
		lines = append(lines, byteLine, padding+"+---+---+---+---+---+---+---+---+")
	}
	return lines
}

func addHeaderLines(lines []string, numberWidth int) []string {
	header := []string{
		fmt.Sprintf("%*s", numberWidth, "Bit") + "  7   6   5   4   3   2   1   0",
		strings.Repeat(" ", numberWidth) + "+---+---+---+---+---+---+---+---+",
	}
	return append(header, lines...)
}

// addByteAxis prefixes the lines with a vertical "Byte" axis label,
// vertically centered over the matrix rows.
func addByteAxis(lines []string) []string {
	matrixLines := len(lines) - 3
	if matrixLines < 5 {
		for i := matrixLines; i < 5; i++ {
			lines = append(lines, "     ")
		}
	}

	start := 4 + (floorDiv(matrixLines-4, 2) - 1)
	if start < 0 {
		start = 0
	}

	axis := " Byte"
	out := make([]string, len(lines))
	for i, line := range lines {
		prefix := "  "
		if i >= start && i < start+4 {
			prefix = " " + string(axis[i-start+1])
		}
		out[i] = prefix + line
	}
	return out
}

// floorDiv divides rounding toward negative infinity, matching Python's
// floor division for the axis placement arithmetic.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
