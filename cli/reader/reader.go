// Package reader parses candump log captures into CAN frames grouped by
// arbitration identifier.
package reader

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/justapithecus/canvass/types"
)

// linePattern matches the candump -L log format:
//
//	(1594112648.762713) vcan0 1F3#0000000573
//
// The identifier is 3 hex digits for standard frames, 8 for extended.
var linePattern = regexp.MustCompile(`^\((\d+)\.(\d+)\)\s+(\S+)\s+([0-9A-Fa-f]{3,8})#([0-9A-Fa-f]*)$`)

// Record is a single parsed capture line.
type Record struct {
	// Timestamp is the capture time in microseconds since the epoch.
	Timestamp uint64
	Interface string
	Frame     types.Frame
}

// Capture is a parsed candump log with frames grouped by identifier.
type Capture struct {
	records []Record
	byID    map[uint32][]types.Frame
}

// ParseError reports a malformed capture line.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: cannot parse capture record %q", e.Line, e.Text)
}

// ParseFile reads a candump log from disk.
func ParseFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open capture file %q: %w", path, err)
	}
	defer f.Close()

	capture := &Capture{byID: make(map[uint32][]types.Frame)}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Text: line}
		}
		capture.add(record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading capture file %q: %w", path, err)
	}
	if len(capture.records) == 0 {
		return nil, fmt.Errorf("capture file %q contains no frames", path)
	}
	return capture, nil
}

func parseLine(line string) (Record, error) {
	groups := linePattern.FindStringSubmatch(line)
	if groups == nil {
		return Record{}, fmt.Errorf("malformed record")
	}

	seconds, err := strconv.ParseUint(groups[1], 10, 64)
	if err != nil {
		return Record{}, err
	}
	// The fractional part is microseconds, possibly shorter than 6 digits.
	frac := groups[2]
	for len(frac) < 6 {
		frac += "0"
	}
	micros, err := strconv.ParseUint(frac[:6], 10, 64)
	if err != nil {
		return Record{}, err
	}

	identifier, err := strconv.ParseUint(groups[4], 16, 32)
	if err != nil {
		return Record{}, err
	}

	payload, err := hex.DecodeString(groups[5])
	if err != nil {
		return Record{}, err
	}
	if len(payload) > types.MaxFrameBytes {
		return Record{}, fmt.Errorf("payload exceeds %d bytes", types.MaxFrameBytes)
	}

	return Record{
		Timestamp: seconds*1_000_000 + micros,
		Interface: groups[3],
		Frame:     types.NewFrame(uint32(identifier), payload),
	}, nil
}

func (c *Capture) add(r Record) {
	c.records = append(c.records, r)
	id := r.Frame.Identifier
	c.byID[id] = append(c.byID[id], r.Frame)
}

// Len returns the total number of frames in the capture.
func (c *Capture) Len() int {
	return len(c.records)
}

// Records returns every parsed record in capture order.
func (c *Capture) Records() []Record {
	return c.records
}

// Identifiers returns the distinct arbitration identifiers in ascending
// order.
func (c *Capture) Identifiers() []uint32 {
	ids := make([]uint32, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FramesFor returns the frames carrying the identifier, in capture order.
func (c *Capture) FramesFor(identifier uint32) []types.Frame {
	return c.byID[identifier]
}

// Bodies returns the packed 64-bit payloads for the identifier, in capture
// order.
func (c *Capture) Bodies(identifier uint32) []uint64 {
	return types.PackBodies(c.byID[identifier])
}
