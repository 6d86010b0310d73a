package runtime

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/justapithecus/canvass/ipc"
	"github.com/justapithecus/canvass/types"
)

// Exit codes per the analysis worker contract.
const (
	// ExitCodeCompleted means the worker emitted a completed result frame.
	ExitCodeCompleted = 0
	// ExitCodeError means the analysis routine raised; an error result
	// frame carries the reason.
	ExitCodeError = 1
	// ExitCodeCrash means the worker terminated without a result frame.
	ExitCodeCrash = 2
)

// SchemaParser turns a worker's DBC payload into a schema. Injected so the
// persistence format stays a collaborator of the runtime, not a dependency
// of its control flow.
type SchemaParser func(text string) (*types.Message, error)

// readResultFrame drains the worker's stdout and returns the last result
// frame seen, if any. The stream must be drained before Wait reaps the
// process. A missing frame is not an error here; outcome classification
// handles it together with the exit code.
func readResultFrame(r io.Reader) (*ipc.ResultFrame, error) {
	decoder := ipc.NewFrameDecoder(r)
	var result *ipc.ResultFrame

	for {
		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			// Drain the remainder so Wait does not block on a full pipe.
			_, _ = io.Copy(io.Discard, r)
			return result, err
		}
		frame, err := ipc.DecodeResult(payload)
		if err != nil {
			return result, err
		}
		result = frame
	}
}

// determineOutcome folds the worker exit code, result frame, and captured
// stderr into a tagged outcome. The exit code is authoritative for the
// outcome category; the frame supplies the schema or the failure reason.
func determineOutcome(
	result *AnalyzerResult,
	frame *ipc.ResultFrame,
	frameErr error,
	parse SchemaParser,
) types.Outcome {
	if frameErr != nil && ipc.IsFatalFrameError(frameErr) {
		return types.Errorf("analysis worker stream broke: %v", frameErr)
	}

	switch result.ExitCode {
	case ExitCodeCompleted:
		if frame == nil || frame.Status != ipc.ResultCompleted {
			return types.Errorf("analysis worker exited cleanly without a result")
		}
		schema, err := parse(frame.DBC)
		if err != nil {
			return types.Errorf("analysis produced a malformed schema: %v", err)
		}
		return types.Success(schema)

	case ExitCodeError:
		reason := "analysis failed"
		if frame != nil && frame.Message != nil {
			reason = *frame.Message
		}
		if frame != nil && frame.ErrorType != nil {
			reason = fmt.Sprintf("%s: %s", *frame.ErrorType, reason)
		}
		return types.Errorf("%s", reason)

	default:
		reason := fmt.Sprintf("analysis worker crashed (exit code %d)", result.ExitCode)
		if stderr := strings.TrimSpace(string(result.StderrBytes)); stderr != "" {
			reason = fmt.Sprintf("%s: %s", reason, lastLine(stderr))
		}
		return types.Errorf("%s", reason)
	}
}

// lastLine extracts the final non-empty stderr line, usually the actual
// error message.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return s
}

// ErrNoFocus is returned by Rerun when no identifier has been focused yet.
// This is a usage error on the caller's side, not an analysis failure.
var ErrNoFocus = errors.New("no identifier focused")
