package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/justapithecus/canvass/types"
)

// AnalysisJob describes one invocation of the structural analysis routine.
// A job exists only while its worker is active; at most one job per
// Coordinator is ever in flight.
type AnalysisJob struct {
	// ID uniquely identifies the job for logging and supersede tracking.
	ID string
	// Identifier is the bus identifier under analysis.
	Identifier uint32
	// Frames is the immutable frame snapshot the job analyzes.
	Frames []types.Frame
	// StartedAt is the job start time.
	StartedAt time.Time
}

// Analyzer abstracts the isolated analysis worker lifecycle for testing.
// The production implementation runs the analysis routine in a separate
// process so a crash or hang inside it cannot corrupt coordinator state.
type Analyzer interface {
	Start(ctx context.Context) error
	Stdout() io.Reader
	Wait() (*AnalyzerResult, error)
	Kill() error
}

// AnalyzerFactory creates an Analyzer for a job. Used for test injection.
type AnalyzerFactory func(job *AnalysisJob) Analyzer

// AnalyzerResult represents the result of a worker process.
type AnalyzerResult struct {
	// ExitCode is the process exit code.
	ExitCode int
	// StderrBytes is the captured stderr output.
	StderrBytes []byte
}

// AnalyzerConfig configures the analysis worker command.
type AnalyzerConfig struct {
	// Command is the analyzer executable plus fixed leading arguments.
	Command []string
	// ScratchDir is where the worker may write intermediate artifacts.
	// Empty means the system temp directory.
	ScratchDir string
}

// ProcessAnalyzer runs the external analysis routine as a child process.
// The job is written to stdin as JSON; the worker answers with a single
// length-prefixed msgpack result frame on stdout before exiting. Stderr is
// captured for diagnostics. Cancellation is forceful: the process is
// killed outright, since the routine offers no cooperative hook. Kill may
// arrive from another goroutine before Start has launched the process; the
// killRequested flag makes Start refuse to launch in that window so no
// orphan survives a supersede. The per-job scratch directory is removed
// once the worker has been reaped.
type ProcessAnalyzer struct {
	config *AnalyzerConfig
	job    *AnalysisJob

	// mu guards cmd and killRequested across the supervise and cancel
	// goroutines. The pipe fields and scratchDir are touched only by the
	// supervise goroutine.
	mu            sync.Mutex
	cmd           *exec.Cmd
	killRequested bool

	stdin      io.WriteCloser
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	scratchDir string
}

// NewProcessAnalyzer creates a process-backed analyzer for a job.
func NewProcessAnalyzer(config *AnalyzerConfig, job *AnalysisJob) *ProcessAnalyzer {
	return &ProcessAnalyzer{config: config, job: job}
}

// NewProcessAnalyzerFactory returns an AnalyzerFactory backed by the
// configured worker command.
func NewProcessAnalyzerFactory(config *AnalyzerConfig) AnalyzerFactory {
	return func(job *AnalysisJob) Analyzer {
		return NewProcessAnalyzer(config, job)
	}
}

// analyzerInput is the JSON structure written to the worker's stdin.
type analyzerInput struct {
	JobID      string   `json:"job_id"`
	Identifier uint32   `json:"identifier"`
	Bodies     []uint64 `json:"bodies"`
	SizeBytes  uint8    `json:"size_bytes"`
	ScratchDir string   `json:"scratch_dir"`
	ShowPlots  bool     `json:"show_plots"`
}

// Start starts the worker process and hands it the job input.
func (a *ProcessAnalyzer) Start(ctx context.Context) error {
	if len(a.config.Command) == 0 {
		return errors.New("no analyzer command configured")
	}

	parent := a.config.ScratchDir
	if parent == "" {
		parent = os.TempDir()
	}
	scratchDir, err := os.MkdirTemp(parent, "canvass_analysis_")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	a.scratchDir = scratchDir

	cmd := exec.CommandContext(ctx, a.config.Command[0], a.config.Command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		a.removeScratch()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	a.stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		a.removeScratch()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	a.stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		a.removeScratch()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	a.stderr = stderr

	a.mu.Lock()
	if a.killRequested {
		a.mu.Unlock()
		a.removeScratch()
		return errors.New("analyzer cancelled before start")
	}
	if err := cmd.Start(); err != nil {
		a.mu.Unlock()
		a.removeScratch()
		return fmt.Errorf("failed to start analyzer: %w", err)
	}
	a.cmd = cmd
	a.mu.Unlock()

	sizeBytes := uint8(0)
	if len(a.job.Frames) > 0 {
		sizeBytes = a.job.Frames[0].Length
	}
	input := analyzerInput{
		JobID:      a.job.ID,
		Identifier: a.job.Identifier,
		Bodies:     types.PackBodies(a.job.Frames),
		SizeBytes:  sizeBytes,
		ScratchDir: scratchDir,
	}

	if err := json.NewEncoder(stdin).Encode(input); err != nil {
		a.reapFailedStart()
		return fmt.Errorf("failed to write job input: %w", err)
	}
	if err := stdin.Close(); err != nil {
		a.reapFailedStart()
		return fmt.Errorf("failed to close stdin: %w", err)
	}

	return nil
}

// reapFailedStart kills and reaps a launched worker whose job input could
// not be delivered, then discards its scratch directory.
func (a *ProcessAnalyzer) reapFailedStart() {
	_ = a.Kill()
	_ = a.cmd.Wait()
	a.removeScratch()
}

// removeScratch discards the per-job scratch directory. Only the supervise
// goroutine touches scratchDir.
func (a *ProcessAnalyzer) removeScratch() {
	if a.scratchDir != "" {
		_ = os.RemoveAll(a.scratchDir)
		a.scratchDir = ""
	}
}

// Stdout returns the stdout reader carrying the result frame.
func (a *ProcessAnalyzer) Stdout() io.Reader {
	return a.stdout
}

// Wait waits for the worker to exit and returns the result.
// Must be called after Start, and after stdout has been drained: exec.Cmd
// closes the stdout pipe on Wait.
func (a *ProcessAnalyzer) Wait() (*AnalyzerResult, error) {
	if a.cmd == nil {
		return nil, errors.New("analyzer not started")
	}
	defer a.removeScratch()

	stderrBytes, _ := io.ReadAll(a.stderr)

	err := a.cmd.Wait()
	result := &AnalyzerResult{StderrBytes: stderrBytes}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			} else {
				result.ExitCode = -1
			}
		} else {
			return nil, fmt.Errorf("analyzer wait failed: %w", err)
		}
	}

	return result, nil
}

// Kill terminates the worker process. Called before Start has launched the
// worker, it marks the analyzer cancelled so Start refuses to launch.
func (a *ProcessAnalyzer) Kill() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.killRequested = true
	if a.cmd != nil && a.cmd.Process != nil {
		return a.cmd.Process.Kill()
	}
	return nil
}
