// Package runtime implements the asynchronous analysis orchestration
// engine: a single-flight coordinator that supervises one isolated analysis
// worker at a time, a staleness-aware result cache, and forceful
// cancellation when a newer request supersedes a running job.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/canvass/dbc"
	"github.com/justapithecus/canvass/log"
	"github.com/justapithecus/canvass/types"
)

// Phase is the coordinator's externally visible state for the focused
// identifier.
type Phase int

const (
	// PhaseIdle means no job is running and no outcome is cached for the
	// focused identifier.
	PhaseIdle Phase = iota
	// PhaseRunning means a job for the focused identifier is in flight.
	PhaseRunning
	// PhaseCompleted means a cached outcome exists for the focused
	// identifier.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status describes the coordinator's state for the focused identifier.
type Status struct {
	Phase Phase
	// Outcome is set when Phase is PhaseCompleted.
	Outcome *types.Outcome
	// Stale is true when the cached outcome was produced from a different
	// frame snapshot than the latest focus supplied.
	Stale bool
}

// Notification is sent to the consumer when a job's outcome is committed.
type Notification struct {
	Identifier uint32
	Outcome    types.Outcome
}

// notifyBuffer sizes the notification channel. Sends never block; if the
// consumer falls this far behind, older notifications are dropped and the
// consumer resynchronizes from Status.
const notifyBuffer = 16

// Config configures a Coordinator.
type Config struct {
	// Factory creates analysis workers. Required.
	Factory AnalyzerFactory
	// ParseSchema turns a worker's DBC payload into a schema.
	// Defaults to dbc.Parse.
	ParseSchema SchemaParser
	// Logger defaults to a no-op logger.
	Logger *log.Logger
}

// runningJob tracks the single in-flight worker. The cancelled flag and the
// current-job pointer are guarded by the coordinator mutex; a completion is
// committed only when its job is still current and uncancelled.
type runningJob struct {
	job       *AnalysisJob
	analyzer  Analyzer
	cancelled bool
}

// Coordinator owns at most one in-flight analysis job at any time, decides
// when focusing an identifier must (re)start analysis, relays completions
// into the result cache, and exposes the current state to a consumer.
//
// All public methods return immediately; the blocking wait on the worker
// happens on a supervising goroutine that relays the outcome through the
// notification channel.
type Coordinator struct {
	mu        sync.Mutex
	cache     *ResultCache
	factory   AnalyzerFactory
	parse     SchemaParser
	logger    *log.Logger
	notify    chan Notification
	snapshots map[uint32][]types.Frame
	focused   uint32
	hasFocus  bool
	current   *runningJob
}

// NewCoordinator creates a coordinator with an empty cache.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Factory == nil {
		panic("runtime: Config.Factory is required")
	}
	parse := cfg.ParseSchema
	if parse == nil {
		parse = dbc.Parse
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Coordinator{
		cache:     NewResultCache(),
		factory:   cfg.Factory,
		parse:     parse,
		logger:    logger,
		notify:    make(chan Notification, notifyBuffer),
		snapshots: make(map[uint32][]types.Frame),
	}
}

// Notifications returns the channel carrying committed outcomes. Consumers
// may also poll Status instead of draining it.
func (c *Coordinator) Notifications() <-chan Notification {
	return c.notify
}

// Cache exposes the result cache for read access.
func (c *Coordinator) Cache() *ResultCache {
	return c.cache
}

// Focus records frames as the latest snapshot for the identifier and makes
// it the current focus. A job is started when no outcome is cached for the
// identifier; a job already running for a different identifier is
// forcefully cancelled and its eventual completion discarded. Focusing the
// identifier of the currently running job never starts a second one.
func (c *Coordinator) Focus(identifier uint32, frames []types.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := types.CloneFrames(frames)
	c.snapshots[identifier] = snapshot
	c.focused = identifier
	c.hasFocus = true

	if c.current != nil && c.current.job.Identifier != identifier {
		c.cancelLocked()
	}
	if c.cache.Get(identifier) != nil {
		return
	}
	if c.current != nil {
		return
	}
	c.startLocked(identifier, snapshot)
}

// Rerun force-starts a new job for the focused identifier, cancelling any
// job in flight, regardless of cache state. Returns ErrNoFocus when
// nothing has been focused yet.
func (c *Coordinator) Rerun() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasFocus {
		return ErrNoFocus
	}
	c.cancelLocked()
	c.startLocked(c.focused, c.snapshots[c.focused])
	return nil
}

// Cancel forcefully terminates any running job without recording a result.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Status returns the coordinator's state for the focused identifier.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasFocus {
		return Status{Phase: PhaseIdle}
	}
	if c.current != nil && c.current.job.Identifier == c.focused {
		return Status{Phase: PhaseRunning}
	}
	entry := c.cache.Get(c.focused)
	if entry == nil {
		return Status{Phase: PhaseIdle}
	}
	outcome := entry.Outcome
	return Status{
		Phase:   PhaseCompleted,
		Outcome: &outcome,
		Stale:   !types.FramesEqual(entry.Frames, c.snapshots[c.focused]),
	}
}

// Schema returns the recovered schema for the focused identifier's most
// recent committed outcome, or nil while running, failed, or unfocused.
func (c *Coordinator) Schema() *types.Message {
	status := c.Status()
	if status.Phase != PhaseCompleted || !status.Outcome.OK() {
		return nil
	}
	return status.Outcome.Schema
}

// FocusedFrames returns the latest frame snapshot supplied for the focused
// identifier.
func (c *Coordinator) FocusedFrames() []types.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasFocus {
		return nil
	}
	return c.snapshots[c.focused]
}

// cancelLocked terminates the in-flight job, if any. The worker is killed
// outright; its completion is discarded by the supersede check.
func (c *Coordinator) cancelLocked() {
	if c.current == nil {
		return
	}
	rj := c.current
	rj.cancelled = true
	c.current = nil

	c.logger.Info("cancelling analysis job", map[string]any{
		"job_id":     rj.job.ID,
		"identifier": fmt.Sprintf("0x%X", rj.job.Identifier),
	})
	if err := rj.analyzer.Kill(); err != nil {
		c.logger.Warn("failed to kill analysis worker", map[string]any{
			"job_id": rj.job.ID,
			"error":  err.Error(),
		})
	}
}

// startLocked validates the snapshot and launches a worker for it. Frames
// with inconsistent payload lengths fail the job before the external
// routine is ever invoked.
func (c *Coordinator) startLocked(identifier uint32, frames []types.Frame) {
	job := &AnalysisJob{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Frames:     frames,
		StartedAt:  time.Now(),
	}

	if !framesSameSize(frames) {
		outcome := types.Errorf("can't process identifier 0x%X, whose frame sizes differ", identifier)
		c.cache.Put(identifier, frames, outcome)
		c.sendNotification(Notification{Identifier: identifier, Outcome: outcome})
		return
	}

	rj := &runningJob{job: job, analyzer: c.factory(job)}
	c.current = rj

	c.logger.Info("starting analysis job", map[string]any{
		"job_id":     job.ID,
		"identifier": fmt.Sprintf("0x%X", identifier),
		"frames":     len(frames),
	})

	go c.supervise(rj)
}

// supervise runs on its own goroutine: it drives the worker to completion
// and relays the outcome. The consumer never blocks on the worker.
func (c *Coordinator) supervise(rj *runningJob) {
	outcome := c.execute(rj)
	c.complete(rj, outcome)
}

// execute runs the worker and folds every failure mode into a tagged
// outcome. Nothing escapes this boundary as a panic or error.
func (c *Coordinator) execute(rj *runningJob) types.Outcome {
	if err := rj.analyzer.Start(context.Background()); err != nil {
		return types.Errorf("failed to start analysis worker: %v", err)
	}

	// Stdout must be drained before Wait reaps the child, or pending frames
	// are lost with the pipe.
	frame, frameErr := readResultFrame(rj.analyzer.Stdout())

	result, err := rj.analyzer.Wait()
	if err != nil {
		return types.Errorf("analysis worker wait failed: %v", err)
	}

	return determineOutcome(result, frame, frameErr, c.parse)
}

// complete commits the outcome unless the job was cancelled or superseded.
// A late completion of a superseded job is discarded silently: no cache
// mutation, no notification.
func (c *Coordinator) complete(rj *runningJob, outcome types.Outcome) {
	c.mu.Lock()
	if rj.cancelled || c.current != rj {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded analysis result", map[string]any{
			"job_id": rj.job.ID,
		})
		return
	}
	c.current = nil
	c.cache.Put(rj.job.Identifier, rj.job.Frames, outcome)
	c.mu.Unlock()

	c.logger.Info("analysis job completed", map[string]any{
		"job_id":   rj.job.ID,
		"status":   string(outcome.Status),
		"duration": time.Since(rj.job.StartedAt).String(),
	})
	c.sendNotification(Notification{Identifier: rj.job.Identifier, Outcome: outcome})
}

func (c *Coordinator) sendNotification(n Notification) {
	select {
	case c.notify <- n:
	default:
		c.logger.Warn("dropping analysis notification, consumer backlogged", map[string]any{
			"identifier": fmt.Sprintf("0x%X", n.Identifier),
		})
	}
}

// framesSameSize reports whether every frame declares the same payload
// length. An empty snapshot counts as inconsistent: there is nothing to
// analyze.
func framesSameSize(frames []types.Frame) bool {
	if len(frames) == 0 {
		return false
	}
	size := frames[0].Length
	for _, f := range frames[1:] {
		if f.Length != size {
			return false
		}
	}
	return true
}
