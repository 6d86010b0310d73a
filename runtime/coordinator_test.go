package runtime

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/canvass/ipc"
	"github.com/justapithecus/canvass/types"
)

// mockAnalyzer is a test analyzer that produces configurable stdout.
// It simulates a real worker by optionally blocking Wait() until killed
// or released.
type mockAnalyzer struct {
	mu          sync.Mutex
	stdout      *bytes.Buffer
	started     bool
	killed      bool
	exitCode    int
	startErr    error
	waitErr     error         // error to return from Wait
	killChan    chan struct{} // signals Wait to return when Kill is called
	releaseChan chan struct{} // signals Wait to return for normal completion
	blockOnWait bool          // if true, Wait blocks until kill or release
}

func newMockAnalyzer(stdout []byte, exitCode int) *mockAnalyzer {
	return &mockAnalyzer{
		stdout:      bytes.NewBuffer(stdout),
		exitCode:    exitCode,
		killChan:    make(chan struct{}),
		releaseChan: make(chan struct{}),
	}
}

// newBlockingMockAnalyzer creates a mock that blocks Wait() until killed
// or released. This simulates a long-running analysis worker.
func newBlockingMockAnalyzer(stdout []byte, exitCode int) *mockAnalyzer {
	m := newMockAnalyzer(stdout, exitCode)
	m.blockOnWait = true
	return m
}

func (m *mockAnalyzer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockAnalyzer) Stdout() io.Reader {
	return m.stdout
}

func (m *mockAnalyzer) Wait() (*AnalyzerResult, error) {
	if m.blockOnWait {
		select {
		case <-m.killChan:
		case <-m.releaseChan:
		}
	}
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &AnalyzerResult{
		ExitCode:    m.exitCode,
		StderrBytes: []byte{},
	}, nil
}

func (m *mockAnalyzer) Kill() error {
	m.mu.Lock()
	alreadyKilled := m.killed
	m.killed = true
	m.mu.Unlock()

	if !alreadyKilled {
		close(m.killChan)
	}
	return nil
}

func (m *mockAnalyzer) Release() {
	select {
	case <-m.releaseChan:
	default:
		close(m.releaseChan)
	}
}

func (m *mockAnalyzer) WasKilled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}

// trackingFactory hands out queued mocks and records the jobs it was
// asked to build.
type trackingFactory struct {
	mu    sync.Mutex
	queue []*mockAnalyzer
	jobs  []*AnalysisJob
}

func (f *trackingFactory) factory(job *AnalysisJob) Analyzer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	if len(f.queue) == 0 {
		panic("trackingFactory: no analyzer queued")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next
}

func (f *trackingFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

const testDBC = `BO_ 291 Message_291: 8 Vector__XXX
 SG_ Signal_a : 7|8@0+ (1,0) [0|0] "" Vector__XXX
`

// makeCompletedStream encodes a successful result frame as the worker
// would write it.
func makeCompletedStream(t *testing.T, dbcText string) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := ipc.WriteResult(&buf, &ipc.ResultFrame{
		Type:   ipc.ResultType,
		Status: ipc.ResultCompleted,
		DBC:    dbcText,
	})
	if err != nil {
		t.Fatalf("failed to encode result frame: %v", err)
	}
	return buf.Bytes()
}

func makeErrorStream(t *testing.T, message, errorType string) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := ipc.WriteResult(&buf, &ipc.ResultFrame{
		Type:      ipc.ResultType,
		Status:    ipc.ResultError,
		Message:   &message,
		ErrorType: &errorType,
	})
	if err != nil {
		t.Fatalf("failed to encode result frame: %v", err)
	}
	return buf.Bytes()
}

func makeFrames(identifier uint32, bodies ...[]byte) []types.Frame {
	frames := make([]types.Frame, 0, len(bodies))
	for _, b := range bodies {
		frames = append(frames, types.NewFrame(identifier, b))
	}
	return frames
}

func awaitNotification(t *testing.T, c *Coordinator) Notification {
	t.Helper()
	select {
	case n := <-c.Notifications():
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for analysis notification")
		return Notification{}
	}
}

func TestCoordinator_FocusRunsAndCommits(t *testing.T) {
	factory := &trackingFactory{
		queue: []*mockAnalyzer{newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)},
	}
	c := NewCoordinator(Config{Factory: factory.factory})

	frames := makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Focus(0x123, frames)

	n := awaitNotification(t, c)
	if n.Identifier != 0x123 {
		t.Errorf("notification identifier = 0x%X, want 0x123", n.Identifier)
	}
	if !n.Outcome.OK() {
		t.Fatalf("expected success outcome, got %s: %s", n.Outcome.Status, n.Outcome.Reason)
	}
	if n.Outcome.Schema == nil || n.Outcome.Schema.Identifier != 291 {
		t.Errorf("expected recovered schema for identifier 291, got %+v", n.Outcome.Schema)
	}

	status := c.Status()
	if status.Phase != PhaseCompleted {
		t.Errorf("status phase = %s, want completed", status.Phase)
	}
	if status.Stale {
		t.Error("fresh result should not be stale")
	}
	if c.Schema() == nil {
		t.Error("Schema() should return the recovered schema after success")
	}
}

func TestCoordinator_CachedResultSkipsRestart(t *testing.T) {
	factory := &trackingFactory{
		queue: []*mockAnalyzer{newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)},
	}
	c := NewCoordinator(Config{Factory: factory.factory})

	frames := makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Focus(0x123, frames)
	awaitNotification(t, c)

	// Refocusing a cached identifier must not spawn another worker.
	c.Focus(0x123, frames)
	if got := factory.calls(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	if status := c.Status(); status.Phase != PhaseCompleted || status.Stale {
		t.Errorf("status = %+v, want fresh completed", status)
	}
}

func TestCoordinator_StaleWhenSnapshotChanges(t *testing.T) {
	factory := &trackingFactory{
		queue: []*mockAnalyzer{newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)},
	}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	awaitNotification(t, c)

	// Same identifier, new capture contents. The cached result survives
	// but is flagged stale; no new worker starts.
	c.Focus(0x123, makeFrames(0x123, []byte{8, 7, 6, 5, 4, 3, 2, 1}))
	status := c.Status()
	if status.Phase != PhaseCompleted {
		t.Fatalf("status phase = %s, want completed", status.Phase)
	}
	if !status.Stale {
		t.Error("cached result should be stale after the snapshot changed")
	}
	if got := factory.calls(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

func TestCoordinator_FocusWhileRunningSameIdentifier(t *testing.T) {
	blocking := newBlockingMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)
	factory := &trackingFactory{queue: []*mockAnalyzer{blocking}}
	c := NewCoordinator(Config{Factory: factory.factory})

	frames := makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Focus(0x123, frames)
	if status := c.Status(); status.Phase != PhaseRunning {
		t.Fatalf("status phase = %s, want running", status.Phase)
	}

	c.Focus(0x123, frames)
	if got := factory.calls(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	if blocking.WasKilled() {
		t.Error("refocusing the running identifier must not kill its job")
	}

	blocking.Release()
	n := awaitNotification(t, c)
	if !n.Outcome.OK() {
		t.Errorf("expected success outcome, got %s", n.Outcome.Status)
	}
}

func TestCoordinator_SupersedeKillsAndDiscards(t *testing.T) {
	oldJob := newBlockingMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)
	newJob := newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)
	factory := &trackingFactory{queue: []*mockAnalyzer{oldJob, newJob}}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x100, makeFrames(0x100, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	c.Focus(0x200, makeFrames(0x200, []byte{9, 9, 9, 9, 9, 9, 9, 9}))

	if !oldJob.WasKilled() {
		t.Error("superseded job should be killed")
	}

	n := awaitNotification(t, c)
	if n.Identifier != 0x200 {
		t.Errorf("notification identifier = 0x%X, want 0x200", n.Identifier)
	}

	// The killed job's completion, even if it raced through, must never
	// surface for its identifier.
	if c.Cache().Get(0x100) != nil {
		t.Error("superseded job's result must not be cached")
	}

	select {
	case n := <-c.Notifications():
		t.Errorf("unexpected extra notification for 0x%X", n.Identifier)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinator_RerunForcesRestart(t *testing.T) {
	factory := &trackingFactory{
		queue: []*mockAnalyzer{
			newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted),
			newMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted),
		},
	}
	c := NewCoordinator(Config{Factory: factory.factory})

	frames := makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Focus(0x123, frames)
	awaitNotification(t, c)

	if err := c.Rerun(); err != nil {
		t.Fatalf("Rerun returned error: %v", err)
	}
	awaitNotification(t, c)

	if got := factory.calls(); got != 2 {
		t.Errorf("factory called %d times, want 2", got)
	}
}

func TestCoordinator_RerunWithoutFocus(t *testing.T) {
	factory := &trackingFactory{}
	c := NewCoordinator(Config{Factory: factory.factory})

	if err := c.Rerun(); err != ErrNoFocus {
		t.Errorf("Rerun() = %v, want ErrNoFocus", err)
	}
	if got := factory.calls(); got != 0 {
		t.Errorf("factory called %d times, want 0", got)
	}
}

func TestCoordinator_CancelKillsWithoutCommitting(t *testing.T) {
	blocking := newBlockingMockAnalyzer(makeCompletedStream(t, testDBC), ExitCodeCompleted)
	factory := &trackingFactory{queue: []*mockAnalyzer{blocking}}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	c.Cancel()

	if !blocking.WasKilled() {
		t.Error("Cancel should kill the running job")
	}
	if status := c.Status(); status.Phase != PhaseIdle {
		t.Errorf("status phase = %s, want idle after cancel", status.Phase)
	}
	if c.Cache().Get(0x123) != nil {
		t.Error("cancelled job's result must not be cached")
	}

	select {
	case n := <-c.Notifications():
		t.Errorf("unexpected notification for 0x%X after cancel", n.Identifier)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinator_FrameSizeMismatchFailsWithoutWorker(t *testing.T) {
	factory := &trackingFactory{}
	c := NewCoordinator(Config{Factory: factory.factory})

	frames := []types.Frame{
		types.NewFrame(0x123, []byte{1, 2, 3, 4}),
		types.NewFrame(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	c.Focus(0x123, frames)

	n := awaitNotification(t, c)
	if n.Outcome.OK() {
		t.Fatal("expected error outcome for mismatched frame sizes")
	}
	want := "can't process identifier 0x123, whose frame sizes differ"
	if n.Outcome.Reason != want {
		t.Errorf("reason = %q, want %q", n.Outcome.Reason, want)
	}
	if got := factory.calls(); got != 0 {
		t.Errorf("factory called %d times, want 0", got)
	}
	if status := c.Status(); status.Phase != PhaseCompleted {
		t.Errorf("status phase = %s, want completed", status.Phase)
	}
	if c.Schema() != nil {
		t.Error("Schema() must be nil for a failed analysis")
	}
}

func TestCoordinator_AnalysisErrorOutcome(t *testing.T) {
	stream := makeErrorStream(t, "not enough data", "InvalidSignalError")
	factory := &trackingFactory{
		queue: []*mockAnalyzer{newMockAnalyzer(stream, ExitCodeError)},
	}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	n := awaitNotification(t, c)

	if n.Outcome.OK() {
		t.Fatal("expected error outcome")
	}
	if n.Outcome.Reason == "" {
		t.Error("error outcome should carry the worker's message")
	}
	if c.Schema() != nil {
		t.Error("Schema() must be nil for a failed analysis")
	}
	// Failures are cached too: refocusing must not restart.
	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	if got := factory.calls(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

func TestCoordinator_WorkerCrashOutcome(t *testing.T) {
	crash := newMockAnalyzer(nil, ExitCodeCrash)
	factory := &trackingFactory{queue: []*mockAnalyzer{crash}}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	n := awaitNotification(t, c)

	if n.Outcome.OK() {
		t.Fatal("expected error outcome for crashed worker")
	}
	if status := c.Status(); status.Phase != PhaseCompleted {
		t.Errorf("status phase = %s, want completed", status.Phase)
	}
}

func TestCoordinator_StartErrorOutcome(t *testing.T) {
	failing := newMockAnalyzer(nil, 0)
	failing.startErr = io.ErrClosedPipe
	factory := &trackingFactory{queue: []*mockAnalyzer{failing}}
	c := NewCoordinator(Config{Factory: factory.factory})

	c.Focus(0x123, makeFrames(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	n := awaitNotification(t, c)

	if n.Outcome.OK() {
		t.Fatal("expected error outcome when the worker fails to start")
	}
}
