package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/verdict"
)

type fakeRunner struct {
	mu            sync.Mutex
	compileStatus verdict.Status
	compileStderr string
	compileGate   chan struct{}
	runGate       chan struct{}
	runFn         func(c runner.Case) verdict.CaseResult

	compiles  int
	runs      int
	active    int
	maxActive int
	ranKeys   []string
}

func (f *fakeRunner) Compile(ctx context.Context, sub runner.Submission) runner.CompileOutcome {
	f.mu.Lock()
	f.compiles++
	gate := f.compileGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return runner.CompileOutcome{Status: f.compileStatus, Stderr: f.compileStderr}
}

func (f *fakeRunner) Run(ctx context.Context, c runner.Case) verdict.CaseResult {
	f.mu.Lock()
	f.runs++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.ranKeys = append(f.ranKeys, c.Key)
	gate := f.runGate
	fn := f.runFn
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	res := verdict.CaseResult{Stdout: c.Key, Status: verdict.AC, ExecTime: 1, MemoryUsage: 1}
	if fn != nil {
		res = fn(c)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return res
}

func (f *fakeRunner) counts() (compiles, runs, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compiles, f.runs, f.maxActive
}

type fakeSink struct {
	mu       sync.Mutex
	err      error
	payloads map[string]verdict.Payload
}

func (s *fakeSink) Deliver(ctx context.Context, id string, payload verdict.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payloads == nil {
		s.payloads = make(map[string]verdict.Payload)
	}
	s.payloads[id] = payload
	return s.err
}

type finalized struct {
	id      string
	payload verdict.Payload
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	langC      = 0
	langPython = 2
)

func tasks(counts ...int) []meta.Task {
	out := make([]meta.Task, len(counts))
	for i, n := range counts {
		out[i] = meta.Task{TaskScore: 0, MemoryLimit: 65536, TimeLimit: 1000, CaseCount: n}
	}
	out[0].TaskScore = 100
	return out
}

func writeSubmission(t *testing.T, root, id string, language int, ts []meta.Task) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := meta.Write(dir, meta.Meta{Language: language, Tasks: ts}); err != nil {
		t.Fatalf("write meta: %v", err)
	}
}

type harness struct {
	d      *Dispatcher
	root   string
	runner *fakeRunner
	final  chan finalized
}

func newHarness(t *testing.T, cfg Config, r *fakeRunner, sink Sink, opts ...Option) *harness {
	t.Helper()
	if cfg.SubmissionDir == "" {
		cfg.SubmissionDir = t.TempDir()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Millisecond
	}
	if sink == nil {
		cfg.Testing = true
	}
	if r == nil {
		r = &fakeRunner{}
	}
	langs, err := profile.NewStaticRepository(nil)
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	h := &harness{root: cfg.SubmissionDir, runner: r, final: make(chan finalized, 64)}
	opts = append(opts, WithFinalizeHook(func(id string, p verdict.Payload) {
		h.final <- finalized{id: id, payload: p}
	}))
	d, err := New(cfg, langs, r, sink, opts...)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	h.d = d
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()
	waitFor(t, "loop start", func() bool { return h.d.Stats().Running })
	t.Cleanup(func() {
		h.d.Stop()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("dispatch loop did not stop")
		}
	})
}

func (h *harness) waitFinal(t *testing.T) finalized {
	t.Helper()
	select {
	case f := <-h.final:
		return f
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for finalization")
		return finalized{}
	}
}

func (h *harness) expectNoFinal(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-h.final:
		t.Fatalf("unexpected finalization of %s", f.id)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var errDeliver = errors.New("backend down")
