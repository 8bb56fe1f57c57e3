// Package dispatcher schedules compile and execute jobs for registered submissions,
// bounds sandbox concurrency and aggregates case results into verdicts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"judgehost/internal/judge/job"
	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultQueueSize     = 16
	defaultMaxContainers = 8
	defaultPollInterval  = time.Second
)

// Config controls queue capacity, concurrency and staleness.
type Config struct {
	// SubmissionDir holds one materialized directory per submission id.
	SubmissionDir string
	// HostSubmissionDir is SubmissionDir as seen by the docker daemon; empty means the same path.
	HostSubmissionDir string
	QueueSize         int
	MaxContainers     int
	PollInterval      time.Duration
	// StaleTimeout of zero or less disables staleness checks.
	StaleTimeout time.Duration
	// Testing skips result delivery after finalization.
	Testing bool
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxContainers <= 0 {
		c.MaxContainers = defaultMaxContainers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HostSubmissionDir == "" {
		c.HostSubmissionDir = c.SubmissionDir
	}
	return c
}

// Sink receives finalized verdicts.
type Sink interface {
	Deliver(ctx context.Context, submissionID string, payload verdict.Payload) error
}

// Recorder observes scheduling events.
type Recorder interface {
	ObserveDiscard(reason string)
	ObserveDefer()
	ObserveFinalize(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDiscard(string)                 {}
func (nopRecorder) ObserveDefer()                         {}
func (nopRecorder) ObserveFinalize(string, time.Duration) {}

// Stats is a point in time view of the dispatcher.
type Stats struct {
	QueueLength        int  `json:"queueLength"`
	QueueCapacity      int  `json:"queueCapacity"`
	Deferred           int  `json:"deferred"`
	RunningContainers  int  `json:"runningContainers"`
	MaxContainers      int  `json:"maxContainers"`
	TrackedSubmissions int  `json:"trackedSubmissions"`
	Running            bool `json:"running"`
}

// Dispatcher owns the job queue, the container counter and all per-submission state.
type Dispatcher struct {
	cfg      Config
	langs    profile.LanguageSpecRepository
	runner   runner.Runner
	sink     Sink
	recorder Recorder
	onFinal  func(submissionID string, payload verdict.Payload)
	now      func() time.Time

	queue *jobQueue
	// pool is replaced on every Run and only touched by the loop goroutine.
	pool        *pool
	submissions *xsync.MapOf[string, *submission]
	containers  atomic.Int64
	deferred    atomic.Int64
	epochs      atomic.Uint64
	running     atomic.Bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder attaches scheduling metrics.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithFinalizeHook is called with every well formed verdict, before delivery and in test mode.
func WithFinalizeHook(fn func(submissionID string, payload verdict.Payload)) Option {
	return func(d *Dispatcher) { d.onFinal = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher. The sink may be nil only in test mode.
func New(cfg Config, langs profile.LanguageSpecRepository, r runner.Runner, sink Sink, opts ...Option) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	if cfg.SubmissionDir == "" {
		return nil, fmt.Errorf("submission dir is required")
	}
	if langs == nil {
		return nil, fmt.Errorf("language repository is required")
	}
	if r == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if sink == nil && !cfg.Testing {
		return nil, fmt.Errorf("result sink is required")
	}
	d := &Dispatcher{
		cfg:         cfg,
		langs:       langs,
		runner:      r,
		sink:        sink,
		recorder:    nopRecorder{},
		now:         time.Now,
		queue:       newJobQueue(cfg.QueueSize),
		submissions: xsync.NewMapOf[string, *submission](),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Register admits a materialized submission directory and enqueues its jobs.
func (d *Dispatcher) Register(ctx context.Context, submissionID string) error {
	ctx = logger.WithSubmission(ctx, submissionID)
	if err := validateID(submissionID); err != nil {
		return err
	}
	layout := meta.NewLayout(d.cfg.SubmissionDir, submissionID)
	info, err := os.Stat(layout.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", submissionID)
		}
		return appErr.Wrapf(err, appErr.InternalServerError, "stat submission %s", submissionID)
	}
	if !info.IsDir() {
		return appErr.Newf(appErr.SubmissionNotDirectory, "submission %s is not a directory", submissionID)
	}
	if _, tracked := d.submissions.Load(submissionID); tracked {
		return appErr.Newf(appErr.DuplicatedSubmission, "submission %s is already registered", submissionID)
	}

	m, err := meta.Load(layout.Root)
	if err != nil {
		return err
	}
	lang, err := m.ResolveLanguage(ctx, d.langs)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidMeta, "submission %s", submissionID)
	}

	sub := newSubmission(submissionID, d.epochs.Add(1), m, lang, layout,
		meta.NewLayout(d.cfg.HostSubmissionDir, submissionID), d.now())
	cases := sub.pending
	if _, loaded := d.submissions.LoadOrStore(submissionID, sub); loaded {
		return appErr.Newf(appErr.DuplicatedSubmission, "submission %s is already registered", submissionID)
	}

	if cases == 0 {
		logger.Warn(ctx, "submission declares no cases, finalizing immediately")
		sub.resultMu.Lock()
		sub.finalized = true
		sub.resultMu.Unlock()
		// the submission is admitted; a delivery failure is handled by the sink's backup
		if err := d.finalize(context.WithoutCancel(ctx), sub); err != nil {
			logger.Warn(ctx, "zero case submission finalized with error", zap.Error(err))
		}
		return nil
	}

	if sub.needsCompile() {
		if !d.queue.TryPush(job.Compile(submissionID).Tagged(sub.epoch)) {
			return d.rollback(ctx, sub)
		}
	}
	for i, t := range m.Tasks {
		for c := 0; c < t.CaseCount; c++ {
			if !d.queue.TryPush(job.Execute(submissionID, i, c).Tagged(sub.epoch)) {
				return d.rollback(ctx, sub)
			}
		}
	}
	logger.Info(ctx, "submission registered",
		zap.String("language", lang.ID),
		zap.Int("tasks", len(m.Tasks)),
		zap.Int("cases", cases))
	return nil
}

// rollback drops the state of a partially enqueued registration; its queued jobs become orphans.
func (d *Dispatcher) rollback(ctx context.Context, sub *submission) error {
	d.release(sub)
	logger.Warn(ctx, "job queue full, registration rolled back", zap.Int("queue_capacity", d.queue.Cap()))
	return appErr.Newf(appErr.JudgeQueueFull, "job queue is full (capacity %d)", d.queue.Cap())
}

// release forgets sub if it is still the tracked registration for its id.
func (d *Dispatcher) release(sub *submission) {
	d.submissions.Compute(sub.id, func(current *submission, loaded bool) (*submission, bool) {
		return current, loaded && current == sub
	})
}

// Stop asks the dispatch loop to exit at its next poll. In-flight units finish normally.
func (d *Dispatcher) Stop() {
	d.running.Store(false)
}

// Stats reports queue, container and submission counts.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		QueueLength:        d.queue.Len(),
		QueueCapacity:      d.queue.Cap(),
		Deferred:           int(d.deferred.Load()),
		RunningContainers:  int(d.containers.Load()),
		MaxContainers:      d.cfg.MaxContainers,
		TrackedSubmissions: d.submissions.Size(),
		Running:            d.running.Load(),
	}
}

// Tracked reports whether a submission id is currently in flight.
func (d *Dispatcher) Tracked(submissionID string) bool {
	_, ok := d.submissions.Load(submissionID)
	return ok
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return appErr.ValidationError("submission_id", "must be a single path element")
	}
	return nil
}
