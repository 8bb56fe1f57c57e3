package dispatcher

import (
	"context"
	"time"

	"judgehost/internal/judge/job"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	discardOrphan = "orphan"
	discardStale  = "stale"
)

// Run is the dispatch loop. It returns after Stop or ctx cancellation, once in-flight units have drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("dispatcher is already running")
	}
	d.pool = newPool(d.cfg.MaxContainers)
	d.pool.Start()
	defer d.pool.Shutdown()

	// units outlive the loop context: stopping never cancels a running sandbox
	unitCtx := context.WithoutCancel(ctx)
	logger.Info(ctx, "dispatcher started",
		zap.Int("queue_size", d.cfg.QueueSize),
		zap.Int("max_containers", d.cfg.MaxContainers))

	var backlog []job.Job
	deferStreak := 0
	for d.running.Load() {
		if ctx.Err() != nil {
			d.running.Store(false)
			break
		}
		backlog = d.flushBacklog(backlog)

		if d.queue.Len() == 0 || d.atCapacity() {
			d.sleep(ctx)
			continue
		}
		j, ok := d.queue.TryPop()
		if !ok {
			d.sleep(ctx)
			continue
		}

		if deferred, ok := d.dispatch(unitCtx, j); ok {
			deferStreak = 0
		} else if deferred != nil {
			backlog = d.requeue(*deferred, backlog)
			deferStreak++
			// a full pass over the queue only deferred: wait for a compile to land
			if deferStreak > d.queue.Len()+len(backlog) {
				deferStreak = 0
				d.sleep(ctx)
			}
		}
	}
	logger.Info(ctx, "dispatcher stopping, waiting for running units",
		zap.Int64("running_containers", d.containers.Load()))
	return nil
}

func (d *Dispatcher) atCapacity() bool {
	return d.containers.Load() >= int64(d.cfg.MaxContainers)
}

func (d *Dispatcher) sleep(ctx context.Context) {
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// dispatch handles one dequeued job. It returns ok when the job was started or
// discarded, or the job to put back when it must wait for its compile.
func (d *Dispatcher) dispatch(ctx context.Context, j job.Job) (*job.Job, bool) {
	jobCtx := logger.WithSubmission(ctx, j.SubmissionID)
	sub, tracked := d.submissions.Load(j.SubmissionID)
	if !tracked || sub.epoch != j.Epoch {
		logger.Debug(jobCtx, "discard job", zap.String("reason", discardOrphan), zap.String("job", j.String()))
		d.recorder.ObserveDiscard(discardOrphan)
		return nil, true
	}
	if d.cfg.StaleTimeout > 0 && d.now().Sub(sub.createdAt) > d.cfg.StaleTimeout {
		d.release(sub)
		logger.Warn(jobCtx, "discard job", zap.String("reason", discardStale), zap.String("job", j.String()),
			zap.Duration("age", d.now().Sub(sub.createdAt)))
		d.recorder.ObserveDiscard(discardStale)
		return nil, true
	}

	switch j.Kind {
	case job.KindCompile:
		d.containers.Add(1)
		d.pool.Submit(func() { d.compileUnit(jobCtx, sub) })
	case job.KindExecute:
		if _, done := sub.compileOutcome(); !done {
			requeued := j.Requeued()
			d.recorder.ObserveDefer()
			return &requeued, false
		}
		d.containers.Add(1)
		d.pool.Submit(func() { d.executeUnit(jobCtx, sub, j) })
	default:
		logger.Error(jobCtx, "unknown job kind", zap.String("job", j.String()))
	}
	return nil, true
}

// requeue puts a deferred job back, keeping it in the loop-local backlog while the queue is full.
func (d *Dispatcher) requeue(j job.Job, backlog []job.Job) []job.Job {
	if len(backlog) == 0 && d.queue.TryPush(j) {
		return backlog
	}
	backlog = append(backlog, j)
	d.deferred.Store(int64(len(backlog)))
	return backlog
}

func (d *Dispatcher) flushBacklog(backlog []job.Job) []job.Job {
	if len(backlog) == 0 {
		return backlog
	}
	n := 0
	for n < len(backlog) && d.queue.TryPush(backlog[n]) {
		n++
	}
	backlog = backlog[n:]
	d.deferred.Store(int64(len(backlog)))
	return backlog
}
