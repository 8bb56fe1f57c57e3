package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"

	"judgehost/internal/judge/job"
	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

// compileUnit runs the single-flight compile of a submission and caches the outcome.
func (d *Dispatcher) compileUnit(ctx context.Context, sub *submission) {
	slot := d.slotReleaser()
	defer slot()

	if !sub.needsCompile() {
		logger.Warn(ctx, "compile requested for a language without compile step", zap.String("language", sub.lang.ID))
		return
	}
	if !sub.compileMu.TryLock() {
		logger.Error(ctx, "compile already in progress, refusing second attempt")
		return
	}
	defer sub.compileMu.Unlock()

	logger.Info(ctx, "compile started", zap.String("language", sub.lang.ID))
	out := d.safeCompile(ctx, sub)
	slot()
	sub.setCompile(out)
	logger.Info(ctx, "compile finished", zap.String("status", out.Status.String()))
}

func (d *Dispatcher) safeCompile(ctx context.Context, sub *submission) (out runner.CompileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "compile panicked", zap.String("panic", fmt.Sprint(r)), zap.String("stack", string(debug.Stack())))
			out = runner.CompileOutcome{
				Status: verdict.JE,
				Err:    appErr.Newf(appErr.JudgeSystemError, "compile panicked: %v", r),
			}
		}
	}()
	return d.runner.Compile(ctx, sub.runnerSubmission())
}

// executeUnit runs one case, frees its container slot, then reports the result.
func (d *Dispatcher) executeUnit(ctx context.Context, sub *submission, j job.Job) {
	slot := d.slotReleaser()
	res := d.safeRun(ctx, sub, j)
	slot()

	ctx = logger.WithSubmission(ctx, sub.id)
	logger.Debug(ctx, "case finished", zap.String("case", j.Key()), zap.String("status", res.Status.String()),
		zap.Int64("time_ms", res.ExecTime), zap.Int64("memory_kb", res.MemoryUsage))
	if err := d.onCaseComplete(ctx, sub, j.Key(), res); err != nil && !appErr.Is(err, appErr.SubmissionNotFound) {
		logger.Error(ctx, "case completion failed", zap.String("case", j.Key()), zap.Error(err))
	}
}

func (d *Dispatcher) safeRun(ctx context.Context, sub *submission, j job.Job) (res verdict.CaseResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "execution panicked", zap.String("case", j.Key()),
				zap.String("panic", fmt.Sprint(r)), zap.String("stack", string(debug.Stack())))
			res = verdict.Unrun(verdict.JE, "")
		}
	}()

	compiled, done := sub.compileOutcome()
	if !done {
		// the loop only dispatches once the compile landed
		logger.Error(ctx, "case dispatched before compile finished", zap.String("case", j.Key()))
		return verdict.Unrun(verdict.JE, "")
	}
	switch compiled.Status {
	case verdict.AC:
		return d.runner.Run(ctx, sub.runnerCase(j.Task, j.Case))
	case verdict.CE:
		return verdict.Unrun(verdict.CE, compiled.Stderr)
	default:
		return verdict.Unrun(compiled.Status, "")
	}
}

// slotReleaser returns an idempotent release of the container slot reserved by the loop.
func (d *Dispatcher) slotReleaser() func() {
	released := false
	return func() {
		if !released {
			released = true
			d.containers.Add(-1)
		}
	}
}

func caseLimits(t meta.Task) spec.ResourceLimit {
	return spec.ResourceLimit{TimeMs: t.TimeLimit, MemoryKB: t.MemoryLimit}
}
