package dispatcher

import (
	"context"
	"sort"

	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	finalizeDelivered = "delivered"
	finalizeFailed    = "delivery_failed"
	finalizeInvariant = "invariant_violation"
	finalizeTesting   = "testing"
)

// onCaseComplete records one case result for owner and finalizes the submission
// when it was the last pending case. Only one caller can observe completion.
func (d *Dispatcher) onCaseComplete(ctx context.Context, owner *submission, key string, res verdict.CaseResult) error {
	current, tracked := d.submissions.Load(owner.id)
	if !tracked || current != owner {
		logger.Warn(ctx, "late case result for untracked submission", zap.String("case", key))
		return appErr.Newf(appErr.SubmissionNotFound, "submission %s is not tracked", owner.id)
	}

	owner.resultMu.Lock()
	if owner.finalized {
		owner.resultMu.Unlock()
		logger.Warn(ctx, "late case result for finalized submission", zap.String("case", key))
		return appErr.Newf(appErr.SubmissionNotFound, "submission %s already finalized", owner.id)
	}
	if !owner.meta.Declares(key) {
		owner.resultMu.Unlock()
		err := appErr.InvariantError(owner.id, "case key %s is not declared", key)
		logger.Error(ctx, "scheduler invariant violated", zap.String("case", key), zap.Error(err))
		return err
	}
	if owner.results[key] != nil {
		owner.resultMu.Unlock()
		err := appErr.InvariantError(owner.id, "case key %s completed twice", key)
		logger.Error(ctx, "scheduler invariant violated", zap.String("case", key), zap.Error(err))
		return err
	}
	stored := res
	owner.results[key] = &stored
	owner.pending--
	complete := owner.pending == 0
	if complete {
		owner.finalized = true
	}
	owner.resultMu.Unlock()

	if complete {
		return d.finalize(ctx, owner)
	}
	return nil
}

// finalize builds the verdict, releases the submission and hands the verdict to the sink.
// The caller must have set sub.finalized; no result is written afterwards.
func (d *Dispatcher) finalize(ctx context.Context, sub *submission) error {
	elapsed := d.now().Sub(sub.createdAt)
	payload, err := buildPayload(sub.id, sub.meta, sub.results)
	d.release(sub)
	if err != nil {
		logger.Error(ctx, "verdict rejected, nothing delivered", zap.Error(err))
		d.recorder.ObserveFinalize(finalizeInvariant, elapsed)
		return err
	}
	logger.Info(ctx, "submission finalized", zap.Any("summary", payload.Summary()), zap.Duration("elapsed", elapsed))
	if d.onFinal != nil {
		d.onFinal(sub.id, payload)
	}
	if d.cfg.Testing {
		d.recorder.ObserveFinalize(finalizeTesting, elapsed)
		return nil
	}
	if err := d.sink.Deliver(ctx, sub.id, payload); err != nil {
		logger.Error(ctx, "result delivery failed", zap.Error(err))
		d.recorder.ObserveFinalize(finalizeFailed, elapsed)
		return err
	}
	d.recorder.ObserveFinalize(finalizeDelivered, elapsed)
	return nil
}

// buildPayload nests the flat result map per task, checking that every task holds
// exactly its declared cases with contiguous zero-based indices.
func buildPayload(id string, m meta.Meta, results map[string]*verdict.CaseResult) (verdict.Payload, error) {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tasks := make([][]verdict.CaseResult, len(m.Tasks))
	for i := range tasks {
		tasks[i] = make([]verdict.CaseResult, 0, m.Tasks[i].CaseCount)
	}
	for _, key := range keys {
		task, c, err := meta.ParseCaseKey(key)
		if err != nil {
			return verdict.Payload{}, appErr.InvariantError(id, "malformed case key %q", key)
		}
		if task >= len(tasks) {
			return verdict.Payload{}, appErr.InvariantError(id, "case key %s outside %d tasks", key, len(tasks))
		}
		if c != len(tasks[task]) {
			return verdict.Payload{}, appErr.InvariantError(id, "task %d: expected case %d, found %d", task, len(tasks[task]), c)
		}
		res := results[key]
		if res == nil {
			return verdict.Payload{}, appErr.InvariantError(id, "case %s finalized while pending", key)
		}
		tasks[task] = append(tasks[task], *res)
	}
	for i, t := range m.Tasks {
		if len(tasks[i]) != t.CaseCount {
			return verdict.Payload{}, appErr.InvariantError(id, "task %d: %d results for %d declared cases", i, len(tasks[i]), t.CaseCount)
		}
	}
	return verdict.Payload{Tasks: tasks}, nil
}
