// Package job defines the units of work queued by the dispatcher.
package job

import (
	"fmt"

	"judgehost/internal/judge/meta"
)

// Kind tags the two job variants.
type Kind uint8

const (
	KindCompile Kind = iota + 1
	KindExecute
)

func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindExecute:
		return "execute"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Job is immutable once created; Requeued returns a new value.
type Job struct {
	Kind         Kind
	SubmissionID string
	Task         int
	Case         int
	// Epoch ties the job to one registration of SubmissionID.
	Epoch uint64
	// Requeues counts how often the job was deferred while its compile was pending.
	Requeues int
}

// Compile builds the compile job of a submission.
func Compile(submissionID string) Job {
	return Job{Kind: KindCompile, SubmissionID: submissionID}
}

// Execute builds the job running one case.
func Execute(submissionID string, task, c int) Job {
	return Job{Kind: KindExecute, SubmissionID: submissionID, Task: task, Case: c}
}

// Tagged returns a copy bound to a registration epoch.
func (j Job) Tagged(epoch uint64) Job {
	j.Epoch = epoch
	return j
}

// Requeued returns a copy with the requeue counter incremented.
func (j Job) Requeued() Job {
	j.Requeues++
	return j
}

// Key is the case key of an Execute job and empty for Compile.
func (j Job) Key() string {
	if j.Kind != KindExecute {
		return ""
	}
	return meta.CaseKey(j.Task, j.Case)
}

func (j Job) String() string {
	if j.Kind == KindExecute {
		return fmt.Sprintf("execute(%s/%s)", j.SubmissionID, j.Key())
	}
	return fmt.Sprintf("%s(%s)", j.Kind, j.SubmissionID)
}
