package verdict

import (
	"io"
	"strings"

	"judgehost/internal/judge/sandbox/result"
)

var passThrough = map[result.Outcome]Status{
	result.OutcomeTLE: TLE,
	result.OutcomeMLE: MLE,
	result.OutcomeRE:  RE,
	result.OutcomeOLE: OLE,
}

// Classify turns a sandbox result into a case status. Resource and runtime
// failures pass through without looking at the output; a normal exit is
// compared against expected.
func Classify(exec result.ExecResult, expected io.Reader) Status {
	if status, ok := passThrough[exec.Outcome]; ok {
		return status
	}
	if exec.Outcome != result.OutcomeExited {
		return JE
	}
	if expected == nil {
		return JE
	}
	if Compare(expected, strings.NewReader(exec.Stdout)) {
		return AC
	}
	return WA
}

// FromExec copies the measured fields of a sandbox result into a case result.
func FromExec(exec result.ExecResult, status Status) CaseResult {
	return CaseResult{
		Stdout:      exec.Stdout,
		Stderr:      exec.Stderr,
		ExitCode:    exec.ExitCode,
		ExecTime:    exec.DurationMs,
		MemoryUsage: exec.MemoryKB,
		Status:      status,
	}
}
