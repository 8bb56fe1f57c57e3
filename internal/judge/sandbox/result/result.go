// Package result defines sandbox execution results and the limiter report format.
package result

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Outcome is how the in-sandbox limiter saw the program end.
type Outcome string

const (
	OutcomeExited Outcome = "Exited Normally"
	OutcomeTLE    Outcome = "TLE"
	OutcomeMLE    Outcome = "MLE"
	OutcomeRE     Outcome = "RE"
	OutcomeOLE    Outcome = "OLE"
)

// ExecResult captures raw sandbox execution data.
type ExecResult struct {
	Outcome    Outcome
	Message    string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
	MemoryKB   int64
}

// CleanExit reports whether the program exited on its own with status 0.
func (r ExecResult) CleanExit() bool {
	return r.Outcome == OutcomeExited && r.ExitCode == 0
}

// Report is the parsed content of the limiter's result file.
type Report struct {
	Outcome    Outcome
	Message    string
	ExitCode   int
	HasExit    bool
	DurationMs int64
	MemoryKB   int64
}

var exitStatusPattern = regexp.MustCompile(`WEXITSTATUS\(\) = (-?\d+)`)

// ParseReport reads the four line result file: status, exit message, CPU time ms, peak memory KB.
func ParseReport(r io.Reader) (Report, error) {
	sc := bufio.NewScanner(r)
	lines := make([]string, 0, 4)
	for sc.Scan() && len(lines) < 4 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return Report{}, fmt.Errorf("read result file: %w", err)
	}
	if len(lines) < 4 {
		return Report{}, fmt.Errorf("result file has %d lines, want 4", len(lines))
	}

	var rep Report
	switch outcome := Outcome(lines[0]); outcome {
	case OutcomeExited, OutcomeTLE, OutcomeMLE, OutcomeRE, OutcomeOLE:
		rep.Outcome = outcome
	default:
		return Report{}, fmt.Errorf("unknown sandbox status %q", lines[0])
	}
	rep.Message = lines[1]
	if m := exitStatusPattern.FindStringSubmatch(rep.Message); m != nil {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			return Report{}, fmt.Errorf("parse exit status %q: %w", m[1], err)
		}
		rep.ExitCode = code
		rep.HasExit = true
	}
	duration, err := strconv.ParseInt(lines[2], 10, 64)
	if err != nil {
		return Report{}, fmt.Errorf("parse duration %q: %w", lines[2], err)
	}
	memory, err := strconv.ParseInt(lines[3], 10, 64)
	if err != nil {
		return Report{}, fmt.Errorf("parse memory %q: %w", lines[3], err)
	}
	rep.DurationMs = duration
	rep.MemoryKB = memory
	return rep, nil
}
