package result_test

import (
	"strings"
	"testing"

	"judgehost/internal/judge/sandbox/result"
)

func TestParseReport(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		want    result.Report
		wantErr bool
	}{
		{
			name:  "normal exit",
			input: "Exited Normally\nWIFEXITED - WEXITSTATUS() = 0\n12\n2048\n",
			want:  result.Report{Outcome: result.OutcomeExited, Message: "WIFEXITED - WEXITSTATUS() = 0", HasExit: true, DurationMs: 12, MemoryKB: 2048},
		},
		{
			name:  "non zero exit",
			input: "Exited Normally\nWIFEXITED - WEXITSTATUS() = 3\n5\n100\n",
			want:  result.Report{Outcome: result.OutcomeExited, Message: "WIFEXITED - WEXITSTATUS() = 3", ExitCode: 3, HasExit: true, DurationMs: 5, MemoryKB: 100},
		},
		{
			name:  "time limit without exit status",
			input: "TLE\nWIFSIGNALED - WTERMSIG() = 9\n1001\n512",
			want:  result.Report{Outcome: result.OutcomeTLE, Message: "WIFSIGNALED - WTERMSIG() = 9", DurationMs: 1001, MemoryKB: 512},
		},
		{name: "unknown status", input: "Weird\nx\n1\n1\n", wantErr: true},
		{name: "short file", input: "RE\nx\n", wantErr: true},
		{name: "bad number", input: "MLE\nx\nabc\n1\n", wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := result.ParseReport(strings.NewReader(tc.input))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestCleanExit(t *testing.T) {
	if !(result.ExecResult{Outcome: result.OutcomeExited}).CleanExit() {
		t.Fatalf("exit 0 should be clean")
	}
	if (result.ExecResult{Outcome: result.OutcomeExited, ExitCode: 1}).CleanExit() {
		t.Fatalf("exit 1 should not be clean")
	}
	if (result.ExecResult{Outcome: result.OutcomeRE}).CleanExit() {
		t.Fatalf("RE should not be clean")
	}
}
