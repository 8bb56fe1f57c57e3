package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/result"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/internal/judge/verdict"
)

type fakeEngine struct {
	mu    sync.Mutex
	res   result.ExecResult
	err   error
	specs []spec.RunSpec
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, runSpec)
	return f.res, f.err
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func language(t *testing.T, id string) profile.LanguageSpec {
	t.Helper()
	repo, err := profile.NewStaticRepository(nil)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	l, err := repo.GetLanguageSpec(context.Background(), id)
	if err != nil {
		t.Fatalf("language %s: %v", id, err)
	}
	return l
}

func TestCompileOutcomes(t *testing.T) {
	cases := []struct {
		name string
		res  result.ExecResult
		err  error
		want verdict.Status
	}{
		{"clean exit", result.ExecResult{Outcome: result.OutcomeExited}, nil, verdict.AC},
		{"non zero exit", result.ExecResult{Outcome: result.OutcomeExited, ExitCode: 1, Stderr: "main.c:1: error"}, nil, verdict.CE},
		{"killed", result.ExecResult{Outcome: result.OutcomeTLE}, nil, verdict.CE},
		{"sandbox failure", result.ExecResult{}, errors.New("docker down"), verdict.JE},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{res: tc.res, err: tc.err}
			r := runner.NewRunner(eng)
			out := r.Compile(context.Background(), runner.Submission{ID: "s1", Language: language(t, "c11"), SrcDir: "/host/s1/src"})
			if out.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, out.Status)
			}
			if tc.want == verdict.CE && out.Stderr != tc.res.Stderr {
				t.Fatalf("expected compiler stderr kept, got %q", out.Stderr)
			}
			if tc.want == verdict.JE && out.Err == nil {
				t.Fatalf("expected sandbox error kept")
			}
			got := eng.specs[0]
			if got.Limits.TimeMs != 30_000 || got.Limits.MemoryKB != 1<<20 {
				t.Fatalf("expected fixed compile limits, got %+v", got.Limits)
			}
			wantCmd := "sandbox c11 1 /dev/null /result/stdout /result/stderr 30000 1048576 1 1073741824 10 /result/result"
			if strings.Join(got.Cmd, " ") != wantCmd {
				t.Fatalf("unexpected compile command %q", strings.Join(got.Cmd, " "))
			}
		})
	}
}

func TestCompileSkippedForInterpretedLanguage(t *testing.T) {
	eng := &fakeEngine{}
	out := runner.NewRunner(eng).Compile(context.Background(), runner.Submission{ID: "s1", Language: language(t, "python3")})
	if out.Status != verdict.AC || len(eng.specs) != 0 {
		t.Fatalf("expected AC without sandbox, got %s and %d runs", out.Status, len(eng.specs))
	}
}

func TestRunClassifies(t *testing.T) {
	dir := t.TempDir()
	expectedPath := filepath.Join(dir, "0000.out")
	if err := os.WriteFile(expectedPath, []byte("5\n"), 0644); err != nil {
		t.Fatalf("write expected: %v", err)
	}

	cases := []struct {
		name     string
		res      result.ExecResult
		err      error
		expected string
		want     verdict.Status
	}{
		{"accepted", result.ExecResult{Outcome: result.OutcomeExited, Stdout: "5 \n\n", DurationMs: 3, MemoryKB: 900}, nil, expectedPath, verdict.AC},
		{"wrong answer", result.ExecResult{Outcome: result.OutcomeExited, Stdout: "6"}, nil, expectedPath, verdict.WA},
		{"time limit passes through", result.ExecResult{Outcome: result.OutcomeTLE, Stdout: "5"}, nil, expectedPath, verdict.TLE},
		{"sandbox failure", result.ExecResult{}, errors.New("wait timeout"), expectedPath, verdict.JE},
		{"missing expected output", result.ExecResult{Outcome: result.OutcomeExited, Stdout: "5"}, nil, filepath.Join(dir, "nope.out"), verdict.JE},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{res: tc.res, err: tc.err}
			r := runner.NewRunner(eng)
			got := r.Run(context.Background(), runner.Case{
				Submission:   runner.Submission{ID: "s1", Language: language(t, "cpp17"), SrcDir: "/host/s1/src"},
				Key:          "0000",
				InputPath:    "/host/s1/testcase/0000.in",
				ExpectedPath: tc.expected,
				Limits:       spec.ResourceLimit{TimeMs: 1000, MemoryKB: 65536},
			})
			if got.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Status)
			}
			if tc.err == nil && (got.ExecTime != tc.res.DurationMs || got.Stdout != tc.res.Stdout) {
				t.Fatalf("expected measured fields copied, got %+v", got)
			}
		})
	}
}

func TestRunSpecBindsInput(t *testing.T) {
	eng := &fakeEngine{res: result.ExecResult{Outcome: result.OutcomeRE}}
	runner.NewRunner(eng).Run(context.Background(), runner.Case{
		Submission: runner.Submission{ID: "s1", Language: language(t, "python3"), SrcDir: "/host/s1/src"},
		Key:        "0102",
		InputPath:  "/host/s1/testcase/0102.in",
		Limits:     spec.ResourceLimit{TimeMs: 2000, MemoryKB: 131072},
	})
	got := eng.specs[0]
	if got.Image != "noj-py3" || got.WorkDir != "/src" {
		t.Fatalf("unexpected spec %+v", got)
	}
	if len(got.BindMounts) != 2 || !got.BindMounts[1].ReadOnly || got.BindMounts[1].Target != "/testdata/in" {
		t.Fatalf("unexpected mounts %+v", got.BindMounts)
	}
	wantCmd := "sandbox python3 0 /testdata/in /result/stdout /result/stderr 2000 131072 1 1073741824 10 /result/result"
	if strings.Join(got.Cmd, " ") != wantCmd {
		t.Fatalf("unexpected run command %q", strings.Join(got.Cmd, " "))
	}
}
