package runner

import (
	"context"

	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/result"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/internal/judge/verdict"
)

// Submission identifies the source tree one compile or run works on.
type Submission struct {
	ID       string
	Language profile.LanguageSpec
	// SrcDir is the source directory as seen by the docker daemon.
	SrcDir string
}

// Case is one execution of a submission against a test case.
type Case struct {
	Submission Submission
	Key        string
	// InputPath is the case input as seen by the docker daemon; empty means no stdin.
	InputPath string
	// ExpectedPath is the expected output readable by this process.
	ExpectedPath string
	Limits       spec.ResourceLimit
}

// CompileOutcome is the classified result of a compile attempt: AC, CE or JE.
type CompileOutcome struct {
	Status verdict.Status
	Stderr string
	Exec   result.ExecResult
	// Err is set when the sandbox itself failed.
	Err error
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, sub Submission) CompileOutcome
	Run(ctx context.Context, c Case) verdict.CaseResult
}
