package runner

import (
	"context"
	"os"
	"strconv"
	"strings"

	"judgehost/internal/judge/sandbox/engine"
	"judgehost/internal/judge/sandbox/observer"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	containerSrcDir   = "/src"
	containerStdin    = "/testdata/in"
	noStdin           = "/dev/null"
	compileStageLabel = "compile"
	runStageLabel     = "run"
)

// DefaultRunner implements compile/run workflows on top of a sandbox engine.
type DefaultRunner struct {
	eng            engine.Engine
	metrics        observer.MetricsRecorder
	compileProfile profile.TaskProfile
	runProfile     profile.TaskProfile
}

// Option customizes a DefaultRunner.
type Option func(*DefaultRunner)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m observer.MetricsRecorder) Option {
	return func(r *DefaultRunner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithCompileProfile overrides the fixed compile limits.
func WithCompileProfile(p profile.TaskProfile) Option {
	return func(r *DefaultRunner) { r.compileProfile = p }
}

// WithRunProfile overrides the run limits not taken from task metadata.
func WithRunProfile(p profile.TaskProfile) Option {
	return func(r *DefaultRunner) { r.runProfile = p }
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine, opts ...Option) *DefaultRunner {
	r := &DefaultRunner{
		eng:            eng,
		metrics:        observer.Nop{},
		compileProfile: profile.DefaultCompileProfile(),
		runProfile:     profile.DefaultRunProfile(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compile runs the language compile command with the compile profile limits.
func (r *DefaultRunner) Compile(ctx context.Context, sub Submission) CompileOutcome {
	if !sub.Language.CompileEnabled {
		return CompileOutcome{Status: verdict.AC}
	}
	limits := r.compileProfile.DefaultLimits
	cmd, err := buildCommand(sub.Language.CompileCmdTpl, sub.Language, noStdin, limits)
	if err != nil {
		return CompileOutcome{Status: verdict.JE, Err: err}
	}

	runSpec := spec.RunSpec{
		Name:    sub.ID + "-compile",
		Image:   sub.Language.Image,
		WorkDir: containerSrcDir,
		Cmd:     cmd,
		Env:     sub.Language.Env,
		Limits:  limits,
		BindMounts: []spec.MountSpec{
			{Source: sub.SrcDir, Target: containerSrcDir},
		},
	}
	exec, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		r.metrics.ObserveSandboxError(ctx, compileStageLabel)
		logger.Error(ctx, "compile sandbox failed", zap.String("language", sub.Language.ID), zap.Error(err))
		return CompileOutcome{Status: verdict.JE, Err: appErr.Wrapf(err, appErr.SandboxUnavailable, "compile %s", sub.ID)}
	}

	outcome := CompileOutcome{Status: verdict.AC, Exec: exec, Stderr: exec.Stderr}
	if !exec.CleanExit() {
		outcome.Status = verdict.CE
	}
	r.metrics.ObserveCompile(ctx, sub.Language.ID, outcome.Status.String(), exec.DurationMs, exec.MemoryKB)
	return outcome
}

// Run executes one case and classifies it against the expected output.
func (r *DefaultRunner) Run(ctx context.Context, c Case) verdict.CaseResult {
	limits := mergeLimits(r.runProfile.DefaultLimits, c.Limits)
	stdin := noStdin
	mounts := []spec.MountSpec{{Source: c.Submission.SrcDir, Target: containerSrcDir}}
	if c.InputPath != "" {
		stdin = containerStdin
		mounts = append(mounts, spec.MountSpec{Source: c.InputPath, Target: containerStdin, ReadOnly: true})
	}

	cmd, err := buildCommand(c.Submission.Language.RunCmdTpl, c.Submission.Language, stdin, limits)
	if err != nil {
		logger.Error(ctx, "build run command failed", zap.String("case", c.Key), zap.Error(err))
		return verdict.Unrun(verdict.JE, "")
	}
	runSpec := spec.RunSpec{
		Name:       c.Submission.ID + "-" + c.Key,
		Image:      c.Submission.Language.Image,
		WorkDir:    containerSrcDir,
		Cmd:        cmd,
		Env:        c.Submission.Language.Env,
		Limits:     limits,
		BindMounts: mounts,
	}
	exec, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		r.metrics.ObserveSandboxError(ctx, runStageLabel)
		logger.Error(ctx, "run sandbox failed", zap.String("case", c.Key), zap.Error(err))
		return verdict.Unrun(verdict.JE, "")
	}

	expected, err := os.Open(c.ExpectedPath)
	if err != nil {
		logger.Error(ctx, "open expected output failed", zap.String("case", c.Key), zap.Error(err))
		return verdict.FromExec(exec, verdict.JE)
	}
	defer expected.Close()

	status := verdict.Classify(exec, expected)
	r.metrics.ObserveRun(ctx, c.Submission.Language.ID, status.String(), exec.DurationMs, exec.MemoryKB)
	return verdict.FromExec(exec, status)
}

func buildCommand(tpl string, lang profile.LanguageSpec, stdin string, limits spec.ResourceLimit) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.NewReplacer(
		"{lang}", lang.ID,
		"{src}", containerSrcDir+"/"+lang.SourceFile,
		"{bin}", containerSrcDir+"/"+lang.BinaryFile,
		"{stdin}", stdin,
		"{time}", strconv.FormatInt(limits.TimeMs, 10),
		"{memory}", strconv.FormatInt(limits.MemoryKB, 10),
		"{output}", strconv.FormatInt(limits.OutputBytes, 10),
		"{procs}", strconv.FormatInt(limits.Processes, 10),
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.TimeMs > 0 {
		base.TimeMs = override.TimeMs
	}
	if override.MemoryKB > 0 {
		base.MemoryKB = override.MemoryKB
	}
	if override.OutputBytes > 0 {
		base.OutputBytes = override.OutputBytes
	}
	if override.Processes > 0 {
		base.Processes = override.Processes
	}
	return base
}
