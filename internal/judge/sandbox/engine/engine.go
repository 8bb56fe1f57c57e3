package engine

import (
	"context"

	"judgehost/internal/judge/sandbox/result"
	"judgehost/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
// A returned error means the run could not be observed and is a judge error.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecResult, error)
	Ping(ctx context.Context) error
}
