// Package observer defines metrics hooks for sandbox execution.
package observer

import "context"

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, status string, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, status string, timeMs int64, memoryKB int64)
	ObserveSandboxError(ctx context.Context, stage string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveCompile(context.Context, string, string, int64, int64) {}
func (Nop) ObserveRun(context.Context, string, string, int64, int64)     {}
func (Nop) ObserveSandboxError(context.Context, string)                  {}
