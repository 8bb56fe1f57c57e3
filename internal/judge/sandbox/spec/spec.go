// Package spec defines the execution specification and resource limits.
package spec

import "time"

// ResourceLimit describes hard limits enforced by the in-sandbox limiter.
type ResourceLimit struct {
	TimeMs      int64
	MemoryKB    int64
	OutputBytes int64
	Processes   int64
}

// Timeout is the limit as a duration.
func (l ResourceLimit) Timeout() time.Duration {
	return time.Duration(l.TimeMs) * time.Millisecond
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one sandbox run.
type RunSpec struct {
	// Name tags the container for operators; a random suffix is added by the engine.
	Name       string
	Image      string
	WorkDir    string
	Cmd        []string
	Env        []string
	BindMounts []MountSpec
	Limits     ResourceLimit
}
