package profile

import "judgehost/internal/judge/sandbox/spec"

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources for a task type.
type TaskProfile struct {
	TaskType      TaskType
	DefaultLimits spec.ResourceLimit
}

// DefaultCompileProfile is used for every compile run; it is independent of submission limits.
func DefaultCompileProfile() TaskProfile {
	return TaskProfile{
		TaskType: TaskTypeCompile,
		DefaultLimits: spec.ResourceLimit{
			TimeMs:      30_000,
			MemoryKB:    1 << 20,
			OutputBytes: 1 << 30,
			Processes:   10,
		},
	}
}

// DefaultRunProfile carries the run limits not taken from task metadata.
func DefaultRunProfile() TaskProfile {
	return TaskProfile{
		TaskType: TaskTypeRun,
		DefaultLimits: spec.ResourceLimit{
			OutputBytes: 1 << 30,
			Processes:   10,
		},
	}
}
