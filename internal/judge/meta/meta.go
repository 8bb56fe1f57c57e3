// Package meta reads and validates submission metadata and names test case files.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"judgehost/internal/judge/sandbox/profile"
	appErr "judgehost/pkg/errors"
)

// FileName is the metadata file inside a submission directory.
const FileName = "meta.json"

const totalScore = 100

// Task is one scored group of cases sharing limits.
type Task struct {
	TaskScore int `json:"taskScore"`
	// MemoryLimit is in KB.
	MemoryLimit int64 `json:"memoryLimit"`
	// TimeLimit is in ms.
	TimeLimit int64 `json:"timeLimit"`
	CaseCount int   `json:"caseCount"`
}

// Meta describes a submission: its language and ordered tasks.
type Meta struct {
	Language int    `json:"language"`
	Tasks    []Task `json:"tasks"`
}

// Load reads and validates <dir>/meta.json.
func Load(dir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return Meta{}, appErr.Wrapf(err, appErr.InvalidMeta, "read %s", FileName)
	}
	return Parse(data)
}

// Parse decodes and validates metadata bytes.
func Parse(data []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, appErr.Wrapf(err, appErr.InvalidMeta, "decode %s", FileName)
	}
	if err := m.Validate(); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Write stores the metadata as <dir>/meta.json.
func Write(dir string, m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidMeta, "encode %s", FileName)
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0644)
}

// Validate checks task structure: at least one task, non-negative values and scores summing to 100.
func (m Meta) Validate() error {
	if len(m.Tasks) == 0 {
		return appErr.New(appErr.InvalidMeta).WithMessage("tasks must not be empty")
	}
	sum := 0
	for i, t := range m.Tasks {
		if t.TaskScore < 0 || t.MemoryLimit < 0 || t.TimeLimit < 0 || t.CaseCount < 0 {
			return appErr.Newf(appErr.InvalidMeta, "task %d has a negative value", i)
		}
		if t.CaseCount > 0 && (t.TimeLimit == 0 || t.MemoryLimit == 0) {
			return appErr.Newf(appErr.InvalidMeta, "task %d needs time and memory limits", i)
		}
		if t.CaseCount > maxIndex+1 {
			return appErr.Newf(appErr.InvalidMeta, "task %d declares %d cases, at most %d allowed", i, t.CaseCount, maxIndex+1)
		}
		sum += t.TaskScore
	}
	if len(m.Tasks) > maxIndex+1 {
		return appErr.Newf(appErr.InvalidMeta, "%d tasks declared, at most %d allowed", len(m.Tasks), maxIndex+1)
	}
	if sum != totalScore {
		return appErr.Newf(appErr.InvalidMeta, "sum of scores must be %d, got %d", totalScore, sum)
	}
	return nil
}

// ResolveLanguage maps the metadata language id to its profile.
func (m Meta) ResolveLanguage(ctx context.Context, repo profile.LanguageSpecRepository) (profile.LanguageSpec, error) {
	return repo.GetByMetaID(ctx, m.Language)
}

// CaseTotal is the number of declared cases across all tasks.
func (m Meta) CaseTotal() int {
	n := 0
	for _, t := range m.Tasks {
		n += t.CaseCount
	}
	return n
}

// Keys lists every declared case key in task-then-case order.
func (m Meta) Keys() []string {
	keys := make([]string, 0, m.CaseTotal())
	for i, t := range m.Tasks {
		for j := 0; j < t.CaseCount; j++ {
			keys = append(keys, CaseKey(i, j))
		}
	}
	return keys
}

// Declares reports whether key names a case inside the declared task/case ranges.
func (m Meta) Declares(key string) bool {
	task, c, err := ParseCaseKey(key)
	if err != nil {
		return false
	}
	return task < len(m.Tasks) && c < m.Tasks[task].CaseCount
}

func (m Meta) String() string {
	return fmt.Sprintf("language=%d tasks=%d cases=%d", m.Language, len(m.Tasks), m.CaseTotal())
}
