package meta

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// maxIndex is the largest task or case index a two digit key can hold.
const maxIndex = 99

// CaseKey formats (task, case) as a fixed width key so lexical and numeric order agree.
func CaseKey(task, c int) string {
	return fmt.Sprintf("%02d%02d", task, c)
}

// ParseCaseKey inverts CaseKey.
func ParseCaseKey(key string) (task, c int, err error) {
	if len(key) != 4 {
		return 0, 0, fmt.Errorf("case key %q must have 4 digits", key)
	}
	task, err = strconv.Atoi(key[:2])
	if err != nil {
		return 0, 0, fmt.Errorf("case key %q: %w", key, err)
	}
	c, err = strconv.Atoi(key[2:])
	if err != nil {
		return 0, 0, fmt.Errorf("case key %q: %w", key, err)
	}
	if task < 0 || c < 0 {
		return 0, 0, fmt.Errorf("case key %q is negative", key)
	}
	return task, c, nil
}

// Layout names the directories and files of one materialized submission.
type Layout struct {
	Root string
}

// NewLayout roots a layout at <base>/<submissionID>.
func NewLayout(base, submissionID string) Layout {
	return Layout{Root: filepath.Join(base, submissionID)}
}

func (l Layout) SrcDir() string      { return filepath.Join(l.Root, "src") }
func (l Layout) TestcaseDir() string { return filepath.Join(l.Root, "testcase") }
func (l Layout) ResultFile() string  { return filepath.Join(l.Root, "result.json") }

// Input is the input file of a case.
func (l Layout) Input(key string) string {
	return filepath.Join(l.TestcaseDir(), key+".in")
}

// Output is the expected output file of a case.
func (l Layout) Output(key string) string {
	return filepath.Join(l.TestcaseDir(), key+".out")
}
