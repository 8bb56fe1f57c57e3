// Package verdict defines case statuses, the output comparison policy and the verdict payload.
package verdict

import (
	"encoding/json"
	"fmt"
)

// Status is the terminal outcome of one case or compile attempt.
type Status uint8

const (
	AC Status = iota
	WA
	CE
	TLE
	MLE
	RE
	JE
	OLE
)

var statusNames = map[Status]string{
	AC:  "AC",
	WA:  "WA",
	CE:  "CE",
	TLE: "TLE",
	MLE: "MLE",
	RE:  "RE",
	JE:  "JE",
	OLE: "OLE",
}

// Code returns the integer the grading backend uses for the status.
func (s Status) Code() int {
	return int(s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the named statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Failed reports whether the status ends a case without an accepted answer.
func (s Status) Failed() bool {
	return s != AC
}

// ParseStatus maps a status name back to its Status.
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return JE, fmt.Errorf("unknown status %q", name)
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CaseResult is the per-case entry of the verdict payload.
type CaseResult struct {
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exitCode"`
	ExecTime    int64  `json:"execTime"`
	MemoryUsage int64  `json:"memoryUsage"`
	Status      Status `json:"status"`
}

// Unrun builds the result of a case that never reached the sandbox.
func Unrun(status Status, stderr string) CaseResult {
	return CaseResult{
		Stderr:      stderr,
		ExitCode:    -1,
		ExecTime:    -1,
		MemoryUsage: -1,
		Status:      status,
	}
}

// Payload is the finalized verdict of a submission, one list of case results per task.
type Payload struct {
	Tasks [][]CaseResult `json:"tasks"`
}

// Summary counts case statuses across all tasks.
func (p Payload) Summary() map[string]int {
	out := make(map[string]int)
	for _, task := range p.Tasks {
		for _, c := range task {
			out[c.Status.String()]++
		}
	}
	return out
}

// CaseCount returns the number of case results in the payload.
// Overall is the status of the first failed case in task then case order, or AC.
func (p Payload) Overall() Status {
	for _, task := range p.Tasks {
		for _, c := range task {
			if c.Status.Failed() {
				return c.Status
			}
		}
	}
	return AC
}

func (p Payload) CaseCount() int {
	n := 0
	for _, task := range p.Tasks {
		n += len(task)
	}
	return n
}
