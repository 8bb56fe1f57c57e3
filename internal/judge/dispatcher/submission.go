package dispatcher

import (
	"sync"
	"time"

	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/runner"
	"judgehost/internal/judge/verdict"
)

// submission is the in-flight state of one registration.
// Everything below resultMu is guarded by it; compileMu only makes compilation single-flight.
type submission struct {
	id         string
	epoch      uint64
	meta       meta.Meta
	lang       profile.LanguageSpec
	layout     meta.Layout
	hostLayout meta.Layout
	createdAt  time.Time

	compileMu sync.Mutex

	resultMu    sync.Mutex
	compileDone bool
	compile     runner.CompileOutcome
	results     map[string]*verdict.CaseResult
	pending     int
	finalized   bool
}

func newSubmission(id string, epoch uint64, m meta.Meta, lang profile.LanguageSpec, layout, hostLayout meta.Layout, now time.Time) *submission {
	keys := m.Keys()
	results := make(map[string]*verdict.CaseResult, len(keys))
	for _, key := range keys {
		results[key] = nil
	}
	return &submission{
		id:         id,
		epoch:      epoch,
		meta:       m,
		lang:       lang,
		layout:     layout,
		hostLayout: hostLayout,
		createdAt:  now,
		results:    results,
		pending:    len(keys),
	}
}

func (s *submission) needsCompile() bool {
	return s.lang.CompileEnabled
}

// compileOutcome returns the cached compile result; languages without a compile step report AC.
func (s *submission) compileOutcome() (runner.CompileOutcome, bool) {
	if !s.needsCompile() {
		return runner.CompileOutcome{Status: verdict.AC}, true
	}
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.compile, s.compileDone
}

func (s *submission) setCompile(out runner.CompileOutcome) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	s.compile = out
	s.compileDone = true
}

func (s *submission) runnerSubmission() runner.Submission {
	return runner.Submission{ID: s.id, Language: s.lang, SrcDir: s.hostLayout.SrcDir()}
}

func (s *submission) runnerCase(task, c int) runner.Case {
	key := meta.CaseKey(task, c)
	t := s.meta.Tasks[task]
	return runner.Case{
		Submission:   s.runnerSubmission(),
		Key:          key,
		InputPath:    s.hostLayout.Input(key),
		ExpectedPath: s.layout.Output(key),
		Limits:       caseLimits(t),
	}
}
