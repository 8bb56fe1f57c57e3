// Package intake materializes an uploaded submission on disk and registers it with the dispatcher.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"judgehost/internal/common/fsutil"
	"judgehost/internal/common/ziputil"
	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/sandbox/profile"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	chaosDirName   = "chaos"
	sourceStemName = "main"
)

// Registrar hands a materialized submission directory to the scheduler.
type Registrar interface {
	Register(ctx context.Context, submissionID string) error
}

// TestdataSource supplies problem test cases kept in sync with the backend.
type TestdataSource interface {
	Ensure(ctx context.Context, problemID int) error
	Meta(ctx context.Context, problemID, language int) (meta.Meta, error)
	ProblemDir(problemID int) string
}

// Config controls where submissions are materialized.
type Config struct {
	SubmissionDir string
	SourceLimits  ziputil.Limits
	TestLimits    ziputil.Limits
}

// Request is one uploaded submission. Either ProblemID or Testcase names the test cases.
type Request struct {
	SubmissionID string
	LanguageID   int
	Source       []byte
	ProblemID    int
	Testcase     []byte
}

// Service turns requests into registered submissions.
type Service struct {
	cfg       Config
	langs     profile.LanguageSpecRepository
	testdata  TestdataSource
	registrar Registrar
}

// NewService builds the intake service. testdata may be nil when only inline test cases are accepted.
func NewService(cfg Config, langs profile.LanguageSpecRepository, testdata TestdataSource, registrar Registrar) (*Service, error) {
	if cfg.SubmissionDir == "" {
		return nil, appErr.ValidationError("intake", "submission directory is required")
	}
	if langs == nil || registrar == nil {
		return nil, appErr.ValidationError("intake", "language table and registrar are required")
	}
	return &Service{cfg: cfg, langs: langs, testdata: testdata, registrar: registrar}, nil
}

// Submit materializes <SubmissionDir>/<id>/{meta.json,src/,testcase/} and registers it.
// Any failure removes the partial directory.
func (s *Service) Submit(ctx context.Context, req Request) (err error) {
	ctx = logger.WithSubmission(ctx, req.SubmissionID)
	if err := validateID(req.SubmissionID); err != nil {
		return err
	}
	if len(req.Source) == 0 {
		return appErr.New(appErr.InvalidSource).WithMessage("source archive is required")
	}
	if req.ProblemID <= 0 && len(req.Testcase) == 0 {
		return appErr.BadRequest("either problemId or a testcase archive is required")
	}
	lang, err := s.langs.GetByMetaID(ctx, req.LanguageID)
	if err != nil {
		return err
	}

	var m meta.Meta
	if req.ProblemID > 0 {
		if s.testdata == nil {
			return appErr.New(appErr.TestdataUnavailable).WithMessage("problem test data is not configured")
		}
		if err := s.testdata.Ensure(ctx, req.ProblemID); err != nil {
			return err
		}
		if m, err = s.testdata.Meta(ctx, req.ProblemID, req.LanguageID); err != nil {
			return err
		}
	}

	layout := meta.NewLayout(s.cfg.SubmissionDir, req.SubmissionID)
	if err := os.MkdirAll(s.cfg.SubmissionDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create submission root failed")
	}
	if err := os.Mkdir(layout.Root, 0755); err != nil {
		if os.IsExist(err) {
			return appErr.Newf(appErr.DuplicatedSubmission, "submission %s already exists", req.SubmissionID)
		}
		return appErr.Wrapf(err, appErr.InternalServerError, "create submission dir failed")
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(layout.Root); rmErr != nil {
				logger.Error(ctx, "remove partial submission failed", zap.Error(rmErr))
			}
		}
	}()

	if req.ProblemID > 0 {
		if err := fsutil.CopyTree(s.testdata.ProblemDir(req.ProblemID), layout.TestcaseDir()); err != nil {
			return appErr.Wrapf(err, appErr.TestdataUnavailable, "copy test data failed")
		}
	} else {
		if err := ziputil.ExtractBytes(req.Testcase, layout.TestcaseDir(), s.cfg.TestLimits); err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "unpack testcase archive failed")
		}
		if m, err = loadInlineMeta(layout, req.LanguageID); err != nil {
			return err
		}
	}
	if err := meta.Write(layout.Root, m); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write meta failed")
	}
	for i, t := range m.Tasks {
		if t.CaseCount == 0 {
			logger.Warn(ctx, "empty task", zap.Int("task", i))
		}
	}

	if err := ziputil.ExtractBytes(req.Source, layout.SrcDir(), s.cfg.SourceLimits); err != nil {
		return appErr.Wrapf(err, appErr.InvalidSource, "unpack source archive failed")
	}
	if err := checkSources(layout.SrcDir(), lang.SourceExt()); err != nil {
		return err
	}
	if err := moveChaos(layout); err != nil {
		return err
	}

	logger.Info(ctx, "submission materialized", zap.String("language", lang.ID), zap.String("meta", m.String()))
	return s.registrar.Register(ctx, req.SubmissionID)
}

// loadInlineMeta reads testcase/meta.json shipped inside a testcase archive.
func loadInlineMeta(layout meta.Layout, language int) (meta.Meta, error) {
	data, err := os.ReadFile(filepath.Join(layout.TestcaseDir(), meta.FileName))
	if err != nil {
		return meta.Meta{}, appErr.Wrapf(err, appErr.InvalidMeta, "testcase archive has no %s", meta.FileName)
	}
	var m meta.Meta
	if m, err = meta.Parse(data); err != nil {
		return meta.Meta{}, err
	}
	m.Language = language
	return m, nil
}

// checkSources requires src to hold only main<ext> files.
func checkSources(dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidSource, "read source dir failed")
	}
	if len(entries) == 0 {
		return appErr.New(appErr.InvalidSource).WithMessage("no file in 'src' directory")
	}
	for _, e := range entries {
		name := e.Name()
		fileExt := filepath.Ext(name)
		if strings.TrimSuffix(name, fileExt) != sourceStemName {
			return appErr.Newf(appErr.InvalidSource, "unexpected source file %q, only %s%s is accepted", name, sourceStemName, ext)
		}
		if fileExt != ext {
			return appErr.Newf(appErr.InvalidSource, "source %q does not match the language, expected %s", name, ext)
		}
		if !e.Type().IsRegular() {
			return appErr.Newf(appErr.InvalidSource, "source %q is not a regular file", name)
		}
	}
	return nil
}

// moveChaos moves testcase/chaos/* next to the sources; these are helper files the program may include.
func moveChaos(layout meta.Layout) error {
	chaos := filepath.Join(layout.TestcaseDir(), chaosDirName)
	info, err := os.Stat(chaos)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "stat chaos dir failed")
	}
	if !info.IsDir() {
		return appErr.New(appErr.InvalidParams).WithMessage("'chaos' can not be a file")
	}
	if err := fsutil.MoveInto(chaos, layout.SrcDir()); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "move chaos files failed")
	}
	if err := os.Remove(chaos); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "remove chaos dir failed")
	}
	return nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return appErr.ValidationError("submission_id", "must be a single path element")
	}
	return nil
}
