// Package delivery hands finalized verdicts to the grading backend and decides
// what happens to the submission directory afterwards.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"judgehost/internal/common/fsutil"
	"judgehost/internal/common/httpclient"
	"judgehost/internal/judge/meta"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

const backupTimeLayout = "2006-01-02_15:04:05"

// Config controls where results go.
type Config struct {
	SubmissionDir string
	BackupDir     string
	Token         string
}

// completeRequest is the body of PUT /submission/{id}/complete.
type completeRequest struct {
	Tasks [][]verdict.CaseResult `json:"tasks"`
	Token string                 `json:"token"`
}

// BackendSink delivers a verdict once: a 200 deletes the submission directory,
// anything else moves it under the backup directory.
type BackendSink struct {
	cfg       Config
	client    *httpclient.Client
	archiver  Archiver
	notifiers []Notifier
	now       func() time.Time
}

// Option customizes a BackendSink.
type Option func(*BackendSink)

// WithArchiver uploads every backup after it was moved.
func WithArchiver(a Archiver) Option {
	return func(s *BackendSink) { s.archiver = a }
}

// WithNotifiers announces each delivery attempt.
func WithNotifiers(n ...Notifier) Option {
	return func(s *BackendSink) { s.notifiers = append(s.notifiers, n...) }
}

// WithClock overrides the clock used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *BackendSink) { s.now = now }
}

func NewBackendSink(cfg Config, client *httpclient.Client, opts ...Option) (*BackendSink, error) {
	if cfg.SubmissionDir == "" || cfg.BackupDir == "" {
		return nil, appErr.ValidationError("delivery", "submission and backup directories are required")
	}
	if client == nil {
		return nil, appErr.ValidationError("delivery", "backend client is required")
	}
	s := &BackendSink{cfg: cfg, client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deliver writes result.json, sends the verdict and then either removes or backs up the directory.
func (s *BackendSink) Deliver(ctx context.Context, id string, payload verdict.Payload) error {
	ctx = logger.WithSubmission(ctx, id)
	layout := meta.NewLayout(s.cfg.SubmissionDir, id)
	if payload.Tasks == nil {
		payload.Tasks = [][]verdict.CaseResult{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultDeliveryFailed, "encode verdict failed")
	}
	if err := os.WriteFile(layout.ResultFile(), body, 0644); err != nil {
		logger.Warn(ctx, "write result file failed", zap.Error(err))
	}

	sendErr := s.send(ctx, id, payload)
	delivered := sendErr == nil

	var outcomeErr error
	backupPath := ""
	if delivered {
		if err := os.RemoveAll(layout.Root); err != nil {
			logger.Error(ctx, "remove delivered submission failed", zap.Error(err))
		}
		logger.Info(ctx, "verdict delivered")
	} else {
		logger.Error(ctx, "verdict delivery failed, keeping a backup", zap.Error(sendErr))
		backupPath, err = s.backup(id)
		if err != nil {
			logger.Error(ctx, "backup submission failed", zap.Error(err))
			outcomeErr = err
		} else {
			logger.Info(ctx, "submission backed up", zap.String("path", backupPath))
			outcomeErr = sendErr
		}
	}

	if backupPath != "" && s.archiver != nil {
		if err := s.archiver.Archive(ctx, id, backupPath); err != nil {
			logger.Warn(ctx, "archive backup failed", zap.Error(err))
		}
	}
	s.notify(ctx, newEvent(id, payload, delivered, backupPath, s.now()))
	return outcomeErr
}

func (s *BackendSink) send(ctx context.Context, id string, payload verdict.Payload) error {
	body, err := json.Marshal(completeRequest{Tasks: payload.Tasks, Token: s.cfg.Token})
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultDeliveryFailed, "encode request failed")
	}
	info, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("/submission/%s/complete", id),
		Body:   body,
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultDeliveryFailed, "send verdict failed")
	}
	logger.Debug(ctx, "backend response", zap.Int("status", info.StatusCode), zap.ByteString("body", truncate(info.Body, 512)))
	if info.StatusCode != http.StatusOK {
		return appErr.Newf(appErr.ResultDeliveryFailed, "backend answered %d", info.StatusCode)
	}
	return nil
}

func (s *BackendSink) backup(id string) (string, error) {
	if err := os.MkdirAll(s.cfg.BackupDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.BackupFailed, "create backup dir failed")
	}
	dst := filepath.Join(s.cfg.BackupDir, BackupName(id, s.now()))
	if err := fsutil.MoveDir(meta.NewLayout(s.cfg.SubmissionDir, id).Root, dst); err != nil {
		return "", appErr.Wrapf(err, appErr.BackupFailed, "move submission to backup failed")
	}
	return dst, nil
}

func (s *BackendSink) notify(ctx context.Context, ev Event) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			logger.Warn(ctx, "completion notification failed", zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
}

// BackupName is the directory name a failed delivery is kept under.
func BackupName(id string, at time.Time) string {
	return id + "_" + at.Format(backupTimeLayout)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
