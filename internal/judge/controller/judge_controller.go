package controller

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"judgehost/internal/judge/dispatcher"
	"judgehost/internal/judge/intake"
	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultMaxUpload = 64 << 20

// Submitter materializes and registers uploaded submissions.
type Submitter interface {
	Submit(ctx context.Context, req intake.Request) error
}

// Scheduler is the dispatcher surface exposed to operators.
type Scheduler interface {
	Register(ctx context.Context, submissionID string) error
	Stats() dispatcher.Stats
	Tracked(submissionID string) bool
}

// JudgeController handles submission intake and dispatcher admin requests.
type JudgeController struct {
	submitter Submitter
	scheduler Scheduler
	maxUpload int64
}

// NewJudgeController creates a new controller. maxUpload caps each uploaded archive; zero uses 64 MiB.
func NewJudgeController(submitter Submitter, scheduler Scheduler, maxUpload int64) *JudgeController {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &JudgeController{submitter: submitter, scheduler: scheduler, maxUpload: maxUpload}
}

// Submit accepts a multipart upload: languageId, code (zip) and either problemId or testcase (zip).
func (h *JudgeController) Submit(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	languageID, err := strconv.Atoi(c.PostForm("languageId"))
	if err != nil {
		response.BadRequest(c, "invalid language id")
		return
	}
	problemID := 0
	if raw := strings.TrimSpace(c.PostForm("problemId")); raw != "" {
		if problemID, err = strconv.Atoi(raw); err != nil || problemID <= 0 {
			response.BadRequest(c, "invalid problem id")
			return
		}
	}

	source, err := h.readUpload(c, "code", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	testcase, err := h.readUpload(c, "testcase", false)
	if err != nil {
		response.Error(c, err)
		return
	}

	err = h.submitter.Submit(c.Request.Context(), intake.Request{
		SubmissionID: submissionID,
		LanguageID:   languageID,
		Source:       source,
		ProblemID:    problemID,
		Testcase:     testcase,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{SubmissionID: submissionID, Status: "queued"})
}

// RegisterExisting schedules a submission directory that is already on disk.
func (h *JudgeController) RegisterExisting(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if err := h.scheduler.Register(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{SubmissionID: submissionID, Status: "queued"})
}

// GetSubmission reports whether the dispatcher still tracks a submission.
func (h *JudgeController) GetSubmission(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	response.Success(c, TrackedResponse{SubmissionID: submissionID, Tracked: h.scheduler.Tracked(submissionID)})
}

// GetStats returns the dispatcher counters.
func (h *JudgeController) GetStats(c *gin.Context) {
	response.Success(c, h.scheduler.Stats())
}

func (h *JudgeController) readUpload(c *gin.Context, field string, required bool) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if !required {
			return nil, nil
		}
		return nil, appErr.BadRequest(field + " archive is required")
	}
	if fh.Size > h.maxUpload {
		return nil, appErr.New(appErr.PayloadTooLarge).WithMessagef("%s archive exceeds %d bytes", field, h.maxUpload)
	}
	return readAll(fh, h.maxUpload)
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "open upload failed")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "read upload failed")
	}
	if int64(len(data)) > limit {
		return nil, appErr.New(appErr.PayloadTooLarge)
	}
	return data, nil
}
