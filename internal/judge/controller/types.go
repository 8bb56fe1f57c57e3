package controller

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
}

// TrackedResponse tells whether a submission is still being judged.
type TrackedResponse struct {
	SubmissionID string `json:"submissionId"`
	Tracked      bool   `json:"tracked"`
}
