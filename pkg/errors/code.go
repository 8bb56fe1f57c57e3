package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Submission admission errors
// 13100-13199: Judge pipeline errors
// 13200-13299: Result delivery errors
// 13300-13399: Test data errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10007
	PayloadTooLarge     ErrorCode = 10009

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Submission Admission Errors (13000-13099) ==========

	SubmissionNotFound     ErrorCode = 13000
	SubmissionNotDirectory ErrorCode = 13001
	DuplicatedSubmission   ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	InvalidMeta            ErrorCode = 13004
	InvalidSource          ErrorCode = 13005

	// ========== Judge Pipeline Errors (13100-13199) ==========

	JudgeQueueFull     ErrorCode = 13100
	JudgeSystemError   ErrorCode = 13101
	InvariantViolation ErrorCode = 13103
	SandboxUnavailable ErrorCode = 13104

	// ========== Result Delivery Errors (13200-13299) ==========

	ResultDeliveryFailed ErrorCode = 13200
	BackupFailed         ErrorCode = 13201
	NotifyFailed         ErrorCode = 13202

	// ========== Test Data Errors (13300-13399) ==========

	TestdataUnavailable ErrorCode = 13300
	ProblemNotFound     ErrorCode = 13301
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	ServiceUnavailable:  "Service temporarily unavailable",
	PayloadTooLarge:     "Request payload too large",

	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	ValidationFailed: "Validation failed",

	SubmissionNotFound:     "Submission not found",
	SubmissionNotDirectory: "Submission path is not a directory",
	DuplicatedSubmission:   "Submission is already being judged",
	LanguageNotSupported:   "Programming language not supported",
	InvalidMeta:            "Invalid submission metadata",
	InvalidSource:          "Invalid submission source",

	JudgeQueueFull:     "Judge queue is full, please try again later",
	JudgeSystemError:   "Judge system error",
	InvariantViolation: "Scheduler invariant violated",
	SandboxUnavailable: "Sandbox runtime unavailable",

	ResultDeliveryFailed: "Failed to deliver submission result",
	BackupFailed:         "Failed to back up submission data",
	NotifyFailed:         "Failed to publish completion notice",

	TestdataUnavailable: "Problem test data unavailable",
	ProblemNotFound:     "Problem not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound, SubmissionNotFound, ProblemNotFound:
		return http.StatusNotFound
	case DuplicatedSubmission:
		return http.StatusConflict
	case JudgeQueueFull, ServiceUnavailable, SandboxUnavailable:
		return http.StatusServiceUnavailable
	case InvalidParams, ValidationFailed, SubmissionNotDirectory,
		LanguageNotSupported, InvalidMeta, InvalidSource:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
