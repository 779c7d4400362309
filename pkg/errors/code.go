package errors

// ErrorCode represents a unique error code
type ErrorCode int

// Error code ranges:
// 0: Success
// 1000-1999: System and common errors
// 10100-10199: Cache errors
// 10200-10299: Object storage errors
// 10300-10399: Validation errors
// 12000-12099: Language errors
// 13000-13099: Sandbox (local backend) errors
// 13100-13199: Remote judge errors
// 13200-13299: Verdict-bearing errors

const (
	// ========== Success ==========
	Success ErrorCode = 0

	// ========== System & Common Errors (1000-1999) ==========
	InternalServerError ErrorCode = 1000
	InvalidParams       ErrorCode = 1001
	NotFound            ErrorCode = 1002
	TooManyRequests     ErrorCode = 1005
	ServiceUnavailable  ErrorCode = 1006
	Timeout             ErrorCode = 1007

	// Cache (10100-10199)
	CacheError ErrorCode = 10100

	// Object storage (10200-10299)
	StorageError        ErrorCode = 10200
	StorageUploadFailed ErrorCode = 10201

	// Validation (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Language Errors (12000-12099) ==========
	LanguageNotSupported ErrorCode = 12000
	LanguageDisabled     ErrorCode = 12001
	InvalidCommand       ErrorCode = 12002

	// ========== Sandbox Errors (13000-13099) ==========
	SandboxUnavailable    ErrorCode = 13000
	SandboxProvisionError ErrorCode = 13001
	SandboxExecError      ErrorCode = 13002
	WorkAreaError         ErrorCode = 13003

	// ========== Remote Judge Errors (13100-13199) ==========
	RemoteJudgeError     ErrorCode = 13100
	RemoteTimeout        ErrorCode = 13101
	RemoteBadResponse    ErrorCode = 13102
	RemoteCircuitOpen    ErrorCode = 13103
	RemoteRejectedSubmit ErrorCode = 13104

	// ========== Verdict Errors (13200-13299) ==========
	JudgeSystemError    ErrorCode = 13200
	CompilationError    ErrorCode = 13201
	RuntimeError        ErrorCode = 13202
	TimeLimitExceeded   ErrorCode = 13203
	MemoryLimitExceeded ErrorCode = 13204
	WrongAnswer         ErrorCode = 13205
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError: "Cache operation failed",

	// Storage
	StorageError:        "Object storage operation failed",
	StorageUploadFailed: "Failed to upload object",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Language
	LanguageNotSupported: "Programming language not supported",
	LanguageDisabled:     "Programming language is disabled for this backend",
	InvalidCommand:       "Invalid command template",

	// Sandbox
	SandboxUnavailable:    "Sandbox runtime is unavailable",
	SandboxProvisionError: "Failed to provision execution context",
	SandboxExecError:      "Failed to execute inside sandbox",
	WorkAreaError:         "Work area operation failed",

	// Remote judge
	RemoteJudgeError:     "Remote judge error",
	RemoteTimeout:        "request timed out",
	RemoteBadResponse:    "Remote judge returned an invalid response",
	RemoteCircuitOpen:    "Remote judge is temporarily unavailable",
	RemoteRejectedSubmit: "Remote judge rejected the submission",

	// Verdicts
	JudgeSystemError:    "Judge system error",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	WrongAnswer:         "Wrong answer",
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
	switch {
	case c == Success:
		return 200
	case c == NotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == RemoteCircuitOpen, c == SandboxUnavailable:
		return 503
	case c == Timeout, c == RemoteTimeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == LanguageDisabled:
		return 400
	default:
		return 500
	}
}
