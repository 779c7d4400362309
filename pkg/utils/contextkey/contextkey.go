package contextkey

// Key is a distinct type to avoid context key collisions across packages.
type Key string

const (
	TraceID      Key = "trace_id"
	RequestID    Key = "request_id"
	SubmissionID Key = "submission_id"
	Backend      Key = "backend"
)
