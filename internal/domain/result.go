package domain

import "errors"

// Status is the outcome of one invocation.
type Status string

const (
	StatusOK      Status = "OK"
	StatusDenied  Status = "DENIED"
	StatusInvalid Status = "INVALID"
	StatusError   Status = "ERROR"
)

// Result is the structured outcome returned to the caller of an invocation.
type Result struct {
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Body    any      `json:"body,omitempty"`
	Files   []string `json:"files,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// StatusOf maps an error chain to an invocation status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrDenied):
		return StatusDenied
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalid
	default:
		return StatusError
	}
}

// Fail builds the result for a failed invocation.
func Fail(err error) Result {
	return Result{Status: StatusOf(err), Message: err.Error(), Error: err.Error()}
}
