package operations

import (
	"context"
	"errors"
	"fmt"
)

// ErrRefreshBusy is returned when a refresh is already running in this process.
var ErrRefreshBusy = errors.New("refresh already running")

// Error types for OperationError.
const (
	ErrorTypeExecution    = "execution"
	ErrorTypeVerification = "verification"
	ErrorTypeCancelled    = "cancelled"
	ErrorTypeBackup       = "backup"
)

// OperationError is a refresh failure attributed to one step.
type OperationError struct {
	Type    string
	Step    string
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("step %s: %s", e.Step, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Cause }

// NewStepError wraps cause as a failure of step. A cancelled context is
// classified as such.
func NewStepError(step string, cause error) *OperationError {
	errType := ErrorTypeExecution
	if IsCancellation(cause) {
		errType = ErrorTypeCancelled
	}
	return &OperationError{Type: errType, Step: step, Message: "failed", Cause: cause}
}

// IsCancellation reports whether err came from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
