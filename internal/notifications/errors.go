package notifications

import (
	"errors"
	"fmt"
)

// PermanentError indicates a delivery failure that retrying will not fix,
// such as a rejected recipient or a revoked webhook.
type PermanentError struct {
	Channel Channel
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s delivery failed permanently (%d): %s", e.Channel, e.Code, e.Message)
	}
	return fmt.Sprintf("%s delivery failed permanently: %s", e.Channel, e.Message)
}

// IsRetryable reports whether the error is worth retrying.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a transient delivery failure, such as a timeout
// or an upstream 5xx.
type RetryableError struct {
	Channel Channel
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s delivery failed (%d): %s", e.Channel, e.Code, e.Message)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.Channel, e.Message)
}

// IsRetryable reports whether the error is worth retrying.
func (e *RetryableError) IsRetryable() bool { return true }

// IsRetryable classifies a delivery error. Errors that do not declare
// themselves are treated as retryable.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
