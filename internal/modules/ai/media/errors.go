package media

import (
	"errors"
	"fmt"
)

var (
	ErrProviderRejected   = errors.New("provider rejected request")
	ErrProviderTimeout    = errors.New("provider timeout")
	ErrProviderTaskFailed = errors.New("provider task failed")
	ErrMissingCredential  = errors.New("provider credential missing")
)

type ProviderRejectedError struct {
	StatusCode int
	Body       string
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("provider rejected request, status code: %d, body: %s", e.StatusCode, e.Body)
}

func (e *ProviderRejectedError) Is(target error) bool {
	return target == ErrProviderRejected
}

type ProviderTaskFailedError struct {
	TaskID string
	Reason string
}

func (e *ProviderTaskFailedError) Error() string {
	return fmt.Sprintf("provider task %s failed: %s", e.TaskID, e.Reason)
}

func (e *ProviderTaskFailedError) Is(target error) bool {
	return target == ErrProviderTaskFailed
}
