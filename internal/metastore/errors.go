package metastore

import (
	"fmt"
	"github.com/kapetan-io/errors"
)

// ErrUnavailablePartitionFiles is returned when a get finds no segment to read from and the
// caller did not ask to wait.
type ErrUnavailablePartitionFiles struct {
	Path string
}

func (e *ErrUnavailablePartitionFiles) Error() string {
	return fmt.Sprintf("partition files not found: %s", e.Path)
}

func (e *ErrUnavailablePartitionFiles) Is(target error) bool {
	var err *ErrUnavailablePartitionFiles
	return errors.As(target, &err)
}

// ErrRequestIDNotFound indicates a request id written to a request file could not be found
// when the file was read back. The cursor no longer lines up with its segment, and the
// request should not be retried.
type ErrRequestIDNotFound struct {
	RequestID   string
	RequestFile string
}

func (e *ErrRequestIDNotFound) Error() string {
	return fmt.Sprintf("request id %s not found in request file: %s", e.RequestID, e.RequestFile)
}

func (e *ErrRequestIDNotFound) Is(target error) bool {
	var err *ErrRequestIDNotFound
	return errors.As(target, &err)
}

// ErrSoftDeleteMisconfigured is returned by Trash.Validate() when neither a trash
// directory nor in place renaming has been configured.
type ErrSoftDeleteMisconfigured struct {
	Msg string
}

func (e *ErrSoftDeleteMisconfigured) Error() string {
	return "soft delete misconfigured; " + e.Msg
}

func (e *ErrSoftDeleteMisconfigured) Is(target error) bool {
	var err *ErrSoftDeleteMisconfigured
	return errors.As(target, &err)
}
