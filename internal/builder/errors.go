package builder

import (
	"errors"
	"fmt"
)

var (
	ErrDependencyInstall = errors.New("dependency install failed")
	ErrBuildFailed       = errors.New("image build failed")
	ErrConnectionFailed  = errors.New("docker connection failed")
	ErrInvalidContext    = errors.New("invalid build context")
	ErrImageNotFound     = errors.New("image not found")
)

// BuildError wraps errors with the operation and image they belong to
type BuildError struct {
	Op      string // Operation that failed
	Tag     string // Image tag if applicable
	Message string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func newBuildError(op, tag, message string, err error) *BuildError {
	return &BuildError{
		Op:      op,
		Tag:     tag,
		Message: message,
		Err:     err,
	}
}
