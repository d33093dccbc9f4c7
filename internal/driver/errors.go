package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindFatal
)

var ErrContainerGone = errors.New("container no longer exists")

// Error is returned by every Driver operation that fails.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (k ErrorKind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "transient"
}

func (e *Error) Error() string {
	return fmt.Sprintf("container %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a driver failure that retrying cannot fix.
func IsFatal(err error) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Kind == KindFatal
}

// classify decides whether a runtime error is worth another attempt.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrContainerGone):
		return KindFatal
	case errors.Is(err, context.DeadlineExceeded),
		errdefs.IsDeadlineExceeded(err),
		errdefs.IsUnavailable(err),
		errdefs.IsConflict(err),
		errdefs.IsResourceExhausted(err):
		return KindTransient
	case errdefs.IsNotFound(err),
		errdefs.IsInvalidArgument(err),
		errdefs.IsFailedPrecondition(err),
		errdefs.IsPermissionDenied(err),
		errdefs.IsNotImplemented(err),
		errdefs.IsCanceled(err),
		errors.Is(err, context.Canceled):
		return KindFatal
	default:
		return KindTransient
	}
}
