package apperr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
)

// Kind classifies a failure for reporting and exit codes.
type Kind int

const (
	// KindUnknown is reported for errors that did not pass through this package.
	KindUnknown Kind = iota
	// KindCanceled means the user or a signal canceled the build.
	KindCanceled
	// KindInvalidArguments means the caller supplied unusable arguments.
	KindInvalidArguments
	// KindNetwork means a remote resource could not be fetched.
	KindNetwork
	// KindInvalidData means an input was read but is malformed.
	KindInvalidData
	// KindIO means a local read or write failed.
	KindIO
	// KindAccessDenied means the operating system refused access.
	KindAccessDenied
	// KindNotSupported means the requested operation is not supported.
	KindNotSupported
)

// Exit codes reported by the command line for each Kind.
const (
	ExitOK               = 0
	ExitInvalidArguments = 10
	ExitNotSupported     = 11
	ExitAccessDenied     = 12
	ExitNetwork          = 20
	ExitIO               = 21
	ExitInvalidData      = 25
	ExitCanceled         = 50
	ExitUnknown          = 1
)

// String returns a short lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCanceled:
		return "canceled"
	case KindInvalidArguments:
		return "invalid arguments"
	case KindNetwork:
		return "network error"
	case KindInvalidData:
		return "invalid data"
	case KindIO:
		return "i/o error"
	case KindAccessDenied:
		return "access denied"
	case KindNotSupported:
		return "not supported"
	default:
		return "unknown error"
	}
}

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindCanceled:
		return ExitCanceled
	case KindInvalidArguments:
		return ExitInvalidArguments
	case KindNetwork:
		return ExitNetwork
	case KindInvalidData:
		return ExitInvalidData
	case KindIO:
		return ExitIO
	case KindAccessDenied:
		return ExitAccessDenied
	case KindNotSupported:
		return ExitNotSupported
	default:
		return ExitUnknown
	}
}

// Error is a classified failure of a build step.
type Error struct {
	// Kind is the taxonomy category of the failure.
	Kind Kind
	// Op names the step that failed, e.g. "acquire template".
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}

	if e.Op == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under the given kind, unless the cause itself reveals
// a more specific kind (cancellation, permission, network).
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{
		Kind: refine(kind, err),
		Op:   op,
		Err:  err,
	}
}

// Acquisition reports that the template could not be obtained.
func Acquisition(op string, err error) error {
	return New(KindIO, op, err)
}

// Structural reports that the image's resource data is missing, malformed
// or rejected a write.
func Structural(op string, err error) error {
	return New(KindIO, op, err)
}

// Malformed reports structural data that could be read but not decoded.
func Malformed(op string, err error) error {
	return New(KindInvalidData, op, err)
}

// Publish reports that the result could not be written to its destination.
func Publish(op string, err error) error {
	return New(KindIO, op, err)
}

// Input reports that a caller-supplied file or directory is unusable.
func Input(op string, err error) error {
	return New(KindIO, op, err)
}

// InvalidArguments reports unusable caller arguments.
func InvalidArguments(op string, err error) error {
	return New(KindInvalidArguments, op, err)
}

// KindOf returns the kind of the outermost *Error in the chain,
// or derives one from well-known causes.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return refine(KindUnknown, err)
}

// ExitCode returns the exit code the process should report for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	return KindOf(err).ExitCode()
}

// refine replaces the category default with a kind derived from the cause.
func refine(kind Kind, err error) Kind {
	var (
		appErr  *Error
		pathErr *fs.PathError
		urlErr  *url.Error
		opErr   *net.OpError
		dnsErr  *net.DNSError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr.Kind
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, fs.ErrPermission):
		return KindAccessDenied
	case errors.Is(err, fs.ErrNotExist), errors.As(err, &pathErr):
		if kind == KindUnknown {
			return KindIO
		}

		return kind
	case errors.As(err, &urlErr), errors.As(err, &opErr), errors.As(err, &dnsErr):
		return KindNetwork
	default:
		return kind
	}
}
