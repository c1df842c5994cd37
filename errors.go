package flatfs

import "fmt"

// DriverError is the error surface shared by all errors produced by this
// package. Every error can be narrowed with errors.Is against one of the
// FSError constants below.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

// FSError is a bare error kind. The constants below are the complete set of
// kinds the package defines; ErrAlreadyInProgress and ErrArgumentOutOfRange
// are not returned by any current operation.
type FSError string

const ErrAlreadyInProgress = FSError("Operation already in progress")
const ErrArgumentOutOfRange = FSError("Numerical argument out of domain")
const ErrExists = FSError("File exists")
const ErrFileSystemCorrupted = FSError("Structure needs cleaning")
const ErrFileTooLarge = FSError("File too large")
const ErrInvalidArgument = FSError("Invalid argument")
const ErrInvalidFileSystem = FSError("Wrong medium type")
const ErrIOFailed = FSError("Input/output error")
const ErrNameTooLong = FSError("File name too long")
const ErrNoSpaceOnDevice = FSError("No space left on device")
const ErrNotFound = FSError("No such file or directory")
const ErrNotMounted = FSError("File system not mounted")

func (e FSError) Error() string {
	return string(e)
}

func (e FSError) WithMessage(message string) DriverError {
	return wrappedError{
		base:    e,
		message: fmt.Sprintf("%s: %s", string(e), message),
	}
}

func (e FSError) Wrap(err error) DriverError {
	return wrappedError{
		base:    e,
		cause:   err,
		message: fmt.Sprintf("%s: %s", string(e), err.Error()),
	}
}

// -----------------------------------------------------------------------------

// wrappedError is an FSError annotated with context. errors.Is matches both
// the base kind and, via Unwrap, any wrapped cause.
type wrappedError struct {
	base    FSError
	cause   error
	message string
}

func (e wrappedError) Error() string {
	return e.message
}

func (e wrappedError) WithMessage(message string) DriverError {
	return wrappedError{
		base:    e.base,
		cause:   e.cause,
		message: fmt.Sprintf("%s: %s", e.message, message),
	}
}

func (e wrappedError) Wrap(err error) DriverError {
	return wrappedError{
		base:    e.base,
		cause:   err,
		message: fmt.Sprintf("%s: %s", e.message, err.Error()),
	}
}

func (e wrappedError) Is(target error) bool {
	return target == e.base
}

func (e wrappedError) Unwrap() error {
	return e.cause
}
