package offline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations that need a loaded queue.
	ErrNotInitialized = errors.New("offline queue not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("offline queue already initialized")

	// ErrEmptyType is returned by Enqueue for a blank mutation type.
	ErrEmptyType = errors.New("mutation type is empty")

	// ErrInvalidPayload is returned by Enqueue when the payload cannot be
	// represented as JSON.
	ErrInvalidPayload = errors.New("invalid mutation payload")
)

// ErrorCode categorizes mutation failures.
type ErrorCode string

const (
	// CodePermanentFailure means the retry ceiling was reached.
	CodePermanentFailure ErrorCode = "PERMANENT_FAILURE"

	// CodeMissingHandler means no handler was registered for the type.
	CodeMissingHandler ErrorCode = "MISSING_HANDLER"

	// CodeHandlerPanic means the handler panicked.
	CodeHandlerPanic ErrorCode = "HANDLER_PANIC"
)

// MutationError describes a mutation the processor gave up on, or a
// handler call that went wrong. Err is the handler's error, if any.
type MutationError struct {
	Code         ErrorCode
	MutationID   string
	MutationType string
	Retries      int
	Err          error
}

func (e *MutationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: mutation %s (%s) after %d attempts: %v",
			e.Code, e.MutationID, e.MutationType, e.Retries, e.Err)
	}
	return fmt.Sprintf("%s: mutation %s (%s)", e.Code, e.MutationID, e.MutationType)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a MutationError for a mutation dropped
// after reaching the retry ceiling. Uses errors.As to handle wrapped errors.
func IsPermanent(err error) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == CodePermanentFailure
	}
	return false
}

// IsMissingHandler reports whether err is a MutationError for an
// unregistered mutation type.
func IsMissingHandler(err error) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == CodeMissingHandler
	}
	return false
}
