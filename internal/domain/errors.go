package domain

import (
	"errors"
	"fmt"
)

// ErrUnreadableDocument marks a document with zero extractable text, such as a
// scanned image. Terminal per item; reported, never retried.
var ErrUnreadableDocument = errors.New("document has no extractable text")

// ErrDuplicateSkip is the normal idempotent short-circuit for an attachment
// whose fingerprint is already in the ledger. Not an error condition.
var ErrDuplicateSkip = errors.New("attachment already processed")

// PasswordFailure reports that every candidate password failed against an
// encrypted document. It carries the attempted count, never the passwords.
// Recoverable: the item is re-surfaced for an additional password hint.
type PasswordFailure struct {
	Attempts int
}

func (e *PasswordFailure) Error() string {
	return fmt.Sprintf("decryption failed after %d password attempts", e.Attempts)
}

// TransientError wraps a recoverable collaborator failure (network error,
// timeout, rate limit). Eligible for retry with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps an unrecoverable collaborator failure (quota exceeded,
// permission denied). It aborts the current phase.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error { return &TransientError{Op: op, Err: err} }

// Fatal wraps err as a FatalError.
func Fatal(op string, err error) error { return &FatalError{Op: op, Err: err} }

// IsTransient reports whether err is a recoverable collaborator failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err must abort the current phase.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
