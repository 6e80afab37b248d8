package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used by the API layer.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRunInProgress      = errors.New("a batch run is already in progress")
	ErrNoRunYet           = errors.New("no batch has run yet")
	ErrInvalidHash        = errors.New("invalid content hash")
)

// ErrorClass is the taxonomy every stage error is reduced to before it reaches the coordinator.
type ErrorClass string

const (
	ClassTransient          ErrorClass = "transient"
	ClassStructural         ErrorClass = "structural"
	ClassConsistencyWarning ErrorClass = "consistency_warning"
	ClassFatal              ErrorClass = "fatal"
)

// DuplicateCommitError is returned by the ledger when a hash is already recorded.
type DuplicateCommitError struct {
	Hash     string
	Location string
}

func (e *DuplicateCommitError) Error() string {
	return fmt.Sprintf("content hash %s already committed at %s", e.Hash, e.Location)
}

// MalformedMessageError means the message container could not be parsed.
type MalformedMessageError struct {
	MessageID string
	Err       error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message %s: %v", e.MessageID, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// UnsupportedFormatError means a payload could not be rendered into pages.
type UnsupportedFormatError struct {
	MediaType string
	Reason    string
	Err       error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported %s document: %s: %v", e.MediaType, e.Reason, e.Err)
	}
	return fmt.Sprintf("unsupported %s document: %s", e.MediaType, e.Reason)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// TransientError marks a collaborator failure worth retrying (timeout, rate limit, 5xx).
type TransientError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ExtractionUnavailableError means the field-extraction collaborator stayed unavailable
// after backoff. The payload is retryable on a later run.
type ExtractionUnavailableError struct {
	Attempts int
	Err      error
}

func (e *ExtractionUnavailableError) Error() string {
	return fmt.Sprintf("field extraction unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExtractionUnavailableError) Unwrap() error { return e.Err }

// RejectedError carries the validator's hard-failure reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "rejected: " + e.Reason }

// CommitError means storage could not take every artifact after retries.
type CommitError struct {
	Container string
	Missing   []ArtifactKind
	Err       error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit to %s incomplete (missing %v): %v", e.Container, e.Missing, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// FatalError aborts the whole run (ledger corruption, invalid configuration).
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// Classify maps err onto the error taxonomy. Unknown errors are transient so that the
// payload stays eligible for a later run instead of being dropped.
func Classify(err error) ErrorClass {
	var (
		fatal       *FatalError
		malformed   *MalformedMessageError
		unsupported *UnsupportedFormatError
		rejected    *RejectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fatal):
		return ClassFatal
	case errors.As(err, &malformed), errors.As(err, &unsupported), errors.As(err, &rejected):
		return ClassStructural
	default:
		return ClassTransient
	}
}

// IsTransient reports whether err is explicitly marked retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
