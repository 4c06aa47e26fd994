package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the course, link or task does not exist server-side.
	ErrNotFound = errors.New("not found")
	// ErrTransientNetwork is returned when a request failed due to connectivity.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrSubmissionConflict is returned when a migration is already active for the course.
	ErrSubmissionConflict = errors.New("migration already active for course")
	// ErrUnauthorized is returned when the backend rejected the credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer is returned for any other non-success response.
	ErrServer = errors.New("server error")
	// ErrDecode is returned when a response body could not be decoded.
	ErrDecode = errors.New("malformed response")
)

type Kind int

const (
	KindServer Kind = iota
	KindNotFound
	KindTransientNetwork
	KindSubmissionConflict
	KindUnauthorized
	KindDecode
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindTransientNetwork:
		return ErrTransientNetwork
	case KindSubmissionConflict:
		return ErrSubmissionConflict
	case KindUnauthorized:
		return ErrUnauthorized
	case KindDecode:
		return ErrDecode
	}
	return ErrServer
}

// Error is the typed failure of a repository call.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind.sentinel(), msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a repository error, or KindServer for foreign errors.
func KindOf(err error) Kind {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.Kind
	}
	return KindServer
}
