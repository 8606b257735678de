/*
	This file defines the error taxonomy shared by all packages.  Errors carry a
	kind that the HTTP layer maps onto a status code and a stable error string,
	so lower layers never need to know about HTTP.
*/

package wsi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrKind classifies an error for surfacing to clients.
type ErrKind int

const (
	// ErrIO covers miscellaneous I/O failures.  It is the default kind for
	// errors that carry no explicit classification.
	ErrIO ErrKind = iota

	// ErrNotFound means the requested slide or object does not exist.
	ErrNotFound

	// ErrUnsupportedFormat means the slide container failed validation, e.g.
	// strip organization or an unsupported compression scheme.
	ErrUnsupportedFormat

	// ErrInvalidLevel means the requested pyramid level does not exist.
	ErrInvalidLevel

	// ErrTileOutOfBounds means the tile coordinates exceed the level grid.
	ErrTileOutOfBounds

	// ErrInvalidQuality means the JPEG quality parameter is outside [1,100].
	ErrInvalidQuality

	// ErrTransport is a retryable network or 5xx failure from the object store.
	ErrTransport

	// ErrConnection is a transport failure that exhausted its retries or a
	// timeout at the HTTP boundary.
	ErrConnection

	// ErrDecode means the stored tile bytes could not be decoded, including
	// abbreviated JPEG streams with no JPEGTables available.
	ErrDecode

	// ErrEncode means re-encoding the decoded tile failed.
	ErrEncode
)

// Code returns the stable error string used in JSON error bodies.
func (k ErrKind) Code() string {
	switch k {
	case ErrNotFound:
		return "not_found"
	case ErrUnsupportedFormat:
		return "unsupported_format"
	case ErrInvalidLevel:
		return "invalid_level"
	case ErrTileOutOfBounds:
		return "tile_out_of_bounds"
	case ErrInvalidQuality:
		return "invalid_quality"
	case ErrTransport, ErrConnection:
		return "connection_error"
	case ErrDecode:
		return "decode_error"
	case ErrEncode:
		return "encode_error"
	default:
		return "io_error"
	}
}

// HTTPStatus returns the HTTP status code for this error kind.
func (k ErrKind) HTTPStatus() int {
	switch k {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ErrInvalidLevel, ErrTileOutOfBounds, ErrInvalidQuality:
		return http.StatusBadRequest
	case ErrTransport, ErrConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k ErrKind) String() string {
	return k.Code()
}

// Error is an error with a client-facing kind.  The message should be safe to
// return to clients: no file offsets, tag IDs, or absolute paths.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an error of the given kind with a formatted message.
func NewError(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error.  If err is
// already a *Error, its kind is preserved and only context is added.
func WrapError(err error, kind ErrKind, format string, args ...interface{}) *Error {
	if err == nil {
		return NewError(kind, format, args...)
	}
	var werr *Error
	if errors.As(err, &werr) {
		kind = werr.Kind
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of an error, defaulting to ErrIO for errors that
// carry no classification.
func KindOf(err error) ErrKind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ErrIO
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}
