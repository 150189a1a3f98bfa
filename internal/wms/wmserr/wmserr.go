// Package wmserr defines the errors raised while configuring a WMS source and
// while serving requests against it. Every error carries an HTTP status.
package wmserr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	MissingField Kind = iota + 1
	InvalidField
	MissingRequiredParam
	MissingEndpoint
	UnsupportedSourceType
	TransportFailure
	UnsupportedFormat
)

func (k Kind) String() string {
	switch k {
	case MissingField:
		return "missing_field"
	case InvalidField:
		return "invalid_field"
	case MissingRequiredParam:
		return "missing_required_param"
	case MissingEndpoint:
		return "missing_endpoint"
	case UnsupportedSourceType:
		return "unsupported_source_type"
	case TransportFailure:
		return "transport_failure"
	case UnsupportedFormat:
		return "unsupported_format"
	default:
		return "unknown"
	}
}

// Code is the HTTP status class for errors of this kind.
func (k Kind) Code() int {
	switch k {
	case TransportFailure, UnsupportedFormat:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

type Error struct {
	Kind   Kind
	Code   int
	Source string
	// Field names the offending config field or request parameter, if any.
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, and by Field when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

func newErr(kind Kind, source, field, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Code:   kind.Code(),
		Source: source,
		Field:  field,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func NewMissingField(source, field, format string, args ...any) *Error {
	return newErr(MissingField, source, field, format, args...)
}

func NewInvalidField(source, field, format string, args ...any) *Error {
	return newErr(InvalidField, source, field, format, args...)
}

func NewMissingRequiredParam(source, param string) *Error {
	return newErr(MissingRequiredParam, source, param, "wms source %s has no %s", source, param)
}

func NewMissingEndpoint(source string) *Error {
	return newErr(MissingEndpoint, source, "http", "wms source %s has no <http> request configured", source)
}

func NewUnsupportedSourceType(source, typ string) *Error {
	return newErr(UnsupportedSourceType, source, "type", "source %s has unsupported type %q", source, typ)
}

// NewTransportFailure wraps a failed upstream call. target is the endpoint
// that was being requested.
func NewTransportFailure(target string, err error) *Error {
	e := newErr(TransportFailure, "", "", "http request to %s failed", target)
	e.Err = err
	return e
}

// NewUnsupportedFormat embeds the whole response body so operators can see
// what the upstream returned instead of an image.
func NewUnsupportedFormat(source string, body []byte) *Error {
	return newErr(UnsupportedFormat, source, "", "wms request for source %s returned an unsupported format:\n%s", source, string(body))
}

// Sentinels for errors.Is. Field-specific matches use a literal, e.g.
// &Error{Kind: MissingRequiredParam, Field: "LAYERS"}.
var (
	ErrMissingField          = &Error{Kind: MissingField}
	ErrInvalidField          = &Error{Kind: InvalidField}
	ErrMissingRequiredParam  = &Error{Kind: MissingRequiredParam}
	ErrMissingEndpoint       = &Error{Kind: MissingEndpoint}
	ErrUnsupportedSourceType = &Error{Kind: UnsupportedSourceType}
	ErrTransportFailure      = &Error{Kind: TransportFailure}
	ErrUnsupportedFormat     = &Error{Kind: UnsupportedFormat}
)

// StatusCode returns the status carried by the first *Error in err's tree,
// or 500 when there is none.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// All flattens err (including errors.Join trees) into the *Error values it
// contains, in the order they were recorded.
func All(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*Error); ok {
			out = append(out, e)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, c := range u.Unwrap() {
				walk(c)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// Last returns the most recently recorded *Error in err, for callers that can
// only surface a single failure.
func Last(err error) *Error {
	all := All(err)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}
