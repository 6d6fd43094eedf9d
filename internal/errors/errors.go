// Package errors defines the typed error taxonomy used across the
// reconciliation engine's domain logic (diff, graph, planner, executor).
package errors

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Kind classifies a domain error for branching and for HTTP-status mapping
// on the observability surface.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindCyclicDependency   Kind = "cyclic_dependency"
	KindMissingNode        Kind = "missing_node"
	KindDeferredResolution Kind = "deferred_resolution"
	KindResourceExists     Kind = "resource_already_exists"
	KindResourceNotFound   Kind = "resource_not_found"
	KindRateLimit          Kind = "rate_limit"
	KindServer             Kind = "server_error"
)

// Error is the engine's typed domain error. It wraps an optional cause and
// carries structured details for logging and for the status HTTP surface.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail returns a copy of e with the given detail key/value attached.
func (e *Error) WithDetail(key string, value any) *Error {
	clone := *e
	clone.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// Code maps the error kind to an HTTP-status-shaped code for the status
// surface (§6.5); it is advisory, not a transport-layer response code for
// any IPAM call itself.
func (e *Error) Code() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindResourceNotFound:
		return http.StatusNotFound
	case KindResourceExists:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindCyclicDependency, KindMissingNode, KindDeferredResolution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// LogFields renders the error as logrus.Fields for structured logging.
func (e *Error) LogFields() logrus.Fields {
	f := logrus.Fields{
		"error_kind":    string(e.Kind),
		"error_message": e.Message,
	}
	for k, v := range e.Details {
		f["error_detail_"+k] = v
	}
	if e.Cause != nil {
		f["error_cause"] = e.Cause.Error()
	}
	return f
}

// Is allows errors.Is(err, Kind) style matching via a sentinel wrapper; kept
// simple since Kind is a plain string compare against *Error.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
