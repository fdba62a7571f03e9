package remote

import (
	"errors"
	"strings"
)

// Structured error codes returned by the Admin API in error extensions.
const (
	CodeAccessDenied = "ACCESS_DENIED"
	CodeThrottled    = "THROTTLED"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// ErrorExtensions carries the structured error code when the API provides one.
type ErrorExtensions struct {
	Code string `json:"code"`
}

// GraphQLError is a single error entry from a GraphQL response.
type GraphQLError struct {
	Message    string          `json:"message"`
	Extensions ErrorExtensions `json:"extensions"`
}

// QueryError aggregates the GraphQL-level errors of a single request.
type QueryError struct {
	StatusCode int
	Errors     []GraphQLError
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return strings.Join(msgs, "; ")
}

// ErrorKind classifies remote failures so callers can decide between
// aborting a run and retrying.
type ErrorKind int

const (
	// KindOther covers errors with no special handling.
	KindOther ErrorKind = iota
	// KindAccessDenied means the credential lacks a scope or is invalid. Fatal.
	KindAccessDenied
	// KindThrottled means the API rate limit was hit. Retryable.
	KindThrottled
	// KindTransient covers network-level failures. Retryable.
	KindTransient
)

// Classify determines the kind of a remote error. Structured codes from the
// API take precedence; message substrings are the fallback for errors that
// carry no code.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		for _, ge := range qe.Errors {
			switch ge.Extensions.Code {
			case CodeAccessDenied:
				return KindAccessDenied
			case CodeThrottled:
				return KindThrottled
			case CodeInternal:
				return KindTransient
			}
		}
		switch {
		case qe.StatusCode == 401, qe.StatusCode == 403:
			return KindAccessDenied
		case qe.StatusCode == 429:
			return KindThrottled
		case qe.StatusCode >= 500:
			return KindTransient
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "required access"):
		return KindAccessDenied
	case strings.Contains(msg, "throttled"), strings.Contains(msg, "rate limit"):
		return KindThrottled
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "eof"):
		return KindTransient
	}
	return KindOther
}

// IsFatal reports whether the error should abort a whole run.
func IsFatal(err error) bool {
	return Classify(err) == KindAccessDenied
}

// IsRetryable reports whether the error is worth another attempt.
func IsRetryable(err error) bool {
	kind := Classify(err)
	return kind == KindThrottled || kind == KindTransient
}
