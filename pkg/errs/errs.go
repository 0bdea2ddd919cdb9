package errs

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Error constructors for the resolution engine's failure modes. Repositories
// and services return these; the echo error handler translates them to JSON.

// InvalidRule rejects a malformed match rule (bad thresholds, empty field
// list, unknown match method).
func InvalidRule(msg string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, msg)
}

func InvalidRulef(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}

// NotFound reports a missing rule, candidate, merge record, canonical contact,
// or run.
func NotFound(msg string) error {
	return httperror.NewHTTPError(http.StatusNotFound, msg)
}

func NotFoundf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...)
}

// AlreadyResolved reports a decision against a candidate that has left the
// pending state.
func AlreadyResolvedf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...)
}

// DuplicateCanonicalEmail reports a canonical email uniqueness violation.
func DuplicateCanonicalEmail(email string) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, "canonical contact with email %s already exists", email)
}

// RollbackConflict reports that a later merge touched the same canonical
// contact, so this merge can no longer be reversed directly.
func RollbackConflictf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...)
}

// RunFailure wraps an unexpected failure inside a deduplication run.
func RunFailure(msg string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, msg)
}

func Internal(msg string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, msg)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == code
}

func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

func IsConflict(err error) bool {
	return IsStatus(err, http.StatusConflict)
}
