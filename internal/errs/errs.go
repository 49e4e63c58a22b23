// Package errs defines the error kinds from SPEC_FULL.md §7 as sentinel
// values. Errors of these kinds wrap one of these with
// fmt.Errorf("%w: ...", ...) so callers can classify failures with
// errors.Is instead of string matching; other errors (file I/O, for
// example) are returned wrapped without a sentinel.
package errs

import "errors"

var (
	// ErrMisconfigured signals a missing API key/version/base-url, or a
	// partially-specified proxy. Fatal at construction time.
	ErrMisconfigured = errors.New("misconfigured")

	// ErrForbidden maps to an HTTP 403 from the remote service.
	ErrForbidden = errors.New("forbidden")

	// ErrRemote covers any other 4xx/5xx or malformed remote response.
	ErrRemote = errors.New("remote error")

	// ErrIllegalTransition is raised when update/submit/cancel/complete is
	// called while the queue item is in the wrong status.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrEmptyUpdate is raised when update() is called with every field unset.
	ErrEmptyUpdate = errors.New("empty update")

	// ErrPayloadMissing is raised when the payload blob backing a still-live
	// item has disappeared from disk.
	ErrPayloadMissing = errors.New("payload missing")
)
