// Package errs defines the error taxonomy used across the memory engine.
// Components wrap low-level failures (driver errors, network timeouts,
// decryption failures) into one of these sentinels so that callers can
// branch on errors.Is rather than string matching.
package errs

import "errors"

// Sentinel errors making up the taxonomy. Wrap with fmt.Errorf("...: %w", Err...)
// to attach context while preserving errors.Is compatibility.
var (
	// NotFound: row or entity absent.
	NotFound = errors.New("not found")

	// Unauthorized: missing or invalid credential.
	Unauthorized = errors.New("unauthorized")

	// Forbidden: credential valid, resource belongs to another user.
	Forbidden = errors.New("forbidden")

	// Conflict: duplicate content hash at ingest; handled by coalescing upstream,
	// never surfaced to external callers.
	Conflict = errors.New("conflict")

	// Timeout: external call or pool acquire timed out.
	Timeout = errors.New("timeout")

	// Unavailable: embedding service or another external collaborator is down.
	Unavailable = errors.New("unavailable")

	// Corrupt: decryption auth-tag mismatch or out-of-range vector dims.
	Corrupt = errors.New("corrupt")

	// Internal: programming invariant violated; never surfaced verbatim.
	Internal = errors.New("internal")

	// InvalidInput: caller-supplied content failed validation (too short,
	// denied content) before any store or embedding call was made.
	InvalidInput = errors.New("invalid input")
)

// Is reports whether err (or anything it wraps) matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
