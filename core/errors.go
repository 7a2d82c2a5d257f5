package core

import "errors"

// Sentinel errors classifying persistence failures. Stores wrap their
// driver-specific failures with these sentinels so callers can branch with
// errors.Is instead of matching message substrings.
var (
	// ErrNotFound reports a lookup miss (entity, room, memory).
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique-key violation: the record already
	// exists. Handlers treat it as already-applied, not a failure.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConstraint reports a non-duplicate integrity violation (foreign
	// key, check). Existence races during initialization surface as
	// ErrConstraint and are non-fatal.
	ErrConstraint = errors.New("constraint violation")
)

// IsDuplicate reports whether err is (or wraps) a duplicate-record error.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsNotFound reports whether err is (or wraps) a lookup miss.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
