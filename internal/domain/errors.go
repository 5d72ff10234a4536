package domain

import "errors"

var (
	// ErrInvalidArgument marks a request that is malformed before it ever
	// touches the datastore (missing ids, empty object sets). Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an absent trade, object, or user. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an acting user who is not authorized for the
	// attempted transition. Never retried.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict marks a failed status precondition or an object that is
	// already reserved. It is a domain-level conflict: the caller should
	// reload and resubmit, the executor must not auto-retry it.
	ErrConflict = errors.New("conflict")

	// ErrEscrowRequired marks an attempt to ship a trade whose security
	// snapshot demands an escrow hold that was never confirmed.
	ErrEscrowRequired = errors.New("escrow hold required")
)
