package domain

import "errors"

// Error taxonomy for the pipeline. Transient errors are retried or paced;
// the rest terminate the record (or the run, for ErrSourceUnavailable).
var (
	// ErrSourceUnavailable: the listing source rejected us outright
	// (auth wall, block page). Fatal to the run.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited: the listing source is throttling. The producer pauses
	// and resumes; it never aborts the run.
	ErrRateLimited = errors.New("rate limited")

	// ErrOracleTimeout: scoring call timed out. Retried with backoff.
	ErrOracleTimeout = errors.New("oracle timeout")

	// ErrOracleRejected: the oracle refused the request (malformed prompt,
	// bad key). Never retried within a run.
	ErrOracleRejected = errors.New("oracle rejected")

	// ErrResolverUnavailable: contact directory transport failure. Retried
	// up to a budget, then treated as not-found for this run only.
	ErrResolverUnavailable = errors.New("resolver unavailable")

	// ErrContactNotFound is a normal terminal outcome, not a fault.
	ErrContactNotFound = errors.New("no contact found")

	// ErrDispatchRejected: the mail service refused the message. Permanent
	// for that record.
	ErrDispatchRejected = errors.New("dispatch rejected")

	// ErrInvalidTransition: a ledger stage update would regress or skip a
	// stage. Always a consistency bug, never caused by external failures.
	ErrInvalidTransition = errors.New("invalid stage transition")
)
