// Package source fetches raw postings from external listing sources. A
// source yields a lazy, finite sequence of listings; upstream throttling is
// surfaced as domain.ErrRateLimited so the caller can pace the iteration
// instead of aborting it.
package source

import (
	"context"
	"errors"

	"applypilot-engine/internal/domain"
)

// ErrDone signals normal end of the sequence.
var ErrDone = errors.New("no more listings")

// FetchOptions configure one Open call.
type FetchOptions struct {
	Query         string
	MaxPages      int
	SessionCookie string // reduces upstream throttling when present
}

// Iterator walks one listing sequence. Next may return
// domain.ErrRateLimited, in which case the caller should back off and call
// Next again; any other error is terminal for this iteration.
type Iterator interface {
	Next(ctx context.Context) (domain.Listing, error)
}

type Source interface {
	Name() string
	Open(ctx context.Context, opts FetchOptions) (Iterator, error)
}
