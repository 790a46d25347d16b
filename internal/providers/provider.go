// Package providers defines the adapter interface used to fetch raw
// token data from upstream chain RPCs, indexers, and DEX aggregators,
// plus the error taxonomy the fetcher uses to decide whether to retry,
// fail over, or give up.
package providers

import (
	"context"
	"errors"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// Class categorizes an adapter error so the fetcher can decide how to react.
type Class string

const (
	ClassNotSupported Class = "NOT_SUPPORTED"
	ClassRateLimited  Class = "RATE_LIMITED"
	ClassTransient    Class = "TRANSIENT"
	ClassNotFound     Class = "NOT_FOUND"
	ClassMalformed    Class = "MALFORMED"
	ClassAuth         Class = "AUTH"
)

// Error is a classified adapter failure.
type Error struct {
	Class   Class
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// ClassOf extracts the Class of err, defaulting to ClassTransient for
// unclassified errors — an unknown failure is treated as retryable
// rather than silently swallowed.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// Adapter fetches one DataKind's worth of facts for a token on Chain.
type Adapter interface {
	ID() string
	Supports(c models.Chain, kind models.DataKind) bool
	Fetch(ctx context.Context, c models.Chain, tokenAddress string, kind models.DataKind) (*models.ProviderResponse, error)
}
