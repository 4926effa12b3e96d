// Package fx resolves historical exchange rates.
//
// A Client answers rate lookups for (date, source, target) triples from an
// in-process Cache, an optional persistent Store, and finally a remote
// Provider. Each key is fetched from the provider at most once per Cache;
// concurrent lookups for the same key share one round-trip.
package fx

import (
	"context"
	"time"
)

// Quote is a provider answer: the rate and the date it applies to, which
// can differ from the requested date.
type Quote struct {
	Date time.Time
	Rate float64
}

// Provider is a source of exchange rates.
type Provider interface {
	// Rate returns the quote for an exact historical date.
	Rate(ctx context.Context, date time.Time, from, to string) (Quote, error)
	// Latest returns the most recent available quote.
	Latest(ctx context.Context, from, to string) (Quote, error)
}
