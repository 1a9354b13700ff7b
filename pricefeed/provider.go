// Package pricefeed implements the reference price feed (C2): a strictly
// positive base/quote price, safe to poll from the evaluation tick loop.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
)

// ErrNonPositivePrice is returned by a Provider when the upstream source
// yields a zero or negative price, which can never be a valid reference.
var ErrNonPositivePrice = errors.New("pricefeed: non-positive price")

// Provider fetches the current reference price of base expressed in quote.
// Implementations must be safe for concurrent use: the tick loop calls
// FetchPrice once per evaluation without additional synchronization.
type Provider interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// Type tags the kind of upstream source a Provider talks to.
type Type string

const (
	TypeChainlink Type = "chainlink"
	TypeWebsocket Type = "websocket"
)

// reversed wraps a Provider, inverting the price it returns. This implements
// the spec's optional `reverse` flag uniformly across provider types.
type reversed struct {
	inner Provider
}

func (r reversed) FetchPrice(ctx context.Context) (float64, error) {
	price, err := r.inner.FetchPrice(ctx)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %f", ErrNonPositivePrice, price)
	}
	return 1 / price, nil
}

// WithReverse wraps p so that every fetched price is inverted, implementing
// the provider-agnostic `reverse` configuration flag.
func WithReverse(p Provider, reverse bool) Provider {
	if !reverse {
		return p
	}
	return reversed{inner: p}
}
