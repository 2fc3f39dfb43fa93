package datasource

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// PriceFetcher returns daily closes of one symbol in ascending date order.
type PriceFetcher interface {
	FetchDaily(ctx context.Context, symbol string) ([]models.PriceBar, error)
}

// FallbackPrices tries its primary source and, when that fails, the
// secondary one.
type FallbackPrices struct {
	primary   PriceFetcher
	secondary PriceFetcher
}

// NewFallbackPrices chains primary and secondary. A nil secondary returns
// primary unchanged.
func NewFallbackPrices(primary, secondary PriceFetcher) PriceFetcher {
	if secondary == nil {
		return primary
	}
	return &FallbackPrices{primary: primary, secondary: secondary}
}

// FetchDaily fetches from the primary source, then from the secondary one
// unless ctx is done. When both fail the error wraps both causes.
func (f *FallbackPrices) FetchDaily(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	bars, err := f.primary.FetchDaily(ctx, symbol)
	if err == nil {
		return bars, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Warn().Err(err).Str("symbol", symbol).Msg("primary price source failed, trying fallback")

	bars, ferr := f.secondary.FetchDaily(ctx, symbol)
	if ferr != nil {
		return nil, fmt.Errorf("%w; fallback: %w", err, ferr)
	}
	return bars, nil
}
